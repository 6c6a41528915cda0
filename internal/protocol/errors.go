package protocol

import "errors"

// Decode failures. A packet that fails any of these checks is dropped whole.
var (
	ErrShortPacket     = errors.New("protocol: packet shorter than header")
	ErrBadMagic        = errors.New("protocol: bad magic")
	ErrBadVersion      = errors.New("protocol: unsupported version")
	ErrTruncated       = errors.New("protocol: payload shorter than declared length")
	ErrChecksum        = errors.New("protocol: checksum mismatch")
	ErrMalformed       = errors.New("protocol: malformed payload")
	ErrPayloadTooLarge = errors.New("protocol: payload exceeds 65535 bytes")
)

// Drop reasons used as metric labels.
const (
	DropShort     = "short"
	DropMagic     = "magic"
	DropVersion   = "version"
	DropTruncated = "truncated"
	DropChecksum  = "checksum"
	DropMalformed = "malformed"
	DropOther     = "other"
)

// DropReason maps a decode error to a stable label.
func DropReason(err error) string {
	switch {
	case errors.Is(err, ErrShortPacket):
		return DropShort
	case errors.Is(err, ErrBadMagic):
		return DropMagic
	case errors.Is(err, ErrBadVersion):
		return DropVersion
	case errors.Is(err, ErrTruncated):
		return DropTruncated
	case errors.Is(err, ErrChecksum):
		return DropChecksum
	case errors.Is(err, ErrMalformed):
		return DropMalformed
	default:
		return DropOther
	}
}
