package protocol

import (
	"encoding/binary"
	"hash/crc32"
)

// Header layout offsets.
const (
	offMagic    = 0
	offVersion  = 4
	offType     = 5
	offSnapshot = 6
	offSeq      = 10
	offTime     = 14
	offLen      = 22
	offChecksum = 24
)

// Encode packs h and payload into a datagram. PayloadLen and Checksum are
// computed here; the values in h are ignored.
func Encode(h Header, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, ErrPayloadTooLarge
	}
	b := make([]byte, HeaderSize+len(payload))
	putHeader(b, h, uint16(len(payload)))
	copy(b[HeaderSize:], payload)
	binary.BigEndian.PutUint32(b[offChecksum:], checksum(b))
	return b, nil
}

// Decode validates a datagram and returns its header and payload. Bytes past
// the declared payload length are ignored.
func Decode(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, ErrShortPacket
	}
	if string(b[offMagic:offVersion]) != Magic {
		return Packet{}, ErrBadMagic
	}
	if b[offVersion] != Version {
		return Packet{}, ErrBadVersion
	}
	n := int(binary.BigEndian.Uint16(b[offLen:]))
	if len(b) < HeaderSize+n {
		return Packet{}, ErrTruncated
	}
	b = b[:HeaderSize+n]
	want := binary.BigEndian.Uint32(b[offChecksum:])
	if checksum(b) != want {
		return Packet{}, ErrChecksum
	}
	return Packet{
		Header: Header{
			Type:        MsgType(b[offType]),
			SnapshotID:  binary.BigEndian.Uint32(b[offSnapshot:]),
			Seq:         binary.BigEndian.Uint32(b[offSeq:]),
			TimestampMS: binary.BigEndian.Uint64(b[offTime:]),
			PayloadLen:  uint16(n),
			Checksum:    want,
		},
		Payload: b[HeaderSize:],
	}, nil
}

func putHeader(b []byte, h Header, payloadLen uint16) {
	copy(b[offMagic:], Magic)
	b[offVersion] = Version
	b[offType] = byte(h.Type)
	binary.BigEndian.PutUint32(b[offSnapshot:], h.SnapshotID)
	binary.BigEndian.PutUint32(b[offSeq:], h.Seq)
	binary.BigEndian.PutUint64(b[offTime:], h.TimestampMS)
	binary.BigEndian.PutUint16(b[offLen:], payloadLen)
	binary.BigEndian.PutUint32(b[offChecksum:], 0)
}

// checksum is CRC-32 (IEEE) over the packet with the checksum field read as zero.
func checksum(b []byte) uint32 {
	var zero [4]byte
	c := crc32.Update(0, crc32.IEEETable, b[:offChecksum])
	c = crc32.Update(c, crc32.IEEETable, zero[:])
	return crc32.Update(c, crc32.IEEETable, b[HeaderSize:])
}
