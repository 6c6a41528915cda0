package protocol

import "time"

// Wire constants. Every datagram starts with the 28-byte header below.
const (
	Magic      = "GSYN"
	Version    = 1
	HeaderSize = 28
	MaxPayload = 0xFFFF
)

// MsgType identifies the payload carried after the header.
type MsgType uint8

const (
	TypeSnapshot MsgType = 0
	TypeEvent    MsgType = 1
	TypeAck      MsgType = 2 // reserved; never sent
	TypeInit     MsgType = 3
	TypeGameOver MsgType = 4
)

func (t MsgType) String() string {
	switch t {
	case TypeSnapshot:
		return "SNAPSHOT"
	case TypeEvent:
		return "EVENT"
	case TypeAck:
		return "ACK"
	case TypeInit:
		return "INIT"
	case TypeGameOver:
		return "GAME_OVER"
	default:
		return "UNKNOWN"
	}
}

// Claim types carried in EVENT payloads.
const (
	ClaimAcquire uint8 = 0
)

// Header is the decoded fixed header. Magic and Version are implied.
type Header struct {
	Type        MsgType
	SnapshotID  uint32
	Seq         uint32
	TimestampMS uint64
	PayloadLen  uint16
	Checksum    uint32
}

// Packet is a validated datagram. Payload aliases the buffer passed to Decode.
type Packet struct {
	Header  Header
	Payload []byte
}

// NowMS converts t to the millisecond timestamp used on the wire.
func NowMS(t time.Time) uint64 {
	return uint64(t.UnixMilli())
}
