package protocol

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// EventSize is the fixed EVENT payload size.
const EventSize = 12

// Event is a claim request: player id, claim type, target cell, client send time.
type Event struct {
	PlayerID   uint8
	ClaimType  uint8
	CellID     uint16
	ClientTSMS uint64
}

func EncodeEvent(ev Event) []byte {
	b := make([]byte, EventSize)
	b[0] = ev.PlayerID
	b[1] = ev.ClaimType
	binary.BigEndian.PutUint16(b[2:], ev.CellID)
	binary.BigEndian.PutUint64(b[4:], ev.ClientTSMS)
	return b
}

func DecodeEvent(b []byte) (Event, error) {
	if len(b) < EventSize {
		return Event{}, fmt.Errorf("event: %d bytes: %w", len(b), ErrMalformed)
	}
	return Event{
		PlayerID:   b[0],
		ClaimType:  b[1],
		CellID:     binary.BigEndian.Uint16(b[2:]),
		ClientTSMS: binary.BigEndian.Uint64(b[4:]),
	}, nil
}

func EncodeInit(playerID uint8) []byte { return []byte{playerID} }

func DecodeInit(b []byte) (uint8, error) {
	if len(b) < 1 {
		return 0, fmt.Errorf("init: empty payload: %w", ErrMalformed)
	}
	return b[0], nil
}

// EncodeSnapshot serializes one grid as a dimension byte followed by n*n owner bytes.
func EncodeSnapshot(n int, cells []uint8) []byte {
	b := make([]byte, 1+len(cells))
	b[0] = byte(n)
	copy(b[1:], cells)
	return b
}

// SplitSnapshots walks a SNAPSHOT payload and returns the cell arrays of every
// well-formed blob, newest first. Parsing stops at the first blob whose
// dimension byte is not n or whose cells are cut short.
func SplitSnapshots(payload []byte, n int) [][]byte {
	size := n * n
	var out [][]byte
	for i := 0; i < len(payload); {
		if int(payload[i]) != n {
			break
		}
		i++
		if i+size > len(payload) {
			break
		}
		out = append(out, payload[i:i+size])
		i += size
	}
	return out
}

// Tally is one player's final cell count.
type Tally struct {
	PlayerID uint8
	Cells    uint8
}

// GameOver is the terminal record: winner and per-player tallies sorted by player id.
type GameOver struct {
	Winner  uint8
	Tallies []Tally
}

func EncodeGameOver(g GameOver) []byte {
	tallies := append([]Tally(nil), g.Tallies...)
	sort.Slice(tallies, func(i, j int) bool { return tallies[i].PlayerID < tallies[j].PlayerID })
	b := make([]byte, 2, 2+2*len(tallies))
	b[0] = g.Winner
	b[1] = byte(len(tallies))
	for _, t := range tallies {
		b = append(b, t.PlayerID, t.Cells)
	}
	return b
}

func DecodeGameOver(b []byte) (GameOver, error) {
	if len(b) < 2 {
		return GameOver{}, fmt.Errorf("game over: %d bytes: %w", len(b), ErrMalformed)
	}
	count := int(b[1])
	if len(b) < 2+2*count {
		return GameOver{}, fmt.Errorf("game over: %d tallies in %d bytes: %w", count, len(b), ErrMalformed)
	}
	g := GameOver{Winner: b[0], Tallies: make([]Tally, 0, count)}
	for i := 0; i < count; i++ {
		off := 2 + 2*i
		g.Tallies = append(g.Tallies, Tally{PlayerID: b[off], Cells: b[off+1]})
	}
	return g, nil
}

// NewSnapshotPacket builds a SNAPSHOT datagram around an already combined payload.
func NewSnapshotPacket(snapshotID, seq uint32, tsMS uint64, payload []byte) ([]byte, error) {
	return Encode(Header{Type: TypeSnapshot, SnapshotID: snapshotID, Seq: seq, TimestampMS: tsMS}, payload)
}

func NewEventPacket(ev Event) ([]byte, error) {
	return Encode(Header{Type: TypeEvent, TimestampMS: ev.ClientTSMS}, EncodeEvent(ev))
}

func NewInitPacket(playerID uint8, tsMS uint64) ([]byte, error) {
	return Encode(Header{Type: TypeInit, TimestampMS: tsMS}, EncodeInit(playerID))
}

func NewGameOverPacket(snapshotID, seq uint32, tsMS uint64, g GameOver) ([]byte, error) {
	return Encode(Header{Type: TypeGameOver, SnapshotID: snapshotID, Seq: seq, TimestampMS: tsMS}, EncodeGameOver(g))
}
