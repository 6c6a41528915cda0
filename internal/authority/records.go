package authority

import "gridclash.io/internal/protocol"

// TickRecord describes one broadcast.
type TickRecord struct {
	SendTimeMS   uint64  `json:"send_time_ms"`
	SnapshotID   uint32  `json:"snapshot_id"`
	Seq          uint32  `json:"seq_num"`
	Clients      int     `json:"clients_count"`
	CPUPercent   float64 `json:"cpu_percent"`
	PayloadBytes int     `json:"payload_bytes"`
	Digest       string  `json:"digest"`
	Claimed      int     `json:"claimed"`
}

// ClaimRecord describes one processed EVENT, accepted or not.
type ClaimRecord struct {
	RecvTimeMS uint64 `json:"recv_time_ms"`
	From       string `json:"from"`
	PlayerID   uint8  `json:"player_id"`
	ClaimType  uint8  `json:"event_type"`
	CellID     uint16 `json:"cell_id"`
	ClientTS   uint64 `json:"client_ts"`
	Accepted   bool   `json:"accepted"`
}

type TickLogger interface {
	WriteTick(TickRecord) error
}

type ClaimLogger interface {
	WriteClaim(ClaimRecord) error
}

// TickView is the state published to spectators after each tick.
type TickView struct {
	SnapshotID  uint32
	Seq         uint32
	TimestampMS uint64
	GridN       int
	Cells       []uint8
	Clients     int
	GameOver    *protocol.GameOver
}

// Result is the final state of a finished match.
type Result struct {
	GameOver        protocol.GameOver
	GridN           int
	Cells           []uint8
	FirstClaimOrder []uint8
	Clients         []string
	LastSnapshotID  uint32
	Digest          string
	EndedAtMS       uint64
}
