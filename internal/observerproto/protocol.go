package observerproto

import "gridclash.io/internal/authority"

// Version is the spectator protocol version (separate from the UDP wire version).
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to change the frame rate.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// EveryTicks forwards one frame per N ticks; 0 or 1 means every tick.
	EveryTicks int `json:"every_ticks,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	MatchID         string      `json:"match_id"`
	Params          MatchParams `json:"params"`
	State           TickMsg     `json:"state"`
}

type MatchParams struct {
	GridN      int `json:"grid_n"`
	MaxPlayers int `json:"max_players"`
	RateHz     int `json:"rate_hz"`
	Redundancy int `json:"redundancy"`
}

// Server -> Client. Sent after each broadcast tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SnapshotID      uint32 `json:"snapshot_id"`
	Seq             uint32 `json:"seq_num"`
	TimestampMS     uint64 `json:"ts_ms"`
	GridN           int    `json:"grid_n"`
	// Cells are owner ids, row-major; encoded as numbers rather than base64.
	Cells    []int        `json:"cells"`
	Clients  int          `json:"clients"`
	GameOver *GameOverMsg `json:"game_over,omitempty"`
}

type GameOverMsg struct {
	Winner  int        `json:"winner"`
	Tallies []TallyMsg `json:"tallies"`
}

type TallyMsg struct {
	PlayerID int `json:"player_id"`
	Cells    int `json:"cells"`
}

// FromView converts an authority tick view into a frame.
func FromView(v authority.TickView) TickMsg {
	m := TickMsg{
		Type:            "TICK",
		ProtocolVersion: Version,
		SnapshotID:      v.SnapshotID,
		Seq:             v.Seq,
		TimestampMS:     v.TimestampMS,
		GridN:           v.GridN,
		Cells:           make([]int, len(v.Cells)),
		Clients:         v.Clients,
	}
	for i, c := range v.Cells {
		m.Cells[i] = int(c)
	}
	if v.GameOver != nil {
		g := &GameOverMsg{Winner: int(v.GameOver.Winner), Tallies: []TallyMsg{}}
		for _, t := range v.GameOver.Tallies {
			g.Tallies = append(g.Tallies, TallyMsg{PlayerID: int(t.PlayerID), Cells: int(t.Cells)})
		}
		m.GameOver = g
	}
	return m
}
