package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"gridclash.io/internal/authority"
	"gridclash.io/internal/protocol"
)

// Version of MatchSnapshotV1.
const Version = 1

type Header struct {
	Version        int    `json:"version"`
	MatchID        string `json:"match_id"`
	LastSnapshotID uint32 `json:"last_snapshot_id"`
	Winner         uint8  `json:"winner"`
}

// MatchSnapshotV1 is the final state of a match, written once on game over.
type MatchSnapshotV1 struct {
	Header Header `json:"header"`

	GridN           int       `json:"grid_n"`
	MaxPlayers      int       `json:"max_players"`
	RateHz          int       `json:"rate_hz"`
	Cells           []uint8   `json:"cells"`
	FirstClaimOrder []uint8   `json:"first_claim_order"`
	Tallies         []TallyV1 `json:"tallies"`
	Clients         []string  `json:"clients"`
	Digest          string    `json:"digest"`
	StartedAtMS     uint64    `json:"started_at_ms"`
	EndedAtMS       uint64    `json:"ended_at_ms"`
}

type TallyV1 struct {
	PlayerID uint8 `json:"player_id"`
	Cells    uint8 `json:"cells"`
}

// FromResult builds the snapshot of a finished match.
func FromResult(matchID string, cfg authority.Config, startedAtMS uint64, r authority.Result) MatchSnapshotV1 {
	snap := MatchSnapshotV1{
		Header: Header{
			Version:        Version,
			MatchID:        matchID,
			LastSnapshotID: r.LastSnapshotID,
			Winner:         r.GameOver.Winner,
		},
		GridN:           r.GridN,
		MaxPlayers:      cfg.MaxPlayers,
		RateHz:          cfg.RateHz,
		Cells:           append([]uint8(nil), r.Cells...),
		FirstClaimOrder: append([]uint8(nil), r.FirstClaimOrder...),
		Clients:         append([]string(nil), r.Clients...),
		Digest:          r.Digest,
		StartedAtMS:     startedAtMS,
		EndedAtMS:       r.EndedAtMS,
	}
	for _, t := range r.GameOver.Tallies {
		snap.Tallies = append(snap.Tallies, TallyV1{PlayerID: t.PlayerID, Cells: t.Cells})
	}
	return snap
}

// GameOver converts the stored result back to its wire form.
func (s MatchSnapshotV1) GameOver() protocol.GameOver {
	g := protocol.GameOver{Winner: s.Header.Winner}
	for _, t := range s.Tallies {
		g.Tallies = append(g.Tallies, protocol.Tally{PlayerID: t.PlayerID, Cells: t.Cells})
	}
	return g
}

// Path returns where the snapshot of matchID lives under dataDir.
func Path(dataDir, matchID string) string {
	return filepath.Join(dataDir, "snapshots", matchID+".snap.zst")
}

func WriteSnapshot(path string, snap MatchSnapshotV1) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, f.Close()) }()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, enc.Close()) }()

	bw := bufio.NewWriterSize(enc, 64*1024)
	defer func() { err = errors.Join(err, bw.Flush()) }()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (MatchSnapshotV1, error) {
	var snap MatchSnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// The header line is for humans and tools; gob carries it too.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("snapshot version %d: unsupported", snap.Header.Version)
	}
	return snap, nil
}
