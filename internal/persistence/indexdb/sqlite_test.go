package indexdb

import (
	"database/sql"
	"math"
	"path/filepath"
	"testing"

	"gridclash.io/internal/authority"
	"gridclash.io/internal/persistence/snapshot"
)

func TestSQLiteIndex_MatchLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "gsync.sqlite")
	idx, err := OpenSQLite(path, "m-1")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	cfg := authority.Config{GridN: 2, MaxPlayers: 2, RateHz: 20}
	idx.RecordMatchStart(cfg, 1000)
	_ = idx.WriteClaim(authority.ClaimRecord{RecvTimeMS: 1001, From: "127.0.0.1:1", PlayerID: 1, CellID: 0, Accepted: true})
	_ = idx.WriteClaim(authority.ClaimRecord{RecvTimeMS: 1002, From: "127.0.0.1:2", PlayerID: 2, CellID: 0})
	_ = idx.WriteTick(authority.TickRecord{SendTimeMS: 1050, SnapshotID: 0, Seq: 0, Clients: 2, PayloadBytes: 5, Claimed: 1, Digest: "d0"})

	cells := []uint8{1, 2, 2, 1}
	res := authority.Result{
		GameOver:       authority.ComputeResult(cells, []uint8{1, 2}),
		GridN:          2,
		Cells:          cells,
		LastSnapshotID: 7,
		Digest:         authority.Digest(2, cells),
		EndedAtMS:      2000,
	}
	idx.RecordResult("/tmp/m-1.snap.zst", snapshot.FromResult("m-1", cfg, 1000, res))
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var winner, lastID int
	var snapPath string
	if err := db.QueryRow(`SELECT winner,last_snapshot_id,snapshot_path FROM matches WHERE match_id=?`, "m-1").Scan(&winner, &lastID, &snapPath); err != nil {
		t.Fatalf("match row: %v", err)
	}
	if winner != 1 || lastID != 7 || snapPath != "/tmp/m-1.snap.zst" {
		t.Fatalf("winner=%d last=%d path=%s", winner, lastID, snapPath)
	}

	var claims, accepted int
	if err := db.QueryRow(`SELECT COUNT(*), SUM(accepted) FROM claims WHERE match_id=?`, "m-1").Scan(&claims, &accepted); err != nil {
		t.Fatalf("claims: %v", err)
	}
	if claims != 2 || accepted != 1 {
		t.Fatalf("claims=%d accepted=%d", claims, accepted)
	}

	var firstFrom string
	if err := db.QueryRow(`SELECT from_addr FROM claims WHERE match_id=? ORDER BY seq LIMIT 1`, "m-1").Scan(&firstFrom); err != nil {
		t.Fatalf("claim order: %v", err)
	}
	if firstFrom != "127.0.0.1:1" {
		t.Fatalf("first claim from %s", firstFrom)
	}

	var tallies int
	if err := db.QueryRow(`SELECT COUNT(*) FROM tallies WHERE match_id=?`, "m-1").Scan(&tallies); err != nil || tallies != 2 {
		t.Fatalf("tallies=%d err=%v", tallies, err)
	}
	var ticks int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ticks`).Scan(&ticks); err != nil || ticks != 1 {
		t.Fatalf("ticks=%d err=%v", ticks, err)
	}
}

func TestSQLiteIndex_HugeClientTimestampSaturates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gsync.sqlite")
	idx, err := OpenSQLite(path, "m-ts")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	idx.RecordMatchStart(authority.Config{GridN: 2, MaxPlayers: 2, RateHz: 20}, 1000)
	_ = idx.WriteClaim(authority.ClaimRecord{RecvTimeMS: 1001, From: "127.0.0.1:1", PlayerID: 1, ClientTS: math.MaxUint64})
	_ = idx.WriteClaim(authority.ClaimRecord{RecvTimeMS: 1002, From: "127.0.0.1:1", PlayerID: 1, CellID: 1, ClientTS: 1_700_000_000_000})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	rows, err := db.Query(`SELECT client_ts FROM claims WHERE match_id=? ORDER BY seq`, "m-ts")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	var got []int64
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			t.Fatalf("scan: %v", err)
		}
		got = append(got, ts)
	}
	if len(got) != 2 || got[0] != math.MaxInt64 || got[1] != 1_700_000_000_000 {
		t.Fatalf("client_ts=%v", got)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick}

	_ = s.WriteTick(authority.TickRecord{Seq: 2})
	_ = s.WriteClaim(authority.ClaimRecord{})
	s.RecordMatchStart(authority.Config{}, 0)
	s.RecordResult("", snapshot.MatchSnapshotV1{})

	st := s.Stats()
	if st.DropTickTotal != 1 || st.DropClaimTotal != 1 || st.DropMatchTotal != 1 || st.DropResultTotal != 1 {
		t.Fatalf("drops=%+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_NilIsNoop(t *testing.T) {
	var s *SQLiteIndex
	if err := s.WriteTick(authority.TickRecord{}); err != nil {
		t.Fatalf("WriteTick: %v", err)
	}
	s.RecordMatchStart(authority.Config{}, 0)
	if st := s.Stats(); st.QueueCapacity != 0 {
		t.Fatalf("stats=%+v", st)
	}
}
