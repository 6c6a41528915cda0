package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"gridclash.io/internal/authority"
	"gridclash.io/internal/persistence/snapshot"
)

// SQLiteIndex is a queryable secondary index of matches, ticks and claims.
// Writes are queued to a single writer goroutine and batched into
// transactions; the journal stays the source of truth, so a full queue drops
// rows instead of stalling the authority.
type SQLiteIndex struct {
	db      *sql.DB
	matchID string

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick   atomic.Uint64
	dropClaim  atomic.Uint64
	dropMatch  atomic.Uint64
	dropResult atomic.Uint64
}

type reqKind int

const (
	reqMatch reqKind = iota + 1
	reqTick
	reqClaim
	reqResult
)

type req struct {
	kind reqKind

	match  matchRow
	tick   authority.TickRecord
	claim  authority.ClaimRecord
	result resultRow
}

type matchRow struct {
	StartedAtMS uint64
	GridN       int
	MaxPlayers  int
	RateHz      int
}

type resultRow struct {
	Path string
	Snap snapshot.MatchSnapshotV1
}

// Stats reports queue health for /metrics.
type Stats struct {
	QueueDepth      int
	QueueCapacity   int
	DropTickTotal   uint64
	DropClaimTotal  uint64
	DropMatchTotal  uint64
	DropResultTotal uint64
}

// DefaultPath is where cmd/server keeps the index under its data directory.
func DefaultPath(dataDir string) string {
	return filepath.Join(dataDir, "index", "gsync.sqlite")
}

func OpenSQLite(path, matchID string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:      db,
		matchID: matchID,
		ch:      make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS matches (
			match_id TEXT PRIMARY KEY,
			started_at_ms INTEGER NOT NULL,
			ended_at_ms INTEGER,
			grid_n INTEGER NOT NULL,
			max_players INTEGER NOT NULL,
			rate_hz INTEGER NOT NULL,
			winner INTEGER,
			last_snapshot_id INTEGER,
			digest TEXT,
			snapshot_path TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			match_id TEXT NOT NULL,
			snapshot_id INTEGER NOT NULL,
			seq_num INTEGER NOT NULL,
			send_time_ms INTEGER NOT NULL,
			clients INTEGER NOT NULL,
			cpu_percent REAL NOT NULL,
			payload_bytes INTEGER NOT NULL,
			claimed INTEGER NOT NULL,
			digest TEXT NOT NULL,
			PRIMARY KEY (match_id, snapshot_id)
		);`,
		`CREATE TABLE IF NOT EXISTS claims (
			match_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			recv_time_ms INTEGER NOT NULL,
			from_addr TEXT NOT NULL,
			player_id INTEGER NOT NULL,
			event_type INTEGER NOT NULL,
			cell_id INTEGER NOT NULL,
			client_ts INTEGER NOT NULL,
			accepted INTEGER NOT NULL,
			PRIMARY KEY (match_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_claims_player ON claims(match_id, player_id);`,
		`CREATE TABLE IF NOT EXISTS tallies (
			match_id TEXT NOT NULL,
			player_id INTEGER NOT NULL,
			cells INTEGER NOT NULL,
			PRIMARY KEY (match_id, player_id)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains the queue and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) RecordMatchStart(cfg authority.Config, startedAtMS uint64) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqMatch, match: matchRow{
		StartedAtMS: startedAtMS,
		GridN:       cfg.GridN,
		MaxPlayers:  cfg.MaxPlayers,
		RateHz:      cfg.RateHz,
	}}, &s.dropMatch)
}

func (s *SQLiteIndex) WriteTick(r authority.TickRecord) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqTick, tick: r}, &s.dropTick)
	return nil
}

func (s *SQLiteIndex) WriteClaim(r authority.ClaimRecord) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqClaim, claim: r}, &s.dropClaim)
	return nil
}

// RecordResult stores the outcome and tallies of the match.
func (s *SQLiteIndex) RecordResult(path string, snap snapshot.MatchSnapshotV1) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqResult, result: resultRow{Path: path, Snap: snap}}, &s.dropResult)
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:      len(s.ch),
		QueueCapacity:   cap(s.ch),
		DropTickTotal:   s.dropTick.Load(),
		DropClaimTotal:  s.dropClaim.Load(),
		DropMatchTotal:  s.dropMatch.Load(),
		DropResultTotal: s.dropResult.Load(),
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertMatch, _ := s.db.Prepare(`INSERT OR REPLACE INTO matches(match_id,started_at_ms,grid_n,max_players,rate_hz) VALUES(?,?,?,?,?)`)
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(match_id,snapshot_id,seq_num,send_time_ms,clients,cpu_percent,payload_bytes,claimed,digest) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertClaim, _ := s.db.Prepare(`INSERT OR REPLACE INTO claims(match_id,seq,recv_time_ms,from_addr,player_id,event_type,cell_id,client_ts,accepted) VALUES(?,?,?,?,?,?,?,?,?)`)
	updateResult, _ := s.db.Prepare(`UPDATE matches SET ended_at_ms=?,winner=?,last_snapshot_id=?,digest=?,snapshot_path=? WHERE match_id=?`)
	insertTally, _ := s.db.Prepare(`INSERT OR REPLACE INTO tallies(match_id,player_id,cells) VALUES(?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertMatch, insertTick, insertClaim, updateResult, insertTally} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second

		claimSeq int64
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return true
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqMatch:
			m := r.match
			if !exec(insertMatch, s.matchID, int64(m.StartedAtMS), m.GridN, m.MaxPlayers, m.RateHz) {
				continue
			}

		case reqTick:
			t := r.tick
			if !exec(insertTick, s.matchID, int64(t.SnapshotID), int64(t.Seq), int64(t.SendTimeMS),
				t.Clients, t.CPUPercent, t.PayloadBytes, t.Claimed, t.Digest) {
				continue
			}

		case reqClaim:
			c := r.claim
			claimSeq++
			accepted := 0
			if c.Accepted {
				accepted = 1
			}
			if !exec(insertClaim, s.matchID, claimSeq, int64(c.RecvTimeMS), c.From,
				int(c.PlayerID), int(c.ClaimType), int(c.CellID), clampInt64(c.ClientTS), accepted) {
				continue
			}

		case reqResult:
			sn := r.result.Snap
			if !exec(updateResult, int64(sn.EndedAtMS), int(sn.Header.Winner), int64(sn.Header.LastSnapshotID),
				sn.Digest, r.result.Path, s.matchID) {
				continue
			}
			for _, t := range sn.Tallies {
				if !exec(insertTally, s.matchID, int(t.PlayerID), int(t.Cells)) {
					break
				}
			}
			// Results are committed immediately.
			commit()
		}
		flushIfNeeded()
	}

	commit()
}

// clampInt64 maps a wire timestamp onto an SQLite INTEGER. Client clocks are
// untrusted, so values past MaxInt64 saturate instead of wrapping negative.
func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
