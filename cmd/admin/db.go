package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
	_ "modernc.org/sqlite"

	"gridclash.io/internal/persistence/indexdb"
)

const dbUsage = "usage: admin db [--data ./data|--db PATH] [--match ID] [--limit N] matches|ticks|claims|tallies"

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	matchID := fs.String("match", "", "match id (optional; defaults to the latest match)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "matches"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = indexdb.DefaultPath(*dataDir)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(db, q, strings.TrimSpace(*matchID), *limit, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if strings.HasPrefix(err.Error(), "unknown query") {
			fmt.Fprintln(os.Stderr, dbUsage)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type matchRow struct {
	MatchID        string `json:"match_id"`
	StartedAtMS    int64  `json:"started_at_ms"`
	EndedAtMS      int64  `json:"ended_at_ms,omitempty"`
	GridN          int    `json:"grid_n"`
	MaxPlayers     int    `json:"max_players"`
	RateHz         int    `json:"rate_hz"`
	Winner         int    `json:"winner,omitempty"`
	LastSnapshotID int64  `json:"last_snapshot_id,omitempty"`
	Digest         string `json:"digest,omitempty"`
	SnapshotPath   string `json:"snapshot_path,omitempty"`
}

type tickRow struct {
	SnapshotID   int64   `json:"snapshot_id"`
	Seq          int64   `json:"seq_num"`
	SendTimeMS   int64   `json:"send_time_ms"`
	Clients      int     `json:"clients_count"`
	CPUPercent   float64 `json:"cpu_percent"`
	PayloadBytes int     `json:"payload_bytes"`
	Claimed      int     `json:"claimed"`
	Digest       string  `json:"digest"`
}

type claimRow struct {
	Seq        int64  `json:"seq"`
	RecvTimeMS int64  `json:"recv_time_ms"`
	From       string `json:"from"`
	PlayerID   int    `json:"player_id"`
	EventType  int    `json:"event_type"`
	CellID     int    `json:"cell_id"`
	ClientTS   int64  `json:"client_ts"`
	Accepted   bool   `json:"accepted"`
}

type tallyRow struct {
	PlayerID int `json:"player_id"`
	Cells    int `json:"cells"`
}

// runQuery prints the rows of query q as JSON lines. Per-match queries use
// the most recently started match when matchID is empty.
func runQuery(db *sql.DB, q, matchID string, limit int, out io.Writer) error {
	if limit <= 0 {
		limit = 20
	}
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)

	if q != "matches" && matchID == "" {
		id, err := latestMatch(db)
		if err != nil {
			return fmt.Errorf("latest match: %w", err)
		}
		if id == "" {
			return fmt.Errorf("no matches found")
		}
		matchID = id
	}

	switch q {
	case "matches":
		rows, err := db.Query(`SELECT match_id,started_at_ms,COALESCE(ended_at_ms,0),grid_n,max_players,rate_hz,COALESCE(winner,0),COALESCE(last_snapshot_id,0),COALESCE(digest,''),COALESCE(snapshot_path,'') FROM matches ORDER BY started_at_ms DESC LIMIT ?`, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r matchRow
			if err := rows.Scan(&r.MatchID, &r.StartedAtMS, &r.EndedAtMS, &r.GridN, &r.MaxPlayers, &r.RateHz, &r.Winner, &r.LastSnapshotID, &r.Digest, &r.SnapshotPath); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			_ = enc.Encode(r)
		}
		return rows.Err()

	case "ticks":
		rows, err := db.Query(`SELECT snapshot_id,seq_num,send_time_ms,clients,cpu_percent,payload_bytes,claimed,digest FROM ticks WHERE match_id=? ORDER BY snapshot_id DESC LIMIT ?`, matchID, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r tickRow
			if err := rows.Scan(&r.SnapshotID, &r.Seq, &r.SendTimeMS, &r.Clients, &r.CPUPercent, &r.PayloadBytes, &r.Claimed, &r.Digest); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			_ = enc.Encode(r)
		}
		return rows.Err()

	case "claims":
		rows, err := db.Query(`SELECT seq,recv_time_ms,from_addr,player_id,event_type,cell_id,client_ts,accepted FROM claims WHERE match_id=? ORDER BY seq LIMIT ?`, matchID, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r claimRow
			var accepted int
			if err := rows.Scan(&r.Seq, &r.RecvTimeMS, &r.From, &r.PlayerID, &r.EventType, &r.CellID, &r.ClientTS, &accepted); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Accepted = accepted != 0
			_ = enc.Encode(r)
		}
		return rows.Err()

	case "tallies":
		rows, err := db.Query(`SELECT player_id,cells FROM tallies WHERE match_id=? ORDER BY player_id`, matchID)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r tallyRow
			if err := rows.Scan(&r.PlayerID, &r.Cells); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			_ = enc.Encode(r)
		}
		return rows.Err()

	default:
		return fmt.Errorf("unknown query: %s", q)
	}
}

func latestMatch(db *sql.DB) (string, error) {
	var id sql.NullString
	err := db.QueryRow(`SELECT match_id FROM matches ORDER BY started_at_ms DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id.String, nil
}
