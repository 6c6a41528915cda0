package main

import (
	"fmt"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	persistlog "gridclash.io/internal/persistence/log"
	"gridclash.io/internal/persistence/snapshot"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to <match>.snap.zst")
		journalDir = flag.String("journal", "", "journal dir containing journal-*.jsonl.zst (default: <data>/journal next to the snapshot)")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing --snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot v%d match=%s grid=%dx%d last_snapshot_id=%d winner=%d clients=%d digest=%s\n",
		snap.Header.Version, snap.Header.MatchID, snap.GridN, snap.GridN, snap.Header.LastSnapshotID,
		snap.Header.Winner, len(snap.Clients), snap.Digest)

	dir := *journalDir
	if dir == "" {
		// <data>/snapshots/<id>.snap.zst -> <data>/journal
		dir = filepath.Join(filepath.Dir(filepath.Dir(*snapPath)), "journal")
	}
	files, err := persistlog.ListJournalFiles(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list journal:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no journal files found in", dir)
		os.Exit(1)
	}

	rep, err := verify(snap, files)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: claims=%d accepted=%d ticks=%d checked=%d winner=%d\n",
		rep.Claims, rep.Accepted, rep.Ticks, rep.Checked, rep.Winner)
}
