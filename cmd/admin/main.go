package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	flag "github.com/spf13/pflag"

	"gridclash.io/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "bootstrap":
			bootstrapCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints the match ids that have a snapshot under the data dir,
// oldest first by file modification time.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	ids, err := listMatches(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, id := range ids {
		fmt.Println(id)
	}
}

func listMatches(dataDir string) ([]string, error) {
	dir := filepath.Join(dataDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	type match struct {
		id    string
		mtime int64
	}
	var ms []match
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".snap.zst") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		ms = append(ms, match{id: strings.TrimSuffix(e.Name(), ".snap.zst"), mtime: info.ModTime().UnixNano()})
	}
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].mtime != ms[j].mtime {
			return ms[i].mtime < ms[j].mtime
		}
		return ms[i].id < ms[j].id
	})
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.id)
	}
	return out, nil
}

// snapshotCmd prints a stored match snapshot as JSON.
func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	matchID := fs.String("match", "", "match id (required unless --path)")
	path := fs.String("path", "", "snapshot file path")
	grid := fs.Bool("grid", false, "also print the final grid")
	_ = fs.Parse(args)

	p := strings.TrimSpace(*path)
	if p == "" {
		if strings.TrimSpace(*matchID) == "" {
			fmt.Fprintln(os.Stderr, "missing --match or --path")
			os.Exit(2)
		}
		p = snapshot.Path(*dataDir, *matchID)
	}
	snap, err := snapshot.ReadSnapshot(p)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(snap)
	if *grid {
		printGrid(os.Stdout, snap.GridN, snap.Cells)
	}
}

// printGrid writes one row per line; '.' marks an unclaimed cell.
func printGrid(w io.Writer, n int, cells []uint8) {
	var b strings.Builder
	for r := 0; r < n; r++ {
		b.Reset()
		for c := 0; c < n; c++ {
			if c > 0 {
				b.WriteByte(' ')
			}
			i := r*n + c
			if i >= len(cells) || cells[i] == 0 {
				b.WriteByte('.')
				continue
			}
			fmt.Fprintf(&b, "%d", cells[i])
		}
		fmt.Fprintln(w, b.String())
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
