package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gridclash.io/internal/persistence/snapshot"
)

// MetaFile is the name of the bundle description written next to the copies.
const MetaFile = "meta.json"

type MatchMeta struct {
	MatchID        string             `json:"match_id"`
	Winner         uint8              `json:"winner"`
	Tallies        []snapshot.TallyV1 `json:"tallies"`
	GridN          int                `json:"grid_n"`
	LastSnapshotID uint32             `json:"last_snapshot_id"`
	Digest         string             `json:"digest"`
	Files          []string           `json:"files"`
	CreatedAt      string             `json:"created_at"`
}

// Dir returns the bundle directory of matchID under dataDir.
func Dir(dataDir, matchID string) string {
	return filepath.Join(dataDir, "archives", matchID)
}

// BundleMatch copies the final snapshot and the side files of a finished
// match (journal, CSV logs) into dataDir/archives/<match>/ and writes
// meta.json. It returns the paths of every bundled file, meta.json last.
// Side files that no longer exist are skipped.
func BundleMatch(dataDir, snapshotPath string, snap snapshot.MatchSnapshotV1, sideFiles []string) ([]string, error) {
	dir := Dir(dataDir, snap.Header.MatchID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	var out []string
	seen := map[string]bool{}
	for i, src := range append([]string{snapshotPath}, sideFiles...) {
		name := filepath.Base(src)
		if seen[name] {
			return nil, fmt.Errorf("archive: duplicate file name %s", name)
		}
		seen[name] = true
		dst := filepath.Join(dir, name)
		if err := copyFile(src, dst); err != nil {
			if i > 0 && os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		out = append(out, dst)
	}

	meta := MatchMeta{
		MatchID:        snap.Header.MatchID,
		Winner:         snap.Header.Winner,
		Tallies:        snap.Tallies,
		GridN:          snap.GridN,
		LastSnapshotID: snap.Header.LastSnapshotID,
		Digest:         snap.Digest,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339Nano),
	}
	for _, p := range out {
		meta.Files = append(meta.Files, filepath.Base(p))
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, err
	}
	metaPath := filepath.Join(dir, MetaFile)
	if err := os.WriteFile(metaPath, b, 0o644); err != nil {
		return nil, err
	}
	return append(out, metaPath), nil
}

// ReadMeta loads the meta.json of a bundle directory.
func ReadMeta(dir string) (MatchMeta, error) {
	var m MatchMeta
	b, err := os.ReadFile(filepath.Join(dir, MetaFile))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("%s: %w", MetaFile, err)
	}
	return m, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
