package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// ListJournalFiles returns the journal files in dir in chronological order.
func ListJournalFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, JournalPrefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ListJournalFilesSince returns the journal files in dir whose hour is not
// before the UTC hour of since.
func ListJournalFilesSince(dir string, since time.Time) ([]string, error) {
	all, err := ListJournalFiles(dir)
	if err != nil {
		return nil, err
	}
	first := fmt.Sprintf("%s-%s.jsonl.zst", JournalPrefix, since.UTC().Format("2006-01-02-15"))
	out := all[:0]
	for _, p := range all {
		if filepath.Base(p) >= first {
			out = append(out, p)
		}
	}
	return out, nil
}

// ReadJournal calls fn for every entry in path, in file order. Entries for
// other matches are passed through; callers filter on MatchID.
func ReadJournal(path string, fn func(JournalEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var e JournalEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return sc.Err()
}
