package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"gridclash.io/internal/authority"
)

// JSONLZstdWriter appends JSON lines to zstd-compressed files, one file per
// UTC hour. Each line is flushed as written so a crash loses at most the
// open frame.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// Entry kinds in the match journal.
const (
	KindTick  = "tick"
	KindClaim = "claim"
)

// JournalEntry is one line of the match journal. Exactly one of Tick and
// Claim is set, matching Kind.
type JournalEntry struct {
	Kind    string                 `json:"kind"`
	MatchID string                 `json:"match_id"`
	Tick    *authority.TickRecord  `json:"tick,omitempty"`
	Claim   *authority.ClaimRecord `json:"claim,omitempty"`
}

// Journal records ticks and claims for one match in arrival order. It
// satisfies authority.TickLogger and authority.ClaimLogger.
type Journal struct {
	matchID string
	w       *JSONLZstdWriter
}

// JournalPrefix names journal files: journal-YYYY-MM-DD-HH.jsonl.zst.
const JournalPrefix = "journal"

func NewJournal(dir, matchID string) *Journal {
	return &Journal{matchID: matchID, w: NewJSONLZstdWriter(dir, JournalPrefix)}
}

func (j *Journal) WriteTick(r authority.TickRecord) error {
	return j.w.Write(JournalEntry{Kind: KindTick, MatchID: j.matchID, Tick: &r})
}

func (j *Journal) WriteClaim(r authority.ClaimRecord) error {
	return j.w.Write(JournalEntry{Kind: KindClaim, MatchID: j.matchID, Claim: &r})
}

func (j *Journal) Close() error { return j.w.Close() }
