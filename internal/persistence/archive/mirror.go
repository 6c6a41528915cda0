package archive

import (
	"context"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Uploader stores a local file under an object key.
type Uploader interface {
	PutFile(ctx context.Context, objectKey, localPath string) error
}

type MirrorStats struct {
	QueueDepth    int
	QueueCapacity int
	Enqueued      uint64
	Dropped       uint64
	Uploaded      uint64
	Failed        uint64
}

// Mirror uploads bundled files in the background. Object keys are the file
// path relative to the data dir, under an optional prefix. A nil *Mirror is
// a no-op.
type Mirror struct {
	up      Uploader
	dataDir string
	prefix  string
	logger  *log.Logger

	attempts  int
	retryBase time.Duration

	jobs   chan string
	done   chan struct{}
	once   sync.Once
	closed atomic.Bool

	enqueued atomic.Uint64
	dropped  atomic.Uint64
	uploaded atomic.Uint64
	failed   atomic.Uint64
}

func NewMirror(up Uploader, dataDir, prefix string, queueCapacity int, logger *log.Logger) *Mirror {
	if queueCapacity <= 0 {
		queueCapacity = 256
	}
	m := &Mirror{
		up:        up,
		dataDir:   dataDir,
		prefix:    strings.Trim(strings.ReplaceAll(prefix, "\\", "/"), "/"),
		logger:    logger,
		attempts:  4,
		retryBase: 200 * time.Millisecond,
		jobs:      make(chan string, queueCapacity),
		done:      make(chan struct{}),
	}
	go m.loop()
	return m
}

// Enqueue schedules localPath for upload. It never blocks; a full queue
// drops the file and reports false. Enqueue must not race with Close.
func (m *Mirror) Enqueue(localPath string) bool {
	if m == nil || m.closed.Load() {
		return false
	}
	m.enqueued.Add(1)
	select {
	case m.jobs <- localPath:
		return true
	default:
		m.dropped.Add(1)
		m.printf("archive mirror drop %s: queue full", localPath)
		return false
	}
}

// Close stops accepting files and waits for queued uploads until ctx ends.
func (m *Mirror) Close(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.once.Do(func() {
		m.closed.Store(true)
		close(m.jobs)
	})
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("archive mirror: %d uploads pending: %w", len(m.jobs), ctx.Err())
	}
}

func (m *Mirror) Stats() MirrorStats {
	if m == nil {
		return MirrorStats{}
	}
	return MirrorStats{
		QueueDepth:    len(m.jobs),
		QueueCapacity: cap(m.jobs),
		Enqueued:      m.enqueued.Load(),
		Dropped:       m.dropped.Load(),
		Uploaded:      m.uploaded.Load(),
		Failed:        m.failed.Load(),
	}
}

func (m *Mirror) loop() {
	defer close(m.done)
	for p := range m.jobs {
		key, err := m.objectKey(p)
		if err != nil {
			m.failed.Add(1)
			m.printf("archive mirror skip %s: %v", p, err)
			continue
		}
		if err := m.upload(key, p); err != nil {
			m.failed.Add(1)
			m.printf("archive mirror upload %s failed: %v", key, err)
			continue
		}
		m.uploaded.Add(1)
		m.printf("archive mirror uploaded %s", key)
	}
}

// upload retries with quadratic backoff.
func (m *Mirror) upload(key, localPath string) error {
	var err error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err = m.up.PutFile(ctx, key, localPath)
		cancel()
		if err == nil {
			return nil
		}
		if attempt < m.attempts {
			time.Sleep(time.Duration(attempt*attempt) * m.retryBase)
		}
	}
	return err
}

func (m *Mirror) objectKey(localPath string) (string, error) {
	base, err := filepath.Abs(m.dataDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("outside data dir %s", base)
	}
	if m.prefix != "" {
		rel = path.Join(m.prefix, rel)
	}
	return rel, nil
}

func (m *Mirror) printf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
