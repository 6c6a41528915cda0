package log

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gridclash.io/internal/authority"
	"gridclash.io/internal/client"
)

// Column order of each CSV artifact. Downstream analysis reads these by name.
var (
	ServerSnapshotColumns    = []string{"send_time_ms", "snapshot_id", "seq_num", "clients_count", "cpu_percent", "payload_bytes"}
	ServerEventColumns       = []string{"recv_time_ms", "from", "player_id", "event_type", "cell_id", "client_ts", "accepted"}
	ClientSnapshotColumns    = []string{"recv_time_ms", "snapshot_id", "seq_num", "server_ts_ms", "latency_ms", "jitter_ms", "interarrival_jitter_ms", "redundancy_used"}
	ClientDiagnosticsColumns = []string{"time_ms", "packets_received", "duplicates", "duplicate_rate", "sequence_gaps"}
)

// csvFile writes a header once and flushes after every row.
type csvFile struct {
	path string

	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

func createCSV(path string, header []string) (*csvFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	c := &csvFile{path: path, f: f, w: csv.NewWriter(f)}
	if err := c.write(header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: header: %w", filepath.Base(path), err)
	}
	return c, nil
}

func (c *csvFile) write(row []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.w.Write(row); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

// Path is where the file was created.
func (c *csvFile) Path() string { return c.path }

func (c *csvFile) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		_ = c.f.Close()
		return err
	}
	return c.f.Close()
}

func u64(v uint64) string  { return strconv.FormatUint(v, 10) }
func u32(v uint32) string  { return strconv.FormatUint(uint64(v), 10) }
func f64(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
func itoa(v int) string    { return strconv.Itoa(v) }

func boolInt(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// ServerSnapshotCSV is server_snapshots.csv.
type ServerSnapshotCSV struct{ *csvFile }

func NewServerSnapshotCSV(dir string) (*ServerSnapshotCSV, error) {
	c, err := createCSV(filepath.Join(dir, "server_snapshots.csv"), ServerSnapshotColumns)
	if err != nil {
		return nil, err
	}
	return &ServerSnapshotCSV{c}, nil
}

func (s *ServerSnapshotCSV) WriteTick(r authority.TickRecord) error {
	return s.write([]string{
		u64(r.SendTimeMS), u32(r.SnapshotID), u32(r.Seq), itoa(r.Clients), f64(r.CPUPercent), itoa(r.PayloadBytes),
	})
}

// ServerEventCSV is server_events.csv.
type ServerEventCSV struct{ *csvFile }

func NewServerEventCSV(dir string) (*ServerEventCSV, error) {
	c, err := createCSV(filepath.Join(dir, "server_events.csv"), ServerEventColumns)
	if err != nil {
		return nil, err
	}
	return &ServerEventCSV{c}, nil
}

func (s *ServerEventCSV) WriteClaim(r authority.ClaimRecord) error {
	return s.write([]string{
		u64(r.RecvTimeMS), r.From, itoa(int(r.PlayerID)), itoa(int(r.ClaimType)), itoa(int(r.CellID)), u64(r.ClientTS), boolInt(r.Accepted),
	})
}

// ClientLogPaths returns the per-packet and diagnostics file paths for one
// client run. stamp is usually the start time as 20060102_150405.
func ClientLogPaths(dir string, playerID uint8, scenario, stamp string) (snapshots, diagnostics string) {
	base := fmt.Sprintf("client_%d_%%s_%s_%s.csv", playerID, scenario, stamp)
	return filepath.Join(dir, fmt.Sprintf(base, "snapshots")), filepath.Join(dir, fmt.Sprintf(base, "diagnostics"))
}

// ClientSnapshotCSV is client_<pid>_snapshots_<scenario>_<stamp>.csv.
type ClientSnapshotCSV struct{ *csvFile }

func NewClientSnapshotCSV(path string) (*ClientSnapshotCSV, error) {
	c, err := createCSV(path, ClientSnapshotColumns)
	if err != nil {
		return nil, err
	}
	return &ClientSnapshotCSV{c}, nil
}

func (s *ClientSnapshotCSV) WritePacket(r client.PacketRecord) error {
	return s.write([]string{
		u64(r.RecvTimeMS), u32(r.SnapshotID), u32(r.Seq), u64(r.ServerTSMS),
		f64(r.LatencyMS), f64(r.JitterMS), f64(r.InterarrivalJitterMS), itoa(r.RedundancyUsed),
	})
}

// ClientDiagnosticsCSV is client_<pid>_diagnostics_<scenario>_<stamp>.csv.
type ClientDiagnosticsCSV struct{ *csvFile }

func NewClientDiagnosticsCSV(path string) (*ClientDiagnosticsCSV, error) {
	c, err := createCSV(path, ClientDiagnosticsColumns)
	if err != nil {
		return nil, err
	}
	return &ClientDiagnosticsCSV{c}, nil
}

func (s *ClientDiagnosticsCSV) WriteDiagnostics(r client.DiagnosticsRecord) error {
	return s.write([]string{
		u64(r.TimeMS), u64(r.PacketsReceived), u64(r.Duplicates), strconv.FormatFloat(r.DuplicateRate, 'f', 6, 64), u64(r.SequenceGaps),
	})
}
