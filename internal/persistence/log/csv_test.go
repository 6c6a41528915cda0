package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"gridclash.io/internal/authority"
	"gridclash.io/internal/client"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(b)), "\n")
}

func TestServerCSVs(t *testing.T) {
	dir := t.TempDir()
	snaps, err := NewServerSnapshotCSV(dir)
	require.NoError(t, err)
	events, err := NewServerEventCSV(dir)
	require.NoError(t, err)

	require.NoError(t, snaps.WriteTick(authority.TickRecord{SendTimeMS: 100, SnapshotID: 3, Seq: 3, Clients: 2, CPUPercent: 1.5, PayloadBytes: 303}))
	require.NoError(t, events.WriteClaim(authority.ClaimRecord{RecvTimeMS: 101, From: "127.0.0.1:5000", PlayerID: 2, CellID: 9, ClientTS: 99, Accepted: true}))
	require.NoError(t, snaps.Close())
	require.NoError(t, events.Close())

	require.Equal(t, []string{
		"send_time_ms,snapshot_id,seq_num,clients_count,cpu_percent,payload_bytes",
		"100,3,3,2,1.500,303",
	}, readLines(t, filepath.Join(dir, "server_snapshots.csv")))
	require.Equal(t, []string{
		"recv_time_ms,from,player_id,event_type,cell_id,client_ts,accepted",
		"101,127.0.0.1:5000,2,0,9,99,1",
	}, readLines(t, filepath.Join(dir, "server_events.csv")))
}

func TestClientCSVs(t *testing.T) {
	dir := t.TempDir()
	snapPath, diagPath := ClientLogPaths(dir, 3, "loss2", "20260301_101500")
	require.Equal(t, "client_3_snapshots_loss2_20260301_101500.csv", filepath.Base(snapPath))
	require.Equal(t, "client_3_diagnostics_loss2_20260301_101500.csv", filepath.Base(diagPath))

	snaps, err := NewClientSnapshotCSV(snapPath)
	require.NoError(t, err)
	diags, err := NewClientDiagnosticsCSV(diagPath)
	require.NoError(t, err)
	require.NoError(t, snaps.WritePacket(client.PacketRecord{RecvTimeMS: 10, SnapshotID: 1, Seq: 1, ServerTSMS: 8, LatencyMS: 2, JitterMS: 0.5, InterarrivalJitterMS: 1.25, RedundancyUsed: 2}))
	require.NoError(t, diags.WriteDiagnostics(client.DiagnosticsRecord{TimeMS: 1000, PacketsReceived: 5, Duplicates: 1, DuplicateRate: 0.2, SequenceGaps: 2}))
	require.NoError(t, snaps.Close())
	require.NoError(t, diags.Close())

	require.Equal(t, []string{
		strings.Join(ClientSnapshotColumns, ","),
		"10,1,1,8,2.000,0.500,1.250,2",
	}, readLines(t, snapPath))
	require.Equal(t, []string{
		strings.Join(ClientDiagnosticsColumns, ","),
		"1000,5,1,0.200000,2",
	}, readLines(t, diagPath))
}
