package authority

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gridclash.io/internal/protocol"
)

type tickSink struct{ recs []TickRecord }

func (t *tickSink) WriteTick(r TickRecord) error {
	t.recs = append(t.recs, r)
	return nil
}

// flakyTickLog panics on its first write and records the rest.
type flakyTickLog struct {
	calls int
	recs  []TickRecord
}

func (f *flakyTickLog) WriteTick(r TickRecord) error {
	f.calls++
	if f.calls == 1 {
		panic("disk full")
	}
	f.recs = append(f.recs, r)
	return nil
}

type panicCPU struct{}

func (panicCPU) Percent() float64 { panic("no /proc") }

func decodeAll(t *testing.T, pkts []sentPacket) []protocol.Packet {
	t.Helper()
	out := make([]protocol.Packet, 0, len(pkts))
	for _, p := range pkts {
		d, err := protocol.Decode(p.data)
		require.NoError(t, err)
		out = append(out, d)
	}
	return out
}

func TestTick_RedundantPayloadGrowsToK(t *testing.T) {
	s, conn := newTestServer(Config{GridN: 4, Redundancy: 3})
	s.register(udpAddr(7000), 1)
	sink := &tickSink{}
	s.SetTickLogger(sink)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Tick())
	}
	pkts := decodeAll(t, conn.sent())
	require.Len(t, pkts, 5)
	wantBlobs := []int{1, 2, 3, 3, 3}
	for i, p := range pkts {
		require.Equal(t, protocol.TypeSnapshot, p.Header.Type)
		require.Equal(t, uint32(i), p.Header.SnapshotID)
		require.Equal(t, uint32(i), p.Header.Seq)
		require.Len(t, protocol.SplitSnapshots(p.Payload, 4), wantBlobs[i])
		require.Equal(t, int(p.Header.PayloadLen), sink.recs[i].PayloadBytes)
		require.Equal(t, 1, sink.recs[i].Clients)
	}
}

func TestTick_NewestBlobFirst(t *testing.T) {
	s, conn := newTestServer(Config{GridN: 2, MaxPlayers: 2})
	s.register(udpAddr(7000), 1)

	require.NoError(t, s.Tick())
	s.HandleEvent(udpAddr(7000), protocol.Event{PlayerID: 2, CellID: 1})
	require.NoError(t, s.Tick())

	pkts := decodeAll(t, conn.sent())
	blobs := protocol.SplitSnapshots(pkts[1].Payload, 2)
	require.Len(t, blobs, 2)
	require.Equal(t, []byte{0, 2, 0, 0}, blobs[0])
	require.Equal(t, []byte{0, 0, 0, 0}, blobs[1])
}

func TestTick_SendFailureKeepsServingOthers(t *testing.T) {
	s, conn := newTestServer(Config{GridN: 2})
	bad, good := udpAddr(7001), udpAddr(7002)
	s.register(bad, 1)
	s.register(good, 2)
	conn.fail[bad.String()] = true

	require.NoError(t, s.Tick())
	require.NoError(t, s.Tick())
	sent := conn.sent()
	require.Len(t, sent, 2)
	for _, p := range sent {
		require.Equal(t, good.String(), p.to)
	}
	require.Equal(t, 2, s.Clients())
}

func TestTick_GameOverSentTwiceWithFinalIDs(t *testing.T) {
	s, conn := newTestServer(Config{GridN: 2, MaxPlayers: 2})
	a, b := udpAddr(7001), udpAddr(7002)
	s.register(a, 1)
	s.register(b, 2)
	require.NoError(t, s.Tick())

	s.HandleEvent(a, protocol.Event{PlayerID: 2, CellID: 0})
	s.HandleEvent(a, protocol.Event{PlayerID: 1, CellID: 1})
	s.HandleEvent(a, protocol.Event{PlayerID: 1, CellID: 2})
	s.HandleEvent(a, protocol.Event{PlayerID: 2, CellID: 3})
	conn.reset()

	var views []TickView
	s.SetTickHook(func(v TickView) { views = append(views, v) })
	require.ErrorIs(t, s.Tick(), ErrGameOver)

	pkts := decodeAll(t, conn.sent())
	require.Len(t, pkts, 2+2*GameOverCopies)
	final := pkts[0].Header
	require.Equal(t, protocol.TypeSnapshot, final.Type)

	perEndpoint := map[string]int{}
	for i, p := range pkts[2:] {
		require.Equal(t, protocol.TypeGameOver, p.Header.Type)
		require.Equal(t, final.SnapshotID, p.Header.SnapshotID)
		require.Equal(t, final.Seq, p.Header.Seq)
		g, err := protocol.DecodeGameOver(p.Payload)
		require.NoError(t, err)
		// 2-2 tie; player 2 claimed first.
		require.Equal(t, uint8(2), g.Winner)
		perEndpoint[conn.sent()[2+i].to]++
	}
	require.Equal(t, map[string]int{a.String(): 2, b.String(): 2}, perEndpoint)

	require.Len(t, views, 1)
	require.NotNil(t, views[0].GameOver)
	res, over := s.Result()
	require.True(t, over)
	require.Equal(t, final.SnapshotID, res.LastSnapshotID)
	require.Equal(t, Digest(2, []uint8{2, 1, 1, 2}), res.Digest)
}

func TestTick_PanickingTickLogKeepsSequence(t *testing.T) {
	s, conn := newTestServer(Config{GridN: 2})
	s.register(udpAddr(7000), 1)
	sink := &flakyTickLog{}
	s.SetTickLogger(sink)

	require.NoError(t, s.tickSafely())
	require.NoError(t, s.tickSafely())

	pkts := decodeAll(t, conn.sent())
	require.Len(t, pkts, 2)
	var seqs []uint32
	for _, p := range pkts {
		seqs = append(seqs, p.Header.Seq)
	}
	require.Equal(t, []uint32{0, 1}, seqs)
	require.Len(t, sink.recs, 1)
	require.Equal(t, uint32(1), sink.recs[0].Seq)

	// The server lock must be free again.
	require.Equal(t, 1, s.Clients())
}

func TestTick_PanickingSinksStillEndMatch(t *testing.T) {
	s, conn := newTestServer(Config{GridN: 1, MaxPlayers: 1})
	s.register(udpAddr(7000), 1)
	s.HandleEvent(udpAddr(7000), protocol.Event{PlayerID: 1, CellID: 0})
	s.SetTickLogger(&flakyTickLog{})
	s.SetCPUSampler(panicCPU{})
	s.SetTickHook(func(TickView) { panic("observer gone") })

	require.ErrorIs(t, s.Tick(), ErrGameOver)

	var types []protocol.MsgType
	for _, p := range decodeAll(t, conn.sent()) {
		types = append(types, p.Header.Type)
	}
	require.Equal(t, []protocol.MsgType{protocol.TypeSnapshot, protocol.TypeGameOver, protocol.TypeGameOver}, types)
	require.ErrorIs(t, s.Tick(), ErrGameOver)
	require.Len(t, conn.sent(), 3)
}

func TestTickSafely_RecoversAndReleasesLock(t *testing.T) {
	s, conn := newTestServer(Config{GridN: 2})
	s.register(udpAddr(7000), 1)
	conn.mu.Lock()
	conn.panics = true
	conn.mu.Unlock()

	require.NoError(t, s.tickSafely())

	conn.mu.Lock()
	conn.panics = false
	conn.mu.Unlock()
	require.NoError(t, s.Tick())
	require.Len(t, conn.sent(), 1)
}

func TestRun_EndsOnGameOver(t *testing.T) {
	s, _ := newTestServer(Config{GridN: 1, MaxPlayers: 1, RateHz: 200})
	s.HandleEvent(udpAddr(1), protocol.Event{PlayerID: 1, CellID: 0})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.Run(ctx)
	if !errors.Is(err, ErrGameOver) {
		t.Fatalf("Run=%v want ErrGameOver", err)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	s, _ := newTestServer(Config{GridN: 4, RateHz: 100})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}
