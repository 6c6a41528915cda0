package client

import (
	"context"
	"io"
	"log"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// brittleLog panics on its first row and keeps the rest.
type brittleLog struct {
	mu    sync.Mutex
	calls int
	seqs  []uint32
}

func (b *brittleLog) WritePacket(p PacketRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.calls == 1 {
		panic("csv writer closed")
	}
	b.seqs = append(b.seqs, p.Seq)
	return nil
}

func (b *brittleLog) rows() []uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]uint32(nil), b.seqs...)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out: %s", msg)
}

func TestReceive_SurvivesJunkAndSinkPanics(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()
	peer, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer peer.Close()

	c := New(Config{PlayerID: 1, GridN: 2}, conn, peer.LocalAddr(), log.New(io.Discard, "", 0))
	sink := &brittleLog{}
	c.SetPacketLogger(sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Receive(ctx) }()

	send := func(b []byte) {
		t.Helper()
		_, err := peer.WriteTo(b, conn.LocalAddr())
		require.NoError(t, err)
	}

	valid := snapshotPacket(t, 2, 0, 0, []uint8{1, 0, 0, 0})
	corrupt := append([]byte(nil), valid...)
	corrupt[len(corrupt)-1] ^= 0xFF
	send([]byte("not a gsync datagram"))
	send(valid[:10])
	send(corrupt)
	waitFor(t, func() bool { return c.Stats().Dropped == 3 }, "junk dropped")

	send(valid)
	waitFor(t, func() bool { return c.Stats().PacketsReceived == 1 }, "first snapshot")
	send(snapshotPacket(t, 2, 1, 0, []uint8{1, 2, 0, 0}, []uint8{1, 0, 0, 0}))
	waitFor(t, func() bool { return c.Stats().PacketsReceived == 2 }, "second snapshot")

	require.Equal(t, []uint8{1, 2, 0, 0}, c.Grid())
	require.Equal(t, []uint32{1}, sink.rows())
	require.Equal(t, uint64(3), c.Stats().Dropped)

	cancel()
	require.NoError(t, <-done)
}
