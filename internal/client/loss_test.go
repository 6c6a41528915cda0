package client_test

import (
	"io"
	"log"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gridclash.io/internal/authority"
	"gridclash.io/internal/client"
)

// lossyLink carries authority datagrams straight into a client, dropping
// whole broadcasts while dropping is set.
type lossyLink struct {
	mu       sync.Mutex
	dropping bool
	deliver  func([]byte)
}

func (l *lossyLink) setDropping(v bool) {
	l.mu.Lock()
	l.dropping = v
	l.mu.Unlock()
}

func (l *lossyLink) WriteTo(b []byte, _ net.Addr) (int, error) {
	l.mu.Lock()
	drop := l.dropping
	l.mu.Unlock()
	if !drop {
		l.deliver(append([]byte(nil), b...))
	}
	return len(b), nil
}

func (l *lossyLink) ReadFrom([]byte) (int, net.Addr, error) { return 0, nil, net.ErrClosed }
func (l *lossyLink) Close() error                           { return nil }
func (l *lossyLink) LocalAddr() net.Addr                    { return &net.UDPAddr{} }
func (l *lossyLink) SetDeadline(time.Time) error            { return nil }
func (l *lossyLink) SetReadDeadline(time.Time) error        { return nil }
func (l *lossyLink) SetWriteDeadline(time.Time) error       { return nil }

func TestLossResilience_TwoDroppedBroadcasts(t *testing.T) {
	quiet := log.New(io.Discard, "", 0)
	clientAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40001}

	down := &lossyLink{}
	srv := authority.NewServer(authority.Config{GridN: 4, MaxPlayers: 2, Redundancy: 3}, down, quiet)
	up := &lossyLink{deliver: func(b []byte) { srv.HandlePacket(b, clientAddr) }}
	cl := client.New(client.Config{PlayerID: 1, GridN: 4}, up, &net.UDPAddr{Port: 10000}, quiet)
	down.deliver = func(b []byte) { cl.HandlePacket(b, time.Now()) }

	require.NoError(t, cl.Register())
	require.NoError(t, srv.Tick())

	// The claim lands while the next two broadcasts are lost.
	sent, err := cl.Claim(5)
	require.NoError(t, err)
	require.True(t, sent)
	down.setDropping(true)
	require.NoError(t, srv.Tick())
	require.NoError(t, srv.Tick())
	require.Zero(t, cl.Owner(5))

	down.setDropping(false)
	require.NoError(t, srv.Tick())

	require.Equal(t, srv.Cells(), cl.Grid())
	require.Equal(t, uint8(1), cl.Owner(5))
	s := cl.Stats()
	require.Equal(t, uint64(2), s.SequenceGaps)
	require.Equal(t, uint64(2), s.PacketsReceived)
	require.Zero(t, s.Duplicates)
}
