package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gridclash.io/internal/metrics"
	"gridclash.io/internal/protocol"
)

// EventCopies is how many times each claim request is sent.
const EventCopies = 2

// maxDatagram fits the largest packet the header can describe.
const maxDatagram = protocol.HeaderSize + protocol.MaxPayload

// readErrBackoff pauses the receive loop after a socket error.
const readErrBackoff = 50 * time.Millisecond

type Config struct {
	PlayerID       uint8
	GridN          int
	ExpectedRateHz int
	FlushInterval  time.Duration
	// ClaimInterval paces the headless claim driver; 0 disables it.
	ClaimInterval time.Duration
}

func (c *Config) normalize() {
	if c.GridN <= 0 {
		c.GridN = 10
	}
	if c.ExpectedRateHz <= 0 {
		c.ExpectedRateHz = 20
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
}

// Client mirrors the authority's grid from redundant snapshots and sends
// claim requests for cells it sees as unclaimed.
type Client struct {
	cfg    Config
	conn   net.PacketConn
	server net.Addr
	log    *log.Logger
	now    func() time.Time

	metrics     *metrics.Client
	packetLog   PacketLogger
	diagLog     DiagnosticsLogger
	rng         *rand.Rand
	finishedSig chan struct{}

	mu          sync.Mutex
	grid        []uint8
	seq         SeqTracker
	redundancy  uint64
	dropped     uint64
	claimsSent  uint64
	lastLatency float64
	haveLatency bool
	lastArrival time.Time
	result      protocol.GameOver
	finished    bool
}

func New(cfg Config, conn net.PacketConn, server net.Addr, logger *log.Logger) *Client {
	cfg.normalize()
	if logger == nil {
		logger = log.New(log.Writer(), "[client] ", log.LstdFlags|log.Lmicroseconds)
	}
	return &Client{
		cfg:         cfg,
		conn:        conn,
		server:      server,
		log:         logger,
		now:         time.Now,
		metrics:     metrics.NewClient(nil),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		finishedSig: make(chan struct{}),
		grid:        make([]uint8, cfg.GridN*cfg.GridN),
	}
}

func (c *Client) SetPacketLogger(l PacketLogger)           { c.packetLog = l }
func (c *Client) SetDiagnosticsLogger(l DiagnosticsLogger) { c.diagLog = l }
func (c *Client) SetMetrics(m *metrics.Client)             { c.metrics = m }
func (c *Client) SetClock(now func() time.Time)            { c.now = now }
func (c *Client) SetRand(r *rand.Rand)                     { c.rng = r }
func (c *Client) PlayerID() uint8                          { return c.cfg.PlayerID }

// Register announces this endpoint to the authority.
func (c *Client) Register() error {
	pkt, err := protocol.NewInitPacket(c.cfg.PlayerID, protocol.NowMS(c.now()))
	if err != nil {
		return err
	}
	if _, err := c.conn.WriteTo(pkt, c.server); err != nil {
		return fmt.Errorf("send INIT: %w", err)
	}
	return nil
}

// Claim requests cell if the local grid shows it unclaimed. The request is
// sent EventCopies times back to back; the grid only changes when a later
// snapshot shows the authority's decision. It reports whether a request went
// out.
func (c *Client) Claim(cell int) (bool, error) {
	c.mu.Lock()
	ok := !c.finished && cell >= 0 && cell < len(c.grid) && c.grid[cell] == 0
	c.mu.Unlock()
	if !ok {
		return false, nil
	}

	pkt, err := protocol.NewEventPacket(protocol.Event{
		PlayerID:   c.cfg.PlayerID,
		ClaimType:  protocol.ClaimAcquire,
		CellID:     uint16(cell),
		ClientTSMS: protocol.NowMS(c.now()),
	})
	if err != nil {
		return false, err
	}
	var sendErr error
	for i := 0; i < EventCopies; i++ {
		if _, err := c.conn.WriteTo(pkt, c.server); err != nil {
			sendErr = errors.Join(sendErr, err)
		}
	}
	c.mu.Lock()
	c.claimsSent++
	c.mu.Unlock()
	c.metrics.ClaimsSent.Inc()
	if sendErr != nil {
		return true, fmt.Errorf("send EVENT cell=%d: %w", cell, sendErr)
	}
	return true, nil
}

// HandlePacket processes one datagram received at recv. Invalid datagrams
// are counted and dropped.
func (c *Client) HandlePacket(b []byte, recv time.Time) {
	p, err := protocol.Decode(b)
	if err != nil {
		c.drop(protocol.DropReason(err))
		return
	}
	switch p.Header.Type {
	case protocol.TypeSnapshot:
		c.onSnapshot(p, recv)
	case protocol.TypeGameOver:
		g, err := protocol.DecodeGameOver(p.Payload)
		if err != nil {
			c.drop(protocol.DropMalformed)
			return
		}
		c.onGameOver(g)
	default:
	}
}

func (c *Client) drop(reason string) {
	c.mu.Lock()
	c.dropped++
	c.mu.Unlock()
	c.metrics.Dropped.WithLabelValues(reason).Inc()
}

func (c *Client) onSnapshot(p protocol.Packet, recv time.Time) {
	blobs := protocol.SplitSnapshots(p.Payload, c.cfg.GridN)
	recvMS := protocol.NowMS(recv)
	latency := float64(int64(recvMS) - int64(p.Header.TimestampMS))
	expected := float64(time.Second/time.Duration(c.cfg.ExpectedRateHz)) / float64(time.Millisecond)

	c.mu.Lock()
	rec := PacketRecord{
		RecvTimeMS: recvMS,
		SnapshotID: p.Header.SnapshotID,
		Seq:        p.Header.Seq,
		ServerTSMS: p.Header.TimestampMS,
		LatencyMS:  latency,
	}
	if c.haveLatency {
		rec.JitterMS = math.Abs(latency - c.lastLatency)
	}
	if !c.lastArrival.IsZero() {
		actual := float64(recv.Sub(c.lastArrival)) / float64(time.Millisecond)
		rec.InterarrivalJitterMS = math.Abs(actual - expected)
	}
	c.lastLatency, c.haveLatency = latency, true
	c.lastArrival = recv

	before := c.seq
	stale := c.seq.Observe(p.Header.Seq)
	if len(blobs) > 1 {
		rec.RedundancyUsed = len(blobs) - 1
		c.redundancy += uint64(rec.RedundancyUsed)
	}
	if !stale && len(blobs) > 0 {
		copy(c.grid, blobs[0])
	}
	gaps := c.seq.Lost - before.Lost
	c.mu.Unlock()

	c.metrics.Received.Inc()
	c.metrics.Latency.Observe(latency)
	if stale {
		c.metrics.Duplicates.Inc()
	}
	if gaps > 0 {
		c.metrics.SequenceGaps.Add(float64(gaps))
		c.log.Printf("seq gap: %d snapshot(s) missed before seq=%d", gaps, p.Header.Seq)
	}
	if rec.RedundancyUsed > 0 {
		c.metrics.Redundancy.Add(float64(rec.RedundancyUsed))
	}
	if c.packetLog != nil {
		if err := c.packetLog.WritePacket(rec); err != nil {
			c.log.Printf("packet log: %v", err)
		}
	}
}

func (c *Client) onGameOver(g protocol.GameOver) {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return
	}
	c.finished = true
	c.result = g
	c.mu.Unlock()
	close(c.finishedSig)
	c.log.Printf("GAME OVER winner=%d tallies=%v", g.Winner, g.Tallies)
}

// Finished is closed when the first GAME_OVER arrives.
func (c *Client) Finished() <-chan struct{} { return c.finishedSig }

// Result returns the terminal message once received.
func (c *Client) Result() (protocol.GameOver, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result, c.finished
}

// Grid returns a copy of the local view.
func (c *Client) Grid() []uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint8(nil), c.grid...)
}

func (c *Client) Owner(cell int) uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cell < 0 || cell >= len(c.grid) {
		return 0
	}
	return c.grid[cell]
}

func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		PacketsReceived: c.seq.Received,
		Duplicates:      c.seq.Duplicates,
		SequenceGaps:    c.seq.Lost,
		RedundancyUsed:  c.redundancy,
		Dropped:         c.dropped,
		ClaimsSent:      c.claimsSent,
		DuplicateRate:   c.seq.DuplicateRate(),
	}
}

// Run receives snapshots, flushes diagnostics and, when configured, drives
// claims until ctx is done. A final diagnostics row is written on return.
func (c *Client) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Receive(gctx) })
	g.Go(func() error { return c.flushLoop(gctx) })
	if c.cfg.ClaimInterval > 0 {
		g.Go(func() error { return c.claimLoop(gctx) })
	}
	err := g.Wait()
	c.FlushDiagnostics()
	return err
}

// Receive reads datagrams until ctx is done.
func (c *Client) Receive(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetReadDeadline(time.Now()) })
	defer stop()

	buf := make([]byte, maxDatagram)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, _, err := c.conn.ReadFrom(buf)
		recv := c.now()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			c.log.Printf("recv: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(readErrBackoff):
			}
			continue
		}
		c.handleSafely(buf[:n], recv)
	}
}

func (c *Client) handleSafely(b []byte, recv time.Time) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Printf("recv: panic handling packet: %v", r)
		}
	}()
	c.HandlePacket(b, recv)
}

// FlushDiagnostics writes one diagnostics row.
func (c *Client) FlushDiagnostics() {
	if c.diagLog == nil {
		return
	}
	s := c.Stats()
	rec := DiagnosticsRecord{
		TimeMS:          protocol.NowMS(c.now()),
		PacketsReceived: s.PacketsReceived,
		Duplicates:      s.Duplicates,
		DuplicateRate:   s.DuplicateRate,
		SequenceGaps:    s.SequenceGaps,
	}
	if err := c.diagLog.WriteDiagnostics(rec); err != nil {
		c.log.Printf("diagnostics log: %v", err)
	}
}

func (c *Client) flushLoop(ctx context.Context) error {
	t := time.NewTicker(c.cfg.FlushInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			c.FlushDiagnostics()
		}
	}
}

// claimLoop picks a random cell the local grid shows unclaimed each interval.
func (c *Client) claimLoop(ctx context.Context) error {
	t := time.NewTicker(c.cfg.ClaimInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.finishedSig:
			return nil
		case <-t.C:
			cell, ok := c.pickUnclaimed()
			if !ok {
				continue
			}
			if _, err := c.Claim(cell); err != nil {
				c.log.Printf("claim: %v", err)
			}
		}
	}
}

func (c *Client) pickUnclaimed() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	free := make([]int, 0, len(c.grid))
	for i, owner := range c.grid {
		if owner == 0 {
			free = append(free, i)
		}
	}
	if len(free) == 0 {
		return 0, false
	}
	return free[c.rng.Intn(len(free))], true
}
