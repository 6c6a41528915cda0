package authority

import (
	"context"
	"errors"
	"log"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gridclash.io/internal/metrics"
	"gridclash.io/internal/protocol"
	"gridclash.io/internal/redundancy"
)

// ErrGameOver is returned by Tick and Run once the terminal message was sent.
var ErrGameOver = errors.New("authority: game over")

// maxDatagram bounds the receive buffer; inbound messages are tiny.
const maxDatagram = 2048

// readErrBackoff pauses the receive loop after a socket error.
const readErrBackoff = 50 * time.Millisecond

type Config struct {
	GridN      int
	MaxPlayers int
	RateHz     int
	Redundancy int
}

func (c *Config) normalize() {
	if c.GridN <= 0 {
		c.GridN = DefaultGridN
	}
	if c.MaxPlayers <= 0 {
		c.MaxPlayers = 8
	}
	if c.RateHz <= 0 {
		c.RateHz = 20
	}
	if c.Redundancy <= 0 {
		c.Redundancy = redundancy.DefaultCapacity
	}
}

// CPUSampler reports process CPU usage for the tick log.
type CPUSampler interface {
	Percent() float64
}

// Server is the grid authority: it owns the canonical grid, resolves claims
// in arrival order, and broadcasts redundant snapshots at a fixed rate.
type Server struct {
	cfg  Config
	conn net.PacketConn
	log  *log.Logger
	now  func() time.Time

	metrics *metrics.Authority
	cpu     CPUSampler

	tickLogger  TickLogger
	claimLogger ClaimLogger
	tickHook    func(TickView)

	// mu guards everything below. It is never held across a send.
	mu         sync.Mutex
	grid       *Grid
	clients    registry
	ring       *redundancy.Ring
	firstClaim []uint8
	hasClaimed map[uint8]bool
	over       bool
	result     Result

	// Owned by the broadcaster.
	snapshotID uint32
	seq        uint32
}

func NewServer(cfg Config, conn net.PacketConn, logger *log.Logger) *Server {
	cfg.normalize()
	if logger == nil {
		logger = log.New(log.Writer(), "[authority] ", log.LstdFlags|log.Lmicroseconds)
	}
	return &Server{
		cfg:        cfg,
		conn:       conn,
		log:        logger,
		now:        time.Now,
		metrics:    metrics.NewAuthority(nil),
		grid:       NewGrid(cfg.GridN),
		clients:    newRegistry(),
		ring:       redundancy.New(cfg.Redundancy),
		hasClaimed: map[uint8]bool{},
	}
}

func (s *Server) SetTickLogger(l TickLogger)      { s.tickLogger = l }
func (s *Server) SetClaimLogger(l ClaimLogger)    { s.claimLogger = l }
func (s *Server) SetMetrics(m *metrics.Authority) { s.metrics = m }
func (s *Server) SetCPUSampler(c CPUSampler)      { s.cpu = c }
func (s *Server) SetTickHook(fn func(TickView))   { s.tickHook = fn }
func (s *Server) SetClock(now func() time.Time)   { s.now = now }
func (s *Server) Config() Config                  { return s.cfg }
func (s *Server) TickInterval() time.Duration     { return time.Second / time.Duration(s.cfg.RateHz) }

// Run drives the receive and broadcast activities until ctx is cancelled or
// the match ends, in which case it returns ErrGameOver.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Receive(gctx) })
	g.Go(func() error { return s.runBroadcast(gctx) })
	return g.Wait()
}

// Receive reads datagrams until ctx is done. A pending read is released by
// moving the socket deadline into the past.
func (s *Server) Receive(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.conn.SetReadDeadline(time.Now()) })
	defer stop()

	buf := make([]byte, maxDatagram)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Printf("recv: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(readErrBackoff):
			}
			continue
		}
		s.handleSafely(buf[:n], addr)
	}
}

func (s *Server) handleSafely(b []byte, from net.Addr) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Printf("recv: panic handling packet from %v: %v", from, r)
		}
	}()
	s.HandlePacket(b, from)
}

// HandlePacket validates and dispatches one inbound datagram.
func (s *Server) HandlePacket(b []byte, from net.Addr) {
	p, err := protocol.Decode(b)
	if err != nil {
		s.metrics.Dropped.WithLabelValues(protocol.DropReason(err)).Inc()
		return
	}
	switch p.Header.Type {
	case protocol.TypeInit:
		player, err := protocol.DecodeInit(p.Payload)
		if err != nil {
			s.metrics.Dropped.WithLabelValues(protocol.DropMalformed).Inc()
			return
		}
		s.register(from, player)
	case protocol.TypeEvent:
		ev, err := protocol.DecodeEvent(p.Payload)
		if err != nil {
			s.metrics.Dropped.WithLabelValues(protocol.DropMalformed).Inc()
			s.log.Printf("malformed EVENT from %v: %v", from, err)
			return
		}
		s.HandleEvent(from, ev)
	default:
		// ACK is reserved; snapshots and game-over only flow outward.
	}
}

func (s *Server) register(from net.Addr, player uint8) {
	added, n := s.addClient(from)
	if !added {
		return
	}
	s.metrics.Registrations.Inc()
	s.metrics.Clients.Set(float64(n))
	s.log.Printf("INIT from %v player=%d clients=%d", from, player, n)
}

func (s *Server) addClient(from net.Addr) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients.add(from), s.clients.len()
}

// Clients returns the number of registered endpoints.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients.len()
}

// Owner returns the current owner of cell.
func (s *Server) Owner(cell int) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grid.Owner(cell)
}

// Cells returns a copy of the canonical grid.
func (s *Server) Cells() []uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grid.Cells()
}

// View returns the current state for spectators.
func (s *Server) View() TickView {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := TickView{
		GridN:       s.grid.Size(),
		Cells:       s.grid.Cells(),
		Clients:     s.clients.len(),
		TimestampMS: protocol.NowMS(s.now()),
	}
	if s.over {
		g := s.result.GameOver
		v.GameOver = &g
	}
	return v
}

// Result returns the final match state once the game is over.
func (s *Server) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.over
}
