package authority

import (
	"context"
	"errors"
	"net"
	"time"

	"gridclash.io/internal/protocol"
)

// tickFrame is the state captured under the lock at the start of a tick.
type tickFrame struct {
	payload    []byte
	clients    []net.Addr
	cells      []uint8
	claimed    int
	full       bool
	snapshotID uint32
	seq        uint32
	result     Result
}

// Tick runs one broadcast: snapshot the grid into the redundancy ring, send
// the combined payload to every endpoint registered at tick start, advance
// the snapshot id and sequence number by one, and log the tick. If the
// snapshot shows a full grid, the terminal message follows the snapshot and
// Tick returns ErrGameOver. Later calls return ErrGameOver without sending.
//
// Sends and counter updates finish before any sink runs; a failing sink
// cannot repeat a sequence number or suppress the terminal message.
func (s *Server) Tick() error {
	start := s.now()
	f, ok := s.captureTick(start)
	if !ok {
		return ErrGameOver
	}

	ts := protocol.NowMS(start)
	pkt, err := protocol.NewSnapshotPacket(f.snapshotID, f.seq, ts, f.payload)
	if err != nil {
		return err
	}
	s.sendAll(f.clients, pkt)
	s.snapshotID++
	s.seq++
	if f.full {
		s.sendGameOver(f.clients, f.snapshotID, f.seq, f.result.GameOver)
	}

	rec := TickRecord{
		SendTimeMS:   ts,
		SnapshotID:   f.snapshotID,
		Seq:          f.seq,
		Clients:      len(f.clients),
		PayloadBytes: len(f.payload),
		Digest:       Digest(s.cfg.GridN, f.cells),
		Claimed:      f.claimed,
	}
	view := TickView{
		SnapshotID:  f.snapshotID,
		Seq:         f.seq,
		TimestampMS: ts,
		GridN:       s.cfg.GridN,
		Cells:       f.cells,
		Clients:     len(f.clients),
	}
	if f.full {
		view.GameOver = &f.result.GameOver
	}

	if s.cpu != nil {
		s.guard("cpu sampler", func() { rec.CPUPercent = s.cpu.Percent() })
	}
	if s.tickLogger != nil {
		s.guard("tick log", func() {
			if err := s.tickLogger.WriteTick(rec); err != nil {
				s.log.Printf("tick log: %v", err)
			}
		})
	}
	if s.tickHook != nil {
		s.guard("tick hook", func() { s.tickHook(view) })
	}
	s.metrics.Ticks.Inc()
	s.metrics.PayloadBytes.Set(float64(len(f.payload)))
	s.metrics.TickDuration.Observe(s.now().Sub(start).Seconds())
	if f.full {
		return ErrGameOver
	}
	return nil
}

// captureTick pushes the current grid into the ring and returns what the
// tick sends. It reports false once the match is over.
func (s *Server) captureTick(start time.Time) (tickFrame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.over {
		return tickFrame{}, false
	}
	s.ring.Push(s.grid.Snapshot())
	f := tickFrame{
		payload:    s.ring.Combined(),
		clients:    s.clients.list(),
		cells:      s.grid.Cells(),
		claimed:    s.grid.Claimed(),
		full:       s.grid.Full(),
		snapshotID: s.snapshotID,
		seq:        s.seq,
	}
	if f.full {
		s.over = true
		s.result = Result{
			GameOver:        ComputeResult(f.cells, s.firstClaim),
			GridN:           s.grid.Size(),
			Cells:           f.cells,
			FirstClaimOrder: append([]uint8(nil), s.firstClaim...),
			Clients:         addrStrings(f.clients),
			LastSnapshotID:  f.snapshotID,
			Digest:          Digest(s.grid.Size(), f.cells),
			EndedAtMS:       protocol.NowMS(start),
		}
		f.result = s.result
	}
	return f, true
}

// guard runs a side output, logging instead of propagating a panic.
func (s *Server) guard(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Printf("%s: panic: %v", what, r)
		}
	}()
	fn()
}

// sendGameOver delivers the terminal message GameOverCopies times back to back.
// No acknowledgment is collected.
func (s *Server) sendGameOver(clients []net.Addr, snapshotID, seq uint32, g protocol.GameOver) {
	pkt, err := protocol.NewGameOverPacket(snapshotID, seq, protocol.NowMS(s.now()), g)
	if err != nil {
		s.log.Printf("game over: %v", err)
		return
	}
	for i := 0; i < GameOverCopies; i++ {
		s.sendAll(clients, pkt)
	}
	s.log.Printf("GAME OVER winner=%d tallies=%v clients=%d", g.Winner, g.Tallies, len(clients))
}

// sendAll writes pkt to every endpoint. A failing endpoint is logged and
// skipped; it stays registered.
func (s *Server) sendAll(clients []net.Addr, pkt []byte) {
	for _, addr := range clients {
		if _, err := s.conn.WriteTo(pkt, addr); err != nil {
			s.metrics.SendErrors.Inc()
			s.log.Printf("send to %v: %v", addr, err)
			continue
		}
		s.metrics.PacketsSent.Inc()
	}
}

// runBroadcast paces Tick at the configured rate. Each iteration sleeps for
// what is left of the interval after the work; an overrun is absorbed, so
// ticks may fall behind but are never skipped or batched.
func (s *Server) runBroadcast(ctx context.Context) error {
	interval := s.TickInterval()
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		if ctx.Err() != nil {
			return nil
		}
		started := time.Now()
		if err := s.tickSafely(); errors.Is(err, ErrGameOver) {
			return err
		} else if err != nil {
			s.log.Printf("broadcast: %v", err)
		}
		remaining := interval - time.Since(started)
		if remaining <= 0 {
			continue
		}
		timer.Reset(remaining)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

func (s *Server) tickSafely() (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Printf("broadcast: panic in tick: %v", r)
			err = nil
		}
	}()
	return s.Tick()
}

func addrStrings(addrs []net.Addr) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}
