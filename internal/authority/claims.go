package authority

import (
	"net"

	"gridclash.io/internal/protocol"
)

// HandleEvent resolves one claim request. Requests are served strictly in the
// order the authority processes them: the first request for an unclaimed cell
// wins and every later request for that cell is rejected. Every request is
// logged with its outcome.
func (s *Server) HandleEvent(from net.Addr, ev protocol.Event) ClaimRecord {
	rec := ClaimRecord{
		RecvTimeMS: protocol.NowMS(s.now()),
		From:       from.String(),
		PlayerID:   ev.PlayerID,
		ClaimType:  ev.ClaimType,
		CellID:     ev.CellID,
		ClientTS:   ev.ClientTSMS,
	}

	rec.Accepted = s.resolveClaim(ev)

	outcome := "rejected"
	if rec.Accepted {
		outcome = "accepted"
	}
	s.metrics.Claims.WithLabelValues(outcome).Inc()
	if s.claimLogger != nil {
		if err := s.claimLogger.WriteClaim(rec); err != nil {
			s.log.Printf("claim log: %v", err)
		}
	}
	s.log.Printf("EVENT from %v player=%d cell=%d accepted=%t", from, ev.PlayerID, ev.CellID, rec.Accepted)
	return rec
}

// resolveClaim applies ev to the grid if it is a valid first claim of an
// unclaimed cell.
func (s *Server) resolveClaim(ev protocol.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.over || ev.ClaimType != protocol.ClaimAcquire || int(ev.PlayerID) > s.cfg.MaxPlayers {
		return false
	}
	if !s.grid.Claim(int(ev.CellID), ev.PlayerID) {
		return false
	}
	if !s.hasClaimed[ev.PlayerID] {
		s.hasClaimed[ev.PlayerID] = true
		s.firstClaim = append(s.firstClaim, ev.PlayerID)
	}
	return true
}
