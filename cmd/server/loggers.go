package main

import "gridclash.io/internal/authority"

// multiTickLogger fans a tick out to every sink; sink errors are dropped.
type multiTickLogger []authority.TickLogger

func (m multiTickLogger) WriteTick(r authority.TickRecord) error {
	for _, l := range m {
		if l != nil {
			_ = l.WriteTick(r)
		}
	}
	return nil
}

type multiClaimLogger []authority.ClaimLogger

func (m multiClaimLogger) WriteClaim(r authority.ClaimRecord) error {
	for _, l := range m {
		if l != nil {
			_ = l.WriteClaim(r)
		}
	}
	return nil
}
