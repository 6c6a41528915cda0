package main

import (
	"fmt"

	"gridclash.io/internal/authority"
	persistlog "gridclash.io/internal/persistence/log"
	"gridclash.io/internal/persistence/snapshot"
)

type report struct {
	Claims   int
	Accepted int
	Ticks    int
	// Checked counts ticks whose digest was compared. A tick is skipped when
	// its claim count differs from the number of claims replayed so far, which
	// happens when a claim is journaled after a tick that already includes it.
	Checked int
	Winner  uint8
}

// verify re-applies the accepted claims of snap's match from the journal
// files onto an empty grid and checks tick digests, the final grid and the
// final result against the snapshot.
func verify(snap snapshot.MatchSnapshotV1, files []string) (report, error) {
	var rep report
	grid := authority.NewGrid(snap.GridN)
	matchID := snap.Header.MatchID

	for _, path := range files {
		err := persistlog.ReadJournal(path, func(e persistlog.JournalEntry) error {
			if e.MatchID != matchID {
				return nil
			}
			switch e.Kind {
			case persistlog.KindClaim:
				if e.Claim == nil {
					return fmt.Errorf("claim entry without body")
				}
				rep.Claims++
				if !e.Claim.Accepted {
					return nil
				}
				rep.Accepted++
				if !grid.Claim(int(e.Claim.CellID), e.Claim.PlayerID) {
					return fmt.Errorf("accepted claim of cell %d by player %d does not apply", e.Claim.CellID, e.Claim.PlayerID)
				}
			case persistlog.KindTick:
				if e.Tick == nil {
					return fmt.Errorf("tick entry without body")
				}
				rep.Ticks++
				if e.Tick.Claimed != grid.Claimed() {
					return nil
				}
				rep.Checked++
				if got := authority.Digest(snap.GridN, grid.Cells()); got != e.Tick.Digest {
					return fmt.Errorf("digest mismatch at snapshot %d: got=%s want=%s", e.Tick.SnapshotID, got, e.Tick.Digest)
				}
			}
			return nil
		})
		if err != nil {
			return rep, err
		}
	}

	cells := grid.Cells()
	if got := authority.Digest(snap.GridN, cells); got != snap.Digest {
		return rep, fmt.Errorf("final digest mismatch: got=%s want=%s", got, snap.Digest)
	}
	g := authority.ComputeResult(cells, snap.FirstClaimOrder)
	want := snap.GameOver()
	if g.Winner != want.Winner {
		return rep, fmt.Errorf("winner mismatch: got=%d want=%d", g.Winner, want.Winner)
	}
	if len(g.Tallies) != len(want.Tallies) {
		return rep, fmt.Errorf("tally count mismatch: got=%d want=%d", len(g.Tallies), len(want.Tallies))
	}
	for i := range g.Tallies {
		if g.Tallies[i] != want.Tallies[i] {
			return rep, fmt.Errorf("tally mismatch for player %d: got=%d want=%d", want.Tallies[i].PlayerID, g.Tallies[i].Cells, want.Tallies[i].Cells)
		}
	}
	rep.Winner = g.Winner
	return rep, nil
}
