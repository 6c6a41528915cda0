package authority

import "testing"

func TestGrid_ClaimOnce(t *testing.T) {
	g := NewGrid(3)
	if !g.Claim(4, 1) {
		t.Fatalf("first claim rejected")
	}
	if g.Claim(4, 2) {
		t.Fatalf("second claim on owned cell accepted")
	}
	if g.Owner(4) != 1 {
		t.Fatalf("owner=%d want 1", g.Owner(4))
	}
	if g.Claim(9, 1) || g.Claim(-1, 1) {
		t.Fatalf("out of range claim accepted")
	}
	if g.Claim(0, 0) {
		t.Fatalf("player 0 claim accepted")
	}
	if g.Claimed() != 1 || g.Full() {
		t.Fatalf("claimed=%d full=%t", g.Claimed(), g.Full())
	}
}

func TestGrid_SnapshotAndRebuild(t *testing.T) {
	g := NewGrid(2)
	g.Claim(0, 3)
	g.Claim(3, 1)
	snap := g.Snapshot()
	if len(snap) != 5 || snap[0] != 2 || snap[1] != 3 || snap[4] != 1 {
		t.Fatalf("snapshot=%v", snap)
	}

	r := GridFromCells(2, g.Cells())
	if r.Claimed() != 2 || r.Owner(0) != 3 {
		t.Fatalf("rebuilt claimed=%d owner0=%d", r.Claimed(), r.Owner(0))
	}
	if Digest(2, r.Cells()) != Digest(2, g.Cells()) {
		t.Fatalf("digest mismatch after rebuild")
	}
	r.Claim(1, 2)
	if Digest(2, r.Cells()) == Digest(2, g.Cells()) {
		t.Fatalf("digest did not change with state")
	}
}
