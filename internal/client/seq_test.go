package client

import "testing"

func TestSeqTracker_DuplicatesAndGaps(t *testing.T) {
	var tr SeqTracker
	for _, s := range []uint32{0, 1, 1, 3, 5} {
		tr.Observe(s)
	}
	if tr.Duplicates != 1 || tr.Lost != 2 || tr.Received != 5 {
		t.Fatalf("dup=%d lost=%d recv=%d", tr.Duplicates, tr.Lost, tr.Received)
	}
	if c, _ := tr.Cursor(); c != 5 {
		t.Fatalf("cursor=%d want 5", c)
	}
	if got := tr.DuplicateRate(); got != 0.2 {
		t.Fatalf("rate=%v want 0.2", got)
	}
}

func TestSeqTracker_LateJoinerHasNoLoss(t *testing.T) {
	var tr SeqTracker
	if tr.Observe(1000) {
		t.Fatalf("first packet reported stale")
	}
	tr.Observe(1001)
	if tr.Lost != 0 {
		t.Fatalf("lost=%d want 0", tr.Lost)
	}
}

func TestSeqTracker_OutOfOrderIsStale(t *testing.T) {
	var tr SeqTracker
	tr.Observe(5)
	if !tr.Observe(4) {
		t.Fatalf("seq behind cursor not reported stale")
	}
	if c, _ := tr.Cursor(); c != 5 {
		t.Fatalf("cursor moved back to %d", c)
	}
	if tr.DuplicateRate() != 0.5 {
		t.Fatalf("rate=%v", tr.DuplicateRate())
	}
}
