package client

// SeqTracker classifies snapshot sequence numbers against a cursor holding the
// highest number seen. The cursor is unset until the first packet, so a client
// that joins mid-match starts with no loss.
type SeqTracker struct {
	cursor uint32
	set    bool

	Received   uint64
	Duplicates uint64
	Lost       uint64
}

// Observe records seq and reports whether it was at or behind the cursor.
// A forward jump adds the skipped numbers to Lost.
func (t *SeqTracker) Observe(seq uint32) (stale bool) {
	t.Received++
	if !t.set {
		t.cursor, t.set = seq, true
		return false
	}
	if seq <= t.cursor {
		t.Duplicates++
		return true
	}
	if seq > t.cursor+1 {
		t.Lost += uint64(seq - t.cursor - 1)
	}
	t.cursor = seq
	return false
}

// Cursor returns the highest sequence number seen and whether any was.
func (t *SeqTracker) Cursor() (uint32, bool) { return t.cursor, t.set }

// DuplicateRate is Duplicates over Received, 0 before any packet.
func (t *SeqTracker) DuplicateRate() float64 {
	if t.Received == 0 {
		return 0
	}
	return float64(t.Duplicates) / float64(t.Received)
}
