// Package redundancy keeps the last K serialized snapshots so every broadcast
// can carry them all, newest first.
package redundancy

// DefaultCapacity is the number of snapshots embedded per broadcast.
const DefaultCapacity = 3

// Ring is a fixed-capacity push-front history. Pushing into a full ring
// evicts the oldest entry. Len never exceeds Cap.
type Ring struct {
	slots [][]byte
	head  int // index of the newest entry
	n     int
}

func New(capacity int) *Ring {
	if capacity < 1 {
		panic("redundancy: capacity must be >= 1")
	}
	return &Ring{slots: make([][]byte, capacity), head: capacity - 1}
}

func (r *Ring) Cap() int { return len(r.slots) }
func (r *Ring) Len() int { return r.n }

// Push stores blob as the newest entry. The ring keeps a reference; callers
// must not modify blob afterwards.
func (r *Ring) Push(blob []byte) {
	r.head = (r.head + 1) % len(r.slots)
	r.slots[r.head] = blob
	if r.n < len(r.slots) {
		r.n++
	}
}

// Newest returns the most recently pushed entry, or nil when empty.
func (r *Ring) Newest() []byte {
	if r.n == 0 {
		return nil
	}
	return r.slots[r.head]
}

// Each calls fn for every retained entry from newest (i=0) to oldest.
func (r *Ring) Each(fn func(i int, blob []byte)) {
	c := len(r.slots)
	for i := 0; i < r.n; i++ {
		fn(i, r.slots[(r.head-i+c)%c])
	}
}

// Combined concatenates the retained entries newest first.
func (r *Ring) Combined() []byte {
	size := 0
	r.Each(func(_ int, b []byte) { size += len(b) })
	out := make([]byte, 0, size)
	r.Each(func(_ int, b []byte) { out = append(out, b...) })
	return out
}
