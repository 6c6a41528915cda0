package redundancy

import (
	"bytes"
	"testing"

	"gridclash.io/internal/protocol"
)

func TestRing_BoundAndOrder(t *testing.T) {
	const k = 3
	r := New(k)
	for tick := 1; tick <= 10; tick++ {
		cells := make([]uint8, 4)
		cells[0] = uint8(tick)
		r.Push(protocol.EncodeSnapshot(2, cells))

		want := tick
		if want > k {
			want = k
		}
		if r.Len() != want {
			t.Fatalf("tick %d: len=%d want %d", tick, r.Len(), want)
		}
		blobs := protocol.SplitSnapshots(r.Combined(), 2)
		if len(blobs) != want {
			t.Fatalf("tick %d: combined holds %d blobs want %d", tick, len(blobs), want)
		}
		for i, b := range blobs {
			if int(b[0]) != tick-i {
				t.Fatalf("tick %d: blob %d from tick %d, want %d", tick, i, b[0], tick-i)
			}
		}
	}
}

func TestRing_Newest(t *testing.T) {
	r := New(2)
	if r.Newest() != nil {
		t.Fatalf("empty ring returned an entry")
	}
	r.Push([]byte{1})
	r.Push([]byte{2})
	r.Push([]byte{3})
	if !bytes.Equal(r.Newest(), []byte{3}) {
		t.Fatalf("newest=%v", r.Newest())
	}
	if !bytes.Equal(r.Combined(), []byte{3, 2}) {
		t.Fatalf("combined=%v", r.Combined())
	}
}

func TestRing_CapacityOne(t *testing.T) {
	r := New(1)
	r.Push([]byte{1})
	r.Push([]byte{2})
	if r.Len() != 1 || !bytes.Equal(r.Combined(), []byte{2}) {
		t.Fatalf("len=%d combined=%v", r.Len(), r.Combined())
	}
}
