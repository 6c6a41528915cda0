package authority

import "gridclash.io/internal/protocol"

// DefaultGridN is the side length of the contest grid.
const DefaultGridN = 10

// Grid is the canonical n*n ownership array. A cell's owner is 0 until its
// first accepted claim and never changes afterwards. Grid is not safe for
// concurrent use; Server guards it with its mutex.
type Grid struct {
	n       int
	cells   []uint8
	claimed int
}

func NewGrid(n int) *Grid {
	return &Grid{n: n, cells: make([]uint8, n*n)}
}

// Size is the side length n.
func (g *Grid) Size() int { return g.n }

// Len is the number of cells.
func (g *Grid) Len() int { return len(g.cells) }

func (g *Grid) Owner(cell int) uint8 {
	if cell < 0 || cell >= len(g.cells) {
		return 0
	}
	return g.cells[cell]
}

// Claim assigns cell to player if the cell exists and is unclaimed.
func (g *Grid) Claim(cell int, player uint8) bool {
	if player == 0 || cell < 0 || cell >= len(g.cells) || g.cells[cell] != 0 {
		return false
	}
	g.cells[cell] = player
	g.claimed++
	return true
}

func (g *Grid) Claimed() int { return g.claimed }

func (g *Grid) Full() bool { return g.claimed == len(g.cells) }

// Cells returns a copy of the owner array.
func (g *Grid) Cells() []uint8 {
	return append([]uint8(nil), g.cells...)
}

// Snapshot serializes the grid as one dimension-prefixed blob.
func (g *Grid) Snapshot() []byte {
	return protocol.EncodeSnapshot(g.n, g.cells)
}

// GridFromCells rebuilds a grid from a serialized owner array.
func GridFromCells(n int, cells []uint8) *Grid {
	g := NewGrid(n)
	copy(g.cells, cells)
	for _, c := range g.cells {
		if c != 0 {
			g.claimed++
		}
	}
	return g
}
