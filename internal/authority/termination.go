package authority

import (
	"sort"

	"gridclash.io/internal/protocol"
)

// GameOverCopies is how many times the terminal message is sent to each endpoint.
const GameOverCopies = 2

// ComputeResult tallies cells per player and picks the winner: the highest
// count, with ties going to the tied player whose first accepted claim came
// earliest. Players missing from firstClaim rank after every listed player,
// lowest id first. Tallies are sorted by player id.
func ComputeResult(cells []uint8, firstClaim []uint8) protocol.GameOver {
	counts := map[uint8]int{}
	for _, owner := range cells {
		if owner != 0 {
			counts[owner]++
		}
	}
	if len(counts) == 0 {
		return protocol.GameOver{}
	}

	rank := map[uint8]int{}
	for i, p := range firstClaim {
		if _, ok := rank[p]; !ok {
			rank[p] = i
		}
	}
	players := make([]uint8, 0, len(counts))
	for p := range counts {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i] < players[j] })

	order := append([]uint8(nil), players...)
	sort.SliceStable(order, func(i, j int) bool {
		ri, iok := rank[order[i]]
		rj, jok := rank[order[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return false
		}
	})
	winner := order[0]
	for _, p := range order[1:] {
		if counts[p] > counts[winner] {
			winner = p
		}
	}

	g := protocol.GameOver{Winner: winner, Tallies: make([]protocol.Tally, 0, len(players))}
	for _, p := range players {
		g.Tallies = append(g.Tallies, protocol.Tally{PlayerID: p, Cells: uint8(counts[p])})
	}
	return g
}
