package opt

import (
	"slices"

	"routecap/internal/distance"
)

// improvement threshold in metres; smaller gains are treated as ties
const epsilon = 1e-6

// costModel prices an ordering of trips over a stop matrix. Each trip owns an
// entry stop (pickup) and an exit stop (dropoff, or the pickup again when the
// trip has no dropoff). The path is open: it starts at the first trip's pickup
// and ends at the last trip's exit.
type costModel struct {
	m         distance.Matrix
	entry     []int
	exit      []int
	innerDist float64
	innerDur  float64
}

func newCostModel(m distance.Matrix, entry, exit []int) costModel {
	c := costModel{m: m, entry: entry, exit: exit}
	for k := range entry {
		if entry[k] != exit[k] {
			c.innerDist += m.Distance(entry[k], exit[k])
			c.innerDur += m.Duration(entry[k], exit[k])
		}
	}
	return c
}

// leg is the deadhead from trip a's exit to trip b's pickup.
func (c costModel) leg(a, b int) float64 { return c.m.Distance(c.exit[a], c.entry[b]) }

func (c costModel) distance(order []int) float64 {
	total := c.innerDist
	for i := 0; i < len(order)-1; i++ {
		total += c.leg(order[i], order[i+1])
	}
	return total
}

func (c costModel) duration(order []int) float64 {
	total := c.innerDur
	for i := 0; i < len(order)-1; i++ {
		total += c.m.Duration(c.exit[order[i]], c.entry[order[i+1]])
	}
	return total
}

// nearestNeighbor builds an order starting at start, always moving to the
// closest unvisited trip. Ties go to the lower index.
func nearestNeighbor(c costModel, start, n int) []int {
	visited := make([]bool, n)
	order := make([]int, 0, n)
	order = append(order, start)
	visited[start] = true
	cur := start
	for len(order) < n {
		next := -1
		bestD := 0.0
		for j := 0; j < n; j++ {
			if visited[j] {
				continue
			}
			d := c.leg(cur, j)
			if next == -1 || d < bestD {
				next, bestD = j, d
			}
		}
		visited[next] = true
		order = append(order, next)
		cur = next
	}
	return order
}

// improve2Opt applies 2-opt segment reversals, keeping position 0 fixed. Full
// path cost is recomputed per move so asymmetric matrices are handled.
func improve2Opt(c costModel, order []int, iterations int) []int {
	if iterations <= 0 {
		iterations = 1
	}
	best := append([]int(nil), order...)
	bestDist := c.distance(best)
	n := len(order)
	for it := 0; it < iterations; it++ {
		improved := false
		for i := 1; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				cand := twoOptSwap(best, i, k)
				if d := c.distance(cand); d+epsilon < bestDist {
					best, bestDist = cand, d
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return best
}

func twoOptSwap(ord []int, i, k int) []int {
	out := make([]int, len(ord))
	copy(out, ord[:i])
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}

// exactSearch enumerates every ordering of order[1:] depth-first in
// lexicographic order, keeping order[0] fixed, and returns the cheapest. The
// incumbent starts as order itself and is replaced only on strict improvement,
// so ties resolve to the input order.
func exactSearch(c costModel, order []int) []int {
	n := len(order)
	best := append([]int(nil), order...)
	bestDist := c.distance(best)
	if n <= 2 {
		return best
	}

	rest := append([]int(nil), order[1:]...)
	slices.Sort(rest)
	used := make([]bool, len(rest))
	path := make([]int, 1, n)
	path[0] = order[0]

	var dfs func(partial float64)
	dfs = func(partial float64) {
		if partial+c.innerDist >= bestDist-epsilon {
			return
		}
		if len(path) == n {
			best = append(best[:0], path...)
			bestDist = partial + c.innerDist
			return
		}
		last := path[len(path)-1]
		for i, t := range rest {
			if used[i] {
				continue
			}
			used[i] = true
			path = append(path, t)
			dfs(partial + c.leg(last, t))
			path = path[:len(path)-1]
			used[i] = false
		}
	}
	dfs(0)
	return best
}

func isPermutation(order []int, n int) bool {
	if len(order) != n {
		return false
	}
	seen := make([]bool, n)
	for _, v := range order {
		if v < 0 || v >= n || seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}
