package kps

import (
	"fmt"
	"slices"

	"github.com/gilchrisn/kinetic-path-sampling/pkg/sampling"
)

// Transition identifies a hop between two sub-network nodes. From == To is
// a self-loop.
type Transition struct {
	From, To int
}

// HopMatrix counts hops per transition.
type HopMatrix map[Transition]int

func (h HopMatrix) Add(from, to, n int) {
	if n == 0 {
		return
	}
	h[Transition{from, to}] += n
}

func (h HopMatrix) Get(from, to int) int { return h[Transition{from, to}] }

// Total returns the number of hops.
func (h HopMatrix) Total() int {
	total := 0
	for _, n := range h {
		total += n
	}
	return total
}

// Departures returns, per node, the number of hops leaving it.
func (h HopMatrix) Departures(numNodes int) []int {
	out := make([]int, numNodes)
	for tr, n := range h {
		out[tr.From] += n
	}
	return out
}

// Sorted returns the non-zero transitions in (From, To) order.
func (h HopMatrix) Sorted() []Transition {
	keys := make([]Transition, 0, len(h))
	for tr, n := range h {
		if n > 0 {
			keys = append(keys, tr)
		}
	}
	slices.SortFunc(keys, func(a, b Transition) int {
		if a.From != b.From {
			return a.From - b.From
		}
		return a.To - b.To
	})
	return keys
}

// SampleAbsorbing walks the transformed network from start, one categorical
// hop at a time over the self-loop and the edges to present nodes, until a
// boundary node is reached. It returns the boundary node and the hop counts
// of the walk. With every basin node eliminated the walk is a single hop.
func (t *Transformation) SampleAbsorbing(start int, rng *sampling.RNG) (int, HopMatrix, error) {
	if start < 0 || start >= len(t.basin) || !t.basin[start] {
		return -1, nil, fmt.Errorf("start node %d is not a basin node: %w", start, ErrInvariantViolation)
	}
	w := t.Work
	hops := make(HopMatrix)
	targets := make([]int, 0, 8)
	probs := make([]float64, 0, 8)

	cur := start
	for t.basin[cur] {
		targets = append(targets[:0], cur)
		probs = append(probs[:0], w.Nodes[cur].T)
		for _, e := range w.Nodes[cur].Out {
			if edge := w.Edges[e]; !edge.Dead && !t.eliminated[edge.To] {
				targets = append(targets, edge.To)
				probs = append(probs, edge.T)
			}
		}
		k, err := rng.Categorical(probs)
		if err != nil {
			return -1, nil, fmt.Errorf("absorbing walk at node %d: %w", cur, err)
		}
		hops.Add(cur, targets[k], 1)
		cur = targets[k]
	}
	return cur, hops, nil
}
