package kps

import (
	"fmt"
	"math"

	"github.com/gilchrisn/kinetic-path-sampling/pkg/network"
	"github.com/gilchrisn/kinetic-path-sampling/pkg/sampling"
)

// Escape is the reconstructed escape trajectory of one basin visit.
type Escape struct {
	Time    float64
	Hops    int
	LogProb float64 // sum of h*log(T) over the untransformed transitions
	Entropy float64 // sum of h*(K_rev - K) over the parent network edges
	Visited []int   // full-network nodes left at least once
	Counts  HopMatrix
}

// ReverseRandomise turns the hop counts of a walk on the fully transformed
// network into hop counts on the untransformed sub-network, undoing the
// eliminations last first. For every hop γ->β counted after n was
// eliminated, the number that actually went through n is binomial with
// probability v / (T_γβ + v), where T_γβ is the probability before the
// elimination and v = L_γn U_nβ / factor_n. The returns of n to
// itself are negative binomial in the number of departures from n. The
// escape time is then drawn from the departures of every node.
func (t *Transformation) ReverseRandomise(hops HopMatrix, full *network.Network, rng *sampling.RNG) (*Escape, error) {
	for i := len(t.Eliminated) - 1; i >= 0; i-- {
		n := t.Eliminated[i]
		if err := t.Undo(n); err != nil {
			return nil, err
		}
		if err := t.unfold(n, hops, rng); err != nil {
			return nil, err
		}
	}
	return t.escape(hops, full, rng)
}

// unfold splits the hops routed through n, which must just have been undone.
func (t *Transformation) unfold(n int, hops HopMatrix, rng *sampling.RNG) error {
	factor := t.factors[n]
	for _, le := range t.L.Nodes[n].In {
		gamma, tgn := t.L.Edges[le].From, t.L.Edges[le].T
		for _, ue := range t.U.Nodes[n].Out {
			beta, tnb := t.U.Edges[ue].To, t.U.Edges[ue].T
			h := hops.Get(gamma, beta)
			if h == 0 {
				continue
			}
			v := tgn * tnb / factor
			total := max(0, t.prob(gamma, beta)) + v
			if total <= 0 {
				continue
			}
			via, err := rng.Binomial(h, min(1, v/total))
			if err != nil {
				return fmt.Errorf("unfold %d->%d through %d: %w", gamma, beta, n, err)
			}
			if via == 0 {
				continue
			}
			hops[Transition{gamma, beta}] -= via
			hops.Add(gamma, n, via)
			hops.Add(n, beta, via)
		}
	}

	departures := 0
	for _, ue := range t.U.Nodes[n].Out {
		departures += hops.Get(n, t.U.Edges[ue].To)
	}
	returns, err := rng.NegBinomial(departures, min(1, factor))
	if err != nil {
		return fmt.Errorf("self-loop of %d: %w", n, err)
	}
	hops.Add(n, n, returns)
	return nil
}

// escape accumulates time, path probability and entropy flow over the hop
// counts of the untransformed sub-network.
func (t *Transformation) escape(hops HopMatrix, full *network.Network, rng *sampling.RNG) (*Escape, error) {
	orig := t.Orig
	esc := &Escape{Counts: hops}
	for _, tr := range hops.Sorted() {
		h := hops[tr]
		esc.Hops += h
		if tr.From == tr.To {
			esc.LogProb += float64(h) * math.Log(orig.Nodes[tr.From].T)
			continue
		}
		e := orig.FindEdge(tr.From, tr.To)
		if e == network.NoEdge {
			return nil, fmt.Errorf("hop %d->%d has no edge after reverse randomisation: %w", tr.From, tr.To, ErrInvariantViolation)
		}
		edge := orig.Edges[e]
		esc.LogProb += float64(h) * math.Log(edge.T)
		if edge.Origin != network.NoEdge {
			parent := full.Edges[edge.Origin]
			if parent.Rev != network.NoEdge {
				esc.Entropy += float64(h) * (full.Edges[parent.Rev].K - parent.K)
			}
		}
	}

	for i, m := range hops.Departures(orig.NumNodes()) {
		if m == 0 {
			continue
		}
		esc.Visited = append(esc.Visited, orig.Nodes[i].ID)
		if orig.Tau > 0 {
			esc.Time += float64(m) * orig.Tau
			continue
		}
		dt, err := rng.Gamma(m, math.Exp(orig.Nodes[i].KEsc))
		if err != nil {
			return nil, fmt.Errorf("escape time of node %d: %w", orig.Nodes[i].ID, err)
		}
		esc.Time += dt
	}
	return esc, nil
}
