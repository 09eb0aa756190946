package kmc

import (
	"context"
	"fmt"
	"math"

	"github.com/gilchrisn/kinetic-path-sampling/pkg/network"
	"github.com/gilchrisn/kinetic-path-sampling/pkg/sampling"
)

// StepResult describes one advance of a walker.
type StepResult struct {
	From     int
	To       int
	Dt       float64
	Hops     int  // elementary transitions covered by the advance
	NewPath  bool // the start node of a new path was drawn
	ReachedA bool
}

// Stepper advances a walker. BKL takes one elementary hop; the kPS driver
// skips over a whole trapping basin.
type Stepper interface {
	Step(ctx context.Context, w *Walker) (StepResult, error)
}

// BKL is the direct rejection-free kinetic Monte Carlo stepper.
type BKL struct {
	net *network.Network
	rng *sampling.RNG
}

func NewBKL(net *network.Network, rng *sampling.RNG) *BKL {
	return &BKL{net: net, rng: rng}
}

// Step draws one transition from the walker's node in proportion to the
// branching probabilities and advances the clock by an exponential waiting
// time (or by the lag time in discrete-time mode).
func (b *BKL) Step(ctx context.Context, w *Walker) (StepResult, error) {
	res := StepResult{From: w.NodeID}
	if w.NodeID < 0 {
		start, logProb, err := SampleStart(b.net, b.rng)
		if err != nil {
			return res, err
		}
		w.NodeID = start
		w.LogProb = logProb
		w.Visit(b.net, start)
		res.From = start
		res.NewPath = true
	}

	node := &b.net.Nodes[w.NodeID]
	edges := make([]int, 0, len(node.Out)+1)
	probs := make([]float64, 0, len(node.Out)+1)
	if node.T > 0 {
		edges = append(edges, network.NoEdge)
		probs = append(probs, node.T)
	}
	for _, e := range node.Out {
		if !b.net.Edges[e].Dead {
			edges = append(edges, e)
			probs = append(probs, b.net.Edges[e].T)
		}
	}
	if len(edges) == 0 {
		return res, fmt.Errorf("node %d has no transitions", w.NodeID)
	}
	k, err := b.rng.Categorical(probs)
	if err != nil {
		return res, fmt.Errorf("node %d: %w", w.NodeID, err)
	}

	dt := b.net.Tau
	if dt <= 0 {
		if dt, err = b.rng.Exponential(math.Exp(node.KEsc)); err != nil {
			return res, fmt.Errorf("node %d: %w", w.NodeID, err)
		}
	}

	to := w.NodeID
	if e := edges[k]; e != network.NoEdge {
		edge := b.net.Edges[e]
		to = edge.To
		if edge.Rev != network.NoEdge {
			w.Entropy += b.net.Edges[edge.Rev].K - edge.K
		}
	}
	w.LogProb += math.Log(probs[k])
	w.Steps++
	w.Time += dt
	w.NodeID = to
	w.Visit(b.net, to)

	res.To = to
	res.Dt = dt
	res.Hops = 1
	res.ReachedA = b.net.Nodes[to].AorB == network.StateA
	return res, nil
}
