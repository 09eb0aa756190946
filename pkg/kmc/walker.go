// Package kmc propagates trajectories on a transition network: the walker
// state, the single-step strategies and the outer simulation loop.
package kmc

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/gilchrisn/kinetic-path-sampling/pkg/network"
	"github.com/gilchrisn/kinetic-path-sampling/pkg/sampling"
)

var ErrNoStartNode = errors.New("kmc: no start node in B")

// Walker carries the current position and the accumulated path quantities
// of one trajectory.
type Walker struct {
	ID      int
	PathNo  int
	NodeID  int     // -1 before the first node of a path is drawn
	Time    float64
	LogProb float64 // log path probability
	Steps   int     // dynamical activity
	Entropy float64 // entropy flow
	Visited []bool  // bins visited since the last return to B
}

// NewWalker creates a walker with one visited flag per bin.
func NewWalker(id, numBins int) *Walker {
	w := &Walker{ID: id, Visited: make([]bool, numBins)}
	w.Reset()
	return w
}

// Reset clears the path quantities so that the next step draws a new start.
func (w *Walker) Reset() {
	w.NodeID = -1
	w.Time = 0
	w.LogProb = 0
	w.Steps = 0
	w.Entropy = 0
}

// ClearVisited resets all bin flags.
func (w *Walker) ClearVisited() {
	for i := range w.Visited {
		w.Visited[i] = false
	}
}

// Visit marks the bin of a node, if bins are defined.
func (w *Walker) Visit(net *network.Network, node int) {
	if bin := net.Nodes[node].BinID; bin >= 0 && bin < len(w.Visited) {
		w.Visited[bin] = true
	}
}

// SampleStart draws the first node of a path from B. Without an initial
// condition the draw is proportional to the stationary probabilities; with
// one, the configured weights are used in ascending node order. A single B
// node is returned without a draw. The returned log probability is that of
// the chosen start after normalising the weights over B.
func SampleStart(net *network.Network, rng *sampling.RNG) (int, float64, error) {
	nodesB := net.SortedB()
	switch len(nodesB) {
	case 0:
		return -1, 0, ErrNoStartNode
	case 1:
		return nodesB[0], 0, nil
	}

	logWeights := make([]float64, len(nodesB))
	for i, id := range nodesB {
		if net.InitCond() {
			logWeights[i] = math.Log(net.InitProbs[id])
		} else {
			logWeights[i] = net.Nodes[id].Pi
		}
	}
	k, err := rng.LogCategorical(logWeights)
	if err != nil {
		return -1, 0, errors.Join(ErrNoStartNode, err)
	}
	return nodesB[k], logWeights[k] - floats.LogSumExp(logWeights), nil
}
