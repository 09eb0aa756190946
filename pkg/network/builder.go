package network

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	ErrBadLagTime   = errors.New("network: lag time too large for escape rate")
	ErrEmptyNetwork = errors.New("network: no nodes")
)

// RatePair is one bidirectional connection with log rates in both directions.
type RatePair struct {
	I, J   int
	LogKij float64
	LogKji float64
}

// Spec collects everything needed to assemble a Network from rates.
type Spec struct {
	LogPi       []float64
	Pairs       []RatePair
	Communities []int // optional, same length as LogPi
	Bins        []int // optional
	NodesA      []int
	NodesB      []int
	InitProbs   map[int]float64
	Tau         float64
}

// Build assembles a Network from a Spec. Escape rates are the log-sum-exp of
// the live outgoing log rates. With Tau == 0 edge probabilities are
// branching probabilities k_ij/k_i and self-loops are zero; with Tau > 0 the
// linearised lag-time matrix T_ij = tau*k_ij, T_ii = 1 - tau*k_i is used.
func Build(spec Spec) (*Network, error) {
	n := len(spec.LogPi)
	if n == 0 {
		return nil, ErrEmptyNetwork
	}
	net := NewNetwork(n)
	net.Tau = spec.Tau
	for i := 0; i < n; i++ {
		net.Nodes[i].Pi = spec.LogPi[i]
	}

	for _, p := range spec.Pairs {
		if _, _, err := net.AddEdgePair(p.I, p.J, p.LogKij, p.LogKji, 0, 0); err != nil {
			return nil, fmt.Errorf("connection %d-%d: %w", p.I, p.J, err)
		}
	}

	if err := net.assignProbabilities(); err != nil {
		return nil, err
	}

	if len(spec.Communities) == n {
		comms := make(map[int]struct{})
		for i, c := range spec.Communities {
			net.Nodes[i].CommID = c
			comms[c] = struct{}{}
		}
		net.NComms = len(comms)
	}
	if len(spec.Bins) == n {
		bins := make(map[int]struct{})
		for i, b := range spec.Bins {
			net.Nodes[i].BinID = b
			bins[b] = struct{}{}
		}
		net.NBins = len(bins)
	} else if net.NComms > 0 {
		// communities double as bins for transition path statistics
		for i := range net.Nodes {
			net.Nodes[i].BinID = net.Nodes[i].CommID
		}
		net.NBins = net.NComms
	}

	if err := net.SetMacrostates(spec.NodesA, spec.NodesB); err != nil {
		return nil, err
	}
	for k, v := range spec.InitProbs {
		net.InitProbs[k] = v
	}
	return net, nil
}

// SetMacrostates tags the A and B sets, replacing any previous assignment.
func (n *Network) SetMacrostates(a, b []int) error {
	n.NodesA.Clear()
	n.NodesB.Clear()
	for i := range n.Nodes {
		n.Nodes[i].AorB = StateNone
	}
	for _, id := range b {
		if id < 0 || id >= len(n.Nodes) {
			return fmt.Errorf("B node %d: %w", id, ErrNodeOutOfRange)
		}
		n.Nodes[id].AorB = StateB
		n.NodesB.Add(id)
	}
	for _, id := range a {
		if id < 0 || id >= len(n.Nodes) {
			return fmt.Errorf("A node %d: %w", id, ErrNodeOutOfRange)
		}
		n.Nodes[id].AorB = StateA
		n.NodesA.Add(id)
	}
	return nil
}

// assignProbabilities fills KEsc, node self-loops and edge probabilities from
// the edge log rates.
func (n *Network) assignProbabilities() error {
	logRates := make([]float64, 0, 8)
	for i := range n.Nodes {
		logRates = logRates[:0]
		for _, e := range n.Nodes[i].Out {
			if !n.Edges[e].Dead {
				logRates = append(logRates, n.Edges[e].K)
			}
		}
		if len(logRates) == 0 {
			n.Nodes[i].KEsc = math.Inf(-1)
			n.Nodes[i].T = 1
			continue
		}
		kEsc := floats.LogSumExp(logRates)
		n.Nodes[i].KEsc = kEsc
		if n.Tau > 0 {
			stay := 1 - n.Tau*math.Exp(kEsc)
			if stay < 0 {
				return fmt.Errorf("node %d: tau=%g, k_esc=%g: %w", i, n.Tau, math.Exp(kEsc), ErrBadLagTime)
			}
			n.Nodes[i].T = stay
		} else {
			n.Nodes[i].T = 0
		}
		for _, e := range n.Nodes[i].Out {
			edge := &n.Edges[e]
			if edge.Dead {
				continue
			}
			if n.Tau > 0 {
				edge.T = n.Tau * math.Exp(edge.K)
			} else {
				edge.T = math.Exp(edge.K - kEsc)
			}
		}
	}
	return nil
}
