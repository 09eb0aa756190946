package kps

import (
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/gilchrisn/kinetic-path-sampling/pkg/network"
)

var ErrInvariantViolation = errors.New("kps: invariant violation")

// ExtractSubnetwork copies the labelled nodes of the basin state and every
// live edge leaving a basin node into an independent network. Boundary nodes
// are sinks. Each copied edge keeps the index of its parent edge in Origin.
func ExtractSubnetwork(net *network.Network, state *BasinState) (*network.Network, error) {
	sub := network.NewNetwork(state.NB + state.NC)
	sub.Tau = net.Tau
	sub.NComms = net.NComms
	sub.NBins = net.NBins
	for j, full := range state.SubToFull {
		node := net.Nodes[full]
		node.Out, node.In = nil, nil
		sub.Nodes[j] = node
		switch node.AorB {
		case network.StateA:
			sub.NodesA.Add(j)
		case network.StateB:
			sub.NodesB.Add(j)
		}
	}

	copied := bitset.New(uint(net.NumEdges()))
	copyEdge := func(e int) (int, error) {
		edge := net.Edges[e]
		from, okFrom := state.NodeMap[edge.From]
		to, okTo := state.NodeMap[edge.To]
		if !okFrom || !okTo {
			return network.NoEdge, fmt.Errorf("edge %d->%d leaves the labelled set: %w", edge.From, edge.To, ErrInvariantViolation)
		}
		pos, err := sub.AddEdge(from, to, edge.K, edge.T)
		if err != nil {
			return network.NoEdge, err
		}
		sub.Edges[pos].Origin = e
		copied.Set(uint(e))
		return pos, nil
	}

	for _, full := range state.SubToFull {
		if state.Labels[full] != LabelBasin {
			continue
		}
		for _, e := range net.Nodes[full].Out {
			if net.Edges[e].Dead || copied.Test(uint(e)) {
				continue
			}
			pos, err := copyEdge(e)
			if err != nil {
				return nil, err
			}
			rev := net.Edges[e].Rev
			if rev == network.NoEdge || net.Edges[rev].Dead || copied.Test(uint(rev)) ||
				state.Labels[net.Edges[rev].From] != LabelBasin {
				continue
			}
			revPos, err := copyEdge(rev)
			if err != nil {
				return nil, err
			}
			sub.Edges[pos].Rev = revPos
			sub.Edges[revPos].Rev = pos
		}
	}

	if sub.NumNodes() != state.NB+state.NC || sub.NumEdges() != state.NE {
		return nil, fmt.Errorf("subnetwork has %d nodes and %d edges, expected %d and %d: %w",
			sub.NumNodes(), sub.NumEdges(), state.NB+state.NC, state.NE, ErrInvariantViolation)
	}
	return sub, nil
}
