package kps

import (
	"errors"
	"fmt"
	"math"

	"github.com/gilchrisn/kinetic-path-sampling/pkg/kmc"
	"github.com/gilchrisn/kinetic-path-sampling/pkg/network"
)

var (
	ErrNoStartNode       = kmc.ErrNoStartNode
	ErrClosedBasin       = errors.New("kps: basin has no absorbing boundary")
	ErrMacrostateOverlap = errors.New("kps: A and B share nodes")
	ErrNoCommunities     = errors.New("kps: community basins need community assignments")
)

// BasinSelector labels the trapping basin around the occupied node and its
// absorbing boundary.
type BasinSelector struct {
	net          *network.Network
	adaptive     bool
	adaptMinRate float64
	maxBasinSize int
}

func NewBasinSelector(net *network.Network, adaptive bool, adaptMinRate float64, maxBasinSize int) *BasinSelector {
	if maxBasinSize < 1 {
		maxBasinSize = 1
	}
	return &BasinSelector{
		net:          net,
		adaptive:     adaptive,
		adaptMinRate: adaptMinRate,
		maxBasinSize: maxBasinSize,
	}
}

// Select builds a fresh BasinState around epsilon. A nodes never join a
// basin; they are always boundary so that arrival in A is observed.
func (s *BasinSelector) Select(epsilon int) (*BasinState, error) {
	if epsilon < 0 || epsilon >= s.net.NumNodes() {
		return nil, fmt.Errorf("occupied node %d: %w", epsilon, network.ErrNodeOutOfRange)
	}
	if s.net.Nodes[epsilon].AorB == network.StateA {
		return nil, fmt.Errorf("occupied node %d is in A: %w", epsilon, ErrInvariantViolation)
	}

	state := &BasinState{
		Labels:  make([]BasinLabel, s.net.NumNodes()),
		Epsilon: epsilon,
	}
	if s.adaptive {
		s.growBasin(state)
	} else {
		s.communityBasin(state)
	}

	state.NodeMap = make(map[int]int, state.NB+state.NC)
	state.SubToFull = make([]int, 0, state.NB+state.NC)
	for i, label := range state.Labels {
		switch label {
		case LabelBasin:
			state.NE += s.net.LiveOutDegree(i)
		case LabelBoundary:
			state.NC++
		default:
			continue
		}
		state.NodeMap[i] = len(state.SubToFull)
		state.SubToFull = append(state.SubToFull, i)
	}
	if state.NC == 0 {
		return nil, fmt.Errorf("basin of node %d (%d nodes): %w", epsilon, state.NB, ErrClosedBasin)
	}
	return state, nil
}

// communityBasin marks every non-A node sharing epsilon's community, then
// every live neighbour outside the basin as boundary.
func (s *BasinSelector) communityBasin(state *BasinState) {
	comm := s.net.Nodes[state.Epsilon].CommID
	for i := range s.net.Nodes {
		if s.net.Nodes[i].CommID == comm && s.net.Nodes[i].AorB != network.StateA {
			state.Labels[i] = LabelBasin
			state.NB++
		}
	}
	for i, label := range state.Labels {
		if label != LabelBasin {
			continue
		}
		for _, e := range s.net.Nodes[i].Out {
			edge := s.net.Edges[e]
			if edge.Dead || state.Labels[edge.To] != LabelIrrelevant {
				continue
			}
			state.Labels[edge.To] = LabelBoundary
		}
	}
}

// growBasin grows the basin breadth-first from epsilon along live edges
// faster than adaptMinRate, up to maxBasinSize nodes. Every node touched
// from the basin and not absorbed into it is boundary.
func (s *BasinSelector) growBasin(state *BasinState) {
	logMinRate := math.Log(s.adaptMinRate)
	queue := []int{state.Epsilon}
	for len(queue) > 0 && state.NB < s.maxBasinSize {
		cur := queue[0]
		queue = queue[1:]
		state.Labels[cur] = LabelBasin
		state.NB++
		for _, e := range s.net.Nodes[cur].Out {
			edge := s.net.Edges[e]
			if edge.Dead || state.Labels[edge.To] == LabelBasin {
				continue
			}
			if edge.K > logMinRate && s.net.Nodes[edge.To].AorB != network.StateA &&
				state.Labels[edge.To] == LabelIrrelevant {
				queue = append(queue, edge.To)
			}
			state.Labels[edge.To] = LabelBoundary
		}
	}
}
