package network

import (
	"errors"
	"fmt"
	"math"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// NoEdge marks a missing edge reference (no reverse edge, no parent edge).
const NoEdge = -1

// StochasticTolerance is the allowed deviation of a row sum from unity.
const StochasticTolerance = 1e-8

var (
	ErrNodeOutOfRange = errors.New("network: node index out of range")
	ErrEdgeOutOfRange = errors.New("network: edge index out of range")
	ErrSelfEdge       = errors.New("network: self-loops are stored on the node, not as edges")
	ErrNotStochastic  = errors.New("network: outgoing probabilities do not sum to one")
	ErrBadProbability = errors.New("network: transition probability outside [0,1]")
	ErrTrapNode       = errors.New("network: node outside A has no outgoing transitions")
)

// Macrostate tags a node as belonging to the A set, the B set, or neither.
type Macrostate int8

const (
	StateNone Macrostate = iota
	StateA
	StateB
)

func (m Macrostate) String() string {
	switch m {
	case StateA:
		return "A"
	case StateB:
		return "B"
	default:
		return "-"
	}
}

// Node is a state of the transition network.
type Node struct {
	ID     int        `json:"id"`      // index in the full network, kept by sub-network copies
	Pi     float64    `json:"pi"`      // log stationary probability
	CommID int        `json:"comm_id"` // community (basin) assignment
	BinID  int        `json:"bin_id"`
	AorB   Macrostate `json:"aorb"`
	T      float64    `json:"t"`     // self-loop probability
	KEsc   float64    `json:"k_esc"` // log escape rate
	Out    []int      `json:"-"`     // outgoing edge indices
	In     []int      `json:"-"`     // incoming edge indices
}

// Edge is a directed transition between two nodes of the same network.
type Edge struct {
	From   int     `json:"from"`
	To     int     `json:"to"`
	K      float64 `json:"k"` // log transition rate
	T      float64 `json:"t"` // transition probability
	Dead   bool    `json:"dead"`
	Rev    int     `json:"rev"`    // antiparallel edge or NoEdge
	Pos    int     `json:"pos"`    // position in the owning edge store
	Origin int     `json:"origin"` // parent network edge for sub-network copies
}

// Network is an arena-indexed transition network. Nodes and edges live in
// contiguous slices owned by the network and reference each other by index.
type Network struct {
	Nodes []Node
	Edges []Edge

	NodesA mapset.Set[int]
	NodesB mapset.Set[int]

	// InitProbs is the initial occupation probability over B. Empty means
	// the start node is drawn from the stationary distribution.
	InitProbs map[int]float64

	NComms int
	NBins  int
	Tau    float64 // lag time, 0 when T holds branching probabilities
}

// NewNetwork creates a network with numNodes default nodes and no edges.
func NewNetwork(numNodes int) *Network {
	n := &Network{
		Nodes:     make([]Node, numNodes),
		Edges:     make([]Edge, 0),
		NodesA:    mapset.NewThreadUnsafeSet[int](),
		NodesB:    mapset.NewThreadUnsafeSet[int](),
		InitProbs: make(map[int]float64),
	}
	for i := range n.Nodes {
		n.Nodes[i].ID = i
		n.Nodes[i].Pi = math.Inf(-1)
		n.Nodes[i].KEsc = math.Inf(-1)
	}
	return n
}

// NumNodes returns the node count.
func (n *Network) NumNodes() int { return len(n.Nodes) }

// NumEdges returns the size of the edge store, dead edges included.
func (n *Network) NumEdges() int { return len(n.Edges) }

// InitCond reports whether an explicit initial condition over B was given.
func (n *Network) InitCond() bool { return len(n.InitProbs) > 0 }

// AddEdge appends a directed edge and links it into the adjacency lists.
func (n *Network) AddEdge(from, to int, logRate, prob float64) (int, error) {
	if from < 0 || from >= len(n.Nodes) || to < 0 || to >= len(n.Nodes) {
		return NoEdge, fmt.Errorf("add edge %d->%d with %d nodes: %w", from, to, len(n.Nodes), ErrNodeOutOfRange)
	}
	if from == to {
		return NoEdge, fmt.Errorf("add edge %d->%d: %w", from, to, ErrSelfEdge)
	}
	pos := len(n.Edges)
	n.Edges = append(n.Edges, Edge{
		From:   from,
		To:     to,
		K:      logRate,
		T:      prob,
		Rev:    NoEdge,
		Pos:    pos,
		Origin: NoEdge,
	})
	n.Nodes[from].Out = append(n.Nodes[from].Out, pos)
	n.Nodes[to].In = append(n.Nodes[to].In, pos)
	return pos, nil
}

// AddEdgePair adds i->j and j->i and wires them as reverse edges.
func (n *Network) AddEdgePair(i, j int, kij, kji, tij, tji float64) (int, int, error) {
	fwd, err := n.AddEdge(i, j, kij, tij)
	if err != nil {
		return NoEdge, NoEdge, err
	}
	rev, err := n.AddEdge(j, i, kji, tji)
	if err != nil {
		return NoEdge, NoEdge, err
	}
	n.Edges[fwd].Rev = rev
	n.Edges[rev].Rev = fwd
	return fwd, rev, nil
}

// FindEdge returns the live edge from -> to, or NoEdge.
func (n *Network) FindEdge(from, to int) int {
	if from < 0 || from >= len(n.Nodes) {
		return NoEdge
	}
	for _, e := range n.Nodes[from].Out {
		if !n.Edges[e].Dead && n.Edges[e].To == to {
			return e
		}
	}
	return NoEdge
}

// LiveOutDegree counts the non-dead outgoing edges of a node.
func (n *Network) LiveOutDegree(node int) int {
	deg := 0
	for _, e := range n.Nodes[node].Out {
		if !n.Edges[e].Dead {
			deg++
		}
	}
	return deg
}

// Kill marks an edge (and nothing else) as logically removed.
func (n *Network) Kill(edge int) error {
	if edge < 0 || edge >= len(n.Edges) {
		return fmt.Errorf("kill edge %d: %w", edge, ErrEdgeOutOfRange)
	}
	n.Edges[edge].Dead = true
	return nil
}

// RowSum returns the self-loop plus the probabilities of all live outgoing edges.
func (n *Network) RowSum(node int) float64 {
	sum := n.Nodes[node].T
	for _, e := range n.Nodes[node].Out {
		if !n.Edges[e].Dead {
			sum += n.Edges[e].T
		}
	}
	return sum
}

// Clone creates a deep copy that shares no slices or sets with n.
func (n *Network) Clone() *Network {
	clone := &Network{
		Nodes:     make([]Node, len(n.Nodes)),
		Edges:     make([]Edge, len(n.Edges)),
		NodesA:    n.NodesA.Clone(),
		NodesB:    n.NodesB.Clone(),
		InitProbs: make(map[int]float64, len(n.InitProbs)),
		NComms:    n.NComms,
		NBins:     n.NBins,
		Tau:       n.Tau,
	}
	copy(clone.Edges, n.Edges)
	for i, node := range n.Nodes {
		clone.Nodes[i] = node
		clone.Nodes[i].Out = append([]int(nil), node.Out...)
		clone.Nodes[i].In = append([]int(nil), node.In...)
	}
	for k, v := range n.InitProbs {
		clone.InitProbs[k] = v
	}
	return clone
}

// Validate checks index consistency, reverse-edge symmetry and that every
// node with outgoing edges has a stochastic row. Only A nodes may lack live
// outgoing edges; a walker entering any other such node could never leave.
func (n *Network) Validate() error {
	for i, e := range n.Edges {
		if e.From < 0 || e.From >= len(n.Nodes) || e.To < 0 || e.To >= len(n.Nodes) {
			return fmt.Errorf("edge %d (%d->%d): %w", i, e.From, e.To, ErrNodeOutOfRange)
		}
		if e.Pos != i {
			return fmt.Errorf("edge %d has position %d: %w", i, e.Pos, ErrEdgeOutOfRange)
		}
		if e.Rev != NoEdge {
			if e.Rev < 0 || e.Rev >= len(n.Edges) || n.Edges[e.Rev].Rev != i {
				return fmt.Errorf("edge %d has inconsistent reverse %d: %w", i, e.Rev, ErrEdgeOutOfRange)
			}
		}
		if !e.Dead && (e.T < 0 || e.T > 1+StochasticTolerance) {
			return fmt.Errorf("edge %d->%d has t=%g: %w", e.From, e.To, e.T, ErrBadProbability)
		}
	}
	for i := range n.Nodes {
		if n.LiveOutDegree(i) == 0 {
			if n.Nodes[i].AorB != StateA {
				return fmt.Errorf("node %d (%s): %w", i, n.Nodes[i].AorB, ErrTrapNode)
			}
			continue
		}
		if sum := n.RowSum(i); math.Abs(sum-1) > StochasticTolerance {
			return fmt.Errorf("node %d row sum %.12f: %w", i, sum, ErrNotStochastic)
		}
	}
	return nil
}

// SortedB returns the B set in ascending node order.
func (n *Network) SortedB() []int {
	return sortedSet(n.NodesB)
}

// SortedA returns the A set in ascending node order.
func (n *Network) SortedA() []int {
	return sortedSet(n.NodesA)
}

func sortedSet(s mapset.Set[int]) []int {
	out := s.ToSlice()
	slices.Sort(out)
	return out
}
