package louvain

import (
	"fmt"
	"math"
	"sort"

	"github.com/gilchrisn/kinetic-path-sampling/pkg/network"
)

// Graph represents a weighted undirected graph using simple arrays
type Graph struct {
	NumNodes    int         `json:"num_nodes"`
	Adjacency   [][]int     `json:"-"` // adjacency[i] = list of neighbors of node i
	Weights     [][]float64 `json:"-"` // weights[i][j] = weight of edge from node i to neighbor adjacency[i][j]
	SelfLoops   []float64   `json:"-"`
	Degrees     []float64   `json:"degrees"`      // weighted degree, self-loops counted twice
	TotalWeight float64     `json:"total_weight"` // sum of all edge weights
}

// NewGraph creates a new graph with n nodes
func NewGraph(numNodes int) *Graph {
	return &Graph{
		NumNodes:  numNodes,
		Adjacency: make([][]int, numNodes),
		Weights:   make([][]float64, numNodes),
		SelfLoops: make([]float64, numNodes),
		Degrees:   make([]float64, numNodes),
	}
}

// AddEdge adds a weighted edge between two nodes
func (g *Graph) AddEdge(u, v int, weight float64) error {
	if u < 0 || u >= g.NumNodes || v < 0 || v >= g.NumNodes {
		return fmt.Errorf("node index out of range: u=%d, v=%d, numNodes=%d", u, v, g.NumNodes)
	}
	if weight <= 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
		return fmt.Errorf("edge weight must be positive and finite: %g", weight)
	}

	if u == v {
		g.SelfLoops[u] += weight
		g.Degrees[u] += 2 * weight
		g.TotalWeight += weight
		return nil
	}

	g.Adjacency[u] = append(g.Adjacency[u], v)
	g.Weights[u] = append(g.Weights[u], weight)
	g.Degrees[u] += weight

	g.Adjacency[v] = append(g.Adjacency[v], u)
	g.Weights[v] = append(g.Weights[v], weight)
	g.Degrees[v] += weight

	g.TotalWeight += weight
	return nil
}

// GetNeighbors returns neighbors and their edge weights for a node
func (g *Graph) GetNeighbors(node int) ([]int, []float64) {
	if node < 0 || node >= g.NumNodes {
		return nil, nil
	}
	return g.Adjacency[node], g.Weights[node]
}

// Validate checks graph consistency
func (g *Graph) Validate() error {
	if g.NumNodes <= 0 {
		return fmt.Errorf("graph must have positive number of nodes")
	}
	for i := 0; i < g.NumNodes; i++ {
		if len(g.Adjacency[i]) != len(g.Weights[i]) {
			return fmt.Errorf("adjacency and weights arrays inconsistent for node %d", i)
		}
		for j, neighbor := range g.Adjacency[i] {
			if neighbor < 0 || neighbor >= g.NumNodes {
				return fmt.Errorf("invalid neighbor %d for node %d", neighbor, i)
			}
			if g.Weights[i][j] <= 0 {
				return fmt.Errorf("non-positive weight %g for edge %d-%d", g.Weights[i][j], i, neighbor)
			}
		}
	}
	return nil
}

// FromNetwork builds the symmetrised equilibrium-flux graph of a transition
// network: the weight of {i,j} is pi_i k_ij + pi_j k_ji over live edges.
// Fluxes are scaled by the largest one so that tiny stationary
// probabilities do not underflow; modularity is invariant to the scale.
func FromNetwork(net *network.Network) (*Graph, error) {
	type pair struct{ u, v int }
	logFlux := make(map[pair][]float64)
	maxLog := math.Inf(-1)
	for _, e := range net.Edges {
		if e.Dead {
			continue
		}
		lf := net.Nodes[e.From].Pi + e.K
		if math.IsInf(lf, -1) || math.IsNaN(lf) {
			continue
		}
		key := pair{min(e.From, e.To), max(e.From, e.To)}
		logFlux[key] = append(logFlux[key], lf)
		maxLog = max(maxLog, lf)
	}

	keys := make([]pair, 0, len(logFlux))
	for k := range logFlux {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].u != keys[b].u {
			return keys[a].u < keys[b].u
		}
		return keys[a].v < keys[b].v
	})

	g := NewGraph(net.NumNodes())
	for _, k := range keys {
		w := 0.0
		for _, lf := range logFlux[k] {
			w += math.Exp(lf - maxLog)
		}
		if w <= 0 {
			continue
		}
		if err := g.AddEdge(k.u, k.v, w); err != nil {
			return nil, err
		}
	}
	return g, nil
}
