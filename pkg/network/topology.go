package network

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

var ErrDisconnected = errors.New("network: B is not connected to A")

// Directed returns the live edges of the network as a gonum directed graph
// whose node ids are the network node indices.
func (n *Network) Directed() *simple.DirectedGraph {
	g := simple.NewDirectedGraph()
	for i := range n.Nodes {
		g.AddNode(simple.Node(i))
	}
	for _, e := range n.Edges {
		if e.Dead || g.HasEdgeFromTo(int64(e.From), int64(e.To)) {
			continue
		}
		g.SetEdge(g.NewEdge(simple.Node(e.From), simple.Node(e.To)))
	}
	return g
}

// Components returns the strongly connected components of the live network,
// each as a list of node indices.
func (n *Network) Components() [][]int {
	sccs := topo.TarjanSCC(n.Directed())
	out := make([][]int, len(sccs))
	for i, scc := range sccs {
		ids := make([]int, len(scc))
		for j, node := range scc {
			ids[j] = int(node.ID())
		}
		out[i] = ids
	}
	return out
}

// CheckConnectivity returns ErrDisconnected if some B node cannot reach any
// A node along live edges.
func (n *Network) CheckConnectivity() error {
	if n.NodesA.Cardinality() == 0 || n.NodesB.Cardinality() == 0 {
		return nil
	}
	g := n.Directed()
	targets := n.SortedA()
	for _, b := range n.SortedB() {
		if !reachesAny(g, b, targets) {
			return fmt.Errorf("node %d: %w", b, ErrDisconnected)
		}
	}
	return nil
}

func reachesAny(g graph.Directed, from int, targets []int) bool {
	for _, a := range targets {
		if topo.PathExistsIn(g, simple.Node(from), simple.Node(a)) {
			return true
		}
	}
	return false
}
