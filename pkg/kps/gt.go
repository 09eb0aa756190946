package kps

import (
	"fmt"
	"math"

	"github.com/tidwall/btree"

	"github.com/gilchrisn/kinetic-path-sampling/pkg/network"
)

// elimKey orders basin nodes for elimination: fewest live successors first,
// ties broken by insertion order.
type elimKey struct {
	degree int
	seq    int
	node   int
}

func elimLess(a, b elimKey) bool {
	if a.degree != b.degree {
		return a.degree < b.degree
	}
	return a.seq < b.seq
}

type eliminationQueue struct {
	tree *btree.BTreeG[elimKey]
	keys map[int]elimKey
	seq  int
}

func newEliminationQueue() *eliminationQueue {
	return &eliminationQueue{
		tree: btree.NewBTreeGOptions(elimLess, btree.Options{NoLocks: true}),
		keys: make(map[int]elimKey),
	}
}

func (q *eliminationQueue) push(node, degree int) {
	k := elimKey{degree: degree, seq: q.seq, node: node}
	q.seq++
	q.tree.Set(k)
	q.keys[node] = k
}

// rekey updates the degree of a queued node; unknown nodes are ignored.
func (q *eliminationQueue) rekey(node, degree int) {
	k, ok := q.keys[node]
	if !ok || k.degree == degree {
		return
	}
	q.tree.Delete(k)
	k.degree = degree
	q.tree.Set(k)
	q.keys[node] = k
}

func (q *eliminationQueue) pop() (int, bool) {
	k, ok := q.tree.PopMin()
	if !ok {
		return -1, false
	}
	delete(q.keys, k.node)
	return k.node, true
}

func (q *eliminationQueue) Len() int { return q.tree.Len() }

// Transformation holds the graph transformation of one basin sub-network.
//
// Eliminating node n renormalises its row onto the remaining nodes, zeroes
// its column (edges into n are ignored, not removed) and routes every
// predecessor's flux through n directly to n's successors. The
// pre-elimination probabilities are kept in L (edges γ->n) and U (edges n->β
// plus U.Nodes[n].T for the self-loop) so that each step can be undone.
type Transformation struct {
	Work *network.Network // transformed in place from T^(N) towards T^(0)
	Orig *network.Network // T^(N), untouched
	L    *network.Network
	U    *network.Network

	Eliminated []int // sub-network indices in elimination order

	eliminated []bool
	basin      []bool
	factors    []float64 // escape probability used when each node was eliminated
	created    [][]int   // fill-in edges created by each elimination
	threshold  float64
}

// NewTransformation prepares the elimination of work's basin nodes. orig
// must be an independent copy of work.
func NewTransformation(work, orig *network.Network, state *BasinState, threshold float64) *Transformation {
	n := work.NumNodes()
	t := &Transformation{
		Work:       work,
		Orig:       orig,
		L:          undoNetwork(work),
		U:          undoNetwork(work),
		Eliminated: make([]int, 0, state.NB),
		eliminated: make([]bool, n),
		basin:      make([]bool, n),
		factors:    make([]float64, n),
		created:    make([][]int, n),
		threshold:  threshold,
	}
	for j, full := range state.SubToFull {
		t.basin[j] = state.Labels[full] == LabelBasin
	}
	return t
}

// undoNetwork copies the node set of net with zero probabilities and no edges.
func undoNetwork(net *network.Network) *network.Network {
	u := network.NewNetwork(net.NumNodes())
	for i, node := range net.Nodes {
		node.T = 0
		node.Out, node.In = nil, nil
		u.Nodes[i] = node
	}
	return u
}

// IsBasin reports whether sub-network node n is a basin node.
func (t *Transformation) IsBasin(n int) bool { return t.basin[n] }

// IsEliminated reports whether sub-network node n is currently eliminated.
func (t *Transformation) IsEliminated(n int) bool { return t.eliminated[n] }

// Factor returns the escape probability used when n was eliminated.
func (t *Transformation) Factor(n int) float64 { return t.factors[n] }

// degree counts the live successors of n that are still present.
func (t *Transformation) degree(n int) int {
	d := 0
	for _, e := range t.Work.Nodes[n].Out {
		if edge := t.Work.Edges[e]; !edge.Dead && !t.eliminated[edge.To] {
			d++
		}
	}
	return d
}

// RowSum returns the outgoing probability of n over present nodes.
func (t *Transformation) RowSum(n int) float64 {
	sum := t.Work.Nodes[n].T
	for _, e := range t.Work.Nodes[n].Out {
		if edge := t.Work.Edges[e]; !edge.Dead && !t.eliminated[edge.To] {
			sum += edge.T
		}
	}
	return sum
}

// Run eliminates up to nelim basin nodes in order of increasing degree.
func (t *Transformation) Run(nelim int) error {
	nb := 0
	q := newEliminationQueue()
	for j, isBasin := range t.basin {
		if isBasin && !t.eliminated[j] {
			q.push(j, t.degree(j))
			nb++
		}
	}
	want := min(nb, nelim)
	for q.Len() > 0 && len(t.Eliminated) < want {
		n, _ := q.pop()
		if err := t.Eliminate(n); err != nil {
			return err
		}
		for _, e := range t.L.Nodes[n].In {
			g := t.L.Edges[e].From
			q.rekey(g, t.degree(g))
		}
	}
	if len(t.Eliminated) != want {
		return fmt.Errorf("eliminated %d nodes, expected %d: %w", len(t.Eliminated), want, ErrInvariantViolation)
	}
	return nil
}

// Eliminate removes basin node n from the working network.
func (t *Transformation) Eliminate(n int) error {
	if n < 0 || n >= len(t.basin) || !t.basin[n] || t.eliminated[n] {
		return fmt.Errorf("node %d cannot be eliminated: %w", n, ErrInvariantViolation)
	}
	w := t.Work
	tnn := w.Nodes[n].T

	succs := make([]int, 0, len(w.Nodes[n].Out))
	escape := 0.0
	for _, e := range w.Nodes[n].Out {
		if edge := w.Edges[e]; !edge.Dead && !t.eliminated[edge.To] {
			succs = append(succs, e)
			escape += edge.T
		}
	}
	factor := 1 - tnn
	if tnn > t.threshold {
		factor = escape
	}
	if factor <= 0 || len(succs) == 0 {
		return fmt.Errorf("node %d has no escape (t_nn=%g): %w", n, tnn, ErrInvariantViolation)
	}
	t.factors[n] = factor

	t.U.Nodes[n].T = tnn
	for _, e := range succs {
		edge := w.Edges[e]
		if _, err := t.U.AddEdge(n, edge.To, edge.K, edge.T); err != nil {
			return err
		}
	}
	for _, e := range w.Nodes[n].In {
		if edge := w.Edges[e]; !edge.Dead && edge.From != n {
			if _, err := t.L.AddEdge(edge.From, n, edge.K, edge.T); err != nil {
				return err
			}
		}
	}

	for _, le := range t.L.Nodes[n].In {
		gamma, tgn := t.L.Edges[le].From, t.L.Edges[le].T
		for _, ue := range t.U.Nodes[n].Out {
			beta, tnb := t.U.Edges[ue].To, t.U.Edges[ue].T
			if err := t.addFlux(n, gamma, beta, tgn*tnb/factor); err != nil {
				return err
			}
		}
	}

	for _, e := range succs {
		w.Edges[e].T += w.Edges[e].T * tnn / factor
	}
	w.Nodes[n].T = 0
	t.eliminated[n] = true
	t.Eliminated = append(t.Eliminated, n)
	return nil
}

// addFlux adds delta to T_γβ, creating the fill-in edge when missing.
func (t *Transformation) addFlux(n, gamma, beta int, delta float64) error {
	w := t.Work
	if gamma == beta {
		w.Nodes[gamma].T += delta
		return nil
	}
	if e := w.FindEdge(gamma, beta); e != network.NoEdge {
		w.Edges[e].T += delta
		return nil
	}
	// effective log rate at creation; not maintained afterwards
	k := w.Nodes[gamma].KEsc + math.Log(delta)
	e, err := w.AddEdge(gamma, beta, k, delta)
	if err != nil {
		return err
	}
	t.created[n] = append(t.created[n], e)
	if t.basin[beta] {
		if r := w.FindEdge(beta, gamma); r != network.NoEdge && w.Edges[r].Rev == network.NoEdge {
			w.Edges[e].Rev = r
			w.Edges[r].Rev = e
		}
	}
	return nil
}

// Undo restores the probabilities from before n was eliminated. Only the
// most recently eliminated node can be undone.
func (t *Transformation) Undo(n int) error {
	last := len(t.Eliminated) - 1
	if last < 0 || t.Eliminated[last] != n {
		return fmt.Errorf("node %d is not the last eliminated node: %w", n, ErrInvariantViolation)
	}
	w := t.Work
	factor := t.factors[n]

	for _, le := range t.L.Nodes[n].In {
		gamma, tgn := t.L.Edges[le].From, t.L.Edges[le].T
		for _, ue := range t.U.Nodes[n].Out {
			beta, tnb := t.U.Edges[ue].To, t.U.Edges[ue].T
			delta := tgn * tnb / factor
			if gamma == beta {
				w.Nodes[gamma].T = max(0, w.Nodes[gamma].T-delta)
				continue
			}
			e := w.FindEdge(gamma, beta)
			if e == network.NoEdge {
				return fmt.Errorf("undo %d: edge %d->%d missing: %w", n, gamma, beta, ErrInvariantViolation)
			}
			w.Edges[e].T = max(0, w.Edges[e].T-delta)
		}
	}

	for _, ue := range t.U.Nodes[n].Out {
		beta := t.U.Edges[ue].To
		e := w.FindEdge(n, beta)
		if e == network.NoEdge {
			return fmt.Errorf("undo %d: edge %d->%d missing: %w", n, n, beta, ErrInvariantViolation)
		}
		w.Edges[e].T = t.U.Edges[ue].T
	}
	w.Nodes[n].T = t.U.Nodes[n].T

	for _, e := range t.created[n] {
		edge := &w.Edges[e]
		if edge.Rev != network.NoEdge {
			w.Edges[edge.Rev].Rev = network.NoEdge
			edge.Rev = network.NoEdge
		}
		edge.T = 0
		edge.Dead = true
	}
	t.created[n] = nil

	t.eliminated[n] = false
	t.Eliminated = t.Eliminated[:last]
	return nil
}

// prob returns the current probability T_γβ of the working network, or 0
// when there is no such edge.
func (t *Transformation) prob(gamma, beta int) float64 {
	if gamma == beta {
		return t.Work.Nodes[gamma].T
	}
	if e := t.Work.FindEdge(gamma, beta); e != network.NoEdge {
		return t.Work.Edges[e].T
	}
	return 0
}
