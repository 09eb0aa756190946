package kmc

import (
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/kinetic-path-sampling/pkg/network"
	"github.com/gilchrisn/kinetic-path-sampling/pkg/sampling"
)

// threeState builds A(0) - x(1) - B(2) with each node in its own bin.
func threeState(t *testing.T, tau float64) *network.Network {
	t.Helper()
	net, err := network.Build(network.Spec{
		LogPi: []float64{math.Log(0.2), math.Log(0.3), math.Log(0.5)},
		Pairs: []network.RatePair{
			{I: 0, J: 1, LogKij: 0, LogKji: math.Log(3)},
			{I: 1, J: 2, LogKij: 0, LogKji: 0},
		},
		Communities: []int{0, 1, 2},
		NodesA:      []int{0},
		NodesB:      []int{2},
		Tau:         tau,
	})
	require.NoError(t, err)
	return net
}

type countingRecorder struct {
	steps, paths, newPaths int
}

func (r *countingRecorder) WriteStep(w *Walker, commID int, newPath bool) error {
	r.steps++
	if newPath {
		r.newPaths++
	}
	return nil
}

func (r *countingRecorder) WritePath(w *Walker) error {
	r.paths++
	return nil
}

func TestSampleStart(t *testing.T) {
	rng := sampling.NewRNG(5)

	net := network.NewNetwork(3)
	_, _, err := SampleStart(net, rng)
	assert.ErrorIs(t, err, ErrNoStartNode)

	require.NoError(t, net.SetMacrostates(nil, []int{2}))
	node, logProb, err := SampleStart(net, rng)
	require.NoError(t, err)
	assert.Equal(t, 2, node)
	assert.Zero(t, logProb)

	net.Nodes[0].Pi = math.Log(0.1)
	net.Nodes[1].Pi = math.Log(0.3)
	require.NoError(t, net.SetMacrostates(nil, []int{0, 1}))
	counts := map[int]int{}
	const draws = 40000
	for i := 0; i < draws; i++ {
		node, _, err := SampleStart(net, rng)
		require.NoError(t, err)
		counts[node]++
	}
	assert.InDelta(t, 0.25, float64(counts[0])/draws, 0.01)

	net.InitProbs[0] = 0.9
	net.InitProbs[1] = 0.1
	counts = map[int]int{}
	for i := 0; i < draws; i++ {
		node, logProb, err := SampleStart(net, rng)
		require.NoError(t, err)
		if node == 0 {
			assert.InDelta(t, math.Log(0.9), logProb, 1e-12)
		}
		counts[node]++
	}
	assert.InDelta(t, 0.9, float64(counts[0])/draws, 0.01)

	// weights in initcond.dat need not sum to one
	net.InitProbs[0] = 3
	net.InitProbs[1] = 1
	for i := 0; i < 200; i++ {
		node, logProb, err := SampleStart(net, rng)
		require.NoError(t, err)
		want := math.Log(0.25)
		if node == 0 {
			want = math.Log(0.75)
		}
		assert.InDelta(t, want, logProb, 1e-12)
	}
}

func TestBKLStep(t *testing.T) {
	net := threeState(t, 0)
	rng := sampling.NewRNG(9)
	w := NewWalker(0, net.NBins)

	res, err := NewBKL(net, rng).Step(context.Background(), w)
	require.NoError(t, err)
	assert.True(t, res.NewPath)
	assert.Equal(t, 2, res.From)
	assert.Equal(t, 1, res.To, "B has a single neighbour")
	assert.Equal(t, 1, w.Steps)
	assert.Greater(t, w.Time, 0.0)
	assert.InDelta(t, 0.0, w.LogProb, 1e-12)
	assert.True(t, w.Visited[2])
	assert.True(t, w.Visited[1])
}

func TestBKLEntropyFlow(t *testing.T) {
	net, err := network.Build(network.Spec{
		LogPi: []float64{math.Log(0.5), math.Log(0.3), math.Log(0.2)},
		Pairs: []network.RatePair{
			{I: 0, J: 1, LogKij: math.Log(2), LogKji: math.Log(5)},
			{I: 1, J: 2, LogKij: math.Log(0.5), LogKji: math.Log(4)},
		},
		NodesA: []int{0},
		NodesB: []int{2},
	})
	require.NoError(t, err)
	bkl := NewBKL(net, sampling.NewRNG(31))
	w := NewWalker(0, net.NBins)

	res, err := bkl.Step(context.Background(), w)
	require.NoError(t, err)
	require.Equal(t, 1, res.To)
	assert.InDelta(t, math.Log(0.5)-math.Log(4), w.Entropy, 1e-12)

	want := w.Entropy
	for i := 0; i < 10000 && !res.ReachedA; i++ {
		res, err = bkl.Step(context.Background(), w)
		require.NoError(t, err)
		e := net.FindEdge(res.From, res.To)
		require.NotEqual(t, network.NoEdge, e)
		want += net.Edges[net.Edges[e].Rev].K - net.Edges[e].K
	}
	require.True(t, res.ReachedA)
	assert.InDelta(t, want, w.Entropy, 1e-9)
}

func TestBKLLagTimeSelfLoops(t *testing.T) {
	net := threeState(t, 0.05)
	rng := sampling.NewRNG(2)
	w := NewWalker(0, net.NBins)
	bkl := NewBKL(net, rng)

	stays := 0
	for i := 0; i < 200; i++ {
		res, err := bkl.Step(context.Background(), w)
		require.NoError(t, err)
		assert.Equal(t, 0.05, res.Dt)
		if res.From == res.To {
			stays++
		}
		if res.ReachedA {
			w.Reset()
		}
	}
	assert.Greater(t, stays, 100)
}

func TestSimulationCollectsPaths(t *testing.T) {
	net := threeState(t, 0)
	rng := sampling.NewRNG(21)
	bkl := NewBKL(net, rng)
	sim := NewSimulation(net, bkl, nil, Options{
		NABPaths:      25,
		MaxIterations: 100000,
		TrackBins:     true,
	}, zerolog.Nop())
	rec := &countingRecorder{}
	sim.SetRecorder(rec)

	w := NewWalker(0, net.NBins)
	res, err := sim.Run(context.Background(), w)
	require.NoError(t, err)

	stats := res.Stats
	assert.Equal(t, 25, stats.NAB)
	assert.Equal(t, 25, w.PathNo)
	assert.Equal(t, -1, w.NodeID)
	assert.Equal(t, 25, rec.paths)
	assert.Equal(t, 25, rec.newPaths)
	assert.Equal(t, res.Iterations, rec.steps)

	// every successful path passes through x and starts in B
	assert.Equal(t, 25, stats.Successes[1])
	assert.Equal(t, 25, stats.Successes[2])
	assert.InDelta(t, 1.0, stats.TPDensities[1], 1e-12)
	assert.Greater(t, stats.Failures[1], 0)
	assert.Equal(t, stats.NTraj-stats.NAB, stats.Failures[2])
	assert.InDelta(t, 25.0/float64(25+stats.Failures[1]), stats.Committors[1], 1e-12)
}

func TestSimulationIterationCapAndCancel(t *testing.T) {
	net := threeState(t, 0)
	sim := NewSimulation(net, NewBKL(net, sampling.NewRNG(1)), nil, Options{
		NABPaths:      1000,
		MaxIterations: 7,
	}, zerolog.Nop())
	res, err := sim.Run(context.Background(), NewWalker(0, net.NBins))
	require.NoError(t, err)
	assert.Equal(t, 7, res.Iterations)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err = sim.Run(ctx, NewWalker(0, net.NBins))
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Zero(t, res.Iterations)
}

func TestTPStatsFinalizeUnvisited(t *testing.T) {
	s := NewTPStats(2)
	w := NewWalker(0, 2)
	w.Visited[0] = true
	s.Update(w, true, true)
	assert.False(t, w.Visited[0])
	s.Finalize()
	assert.Equal(t, []float64{1, 0}, s.Committors)
	assert.Equal(t, []float64{1, 0}, s.TPDensities)
}
