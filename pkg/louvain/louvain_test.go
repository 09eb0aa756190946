package louvain

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/kinetic-path-sampling/pkg/network"
)

func testConfig() *Config {
	config := NewConfig()
	config.Set("logging.level", "error")
	return config
}

// twoCliques builds two complete graphs of size k joined by one weak edge.
func twoCliques(t *testing.T, k int, bridge float64) *Graph {
	t.Helper()
	g := NewGraph(2 * k)
	for offset := 0; offset < 2*k; offset += k {
		for i := 0; i < k; i++ {
			for j := i + 1; j < k; j++ {
				require.NoError(t, g.AddEdge(offset+i, offset+j, 1))
			}
		}
	}
	require.NoError(t, g.AddEdge(0, k, bridge))
	return g
}

func TestGraphAddEdge(t *testing.T) {
	g := NewGraph(3)
	require.NoError(t, g.AddEdge(0, 1, 2))
	require.NoError(t, g.AddEdge(2, 2, 1))

	assert.Equal(t, []float64{2, 2, 2}, g.Degrees)
	assert.Equal(t, 3.0, g.TotalWeight)
	assert.Equal(t, 1.0, g.SelfLoops[2])
	assert.Empty(t, g.Adjacency[2])
	require.NoError(t, g.Validate())

	assert.Error(t, g.AddEdge(0, 3, 1))
	assert.Error(t, g.AddEdge(0, 1, 0))
	assert.Error(t, g.AddEdge(0, 1, math.Inf(1)))
	assert.Error(t, NewGraph(0).Validate())
}

func TestModularity(t *testing.T) {
	g := NewGraph(6)
	for _, tri := range [][3]int{{0, 1, 2}, {3, 4, 5}} {
		require.NoError(t, g.AddEdge(tri[0], tri[1], 1))
		require.NoError(t, g.AddEdge(tri[1], tri[2], 1))
		require.NoError(t, g.AddEdge(tri[2], tri[0], 1))
	}

	tests := []struct {
		name       string
		membership []int
		resolution float64
		want       float64
	}{
		{"triangles", []int{0, 0, 0, 1, 1, 1}, 1, 0.5},
		{"single community", []int{0, 0, 0, 0, 0, 0}, 1, 0},
		{"singletons", []int{0, 1, 2, 3, 4, 5}, 1, -6.0 / 36},
		{"low resolution", []int{0, 0, 0, 1, 1, 1}, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Modularity(g, tt.membership, tt.resolution), 1e-12)
		})
	}
}

func TestModularityGainMatchesDifference(t *testing.T) {
	g := twoCliques(t, 4, 0.1)
	comm := NewCommunity(g)
	before := CalculateModularity(g, comm, 1)

	// move node 1 into node 0's community
	w := GetEdgeWeightToComm(g, comm, 1, 1)
	removeNode(g, comm, 1, 1, w)
	gainStay := CalculateModularityGain(g, comm, 1, 1, w, 1)
	to := GetEdgeWeightToComm(g, comm, 1, 0)
	gainMove := CalculateModularityGain(g, comm, 1, 0, to, 1)
	insertNode(g, comm, 1, 0, to)

	after := CalculateModularity(g, comm, 1)
	assert.InDelta(t, after-before, gainMove-gainStay, 1e-12)
}

func TestRunFindsCliques(t *testing.T) {
	g := twoCliques(t, 5, 0.05)
	result, err := Run(context.Background(), g, testConfig(), zerolog.Nop())
	require.NoError(t, err)

	require.Len(t, result.FinalCommunities, 10)
	assert.Equal(t, 2, result.NumCommunities)
	for i := 1; i < 5; i++ {
		assert.Equal(t, result.FinalCommunities[0], result.FinalCommunities[i])
		assert.Equal(t, result.FinalCommunities[5], result.FinalCommunities[5+i])
	}
	assert.NotEqual(t, result.FinalCommunities[0], result.FinalCommunities[5])
	assert.Greater(t, result.Modularity, 0.4)
	assert.Equal(t, len(result.Levels), result.NumLevels)
}

func TestRunIsReproducible(t *testing.T) {
	g := twoCliques(t, 6, 0.5)
	first, err := Run(context.Background(), g, testConfig(), zerolog.Nop())
	require.NoError(t, err)
	second, err := Run(context.Background(), g, testConfig(), zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, first.FinalCommunities, second.FinalCommunities)
}

func TestRunWithoutEdges(t *testing.T) {
	result, err := Run(context.Background(), NewGraph(3), testConfig(), zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, result.FinalCommunities)
	assert.Equal(t, 3, result.NumCommunities)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, twoCliques(t, 3, 1), testConfig(), zerolog.Nop())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAggregateGraphPreservesWeight(t *testing.T) {
	g := twoCliques(t, 4, 0.25)
	membership := []int{0, 0, 0, 0, 1, 1, 1, 1}
	super, err := AggregateGraph(g, membership, 2, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, 2, super.NumNodes)
	assert.InDelta(t, g.TotalWeight, super.TotalWeight, 1e-12)
	assert.InDelta(t, 6.0, super.SelfLoops[0], 1e-12)
	assert.InDelta(t, 6.0, super.SelfLoops[1], 1e-12)
	assert.Equal(t, []int{1}, super.Adjacency[0])
	assert.InDelta(t, 0.25, super.Weights[0][0], 1e-12)
	assert.InDelta(t, Modularity(g, membership, 1), Modularity(super, []int{0, 1}, 1), 1e-12)
}

func TestFromNetwork(t *testing.T) {
	net, err := network.Build(network.Spec{
		LogPi: []float64{math.Log(0.5), math.Log(0.25), math.Log(0.25)},
		Pairs: []network.RatePair{
			{I: 0, J: 1, LogKij: 0, LogKji: math.Log(2)},
			{I: 1, J: 2, LogKij: 0, LogKji: 0},
		},
	})
	require.NoError(t, err)

	g, err := FromNetwork(net)
	require.NoError(t, err)
	assert.Equal(t, 3, g.NumNodes)
	assert.InDelta(t, 3.0, g.TotalWeight, 1e-12)
	assert.InDeltaSlice(t, []float64{2, 3, 1}, g.Degrees, 1e-12)
}

func TestDetectAssignsCommunities(t *testing.T) {
	slow := math.Log(1e-3)
	net, err := network.Build(network.Spec{
		LogPi: []float64{-math.Log(6), -math.Log(6), -math.Log(6), -math.Log(6), -math.Log(6), -math.Log(6)},
		Pairs: []network.RatePair{
			{I: 0, J: 1}, {I: 1, J: 2}, {I: 2, J: 0},
			{I: 3, J: 4}, {I: 4, J: 5}, {I: 5, J: 3},
			{I: 2, J: 3, LogKij: slow, LogKji: slow},
		},
		NodesA: []int{5},
		NodesB: []int{0},
	})
	require.NoError(t, err)
	require.Zero(t, net.NComms)

	_, err = Detect(context.Background(), net, testConfig(), zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, 2, net.NComms)
	assert.Equal(t, 2, net.NBins)
	for _, i := range []int{1, 2} {
		assert.Equal(t, net.Nodes[0].CommID, net.Nodes[i].CommID)
	}
	for _, i := range []int{4, 5} {
		assert.Equal(t, net.Nodes[3].CommID, net.Nodes[i].CommID)
	}
	assert.NotEqual(t, net.Nodes[0].CommID, net.Nodes[3].CommID)
	assert.Equal(t, net.Nodes[4].CommID, net.Nodes[4].BinID)
}

func TestApplyRejectsWrongSize(t *testing.T) {
	net := network.NewNetwork(2)
	assert.Error(t, Apply(net, &Result{FinalCommunities: []int{0}}))
}

func TestOutputWriter(t *testing.T) {
	g := twoCliques(t, 3, 0.1)
	result, err := Run(context.Background(), g, testConfig(), zerolog.Nop())
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, NewFileWriter().WriteAll(result, dir, "flux"))

	mapping, err := os.ReadFile(filepath.Join(dir, "flux.mapping"))
	require.NoError(t, err)
	lines := strings.Fields(string(mapping))
	// two headers, two counts, six nodes
	assert.Len(t, lines, 10)
	assert.True(t, strings.HasPrefix(lines[0], "c0_l"))
	assert.Equal(t, "3", lines[1])

	_, err = os.Stat(filepath.Join(dir, "flux.hierarchy"))
	assert.NoError(t, err)
}
