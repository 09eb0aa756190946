package louvain

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
)

// Result represents the algorithm output
type Result struct {
	Levels []LevelInfo `json:"levels"`
	// FinalCommunities maps every node of the input graph to its top-level
	// community. Community ids are contiguous from zero.
	FinalCommunities []int      `json:"final_communities"`
	NumCommunities   int        `json:"num_communities"`
	Modularity       float64    `json:"modularity"`
	NumLevels        int        `json:"num_levels"`
	Statistics       Statistics `json:"statistics"`
}

// LevelInfo contains information about each hierarchical level
type LevelInfo struct {
	Level          int     `json:"level"`
	Membership     []int   `json:"membership"` // level graph node -> community
	Modularity     float64 `json:"modularity"`
	NumCommunities int     `json:"num_communities"`
	NumMoves       int     `json:"num_moves"`
	RuntimeMS      int64   `json:"runtime_ms"`
}

// Statistics contains algorithm performance metrics
type Statistics struct {
	TotalMoves int   `json:"total_moves"`
	RuntimeMS  int64 `json:"runtime_ms"`
}

// Community represents the state of communities
type Community struct {
	NodeToCommunity          []int     // nodeToComm[i] = community ID of node i
	CommunitySizes           []int     // number of nodes in community c
	CommunityWeights         []float64 // total degree of community c
	CommunityInternalWeights []float64 // internal weight of community c, both directions counted
}

// NewCommunity initializes each node in its own community
func NewCommunity(graph *Graph) *Community {
	n := graph.NumNodes
	comm := &Community{
		NodeToCommunity:          make([]int, n),
		CommunitySizes:           make([]int, n),
		CommunityWeights:         make([]float64, n),
		CommunityInternalWeights: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		comm.NodeToCommunity[i] = i
		comm.CommunitySizes[i] = 1
		comm.CommunityWeights[i] = graph.Degrees[i]
		comm.CommunityInternalWeights[i] = 2 * graph.SelfLoops[i]
	}
	return comm
}

// CalculateModularity computes Newman's modularity with a resolution factor
func CalculateModularity(graph *Graph, comm *Community, resolution float64) float64 {
	if graph.TotalWeight == 0 {
		return 0.0
	}
	m2 := 2.0 * graph.TotalWeight
	modularity := 0.0
	for c := range comm.CommunitySizes {
		if comm.CommunitySizes[c] == 0 {
			continue
		}
		total := comm.CommunityWeights[c] / m2
		modularity += comm.CommunityInternalWeights[c]/m2 - resolution*total*total
	}
	return modularity
}

// Modularity scores an arbitrary node -> community assignment on graph.
func Modularity(graph *Graph, membership []int, resolution float64) float64 {
	k := 0
	for _, c := range membership {
		k = max(k, c+1)
	}
	comm := &Community{
		NodeToCommunity:          membership,
		CommunitySizes:           make([]int, k),
		CommunityWeights:         make([]float64, k),
		CommunityInternalWeights: make([]float64, k),
	}
	for i := 0; i < graph.NumNodes; i++ {
		c := membership[i]
		comm.CommunitySizes[c]++
		comm.CommunityWeights[c] += graph.Degrees[i]
		comm.CommunityInternalWeights[c] += GetEdgeWeightToComm(graph, comm, i, c) + 2*graph.SelfLoops[i]
	}
	return CalculateModularity(graph, comm, resolution)
}

// CalculateModularityGain is the gain of inserting an isolated node into
// targetComm, whose total degree excludes the node.
func CalculateModularityGain(graph *Graph, comm *Community, node, targetComm int, edgeWeight, resolution float64) float64 {
	m := graph.TotalWeight
	return edgeWeight/m - resolution*graph.Degrees[node]*comm.CommunityWeights[targetComm]/(2*m*m)
}

// GetEdgeWeightToComm calculates total edge weight from node to community,
// excluding the node's self-loop
func GetEdgeWeightToComm(graph *Graph, comm *Community, node, targetComm int) float64 {
	weight := 0.0
	neighbors, weights := graph.GetNeighbors(node)
	for i, neighbor := range neighbors {
		if comm.NodeToCommunity[neighbor] == targetComm {
			weight += weights[i]
		}
	}
	return weight
}

func removeNode(graph *Graph, comm *Community, node, c int, weightToComm float64) {
	comm.CommunitySizes[c]--
	comm.CommunityWeights[c] -= graph.Degrees[node]
	comm.CommunityInternalWeights[c] -= 2*weightToComm + 2*graph.SelfLoops[node]
	comm.NodeToCommunity[node] = -1
}

func insertNode(graph *Graph, comm *Community, node, c int, weightToComm float64) {
	comm.CommunitySizes[c]++
	comm.CommunityWeights[c] += graph.Degrees[node]
	comm.CommunityInternalWeights[c] += 2*weightToComm + 2*graph.SelfLoops[node]
	comm.NodeToCommunity[node] = c
}

// OneLevel performs one level of local optimization
func OneLevel(graph *Graph, comm *Community, config *Config, rng *rand.Rand, logger zerolog.Logger) (bool, int) {
	if graph.TotalWeight == 0 {
		return false, 0
	}
	improvement := false
	totalMoves := 0
	resolution := config.Resolution()

	nodes := make([]int, graph.NumNodes)
	for i := range nodes {
		nodes[i] = i
	}

	for iteration := 0; iteration < config.MaxIterations(); iteration++ {
		iterationMoves := 0
		rng.Shuffle(len(nodes), func(i, j int) { nodes[i], nodes[j] = nodes[j], nodes[i] })

		for _, node := range nodes {
			oldComm := comm.NodeToCommunity[node]

			// weights to neighbouring communities, in first-seen order
			neighborWeights := make(map[int]float64)
			order := []int{oldComm}
			neighborWeights[oldComm] = 0
			neighbors, weights := graph.GetNeighbors(node)
			for i, neighbor := range neighbors {
				c := comm.NodeToCommunity[neighbor]
				if _, seen := neighborWeights[c]; !seen {
					order = append(order, c)
				}
				neighborWeights[c] += weights[i]
			}

			removeNode(graph, comm, node, oldComm, neighborWeights[oldComm])

			bestComm := oldComm
			baseGain := CalculateModularityGain(graph, comm, node, oldComm, neighborWeights[oldComm], resolution)
			bestGain := baseGain
			for _, c := range order {
				gain := CalculateModularityGain(graph, comm, node, c, neighborWeights[c], resolution)
				if gain > bestGain {
					bestComm = c
					bestGain = gain
				}
			}
			if bestGain-baseGain <= config.MinModularityGain() {
				bestComm = oldComm
			}

			insertNode(graph, comm, node, bestComm, neighborWeights[bestComm])
			if bestComm != oldComm {
				iterationMoves++
				improvement = true
			}
		}

		totalMoves += iterationMoves
		if config.EnableProgress() && iteration%10 == 0 {
			logger.Info().
				Int("iteration", iteration+1).
				Int("moves", iterationMoves).
				Float64("modularity", CalculateModularity(graph, comm, resolution)).
				Msg("Local optimization progress")
		}
		if iterationMoves == 0 {
			logger.Debug().Int("iteration", iteration+1).Msg("Converged: no moves")
			break
		}
	}
	return improvement, totalMoves
}

// Renumber compacts community ids to 0..k-1 in order of first appearance
// and returns the mapping node -> compact id together with k.
func Renumber(comm *Community) ([]int, int) {
	ids := make(map[int]int)
	membership := make([]int, len(comm.NodeToCommunity))
	for i, c := range comm.NodeToCommunity {
		id, ok := ids[c]
		if !ok {
			id = len(ids)
			ids[c] = id
		}
		membership[i] = id
	}
	return membership, len(ids)
}

// AggregateGraph creates a super-graph with one node per community
func AggregateGraph(graph *Graph, membership []int, numComms int, logger zerolog.Logger) (*Graph, error) {
	if numComms == 0 {
		return nil, fmt.Errorf("no valid communities found")
	}
	type pair struct{ u, v int }
	superEdges := make(map[pair]float64)
	selfLoops := make([]float64, numComms)
	for node := 0; node < graph.NumNodes; node++ {
		ci := membership[node]
		selfLoops[ci] += graph.SelfLoops[node]
		neighbors, weights := graph.GetNeighbors(node)
		for i, neighbor := range neighbors {
			cj := membership[neighbor]
			switch {
			case ci == cj:
				// every internal edge is listed from both ends
				selfLoops[ci] += weights[i] / 2
			case ci < cj:
				superEdges[pair{ci, cj}] += weights[i]
			}
		}
	}

	superGraph := NewGraph(numComms)
	for c, w := range selfLoops {
		if w > 0 {
			if err := superGraph.AddEdge(c, c, w); err != nil {
				return nil, err
			}
		}
	}
	for ci := 0; ci < numComms; ci++ {
		for cj := ci + 1; cj < numComms; cj++ {
			if w, ok := superEdges[pair{ci, cj}]; ok {
				if err := superGraph.AddEdge(ci, cj, w); err != nil {
					return nil, err
				}
			}
		}
	}

	logger.Info().
		Int("original_nodes", graph.NumNodes).
		Int("super_nodes", numComms).
		Float64("compression_ratio", float64(numComms)/float64(graph.NumNodes)).
		Msg("Graph aggregation completed")
	return superGraph, nil
}

// Run executes the complete Louvain algorithm
func Run(ctx context.Context, graph *Graph, config *Config, logger zerolog.Logger) (*Result, error) {
	startTime := time.Now()
	logger.Info().
		Int("nodes", graph.NumNodes).
		Float64("total_weight", graph.TotalWeight).
		Msg("Starting Louvain algorithm")

	if err := graph.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}

	seed := config.RandomSeed()
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	result := &Result{FinalCommunities: make([]int, graph.NumNodes)}
	for i := range result.FinalCommunities {
		result.FinalCommunities[i] = i
	}
	resolution := config.Resolution()

	currentGraph := graph
	for level := 0; level < config.MaxLevels(); level++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		levelStart := time.Now()
		comm := NewCommunity(currentGraph)
		improvement, moves := OneLevel(currentGraph, comm, config, rng, logger)
		membership, numComms := Renumber(comm)

		result.Levels = append(result.Levels, LevelInfo{
			Level:          level,
			Membership:     membership,
			Modularity:     CalculateModularity(currentGraph, comm, resolution),
			NumCommunities: numComms,
			NumMoves:       moves,
			RuntimeMS:      time.Since(levelStart).Milliseconds(),
		})
		result.Statistics.TotalMoves += moves
		for i, c := range result.FinalCommunities {
			result.FinalCommunities[i] = membership[c]
		}

		if !improvement {
			logger.Info().Int("level", level).Msg("No improvement, stopping")
			break
		}
		if numComms == 1 {
			logger.Info().Int("level", level).Msg("Single community remaining, stopping")
			break
		}

		superGraph, err := AggregateGraph(currentGraph, membership, numComms, logger)
		if err != nil {
			return nil, fmt.Errorf("aggregation failed at level %d: %w", level, err)
		}
		if superGraph.NumNodes >= currentGraph.NumNodes {
			logger.Info().Msg("No compression achieved, stopping")
			break
		}
		currentGraph = superGraph
	}

	result.NumLevels = len(result.Levels)
	for _, c := range result.FinalCommunities {
		result.NumCommunities = max(result.NumCommunities, c+1)
	}
	result.Modularity = Modularity(graph, result.FinalCommunities, resolution)
	result.Statistics.RuntimeMS = time.Since(startTime).Milliseconds()

	logger.Info().
		Int("levels", result.NumLevels).
		Int("communities", result.NumCommunities).
		Float64("final_modularity", result.Modularity).
		Int64("runtime_ms", result.Statistics.RuntimeMS).
		Msg("Louvain algorithm completed")
	return result, nil
}
