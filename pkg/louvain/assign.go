package louvain

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/kinetic-path-sampling/pkg/network"
)

// Detect runs Louvain on the equilibrium-flux graph of net and writes the
// resulting communities into the network.
func Detect(ctx context.Context, net *network.Network, config *Config, logger zerolog.Logger) (*Result, error) {
	graph, err := FromNetwork(net)
	if err != nil {
		return nil, fmt.Errorf("flux graph: %w", err)
	}
	result, err := Run(ctx, graph, config, logger)
	if err != nil {
		return nil, err
	}
	if err := Apply(net, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Apply sets CommID and NComms from the final communities. Bins follow the
// communities when the network has no bins of its own.
func Apply(net *network.Network, result *Result) error {
	if len(result.FinalCommunities) != net.NumNodes() {
		return fmt.Errorf("%d community assignments for %d nodes", len(result.FinalCommunities), net.NumNodes())
	}
	for i, c := range result.FinalCommunities {
		net.Nodes[i].CommID = c
	}
	net.NComms = result.NumCommunities
	if net.NBins == 0 {
		for i := range net.Nodes {
			net.Nodes[i].BinID = net.Nodes[i].CommID
		}
		net.NBins = net.NComms
	}
	return nil
}
