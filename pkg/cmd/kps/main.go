package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gilchrisn/kinetic-path-sampling/pkg/kmc"
	"github.com/gilchrisn/kinetic-path-sampling/pkg/kps"
	"github.com/gilchrisn/kinetic-path-sampling/pkg/louvain"
	"github.com/gilchrisn/kinetic-path-sampling/pkg/network"
	"github.com/gilchrisn/kinetic-path-sampling/pkg/output"
	"github.com/gilchrisn/kinetic-path-sampling/pkg/sampling"
	"github.com/gilchrisn/kinetic-path-sampling/pkg/server"
)

var version = "dev"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("kps failed")
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "kps",
		Short:        "kps samples A<-B transition paths on a transition network with kinetic path sampling",
		Version:      version,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringP("config", "c", "", "Configuration file (yaml, toml or json)")
	cmd.PersistentFlags().String("log-level", "info", "Log level")
	cmd.PersistentFlags().Float64("tau", 0, "Lag time; 0 uses branching probabilities and sampled waiting times")

	cmd.AddCommand(runCmd())
	cmd.AddCommand(communitiesCmd())
	return cmd
}

// bindFlags maps command-line flags onto configuration keys.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for flag, key := range keys {
		f := flags.Lookup(flag)
		if f == nil {
			return fmt.Errorf("unknown flag %q", flag)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind %s: %w", flag, err)
		}
	}
	return nil
}

var commonKeys = map[string]string{
	"log-level": "logging.level",
	"tau":       "simulation.tau",
}

func loadConfig(cmd *cobra.Command, keys map[string]string) (*kps.Config, error) {
	config := kps.NewConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := config.LoadFromFile(path); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := bindFlags(config.Viper(), cmd.Flags(), commonKeys); err != nil {
		return nil, err
	}
	if err := bindFlags(config.Viper(), cmd.Flags(), keys); err != nil {
		return nil, err
	}
	return config, nil
}

func louvainConfig(config *kps.Config, resolution float64) *louvain.Config {
	lc := louvain.NewConfig()
	lc.Set("algorithm.random_seed", config.RandomSeed())
	lc.Set("algorithm.resolution", resolution)
	lc.Set("logging.level", config.LogLevel())
	return lc
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <network-dir>",
		Short: "Simulate transition paths from B to A",
		Args:  cobra.ExactArgs(1),
	}
	flags := cmd.Flags()
	flags.Int("n-abpaths", 100, "Number of A<-B paths to sample")
	flags.Int("max-iterations", 1000000, "Maximum number of outer iterations")
	flags.Uint64("seed", 17, "Random seed")
	flags.Int("nelim", 1000, "Maximum number of basin nodes eliminated per iteration")
	flags.Bool("adaptive", false, "Grow basins from the occupied node instead of using communities")
	flags.Float64("adapt-min-rate", 1.0, "Adaptive basins: minimum rate of an edge followed into the basin")
	flags.Int("max-basin-size", 1000, "Adaptive basins: maximum basin size")
	flags.Int("kmc-steps", 0, "Direct kMC steps after every basin escape")
	flags.Bool("debug", false, "Check stochasticity and log exact escape probabilities every iteration")
	flags.StringP("output", "o", ".", "Output directory")
	flags.Bool("write-traj", false, "Write per-path trajectory dumps")
	flags.Float64("dump-interval", 0, "Minimum time between dumped states; 0 dumps every state")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig(cmd, map[string]string{
			"n-abpaths":      "algorithm.n_abpaths",
			"max-iterations": "algorithm.max_iterations",
			"seed":           "algorithm.random_seed",
			"nelim":          "kps.nelim",
			"adaptive":       "kps.adaptive_basins",
			"adapt-min-rate": "kps.adapt_min_rate",
			"max-basin-size": "kps.max_basin_size",
			"kmc-steps":      "kps.kmc_steps",
			"debug":          "kps.debug",
			"output":         "output.dir",
			"write-traj":     "output.write_traj",
			"dump-interval":  "output.dump_interval",
			"metrics-addr":   "metrics.addr",
		})
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, args[0], config)
	}
	return cmd
}

func run(ctx context.Context, dir string, config *kps.Config) error {
	started := time.Now()
	logger := config.CreateLogger()

	net, err := loadNetwork(ctx, dir, config, logger)
	if err != nil {
		return err
	}

	walker := kmc.NewWalker(0, net.NBins)
	rng := sampling.NewRNG(config.RandomSeed()).Stream(walker.ID)
	driver, err := kps.NewDriver(net, config, rng, logger)
	if err != nil {
		return err
	}

	if addr := config.MetricsAddr(); addr != "" {
		srv := server.New(addr, server.RunInfo{
			RunID:   driver.RunID().String(),
			Started: started,
			Nodes:   net.NumNodes(),
			Edges:   net.NumEdges(),
		}, logger)
		errc, err := srv.Start()
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		go func() {
			if err := <-errc; err != nil {
				logger.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("Metrics server shutdown")
			}
		}()
	}

	recorder, err := output.NewTrajectoryWriter(config.OutputDir(), config.WriteTraj())
	if err != nil {
		return err
	}
	result, runErr := driver.Run(ctx, walker, recorder)
	if err := recorder.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return runErr
	}

	if !config.AdaptiveBasins() && net.NBins > 0 {
		if err := output.WriteTPStats(filepath.Join(config.OutputDir(), output.TPStatsFile), result.Stats); err != nil {
			return fmt.Errorf("write transition path statistics: %w", err)
		}
	}

	summary := output.NewSummary(driver.RunID().String(), started, net.NumNodes(), net.NumEdges(), result)
	summary.MFPT, summary.MFPTStd, _ = recorder.PathTimes()
	summary.Settings = config.Viper().AllSettings()
	if err := output.WriteSummary(filepath.Join(config.OutputDir(), output.SummaryFile), summary); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	logger.Info().
		Int("n_ab", summary.NAB).
		Int("n_traj", summary.NTraj).
		Float64("mfpt", summary.MFPT).
		Bool("cancelled", summary.Cancelled).
		Dur("elapsed", time.Since(started)).
		Msg("Run complete")
	return nil
}

// loadNetwork reads the network and, when community basins are needed but
// no communities were given, detects them.
func loadNetwork(ctx context.Context, dir string, config *kps.Config, logger zerolog.Logger) (*network.Network, error) {
	net, err := network.LoadDirectory(dir, config.Tau())
	if err != nil {
		return nil, fmt.Errorf("load network from %s: %w", dir, err)
	}
	if err := net.Validate(); err != nil {
		return nil, err
	}
	logger.Info().
		Int("nodes", net.NumNodes()).
		Int("edges", net.NumEdges()).
		Int("n_a", net.NodesA.Cardinality()).
		Int("n_b", net.NodesB.Cardinality()).
		Int("communities", net.NComms).
		Msg("Network loaded")

	if err := net.CheckConnectivity(); err != nil {
		if !errors.Is(err, network.ErrDisconnected) {
			return nil, err
		}
		logger.Warn().Err(err).Int("components", len(net.Components())).Msg("A is not reachable from every B node")
	}

	if !config.AdaptiveBasins() && net.NComms == 0 {
		logger.Info().Msg("No communities given, running Louvain on the flux graph")
		if _, err := louvain.Detect(ctx, net, louvainConfig(config, 1.0), logger); err != nil {
			return nil, fmt.Errorf("community detection: %w", err)
		}
	}
	return net, nil
}

func communitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "communities <network-dir>",
		Short: "Detect communities on the equilibrium-flux graph and write communities.dat",
		Args:  cobra.ExactArgs(1),
	}
	flags := cmd.Flags()
	flags.Uint64("seed", 17, "Random seed")
	flags.Float64("resolution", 1.0, "Modularity resolution")
	flags.StringP("output", "o", "", "Output directory (default: the network directory)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig(cmd, map[string]string{
			"seed": "algorithm.random_seed",
		})
		if err != nil {
			return err
		}
		dir := args[0]
		outDir := dir
		if o, _ := cmd.Flags().GetString("output"); o != "" {
			outDir = o
		}
		resolution, _ := cmd.Flags().GetFloat64("resolution")
		logger := config.CreateLogger()

		net, err := network.LoadDirectory(dir, config.Tau())
		if err != nil {
			return fmt.Errorf("load network from %s: %w", dir, err)
		}
		result, err := louvain.Detect(cmd.Context(), net, louvainConfig(config, resolution), logger)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return err
		}
		if err := network.WriteCommunities(filepath.Join(outDir, network.CommunitiesFile), net); err != nil {
			return fmt.Errorf("write communities: %w", err)
		}
		if err := louvain.NewFileWriter().WriteAll(result, outDir, "communities"); err != nil {
			return err
		}
		logger.Info().
			Int("communities", result.NumCommunities).
			Float64("modularity", result.Modularity).
			Str("output", outDir).
			Msg("Communities written")
		return nil
	}
	return cmd
}
