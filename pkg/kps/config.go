package kps

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config manages simulation configuration using Viper
type Config struct {
	v *viper.Viper
}

// NewConfig creates a new configuration with defaults
func NewConfig() *Config {
	v := viper.New()

	// Outer loop
	v.SetDefault("algorithm.n_abpaths", 100)
	v.SetDefault("algorithm.max_iterations", 1000000)
	v.SetDefault("algorithm.random_seed", 17)

	// Basin handling and graph transformation
	v.SetDefault("kps.nelim", 1000)
	v.SetDefault("kps.adaptive_basins", false)
	v.SetDefault("kps.adapt_min_rate", 1.0)
	v.SetDefault("kps.max_basin_size", 1000)
	v.SetDefault("kps.kmc_steps", 0)
	v.SetDefault("kps.self_loop_threshold", 0.999)
	v.SetDefault("kps.debug", false)

	v.SetDefault("simulation.tau", 0.0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.enable_progress", true)
	v.SetDefault("logging.progress_interval", 1000)

	v.SetDefault("output.dir", ".")
	v.SetDefault("output.write_traj", false)
	v.SetDefault("output.dump_interval", 0.0)

	v.SetDefault("metrics.addr", "")

	return &Config{v: v}
}

// LoadFromFile loads configuration from file
func (c *Config) LoadFromFile(path string) error {
	c.v.SetConfigFile(path)
	return c.v.ReadInConfig()
}

// Viper exposes the underlying store for flag binding.
func (c *Config) Viper() *viper.Viper { return c.v }

func (c *Config) NABPaths() int { return c.v.GetInt("algorithm.n_abpaths") }
func (c *Config) MaxIterations() int { return c.v.GetInt("algorithm.max_iterations") }
func (c *Config) RandomSeed() uint64 { return c.v.GetUint64("algorithm.random_seed") }
func (c *Config) NElim() int { return c.v.GetInt("kps.nelim") }
func (c *Config) AdaptiveBasins() bool { return c.v.GetBool("kps.adaptive_basins") }
func (c *Config) AdaptMinRate() float64 { return c.v.GetFloat64("kps.adapt_min_rate") }
func (c *Config) MaxBasinSize() int { return c.v.GetInt("kps.max_basin_size") }
func (c *Config) KMCSteps() int { return c.v.GetInt("kps.kmc_steps") }
func (c *Config) SelfLoopThreshold() float64 { return c.v.GetFloat64("kps.self_loop_threshold") }
func (c *Config) Debug() bool { return c.v.GetBool("kps.debug") }

func (c *Config) Tau() float64 { return c.v.GetFloat64("simulation.tau") }

func (c *Config) LogLevel() string { return c.v.GetString("logging.level") }
func (c *Config) EnableProgress() bool { return c.v.GetBool("logging.enable_progress") }
func (c *Config) ProgressInterval() int { return c.v.GetInt("logging.progress_interval") }
func (c *Config) OutputDir() string { return c.v.GetString("output.dir") }
func (c *Config) WriteTraj() bool { return c.v.GetBool("output.write_traj") }
func (c *Config) DumpInterval() float64 { return c.v.GetFloat64("output.dump_interval") }
func (c *Config) MetricsAddr() string { return c.v.GetString("metrics.addr") }

// Set allows dynamic configuration changes
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// CreateLogger creates a zerolog logger based on config
func (c *Config) CreateLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
	}).Level(level).With().Timestamp().Str("service", "kps").Logger()
}
