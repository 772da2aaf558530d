package config

import (
	"os"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/P40-traveler/pathce/pkg/estimate"
	"github.com/P40-traveler/pathce/pkg/partition"
	"github.com/P40-traveler/pathce/pkg/stats"
	"github.com/P40-traveler/pathce/pkg/summary"
)

// Config manages build and estimation configuration using Viper.
type Config struct {
	v *viper.Viper
}

// New creates a configuration with defaults.
func New() *Config {
	v := viper.New()

	// Build parameters
	v.SetDefault("build.scheme", "label:8,degree:4,quasistable:16")
	v.SetDefault("build.max_cycle_size", 3)
	v.SetDefault("build.sample_budget", 1000)
	v.SetDefault("build.false_positive_rate", stats.DefaultFalsePositiveRate)
	v.SetDefault("build.sketch_k", 64)
	v.SetDefault("build.proportion_updated", 0.0)
	v.SetDefault("build.proportion_deleted", 0.0)
	v.SetDefault("build.weighted", false)

	// Estimation parameters
	v.SetDefault("estimate.max_partial_paths", 1024)
	v.SetDefault("estimate.max_star_degree", 4)
	v.SetDefault("estimate.use_partial_sums", false)
	v.SetDefault("estimate.sampling_strategy", "none")
	v.SetDefault("estimate.only_shortest_path_cycle", false)
	v.SetDefault("estimate.timeout_seconds", 0.0)
	v.SetDefault("estimate.sample_size", 500)
	v.SetDefault("estimate.seed", 42)

	// Performance parameters
	v.SetDefault("performance.num_workers", runtime.NumCPU())

	// Logging parameters
	v.SetDefault("logging.level", "info")

	return &Config{v: v}
}

// LoadFromFile loads configuration from file.
func (c *Config) LoadFromFile(path string) error {
	c.v.SetConfigFile(path)
	return c.v.ReadInConfig()
}

// Set allows dynamic configuration changes.
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// BuildParams assembles the build-time parameter block.
func (c *Config) BuildParams() (summary.BuildParams, error) {
	scheme, err := partition.ParseScheme(c.v.GetString("build.scheme"))
	if err != nil {
		return summary.BuildParams{}, err
	}
	return summary.BuildParams{
		Scheme:            scheme,
		MaxCycleSize:      c.v.GetInt("build.max_cycle_size"),
		SampleBudget:      c.v.GetInt("build.sample_budget"),
		FalsePositiveRate: c.v.GetFloat64("build.false_positive_rate"),
		SketchK:           c.v.GetInt("build.sketch_k"),
		ProportionUpdated: c.v.GetFloat64("build.proportion_updated"),
		ProportionDeleted: c.v.GetFloat64("build.proportion_deleted"),
		Weighted:          c.v.GetBool("build.weighted"),
	}, nil
}

// EstimateConfig assembles the estimation parameter block.
func (c *Config) EstimateConfig() estimate.Config {
	return estimate.Config{
		MaxPartialPaths:       c.v.GetInt("estimate.max_partial_paths"),
		MaxStarDegree:         c.v.GetInt("estimate.max_star_degree"),
		UsePartialSums:        c.v.GetBool("estimate.use_partial_sums"),
		SamplingStrategy:      estimate.SamplingStrategy(c.v.GetString("estimate.sampling_strategy")),
		OnlyShortestPathCycle: c.v.GetBool("estimate.only_shortest_path_cycle"),
		TimeoutSeconds:        c.v.GetFloat64("estimate.timeout_seconds"),
		SampleSize:            c.v.GetInt("estimate.sample_size"),
		Seed:                  c.v.GetInt64("estimate.seed"),
	}
}

// NumWorkers returns the build parallelism.
func (c *Config) NumWorkers() int { return c.v.GetInt("performance.num_workers") }

// LogLevel returns the configured logging level string.
func (c *Config) LogLevel() string { return c.v.GetString("logging.level") }

// CreateLogger creates a zerolog logger based on config.
func (c *Config) CreateLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
	}).Level(level).With().Timestamp().Str("service", "pathce").Logger()
}
