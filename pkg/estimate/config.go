package estimate

// SamplingStrategy selects the fallback behavior when exact bound
// composition exceeds its budget.
type SamplingStrategy string

const (
	// SamplingNone keeps estimation fully deterministic: on budget
	// exhaustion the best partial composition is clamped and returned.
	SamplingNone SamplingStrategy = "none"
	// SamplingRandom defers to randomized walk sampling on budget
	// exhaustion.
	SamplingRandom SamplingStrategy = "random"
)

// Config enumerates the estimation knobs. The zero value is not usable;
// start from DefaultConfig.
type Config struct {
	// MaxPartialPaths bounds how many fragment chain orders are explored
	// before the estimator aborts and approximates.
	MaxPartialPaths int `json:"max_partial_paths"`
	// MaxStarDegree caps the number of pattern edges per star fragment.
	MaxStarDegree int `json:"max_star_degree"`
	// UsePartialSums combines overlapping join selectivities on the same
	// vertex by summation (additive alternatives) instead of max (tightest
	// single constraint). Both are valid bounds under different
	// independence assumptions.
	UsePartialSums bool `json:"use_partial_sums"`
	// SamplingStrategy is "none" or "random".
	SamplingStrategy SamplingStrategy `json:"sampling_strategy"`
	// OnlyShortestPathCycle restricts cycle-closure checks to the shortest
	// alternative path between a closing edge's endpoints.
	OnlyShortestPathCycle bool `json:"only_shortest_path_cycle"`
	// TimeoutSeconds is the cooperative deadline; zero disables it.
	TimeoutSeconds float64 `json:"timeout_seconds"`
	// SampleSize is the number of randomized walk trials for the fallback.
	SampleSize int `json:"sample_size"`
	// Seed drives the sampler's RNG; fixed seed, reproducible walks.
	Seed int64 `json:"seed"`
}

// DefaultConfig returns the standard estimation configuration.
func DefaultConfig() Config {
	return Config{
		MaxPartialPaths:  1024,
		MaxStarDegree:    4,
		SamplingStrategy: SamplingNone,
		SampleSize:       500,
		Seed:             42,
	}
}
