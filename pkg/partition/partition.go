package partition

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/P40-traveler/pathce/pkg/models"
)

// Strategy names one way of bucketing vertices by structure.
type Strategy string

const (
	StrategyDegree         Strategy = "degree"
	StrategyQuasiStable    Strategy = "quasistable"
	StrategyNeighborLabels Strategy = "neighborlabels"
	StrategyLabel          Strategy = "label"
)

// SchemeEntry pairs a strategy with its bucket budget.
type SchemeEntry struct {
	Strategy Strategy `json:"strategy"`
	Buckets  int      `json:"buckets"`
}

// Scheme is the ordered list of strategies applied to a graph. Later entries
// refine within the buckets produced by earlier ones.
type Scheme []SchemeEntry

// MaxColors returns the product of per-strategy bucket counts, the hard upper
// bound on distinct colors.
func (s Scheme) MaxColors() int {
	prod := 1
	for _, e := range s {
		prod *= e.Buckets
	}
	return prod
}

// String renders the scheme in "strategy:buckets,..." form.
func (s Scheme) String() string {
	parts := make([]string, len(s))
	for i, e := range s {
		parts[i] = fmt.Sprintf("%s:%d", e.Strategy, e.Buckets)
	}
	return strings.Join(parts, ",")
}

// ParseScheme parses "degree:4,quasistable:8" style scheme specs.
func ParseScheme(spec string) (Scheme, error) {
	var scheme Scheme
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		if len(fields) != 2 {
			return nil, fmt.Errorf("invalid scheme entry %q, want strategy:buckets", part)
		}
		strategy := Strategy(strings.TrimSpace(fields[0]))
		switch strategy {
		case StrategyDegree, StrategyQuasiStable, StrategyNeighborLabels, StrategyLabel:
		default:
			return nil, fmt.Errorf("unknown partitioning strategy %q", fields[0])
		}
		buckets, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil || buckets < 1 {
			return nil, fmt.Errorf("invalid bucket count in scheme entry %q", part)
		}
		scheme = append(scheme, SchemeEntry{Strategy: strategy, Buckets: buckets})
	}
	if len(scheme) == 0 {
		return nil, fmt.Errorf("empty partitioning scheme %q", spec)
	}
	return scheme, nil
}

// Assignment maps every vertex to exactly one color. Colors are dense ids in
// [0, NumColors); Buckets[i][v] keeps the per-strategy bucket index so the
// composite tuple can be reconstructed.
type Assignment struct {
	Colors    []int32
	NumColors int
	Scheme    Scheme
	Buckets   [][]int32
}

// Run partitions the graph under the given scheme. Identical graph + scheme
// always yields identical colors: every tie-break is by vertex id ascending
// and no map iteration order leaks into the result.
func Run(g *models.Graph, scheme Scheme, numWorkers int, logger zerolog.Logger) (*Assignment, error) {
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	if len(scheme) == 0 {
		return nil, fmt.Errorf("empty partitioning scheme")
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	start := time.Now()

	n := g.NumVertices
	composite := make([]int64, n) // running mixed-radix combination
	buckets := make([][]int32, len(scheme))

	for si, entry := range scheme {
		var b []int32
		var err error
		switch entry.Strategy {
		case StrategyDegree:
			b = degreeBuckets(g, entry.Buckets, numWorkers)
		case StrategyLabel:
			b = labelBuckets(g, entry.Buckets, numWorkers)
		case StrategyNeighborLabels:
			b = neighborLabelBuckets(g, entry.Buckets, numWorkers)
		case StrategyQuasiStable:
			b, err = quasiStableBuckets(g, entry.Buckets, composite, numWorkers, logger)
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown partitioning strategy %q", entry.Strategy)
		}
		buckets[si] = b
		for v := 0; v < n; v++ {
			composite[v] = composite[v]*int64(entry.Buckets) + int64(b[v])
		}
		logger.Debug().
			Str("strategy", string(entry.Strategy)).
			Int("buckets", entry.Buckets).
			Msg("Strategy applied")
	}

	colors, numColors := relabelDense(composite)
	if numColors > scheme.MaxColors() {
		return nil, fmt.Errorf("color count %d exceeds scheme capacity %d", numColors, scheme.MaxColors())
	}

	logger.Info().
		Int("vertices", n).
		Int("colors", numColors).
		Str("scheme", scheme.String()).
		Dur("runtime", time.Since(start)).
		Msg("Partitioning completed")

	return &Assignment{
		Colors:    colors,
		NumColors: numColors,
		Scheme:    scheme,
		Buckets:   buckets,
	}, nil
}

// relabelDense maps composite signatures onto dense color ids, assigned in
// ascending signature order.
func relabelDense(composite []int64) ([]int32, int) {
	distinct := make([]int64, 0, 64)
	seen := make(map[int64]struct{}, 64)
	for _, c := range composite {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			distinct = append(distinct, c)
		}
	}
	sort.Slice(distinct, func(i, j int) bool { return distinct[i] < distinct[j] })
	index := make(map[int64]int32, len(distinct))
	for i, c := range distinct {
		index[c] = int32(i)
	}
	colors := make([]int32, len(composite))
	for v, c := range composite {
		colors[v] = index[c]
	}
	return colors, len(distinct)
}

// parallelChunks runs fn over [0, n) split into worker chunks and waits.
func parallelChunks(n, numWorkers int, fn func(lo, hi int)) {
	if numWorkers < 2 || n < 2*numWorkers {
		fn(0, n)
		return
	}
	var wg sync.WaitGroup
	chunk := (n + numWorkers - 1) / numWorkers
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			fn(lo, hi)
		}(lo, hi)
	}
	wg.Wait()
}
