package summary

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/P40-traveler/pathce/pkg/models"
	"github.com/P40-traveler/pathce/pkg/partition"
	"github.com/P40-traveler/pathce/pkg/stats"
)

// BuildParams are the build-time knobs recorded inside the summary.
// ProportionUpdated/ProportionDeleted are statistical staleness hints for
// batched updates, not live mutation: estimates over a stale summary are
// widened by (1 + updated + deleted).
type BuildParams struct {
	Scheme            partition.Scheme
	MaxCycleSize      int
	SampleBudget      int
	FalsePositiveRate float64
	SketchK           int
	ProportionUpdated float64
	ProportionDeleted float64
	Weighted          bool
}

// DefaultBuildParams returns the standard build configuration.
func DefaultBuildParams() BuildParams {
	return BuildParams{
		Scheme: partition.Scheme{
			{Strategy: partition.StrategyLabel, Buckets: 8},
			{Strategy: partition.StrategyDegree, Buckets: 4},
			{Strategy: partition.StrategyQuasiStable, Buckets: 16},
		},
		MaxCycleSize:      3,
		SampleBudget:      1000,
		FalsePositiveRate: stats.DefaultFalsePositiveRate,
		SketchK:           64,
	}
}

// Summary is the immutable synopsis of one graph: color assignment plus the
// per-(srcColor, edgeType, dstColor) statistics table. Safe for unlimited
// concurrent read-only access; never mutated after Build.
type Summary struct {
	LabelNames []string
	TypeNames  []string
	Colors     []int32 // vertex id -> color
	NumColors  int
	Stats      *stats.Table
	Params     BuildParams
}

// Build runs one partition + collection pass over the graph.
func Build(g *models.Graph, params BuildParams, numWorkers int, logger zerolog.Logger) (*Summary, error) {
	start := time.Now()
	asg, err := partition.Run(g, params.Scheme, numWorkers, logger)
	if err != nil {
		return nil, fmt.Errorf("partitioning failed: %w", err)
	}
	table, err := stats.Collect(g, asg.Colors, asg.NumColors, stats.Params{
		MaxCycleSize:      params.MaxCycleSize,
		FalsePositiveRate: params.FalsePositiveRate,
		SketchK:           params.SketchK,
		NumWorkers:        numWorkers,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("statistics collection failed: %w", err)
	}
	logger.Info().
		Int("vertices", g.NumVertices).
		Int("edges", g.NumEdges).
		Int("colors", asg.NumColors).
		Int("entries", len(table.Keys)).
		Dur("runtime", time.Since(start)).
		Msg("Summary build completed")
	return &Summary{
		LabelNames: append([]string(nil), g.LabelNames...),
		TypeNames:  append([]string(nil), g.TypeNames...),
		Colors:     asg.Colors,
		NumColors:  asg.NumColors,
		Stats:      table,
		Params:     params,
	}, nil
}

// LabelID resolves a label name against the summary schema.
func (s *Summary) LabelID(name string) (int32, bool) {
	for i, n := range s.LabelNames {
		if n == name {
			return int32(i), true
		}
	}
	return 0, false
}

// TypeID resolves an edge type name against the summary schema.
func (s *Summary) TypeID(name string) (int32, bool) {
	for i, n := range s.TypeNames {
		if n == name {
			return int32(i), true
		}
	}
	return 0, false
}

// CandidateCount returns the number of graph vertices carrying the label.
func (s *Summary) CandidateCount(labelID int32) int64 {
	var total int64
	for _, cs := range s.Stats.Colors {
		total += cs.LabelCounts[labelID]
	}
	return total
}

// ColorsWithLabel returns the colors containing at least one vertex of the
// label, ascending.
func (s *Summary) ColorsWithLabel(labelID int32) []int32 {
	var out []int32
	for c, cs := range s.Stats.Colors {
		if cs.LabelCounts[labelID] > 0 {
			out = append(out, int32(c))
		}
	}
	return out
}

// StalenessFactor widens bounds for summaries built before a batched update.
func (s *Summary) StalenessFactor() float64 {
	return 1 + s.Params.ProportionUpdated + s.Params.ProportionDeleted
}

// Describe renders a short inspection report.
func (s *Summary) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "summary: %d vertices, %d colors, %d entries\n", len(s.Colors), s.NumColors, len(s.Stats.Keys))
	fmt.Fprintf(&b, "scheme: %s, max cycle size %d\n", s.Params.Scheme.String(), s.Params.MaxCycleSize)
	fmt.Fprintf(&b, "labels: %s\n", strings.Join(s.LabelNames, ", "))
	fmt.Fprintf(&b, "edge types: %s\n", strings.Join(s.TypeNames, ", "))

	sizes := make([]int64, 0, len(s.Stats.Colors))
	for _, cs := range s.Stats.Colors {
		sizes = append(sizes, cs.VertexCount)
	}
	sort.Slice(sizes, func(i, j int) bool { return sizes[i] > sizes[j] })
	show := len(sizes)
	if show > 10 {
		show = 10
	}
	fmt.Fprintf(&b, "largest color classes: %v\n", sizes[:show])
	return b.String()
}
