package estimate

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/P40-traveler/pathce/pkg/models"
	"github.com/P40-traveler/pathce/pkg/partition"
	"github.com/P40-traveler/pathce/pkg/summary"
)

// triangleSummary summarizes a single directed triangle: 0 -> 1 -> 2 -> 0,
// one label, one edge type, one color.
func triangleSummary(t *testing.T) *summary.Summary {
	t.Helper()
	b := models.NewGraphBuilder()
	for i := 0; i < 3; i++ {
		b.AddVertex("n")
	}
	for _, e := range [][2]int32{{0, 1}, {1, 2}, {2, 0}} {
		if err := b.AddEdge(e[0], e[1], "e"); err != nil {
			t.Fatal(err)
		}
	}
	params := summary.DefaultBuildParams()
	params.Scheme = partition.Scheme{{Strategy: partition.StrategyLabel, Buckets: 4}}
	params.MaxCycleSize = 3
	s, err := summary.Build(b.Finalize(), params, 1, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// chainSummary summarizes two a-vertices feeding one b-hub feeding two
// c-vertices. Degree partitioning isolates the hub in its own color.
func chainSummary(t *testing.T) *summary.Summary {
	t.Helper()
	b := models.NewGraphBuilder()
	a0 := b.AddVertex("a")
	a1 := b.AddVertex("a")
	hub := b.AddVertex("b")
	c0 := b.AddVertex("c")
	c1 := b.AddVertex("c")
	for _, e := range [][2]int32{{a0, hub}, {a1, hub}, {hub, c0}, {hub, c1}} {
		if err := b.AddEdge(e[0], e[1], "r"); err != nil {
			t.Fatal(err)
		}
	}
	params := summary.DefaultBuildParams()
	params.Scheme = partition.Scheme{{Strategy: partition.StrategyDegree, Buckets: 4}}
	params.MaxCycleSize = 3
	s, err := summary.Build(b.Finalize(), params, 1, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func pathPattern(n int, label, edgeType string) *models.Pattern {
	p := &models.Pattern{}
	for i := 0; i <= n; i++ {
		p.Vertices = append(p.Vertices, models.PatternVertex{ID: i, Label: label})
	}
	for i := 0; i < n; i++ {
		p.Edges = append(p.Edges, models.PatternEdge{Src: i, Dst: i + 1, Type: edgeType})
	}
	return p
}

func TestSingleEdgeExact(t *testing.T) {
	s := triangleSummary(t)
	p := &models.Pattern{
		Vertices: []models.PatternVertex{{ID: 0, Label: "n"}, {ID: 1, Label: "n"}},
		Edges:    []models.PatternEdge{{Src: 0, Dst: 1, Type: "e"}},
	}
	got, err := Estimate(p, s, DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	// Three edges, uniform statistics: the bound is the exact count.
	if got.Bound != 3 {
		t.Errorf("single edge bound = %g, want exactly 3", got.Bound)
	}
}

func TestTriangleBoundNearTruth(t *testing.T) {
	s := triangleSummary(t)
	p := &models.Pattern{
		Vertices: []models.PatternVertex{{ID: 0, Label: "n"}, {ID: 1, Label: "n"}, {ID: 2, Label: "n"}},
		Edges: []models.PatternEdge{
			{Src: 0, Dst: 1, Type: "e"},
			{Src: 1, Dst: 2, Type: "e"},
			{Src: 2, Dst: 0, Type: "e"},
		},
	}
	got, err := Estimate(p, s, DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	// The triangle has exactly 3 embeddings; the cycle filter keeps the
	// adjusted bound within filter noise of the truth.
	if q := QError(got.Bound, 3); q > 1.5 {
		t.Errorf("triangle bound = %g, q-error %g vs truth 3", got.Bound, q)
	}
	if got.Bound > 9 {
		t.Errorf("triangle bound = %g exceeds the unadjusted star bound", got.Bound)
	}
}

func TestChainBoundsAreExactOnUniformData(t *testing.T) {
	s := chainSummary(t)

	twoHop := &models.Pattern{
		Vertices: []models.PatternVertex{{ID: 0, Label: "a"}, {ID: 1, Label: "b"}, {ID: 2, Label: "c"}},
		Edges: []models.PatternEdge{
			{Src: 0, Dst: 1, Type: "r"},
			{Src: 1, Dst: 2, Type: "r"},
		},
	}
	got, err := Estimate(twoHop, s, DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	// 2 sources x 2 sinks through the hub.
	if math.Abs(got.Bound-4) > 1e-9 {
		t.Errorf("two-hop bound = %g, want 4", got.Bound)
	}

	oneHop := &models.Pattern{
		Vertices: []models.PatternVertex{{ID: 0, Label: "a"}, {ID: 1, Label: "b"}},
		Edges:    []models.PatternEdge{{Src: 0, Dst: 1, Type: "r"}},
	}
	got, err = Estimate(oneHop, s, DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got.Bound-2) > 1e-9 {
		t.Errorf("one-hop bound = %g, want 2", got.Bound)
	}
}

func TestImpossiblePatternClampsToOne(t *testing.T) {
	s := chainSummary(t)
	// No edge ever leaves a c-vertex.
	p := &models.Pattern{
		Vertices: []models.PatternVertex{{ID: 0, Label: "c"}, {ID: 1, Label: "a"}},
		Edges:    []models.PatternEdge{{Src: 0, Dst: 1, Type: "r"}},
	}
	got, err := Estimate(p, s, DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if got.Bound != 1 {
		t.Errorf("impossible pattern bound = %g, want clamped 1", got.Bound)
	}
}

func TestEstimateIsDeterministic(t *testing.T) {
	s := triangleSummary(t)
	p := pathPattern(5, "n", "e")
	cfg := DefaultConfig()

	first, err := Estimate(p, s, cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, err := Estimate(p, s, cfg, zerolog.Nop())
		if err != nil {
			t.Fatal(err)
		}
		if again.Bound != first.Bound {
			t.Fatalf("run %d: bound %g differs from first %g", i, again.Bound, first.Bound)
		}
	}
}

func TestTimeoutStillReturnsBound(t *testing.T) {
	s := triangleSummary(t)
	// 8 fragments, 40320 chain orders: far beyond a sub-millisecond budget.
	p := pathPattern(16, "n", "e")
	cfg := DefaultConfig()
	cfg.MaxStarDegree = 2
	cfg.MaxPartialPaths = 1 << 20
	cfg.TimeoutSeconds = 0.001

	start := time.Now()
	got, err := Estimate(p, s, cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("estimation took %s despite a 1ms deadline", elapsed)
	}
	if math.IsNaN(got.Bound) || math.IsInf(got.Bound, 0) {
		t.Fatalf("bound %g is not finite", got.Bound)
	}
	if got.Bound < 1 {
		t.Errorf("bound %g below 1", got.Bound)
	}
}

func TestPartialPathBudgetFallback(t *testing.T) {
	s := triangleSummary(t)
	p := pathPattern(6, "n", "e")
	cfg := DefaultConfig()
	cfg.MaxStarDegree = 1
	cfg.MaxPartialPaths = 1

	got, err := Estimate(p, s, cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if math.IsNaN(got.Bound) || math.IsInf(got.Bound, 0) || got.Bound < 1 {
		t.Errorf("budget fallback bound = %g, want finite and >= 1", got.Bound)
	}
}

func TestSamplerFallbackIsSeedStable(t *testing.T) {
	s := triangleSummary(t)
	p := pathPattern(6, "n", "e")
	cfg := DefaultConfig()
	cfg.MaxStarDegree = 1
	cfg.MaxPartialPaths = 1
	cfg.SamplingStrategy = SamplingRandom
	cfg.SampleSize = 200
	cfg.Seed = 7

	first, err := Estimate(p, s, cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if first.Bound < 1 {
		t.Errorf("sampled bound = %g, want >= 1", first.Bound)
	}
	again, err := Estimate(p, s, cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if again.Bound != first.Bound {
		t.Errorf("same seed produced bounds %g and %g", first.Bound, again.Bound)
	}
}

func TestStalenessWidensBound(t *testing.T) {
	b := models.NewGraphBuilder()
	for i := 0; i < 3; i++ {
		b.AddVertex("n")
	}
	for _, e := range [][2]int32{{0, 1}, {1, 2}, {2, 0}} {
		if err := b.AddEdge(e[0], e[1], "e"); err != nil {
			t.Fatal(err)
		}
	}
	params := summary.DefaultBuildParams()
	params.Scheme = partition.Scheme{{Strategy: partition.StrategyLabel, Buckets: 4}}
	params.ProportionUpdated = 0.25
	s, err := summary.Build(b.Finalize(), params, 1, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	p := &models.Pattern{
		Vertices: []models.PatternVertex{{ID: 0, Label: "n"}, {ID: 1, Label: "n"}},
		Edges:    []models.PatternEdge{{Src: 0, Dst: 1, Type: "e"}},
	}
	got, err := Estimate(p, s, DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if got.Bound != 3*1.25 {
		t.Errorf("stale summary bound = %g, want %g", got.Bound, 3*1.25)
	}
}

func TestValidationFailures(t *testing.T) {
	s := triangleSummary(t)
	neg := -1.0

	cases := []struct {
		name string
		p    *models.Pattern
	}{
		{"empty", &models.Pattern{}},
		{"duplicate vertex id", &models.Pattern{
			Vertices: []models.PatternVertex{{ID: 0, Label: "n"}, {ID: 0, Label: "n"}},
		}},
		{"unknown label", &models.Pattern{
			Vertices: []models.PatternVertex{{ID: 0, Label: "ghost"}},
		}},
		{"unknown edge type", &models.Pattern{
			Vertices: []models.PatternVertex{{ID: 0, Label: "n"}, {ID: 1, Label: "n"}},
			Edges:    []models.PatternEdge{{Src: 0, Dst: 1, Type: "ghost"}},
		}},
		{"dangling edge", &models.Pattern{
			Vertices: []models.PatternVertex{{ID: 0, Label: "n"}},
			Edges:    []models.PatternEdge{{Src: 0, Dst: 9, Type: "e"}},
		}},
		{"negative expected count", &models.Pattern{
			Vertices:      []models.PatternVertex{{ID: 0, Label: "n"}},
			ExpectedCount: &neg,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Estimate(tc.p, s, DefaultConfig(), zerolog.Nop())
			if err == nil {
				t.Fatal("invalid pattern accepted")
			}
			var ve *models.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error %v is not a ValidationError", err)
			}
		})
	}
}

func TestClamp(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{math.NaN(), 1},
		{math.Inf(1), BoundCeiling},
		{-5, 1},
		{0, 1},
		{0.3, 1},
		{1, 1},
		{42, 42},
		{BoundCeiling, BoundCeiling},
		{2e35, BoundCeiling},
	}
	for _, tc := range cases {
		if got := Clamp(tc.in); got != tc.want {
			t.Errorf("Clamp(%g) = %g, want %g", tc.in, got, tc.want)
		}
	}
}

func TestQError(t *testing.T) {
	if q := QError(10, 5); q != 2 {
		t.Errorf("QError(10, 5) = %g, want 2", q)
	}
	if q := QError(5, 10); q != 2 {
		t.Errorf("QError(5, 10) = %g, want 2", q)
	}
	if q := QError(7, 7); q != 1 {
		t.Errorf("QError(7, 7) = %g, want 1", q)
	}
	if q := QError(0, 7); !math.IsInf(q, 1) {
		t.Errorf("QError(0, 7) = %g, want +Inf", q)
	}
}

func TestDecomposeCoversEveryEdge(t *testing.T) {
	p := &models.Pattern{
		Vertices: []models.PatternVertex{
			{ID: 0, Label: "n"}, {ID: 1, Label: "n"}, {ID: 2, Label: "n"},
			{ID: 3, Label: "n"}, {ID: 4, Label: "n"},
		},
		Edges: []models.PatternEdge{
			{Src: 0, Dst: 1, Type: "e"},
			{Src: 1, Dst: 2, Type: "e"},
			{Src: 2, Dst: 3, Type: "e"},
			{Src: 3, Dst: 4, Type: "e"},
			{Src: 4, Dst: 0, Type: "e"},
		},
	}
	dec := decompose(p, 2)

	covered := make(map[int]bool)
	for _, st := range dec.stars {
		if len(st.edgeIdxs) > 2 {
			t.Errorf("star at %d has %d edges, cap is 2", st.center, len(st.edgeIdxs))
		}
		for _, ei := range st.edgeIdxs {
			if covered[ei] {
				t.Errorf("edge %d covered twice", ei)
			}
			covered[ei] = true
		}
	}
	for _, ei := range dec.cycleEdges {
		if covered[ei] {
			t.Errorf("cycle edge %d also covered by a star", ei)
		}
		covered[ei] = true
	}
	if len(covered) != len(p.Edges) {
		t.Errorf("%d of %d edges accounted for", len(covered), len(p.Edges))
	}
	if len(dec.cycleEdges) != 1 {
		t.Errorf("5-cycle should yield exactly 1 cycle edge, got %d", len(dec.cycleEdges))
	}
}
