package partition

import (
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/P40-traveler/pathce/pkg/models"
)

func TestParseScheme(t *testing.T) {
	scheme, err := ParseScheme("label:8, degree:4,quasistable:16")
	if err != nil {
		t.Fatal(err)
	}
	want := Scheme{
		{Strategy: StrategyLabel, Buckets: 8},
		{Strategy: StrategyDegree, Buckets: 4},
		{Strategy: StrategyQuasiStable, Buckets: 16},
	}
	if !reflect.DeepEqual(scheme, want) {
		t.Errorf("ParseScheme = %v, want %v", scheme, want)
	}
	if scheme.MaxColors() != 8*4*16 {
		t.Errorf("MaxColors = %d, want %d", scheme.MaxColors(), 8*4*16)
	}
	if scheme.String() != "label:8,degree:4,quasistable:16" {
		t.Errorf("String = %q", scheme.String())
	}
}

func TestParseSchemeRejectsBadInput(t *testing.T) {
	for _, spec := range []string{"", "label", "label:0", "label:x", "random:4"} {
		if _, err := ParseScheme(spec); err == nil {
			t.Errorf("ParseScheme(%q) succeeded, want error", spec)
		}
	}
}

// socialGraph is a small fixture with uneven degrees and three labels.
func socialGraph(t *testing.T) *models.Graph {
	t.Helper()
	b := models.NewGraphBuilder()
	labels := []string{"person", "person", "person", "forum", "forum", "post", "post", "post", "post", "post"}
	for _, l := range labels {
		b.AddVertex(l)
	}
	edges := [][2]int32{
		{0, 1}, {1, 2}, {2, 0},
		{0, 3}, {1, 3}, {2, 4},
		{3, 5}, {3, 6}, {3, 7}, {4, 8}, {4, 9},
		{0, 5}, {1, 6},
	}
	for _, e := range edges {
		if err := b.AddEdge(e[0], e[1], "link"); err != nil {
			t.Fatal(err)
		}
	}
	return b.Finalize()
}

func TestRunAssignsEveryVertexOneColor(t *testing.T) {
	g := socialGraph(t)
	scheme := Scheme{
		{Strategy: StrategyLabel, Buckets: 8},
		{Strategy: StrategyDegree, Buckets: 4},
	}
	asg, err := Run(g, scheme, 2, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if len(asg.Colors) != g.NumVertices {
		t.Fatalf("got %d colors for %d vertices", len(asg.Colors), g.NumVertices)
	}
	for v, c := range asg.Colors {
		if c < 0 || int(c) >= asg.NumColors {
			t.Fatalf("vertex %d has color %d outside [0, %d)", v, c, asg.NumColors)
		}
	}
	if asg.NumColors > scheme.MaxColors() {
		t.Errorf("NumColors %d exceeds scheme capacity %d", asg.NumColors, scheme.MaxColors())
	}
	if asg.NumColors > g.NumVertices {
		t.Errorf("NumColors %d exceeds vertex count %d", asg.NumColors, g.NumVertices)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	g := socialGraph(t)
	scheme := Scheme{
		{Strategy: StrategyLabel, Buckets: 8},
		{Strategy: StrategyDegree, Buckets: 4},
		{Strategy: StrategyQuasiStable, Buckets: 16},
	}
	first, err := Run(g, scheme, 1, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := Run(g, scheme, 4, zerolog.Nop())
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(first.Colors, again.Colors) {
			t.Fatalf("run %d produced different colors with 4 workers", i)
		}
		if first.NumColors != again.NumColors {
			t.Fatalf("run %d produced %d colors, first run %d", i, again.NumColors, first.NumColors)
		}
	}
}

func TestLabelStrategyGroupsByLabel(t *testing.T) {
	g := socialGraph(t)
	asg, err := Run(g, Scheme{{Strategy: StrategyLabel, Buckets: 64}}, 1, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	byLabel := make(map[int32]int32)
	for v := 0; v < g.NumVertices; v++ {
		l := g.Labels[v]
		if c, ok := byLabel[l]; ok {
			if c != asg.Colors[v] {
				t.Fatalf("vertices with label %d got colors %d and %d", l, c, asg.Colors[v])
			}
		} else {
			byLabel[l] = asg.Colors[v]
		}
	}
}

func TestDegreeStrategyGroupsEqualDegrees(t *testing.T) {
	g := socialGraph(t)
	asg, err := Run(g, Scheme{{Strategy: StrategyDegree, Buckets: 4}}, 1, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	byDegree := make(map[int]int32)
	for v := 0; v < g.NumVertices; v++ {
		d := g.Degree(int32(v))
		if c, ok := byDegree[d]; ok {
			if c != asg.Colors[int32(v)] {
				t.Fatalf("vertices with degree %d got colors %d and %d", d, c, asg.Colors[v])
			}
		} else {
			byDegree[d] = asg.Colors[v]
		}
	}
}

func TestQuasiStableRefinesWithinSeedColors(t *testing.T) {
	g := socialGraph(t)
	coarse, err := Run(g, Scheme{{Strategy: StrategyLabel, Buckets: 64}}, 1, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	refined, err := Run(g, Scheme{
		{Strategy: StrategyLabel, Buckets: 64},
		{Strategy: StrategyQuasiStable, Buckets: 16},
	}, 1, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	// Refinement only splits classes: two vertices in different coarse
	// colors must stay in different refined colors.
	for u := 0; u < g.NumVertices; u++ {
		for v := u + 1; v < g.NumVertices; v++ {
			if coarse.Colors[u] != coarse.Colors[v] && refined.Colors[u] == refined.Colors[v] {
				t.Fatalf("vertices %d and %d merged by refinement", u, v)
			}
		}
	}
	if refined.NumColors < coarse.NumColors {
		t.Errorf("refinement reduced color count from %d to %d", coarse.NumColors, refined.NumColors)
	}
}
