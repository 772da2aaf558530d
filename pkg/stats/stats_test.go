package stats

import (
	"math"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/P40-traveler/pathce/pkg/models"
)

func TestFilterNoFalseNegatives(t *testing.T) {
	f := NewFilter(100, 0.01)
	for id := int32(0); id < 100; id++ {
		f.Add(id)
	}
	for id := int32(0); id < 100; id++ {
		if !f.Test(id) {
			t.Fatalf("vertex %d was added but Test returned false", id)
		}
	}
}

func TestFilterFalsePositiveRate(t *testing.T) {
	f := NewFilter(1000, 0.01)
	for id := int32(0); id < 1000; id++ {
		f.Add(id)
	}
	falsePositives := 0
	probes := 10000
	for i := 0; i < probes; i++ {
		if f.Test(int32(1000 + i)) {
			falsePositives++
		}
	}
	rate := float64(falsePositives) / float64(probes)
	if rate > 0.05 {
		t.Errorf("false positive rate %.4f exceeds 5x the 0.01 target", rate)
	}
}

func TestFilterUnionEqualsCombined(t *testing.T) {
	a := NewFilter(200, 0.01)
	b := NewFilter(200, 0.01)
	combined := NewFilter(200, 0.01)
	for id := int32(0); id < 100; id++ {
		a.Add(id)
		combined.Add(id)
	}
	for id := int32(100); id < 200; id++ {
		b.Add(id)
		combined.Add(id)
	}
	a.Union(b)
	if !reflect.DeepEqual(a, combined) {
		t.Fatal("union of disjoint filters differs from the filter built in one pass")
	}
}

func TestFilterEstimateCardinality(t *testing.T) {
	f := NewFilter(500, 0.01)
	for id := int32(0); id < 500; id++ {
		f.Add(id)
	}
	est := f.EstimateCardinality()
	if est < 400 || est > 625 {
		t.Errorf("cardinality estimate %.1f too far from 500", est)
	}

	empty := NewFilter(10, 0.01)
	if got := empty.EstimateCardinality(); got != 0 {
		t.Errorf("empty filter estimate = %g, want 0", got)
	}
}

func TestBottomKSketchExactWhenUndersaturated(t *testing.T) {
	s := NewBottomKSketch(64)
	for id := int32(0); id < 20; id++ {
		s.Add(id)
	}
	// Duplicates must not grow the sketch.
	for id := int32(0); id < 20; id++ {
		s.Add(id)
	}
	if got := s.Estimate(); got != 20 {
		t.Errorf("undersaturated sketch estimate = %g, want exactly 20", got)
	}
}

func TestBottomKSketchUnionOrderIndependent(t *testing.T) {
	a := NewBottomKSketch(16)
	b := NewBottomKSketch(16)
	for id := int32(0); id < 300; id++ {
		if id%2 == 0 {
			a.Add(id)
		} else {
			b.Add(id)
		}
	}
	ab := a.Clone()
	ab.Union(b)
	ba := b.Clone()
	ba.Union(a)
	if !reflect.DeepEqual(ab, ba) {
		t.Fatal("sketch union is not commutative")
	}
	est := ab.Estimate()
	if est < 100 || est > 900 {
		t.Errorf("saturated sketch estimate %.1f too far from 300", est)
	}
}

// chainGraph builds a deterministic multi-label graph for collection tests.
func chainGraph(t *testing.T) *models.Graph {
	t.Helper()
	b := models.NewGraphBuilder()
	labels := []string{"person", "post", "tag"}
	for i := 0; i < 30; i++ {
		b.AddVertex(labels[i%3])
	}
	for i := int32(0); i < 30; i++ {
		if err := b.AddEdge(i, (i*7+3)%30, "knows"); err != nil {
			t.Fatal(err)
		}
		if i%2 == 0 {
			if err := b.AddEdge(i, (i*11+5)%30, "likes"); err != nil {
				t.Fatal(err)
			}
		}
	}
	return b.Finalize()
}

func TestCollectWorkerCountInvariance(t *testing.T) {
	g := chainGraph(t)
	colors := make([]int32, g.NumVertices)
	for v := range colors {
		colors[v] = int32(v % 5)
	}

	params := Params{MaxCycleSize: 3, FalsePositiveRate: 0.01, SketchK: 32}

	params.NumWorkers = 1
	serial, err := Collect(g, colors, 5, params, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	params.NumWorkers = 4
	parallel, err := Collect(g, colors, 5, params, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(serial.Keys, parallel.Keys) {
		t.Fatal("entry keys differ between worker counts")
	}
	for i := range serial.Entries {
		if !reflect.DeepEqual(serial.Entries[i], parallel.Entries[i]) {
			t.Fatalf("entry %v differs between worker counts:\n1 worker: %+v\n4 workers: %+v",
				serial.Keys[i], serial.Entries[i], parallel.Entries[i])
		}
	}
	if !reflect.DeepEqual(serial.Colors, parallel.Colors) {
		t.Fatal("color stats differ between worker counts")
	}
}

func TestCollectDegreeStatistics(t *testing.T) {
	b := models.NewGraphBuilder()
	// Two sources into one hub, the hub into three sinks.
	for i := 0; i < 6; i++ {
		b.AddVertex("n")
	}
	for _, e := range [][2]int32{{0, 2}, {1, 2}, {2, 3}, {2, 4}, {2, 5}} {
		if err := b.AddEdge(e[0], e[1], "e"); err != nil {
			t.Fatal(err)
		}
	}
	g := b.Finalize()
	colors := make([]int32, 6)

	table, err := Collect(g, colors, 1, Params{NumWorkers: 1, SketchK: 16}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	entry, ok := table.Get(EntryKey{SrcColor: 0, EdgeType: 0, DstColor: 0})
	if !ok {
		t.Fatal("missing entry for the only color pair")
	}
	if entry.EdgeCount != 5 {
		t.Errorf("EdgeCount = %d, want 5", entry.EdgeCount)
	}
	if entry.DistinctSrc != 3 {
		t.Errorf("DistinctSrc = %d, want 3", entry.DistinctSrc)
	}
	if entry.MaxOutDegree != 3 {
		t.Errorf("MaxOutDegree = %d, want 3", entry.MaxOutDegree)
	}
	if entry.DistinctDst != 4 {
		t.Errorf("DistinctDst = %d, want 4", entry.DistinctDst)
	}
	if entry.MaxInDegree != 2 {
		t.Errorf("MaxInDegree = %d, want 2", entry.MaxInDegree)
	}
	if want := 5.0 / 3.0; math.Abs(entry.AvgOutDegree-want) > 1e-12 {
		t.Errorf("AvgOutDegree = %g, want %g", entry.AvgOutDegree, want)
	}
	if got := entry.DstSketch.Estimate(); got != 4 {
		t.Errorf("destination sketch estimate = %g, want 4", got)
	}
}

func TestCycleMembershipTriangle(t *testing.T) {
	b := models.NewGraphBuilder()
	for i := 0; i < 4; i++ {
		b.AddVertex("n")
	}
	// 0 -> 1 -> 2 -> 0 is a triangle; 3 dangles off it.
	for _, e := range [][2]int32{{0, 1}, {1, 2}, {2, 0}, {0, 3}} {
		if err := b.AddEdge(e[0], e[1], "e"); err != nil {
			t.Fatal(err)
		}
	}
	g := b.Finalize()
	colors := make([]int32, 4)

	table, err := Collect(g, colors, 1, Params{NumWorkers: 1, MaxCycleSize: 3, SketchK: 16}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	entry, ok := table.Get(EntryKey{SrcColor: 0, EdgeType: 0, DstColor: 0})
	if !ok {
		t.Fatal("missing entry")
	}
	for _, v := range []int32{0, 1, 2} {
		if !entry.CycleFilter.Test(v) {
			t.Errorf("triangle vertex %d missing from cycle filter", v)
		}
	}
	if entry.CycleFilter.N != 3 {
		t.Errorf("cycle filter insertions = %d, want 3", entry.CycleFilter.N)
	}
}

func TestCycleMembershipRespectsMaxSize(t *testing.T) {
	b := models.NewGraphBuilder()
	for i := 0; i < 4; i++ {
		b.AddVertex("n")
	}
	// A 4-cycle: invisible to a summary tracking cycles up to length 3.
	for _, e := range [][2]int32{{0, 1}, {1, 2}, {2, 3}, {3, 0}} {
		if err := b.AddEdge(e[0], e[1], "e"); err != nil {
			t.Fatal(err)
		}
	}
	g := b.Finalize()
	colors := make([]int32, 4)

	table, err := Collect(g, colors, 1, Params{NumWorkers: 1, MaxCycleSize: 3, SketchK: 16}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	entry, _ := table.Get(EntryKey{SrcColor: 0, EdgeType: 0, DstColor: 0})
	if entry.CycleFilter.N != 0 {
		t.Errorf("4-cycle marked despite max cycle size 3: %d insertions", entry.CycleFilter.N)
	}
}

func TestCycleMembershipSelfLoop(t *testing.T) {
	b := models.NewGraphBuilder()
	b.AddVertex("n")
	b.AddVertex("n")
	if err := b.AddEdge(0, 0, "e"); err != nil {
		t.Fatal(err)
	}
	if err := b.AddEdge(0, 1, "e"); err != nil {
		t.Fatal(err)
	}
	g := b.Finalize()
	colors := make([]int32, 2)

	table, err := Collect(g, colors, 1, Params{NumWorkers: 1, MaxCycleSize: 1, SketchK: 16}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	entry, _ := table.Get(EntryKey{SrcColor: 0, EdgeType: 0, DstColor: 0})
	if !entry.CycleFilter.Test(0) {
		t.Error("self-loop vertex missing from cycle filter")
	}
}
