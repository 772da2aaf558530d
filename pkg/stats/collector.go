package stats

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/P40-traveler/pathce/pkg/models"
)

// EntryKey identifies an EdgeStatEntry by (source color, edge type,
// destination color).
type EntryKey struct {
	SrcColor int32
	EdgeType int32
	DstColor int32
}

// Less orders keys lexicographically.
func (k EntryKey) Less(o EntryKey) bool {
	if k.SrcColor != o.SrcColor {
		return k.SrcColor < o.SrcColor
	}
	if k.EdgeType != o.EdgeType {
		return k.EdgeType < o.EdgeType
	}
	return k.DstColor < o.DstColor
}

// EdgeStatEntry aggregates degree statistics and the cycle-membership filter
// for one (srcColor, edgeType, dstColor) key. Built once, read-only after.
type EdgeStatEntry struct {
	EdgeCount    int64
	DistinctSrc  int64
	AvgOutDegree float64 // EdgeCount / DistinctSrc
	MaxOutDegree int64
	DistinctDst  int64
	AvgInDegree  float64 // EdgeCount / DistinctDst
	MaxInDegree  int64
	DstSketch    *BottomKSketch // distinct destinations, for join selectivity
	CycleFilter  *Filter        // sources on a cycle-closing path through this key
}

// ColorStats describes one color class: how many vertices it holds, broken
// down by label.
type ColorStats struct {
	VertexCount int64
	LabelCounts map[int32]int64
}

// Table is the read-only statistics table: keys sorted lexicographically,
// entries parallel to keys, plus per-color class statistics.
type Table struct {
	Keys    []EntryKey
	Entries []*EdgeStatEntry
	Colors  []ColorStats
}

// Get looks up an entry by key via binary search.
func (t *Table) Get(key EntryKey) (*EdgeStatEntry, bool) {
	i := sort.Search(len(t.Keys), func(i int) bool { return !t.Keys[i].Less(key) })
	if i < len(t.Keys) && t.Keys[i] == key {
		return t.Entries[i], true
	}
	return nil, false
}

// Range calls fn for every entry whose key matches the given source color
// and edge type, in destination color order.
func (t *Table) Range(srcColor, edgeType int32, fn func(key EntryKey, e *EdgeStatEntry)) {
	from := EntryKey{SrcColor: srcColor, EdgeType: edgeType, DstColor: 0}
	i := sort.Search(len(t.Keys), func(i int) bool { return !t.Keys[i].Less(from) })
	for ; i < len(t.Keys); i++ {
		k := t.Keys[i]
		if k.SrcColor != srcColor || k.EdgeType != edgeType {
			break
		}
		fn(k, t.Entries[i])
	}
}

// Params controls one collection pass.
type Params struct {
	MaxCycleSize      int
	FalsePositiveRate float64
	SketchK           int
	NumWorkers        int
}

// partialEntry is one worker's contribution to an entry. All fields merge
// commutatively: sums, maxes, filter OR, sketch union.
type partialEntry struct {
	edgeCount   int64
	distinctSrc int64
	maxOut      int64
	distinctDst int64
	maxIn       int64
	dstSketch   *BottomKSketch
	cycleFilter *Filter
}

type partialTable map[EntryKey]*partialEntry

func (p partialTable) get(key EntryKey, sketchK int, classSize int64, fpRate float64) *partialEntry {
	e, ok := p[key]
	if !ok {
		e = &partialEntry{
			dstSketch:   NewBottomKSketch(sketchK),
			cycleFilter: NewFilter(int(classSize), fpRate),
		}
		p[key] = e
	}
	return e
}

// Collect builds the statistics table for a partitioned graph. Work is
// divided across workers by source color; per-worker partial tables merge by
// summation, max, filter union and sketch union, so the result does not
// depend on the worker count.
func Collect(g *models.Graph, colors []int32, numColors int, p Params, logger zerolog.Logger) (*Table, error) {
	if len(colors) != g.NumVertices {
		return nil, fmt.Errorf("color assignment covers %d vertices, graph has %d", len(colors), g.NumVertices)
	}
	if p.NumWorkers < 1 {
		p.NumWorkers = 1
	}
	if p.SketchK < 1 {
		p.SketchK = 64
	}
	if p.FalsePositiveRate <= 0 || p.FalsePositiveRate >= 1 {
		p.FalsePositiveRate = DefaultFalsePositiveRate
	}
	start := time.Now()

	colorStats := buildColorStats(g, colors, numColors)
	members := make([][]int32, numColors)
	for v := 0; v < g.NumVertices; v++ {
		c := colors[v]
		members[c] = append(members[c], int32(v))
	}

	// Source-side pass, partitioned by source color.
	partials := runColorWorkers(numColors, p.NumWorkers, func(c int32, pt partialTable) {
		collectSourceSide(g, colors, colorStats, c, members[c], p, pt)
	})
	// Destination-side pass, partitioned by destination color.
	inPartials := runColorWorkers(numColors, p.NumWorkers, func(c int32, pt partialTable) {
		collectDestinationSide(g, colors, colorStats, c, members[c], p, pt)
	})
	partials = append(partials, inPartials...)

	table := mergePartials(partials, colorStats)
	logger.Info().
		Int("colors", numColors).
		Int("entries", len(table.Keys)).
		Int("workers", p.NumWorkers).
		Dur("runtime", time.Since(start)).
		Msg("Statistics collection completed")
	return table, nil
}

func buildColorStats(g *models.Graph, colors []int32, numColors int) []ColorStats {
	stats := make([]ColorStats, numColors)
	for i := range stats {
		stats[i].LabelCounts = make(map[int32]int64)
	}
	for v := 0; v < g.NumVertices; v++ {
		c := colors[v]
		stats[c].VertexCount++
		stats[c].LabelCounts[g.Labels[v]]++
	}
	return stats
}

// runColorWorkers feeds color ids to a worker pool; each worker accumulates
// its own partial table.
func runColorWorkers(numColors, numWorkers int, work func(c int32, pt partialTable)) []partialTable {
	colorChannel := make(chan int32, numColors)
	resultChannel := make(chan partialTable, numWorkers)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pt := make(partialTable)
			for c := range colorChannel {
				work(c, pt)
			}
			resultChannel <- pt
		}()
	}
	for c := 0; c < numColors; c++ {
		colorChannel <- int32(c)
	}
	close(colorChannel)
	wg.Wait()
	close(resultChannel)

	partials := make([]partialTable, 0, numWorkers)
	for pt := range resultChannel {
		partials = append(partials, pt)
	}
	return partials
}

// collectSourceSide aggregates out-degree statistics and cycle membership
// for every source vertex of color c.
func collectSourceSide(g *models.Graph, colors []int32, colorStats []ColorStats, c int32, vertices []int32, p Params, pt partialTable) {
	classSize := colorStats[c].VertexCount
	perKey := make(map[EntryKey]int64)
	for _, v := range vertices {
		for k := range perKey {
			delete(perKey, k)
		}
		dsts, types := g.OutEdges(v)
		for i, d := range dsts {
			key := EntryKey{SrcColor: c, EdgeType: types[i], DstColor: colors[d]}
			perKey[key]++
		}
		keys := sortedKeys(perKey)
		for _, key := range keys {
			cnt := perKey[key]
			e := pt.get(key, p.SketchK, classSize, p.FalsePositiveRate)
			e.edgeCount += cnt
			e.distinctSrc++
			if cnt > e.maxOut {
				e.maxOut = cnt
			}
		}
		for i, d := range dsts {
			key := EntryKey{SrcColor: c, EdgeType: types[i], DstColor: colors[d]}
			pt.get(key, p.SketchK, classSize, p.FalsePositiveRate).dstSketch.Add(d)
		}
		if p.MaxCycleSize >= 1 {
			markCycleMembership(g, colors, v, c, p, classSize, pt)
		}
	}
}

// collectDestinationSide aggregates in-degree statistics for every
// destination vertex of color c.
func collectDestinationSide(g *models.Graph, colors []int32, colorStats []ColorStats, c int32, vertices []int32, p Params, pt partialTable) {
	perKey := make(map[EntryKey]int64)
	for _, v := range vertices {
		for k := range perKey {
			delete(perKey, k)
		}
		srcs, types := g.InEdges(v)
		for i, s := range srcs {
			key := EntryKey{SrcColor: colors[s], EdgeType: types[i], DstColor: c}
			perKey[key]++
		}
		keys := sortedKeys(perKey)
		for _, key := range keys {
			cnt := perKey[key]
			srcClassSize := colorStats[key.SrcColor].VertexCount
			e := pt.get(key, p.SketchK, srcClassSize, p.FalsePositiveRate)
			e.distinctDst++
			if cnt > e.maxIn {
				e.maxIn = cnt
			}
		}
	}
}

// markCycleMembership runs a bounded-depth search from v over out-edges; if
// a walk of length <= MaxCycleSize returns to v, v is inserted into the
// cycle filter of the entry matching the walk's first hop.
func markCycleMembership(g *models.Graph, colors []int32, v, c int32, p Params, classSize int64, pt partialTable) {
	dsts, types := g.OutEdges(v)
	for i, first := range dsts {
		if first == v {
			// Self-loop: a length-1 cycle.
			key := EntryKey{SrcColor: c, EdgeType: types[i], DstColor: c}
			pt.get(key, p.SketchK, classSize, p.FalsePositiveRate).cycleFilter.Add(v)
			continue
		}
		if closesCycle(g, first, v, p.MaxCycleSize-1) {
			key := EntryKey{SrcColor: c, EdgeType: types[i], DstColor: colors[first]}
			pt.get(key, p.SketchK, classSize, p.FalsePositiveRate).cycleFilter.Add(v)
		}
	}
}

// closesCycle reports whether target is reachable from cur within depth
// steps along out-edges. Depth is bounded by the configured max cycle size,
// which keeps the search cheap without a visited set.
func closesCycle(g *models.Graph, cur, target int32, depth int) bool {
	if depth < 1 {
		return false
	}
	dsts, _ := g.OutEdges(cur)
	for _, d := range dsts {
		if d == target {
			return true
		}
	}
	if depth == 1 {
		return false
	}
	for _, d := range dsts {
		if d == cur {
			continue
		}
		if closesCycle(g, d, target, depth-1) {
			return true
		}
	}
	return false
}

// mergePartials folds worker partials into the final sorted table. Averages
// are recomputed from the merged integer sums, so they agree bit-for-bit
// across worker counts.
func mergePartials(partials []partialTable, colorStats []ColorStats) *Table {
	merged := make(map[EntryKey]*partialEntry)
	for _, pt := range partials {
		for key, e := range pt {
			m, ok := merged[key]
			if !ok {
				merged[key] = e
				continue
			}
			m.edgeCount += e.edgeCount
			m.distinctSrc += e.distinctSrc
			m.distinctDst += e.distinctDst
			if e.maxOut > m.maxOut {
				m.maxOut = e.maxOut
			}
			if e.maxIn > m.maxIn {
				m.maxIn = e.maxIn
			}
			m.dstSketch.Union(e.dstSketch)
			m.cycleFilter.Union(e.cycleFilter)
		}
	}

	keys := make([]EntryKey, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	table := &Table{
		Keys:    keys,
		Entries: make([]*EdgeStatEntry, len(keys)),
		Colors:  colorStats,
	}
	for i, key := range keys {
		m := merged[key]
		entry := &EdgeStatEntry{
			EdgeCount:    m.edgeCount,
			DistinctSrc:  m.distinctSrc,
			MaxOutDegree: m.maxOut,
			DistinctDst:  m.distinctDst,
			MaxInDegree:  m.maxIn,
			DstSketch:    m.dstSketch,
			CycleFilter:  m.cycleFilter,
		}
		if m.distinctSrc > 0 {
			entry.AvgOutDegree = float64(m.edgeCount) / float64(m.distinctSrc)
		}
		if m.distinctDst > 0 {
			entry.AvgInDegree = float64(m.edgeCount) / float64(m.distinctDst)
		}
		table.Entries[i] = entry
	}
	return table
}

func sortedKeys(m map[EntryKey]int64) []EntryKey {
	keys := make([]EntryKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}
