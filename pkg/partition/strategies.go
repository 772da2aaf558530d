package partition

import (
	"encoding/binary"
	"hash/fnv"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/P40-traveler/pathce/pkg/models"
)

// degreeBuckets splits vertices into k roughly equal-sized buckets by total
// degree. Bucket thresholds come from empirical quantiles of the degree
// distribution, so equal degrees always land in the same bucket.
func degreeBuckets(g *models.Graph, k, numWorkers int) []int32 {
	n := g.NumVertices
	out := make([]int32, n)
	if n == 0 || k <= 1 {
		return out
	}

	degrees := make([]float64, n)
	parallelChunks(n, numWorkers, func(lo, hi int) {
		for v := lo; v < hi; v++ {
			degrees[v] = float64(g.Degree(int32(v)))
		}
	})

	sorted := append([]float64(nil), degrees...)
	sort.Float64s(sorted)

	thresholds := make([]float64, 0, k-1)
	for i := 1; i < k; i++ {
		q := stat.Quantile(float64(i)/float64(k), stat.Empirical, sorted, nil)
		thresholds = append(thresholds, q)
	}

	parallelChunks(n, numWorkers, func(lo, hi int) {
		for v := lo; v < hi; v++ {
			b := sort.SearchFloat64s(thresholds, degrees[v])
			// Equal-to-threshold degrees belong to the lower bucket.
			for b > 0 && degrees[v] <= thresholds[b-1] {
				b--
			}
			out[v] = int32(b)
		}
	})
	return out
}

// labelBuckets hashes each vertex's own label into k buckets.
func labelBuckets(g *models.Graph, k, numWorkers int) []int32 {
	n := g.NumVertices
	out := make([]int32, n)
	if k <= 1 {
		return out
	}
	parallelChunks(n, numWorkers, func(lo, hi int) {
		for v := lo; v < hi; v++ {
			out[v] = int32(hashUint32s([]uint32{uint32(g.Labels[v])}) % uint64(k))
		}
	})
	return out
}

// neighborLabelBuckets hashes the multiset of in+out neighbor labels into k
// buckets. The multiset is accumulated as per-label counts and hashed in
// label id order, so the result is independent of adjacency order.
func neighborLabelBuckets(g *models.Graph, k, numWorkers int) []int32 {
	n := g.NumVertices
	out := make([]int32, n)
	if k <= 1 {
		return out
	}
	numLabels := len(g.LabelNames)
	parallelChunks(n, numWorkers, func(lo, hi int) {
		counts := make([]uint32, numLabels)
		for v := lo; v < hi; v++ {
			for i := range counts {
				counts[i] = 0
			}
			dsts, _ := g.OutEdges(int32(v))
			for _, d := range dsts {
				counts[g.Labels[d]]++
			}
			srcs, _ := g.InEdges(int32(v))
			for _, s := range srcs {
				counts[g.Labels[s]]++
			}
			sig := make([]uint32, 0, 2*numLabels)
			for l, c := range counts {
				if c > 0 {
					sig = append(sig, uint32(l), c)
				}
			}
			out[v] = int32(hashUint32s(sig) % uint64(k))
		}
	})
	return out
}

// quasiStableBuckets runs classic color refinement seeded by the composite
// of the preceding strategies' buckets. Each round splits classes by the
// multiset of (direction, edge type, neighbor class) signatures; rounds are
// synchronized, and refinement stops at a fixpoint or when another round
// would exceed the bucket budget (the last assignment that fits is kept).
func quasiStableBuckets(g *models.Graph, k int, seed []int64, numWorkers int, logger zerolog.Logger) ([]int32, error) {
	n := g.NumVertices
	classes, numClasses := relabelDense(seed)
	if n == 0 {
		return classes, nil
	}
	if numClasses > k {
		// Seed already finer than the budget; collapse classes modulo k.
		for v := range classes {
			classes[v] = classes[v] % int32(k)
		}
		classes, numClasses = relabelDense(toInt64(classes))
	}

	for round := 0; round < n; round++ {
		sigs := make([]uint64, n)
		parallelChunks(n, numWorkers, func(lo, hi int) {
			for v := lo; v < hi; v++ {
				sigs[v] = refinementSignature(g, int32(v), classes)
			}
		})

		// Group vertices by (old class, signature); new class ids are
		// assigned by (old class, smallest member id) ascending.
		type groupKey struct {
			class int32
			sig   uint64
		}
		groupOf := make(map[groupKey]int32, numClasses)
		next := make([]int32, n)
		newCount := int32(0)
		for v := 0; v < n; v++ {
			key := groupKey{class: classes[v], sig: sigs[v]}
			id, ok := groupOf[key]
			if !ok {
				id = newCount
				newCount++
				groupOf[key] = id
			}
			next[v] = id
		}

		if int(newCount) == numClasses {
			break // stable
		}
		if int(newCount) > k {
			logger.Debug().
				Int("round", round).
				Int("classes", numClasses).
				Int("would_split_to", int(newCount)).
				Msg("Refinement stopped at bucket budget")
			break
		}
		classes = next
		numClasses = int(newCount)
	}
	return classes, nil
}

// refinementSignature hashes a vertex's class together with the sorted
// multiset of (direction, type, neighbor class) triples.
func refinementSignature(g *models.Graph, v int32, classes []int32) uint64 {
	dsts, types := g.OutEdges(v)
	srcs, inTypes := g.InEdges(v)
	triples := make([]uint64, 0, len(dsts)+len(srcs))
	for i, d := range dsts {
		triples = append(triples, uint64(types[i])<<33|uint64(classes[d]))
	}
	for i, s := range srcs {
		triples = append(triples, 1<<63|uint64(inTypes[i])<<33|uint64(classes[s]))
	}
	sort.Slice(triples, func(i, j int) bool { return triples[i] < triples[j] })

	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(classes[v]))
	h.Write(buf[:])
	for _, t := range triples {
		binary.LittleEndian.PutUint64(buf[:], t)
		h.Write(buf[:])
	}
	return h.Sum64()
}

func hashUint32s(values []uint32) uint64 {
	h := fnv.New64a()
	var buf [4]byte
	for _, v := range values {
		binary.LittleEndian.PutUint32(buf[:], v)
		h.Write(buf[:])
	}
	return h.Sum64()
}

func toInt64(xs []int32) []int64 {
	out := make([]int64, len(xs))
	for i, x := range xs {
		out[i] = int64(x)
	}
	return out
}
