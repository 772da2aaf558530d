package stats

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"math/bits"
)

// DefaultFalsePositiveRate is the target false-positive rate filters are
// sized for when the caller does not override it.
const DefaultFalsePositiveRate = 0.01

// Filter is a bloom filter over vertex ids with a fixed serialized layout
// (bit words + m + k). It is a plain value type: copy it, union it, ship it
// in a summary file. Zero false negatives; false positives bounded by the
// sizing rate. Not safe for concurrent mutation, which never happens after
// build.
type Filter struct {
	Bits []uint64
	M    uint32 // number of bits
	K    uint32 // number of hash functions
	N    uint32 // number of Add calls, kept for cardinality estimation
}

// NewFilter sizes a filter for the expected number of insertions at the
// given false-positive rate.
func NewFilter(expected int, fpRate float64) *Filter {
	if expected < 1 {
		expected = 1
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = DefaultFalsePositiveRate
	}
	ln2 := math.Ln2
	m := uint32(math.Ceil(-float64(expected) * math.Log(fpRate) / (ln2 * ln2)))
	if m < 64 {
		m = 64
	}
	k := uint32(math.Round(float64(m) / float64(expected) * ln2))
	if k < 1 {
		k = 1
	}
	if k > 8 {
		k = 8
	}
	return &Filter{
		Bits: make([]uint64, (m+63)/64),
		M:    m,
		K:    k,
	}
}

// hashPair derives two independent 64-bit hashes of a vertex id; bit
// positions come from double hashing h1 + i*h2.
func hashPair(id int32) (uint64, uint64) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(id))

	h1 := fnv.New64a()
	h1.Write(buf[:])
	a := h1.Sum64()

	h2 := fnv.New64()
	h2.Write(buf[:])
	b := h2.Sum64() | 1 // odd, so the stride visits distinct positions

	return a, b
}

// Add inserts a vertex id.
func (f *Filter) Add(id int32) {
	a, b := hashPair(id)
	for i := uint32(0); i < f.K; i++ {
		pos := (a + uint64(i)*b) % uint64(f.M)
		f.Bits[pos/64] |= 1 << (pos % 64)
	}
	f.N++
}

// Test reports whether id may have been added. False means definitely not.
func (f *Filter) Test(id int32) bool {
	if f.M == 0 {
		return false
	}
	a, b := hashPair(id)
	for i := uint32(0); i < f.K; i++ {
		pos := (a + uint64(i)*b) % uint64(f.M)
		if f.Bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// Union merges another filter into this one by bitwise OR. Both filters must
// share the same geometry; Union is commutative and associative, so partial
// filters from any number of workers merge to the same result.
func (f *Filter) Union(other *Filter) {
	if other == nil || other.M != f.M || other.K != f.K {
		return
	}
	for i := range f.Bits {
		f.Bits[i] |= other.Bits[i]
	}
	f.N += other.N
}

// EstimateCardinality approximates the number of distinct insertions from
// the fill ratio: n ≈ -(m/k) · ln(1 - X/m) with X set bits. A saturated
// filter falls back to the insertion counter.
func (f *Filter) EstimateCardinality() float64 {
	if f.M == 0 {
		return 0
	}
	set := 0
	for _, w := range f.Bits {
		set += bits.OnesCount64(w)
	}
	if set == 0 {
		return 0
	}
	if uint32(set) >= f.M {
		return float64(f.N)
	}
	est := -(float64(f.M) / float64(f.K)) * math.Log(1-float64(set)/float64(f.M))
	return est
}

// FillRatio reports the fraction of set bits, a health signal for sizing.
func (f *Filter) FillRatio() float64 {
	if f.M == 0 {
		return 0
	}
	set := 0
	for _, w := range f.Bits {
		set += bits.OnesCount64(w)
	}
	return float64(set) / float64(f.M)
}

// Clone returns an independent copy.
func (f *Filter) Clone() *Filter {
	return &Filter{
		Bits: append([]uint64(nil), f.Bits...),
		M:    f.M,
		K:    f.K,
		N:    f.N,
	}
}
