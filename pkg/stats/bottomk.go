package stats

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"sort"
)

// BottomKSketch keeps the k smallest hash values seen over a stream of
// vertex ids and estimates the distinct count from the k-th smallest value.
// Undersaturated sketches (fewer than k values) are exact. Sketches from
// different workers union into the same result regardless of merge order.
type BottomKSketch struct {
	Values []uint64
	K      uint16
}

// NewBottomKSketch creates an empty sketch of capacity k.
func NewBottomKSketch(k int) *BottomKSketch {
	if k < 1 {
		k = 1
	}
	return &BottomKSketch{
		Values: make([]uint64, 0, k),
		K:      uint16(k),
	}
}

func sketchHash(id int32) uint64 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(id))
	h := fnv.New64a()
	h.Write(buf[:])
	return h.Sum64()
}

// Add observes a vertex id.
func (s *BottomKSketch) Add(id int32) {
	s.addHash(sketchHash(id))
}

func (s *BottomKSketch) addHash(value uint64) {
	k := int(s.K)
	idx := sort.Search(len(s.Values), func(i int) bool { return s.Values[i] >= value })
	if idx < len(s.Values) && s.Values[idx] == value {
		return // already present
	}
	if len(s.Values) < k {
		s.Values = append(s.Values, 0)
		copy(s.Values[idx+1:], s.Values[idx:])
		s.Values[idx] = value
		return
	}
	if value < s.Values[k-1] {
		copy(s.Values[idx+1:], s.Values[idx:k-1])
		s.Values[idx] = value
	}
}

// Union merges another sketch into this one.
func (s *BottomKSketch) Union(other *BottomKSketch) {
	if other == nil {
		return
	}
	for _, v := range other.Values {
		s.addHash(v)
	}
}

// Estimate returns the approximate distinct count. A saturated sketch uses
// (k-1) · 2^64 / kth-value; an undersaturated one is simply its size.
func (s *BottomKSketch) Estimate() float64 {
	k := int(s.K)
	if len(s.Values) < k {
		return float64(len(s.Values))
	}
	kth := s.Values[k-1]
	if kth == 0 {
		return float64(len(s.Values))
	}
	return float64(k-1) * (float64(math.MaxUint64) / float64(kth))
}

// Clone returns an independent copy.
func (s *BottomKSketch) Clone() *BottomKSketch {
	return &BottomKSketch{
		Values: append([]uint64(nil), s.Values...),
		K:      s.K,
	}
}
