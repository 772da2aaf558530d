package summary

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/P40-traveler/pathce/pkg/models"
	"github.com/P40-traveler/pathce/pkg/partition"
	"github.com/P40-traveler/pathce/pkg/stats"
)

// Binary container layout: 4-byte magic, uint32 format version, uint32
// crc32 (IEEE) structural checksum over the body, then the little-endian
// body. Loading an unknown version or a failing checksum is a FormatError;
// no partial deserialization is attempted.
var summaryMagic = [4]byte{'G', 'S', 'U', 'M'}

const formatVersion uint32 = 1

// Save writes an atomic, versioned binary snapshot: the body is written to
// a temp file in the target directory and renamed into place, so a crash
// mid-write never corrupts an existing file.
func Save(s *Summary, path string) error {
	body := encodeBody(s)

	header := make([]byte, 12)
	copy(header[0:4], summaryMagic[:])
	binary.LittleEndian.PutUint32(header[4:8], formatVersion)
	binary.LittleEndian.PutUint32(header[8:12], crc32.ChecksumIEEE(body))

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".summary-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}
	if _, err := tmp.Write(header); err != nil {
		cleanup()
		return fmt.Errorf("writing summary header: %w", err)
	}
	if _, err := tmp.Write(body); err != nil {
		cleanup()
		return fmt.Errorf("writing summary body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming summary into place: %w", err)
	}
	return nil
}

// Load reads a summary snapshot, verifying magic, version and checksum
// before touching the body.
func Load(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading summary file: %w", err)
	}
	if len(data) < 12 {
		return nil, models.Formatf(path, "file too short (%d bytes)", len(data))
	}
	if !bytes.Equal(data[0:4], summaryMagic[:]) {
		return nil, models.Formatf(path, "bad magic %q", data[0:4])
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != formatVersion {
		return nil, models.Formatf(path, "unsupported format version %d, want %d", v, formatVersion)
	}
	want := binary.LittleEndian.Uint32(data[8:12])
	body := data[12:]
	if got := crc32.ChecksumIEEE(body); got != want {
		return nil, models.Formatf(path, "checksum mismatch: file says %08x, body is %08x", want, got)
	}
	s, err := decodeBody(body, path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) u8(v uint8)   { e.buf.WriteByte(v) }
func (e *encoder) u16(v uint16) { var b [2]byte; binary.LittleEndian.PutUint16(b[:], v); e.buf.Write(b[:]) }
func (e *encoder) u32(v uint32) { var b [4]byte; binary.LittleEndian.PutUint32(b[:], v); e.buf.Write(b[:]) }
func (e *encoder) u64(v uint64) { var b [8]byte; binary.LittleEndian.PutUint64(b[:], v); e.buf.Write(b[:]) }
func (e *encoder) i32(v int32)  { e.u32(uint32(v)) }
func (e *encoder) i64(v int64)  { e.u64(uint64(v)) }
func (e *encoder) f64(v float64) {
	e.u64(math.Float64bits(v))
}
func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.buf.WriteString(s)
}
func (e *encoder) boolean(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

func encodeBody(s *Summary) []byte {
	var e encoder

	// Build parameters.
	e.u32(uint32(len(s.Params.Scheme)))
	for _, entry := range s.Params.Scheme {
		e.str(string(entry.Strategy))
		e.u32(uint32(entry.Buckets))
	}
	e.u32(uint32(s.Params.MaxCycleSize))
	e.u32(uint32(s.Params.SampleBudget))
	e.f64(s.Params.FalsePositiveRate)
	e.u32(uint32(s.Params.SketchK))
	e.f64(s.Params.ProportionUpdated)
	e.f64(s.Params.ProportionDeleted)
	e.boolean(s.Params.Weighted)

	// Dictionaries.
	e.u32(uint32(len(s.LabelNames)))
	for _, n := range s.LabelNames {
		e.str(n)
	}
	e.u32(uint32(len(s.TypeNames)))
	for _, n := range s.TypeNames {
		e.str(n)
	}

	// Color assignment.
	e.u32(uint32(len(s.Colors)))
	for _, c := range s.Colors {
		e.i32(c)
	}
	e.u32(uint32(s.NumColors))

	// Per-color statistics.
	for _, cs := range s.Stats.Colors {
		e.i64(cs.VertexCount)
		labels := make([]int32, 0, len(cs.LabelCounts))
		for l := range cs.LabelCounts {
			labels = append(labels, l)
		}
		sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
		e.u32(uint32(len(labels)))
		for _, l := range labels {
			e.i32(l)
			e.i64(cs.LabelCounts[l])
		}
	}

	// Entry table.
	e.u32(uint32(len(s.Stats.Keys)))
	for i, key := range s.Stats.Keys {
		entry := s.Stats.Entries[i]
		e.i32(key.SrcColor)
		e.i32(key.EdgeType)
		e.i32(key.DstColor)
		e.i64(entry.EdgeCount)
		e.i64(entry.DistinctSrc)
		e.f64(entry.AvgOutDegree)
		e.i64(entry.MaxOutDegree)
		e.i64(entry.DistinctDst)
		e.f64(entry.AvgInDegree)
		e.i64(entry.MaxInDegree)

		e.u16(entry.DstSketch.K)
		e.u32(uint32(len(entry.DstSketch.Values)))
		for _, v := range entry.DstSketch.Values {
			e.u64(v)
		}

		e.u32(entry.CycleFilter.M)
		e.u32(entry.CycleFilter.K)
		e.u32(entry.CycleFilter.N)
		e.u32(uint32(len(entry.CycleFilter.Bits)))
		for _, w := range entry.CycleFilter.Bits {
			e.u64(w)
		}
	}

	return e.buf.Bytes()
}

type decoder struct {
	data []byte
	pos  int
	path string
	err  error
}

func (d *decoder) fail(format string, args ...interface{}) {
	if d.err == nil {
		d.err = models.Formatf(d.path, format, args...)
	}
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if d.pos+n > len(d.data) {
		d.fail("truncated body at offset %d (need %d bytes)", d.pos, n)
		return nil
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *decoder) u8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) u16() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *decoder) u32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) u64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *decoder) i32() int32   { return int32(d.u32()) }
func (d *decoder) i64() int64   { return int64(d.u64()) }
func (d *decoder) f64() float64 { return math.Float64frombits(d.u64()) }

func (d *decoder) str() string {
	n := int(d.u32())
	b := d.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}

func (d *decoder) boolean() bool { return d.u8() != 0 }

// count reads a length prefix with a sanity ceiling so a corrupted length
// cannot drive a huge allocation.
func (d *decoder) count(what string) int {
	n := int(d.u32())
	if d.err == nil && n > len(d.data) {
		d.fail("implausible %s count %d", what, n)
		return 0
	}
	return n
}

func decodeBody(body []byte, path string) (*Summary, error) {
	d := &decoder{data: body, path: path}
	s := &Summary{}

	schemeLen := d.count("scheme entry")
	for i := 0; i < schemeLen && d.err == nil; i++ {
		strategy := d.str()
		buckets := int(d.u32())
		s.Params.Scheme = append(s.Params.Scheme, partition.SchemeEntry{
			Strategy: partition.Strategy(strategy),
			Buckets:  buckets,
		})
	}
	s.Params.MaxCycleSize = int(d.u32())
	s.Params.SampleBudget = int(d.u32())
	s.Params.FalsePositiveRate = d.f64()
	s.Params.SketchK = int(d.u32())
	s.Params.ProportionUpdated = d.f64()
	s.Params.ProportionDeleted = d.f64()
	s.Params.Weighted = d.boolean()

	labelCount := d.count("label")
	for i := 0; i < labelCount && d.err == nil; i++ {
		s.LabelNames = append(s.LabelNames, d.str())
	}
	typeCount := d.count("edge type")
	for i := 0; i < typeCount && d.err == nil; i++ {
		s.TypeNames = append(s.TypeNames, d.str())
	}

	vertexCount := d.count("vertex")
	if d.err == nil {
		s.Colors = make([]int32, vertexCount)
		for i := range s.Colors {
			s.Colors[i] = d.i32()
		}
	}
	s.NumColors = int(d.u32())
	if d.err == nil && s.NumColors > len(body) {
		d.fail("implausible color count %d", s.NumColors)
	}

	table := &stats.Table{}
	for c := 0; c < s.NumColors && d.err == nil; c++ {
		cs := stats.ColorStats{
			VertexCount: d.i64(),
			LabelCounts: make(map[int32]int64),
		}
		labels := d.count("color label")
		for i := 0; i < labels && d.err == nil; i++ {
			l := d.i32()
			cs.LabelCounts[l] = d.i64()
		}
		table.Colors = append(table.Colors, cs)
	}

	entryCount := d.count("entry")
	for i := 0; i < entryCount && d.err == nil; i++ {
		key := stats.EntryKey{
			SrcColor: d.i32(),
			EdgeType: d.i32(),
			DstColor: d.i32(),
		}
		entry := &stats.EdgeStatEntry{
			EdgeCount:    d.i64(),
			DistinctSrc:  d.i64(),
			AvgOutDegree: d.f64(),
			MaxOutDegree: d.i64(),
			DistinctDst:  d.i64(),
			AvgInDegree:  d.f64(),
			MaxInDegree:  d.i64(),
		}

		sketch := &stats.BottomKSketch{K: d.u16()}
		sketchLen := d.count("sketch value")
		if d.err == nil {
			sketch.Values = make([]uint64, 0, sketchLen)
		}
		for j := 0; j < sketchLen && d.err == nil; j++ {
			sketch.Values = append(sketch.Values, d.u64())
		}
		entry.DstSketch = sketch

		filter := &stats.Filter{
			M: d.u32(),
			K: d.u32(),
			N: d.u32(),
		}
		wordCount := d.count("filter word")
		if d.err == nil && uint32(wordCount) != (filter.M+63)/64 {
			d.fail("filter word count %d does not match %d bits", wordCount, filter.M)
		}
		for j := 0; j < wordCount && d.err == nil; j++ {
			filter.Bits = append(filter.Bits, d.u64())
		}
		entry.CycleFilter = filter

		table.Keys = append(table.Keys, key)
		table.Entries = append(table.Entries, entry)
	}

	if d.err == nil && d.pos != len(body) {
		d.fail("%d trailing bytes after body", len(body)-d.pos)
	}
	if d.err != nil {
		return nil, d.err
	}
	s.Stats = table
	return s, nil
}
