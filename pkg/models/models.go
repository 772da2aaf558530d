package models

import (
	"fmt"
	"sort"
)

// Graph is the immutable labeled multigraph the summary is built over.
// Adjacency is stored CSR-style in both directions; labels and edge types
// are interned into dense int32 ids through the dictionaries below.
type Graph struct {
	NumVertices int     `json:"num_vertices"`
	NumEdges    int     `json:"num_edges"`
	Labels      []int32 `json:"labels"` // Labels[v] = label id of vertex v

	// Out-adjacency: edges of vertex v live in [OutOffsets[v], OutOffsets[v+1]),
	// sorted by (edge type, destination id).
	OutOffsets []int32 `json:"-"`
	OutDst     []int32 `json:"-"`
	OutType    []int32 `json:"-"`

	// In-adjacency, mirrored, sorted by (edge type, source id).
	InOffsets []int32 `json:"-"`
	InSrc     []int32 `json:"-"`
	InType    []int32 `json:"-"`

	LabelNames []string `json:"label_names"` // label id -> name
	TypeNames  []string `json:"type_names"`  // edge type id -> name
}

// OutEdges returns the destination and type slices for vertex v.
func (g *Graph) OutEdges(v int32) ([]int32, []int32) {
	lo, hi := g.OutOffsets[v], g.OutOffsets[v+1]
	return g.OutDst[lo:hi], g.OutType[lo:hi]
}

// InEdges returns the source and type slices for vertex v.
func (g *Graph) InEdges(v int32) ([]int32, []int32) {
	lo, hi := g.InOffsets[v], g.InOffsets[v+1]
	return g.InSrc[lo:hi], g.InType[lo:hi]
}

// OutDegree returns the number of outgoing edges of v.
func (g *Graph) OutDegree(v int32) int {
	return int(g.OutOffsets[v+1] - g.OutOffsets[v])
}

// InDegree returns the number of incoming edges of v.
func (g *Graph) InDegree(v int32) int {
	return int(g.InOffsets[v+1] - g.InOffsets[v])
}

// Degree returns the total (in + out) degree of v.
func (g *Graph) Degree(v int32) int {
	return g.OutDegree(v) + g.InDegree(v)
}

// LabelID resolves a label name, returning false if unknown.
func (g *Graph) LabelID(name string) (int32, bool) {
	for i, n := range g.LabelNames {
		if n == name {
			return int32(i), true
		}
	}
	return 0, false
}

// TypeID resolves an edge type name, returning false if unknown.
func (g *Graph) TypeID(name string) (int32, bool) {
	for i, n := range g.TypeNames {
		if n == name {
			return int32(i), true
		}
	}
	return 0, false
}

// Validate checks structural consistency of the CSR arrays.
func (g *Graph) Validate() error {
	if len(g.Labels) != g.NumVertices {
		return fmt.Errorf("label array length %d does not match vertex count %d", len(g.Labels), g.NumVertices)
	}
	if len(g.OutOffsets) != g.NumVertices+1 || len(g.InOffsets) != g.NumVertices+1 {
		return fmt.Errorf("offset arrays must have length %d", g.NumVertices+1)
	}
	if len(g.OutDst) != g.NumEdges || len(g.InSrc) != g.NumEdges {
		return fmt.Errorf("adjacency length does not match edge count %d", g.NumEdges)
	}
	for _, l := range g.Labels {
		if int(l) >= len(g.LabelNames) {
			return fmt.Errorf("label id %d out of range", l)
		}
	}
	return nil
}

type builderEdge struct {
	src, dst, typ int32
}

// GraphBuilder accumulates vertices and edges, then freezes them into a Graph.
type GraphBuilder struct {
	labels    []int32
	edges     []builderEdge
	labelIDs  map[string]int32
	typeIDs   map[string]int32
	labelList []string
	typeList  []string
}

// NewGraphBuilder creates an empty builder.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{
		labelIDs: make(map[string]int32),
		typeIDs:  make(map[string]int32),
	}
}

// AddVertex appends a vertex with the given label and returns its id.
func (b *GraphBuilder) AddVertex(label string) int32 {
	id, ok := b.labelIDs[label]
	if !ok {
		id = int32(len(b.labelList))
		b.labelIDs[label] = id
		b.labelList = append(b.labelList, label)
	}
	b.labels = append(b.labels, id)
	return int32(len(b.labels) - 1)
}

// AddEdge appends a directed typed edge between existing vertices.
func (b *GraphBuilder) AddEdge(src, dst int32, edgeType string) error {
	n := int32(len(b.labels))
	if src < 0 || src >= n || dst < 0 || dst >= n {
		return fmt.Errorf("edge (%d -> %d) references unknown vertex, have %d vertices", src, dst, n)
	}
	id, ok := b.typeIDs[edgeType]
	if !ok {
		id = int32(len(b.typeList))
		b.typeIDs[edgeType] = id
		b.typeList = append(b.typeList, edgeType)
	}
	b.edges = append(b.edges, builderEdge{src: src, dst: dst, typ: id})
	return nil
}

// Finalize freezes the builder into an immutable Graph. Adjacency is sorted
// by (type, neighbor id) so downstream iteration order is deterministic.
func (b *GraphBuilder) Finalize() *Graph {
	n := len(b.labels)
	m := len(b.edges)

	g := &Graph{
		NumVertices: n,
		NumEdges:    m,
		Labels:      append([]int32(nil), b.labels...),
		OutOffsets:  make([]int32, n+1),
		OutDst:      make([]int32, m),
		OutType:     make([]int32, m),
		InOffsets:   make([]int32, n+1),
		InSrc:       make([]int32, m),
		InType:      make([]int32, m),
		LabelNames:  append([]string(nil), b.labelList...),
		TypeNames:   append([]string(nil), b.typeList...),
	}

	sort.SliceStable(b.edges, func(i, j int) bool {
		ei, ej := b.edges[i], b.edges[j]
		if ei.src != ej.src {
			return ei.src < ej.src
		}
		if ei.typ != ej.typ {
			return ei.typ < ej.typ
		}
		return ei.dst < ej.dst
	})
	for _, e := range b.edges {
		g.OutOffsets[e.src+1]++
	}
	for v := 0; v < n; v++ {
		g.OutOffsets[v+1] += g.OutOffsets[v]
	}
	for i, e := range b.edges {
		g.OutDst[i] = e.dst
		g.OutType[i] = e.typ
	}

	sort.SliceStable(b.edges, func(i, j int) bool {
		ei, ej := b.edges[i], b.edges[j]
		if ei.dst != ej.dst {
			return ei.dst < ej.dst
		}
		if ei.typ != ej.typ {
			return ei.typ < ej.typ
		}
		return ei.src < ej.src
	})
	for _, e := range b.edges {
		g.InOffsets[e.dst+1]++
	}
	for v := 0; v < n; v++ {
		g.InOffsets[v+1] += g.InOffsets[v]
	}
	for i, e := range b.edges {
		g.InSrc[i] = e.src
		g.InType[i] = e.typ
	}

	return g
}
