package models

import (
	"reflect"
	"testing"
)

func TestGraphBuilderCSR(t *testing.T) {
	b := NewGraphBuilder()
	p0 := b.AddVertex("person")
	p1 := b.AddVertex("person")
	f0 := b.AddVertex("forum")
	if err := b.AddEdge(p0, p1, "knows"); err != nil {
		t.Fatal(err)
	}
	if err := b.AddEdge(p0, f0, "member"); err != nil {
		t.Fatal(err)
	}
	if err := b.AddEdge(p1, f0, "member"); err != nil {
		t.Fatal(err)
	}
	g := b.Finalize()

	if g.NumVertices != 3 || g.NumEdges != 3 {
		t.Fatalf("got %d vertices, %d edges", g.NumVertices, g.NumEdges)
	}
	if err := g.Validate(); err != nil {
		t.Fatal(err)
	}

	// Labels intern to dense ids in first-seen order.
	if !reflect.DeepEqual(g.LabelNames, []string{"person", "forum"}) {
		t.Errorf("LabelNames = %v", g.LabelNames)
	}
	if !reflect.DeepEqual(g.TypeNames, []string{"knows", "member"}) {
		t.Errorf("TypeNames = %v", g.TypeNames)
	}
	if id, ok := g.LabelID("forum"); !ok || id != 1 {
		t.Errorf("LabelID(forum) = %d, %v", id, ok)
	}
	if _, ok := g.TypeID("likes"); ok {
		t.Error("TypeID(likes) should not resolve")
	}

	dsts, types := g.OutEdges(p0)
	if !reflect.DeepEqual(dsts, []int32{p1, f0}) {
		t.Errorf("out edges of %d = %v", p0, dsts)
	}
	if !reflect.DeepEqual(types, []int32{0, 1}) {
		t.Errorf("out edge types of %d = %v", p0, types)
	}

	srcs, _ := g.InEdges(f0)
	if !reflect.DeepEqual(srcs, []int32{p0, p1}) {
		t.Errorf("in edges of %d = %v", f0, srcs)
	}
	if g.OutDegree(p0) != 2 || g.InDegree(f0) != 2 || g.Degree(p0) != 2 {
		t.Errorf("degrees: out(%d)=%d in(%d)=%d", p0, g.OutDegree(p0), f0, g.InDegree(f0))
	}
}

func TestGraphBuilderRejectsUnknownVertex(t *testing.T) {
	b := NewGraphBuilder()
	b.AddVertex("n")
	if err := b.AddEdge(0, 5, "e"); err == nil {
		t.Error("edge to unknown vertex accepted")
	}
	if err := b.AddEdge(-1, 0, "e"); err == nil {
		t.Error("edge from negative vertex accepted")
	}
}

func TestPatternHelpers(t *testing.T) {
	p := &Pattern{
		Vertices: []PatternVertex{{ID: 0, Label: "a"}, {ID: 1, Label: "b"}, {ID: 2, Label: "c"}},
		Edges: []PatternEdge{
			{Src: 0, Dst: 1, Type: "e"},
			{Src: 1, Dst: 2, Type: "e"},
			{Src: 2, Dst: 0, Type: "e"},
		},
	}
	if d := p.Degree(1); d != 2 {
		t.Errorf("Degree(1) = %d, want 2", d)
	}
	if m := p.MaxDegree(); m != 2 {
		t.Errorf("MaxDegree = %d, want 2", m)
	}
	adj := p.Adjacency()
	if len(adj[0]) != 2 {
		t.Errorf("adjacency of 0 has %d edges, want 2", len(adj[0]))
	}
}
