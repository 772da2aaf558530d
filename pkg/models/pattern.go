package models

// PatternVertex is a typed query variable.
type PatternVertex struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

// PatternEdge is a directed typed edge between two pattern vertices.
type PatternEdge struct {
	Src  int    `json:"src"`
	Dst  int    `json:"dst"`
	Type string `json:"type"`
}

// Pattern is a (possibly cyclic) query graph. ExpectedCount is an optional
// ground-truth annotation used for validation and q-error reporting only; it
// never influences estimation.
type Pattern struct {
	Vertices      []PatternVertex `json:"vertices"`
	Edges         []PatternEdge   `json:"edges"`
	ExpectedCount *float64        `json:"expected_count,omitempty"`
}

// NumVertices returns the number of pattern vertices.
func (p *Pattern) NumVertices() int { return len(p.Vertices) }

// NumEdges returns the number of pattern edges.
func (p *Pattern) NumEdges() int { return len(p.Edges) }

// Degree returns the number of pattern edges incident to vertex v.
func (p *Pattern) Degree(v int) int {
	d := 0
	for _, e := range p.Edges {
		if e.Src == v || e.Dst == v {
			d++
		}
	}
	return d
}

// MaxDegree returns the highest per-vertex degree in the pattern.
func (p *Pattern) MaxDegree() int {
	max := 0
	for i := range p.Vertices {
		if d := p.Degree(p.Vertices[i].ID); d > max {
			max = d
		}
	}
	return max
}

// Adjacency returns, per vertex id, the indices of incident edges.
func (p *Pattern) Adjacency() map[int][]int {
	adj := make(map[int][]int, len(p.Vertices))
	for i := range p.Vertices {
		adj[p.Vertices[i].ID] = nil
	}
	for i, e := range p.Edges {
		adj[e.Src] = append(adj[e.Src], i)
		if e.Dst != e.Src {
			adj[e.Dst] = append(adj[e.Dst], i)
		}
	}
	return adj
}
