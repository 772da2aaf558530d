package estimate

import (
	"sort"

	"github.com/P40-traveler/pathce/pkg/models"
)

// star is one decomposition fragment: a center pattern vertex and the tree
// edges incident to it. Fragments exist only during estimation.
type star struct {
	center   int
	edgeIdxs []int
	vertices []int // center plus edge endpoints, ascending
}

// decomposition covers a pattern's spanning forest with stars; the edges
// outside the forest close cycles and are handled by cycle adjustment.
type decomposition struct {
	stars      []star
	cycleEdges []int // pattern edge indices outside the spanning forest
}

// decompose splits the pattern into a covering set of star fragments whose
// centers have at most maxStarDegree incident tree edges. All choices break
// ties by ascending vertex or edge index, so the decomposition is a pure
// function of the pattern.
func decompose(p *models.Pattern, maxStarDegree int) *decomposition {
	if maxStarDegree < 1 {
		maxStarDegree = 1
	}
	adj := p.Adjacency()

	vertexIDs := make([]int, 0, len(p.Vertices))
	for _, v := range p.Vertices {
		vertexIDs = append(vertexIDs, v.ID)
	}
	sort.Ints(vertexIDs)
	for _, idxs := range adj {
		sort.Ints(idxs)
	}

	// BFS spanning forest, smallest vertex id first. Non-tree edges close
	// cycles.
	treeEdge := make([]bool, len(p.Edges))
	visited := make(map[int]bool, len(vertexIDs))
	var cycleEdges []int
	for _, root := range vertexIDs {
		if visited[root] {
			continue
		}
		visited[root] = true
		queue := []int{root}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			for _, ei := range adj[v] {
				e := p.Edges[ei]
				other := e.Dst
				if other == v {
					other = e.Src
				}
				if e.Src == e.Dst {
					continue // self-loop, never a tree edge
				}
				if !visited[other] {
					visited[other] = true
					treeEdge[ei] = true
					queue = append(queue, other)
				}
			}
		}
	}
	for ei := range p.Edges {
		if !treeEdge[ei] {
			cycleEdges = append(cycleEdges, ei)
		}
	}

	// Greedy star cover of the tree edges: repeatedly center on the vertex
	// with the most uncovered incident tree edges.
	covered := make([]bool, len(p.Edges))
	uncoveredCount := func(v int) int {
		n := 0
		for _, ei := range adj[v] {
			if treeEdge[ei] && !covered[ei] {
				n++
			}
		}
		return n
	}
	remaining := 0
	for ei := range p.Edges {
		if treeEdge[ei] {
			remaining++
		}
	}

	var stars []star
	for remaining > 0 {
		best, bestCount := -1, 0
		for _, v := range vertexIDs {
			if c := uncoveredCount(v); c > bestCount {
				best, bestCount = v, c
			}
		}
		if best < 0 {
			break
		}
		st := star{center: best}
		for _, ei := range adj[best] {
			if len(st.edgeIdxs) >= maxStarDegree {
				break
			}
			if treeEdge[ei] && !covered[ei] {
				covered[ei] = true
				st.edgeIdxs = append(st.edgeIdxs, ei)
				remaining--
			}
		}
		st.vertices = starVertices(p, st)
		stars = append(stars, st)
	}

	// Isolated pattern vertices still contribute a degenerate star so the
	// candidate count of every variable enters the bound.
	inStar := make(map[int]bool)
	for _, st := range stars {
		for _, v := range st.vertices {
			inStar[v] = true
		}
	}
	for _, v := range vertexIDs {
		if !inStar[v] {
			stars = append(stars, star{center: v, vertices: []int{v}})
		}
	}

	return &decomposition{stars: stars, cycleEdges: cycleEdges}
}

func starVertices(p *models.Pattern, st star) []int {
	set := map[int]struct{}{st.center: {}}
	for _, ei := range st.edgeIdxs {
		set[p.Edges[ei].Src] = struct{}{}
		set[p.Edges[ei].Dst] = struct{}{}
	}
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// alternativePathLengths returns the lengths of simple paths between from
// and to in the pattern treated as undirected, ignoring the edge at
// skipEdge. shortestOnly stops at the BFS shortest path; otherwise all
// simple paths up to maxLen are enumerated.
func alternativePathLengths(p *models.Pattern, from, to, skipEdge, maxLen int, shortestOnly bool) []int {
	adj := p.Adjacency()
	for _, idxs := range adj {
		sort.Ints(idxs)
	}

	if shortestOnly {
		type item struct{ v, depth int }
		seen := map[int]bool{from: true}
		queue := []item{{from, 0}}
		for len(queue) > 0 {
			it := queue[0]
			queue = queue[1:]
			if it.depth >= maxLen {
				continue
			}
			for _, ei := range adj[it.v] {
				if ei == skipEdge {
					continue
				}
				e := p.Edges[ei]
				other := e.Dst
				if other == it.v {
					other = e.Src
				}
				if other == to {
					return []int{it.depth + 1}
				}
				if !seen[other] {
					seen[other] = true
					queue = append(queue, item{other, it.depth + 1})
				}
			}
		}
		return nil
	}

	var lengths []int
	onPath := map[int]bool{from: true}
	var dfs func(v, depth int)
	dfs = func(v, depth int) {
		if depth >= maxLen {
			return
		}
		for _, ei := range adj[v] {
			if ei == skipEdge {
				continue
			}
			e := p.Edges[ei]
			other := e.Dst
			if other == v {
				other = e.Src
			}
			if other == to {
				lengths = append(lengths, depth+1)
				continue
			}
			if !onPath[other] {
				onPath[other] = true
				dfs(other, depth+1)
				delete(onPath, other)
			}
		}
	}
	dfs(from, 0)
	sort.Ints(lengths)
	return lengths
}
