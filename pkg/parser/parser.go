package parser

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/P40-traveler/pathce/pkg/models"
)

// LoadGraph reads a labeled directed graph from two text files. The vertex
// file holds one "id label" pair per line with dense, zero-based ids in
// ascending order; the edge file holds "src dst type" triples. Lines that
// are empty or start with '#' are skipped.
func LoadGraph(vertexPath, edgePath string) (*models.Graph, error) {
	builder := models.NewGraphBuilder()

	vf, err := os.Open(vertexPath)
	if err != nil {
		return nil, fmt.Errorf("could not open vertex file %s: %w", vertexPath, err)
	}
	defer vf.Close()

	next := int64(0)
	scanner := bufio.NewScanner(vf)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			return nil, fmt.Errorf("malformed vertex line %q in %s", line, vertexPath)
		}
		id, err := strconv.ParseInt(parts[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vertex id %q in %s", parts[0], vertexPath)
		}
		if id != next {
			return nil, fmt.Errorf("vertex ids must be dense and ascending, got %d after %d", id, next-1)
		}
		builder.AddVertex(parts[1])
		next++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading vertex file: %w", err)
	}

	ef, err := os.Open(edgePath)
	if err != nil {
		return nil, fmt.Errorf("could not open edge file %s: %w", edgePath, err)
	}
	defer ef.Close()

	scanner = bufio.NewScanner(ef)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 3 {
			return nil, fmt.Errorf("malformed edge line %q in %s", line, edgePath)
		}
		src, err1 := strconv.ParseInt(parts[0], 10, 32)
		dst, err2 := strconv.ParseInt(parts[1], 10, 32)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("invalid edge endpoints in line %q", line)
		}
		if err := builder.AddEdge(int32(src), int32(dst), parts[2]); err != nil {
			return nil, fmt.Errorf("edge line %q: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading edge file: %w", err)
	}

	return builder.Finalize(), nil
}

// LoadPattern reads a query pattern from a JSON file.
func LoadPattern(path string) (*models.Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read pattern file %s: %w", path, err)
	}
	var p models.Pattern
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("could not parse pattern JSON %s: %w", path, err)
	}
	if len(p.Vertices) == 0 {
		return nil, models.Validationf("pattern file %s contains no vertices", path)
	}
	return &p, nil
}
