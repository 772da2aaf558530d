package validation

import (
	"github.com/P40-traveler/pathce/pkg/models"
	"github.com/P40-traveler/pathce/pkg/summary"
)

// ValidatePattern checks a pattern for structural soundness and resolves it
// against the summary schema. Any violation is a models.ValidationError;
// validation failures are fatal and never retried.
func ValidatePattern(p *models.Pattern, s *summary.Summary) error {
	if p == nil || len(p.Vertices) == 0 {
		return models.Validationf("pattern has no vertices")
	}

	ids := make(map[int]struct{}, len(p.Vertices))
	for _, v := range p.Vertices {
		if _, dup := ids[v.ID]; dup {
			return models.Validationf("duplicate pattern vertex id %d", v.ID)
		}
		ids[v.ID] = struct{}{}
		if v.Label == "" {
			return models.Validationf("pattern vertex %d has no label", v.ID)
		}
		if _, ok := s.LabelID(v.Label); !ok {
			return models.Validationf("pattern vertex %d references label %q absent from summary schema", v.ID, v.Label)
		}
	}

	for i, e := range p.Edges {
		if _, ok := ids[e.Src]; !ok {
			return models.Validationf("pattern edge %d references unknown vertex %d", i, e.Src)
		}
		if _, ok := ids[e.Dst]; !ok {
			return models.Validationf("pattern edge %d references unknown vertex %d", i, e.Dst)
		}
		if e.Type == "" {
			return models.Validationf("pattern edge %d has no type", i)
		}
		if _, ok := s.TypeID(e.Type); !ok {
			return models.Validationf("pattern edge %d references edge type %q absent from summary schema", i, e.Type)
		}
	}

	if p.ExpectedCount != nil && *p.ExpectedCount < 0 {
		return models.Validationf("expected count must be non-negative, got %g", *p.ExpectedCount)
	}
	return nil
}
