package matching

import (
	"strconv"

	"github.com/garyjia/cost-reconciler/internal/domain/entity"
)

// PatternSet maps normalized invoice descriptions to the estimate line item a
// user last assigned them to. A nil *PatternSet is empty.
type PatternSet struct {
	targets map[string]int64
}

// NewPatternSet builds the patterns from the correction log. Corrections are
// expected oldest first so the latest one for a description wins. Patterns whose
// target is not among candidates are dropped. The second return value is the
// number of distinct patterns kept.
func NewPatternSet(corrections []*entity.MatchCorrection, candidates []*entity.EstimateLineItem) (*PatternSet, int) {
	ids := make(map[int64]struct{}, len(candidates))
	for _, c := range candidates {
		ids[c.ID] = struct{}{}
	}

	targets := make(map[string]int64)
	for _, c := range corrections {
		if c.OriginalField != entity.CorrectionFieldDescription {
			continue
		}
		key := NormalizeDescription(c.OriginalValue)
		if key == "" {
			continue
		}
		id, err := strconv.ParseInt(c.CorrectedValue, 10, 64)
		if err != nil {
			continue
		}
		targets[key] = id
	}

	for key, id := range targets {
		if _, ok := ids[id]; !ok {
			delete(targets, key)
		}
	}

	return &PatternSet{targets: targets}, len(targets)
}

// Target returns the estimate line item id learned for description, if any
func (p *PatternSet) Target(description string) (int64, bool) {
	if p == nil || len(p.targets) == 0 {
		return 0, false
	}
	id, ok := p.targets[NormalizeDescription(description)]
	return id, ok
}
