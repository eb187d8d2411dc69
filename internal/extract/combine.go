package extract

import "github.com/atelierlabs/nameplate-cli/internal/model"

// Combine merges candidate results field by field, keeping per field the
// non-empty value with the highest confidence. On ties the earlier candidate
// wins, so callers order candidates by trust. A value whose confidence is
// absent or zero is still adopted when no competitor offers the field.
// Combining zero candidates yields an empty result.
func Combine(candidates []model.ExtractionResult) model.ExtractionResult {
	combined := model.ExtractionResult{
		ConfidenceScores: make(map[model.Field]float64),
	}
	for _, f := range model.Fields {
		bestIdx := -1
		bestScore := 0.0
		for i := range candidates {
			if candidates[i].FieldValue(f) == "" {
				continue
			}
			score, _ := candidates[i].Score(f)
			if bestIdx == -1 || score > bestScore {
				bestIdx = i
				bestScore = score
			}
		}
		if bestIdx >= 0 {
			combined.SetField(f, candidates[bestIdx].FieldValue(f))
			combined.ConfidenceScores[f] = bestScore
		}
	}
	return combined
}
