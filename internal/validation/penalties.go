package validation

import (
	"reflect"

	"github.com/turphai/boomwatch/internal/adapter"
)

// DetectQualityPenalties runs the generic, domain-agnostic quality checks
// spec §4.3 step 3 describes (null-heavy fields, suspicious zeros,
// duplicate-looking substructures) over a RawReading, independent of any
// one adapter's parsing logic. Adapter-specific quality signals can still be
// passed alongside these via the caller.
func DetectQualityPenalties(reading adapter.RawReading, schema adapter.Schema) []QualityPenalty {
	var penalties []QualityPenalty

	nullCount := 0
	for _, v := range reading.Metadata {
		if v == nil {
			nullCount++
		}
	}
	if len(reading.Metadata) > 0 && float64(nullCount)/float64(len(reading.Metadata)) > 0.5 {
		penalties = append(penalties, QualityPenalty{Reason: "null-heavy metadata", Amount: 0.1})
	}

	for _, f := range schema.Fields {
		if !f.Required {
			continue
		}
		if v, ok := fieldValue(reading, f.Name); ok && v == 0 {
			penalties = append(penalties, QualityPenalty{Reason: "suspicious zero in required field " + f.Name, Amount: 0.1})
		}
	}

	if dup := hasDuplicateSubstructures(reading.Composite); dup {
		penalties = append(penalties, QualityPenalty{Reason: "duplicate-looking composite substructures", Amount: 0.1})
	}

	return penalties
}

// hasDuplicateSubstructures reports whether two or more nested map values
// within composite are structurally identical — a common symptom of a
// parser that repeated a fragment instead of extracting distinct fields.
func hasDuplicateSubstructures(composite map[string]any) bool {
	var subMaps []map[string]any
	for _, v := range composite {
		if sub, ok := v.(map[string]any); ok {
			subMaps = append(subMaps, sub)
		}
	}
	for i := 0; i < len(subMaps); i++ {
		for j := i + 1; j < len(subMaps); j++ {
			if reflect.DeepEqual(subMaps[i], subMaps[j]) {
				return true
			}
		}
	}
	return false
}
