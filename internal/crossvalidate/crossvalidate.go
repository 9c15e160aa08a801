// Package crossvalidate implements consensus-across-sources checking (spec
// §4.4): the median of all numeric candidates, tolerance-based disagreement
// flagging, and an agreement-confidence score used to adjust (never
// overwrite) the primary reading's confidence.
package crossvalidate

import "sort"

// ToleranceKind selects which tolerance rule applies to a data source's
// values, per spec §4.4 ("10% relative for currency/count, 5 absolute basis
// points for percent").
type ToleranceKind int

const (
	ToleranceRelative10Pct ToleranceKind = iota
	ToleranceAbsoluteBps5
)

// Source is one candidate value, primary or secondary.
type Source struct {
	Name  string
	Value float64
}

// Result is crossValidate's output.
type Result struct {
	ConsensusValue      float64
	AgreementConfidence float64
	Disagreeing         []string
	Warning             string
}

// CrossValidate computes consensus across primary and secondaries. Zero
// secondaries returns the primary unchanged with AgreementConfidence=1.0
// and no effect (spec §4.4, §8).
func CrossValidate(primary Source, secondaries []Source, tolerance ToleranceKind) Result {
	if len(secondaries) == 0 {
		return Result{ConsensusValue: primary.Value, AgreementConfidence: 1.0}
	}

	all := make([]Source, 0, len(secondaries)+1)
	all = append(all, primary)
	all = append(all, secondaries...)

	median := medianOf(all)

	var disagreeing []string
	agreeing := 0
	for _, s := range all {
		if withinTolerance(s.Value, median, tolerance) {
			agreeing++
		} else {
			disagreeing = append(disagreeing, s.Name)
		}
	}

	agreementConfidence := float64(agreeing) / float64(len(all))

	result := Result{
		ConsensusValue:      primary.Value, // never silently overwritten by a secondary
		AgreementConfidence: agreementConfidence,
		Disagreeing:         disagreeing,
	}
	if agreementConfidence < 0.5 {
		result.Warning = "cross-source agreement below 0.5; overall confidence floored at 0.5"
	}
	return result
}

// ConfidenceFloor is what the runner applies to overall confidence when
// AgreementConfidence < 0.5 (spec §4.4).
const ConfidenceFloor = 0.5

func medianOf(sources []Source) float64 {
	values := make([]float64, len(sources))
	for i, s := range sources {
		values[i] = s.Value
	}
	sort.Float64s(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

func withinTolerance(value, median float64, kind ToleranceKind) bool {
	switch kind {
	case ToleranceAbsoluteBps5:
		diffBps := (value - median) * 10000
		if diffBps < 0 {
			diffBps = -diffBps
		}
		return diffBps <= 5
	default: // ToleranceRelative10Pct
		if median == 0 {
			return value == 0
		}
		rel := (value - median) / median
		if rel < 0 {
			rel = -rel
		}
		return rel <= 0.10
	}
}
