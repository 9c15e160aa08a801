// Package validation implements the Data Validator (spec §4.3): schema
// check, sanity check, quality-warning penalties, anomaly scoring against
// history, and the checksum stamp, in that order with short-circuit on hard
// failure.
package validation

import (
	"fmt"
	"math"

	playvalidator "github.com/go-playground/validator/v10"

	"github.com/turphai/boomwatch/internal/adapter"
	"github.com/turphai/boomwatch/internal/domain"
)

const (
	defaultHistoryWindow = 30
	anomalyHardThreshold = 0.8
)

// Validator runs the five-step check spec §4.3 describes.
type Validator struct {
	playgroundValidate *playvalidator.Validate
	historyWindow      int
}

func New() *Validator {
	return &Validator{
		playgroundValidate: playvalidator.New(),
		historyWindow:      defaultHistoryWindow,
	}
}

// QualityPenalty is a named confidence deduction applied during step 3. Each
// penalty is in [0, 0.2] per spec §4.3.
type QualityPenalty struct {
	Reason string
	Amount float64
}

// Validate runs the full check. history is the last N known-good values for
// this (dataSource, metricName), oldest first; penalties are the adapter- or
// caller-supplied quality-warning deductions already identified for this
// reading (null-heavy fields, suspicious zeros, duplicate substructures).
func (v *Validator) Validate(reading adapter.RawReading, schema adapter.Schema, history []float64, penalties []QualityPenalty) domain.ValidationReport {
	report := domain.ValidationReport{Valid: true, Confidence: 1.0}

	// Step 1: schema.
	if errs := v.checkSchema(reading, schema); len(errs) > 0 {
		report.Valid = false
		report.Errors = append(report.Errors, errs...)
		return report
	}

	// Step 2: sanity.
	if errs := checkSanity(reading, schema); len(errs) > 0 {
		report.Valid = false
		report.Errors = append(report.Errors, errs...)
		return report
	}

	// Step 3: quality warnings, confidence penalties.
	for _, p := range penalties {
		amount := p.Amount
		if amount < 0 {
			amount = 0
		}
		if amount > 0.2 {
			amount = 0.2
		}
		report.Confidence -= amount
		report.Warnings = append(report.Warnings, fmt.Sprintf("quality: %s (-%.2f confidence)", p.Reason, amount))
	}
	if report.Confidence < 0 {
		report.Confidence = 0
	}

	// Step 4: anomaly.
	anomalyScore := v.anomalyScore(reading.Value, history)
	report.AnomalyScore = anomalyScore
	if anomalyScore > anomalyHardThreshold {
		report.Warnings = append(report.Warnings, fmt.Sprintf("anomaly: score %.2f exceeds threshold", anomalyScore))
		report.Confidence *= (1 - anomalyScore)
	}
	if report.Confidence < 0 {
		report.Confidence = 0
	}
	if report.Confidence > 1 {
		report.Confidence = 1
	}

	// Step 5: checksum.
	checksum, err := domain.Checksum(domain.ChecksumPayload{
		Value:     reading.Value,
		Composite: reading.Composite,
		Metadata:  reading.Metadata,
	})
	if err != nil {
		report.Valid = false
		report.Errors = append(report.Errors, fmt.Sprintf("checksum: %v", err))
		return report
	}
	report.Checksum = checksum

	return report
}

func (v *Validator) checkSchema(reading adapter.RawReading, schema adapter.Schema) []string {
	var errs []string

	if schema.CompositeCardinality > 0 && len(reading.Composite) != schema.CompositeCardinality {
		errs = append(errs, fmt.Sprintf("composite cardinality mismatch: want %d got %d", schema.CompositeCardinality, len(reading.Composite)))
	}

	for _, f := range schema.Fields {
		raw, present := fieldValue(reading, f.Name)
		if f.Required && !present {
			errs = append(errs, fmt.Sprintf("required field %q missing", f.Name))
			continue
		}
		if !present || !f.HasRange {
			continue
		}
		tag := fmt.Sprintf("min=%g,max=%g", f.Min, f.Max)
		if err := v.playgroundValidate.Var(raw, tag); err != nil {
			errs = append(errs, fmt.Sprintf("field %q out of range [%g,%g]: got %v", f.Name, f.Min, f.Max, raw))
		}
	}
	return errs
}

func fieldValue(reading adapter.RawReading, name string) (float64, bool) {
	if name == "value" {
		return reading.Value, true
	}
	if reading.Composite != nil {
		if v, ok := reading.Composite[name]; ok {
			f, ok := toFloat(v)
			return f, ok
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func checkSanity(reading adapter.RawReading, schema adapter.Schema) []string {
	var errs []string
	if math.IsNaN(reading.Value) || math.IsInf(reading.Value, 0) {
		errs = append(errs, "value is NaN or infinite")
	}
	for _, f := range schema.Fields {
		if v, ok := fieldValue(reading, f.Name); ok {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				errs = append(errs, fmt.Sprintf("field %q is NaN or infinite", f.Name))
			}
		}
	}
	return errs
}

// anomalyScore computes |z|/6 clamped to [0,1] against the last
// historyWindow values, per spec §4.3's edge policy: empty history scores 0;
// fewer than 5 points uses the sample std if >=2 points, else skips (scores
// 0).
func (v *Validator) anomalyScore(value float64, history []float64) float64 {
	if len(history) == 0 {
		return 0
	}
	window := history
	if len(window) > v.historyWindow {
		window = window[len(window)-v.historyWindow:]
	}
	if len(window) < 5 && len(window) < 2 {
		return 0
	}

	mean := average(window)
	std := stddev(window, mean)
	if std == 0 {
		return 0
	}
	z := (value - mean) / std
	score := math.Abs(z) / 6
	return clamp01(score)
}

func average(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64, mean float64) float64 {
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	// sample standard deviation (n-1 denominator), matching "sample std" in spec §4.3.
	n := len(xs)
	if n < 2 {
		return 0
	}
	return math.Sqrt(sumSq / float64(n-1))
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
