package crossvalidate

import "testing"

func TestCrossValidateZeroSecondaries(t *testing.T) {
	result := CrossValidate(Source{Name: "primary", Value: 5.0}, nil, ToleranceRelative10Pct)
	if result.ConsensusValue != 5.0 || result.AgreementConfidence != 1.0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.Disagreeing) != 0 {
		t.Fatalf("expected no disagreement, got %v", result.Disagreeing)
	}
}

func TestCrossValidateAgreementWithinTolerance(t *testing.T) {
	primary := Source{Name: "sec_edgar", Value: 5.0}
	secondaries := []Source{
		{Name: "finra_trace", Value: 5.05},
		{Name: "capital_iq", Value: 4.95},
	}
	result := CrossValidate(primary, secondaries, ToleranceRelative10Pct)
	if result.ConsensusValue != 5.0 {
		t.Fatalf("expected primary value preserved, got %v", result.ConsensusValue)
	}
	if result.AgreementConfidence != 1.0 {
		t.Fatalf("expected full agreement, got %v", result.AgreementConfidence)
	}
	if len(result.Disagreeing) != 0 {
		t.Fatalf("expected no disagreement, got %v", result.Disagreeing)
	}
}

func TestCrossValidateDisagreementFloorsConfidence(t *testing.T) {
	primary := Source{Name: "sec_edgar", Value: 5.0}
	secondaries := []Source{
		{Name: "finra_trace", Value: 8.0},
		{Name: "capital_iq", Value: 9.0},
	}
	result := CrossValidate(primary, secondaries, ToleranceRelative10Pct)
	if result.ConsensusValue != 5.0 {
		t.Fatalf("primary value must never be silently overwritten, got %v", result.ConsensusValue)
	}
	want := 1.0 / 3.0
	if diff := result.AgreementConfidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected agreementConfidence ~= 0.33, got %v", result.AgreementConfidence)
	}
	if result.Warning == "" {
		t.Fatalf("expected a warning when agreement drops below 0.5")
	}
}

func TestCrossValidatePercentToleranceIsAbsoluteBasisPoints(t *testing.T) {
	primary := Source{Name: "primary", Value: 0.1000}
	// The agreeing source keeps the median at 0.1000, so "secondary" sits 6bps from it.
	secondaries := []Source{{Name: "agreeing", Value: 0.1000}, {Name: "secondary", Value: 0.1006}}
	result := CrossValidate(primary, secondaries, ToleranceAbsoluteBps5)
	if len(result.Disagreeing) != 1 {
		t.Fatalf("expected the secondary to disagree at 6bps with a 5bps tolerance")
	}
}
