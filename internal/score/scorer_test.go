package score

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/groundcheck/internal/model"
)

const leaseText = "Tenant shall pay rent on the 1st of each month."

func newTestScorer() *Scorer {
	return NewScorer(model.DefaultConfig().Scoring)
}

func exactMatch(relocated bool) model.MatchResult {
	return model.MatchResult{
		Method:     model.MatchExact,
		Span:       &model.Span{Start: 0, End: 47},
		Similarity: 1.0,
		Relocated:  relocated,
	}
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScorer_ExactAtClaimedPosition(t *testing.T) {
	scorer := newTestScorer()
	claim := model.CandidateCitation{
		QuoteText:    leaseText,
		ClaimedStart: model.IntPtr(0),
		ClaimedEnd:   model.IntPtr(48),
	}

	confidence, reasons := scorer.Score(exactMatch(false), claim, 1.0)

	// (0.4 + 0.2) * 1.0 + 0.1 length bonus
	if !approxEqual(confidence, 0.7) {
		t.Errorf("Expected confidence 0.7, got %v", confidence)
	}

	want := []string{ReasonVerified, ReasonExactAtClaimed, ReasonHighReliability, ReasonAdequateLength}
	if diff := cmp.Diff(want, reasons); diff != "" {
		t.Errorf("reasons mismatch (-want +got):\n%s", diff)
	}
}

func TestScorer_ExactAtClaimedPositionWithMetadata(t *testing.T) {
	scorer := newTestScorer()
	claim := model.CandidateCitation{
		QuoteText:    leaseText,
		ClaimedStart: model.IntPtr(0),
		Section:      "Rent",
		Page:         model.IntPtr(1),
	}

	confidence, reasons := scorer.Score(exactMatch(false), claim, 1.0)
	if !approxEqual(confidence, 0.9) {
		t.Errorf("Expected confidence 0.9, got %v", confidence)
	}

	want := []string{ReasonVerified, ReasonExactAtClaimed, ReasonHighReliability, ReasonSection, ReasonPage, ReasonAdequateLength}
	if diff := cmp.Diff(want, reasons); diff != "" {
		t.Errorf("reasons mismatch (-want +got):\n%s", diff)
	}
}

func TestScorer_ExactRelocated(t *testing.T) {
	scorer := newTestScorer()
	claim := model.CandidateCitation{
		QuoteText:    leaseText,
		ClaimedStart: model.IntPtr(100),
		ClaimedEnd:   model.IntPtr(148),
	}

	confidence, reasons := scorer.Score(exactMatch(true), claim, 1.0)
	if !approxEqual(confidence, 0.7) {
		t.Errorf("Expected confidence identical to claimed-position match, got %v", confidence)
	}
	if reasons[1] != ReasonExactRelocated {
		t.Errorf("Expected corrected-position reason, got %q", reasons[1])
	}
}

func TestScorer_FuzzyPDF(t *testing.T) {
	scorer := newTestScorer()
	claim := model.CandidateCitation{QuoteText: "Tenant will pay rent on the 1st of every month"}
	match := model.MatchResult{
		Method:     model.MatchFuzzy,
		Span:       &model.Span{Start: 0, End: 46},
		Similarity: 80.0 / 92.0,
	}

	confidence, reasons := scorer.Score(match, claim, 0.75)

	// (0.4 + 0.1) * 0.75 + 0.1 length bonus
	if !approxEqual(confidence, 0.475) {
		t.Errorf("Expected confidence 0.475, got %v", confidence)
	}

	want := []string{ReasonVerified, "Fuzzy match found (~87% similarity)", ReasonModerateReliable, ReasonAdequateLength}
	if diff := cmp.Diff(want, reasons); diff != "" {
		t.Errorf("reasons mismatch (-want +got):\n%s", diff)
	}
}

func TestScorer_NoMatchClampsToZero(t *testing.T) {
	scorer := newTestScorer()
	claim := model.CandidateCitation{QuoteText: "Landlord shall provide 90 days notice"}

	confidence, reasons := scorer.Score(model.NoMatch(), claim, 1.0)
	if confidence != 0 {
		t.Errorf("Expected confidence 0, got %v", confidence)
	}

	want := []string{ReasonUnverified, ReasonNoMatch, ReasonHighReliability, ReasonAdequateLength}
	if diff := cmp.Diff(want, reasons); diff != "" {
		t.Errorf("reasons mismatch (-want +got):\n%s", diff)
	}

	b := scorer.Explain(model.NoMatch(), claim, 1.0)
	if b.Scaled >= 0 {
		t.Errorf("Expected negative scaled score before clamping, got %v", b.Scaled)
	}
}

func TestScorer_ReliabilityTiers(t *testing.T) {
	scorer := newTestScorer()
	claim := model.CandidateCitation{QuoteText: "short"}

	tests := []struct {
		weight float64
		reason string
	}{
		{1.0, ReasonHighReliability},
		{0.95, ReasonHighReliability},
		{0.9, ReasonHighReliability},
		{0.75, ReasonModerateReliable},
		{0.6, ReasonModerateReliable},
		{0.5, ReasonLowReliability},
		{0.0, ReasonLowReliability},
	}

	for _, tt := range tests {
		_, reasons := scorer.Score(exactMatch(false), claim, tt.weight)
		if reasons[2] != tt.reason {
			t.Errorf("weight %v: expected %q, got %q", tt.weight, tt.reason, reasons[2])
		}
	}
}

func TestScorer_Monotonicity(t *testing.T) {
	scorer := newTestScorer()
	fuzzy := model.MatchResult{Method: model.MatchFuzzy, Span: &model.Span{Start: 0, End: 10}, Similarity: 0.9}

	for _, weight := range []float64{1.0, 0.95, 0.9, 0.75, 0.5, 0.1} {
		for _, claim := range []model.CandidateCitation{
			{QuoteText: "tiny", ClaimedStart: model.IntPtr(0)},
			{QuoteText: leaseText, ClaimedStart: model.IntPtr(0), Section: "Rent", Page: model.IntPtr(2)},
		} {
			atClaimed, _ := scorer.Score(exactMatch(false), claim, weight)
			elsewhere, _ := scorer.Score(exactMatch(true), claim, weight)
			fuzzyScore, _ := scorer.Score(fuzzy, claim, weight)
			none, _ := scorer.Score(model.NoMatch(), claim, weight)

			if !(atClaimed >= elsewhere && elsewhere >= fuzzyScore && fuzzyScore >= none) {
				t.Errorf("weight %v: ordering violated: %v %v %v %v", weight, atClaimed, elsewhere, fuzzyScore, none)
			}
		}
	}
}

func TestScorer_Bounds(t *testing.T) {
	scorer := newTestScorer()
	claims := []model.CandidateCitation{
		{},
		{QuoteText: "契約"},
		{QuoteText: leaseText, Section: "s", Page: model.IntPtr(9)},
	}
	matches := []model.MatchResult{exactMatch(false), model.NoMatch(), {Method: model.MatchMethod("bogus")}}
	weights := []float64{-1, 0, 0.5, 1, 7, math.NaN(), math.Inf(1)}

	for _, c := range claims {
		for _, m := range matches {
			for _, w := range weights {
				confidence, _ := scorer.Score(m, c, w)
				if confidence < 0 || confidence > 1 || math.IsNaN(confidence) {
					t.Errorf("confidence %v out of bounds for weight %v", confidence, w)
				}
			}
		}
	}
}

func TestScorer_Deterministic(t *testing.T) {
	scorer := newTestScorer()
	claim := model.CandidateCitation{QuoteText: leaseText, Section: "Rent"}
	match := model.MatchResult{Method: model.MatchFuzzy, Span: &model.Span{Start: 1, End: 40}, Similarity: 0.8712}

	c1, r1 := scorer.Score(match, claim, 0.9)
	for i := 0; i < 10; i++ {
		c2, r2 := scorer.Score(match, claim, 0.9)
		if c1 != c2 || !cmp.Equal(r1, r2) {
			t.Fatalf("non-deterministic result: %v %v vs %v %v", c1, r1, c2, r2)
		}
	}
}

func TestScorer_Malformed(t *testing.T) {
	scorer := newTestScorer()
	claim := model.CandidateCitation{
		QuoteText:    "the tenant",
		ClaimedStart: model.IntPtr(9),
		ClaimedEnd:   model.IntPtr(2),
		Section:      "Rent",
		Page:         model.IntPtr(1),
	}
	cause := errors.New("end offset 2 before start offset 9")

	confidence, reasons := scorer.ScoreMalformed(claim, 0.5, cause)
	if confidence != 0 {
		t.Errorf("Expected minimum confidence for malformed input, got %v", confidence)
	}

	want := []string{
		ReasonUnverified,
		ReasonNoMatch,
		"WARNING: Malformed citation input: end offset 2 before start offset 9",
		ReasonLowReliability,
		ReasonSection,
		ReasonPage,
		ReasonAdequateLength,
	}
	if diff := cmp.Diff(want, reasons); diff != "" {
		t.Errorf("reasons mismatch (-want +got):\n%s", diff)
	}
}

func TestExplain_SignalsCarryFormula(t *testing.T) {
	scorer := newTestScorer()
	b := scorer.Explain(exactMatch(false), model.CandidateCitation{QuoteText: leaseText, ClaimedStart: model.IntPtr(0)}, 0.95)

	var found bool
	for _, s := range b.Signals {
		if s.Type == model.SignalReliability {
			found = true
			if s.Data["formula"] != "base * parser_weight" {
				t.Errorf("Expected formula in reliability signal data, got %v", s.Data["formula"])
			}
		}
	}
	if !found {
		t.Error("Expected a reliability signal")
	}
	if !approxEqual(b.Scaled, 0.57) {
		t.Errorf("Expected scaled 0.57, got %v", b.Scaled)
	}
}
