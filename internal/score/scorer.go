package score

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/groundcheck/internal/model"
)

// Formula constants. Changing any of these changes every stored confidence.
const (
	verifiedDelta   = 0.4
	unverifiedDelta = -0.3
	exactDelta      = 0.2
	fuzzyDelta      = 0.1
	noMatchDelta    = -0.2
	metadataDelta   = 0.1

	highReliability     = 0.9
	moderateReliability = 0.6
)

// Reason strings shared with tests and the aggregator
const (
	ReasonVerified          = "Citation verified in source text"
	ReasonUnverified        = "WARNING: Citation could not be verified"
	ReasonExactAtClaimed    = "Exact match found at claimed position"
	ReasonExactInDocument   = "Exact match found in document"
	ReasonExactRelocated    = "Exact match found in document (claimed position corrected)"
	ReasonNoMatch           = "WARNING: No textual match found"
	ReasonHighReliability   = "High parser reliability"
	ReasonModerateReliable  = "WARNING: Moderate parser reliability"
	ReasonLowReliability    = "WARNING: Low parser reliability"
	ReasonSection           = "Section heading available"
	ReasonPage              = "Page number available"
	ReasonAdequateLength    = "Adequate citation length"
	reasonMalformedTemplate = "WARNING: Malformed citation input: %s"
)

// Scorer calculates citation confidence and generates signals
type Scorer struct {
	minQuoteLength int
}

// NewScorer creates a new scorer
func NewScorer(cfg model.ScoringConfig) *Scorer {
	minLen := cfg.MinQuoteLength
	if minLen <= 0 {
		minLen = 10
	}
	return &Scorer{minQuoteLength: minLen}
}

// Breakdown is the transparent computation behind one confidence value
type Breakdown struct {
	Confidence    float64        `json:"confidence"`
	Base          float64        `json:"base"`
	ParserWeight  float64        `json:"parser_weight"`
	Scaled        float64        `json:"scaled"`
	MetadataBonus float64        `json:"metadata_bonus"`
	Signals       []model.Signal `json:"signals"`
}

// Reasons returns the signal descriptions in order
func (b Breakdown) Reasons() []string {
	reasons := make([]string, len(b.Signals))
	for i, s := range b.Signals {
		reasons[i] = s.Description
	}
	return reasons
}

// Score computes the confidence and ordered reasons for one match.
// Reasons are ordered verification, match method, reliability, metadata.
func (s *Scorer) Score(match model.MatchResult, claim model.CandidateCitation, parserWeight float64) (float64, []string) {
	b := s.Explain(match, claim, parserWeight)
	return b.Confidence, b.Reasons()
}

// Explain computes the score and returns every step as a signal
func (s *Scorer) Explain(match model.MatchResult, claim model.CandidateCitation, parserWeight float64) Breakdown {
	if math.IsNaN(parserWeight) || math.IsInf(parserWeight, 0) || parserWeight < 0 {
		parserWeight = model.DefaultParserWeights()[model.FormatUnknown]
	}

	var signals []model.Signal
	base := 0.0

	// 1. Verification
	found := match.Method == model.MatchExact || match.Method == model.MatchFuzzy
	if found {
		base += verifiedDelta
		signals = append(signals, model.Signal{
			Type:        model.SignalVerification,
			Severity:    model.SeverityInfo,
			Description: ReasonVerified,
			Delta:       verifiedDelta,
		})
	} else {
		base += unverifiedDelta
		signals = append(signals, model.Signal{
			Type:        model.SignalVerification,
			Severity:    model.SeverityWarning,
			Description: ReasonUnverified,
			Delta:       unverifiedDelta,
		})
	}

	// 2. Match method
	switch match.Method {
	case model.MatchExact:
		base += exactDelta
		signals = append(signals, model.Signal{
			Type:        model.SignalMatchMethod,
			Severity:    model.SeverityInfo,
			Description: exactReason(match, claim),
			Delta:       exactDelta,
			Data:        spanData(match),
		})
	case model.MatchFuzzy:
		base += fuzzyDelta
		data := spanData(match)
		data["similarity"] = match.Similarity
		signals = append(signals, model.Signal{
			Type:        model.SignalMatchMethod,
			Severity:    model.SeverityInfo,
			Description: fmt.Sprintf("Fuzzy match found (~%.0f%% similarity)", match.Similarity*100),
			Delta:       fuzzyDelta,
			Data:        data,
		})
	default:
		base += noMatchDelta
		signals = append(signals, model.Signal{
			Type:        model.SignalMatchMethod,
			Severity:    model.SeverityWarning,
			Description: ReasonNoMatch,
			Delta:       noMatchDelta,
		})
	}

	// 3. Parser reliability
	scaled := base * parserWeight
	signals = append(signals, reliabilitySignal(parserWeight, base, scaled))

	// 4. Metadata
	bonus := 0.0
	if strings.TrimSpace(claim.Section) != "" {
		bonus += metadataDelta
		signals = append(signals, model.Signal{
			Type:        model.SignalSection,
			Severity:    model.SeverityInfo,
			Description: ReasonSection,
			Delta:       metadataDelta,
		})
	}
	if claim.Page != nil {
		bonus += metadataDelta
		signals = append(signals, model.Signal{
			Type:        model.SignalPage,
			Severity:    model.SeverityInfo,
			Description: ReasonPage,
			Delta:       metadataDelta,
		})
	}
	quoteLen := utf8.RuneCountInString(strings.TrimSpace(claim.QuoteText))
	if quoteLen >= s.minQuoteLength {
		bonus += metadataDelta
		signals = append(signals, model.Signal{
			Type:        model.SignalQuoteLength,
			Severity:    model.SeverityInfo,
			Description: ReasonAdequateLength,
			Delta:       metadataDelta,
			Data: map[string]any{
				"length":  quoteLen,
				"minimum": s.minQuoteLength,
			},
		})
	}

	return Breakdown{
		Confidence:    round(clamp(scaled + bonus)),
		Base:          round(base),
		ParserWeight:  parserWeight,
		Scaled:        round(scaled),
		MetadataBonus: round(bonus),
		Signals:       signals,
	}
}

// ExplainMalformed scores a candidate that could not be matched.
// The result is a none match pinned to zero confidence, with the cause after the match reason.
func (s *Scorer) ExplainMalformed(claim model.CandidateCitation, parserWeight float64, cause error) Breakdown {
	b := s.Explain(model.NoMatch(), claim, parserWeight)

	detail := "invalid candidate"
	if cause != nil {
		detail = cause.Error()
	}
	malformed := model.Signal{
		Type:        model.SignalMalformed,
		Severity:    model.SeverityCritical,
		Description: fmt.Sprintf(reasonMalformedTemplate, detail),
	}

	signals := make([]model.Signal, 0, len(b.Signals)+1)
	signals = append(signals, b.Signals[:2]...)
	signals = append(signals, malformed)
	signals = append(signals, b.Signals[2:]...)
	b.Signals = signals
	b.Confidence = 0
	return b
}

// ScoreMalformed is ExplainMalformed reduced to confidence and reasons
func (s *Scorer) ScoreMalformed(claim model.CandidateCitation, parserWeight float64, cause error) (float64, []string) {
	b := s.ExplainMalformed(claim, parserWeight, cause)
	return b.Confidence, b.Reasons()
}

func exactReason(match model.MatchResult, claim model.CandidateCitation) string {
	switch {
	case match.Relocated:
		return ReasonExactRelocated
	case claim.ClaimedStart == nil:
		return ReasonExactInDocument
	default:
		return ReasonExactAtClaimed
	}
}

func spanData(match model.MatchResult) map[string]any {
	data := make(map[string]any)
	if match.Span != nil {
		data["char_start"] = match.Span.Start
		data["char_end"] = match.Span.End
	}
	return data
}

func reliabilitySignal(weight, base, scaled float64) model.Signal {
	signal := model.Signal{
		Type:  model.SignalReliability,
		Delta: round(scaled - base),
		Data: map[string]any{
			"parser_weight": weight,
			"base":          round(base),
			"scaled":        round(scaled),
			"formula":       "base * parser_weight",
		},
	}

	switch {
	case weight >= highReliability:
		signal.Severity = model.SeverityInfo
		signal.Description = ReasonHighReliability
	case weight >= moderateReliability:
		signal.Severity = model.SeverityWarning
		signal.Description = ReasonModerateReliable
	default:
		signal.Severity = model.SeverityWarning
		signal.Description = ReasonLowReliability
	}
	return signal
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// round trims float noise so identical inputs serialize identically
func round(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// IsWarning reports whether a reason is a warning
func IsWarning(reason string) bool {
	return strings.HasPrefix(reason, "WARNING:")
}
