package grounding

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ppiankov/groundcheck/internal/model"
)

// ErrInsufficientSupport is returned by Gate when an artifact must not be published
var ErrInsufficientSupport = errors.New("insufficient_support")

// ReasonNoCitations is the single reason of an empty pass
const ReasonNoCitations = "WARNING: No citations available for grounding"

// Aggregator combines verified citations into a grounding summary.
//
// Policy, all taken from model.GroundingConfig:
//   - can_cite: at least one citation and verified/total >= MinVerifiedFraction
//   - confidence: mean citation confidence + min(BonusPerVerified*verified, MaxBonus), clamped to [0,1]
//   - can_publish: confidence >= PublishThreshold
type Aggregator struct {
	cfg model.GroundingConfig
}

// NewAggregator creates a new aggregator
func NewAggregator(cfg model.GroundingConfig) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// Aggregate computes the grounding summary of one pass.
// It must only be called once every citation of the pass has been verified.
func (a *Aggregator) Aggregate(citations []model.VerifiedCitation) model.GroundingSummary {
	if len(citations) == 0 {
		return model.GroundingSummary{
			Confidence:        0,
			ConfidenceReasons: []string{ReasonNoCitations},
			CanCite:           false,
			CanPublish:        false,
		}
	}

	summary := model.GroundingSummary{CitationCount: len(citations)}
	total := 0.0
	for _, c := range citations {
		total += c.Confidence
		if !c.Verified {
			continue
		}
		summary.VerifiedCount++
		switch c.MatchMethod {
		case model.MatchExact:
			summary.ExactMatches++
		case model.MatchFuzzy:
			summary.FuzzyMatches++
		}
	}

	mean := total / float64(len(citations))
	bonus := math.Min(a.cfg.BonusPerVerified*float64(summary.VerifiedCount), a.cfg.MaxBonus)
	summary.Confidence = round(clamp(mean + bonus))

	fraction := float64(summary.VerifiedCount) / float64(summary.CitationCount)
	summary.CanCite = fraction >= a.cfg.MinVerifiedFraction
	summary.CanPublish = summary.Confidence >= a.cfg.PublishThreshold

	summary.ConfidenceReasons = a.reasons(citations, summary)
	return summary
}

// reasons lists a count line, then every distinct warning, then distinct
// informational reasons up to MaxInfoReasons. First-seen order is kept in each group.
func (a *Aggregator) reasons(citations []model.VerifiedCitation, summary model.GroundingSummary) []string {
	reasons := []string{fmt.Sprintf("%d of %d citations verified (%d exact, %d fuzzy)",
		summary.VerifiedCount, summary.CitationCount, summary.ExactMatches, summary.FuzzyMatches)}

	seen := make(map[string]bool)
	var warnings, info []string
	for _, c := range citations {
		for _, r := range c.ConfidenceReasons {
			if seen[r] {
				continue
			}
			seen[r] = true
			if isWarning(r) {
				warnings = append(warnings, r)
			} else {
				info = append(info, r)
			}
		}
	}

	if a.cfg.MaxInfoReasons > 0 && len(info) > a.cfg.MaxInfoReasons {
		info = info[:a.cfg.MaxInfoReasons]
	}
	if !summary.CanCite {
		warnings = append(warnings, "WARNING: Too few citations verified to cite this analysis")
	}
	if !summary.CanPublish {
		warnings = append(warnings, fmt.Sprintf("WARNING: Confidence %.2f below publish threshold %.2f",
			summary.Confidence, a.cfg.PublishThreshold))
	}

	reasons = append(reasons, warnings...)
	return append(reasons, info...)
}

// Gate returns ErrInsufficientSupport when the summary fails the publish gate
func Gate(summary model.GroundingSummary) error {
	if !summary.CanPublish {
		return fmt.Errorf("%w: confidence %.2f, %d of %d citations verified",
			ErrInsufficientSupport, summary.Confidence, summary.VerifiedCount, summary.CitationCount)
	}
	return nil
}

func isWarning(reason string) bool {
	return strings.HasPrefix(reason, "WARNING:")
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

func round(v float64) float64 {
	return math.Round(v*10000) / 10000
}
