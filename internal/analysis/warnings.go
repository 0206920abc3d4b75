package analysis

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ppiankov/groundcheck/internal/model"
)

type riskCategory struct {
	name        string
	keywords    []*regexp.Regexp
	description string
}

func newRiskCategory(name, description string, keywords ...string) riskCategory {
	c := riskCategory{name: name, description: description}
	for _, kw := range keywords {
		c.keywords = append(c.keywords, wordPattern(kw))
	}
	return c
}

var riskCategories = []riskCategory{
	newRiskCategory("liability",
		"This clause may make you responsible for damages or losses. You could be held financially liable.",
		"liable", "liability", "responsible for damages", "indemnify", "hold harmless"),
	newRiskCategory("deadline",
		"This sets a time limit. Missing this deadline could have consequences.",
		"within", "days", "deadline", "expire", "no later than", "must be completed by"),
	newRiskCategory("penalty",
		"This describes fees or charges you may have to pay under certain conditions.",
		"penalty", "fine", "fee", "charge", "late fee", "forfeiture", "damages"),
	newRiskCategory("waiver",
		"This means you're giving up certain rights. Once waived, these rights may be hard to recover.",
		"waive", "waiver", "give up", "relinquish", "forfeit"),
	newRiskCategory("termination",
		"This describes how the agreement can be ended and what happens when it ends.",
		"terminate", "termination", "cancel", "cancellation", "end", "discontinue"),
	newRiskCategory("arbitration",
		"This may limit your ability to sue in court. Disputes may be resolved through arbitration instead.",
		"arbitration", "arbitrator", "binding arbitration", "waive right to sue"),
	newRiskCategory("class_action",
		"This may prevent you from joining class action lawsuits.",
		"class action", "collective action", "representative action"),
	newRiskCategory("confidentiality",
		"This requires you to keep certain information secret. Sharing it could have legal consequences.",
		"confidential", "non-disclosure", "secret", "proprietary"),
}

var (
	highRisk    = wordPattern("must", "shall", "required", "mandatory")
	lowRisk     = wordPattern("may", "can", "optional")
	employer    = wordPattern("employer", "company")
	bothParties = wordPattern("both parties", "each party")
)

// WarningSource flags risky clauses by keyword. Each keyword contributes its
// first matching sentence, quoted verbatim.
type WarningSource struct {
	limit int
}

// NewWarningSource creates a new warning source
func NewWarningSource(limit int) *WarningSource {
	if limit <= 0 {
		limit = 10
	}
	return &WarningSource{limit: limit}
}

func (s *WarningSource) Name() string     { return "risk_keywords" }
func (s *WarningSource) Artifact() string { return ArtifactWarnings }

// Candidates returns at most limit warnings, one per keyword per category.
// A sentence already quoted by an earlier keyword is not quoted again.
func (s *WarningSource) Candidates(ctx context.Context, doc *model.NormalizedDocument) ([]model.CandidateCitation, error) {
	sents := sentences(doc.Text)
	used := make(map[int]bool)

	var out []model.CandidateCitation
	for _, cat := range riskCategories {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, kw := range cat.keywords {
			for _, sent := range sents {
				if !kw.MatchString(sent.text) {
					continue
				}
				if used[sent.start] {
					break
				}
				used[sent.start] = true
				out = append(out, candidate(doc, ArtifactWarnings, warningClaim(cat, sent.text), sent.text, sent.start))
				break
			}
			if len(out) >= s.limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func warningClaim(cat riskCategory, sentence string) string {
	return fmt.Sprintf("%s (%s risk, affects %s): %s",
		strings.ReplaceAll(cat.name, "_", " "), riskLevel(sentence), whoAffected(sentence), cat.description)
}

func riskLevel(sentence string) string {
	switch {
	case highRisk.MatchString(sentence):
		return "high"
	case lowRisk.MatchString(sentence):
		return "low"
	}
	return "medium"
}

func whoAffected(sentence string) string {
	switch {
	case bothParties.MatchString(sentence):
		return "both parties"
	case employer.MatchString(sentence):
		return "employer"
	}
	return "you"
}
