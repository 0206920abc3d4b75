package analysis

import (
	"context"
	"regexp"

	"github.com/ppiankov/groundcheck/internal/model"
)

type questionTrigger struct {
	pattern  *regexp.Regexp
	question string
}

// Questions without a triggering clause cannot be cited, so only
// content-triggered questions are produced.
var questionTriggers = []questionTrigger{
	{wordPattern("arbitration", "arbitrator"), "Am I giving up my right to sue in court by agreeing to arbitration?"},
	{wordPattern("non-compete", "non-solicitation", "noncompete"), "How long and how broadly does this non-compete clause restrict me?"},
	{wordPattern("automatically renew", "automatically renews", "auto-renew", "automatic renewal"), "How do I stop this agreement from renewing automatically?"},
	{wordPattern("penalty", "late fee", "forfeiture"), "What fees or penalties could I be charged, and when?"},
	{wordPattern("terminate", "termination"), "Under what conditions can this agreement be terminated?"},
	{wordPattern("indemnify", "hold harmless"), "What losses could I be required to cover for the other party?"},
	{wordPattern("confidential", "non-disclosure"), "What information must I keep confidential, and for how long?"},
	{wordPattern("waive", "waiver", "relinquish"), "What rights am I giving up by signing this?"},
}

// QuestionSource asks the questions a professional reviewer would raise,
// each quoting the first sentence that triggered it.
type QuestionSource struct {
	limit int
}

// NewQuestionSource creates a new question source
func NewQuestionSource(limit int) *QuestionSource {
	if limit <= 0 {
		limit = 8
	}
	return &QuestionSource{limit: limit}
}

func (s *QuestionSource) Name() string     { return "question_triggers" }
func (s *QuestionSource) Artifact() string { return ArtifactQuestions }

// Candidates returns at most limit questions in trigger order
func (s *QuestionSource) Candidates(ctx context.Context, doc *model.NormalizedDocument) ([]model.CandidateCitation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sents := sentences(doc.Text)

	var out []model.CandidateCitation
	for _, trigger := range questionTriggers {
		for _, sent := range sents {
			if trigger.pattern.MatchString(sent.text) {
				out = append(out, candidate(doc, ArtifactQuestions, trigger.question, sent.text, sent.start))
				break
			}
		}
		if len(out) >= s.limit {
			break
		}
	}
	return out, nil
}
