package analysis

import (
	"context"
	"unicode"

	"github.com/ppiankov/groundcheck/internal/model"
)

// OutlineSource cites the opening of every section for the summary.
// Documents without sections get one overview citation.
type OutlineSource struct {
	maxLength int
}

// NewOutlineSource creates a new outline source
func NewOutlineSource(maxLength int) *OutlineSource {
	if maxLength <= 0 {
		maxLength = 500
	}
	return &OutlineSource{maxLength: maxLength}
}

func (s *OutlineSource) Name() string     { return "outline" }
func (s *OutlineSource) Artifact() string { return ArtifactSummary }

// Candidates returns at most one citation per section
func (s *OutlineSource) Candidates(ctx context.Context, doc *model.NormalizedDocument) ([]model.CandidateCitation, error) {
	runes := []rune(doc.Text)

	if len(doc.Sections) == 0 {
		if c, ok := s.excerpt(doc, runes, "Overview", 0, len(runes)); ok {
			return []model.CandidateCitation{c}, nil
		}
		return nil, nil
	}

	var out []model.CandidateCitation
	for _, sec := range doc.Sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c, ok := s.excerpt(doc, runes, sec.Heading, sec.Start, sec.End); ok {
			c.Section = sec.Heading
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *OutlineSource) excerpt(doc *model.NormalizedDocument, runes []rune, claim string, start, end int) (model.CandidateCitation, bool) {
	if end > len(runes) {
		end = len(runes)
	}
	if end-start > s.maxLength {
		end = start + s.maxLength
	}
	for start < end && unicode.IsSpace(runes[start]) {
		start++
	}
	for end > start && unicode.IsSpace(runes[end-1]) {
		end--
	}
	if end-start < minSentenceLength {
		return model.CandidateCitation{}, false
	}
	return candidate(doc, ArtifactSummary, claim, string(runes[start:end]), start), true
}
