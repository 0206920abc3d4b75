package analysis

import (
	"context"
	"fmt"
	"regexp"
	"unicode"

	"go.uber.org/zap"

	"github.com/ppiankov/groundcheck/internal/llm"
	"github.com/ppiankov/groundcheck/internal/model"
)

// Artifact names
const (
	ArtifactSummary   = "summary"
	ArtifactWarnings  = "warnings"
	ArtifactQuestions = "questions"
)

// minSentenceLength drops fragments too short to quote, in code points
const minSentenceLength = 10

// Source produces candidate citations for one artifact
type Source interface {
	// Name identifies the source in logs
	Name() string

	// Artifact is the analysis artifact the candidates support
	Artifact() string

	// Candidates returns unverified citations; the verifier decides if they hold
	Candidates(ctx context.Context, doc *model.NormalizedDocument) ([]model.CandidateCitation, error)
}

// Analyzer groups candidate sources by artifact
type Analyzer struct {
	artifacts []string
	sources   map[string][]Source
	logger    *zap.Logger
}

// NewAnalyzer creates the rule-based sources for every configured artifact,
// plus an LLM source per artifact when the extractor is enabled.
func NewAnalyzer(cfg model.AnalysisConfig, extractor *llm.Extractor, logger *zap.Logger) (*Analyzer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Analyzer{
		sources: make(map[string][]Source),
		logger:  logger,
	}
	for _, artifact := range cfg.Artifacts {
		var src Source
		switch artifact {
		case ArtifactSummary:
			src = NewOutlineSource(cfg.MaxCitationLength)
		case ArtifactWarnings:
			src = NewWarningSource(cfg.MaxWarnings)
		case ArtifactQuestions:
			src = NewQuestionSource(cfg.MaxQuestions)
		default:
			return nil, fmt.Errorf("unknown artifact: %s (supported: summary, warnings, questions)", artifact)
		}
		a.Register(src)

		if cfg.UseLLM && extractor.IsEnabled() {
			a.Register(NewLLMSource(extractor, artifact, maxFor(cfg, artifact), logger))
		}
	}
	return a, nil
}

// Register adds a source under its artifact
func (a *Analyzer) Register(src Source) {
	if _, ok := a.sources[src.Artifact()]; !ok {
		a.artifacts = append(a.artifacts, src.Artifact())
	}
	a.sources[src.Artifact()] = append(a.sources[src.Artifact()], src)
}

// Artifacts returns the artifact names in configuration order
func (a *Analyzer) Artifacts() []string {
	return a.artifacts
}

// Candidates collects the candidates of every source for an artifact.
// Duplicate quotes at the same offset are kept once.
func (a *Analyzer) Candidates(ctx context.Context, doc *model.NormalizedDocument, artifact string) ([]model.CandidateCitation, error) {
	sources, ok := a.sources[artifact]
	if !ok {
		return nil, fmt.Errorf("no sources for artifact %q", artifact)
	}

	var all []model.CandidateCitation
	seen := make(map[string]bool)
	for _, src := range sources {
		candidates, err := src.Candidates(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("%s candidates: %w", src.Name(), err)
		}
		for _, c := range candidates {
			key := fmt.Sprintf("%s|%d", c.QuoteText, startOf(c))
			if seen[key] {
				continue
			}
			seen[key] = true
			all = append(all, c)
		}
		a.logger.Debug("Collected candidates",
			zap.String("source", src.Name()),
			zap.String("artifact", artifact),
			zap.Int("count", len(candidates)),
		)
	}
	return all, nil
}

func maxFor(cfg model.AnalysisConfig, artifact string) int {
	switch artifact {
	case ArtifactWarnings:
		return cfg.MaxWarnings
	case ArtifactQuestions:
		return cfg.MaxQuestions
	}
	return 0
}

func startOf(c model.CandidateCitation) int {
	if c.ClaimedStart == nil {
		return -1
	}
	return *c.ClaimedStart
}

func candidate(doc *model.NormalizedDocument, artifact, claim, quote string, start int) model.CandidateCitation {
	end := start + len([]rune(quote))
	return model.CandidateCitation{
		DocumentID:   doc.DocumentID,
		VersionID:    doc.VersionID,
		QuoteText:    quote,
		ClaimedStart: model.IntPtr(start),
		ClaimedEnd:   model.IntPtr(end),
		Claim:        claim,
		Artifact:     artifact,
	}
}

// sentence is a trimmed sentence and its code point offset
type sentence struct {
	text  string
	start int
}

// sentences splits text at terminal punctuation followed by whitespace and at
// line breaks. Only fragments ending in punctuation are kept.
func sentences(text string) []sentence {
	runes := []rune(text)

	var out []sentence
	start := 0
	flush := func(end int) {
		s, e := start, end
		for s < e && unicode.IsSpace(runes[s]) {
			s++
		}
		for e > s && unicode.IsSpace(runes[e-1]) {
			e--
		}
		start = end
		if e-s < minSentenceLength {
			return
		}
		switch runes[e-1] {
		case '.', '!', '?':
			out = append(out, sentence{text: string(runes[s:e]), start: s})
		}
	}

	for i, r := range runes {
		switch r {
		case '\n':
			flush(i + 1)
		case '.', '!', '?':
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				flush(i + 1)
			}
		}
	}
	flush(len(runes))
	return out
}

// wordPattern matches any of the phrases on word boundaries, ignoring case
func wordPattern(phrases ...string) *regexp.Regexp {
	expr := `(?i)\b(?:`
	for i, p := range phrases {
		if i > 0 {
			expr += "|"
		}
		expr += regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(expr + `)\b`)
}
