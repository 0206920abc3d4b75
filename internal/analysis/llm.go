package analysis

import (
	"context"

	"go.uber.org/zap"

	"github.com/ppiankov/groundcheck/internal/llm"
	"github.com/ppiankov/groundcheck/internal/model"
)

// LLMSource asks a language model for claims and quotations. Its output is
// treated like any other candidate and must survive verification.
type LLMSource struct {
	extractor *llm.Extractor
	artifact  string
	limit     int
	logger    *zap.Logger
}

// NewLLMSource creates a new LLM-backed source for one artifact
func NewLLMSource(extractor *llm.Extractor, artifact string, limit int, logger *zap.Logger) *LLMSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMSource{
		extractor: extractor,
		artifact:  artifact,
		limit:     limit,
		logger:    logger,
	}
}

func (s *LLMSource) Name() string     { return "llm:" + s.extractor.ProviderName() }
func (s *LLMSource) Artifact() string { return s.artifact }

// Candidates degrades to no candidates when the provider fails; only a
// cancelled context is an error.
func (s *LLMSource) Candidates(ctx context.Context, doc *model.NormalizedDocument) ([]model.CandidateCitation, error) {
	extraction, err := s.extractor.Extract(ctx, doc, s.artifact, s.limit)
	if err != nil {
		return nil, err
	}
	if extraction == nil {
		return nil, nil
	}
	for _, w := range extraction.Warnings {
		s.logger.Warn("LLM extraction degraded",
			zap.String("artifact", s.artifact),
			zap.String("warning", w),
		)
	}
	return extraction.Citations, nil
}
