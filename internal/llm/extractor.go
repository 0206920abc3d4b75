package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/groundcheck/internal/model"
	"github.com/ppiankov/groundcheck/internal/worker"
)

// Extraction is the outcome of one LLM extraction. Provider failures degrade
// to warnings so an analysis never fails because the model did.
type Extraction struct {
	Enabled    bool                      `json:"enabled"`
	Provider   string                    `json:"provider,omitempty"`
	Model      string                    `json:"model,omitempty"`
	Artifact   string                    `json:"artifact"`
	Citations  []model.CandidateCitation `json:"citations"`
	TokensUsed int                       `json:"tokens_used,omitempty"`
	Warnings   []string                  `json:"warnings,omitempty"`
}

// Extractor produces candidate citations through a rate-limited provider
type Extractor struct {
	provider Provider
	config   Config
	limiter  *worker.Limiter
	logger   *zap.Logger
}

// NewExtractor creates an extractor; a disabled provider yields a no-op extractor
func NewExtractor(config Config, logger *zap.Logger) (*Extractor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	provider, err := NewProvider(config, logger)
	if err != nil {
		return nil, err
	}
	return NewExtractorWithProvider(provider, config, logger), nil
}

// NewExtractorWithProvider wraps an existing provider
func NewExtractorWithProvider(provider Provider, config Config, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		provider: provider,
		config:   config,
		limiter:  worker.NewLimiter(config.RequestsPerSecond, 1),
		logger:   logger,
	}
}

// IsEnabled reports whether a provider is configured
func (e *Extractor) IsEnabled() bool {
	return e != nil && e.provider != nil
}

// ProviderName returns the configured provider name
func (e *Extractor) ProviderName() string {
	if !e.IsEnabled() {
		return ""
	}
	return e.provider.Name()
}

// Extract requests candidate citations for one artifact.
// It returns nil when disabled and an error only when ctx ends.
func (e *Extractor) Extract(ctx context.Context, doc *model.NormalizedDocument, artifact string, maxCitations int) (*Extraction, error) {
	if !e.IsEnabled() {
		return nil, nil
	}

	result := &Extraction{
		Enabled:  true,
		Provider: e.provider.Name(),
		Model:    e.config.Model,
		Artifact: artifact,
	}

	if !e.provider.IsAvailable(ctx) {
		result.Enabled = false
		result.Warnings = append(result.Warnings, fmt.Sprintf("LLM provider %s is not available", e.provider.Name()))
		return result, nil
	}

	if err := e.limiter.Wait(ctx, e.provider.Name()); err != nil {
		return nil, fmt.Errorf("wait for %s rate limit: %w", e.provider.Name(), err)
	}

	resp, err := e.provider.Extract(ctx, ExtractRequest{
		Document:     doc,
		Artifact:     artifact,
		Model:        e.config.Model,
		MaxTokens:    e.config.MaxTokens,
		MaxCitations: maxCitations,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("LLM extraction failed",
			zap.String("provider", e.provider.Name()),
			zap.String("artifact", artifact),
			zap.Error(err),
		)
		result.Warnings = append(result.Warnings, fmt.Sprintf("LLM extraction failed: %v", err))
		return result, nil
	}

	if maxCitations > 0 && len(resp.Citations) > maxCitations {
		result.Warnings = append(result.Warnings, fmt.Sprintf("Dropped %d citations beyond the limit of %d", len(resp.Citations)-maxCitations, maxCitations))
		resp.Citations = resp.Citations[:maxCitations]
	}

	result.Citations = resp.Citations
	result.TokensUsed = resp.TokensUsed
	if resp.Model != "" {
		result.Model = resp.Model
	}
	e.logger.Debug("LLM extraction complete",
		zap.String("provider", result.Provider),
		zap.String("artifact", artifact),
		zap.Int("citations", len(result.Citations)),
		zap.Int("tokens", result.TokensUsed),
	)
	return result, nil
}
