package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/ppiankov/groundcheck/internal/analysis"
	"github.com/ppiankov/groundcheck/internal/cache"
	"github.com/ppiankov/groundcheck/internal/document"
	"github.com/ppiankov/groundcheck/internal/grounding"
	"github.com/ppiankov/groundcheck/internal/llm"
	"github.com/ppiankov/groundcheck/internal/model"
	"github.com/ppiankov/groundcheck/internal/store"
	"github.com/ppiankov/groundcheck/internal/verify"
)

// Pipeline orchestrates the complete analysis of one document
type Pipeline struct {
	verifier *verify.Verifier
	analyzer *analysis.Analyzer
	renderer *Renderer
	config   *model.Config
	logger   *zap.Logger
	now      func() time.Time
	closers  []func() error
}

// NewPipeline creates a pipeline from existing components
func NewPipeline(cfg *model.Config, verifier *verify.Verifier, analyzer *analysis.Analyzer, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		verifier: verifier,
		analyzer: analyzer,
		renderer: NewRenderer(nil),
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Build wires the store, match cache, LLM extractor, analyzer and verifier
// described by cfg. Extra verifier options are applied last.
// Close releases whatever Build opened.
func Build(cfg *model.Config, logger *zap.Logger, opts ...verify.Option) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var closers []func() error

	st, err := store.Open(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if st != nil {
		closers = append(closers, st.Close)
	}

	matchCache, err := cache.New(cfg.Cache, logger)
	if err != nil {
		_ = closeAll(closers)
		return nil, fmt.Errorf("open cache: %w", err)
	}

	var extractor *llm.Extractor
	if cfg.Analysis.UseLLM {
		extractor, err = llm.NewExtractor(llm.ConfigFromModel(cfg.LLM), logger)
		if err != nil {
			// LLM candidates are optional; rule-based sources still run
			logger.Warn("Failed to initialize LLM provider", zap.Error(err))
			extractor = nil
		}
	}

	analyzer, err := analysis.NewAnalyzer(cfg.Analysis, extractor, logger)
	if err != nil {
		_ = closeAll(closers)
		return nil, err
	}

	options := []verify.Option{
		verify.WithStore(st),
		verify.WithMatchCache(matchCache),
		verify.WithLogger(logger),
	}
	verifier, err := verify.New(*cfg, append(options, opts...)...)
	if err != nil {
		_ = closeAll(closers)
		return nil, err
	}

	p := NewPipeline(cfg, verifier, analyzer, logger)
	p.closers = closers
	return p, nil
}

// Verifier returns the verifier used by the pipeline
func (p *Pipeline) Verifier() *verify.Verifier {
	return p.verifier
}

// Renderer returns the report renderer
func (p *Pipeline) Renderer() *Renderer {
	return p.renderer
}

// Close releases resources opened by Build
func (p *Pipeline) Close() error {
	return closeAll(p.closers)
}

// AnalyzeFile loads a document from disk and analyzes it
func (p *Pipeline) AnalyzeFile(ctx context.Context, path string) (*model.Report, error) {
	doc, err := document.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	report, err := p.Analyze(ctx, doc)
	if err != nil {
		return nil, err
	}
	report.Source = path
	return report, nil
}

// Analyze runs every configured artifact through its candidate sources and a
// verification pass. Artifacts that fail the publish gate are withheld: their
// items are dropped while citations and grounding stay visible for audit.
func (p *Pipeline) Analyze(ctx context.Context, doc *model.NormalizedDocument) (*model.Report, error) {
	report := &model.Report{
		DocumentID:  doc.DocumentID,
		VersionID:   doc.VersionID,
		Format:      doc.Format,
		AnalyzedAt:  p.now().UTC(),
		Publishable: true,
	}

	for _, artifact := range p.analyzer.Artifacts() {
		candidates, err := p.analyzer.Candidates(ctx, doc, artifact)
		if err != nil {
			return nil, fmt.Errorf("collect %s candidates: %w", artifact, err)
		}

		pass, err := p.verifier.VerifyPass(ctx, doc, artifact, candidates)
		if err != nil {
			return nil, fmt.Errorf("verify %s: %w", artifact, err)
		}

		ar := p.artifactReport(pass)
		if ar.Withheld {
			report.Publishable = false
			p.logger.Info("Artifact withheld",
				zap.String("document_id", doc.DocumentID),
				zap.String("artifact", artifact),
				zap.Float64("confidence", pass.Grounding.Confidence),
			)
		}
		report.Artifacts = append(report.Artifacts, ar)
	}

	return report, nil
}

func (p *Pipeline) artifactReport(pass *model.VerificationPass) model.ArtifactReport {
	ar := model.ArtifactReport{
		Artifact:  pass.Artifact,
		PassID:    pass.PassID,
		Citations: pass.Citations,
		Grounding: pass.Grounding,
		Signals:   p.signals(pass.Grounding),
	}

	if err := grounding.Gate(pass.Grounding); err != nil {
		if !errors.Is(err, grounding.ErrInsufficientSupport) {
			p.logger.Warn("Unexpected gate error", zap.Error(err))
		}
		ar.Withheld = true
		return ar
	}

	seen := make(map[string]bool)
	for _, c := range pass.Citations {
		claim := strings.TrimSpace(c.Claim)
		if !c.Verified || claim == "" || seen[claim] {
			continue
		}
		seen[claim] = true
		ar.Items = append(ar.Items, claim)
	}
	return ar
}

// signals explains the pass grounding with transparent scoring data
func (p *Pipeline) signals(summary model.GroundingSummary) []model.Signal {
	cfg := p.config.Grounding
	bonus := math.Min(cfg.BonusPerVerified*float64(summary.VerifiedCount), cfg.MaxBonus)

	rate := model.Signal{
		Type:        model.SignalVerifiedRate,
		Severity:    model.SeverityInfo,
		Description: fmt.Sprintf("%d of %d citations verified", summary.VerifiedCount, summary.CitationCount),
		Delta:       bonus,
		Data: map[string]any{
			"verified":              summary.VerifiedCount,
			"total":                 summary.CitationCount,
			"exact":                 summary.ExactMatches,
			"fuzzy":                 summary.FuzzyMatches,
			"min_verified_fraction": cfg.MinVerifiedFraction,
			"formula":               "min(bonus_per_verified * verified, max_bonus)",
		},
	}
	if !summary.CanCite {
		rate.Severity = model.SeverityWarning
	}
	signals := []model.Signal{rate}

	if !summary.CanPublish {
		signals = append(signals, model.Signal{
			Type:        model.SignalVerification,
			Severity:    model.SeverityCritical,
			Description: fmt.Sprintf("Withheld: confidence %.2f below publish threshold %.2f", summary.Confidence, cfg.PublishThreshold),
			Data: map[string]any{
				"confidence":        summary.Confidence,
				"publish_threshold": cfg.PublishThreshold,
			},
		})
	}
	return signals
}

// RenderReport renders the report to the specified outputs
func (p *Pipeline) RenderReport(report *model.Report, jsonPath string, mdPath string, verbose bool) error {
	if jsonPath != "" {
		if err := p.renderer.RenderJSON(report, jsonPath); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		if verbose {
			p.renderer.Printf("✓ Wrote JSON: %s\n", jsonPath)
		}
	}

	if mdPath != "" {
		if err := p.renderer.RenderMarkdown(report, mdPath); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		if verbose {
			p.renderer.Printf("✓ Wrote Markdown: %s\n", mdPath)
		}
	}

	p.renderer.RenderSummary(report)
	return nil
}

func closeAll(closers []func() error) error {
	var result *multierror.Error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
