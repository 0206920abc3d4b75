package verify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ppiankov/groundcheck/internal/cache"
	"github.com/ppiankov/groundcheck/internal/grounding"
	"github.com/ppiankov/groundcheck/internal/match"
	"github.com/ppiankov/groundcheck/internal/model"
	"github.com/ppiankov/groundcheck/internal/score"
	"github.com/ppiankov/groundcheck/internal/store"
	"github.com/ppiankov/groundcheck/internal/worker"
)

// Verifier matches and scores candidate citations and persists verification passes
type Verifier struct {
	matcher    *match.Matcher
	scorer     *score.Scorer
	aggregator *grounding.Aggregator
	scoring    model.ScoringConfig
	workers    int
	indexes    *match.IndexCache

	store   store.Store
	matches *cache.MatchCache
	logger  *zap.Logger
	tracer  trace.Tracer
	meters  metric.MeterProvider
	metrics *metrics

	now   func() time.Time
	newID func() string

	unknownFormats sync.Map
}

// Option configures a Verifier
type Option func(*Verifier)

// WithStore persists passes to s. Without a store passes are returned but not recorded.
func WithStore(s store.Store) Option {
	return func(v *Verifier) {
		v.store = s
	}
}

// WithMatchCache caches match results in c
func WithMatchCache(c cache.Cache) Option {
	return func(v *Verifier) {
		if c != nil {
			v.matches = cache.NewMatchCache(c)
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithMeterProvider records metrics to provider instead of the global one
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(v *Verifier) {
		if provider != nil {
			v.meters = provider
		}
	}
}

// WithTracerProvider records spans to provider instead of the global one
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(v *Verifier) {
		if provider != nil {
			v.tracer = provider.Tracer(instrumentationName)
		}
	}
}

// WithClock overrides the pass timestamp source
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// WithIDGenerator overrides pass id generation
func WithIDGenerator(newID func() string) Option {
	return func(v *Verifier) {
		if newID != nil {
			v.newID = newID
		}
	}
}

// WithIndexCache shares prepared document indices with other verifiers
func WithIndexCache(indexes *match.IndexCache) Option {
	return func(v *Verifier) {
		v.indexes = indexes
	}
}

// New creates a verifier from configuration
func New(cfg model.Config, opts ...Option) (*Verifier, error) {
	v := &Verifier{
		scorer:     score.NewScorer(cfg.Scoring),
		aggregator: grounding.NewAggregator(cfg.Grounding),
		scoring:    cfg.Scoring,
		workers:    cfg.Concurrency.Workers,
		logger:     zap.NewNop(),
		tracer:     otel.GetTracerProvider().Tracer(instrumentationName),
		meters:     otel.GetMeterProvider(),
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
	v.indexes = match.NewIndexCache(cfg.Matching.IndexCacheTTL)

	for _, opt := range opts {
		opt(v)
	}

	v.matcher = match.NewMatcher(cfg.Matching, v.indexes)
	if v.workers <= 0 {
		v.workers = 1
	}

	m, err := newMetrics(v.meters)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	v.metrics = m

	return v, nil
}

// Matcher returns the matcher used for verification
func (v *Verifier) Matcher() *match.Matcher {
	return v.matcher
}

// Aggregator returns the grounding aggregator
func (v *Verifier) Aggregator() *grounding.Aggregator {
	return v.aggregator
}

// Store returns the configured store, or nil when persistence is disabled
func (v *Verifier) Store() store.Store {
	return v.store
}

// VerifyAll verifies candidates against raw text of the given format.
// The result has one citation per candidate in input order.
func (v *Verifier) VerifyAll(ctx context.Context, text string, format model.Format, candidates []model.CandidateCitation) ([]model.VerifiedCitation, error) {
	doc := &model.NormalizedDocument{Text: text, Format: format}
	return v.VerifyDocument(ctx, doc, candidates)
}

// VerifyDocument verifies candidates against a normalized document.
// Section and page are derived from the document maps when the candidate does not claim them.
func (v *Verifier) VerifyDocument(ctx context.Context, doc *model.NormalizedDocument, candidates []model.CandidateCitation) ([]model.VerifiedCitation, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	weight := v.parserWeight(doc.Format)
	idx := v.matcher.Prepare(doc.Text)

	pool := worker.NewPool(ctx, min(v.workers, max(len(candidates), 1)))
	pool.Start()

	for i, c := range candidates {
		job := &citationJob{
			verifier: v,
			index:    idx,
			doc:      doc,
			weight:   weight,
			seq:      i,
			claim:    c,
		}
		if err := pool.Submit(job); err != nil {
			break
		}
	}

	results := pool.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	citations := make([]model.VerifiedCitation, len(candidates))
	filled := make([]bool, len(candidates))
	var recovered *multierror.Error
	for _, r := range results {
		res := r.(*citationResult)
		citations[res.citation.SequenceIndex] = res.citation
		filled[res.citation.SequenceIndex] = true
		if res.err != nil {
			recovered = multierror.Append(recovered, fmt.Errorf("citation %d: %w", res.citation.SequenceIndex, res.err))
		}
	}
	for i, ok := range filled {
		if !ok {
			return nil, fmt.Errorf("citation %d was not verified", i)
		}
	}

	if err := recovered.ErrorOrNil(); err != nil {
		v.logger.Debug("recovered malformed candidates",
			zap.String("document_id", doc.DocumentID),
			zap.Int("count", recovered.Len()),
			zap.Error(err),
		)
	}

	return citations, nil
}

// VerifyPass verifies, aggregates and persists one artifact's candidates as a single pass.
// When the store fails the pass is not returned and the error is a *store.PersistenceError.
func (v *Verifier) VerifyPass(ctx context.Context, doc *model.NormalizedDocument, artifact string, candidates []model.CandidateCitation) (*model.VerificationPass, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("validate document: %w", err)
	}

	ctx, span := v.tracer.Start(ctx, "verify.VerifyPass", trace.WithAttributes(
		attribute.String("document_id", doc.DocumentID),
		attribute.String("version_id", doc.VersionID),
		attribute.String("artifact", artifact),
		attribute.Int("candidates", len(candidates)),
	))
	defer span.End()

	started := time.Now()

	citations, err := v.VerifyDocument(ctx, doc, candidates)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	summary := v.aggregator.Aggregate(citations)
	pass := &model.VerificationPass{
		PassID:     v.newID(),
		DocumentID: doc.DocumentID,
		VersionID:  doc.VersionID,
		Artifact:   artifact,
		CreatedAt:  v.now().UTC(),
		Citations:  citations,
		Grounding:  summary,
	}

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if v.store != nil {
		if err := v.store.SavePass(ctx, pass); err != nil {
			v.metrics.recordPersistError(ctx, artifact)
			v.logger.Error("failed to persist verification pass",
				zap.String("document_id", doc.DocumentID),
				zap.String("version_id", doc.VersionID),
				zap.String("artifact", artifact),
				zap.Error(err),
			)
			perr := asPersistenceError(err, doc)
			span.RecordError(perr)
			span.SetStatus(codes.Error, "persistence failed")
			return nil, perr
		}
	}

	span.SetAttributes(
		attribute.String("pass_id", pass.PassID),
		attribute.Float64("confidence", summary.Confidence),
		attribute.Bool("can_publish", summary.CanPublish),
	)
	v.metrics.recordPass(ctx, artifact, summary, time.Since(started))
	v.logger.Debug("verification pass complete",
		zap.String("pass_id", pass.PassID),
		zap.String("document_id", doc.DocumentID),
		zap.String("artifact", artifact),
		zap.Int("verified", summary.VerifiedCount),
		zap.Int("total", summary.CitationCount),
		zap.Float64("confidence", summary.Confidence),
	)

	return pass, nil
}

func asPersistenceError(err error, doc *model.NormalizedDocument) *store.PersistenceError {
	var perr *store.PersistenceError
	if errors.As(err, &perr) {
		return perr
	}
	return &store.PersistenceError{
		Op:         "save_pass",
		DocumentID: doc.DocumentID,
		VersionID:  doc.VersionID,
		Err:        err,
	}
}

// parserWeight resolves the format weight, logging each unknown format once
func (v *Verifier) parserWeight(format model.Format) float64 {
	weight, known := v.scoring.ParserWeight(format)
	if !known {
		if _, seen := v.unknownFormats.LoadOrStore(format, struct{}{}); !seen {
			v.logger.Debug("unknown document format, using fallback parser weight",
				zap.String("format", string(format)),
				zap.Float64("weight", weight),
			)
		}
	}
	return weight
}

// verifyOne produces the citation for one candidate. Malformed input and panics
// yield a zero-confidence none citation and the cause.
func (v *Verifier) verifyOne(ctx context.Context, idx *match.Index, doc *model.NormalizedDocument, weight float64, seq int, claim model.CandidateCitation) (citation model.VerifiedCitation, cause error) {
	defer func() {
		if r := recover(); r != nil {
			cause = fmt.Errorf("%w: recovered panic: %v", model.ErrMalformedCandidate, r)
			citation = v.malformed(doc, weight, seq, claim, cause)
		}
	}()

	if err := claim.Validate(); err != nil {
		return v.malformed(doc, weight, seq, claim, err), err
	}

	res := v.match(ctx, idx, claim)
	confidence, reasons := v.scorer.Score(res, claim, weight)
	return v.citation(doc, seq, claim, res, confidence, reasons), nil
}

func (v *Verifier) malformed(doc *model.NormalizedDocument, weight float64, seq int, claim model.CandidateCitation, cause error) model.VerifiedCitation {
	v.logger.Warn("malformed candidate citation",
		zap.String("document_id", doc.DocumentID),
		zap.Int("sequence_index", seq),
		zap.Error(cause),
	)
	confidence, reasons := v.scorer.ScoreMalformed(claim, weight, cause)
	return v.citation(doc, seq, claim, model.NoMatch(), confidence, reasons)
}

// match consults the match cache before running the matcher
func (v *Verifier) match(ctx context.Context, idx *match.Index, claim model.CandidateCitation) model.MatchResult {
	key := cache.MatchKey(idx.Hash(), v.matcher.Fingerprint(), claim)
	if res, ok := v.matches.Get(ctx, key); ok {
		return res
	}

	res := v.matcher.MatchIndex(ctx, idx, claim)
	if ctx.Err() != nil {
		return res
	}
	if err := v.matches.Put(ctx, key, res); err != nil {
		v.logger.Debug("failed to cache match result", zap.Error(err))
	}
	return res
}

func (v *Verifier) citation(doc *model.NormalizedDocument, seq int, claim model.CandidateCitation, res model.MatchResult, confidence float64, reasons []string) model.VerifiedCitation {
	documentID, versionID := doc.DocumentID, doc.VersionID
	if documentID == "" {
		documentID = claim.DocumentID
	}
	if versionID == "" {
		versionID = claim.VersionID
	}

	return model.VerifiedCitation{
		DocumentID:        documentID,
		VersionID:         versionID,
		SequenceIndex:     seq,
		Verified:          res.Method != model.MatchNone,
		MatchMethod:       res.Method,
		Similarity:        res.Similarity,
		Confidence:        confidence,
		ConfidenceReasons: reasons,
		QuoteText:         claim.QuoteText,
		Claim:             claim.Claim,
		Location:          locate(doc, claim, res),
	}
}

// locate prefers the claimed section and page, then the document maps at the match start
func locate(doc *model.NormalizedDocument, claim model.CandidateCitation, res model.MatchResult) model.Location {
	loc := model.Location{
		Section: claim.Section,
		Page:    claim.Page,
	}
	if loc.Page != nil && *loc.Page < 0 {
		loc.Page = nil
	}
	if res.Span == nil {
		return loc
	}

	loc.CharStart = model.IntPtr(res.Span.Start)
	loc.CharEnd = model.IntPtr(res.Span.End)
	if loc.Section == "" {
		if heading, ok := doc.SectionAt(res.Span.Start); ok {
			loc.Section = heading
		}
	}
	if loc.Page == nil {
		if page, ok := doc.PageAt(res.Span.Start); ok {
			loc.Page = model.IntPtr(page)
		}
	}
	return loc
}

// citationJob verifies one candidate on the worker pool
type citationJob struct {
	verifier *Verifier
	index    *match.Index
	doc      *model.NormalizedDocument
	weight   float64
	seq      int
	claim    model.CandidateCitation
}

// Execute implements worker.Job
func (j *citationJob) Execute(ctx context.Context) worker.Result {
	citation, cause := j.verifier.verifyOne(ctx, j.index, j.doc, j.weight, j.seq, j.claim)
	j.verifier.metrics.recordCitation(ctx, citation, cause != nil)
	return &citationResult{citation: citation, err: cause}
}

// citationResult carries a verified citation and the recovered cause, if any
type citationResult struct {
	citation model.VerifiedCitation
	err      error
}

// GetError returns the recovered cause. It never aborts the pass.
func (r *citationResult) GetError() error {
	return r.err
}
