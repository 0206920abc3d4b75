package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/ppiankov/groundcheck/internal/cache"
	"github.com/ppiankov/groundcheck/internal/model"
	"github.com/ppiankov/groundcheck/internal/score"
	"github.com/ppiankov/groundcheck/internal/store"
)

const leaseText = "Tenant shall pay rent on the 1st of each month."

func newTestVerifier(t *testing.T, opts ...Option) *Verifier {
	t.Helper()
	cfg := model.DefaultConfig()
	cfg.Concurrency.Workers = 4
	v, err := New(cfg, opts...)
	require.NoError(t, err)
	return v
}

func TestVerifyAll_Scenarios(t *testing.T) {
	v := newTestVerifier(t)
	ctx := context.Background()

	t.Run("exact at claimed position", func(t *testing.T) {
		got, err := v.VerifyAll(ctx, leaseText, model.FormatTXT, []model.CandidateCitation{{
			QuoteText:    leaseText,
			ClaimedStart: model.IntPtr(0),
			ClaimedEnd:   model.IntPtr(48),
		}})
		require.NoError(t, err)
		require.Len(t, got, 1)

		c := got[0]
		assert.True(t, c.Verified)
		assert.Equal(t, model.MatchExact, c.MatchMethod)
		assert.InDelta(t, 0.7, c.Confidence, 1e-9)
		assert.Contains(t, c.ConfidenceReasons, score.ReasonVerified)
		assert.Contains(t, c.ConfidenceReasons, score.ReasonExactAtClaimed)
		assert.Equal(t, 0, *c.Location.CharStart)
		assert.Equal(t, 47, *c.Location.CharEnd)
	})

	t.Run("exact relocated", func(t *testing.T) {
		got, err := v.VerifyAll(ctx, leaseText, model.FormatTXT, []model.CandidateCitation{{
			QuoteText:    leaseText,
			ClaimedStart: model.IntPtr(100),
			ClaimedEnd:   model.IntPtr(148),
		}})
		require.NoError(t, err)

		c := got[0]
		assert.Equal(t, model.MatchExact, c.MatchMethod)
		assert.InDelta(t, 0.7, c.Confidence, 1e-9)
		assert.Contains(t, c.ConfidenceReasons, score.ReasonExactRelocated)
		assert.Equal(t, 0, *c.Location.CharStart)
	})

	t.Run("fuzzy paraphrase in pdf", func(t *testing.T) {
		got, err := v.VerifyAll(ctx, leaseText, model.FormatPDF, []model.CandidateCitation{{
			QuoteText: "Tenant will pay rent on the 1st of every month",
		}})
		require.NoError(t, err)

		c := got[0]
		assert.True(t, c.Verified)
		assert.Equal(t, model.MatchFuzzy, c.MatchMethod)
		assert.GreaterOrEqual(t, c.Similarity, 0.85)
		assert.InDelta(t, 0.475, c.Confidence, 1e-9)
		assert.Contains(t, c.ConfidenceReasons, score.ReasonModerateReliable)
	})

	t.Run("absent quote", func(t *testing.T) {
		got, err := v.VerifyAll(ctx, leaseText, model.FormatTXT, []model.CandidateCitation{{
			QuoteText: "Landlord shall provide 90 days notice",
		}})
		require.NoError(t, err)

		c := got[0]
		assert.False(t, c.Verified)
		assert.Equal(t, model.MatchNone, c.MatchMethod)
		assert.Zero(t, c.Confidence)
		assert.Nil(t, c.Location.CharStart)
		assert.Contains(t, c.ConfidenceReasons, score.ReasonNoMatch)
	})
}

func TestVerifyAll_PreservesOrder(t *testing.T) {
	v := newTestVerifier(t)

	var text strings.Builder
	var candidates []model.CandidateCitation
	for i := 0; i < 60; i++ {
		sentence := fmt.Sprintf("Clause %d requires notice number %d in writing. ", i, i*7)
		text.WriteString(sentence)
		quote := strings.TrimSpace(sentence)
		if i%5 == 0 {
			quote = fmt.Sprintf("Missing provision %d about escrow deposits", i)
		}
		candidates = append(candidates, model.CandidateCitation{QuoteText: quote})
	}

	got, err := v.VerifyAll(context.Background(), text.String(), model.FormatTXT, candidates)
	require.NoError(t, err)
	require.Len(t, got, len(candidates))

	for i, c := range got {
		assert.Equal(t, i, c.SequenceIndex)
		assert.Equal(t, candidates[i].QuoteText, c.QuoteText)
		assert.Equal(t, i%5 != 0, c.Verified, "citation %d", i)
	}
}

func TestVerifyAll_MalformedCandidates(t *testing.T) {
	v := newTestVerifier(t)

	candidates := []model.CandidateCitation{
		{QuoteText: "   "},
		{QuoteText: leaseText, ClaimedStart: model.IntPtr(-3)},
		{QuoteText: leaseText, ClaimedStart: model.IntPtr(10), ClaimedEnd: model.IntPtr(2)},
		{QuoteText: leaseText},
	}

	got, err := v.VerifyAll(context.Background(), leaseText, model.FormatTXT, candidates)
	require.NoError(t, err)
	require.Len(t, got, 4)

	for i := 0; i < 3; i++ {
		c := got[i]
		assert.False(t, c.Verified, "citation %d", i)
		assert.Equal(t, model.MatchNone, c.MatchMethod)
		assert.Zero(t, c.Confidence)
		require.GreaterOrEqual(t, len(c.ConfidenceReasons), 3)
		assert.True(t, strings.HasPrefix(c.ConfidenceReasons[2], "WARNING: Malformed citation input:"), c.ConfidenceReasons[2])
	}

	assert.True(t, got[3].Verified)
}

func TestVerifyAll_UnknownFormatUsesFallbackWeight(t *testing.T) {
	v := newTestVerifier(t)

	got, err := v.VerifyAll(context.Background(), leaseText, model.Format("ODT"), []model.CandidateCitation{{
		QuoteText: leaseText,
	}})
	require.NoError(t, err)

	// (0.4 + 0.2) * 0.5 + 0.1 length bonus
	assert.InDelta(t, 0.4, got[0].Confidence, 1e-9)
	assert.Contains(t, got[0].ConfidenceReasons, score.ReasonLowReliability)
}

func TestVerifyAll_Empty(t *testing.T) {
	v := newTestVerifier(t)

	got, err := v.VerifyAll(context.Background(), leaseText, model.FormatTXT, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestVerifyAll_Cancelled(t *testing.T) {
	v := newTestVerifier(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.VerifyAll(ctx, leaseText, model.FormatTXT, []model.CandidateCitation{{QuoteText: leaseText}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVerifyAll_Idempotent(t *testing.T) {
	mem := cache.NewMemoryCache(time.Minute, time.Minute)
	cached := newTestVerifier(t, WithMatchCache(mem))
	plain := newTestVerifier(t)

	candidates := []model.CandidateCitation{
		{QuoteText: leaseText, ClaimedStart: model.IntPtr(0)},
		{QuoteText: "Tenant will pay rent on the 1st of every month"},
		{QuoteText: "Landlord shall provide 90 days notice"},
		{QuoteText: ""},
	}

	ctx := context.Background()
	first, err := cached.VerifyAll(ctx, leaseText, model.FormatHTML, candidates)
	require.NoError(t, err)
	second, err := cached.VerifyAll(ctx, leaseText, model.FormatHTML, candidates)
	require.NoError(t, err)
	third, err := plain.VerifyAll(ctx, leaseText, model.FormatHTML, candidates)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("cached rerun differs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first, third); diff != "" {
		t.Errorf("uncached run differs (-cached +uncached):\n%s", diff)
	}
	assert.Positive(t, mem.Len())
}

func TestVerifyDocument_DerivesLocation(t *testing.T) {
	v := newTestVerifier(t)

	text := "1. Rent\nTenant shall pay rent monthly.\n2. Termination\nEither party may terminate with 30 days notice."
	runes := []rune(text)
	split := strings.Index(text, "2. Termination")
	doc := &model.NormalizedDocument{
		DocumentID: "lease",
		VersionID:  "v1",
		Text:       text,
		Format:     model.FormatTXT,
		Pages: []model.PageSpan{
			{Start: 0, End: split, Page: 1},
			{Start: split, End: len(runes), Page: 2},
		},
		Sections: []model.SectionSpan{
			{Start: 0, End: split, Heading: "1. Rent"},
			{Start: split, End: len(runes), Heading: "2. Termination"},
		},
	}

	got, err := v.VerifyDocument(context.Background(), doc, []model.CandidateCitation{
		{QuoteText: "Either party may terminate with 30 days notice."},
		{QuoteText: "Tenant shall pay rent monthly.", Section: "Payments", Page: model.IntPtr(7)},
	})
	require.NoError(t, err)

	assert.Equal(t, "2. Termination", got[0].Location.Section)
	require.NotNil(t, got[0].Location.Page)
	assert.Equal(t, 2, *got[0].Location.Page)
	assert.Equal(t, "lease", got[0].DocumentID)

	// Claimed metadata wins over the document maps
	assert.Equal(t, "Payments", got[1].Location.Section)
	assert.Equal(t, 7, *got[1].Location.Page)
}

func TestVerifyPass_Persists(t *testing.T) {
	s, err := store.OpenSQLite(":memory:", nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := newTestVerifier(t,
		WithStore(s),
		WithClock(func() time.Time { return fixed }),
		WithIDGenerator(func() string { return "pass-1" }),
	)

	doc := &model.NormalizedDocument{DocumentID: "lease", VersionID: "v1", Text: leaseText, Format: model.FormatTXT}
	pass, err := v.VerifyPass(context.Background(), doc, "summary", []model.CandidateCitation{
		{QuoteText: leaseText, ClaimedStart: model.IntPtr(0)},
		{QuoteText: "Landlord shall provide 90 days notice"},
	})
	require.NoError(t, err)
	require.NotNil(t, pass)

	assert.Equal(t, "pass-1", pass.PassID)
	assert.Equal(t, fixed, pass.CreatedAt)
	assert.Equal(t, 2, pass.Grounding.CitationCount)
	assert.Equal(t, 1, pass.Grounding.VerifiedCount)
	assert.True(t, pass.Grounding.CanCite)

	records, err := s.ListByVersion(context.Background(), "lease", "v1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "pass-1", records[0].PassID)
	assert.Equal(t, "summary", records[0].Artifact)
	assert.Equal(t, pass.Citations[0].Confidence, records[0].Confidence)

	passes, err := s.ListPasses(context.Background(), "lease", "v1")
	require.NoError(t, err)
	require.Len(t, passes, 1)
	assert.Equal(t, pass.Grounding.Confidence, passes[0].Grounding.Confidence)
}

type failingStore struct {
	store.Store
	err error
}

func (f *failingStore) SavePass(context.Context, *model.VerificationPass) error {
	return f.err
}

func TestVerifyPass_PersistenceFailure(t *testing.T) {
	cause := errors.New("disk full")
	v := newTestVerifier(t, WithStore(&failingStore{err: cause}))

	doc := &model.NormalizedDocument{DocumentID: "lease", VersionID: "v1", Text: leaseText, Format: model.FormatTXT}
	pass, err := v.VerifyPass(context.Background(), doc, "summary", []model.CandidateCitation{{QuoteText: leaseText}})

	assert.Nil(t, pass)
	var perr *store.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "lease", perr.DocumentID)
	assert.Equal(t, "v1", perr.VersionID)
	assert.ErrorIs(t, err, cause)
}

func TestVerifyPass_CancelledPersistsNothing(t *testing.T) {
	s, err := store.OpenSQLite(":memory:", nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	v := newTestVerifier(t, WithStore(s))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc := &model.NormalizedDocument{DocumentID: "lease", VersionID: "v1", Text: leaseText, Format: model.FormatTXT}
	_, err = v.VerifyPass(ctx, doc, "summary", []model.CandidateCitation{{QuoteText: leaseText}})
	assert.ErrorIs(t, err, context.Canceled)

	records, err := s.ListByVersion(context.Background(), "lease", "v1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestVerifyPass_InvalidDocument(t *testing.T) {
	v := newTestVerifier(t)
	doc := &model.NormalizedDocument{
		DocumentID: "lease",
		VersionID:  "v1",
		Text:       leaseText,
		Pages:      []model.PageSpan{{Start: 0, End: 500, Page: 1}},
	}

	_, err := v.VerifyPass(context.Background(), doc, "summary", nil)
	assert.Error(t, err)
}

func TestVerifyPass_RecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	v := newTestVerifier(t, WithMeterProvider(provider))
	doc := &model.NormalizedDocument{DocumentID: "lease", VersionID: "v1", Text: leaseText, Format: model.FormatTXT}
	_, err := v.VerifyPass(context.Background(), doc, "warnings", []model.CandidateCitation{
		{QuoteText: leaseText},
		{QuoteText: "Landlord shall provide 90 days notice"},
		{QuoteText: ""},
	})
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}

	assert.Equal(t, int64(3), sums["groundcheck_citations_total"])
	assert.Equal(t, int64(1), sums["groundcheck_malformed_citations_total"])
	assert.Equal(t, int64(1), sums["groundcheck_passes_total"])
}
