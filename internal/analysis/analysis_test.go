package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/groundcheck/internal/document"
	"github.com/ppiankov/groundcheck/internal/llm"
	"github.com/ppiankov/groundcheck/internal/model"
)

const leaseText = "RESIDENTIAL LEASE\n" +
	"This lease is made between the landlord and the tenant.\n" +
	"1. Rent\n" +
	"The tenant shall pay rent within 5 days of the due date. A late fee of $50 applies.\n" +
	"2. Termination\n" +
	"Either party may terminate this lease with 30 days notice.\n" +
	"3. Disputes\n" +
	"All disputes are resolved by binding arbitration. The tenant agrees to hold harmless the landlord.\n"

func leaseDocument(t *testing.T) *model.NormalizedDocument {
	t.Helper()
	doc := document.ParseText(leaseText)
	doc.DocumentID = "lease"
	doc.VersionID = "v1"
	require.NoError(t, doc.Validate())
	return doc
}

// assertVerbatim checks every candidate quotes the document at its claimed offsets
func assertVerbatim(t *testing.T, doc *model.NormalizedDocument, candidates []model.CandidateCitation) {
	t.Helper()
	runes := []rune(doc.Text)
	for _, c := range candidates {
		require.NotNil(t, c.ClaimedStart)
		require.NotNil(t, c.ClaimedEnd)
		assert.Equal(t, c.QuoteText, string(runes[*c.ClaimedStart:*c.ClaimedEnd]))
		assert.Equal(t, "lease", c.DocumentID)
		assert.Equal(t, "v1", c.VersionID)
		assert.NoError(t, c.Validate())
	}
}

func quotes(candidates []model.CandidateCitation) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.QuoteText
	}
	return out
}

func TestSentences(t *testing.T) {
	got := sentences("HEADING LINE\nFirst sentence here. Second one, v1.2 style!\nshort.\nNo terminator here")

	require.Len(t, got, 2)
	assert.Equal(t, "First sentence here.", got[0].text)
	assert.Equal(t, 13, got[0].start)
	assert.Equal(t, "Second one, v1.2 style!", got[1].text)
	assert.Equal(t, 34, got[1].start)
}

func TestOutlineSource(t *testing.T) {
	doc := leaseDocument(t)

	candidates, err := NewOutlineSource(500).Candidates(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, candidates, 4)
	assertVerbatim(t, doc, candidates)

	assert.Equal(t, "RESIDENTIAL LEASE", candidates[0].Claim)
	assert.Equal(t, "RESIDENTIAL LEASE", candidates[0].Section)
	assert.Equal(t, "RESIDENTIAL LEASE\nThis lease is made between the landlord and the tenant.", candidates[0].QuoteText)
	assert.Equal(t, "2. Termination", candidates[2].Section)
	for _, c := range candidates {
		assert.Equal(t, ArtifactSummary, c.Artifact)
	}
}

func TestOutlineSource_TruncatesLongSections(t *testing.T) {
	doc := leaseDocument(t)

	candidates, err := NewOutlineSource(20).Candidates(context.Background(), doc)
	require.NoError(t, err)
	assertVerbatim(t, doc, candidates)
	for _, c := range candidates {
		assert.LessOrEqual(t, len([]rune(c.QuoteText)), 20)
	}
}

func TestOutlineSource_NoSections(t *testing.T) {
	doc := &model.NormalizedDocument{DocumentID: "lease", VersionID: "v1", Text: "  Plain text without any headings at all.  "}

	candidates, err := NewOutlineSource(0).Candidates(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assertVerbatim(t, doc, candidates)
	assert.Equal(t, "Overview", candidates[0].Claim)
	assert.Equal(t, 2, *candidates[0].ClaimedStart)

	doc.Text = "tiny"
	candidates, err = NewOutlineSource(0).Candidates(context.Background(), doc)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestWarningSource(t *testing.T) {
	doc := leaseDocument(t)

	candidates, err := NewWarningSource(10).Candidates(context.Background(), doc)
	require.NoError(t, err)
	assertVerbatim(t, doc, candidates)

	assert.Equal(t, []string{
		"The tenant agrees to hold harmless the landlord.",
		"The tenant shall pay rent within 5 days of the due date.",
		"A late fee of $50 applies.",
		"Either party may terminate this lease with 30 days notice.",
		"All disputes are resolved by binding arbitration.",
	}, quotes(candidates))

	assert.True(t, strings.HasPrefix(candidates[0].Claim, "liability (medium risk, affects you): "))
	assert.True(t, strings.HasPrefix(candidates[1].Claim, "deadline (high risk, affects you): "))
	assert.True(t, strings.HasPrefix(candidates[3].Claim, "termination (low risk, affects you): "))
	assert.Equal(t, ArtifactWarnings, candidates[4].Artifact)
}

func TestWarningSource_Limit(t *testing.T) {
	candidates, err := NewWarningSource(2).Candidates(context.Background(), leaseDocument(t))
	require.NoError(t, err)
	assert.Len(t, candidates, 2)
}

func TestWarningSource_WordBoundaries(t *testing.T) {
	doc := &model.NormalizedDocument{Text: "Please attend the weekend meeting. The refinement is fined."}

	candidates, err := NewWarningSource(10).Candidates(context.Background(), doc)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestRiskLevelAndWhoAffected(t *testing.T) {
	assert.Equal(t, "high", riskLevel("The tenant must pay."))
	assert.Equal(t, "low", riskLevel("The tenant can cancel."))
	assert.Equal(t, "medium", riskLevel("Rent is due."))

	assert.Equal(t, "employer", whoAffected("The Company may end the contract."))
	assert.Equal(t, "both parties", whoAffected("Each party keeps its records."))
	assert.Equal(t, "you", whoAffected("You pay the fee."))
}

func TestQuestionSource(t *testing.T) {
	doc := leaseDocument(t)

	candidates, err := NewQuestionSource(8).Candidates(context.Background(), doc)
	require.NoError(t, err)
	assertVerbatim(t, doc, candidates)
	require.Len(t, candidates, 4)

	assert.Equal(t, "Am I giving up my right to sue in court by agreeing to arbitration?", candidates[0].Claim)
	assert.Equal(t, "All disputes are resolved by binding arbitration.", candidates[0].QuoteText)
	assert.Equal(t, "A late fee of $50 applies.", candidates[1].QuoteText)
	assert.Equal(t, "Either party may terminate this lease with 30 days notice.", candidates[2].QuoteText)
	assert.Equal(t, "The tenant agrees to hold harmless the landlord.", candidates[3].QuoteText)

	limited, err := NewQuestionSource(1).Candidates(context.Background(), doc)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSources_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc := leaseDocument(t)
	for _, src := range []Source{NewOutlineSource(0), NewWarningSource(0), NewQuestionSource(0)} {
		_, err := src.Candidates(ctx, doc)
		assert.ErrorIs(t, err, context.Canceled, src.Name())
	}
}

type stubProvider struct {
	citations []model.CandidateCitation
	err       error
}

func (p *stubProvider) Name() string                     { return "stub" }
func (p *stubProvider) IsAvailable(_ context.Context) bool { return true }

func (p *stubProvider) Extract(_ context.Context, req llm.ExtractRequest) (*llm.ExtractResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &llm.ExtractResponse{Citations: p.citations, Model: "stub-1"}, nil
}

func TestNewAnalyzer(t *testing.T) {
	cfg := model.DefaultConfig().Analysis

	a, err := NewAnalyzer(cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"summary", "warnings", "questions"}, a.Artifacts())

	_, err = a.Candidates(context.Background(), leaseDocument(t), "verdict")
	assert.Error(t, err)

	cfg.Artifacts = []string{"summary", "verdict"}
	_, err = NewAnalyzer(cfg, nil, nil)
	assert.Error(t, err)
}

func TestAnalyzer_WithLLMSource(t *testing.T) {
	doc := leaseDocument(t)
	provider := &stubProvider{citations: []model.CandidateCitation{
		{DocumentID: "lease", VersionID: "v1", QuoteText: "Either party may terminate", Claim: "Early exit", Artifact: ArtifactWarnings},
		// Same quote and offset as the keyword source; collapsed
		{DocumentID: "lease", VersionID: "v1", QuoteText: "A late fee of $50 applies.", ClaimedStart: model.IntPtr(strings.Index(leaseText, "A late fee")), Artifact: ArtifactWarnings},
	}}
	extractor := llm.NewExtractorWithProvider(provider, llm.Config{Model: "stub-1"}, nil)

	cfg := model.DefaultConfig().Analysis
	cfg.Artifacts = []string{ArtifactWarnings}
	cfg.UseLLM = true

	a, err := NewAnalyzer(cfg, extractor, nil)
	require.NoError(t, err)

	candidates, err := a.Candidates(context.Background(), doc, ArtifactWarnings)
	require.NoError(t, err)
	require.Len(t, candidates, 6)
	assert.Equal(t, "Either party may terminate", candidates[5].QuoteText)
	assert.Equal(t, "Early exit", candidates[5].Claim)
}

func TestAnalyzer_LLMFailureDegrades(t *testing.T) {
	extractor := llm.NewExtractorWithProvider(&stubProvider{err: errors.New("boom")}, llm.Config{}, nil)

	cfg := model.DefaultConfig().Analysis
	cfg.Artifacts = []string{ArtifactWarnings}
	cfg.UseLLM = true

	a, err := NewAnalyzer(cfg, extractor, nil)
	require.NoError(t, err)

	candidates, err := a.Candidates(context.Background(), leaseDocument(t), ArtifactWarnings)
	require.NoError(t, err)
	assert.Len(t, candidates, 5)
}
