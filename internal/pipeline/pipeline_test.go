package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/groundcheck/internal/analysis"
	"github.com/ppiankov/groundcheck/internal/model"
	"github.com/ppiankov/groundcheck/internal/verify"
	"github.com/ppiankov/groundcheck/internal/worker"
)

const leaseText = "RESIDENTIAL LEASE\n" +
	"This lease is made between the landlord and the tenant.\n" +
	"1. Rent\n" +
	"The tenant shall pay rent within 5 days of the due date. A late fee of $50 applies.\n" +
	"2. Termination\n" +
	"Either party may terminate this lease with 30 days notice.\n" +
	"3. Disputes\n" +
	"All disputes are resolved by binding arbitration.\n"

func testConfig() *model.Config {
	cfg := model.DefaultConfig()
	cfg.Storage = model.StorageConfig{Driver: "sqlite", Path: ":memory:"}
	cfg.Cache.Enabled = false
	cfg.Concurrency.Workers = 4
	return &cfg
}

func buildPipeline(t *testing.T, cfg *model.Config) *Pipeline {
	t.Helper()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p, err := Build(cfg, nil, verify.WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	p.now = func() time.Time { return fixed }
	p.renderer = NewRenderer(&bytes.Buffer{})
	return p
}

func writeLease(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(leaseText), 0644))
	return path
}

func TestPipeline_AnalyzeFile(t *testing.T) {
	p := buildPipeline(t, testConfig())
	path := writeLease(t, t.TempDir(), "lease.txt")

	report, err := p.AnalyzeFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "lease", report.DocumentID)
	assert.Equal(t, path, report.Source)
	assert.Equal(t, model.FormatTXT, report.Format)
	assert.True(t, report.Publishable)
	require.Len(t, report.Artifacts, 3)

	for _, ar := range report.Artifacts {
		assert.NotEmpty(t, ar.PassID, ar.Artifact)
		assert.False(t, ar.Withheld, ar.Artifact)
		assert.True(t, ar.Grounding.CanPublish, ar.Artifact)
		assert.Equal(t, ar.Grounding.CitationCount, ar.Grounding.VerifiedCount, ar.Artifact)
		assert.NotEmpty(t, ar.Items, ar.Artifact)
		require.NotEmpty(t, ar.Signals)
		assert.Equal(t, model.SignalVerifiedRate, ar.Signals[0].Type)
	}

	assert.Equal(t, "summary", report.Artifacts[0].Artifact)
	assert.Contains(t, report.Artifacts[2].Items, "Am I giving up my right to sue in court by agreeing to arbitration?")

	passes, err := p.Verifier().Store().ListPasses(context.Background(), report.DocumentID, report.VersionID)
	require.NoError(t, err)
	assert.Len(t, passes, 3)
}

type fixedSource struct {
	quotes []string
}

func (s *fixedSource) Name() string     { return "fixed" }
func (s *fixedSource) Artifact() string { return "warnings" }

func (s *fixedSource) Candidates(_ context.Context, doc *model.NormalizedDocument) ([]model.CandidateCitation, error) {
	var out []model.CandidateCitation
	for _, q := range s.quotes {
		out = append(out, model.CandidateCitation{
			DocumentID: doc.DocumentID,
			VersionID:  doc.VersionID,
			QuoteText:  q,
			Claim:      "Unsupported claim",
			Artifact:   "warnings",
		})
	}
	return out, nil
}

func TestPipeline_WithholdsUnsupportedArtifact(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Driver = "none"

	verifier, err := verify.New(*cfg)
	require.NoError(t, err)

	cfg.Analysis.Artifacts = nil
	analyzer, err := analysis.NewAnalyzer(cfg.Analysis, nil, nil)
	require.NoError(t, err)
	analyzer.Register(&fixedSource{quotes: []string{
		"The landlord pays all utilities forever.",
		"The tenant may sublet without consent.",
	}})

	p := NewPipeline(cfg, verifier, analyzer, nil)
	doc := &model.NormalizedDocument{DocumentID: "lease", VersionID: "v1", Text: leaseText, Format: model.FormatTXT}

	report, err := p.Analyze(context.Background(), doc)
	require.NoError(t, err)

	assert.False(t, report.Publishable)
	require.Len(t, report.Artifacts, 1)
	ar := report.Artifacts[0]
	assert.True(t, ar.Withheld)
	assert.Empty(t, ar.Items)
	assert.Len(t, ar.Citations, 2)
	assert.False(t, ar.Grounding.CanPublish)
	assert.Equal(t, 0, ar.Grounding.VerifiedCount)

	last := ar.Signals[len(ar.Signals)-1]
	assert.Equal(t, model.SeverityCritical, last.Severity)
	assert.Equal(t, model.SeverityWarning, ar.Signals[0].Severity)
}

func TestPipeline_CancelledContext(t *testing.T) {
	p := buildPipeline(t, testConfig())
	path := writeLease(t, t.TempDir(), "lease.txt")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.AnalyzeFile(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)

	passes, err := p.Verifier().Store().ListPasses(context.Background(), "lease", "")
	require.NoError(t, err)
	assert.Empty(t, passes)
}

func TestPipeline_AnalyzeFileErrors(t *testing.T) {
	p := buildPipeline(t, testConfig())

	_, err := p.AnalyzeFile(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestBuild_UnknownArtifact(t *testing.T) {
	cfg := testConfig()
	cfg.Analysis.Artifacts = []string{"verdict"}

	_, err := Build(cfg, nil)
	assert.Error(t, err)
}

func TestPipeline_Batch(t *testing.T) {
	p := buildPipeline(t, testConfig())
	dir := t.TempDir()
	paths := []string{
		writeLease(t, dir, "a.txt"),
		filepath.Join(dir, "missing.txt"),
		writeLease(t, dir, "b.txt"),
	}

	results := worker.NewBatchProcessor(p, 2).ProcessPaths(context.Background(), paths)
	require.Len(t, results, 3)

	require.NoError(t, results[0].Error)
	assert.Equal(t, "a", results[0].Report.DocumentID)
	assert.Error(t, results[1].Error)
	require.NoError(t, results[2].Error)
	assert.Equal(t, "b", results[2].Report.DocumentID)
}

func TestRenderer(t *testing.T) {
	p := buildPipeline(t, testConfig())
	dir := t.TempDir()

	report, err := p.AnalyzeFile(context.Background(), writeLease(t, dir, "lease.txt"))
	require.NoError(t, err)

	var out bytes.Buffer
	p.renderer = NewRenderer(&out)

	jsonPath := filepath.Join(dir, "out", "lease.json")
	mdPath := filepath.Join(dir, "out", "lease.md")
	require.NoError(t, p.RenderReport(report, jsonPath, mdPath, true))

	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var decoded model.Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, report.DocumentID, decoded.DocumentID)
	assert.Len(t, decoded.Artifacts, 3)

	md, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.Contains(t, string(md), "# Grounding Report: lease")
	assert.Contains(t, string(md), "## Warnings")
	assert.Contains(t, string(md), "| # | Verified | Method | Confidence | Location | Quote |")

	summary := out.String()
	assert.Contains(t, summary, "✓ Wrote JSON: "+jsonPath)
	assert.Contains(t, summary, "publishable")
}

func TestMarkdown_Withheld(t *testing.T) {
	report := &model.Report{
		DocumentID: "lease",
		VersionID:  "v1",
		Artifacts: []model.ArtifactReport{{
			Artifact: "warnings",
			Withheld: true,
			Citations: []model.VerifiedCitation{{
				QuoteText:   "pipe | in\nquote " + strings.Repeat("x", 100),
				MatchMethod: model.MatchNone,
			}},
			Grounding: model.GroundingSummary{CitationCount: 1, ConfidenceReasons: []string{"WARNING: Citation could not be verified"}},
		}},
	}

	md := Markdown(report)
	assert.Contains(t, md, "**Withheld:**")
	assert.Contains(t, md, `pipe \| in quote`)
	assert.Contains(t, md, "…")
	assert.NotContains(t, md, "### Items")
	assert.Contains(t, md, "- WARNING: Citation could not be verified")
}
