package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/groundcheck/internal/model"
)

// maxQuoteColumn bounds quotes in Markdown tables, in code points
const maxQuoteColumn = 80

// Renderer writes reports as JSON, Markdown and a terminal summary
type Renderer struct {
	out io.Writer
}

// NewRenderer creates a renderer printing summaries to out (stdout when nil)
func NewRenderer(out io.Writer) *Renderer {
	if out == nil {
		out = os.Stdout
	}
	return &Renderer{out: out}
}

// Printf writes a progress line to the summary output
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// RenderJSON writes the report as indented JSON
func (r *Renderer) RenderJSON(report *model.Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

// RenderMarkdown writes the report as Markdown
func (r *Renderer) RenderMarkdown(report *model.Report, path string) error {
	return writeFile(path, []byte(Markdown(report)))
}

// Markdown formats the report for human review
func Markdown(report *model.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Grounding Report: %s\n\n", report.DocumentID)
	fmt.Fprintf(&b, "- **Version:** %s\n", report.VersionID)
	fmt.Fprintf(&b, "- **Format:** %s\n", report.Format)
	if report.Source != "" {
		fmt.Fprintf(&b, "- **Source:** %s\n", report.Source)
	}
	fmt.Fprintf(&b, "- **Analyzed:** %s\n", report.AnalyzedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "- **Publishable:** %s\n", yesNo(report.Publishable))

	for _, ar := range report.Artifacts {
		g := ar.Grounding
		fmt.Fprintf(&b, "\n## %s\n\n", title(ar.Artifact))
		fmt.Fprintf(&b, "Confidence **%.2f** (can cite: %s, can publish: %s). ", g.Confidence, yesNo(g.CanCite), yesNo(g.CanPublish))
		fmt.Fprintf(&b, "Verified %d of %d citations (%d exact, %d fuzzy).\n", g.VerifiedCount, g.CitationCount, g.ExactMatches, g.FuzzyMatches)

		if ar.Withheld {
			b.WriteString("\n> **Withheld:** insufficient support in the source document.\n")
		} else if len(ar.Items) > 0 {
			b.WriteString("\n### Items\n\n")
			for _, item := range ar.Items {
				fmt.Fprintf(&b, "- %s\n", item)
			}
		}

		if len(ar.Citations) > 0 {
			b.WriteString("\n### Citations\n\n")
			b.WriteString("| # | Verified | Method | Confidence | Location | Quote |\n")
			b.WriteString("|---|---|---|---|---|---|\n")
			for _, c := range ar.Citations {
				fmt.Fprintf(&b, "| %d | %s | %s | %.2f | %s | %s |\n",
					c.SequenceIndex, mark(c.Verified), c.MatchMethod, c.Confidence, location(c.Location), cell(c.QuoteText))
			}
		}

		if len(g.ConfidenceReasons) > 0 {
			b.WriteString("\n### Reasons\n\n")
			for _, reason := range g.ConfidenceReasons {
				fmt.Fprintf(&b, "- %s\n", reason)
			}
		}
	}

	return b.String()
}

// RenderSummary prints a one-line grounding summary per artifact
func (r *Renderer) RenderSummary(report *model.Report) {
	r.Printf("\n%s (%s)\n", report.DocumentID, report.VersionID)
	for _, ar := range report.Artifacts {
		status := "publishable"
		if ar.Withheld {
			status = "WITHHELD"
		}
		r.Printf("  %-10s confidence %.2f  verified %d/%d  %s\n",
			ar.Artifact, ar.Grounding.Confidence, ar.Grounding.VerifiedCount, ar.Grounding.CitationCount, status)
	}
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func title(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return strings.ToUpper(string(r)) + s[size:]
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func mark(v bool) string {
	if v {
		return "✓"
	}
	return "✗"
}

func location(loc model.Location) string {
	var parts []string
	if loc.Section != "" {
		parts = append(parts, cell(loc.Section))
	}
	if loc.Page != nil {
		parts = append(parts, fmt.Sprintf("p. %d", *loc.Page))
	}
	if loc.CharStart != nil && loc.CharEnd != nil {
		parts = append(parts, fmt.Sprintf("[%d, %d)", *loc.CharStart, *loc.CharEnd))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

// cell flattens text for a Markdown table cell
func cell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, "|", `\|`)
	if utf8.RuneCountInString(s) > maxQuoteColumn {
		s = string([]rune(s)[:maxQuoteColumn-1]) + "…"
	}
	return s
}
