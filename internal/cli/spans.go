package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/groundcheck/internal/document"
	"github.com/ppiankov/groundcheck/internal/match"
	"github.com/ppiankov/groundcheck/internal/verify"
)

var spanContext int

// spansCmd represents the spans command
var spansCmd = &cobra.Command{
	Use:   "spans <document> <quote>",
	Short: "Find every exact occurrence of a quotation",
	Long: `Spans lists every exact occurrence of a quotation in a document with
its code point offsets, section, page and surrounding context.

Example:
  groundcheck spans lease.txt "binding arbitration"
  groundcheck spans lease.html "late fee" --context 40`,
	Args: cobra.ExactArgs(2),
	RunE: runSpans,
}

func init() {
	rootCmd.AddCommand(spansCmd)

	spansCmd.Flags().IntVar(&spanContext, "context", match.DefaultContextChars, "context characters on each side")
}

func runSpans(cmd *cobra.Command, args []string) error {
	doc, err := document.Load(args[0])
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Storage.Driver = "none"
	cfg.Cache.Enabled = false

	verifier, err := verify.New(*cfg, verify.WithLogger(logger))
	if err != nil {
		return err
	}

	spans := verifier.Matcher().FindSpans(doc.Text, args[1], spanContext)
	if len(spans) == 0 {
		fmt.Fprintf(os.Stderr, "✗ No occurrences of %q in %s\n", args[1], doc.DocumentID)
		return nil
	}

	fmt.Fprintf(os.Stderr, "✓ %d occurrence(s) in %s\n\n", len(spans), doc.DocumentID)
	for i, s := range spans {
		where := fmt.Sprintf("[%d, %d)", s.Start, s.End)
		if heading, ok := doc.SectionAt(s.Start); ok {
			where += " " + heading
		}
		if page, ok := doc.PageAt(s.Start); ok {
			where += fmt.Sprintf(" p. %d", page)
		}
		fmt.Printf("%d. %s\n   …%s…\n", i+1, where, strings.Join(strings.Fields(s.Context), " "))
	}
	return nil
}
