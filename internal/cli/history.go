package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/groundcheck/internal/store"
)

var (
	historyCitations bool
	historyJSON      bool
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history <document_id> <version_id>",
	Short: "Show stored verification passes for a document version",
	Long: `History reconstructs past grounding from the citation store.

By default one line per verification pass is printed. With --citations every
stored citation is listed in pass order.

Example:
  groundcheck history lease 3f2a9c1d0b7e4a55
  groundcheck history lease 3f2a9c1d0b7e4a55 --citations --json`,
	Args: cobra.ExactArgs(2),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().BoolVar(&historyCitations, "citations", false, "list every stored citation")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print JSON instead of a table")
	historyCmd.Flags().StringVar(&storageDriver, "storage", "", "storage driver override (sqlite, badger)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	documentID, versionID := args[0], args[1]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if storageDriver != "" {
		cfg.Storage.Driver = storageDriver
	}

	st, err := store.Open(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if st == nil {
		return fmt.Errorf("storage is disabled (storage.driver = %s)", cfg.Storage.Driver)
	}
	defer func() { _ = st.Close() }()

	if historyCitations {
		records, err := st.ListByVersion(ctx, documentID, versionID)
		if err != nil {
			return err
		}
		if historyJSON {
			return printJSON(records)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "PASS\tARTIFACT\t#\tVERIFIED\tMETHOD\tCONFIDENCE\tQUOTE")
		for _, r := range records {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\t%.2f\t%s\n",
				shortID(r.PassID), r.Artifact, r.SequenceIndex, r.Verified, r.MatchMethod, r.Confidence, truncate(r.QuoteText, 60))
		}
		return w.Flush()
	}

	passes, err := st.ListPasses(ctx, documentID, versionID)
	if err != nil {
		return err
	}
	if historyJSON {
		return printJSON(passes)
	}
	if len(passes) == 0 {
		fmt.Fprintf(os.Stderr, "No verification passes stored for %s (%s)\n", documentID, versionID)
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PASS\tCREATED\tARTIFACT\tCONFIDENCE\tVERIFIED\tPUBLISH")
	for _, p := range passes {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%d/%d\t%t\n",
			shortID(p.PassID), p.CreatedAt.Format("2006-01-02 15:04:05"), p.Artifact,
			p.Grounding.Confidence, p.Grounding.VerifiedCount, p.Grounding.CitationCount, p.Grounding.CanPublish)
	}
	return w.Flush()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
