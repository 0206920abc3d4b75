package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/groundcheck/internal/document"
	"github.com/ppiankov/groundcheck/internal/grounding"
	"github.com/ppiankov/groundcheck/internal/model"
	"github.com/ppiankov/groundcheck/internal/pipeline"
)

var (
	verifyArtifact           string
	verifyNoPersist          bool
	verifyOutJSON            string
	verifyRequirePublishable bool
)

// verifyResult is written by the verify command
type verifyResult struct {
	PassID    string                   `json:"pass_id,omitempty"`
	Citations []model.VerifiedCitation `json:"citations"`
	Grounding model.GroundingSummary   `json:"grounding"`
}

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify <document> <candidates.json>",
	Short: "Verify candidate citations against a document",
	Long: `Verify checks externally produced citations against a document.

The candidates file holds a JSON array of candidate citations:
  [{"quote_text": "...", "claimed_char_start": 120, "claim": "..."}]

Every candidate is matched, scored and located; the set is aggregated into
a grounding summary and stored as one verification pass.

Example:
  groundcheck verify lease.txt citations.json
  groundcheck verify lease.json citations.json --artifact warnings --json verified.json
  groundcheck verify lease.txt citations.json --no-persist --require-publishable`,
	Args: cobra.ExactArgs(2),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVar(&verifyArtifact, "artifact", "summary", "artifact the citations support")
	verifyCmd.Flags().BoolVar(&verifyNoPersist, "no-persist", false, "do not store the verification pass")
	verifyCmd.Flags().StringVar(&verifyOutJSON, "json", "", "output JSON path (default: stdout)")
	verifyCmd.Flags().BoolVar(&verifyRequirePublishable, "require-publishable", false, "exit with an error when the publish gate fails")
	addRuntimeFlags(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	doc, err := document.Load(args[0])
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	candidates, err := readCandidates(args[1])
	if err != nil {
		return err
	}

	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}
	if verifyNoPersist {
		cfg.Storage.Driver = "none"
	}

	p, err := pipeline.Build(cfg, logger)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	defer func() { _ = p.Close() }()

	var result verifyResult
	if p.Verifier().Store() != nil {
		pass, err := p.Verifier().VerifyPass(ctx, doc, verifyArtifact, candidates)
		if err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}
		result = verifyResult{PassID: pass.PassID, Citations: pass.Citations, Grounding: pass.Grounding}
	} else {
		citations, err := p.Verifier().VerifyDocument(ctx, doc, candidates)
		if err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}
		result = verifyResult{Citations: citations, Grounding: p.Verifier().Aggregator().Aggregate(citations)}
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	data = append(data, '\n')
	if verifyOutJSON == "" {
		if _, err := os.Stdout.Write(data); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	} else {
		if err := os.WriteFile(verifyOutJSON, data, 0644); err != nil {
			return fmt.Errorf("write %s: %w", verifyOutJSON, err)
		}
		fmt.Fprintf(os.Stderr, "✓ Wrote JSON: %s\n", verifyOutJSON)
	}

	g := result.Grounding
	fmt.Fprintf(os.Stderr, "%s: confidence %.2f, verified %d/%d (can cite: %t, can publish: %t)\n",
		doc.DocumentID, g.Confidence, g.VerifiedCount, g.CitationCount, g.CanCite, g.CanPublish)

	if verifyRequirePublishable {
		return grounding.Gate(g)
	}
	return nil
}

func readCandidates(path string) ([]model.CandidateCitation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read candidates: %w", err)
	}
	var candidates []model.CandidateCitation
	if err := json.Unmarshal(data, &candidates); err != nil {
		return nil, fmt.Errorf("parse candidates %s: %w", path, err)
	}
	return candidates, nil
}
