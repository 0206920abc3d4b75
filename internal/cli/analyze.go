package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/groundcheck/internal/model"
	"github.com/ppiankov/groundcheck/internal/pipeline"
)

var (
	outJSON            string
	outMD              string
	timeout            time.Duration
	noCache            bool
	storageDriver      string
	llmEnabled         bool
	llmProvider        string
	llmModel           string
	requirePublishable bool
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Analyze a document and ground every artifact in it",
	Long: `Analyze loads a document and produces grounded artifacts:
- Summary: one outline citation per section
- Warnings: risk clauses quoted from the text
- Questions: questions triggered by specific clauses

Every citation is verified against the document and every artifact is
gated on its grounding. Artifacts that fail the gate are withheld.

Supported inputs: .json (normalized document), .txt, .md, .html

Example:
  groundcheck analyze lease.txt
  groundcheck analyze lease.html --json report.json --md report.md
  groundcheck analyze lease.txt --llm --llm-provider ollama --llm-model llama3.1`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	// Output flags
	analyzeCmd.Flags().StringVar(&outJSON, "json", "report.json", "output JSON path")
	analyzeCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")
	analyzeCmd.Flags().BoolVar(&requirePublishable, "require-publishable", false, "exit with an error when any artifact is withheld")

	addRuntimeFlags(analyzeCmd)
	analyzeCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall analysis timeout")

	// LLM flags
	analyzeCmd.Flags().BoolVar(&llmEnabled, "llm", false, "add LLM-proposed citations")
	analyzeCmd.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM provider (openai, ollama)")
	analyzeCmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")
}

// addRuntimeFlags registers flags shared by every command that builds a pipeline
func addRuntimeFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the match result cache")
	cmd.Flags().StringVar(&storageDriver, "storage", "", "storage driver override (sqlite, badger, badger-memory, none)")
}

// commandConfig loads the configuration and applies command flags
func commandConfig(cmd *cobra.Command) (*model.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if noCache {
		cfg.Cache.Enabled = false
	}
	if storageDriver != "" {
		cfg.Storage.Driver = storageDriver
	}

	if cmd.Flags().Lookup("llm") != nil && llmEnabled {
		cfg.Analysis.UseLLM = true
		if llmProvider != "" {
			cfg.LLM.Provider = llmProvider
		}
		if llmModel != "" {
			cfg.LLM.Model = llmModel
		}
		if cfg.LLM.Provider == "" {
			cfg.LLM.Provider = "openai"
		}
		if cfg.LLM.Provider == "openai" && cfg.LLM.APIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}
	return cfg, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	path := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Analyzing: %s\n", path)
		fmt.Fprintf(os.Stderr, "Artifacts: %v\n", cfg.Analysis.Artifacts)
		fmt.Fprintf(os.Stderr, "Storage: %s\n", cfg.Storage.Driver)
		if cfg.Analysis.UseLLM {
			fmt.Fprintf(os.Stderr, "LLM: %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
		}
		fmt.Fprintln(os.Stderr)
	}

	p, err := pipeline.Build(cfg, logger)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	defer func() { _ = p.Close() }()

	report, err := p.AnalyzeFile(ctx, path)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	if verbose {
		for _, ar := range report.Artifacts {
			fmt.Fprintf(os.Stderr, "✓ %s: %d of %d citations verified\n",
				ar.Artifact, ar.Grounding.VerifiedCount, ar.Grounding.CitationCount)
		}
		fmt.Fprintln(os.Stderr)
	}

	if err := p.RenderReport(report, outJSON, outMD, verbose); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}

	if requirePublishable && !report.Publishable {
		return fmt.Errorf("insufficient support: at least one artifact was withheld")
	}
	return nil
}
