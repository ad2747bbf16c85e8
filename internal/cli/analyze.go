package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/clausewise/internal/load"
	"github.com/ppiankov/clausewise/internal/model"
	"github.com/ppiankov/clausewise/internal/pipeline"
)

var (
	outJSON      string
	outMD        string
	outCSV       string
	inputFormat  string
	timeout      time.Duration
	maxBytes     int64
	storePath    string
	noFooter     bool
	analyzeFlags providerFlags
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <path|url>",
	Short: "Analyze a single legal document",
	Long: `Analyze loads one document and:
- Splits it into clauses
- Rewrites each clause in plain language
- Extracts parties, dates, amounts, durations, and other entities
- Labels each clause and the whole document

Example:
  clausewise analyze contract.pdf
  clausewise analyze lease.docx --json lease.json --md lease.md --csv entities.csv
  clausewise analyze https://example.com/terms --format html
  clausewise analyze nda.txt --provider openai`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	// Output flags
	analyzeCmd.Flags().StringVar(&outJSON, "json", "report.json", "output JSON path (empty to skip)")
	analyzeCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")
	analyzeCmd.Flags().StringVar(&outCSV, "csv", "", "output entity CSV path (optional)")
	analyzeCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")

	// Input flags
	analyzeCmd.Flags().StringVar(&inputFormat, "format", "", "document format (txt, pdf, docx, html); detected when empty")
	analyzeCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall analysis timeout")
	analyzeCmd.Flags().Int64Var(&maxBytes, "max-bytes", 0, "max document bytes to read (default from config)")
	analyzeCmd.Flags().StringVar(&storePath, "store", "", "SQLite file to save the result in")

	// Provider flags
	addProviderFlags(analyzeCmd, &analyzeFlags)
}

func addProviderFlags(cmd *cobra.Command, f *providerFlags) {
	cmd.Flags().StringVar(&f.provider, "provider", "", "provider for every capability (rules, openai, anthropic, ollama)")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "disable the provider response cache")
	cmd.Flags().BoolVar(&f.simplifyDocument, "simplify-document", false, "also rewrite the whole document in plain language")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "concurrent provider calls per document (default from config)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	source := args[0]
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	cfg := *appConfig
	analyzeFlags.apply(&cfg)
	if maxBytes > 0 {
		cfg.Load.MaxBytes = maxBytes
	}
	if storePath != "" {
		cfg.Store.Path = storePath
	}
	cfg.Output.IncludeFooter = cfg.Output.IncludeFooter && !noFooter

	if verbose {
		fmt.Fprintf(os.Stderr, "Analyzing: %s\n", source)
		fmt.Fprintf(os.Stderr, "Timeout: %v\n", timeout)
		fmt.Fprintf(os.Stderr, "Providers: simplify=%s entities=%s classify=%s\n",
			cfg.Providers.Simplifier, cfg.Providers.EntityRecognizer, cfg.Providers.Classifier)
		fmt.Fprintln(os.Stderr)
	}

	analyzer, err := newAnalyzer(&cfg, nil)
	if err != nil {
		return err
	}

	result, err := analyzeSource(ctx, analyzer, source, inputFormat)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "✓ Segmented %d clauses\n", result.Stats.Clauses)
		fmt.Fprintf(os.Stderr, "✓ Extracted %d entities\n", result.Stats.Entities)
		fmt.Fprintf(os.Stderr, "✓ Classified as %s\n", result.Classification)
		if !result.Complete {
			fmt.Fprintf(os.Stderr, "⚠️  %d fields failed\n", result.Stats.FailedFields)
		}
		fmt.Fprintln(os.Stderr)
	}

	st, err := openStore(ctx, &cfg)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
		if err := st.Save(ctx, result); err != nil {
			return fmt.Errorf("save result: %w", err)
		}
		logger.Debug("result saved", zap.String("id", result.ID), zap.String("store", cfg.Store.Path))
	}

	renderer := pipeline.NewRenderer(cfg.Output.IncludeFooter).WithOutput(cmd.OutOrStdout())
	if err := renderer.RenderReport(result, pipeline.Outputs{JSON: outJSON, Markdown: outMD, CSV: outCSV}, verbose); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}

	return nil
}

func analyzeSource(ctx context.Context, a *pipeline.Analyzer, source, format string) (*model.AnalysisResult, error) {
	if load.IsURL(source) {
		return a.AnalyzeURL(ctx, source, format)
	}
	return a.AnalyzeFile(ctx, source, format)
}
