package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/clausewise/internal/pipeline"
	"github.com/ppiankov/clausewise/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
	batchFlags   providerFlags
	// noFooter and storePath are defined in analyze.go and shared here
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Analyze multiple documents from a list file in parallel",
	Long: `Batch analyzes many documents concurrently:
- Read paths or URLs from the input file (one per line, # for comments)
- Analyze documents in parallel with a configurable worker count
- Each analysis fans its provider calls out over its clauses
- Write a JSON and Markdown report for each document

Example:
  clausewise batch contracts.txt
  clausewise batch contracts.txt --concurrency 10 --output-dir ./reports
  clausewise batch contracts.txt --store history.db --timeout 30m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of documents analyzed at once")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./clausewise-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	batchCmd.Flags().StringVar(&storePath, "store", "", "SQLite file to save results in")

	addProviderFlags(batchCmd, &batchFlags)
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	cfg := *appConfig
	batchFlags.apply(&cfg)
	if storePath != "" {
		cfg.Store.Path = storePath
	}
	cfg.Output.IncludeFooter = cfg.Output.IncludeFooter && !noFooter

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Clausewise Batch Processing\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "  Providers:    %s / %s / %s\n",
		cfg.Providers.Simplifier, cfg.Providers.EntityRecognizer, cfg.Providers.Classifier)
	fmt.Fprintf(os.Stderr, "\n")

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	analyzer, err := newAnalyzer(&cfg, nil)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, &cfg)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	processor := worker.NewBatchProcessor(analyzer, concurrency)

	fmt.Fprintf(os.Stderr, "⚙️  Analyzing documents with %d workers...\n\n", concurrency)
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	renderer := pipeline.NewRenderer(cfg.Output.IncludeFooter)
	successCount := 0
	failureCount := 0
	used := make(map[string]int)

	for _, r := range results {
		if r.Error != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", r.Source, r.Error)
			continue
		}

		// Distinct stems for sources with the same base name
		slug := sanitizeFilename(r.Source)
		used[slug]++
		if n := used[slug]; n > 1 {
			slug = fmt.Sprintf("%s-%d", slug, n)
		}
		jsonPath := filepath.Join(outputDir, slug+".json")
		mdPath := filepath.Join(outputDir, slug+".md")

		if err := renderer.RenderJSON(r.Result, jsonPath); err != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write JSON: %v\n", r.Source, err)
			continue
		}
		if err := renderer.RenderMarkdown(r.Result, mdPath); err != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write Markdown: %v\n", r.Source, err)
			continue
		}
		if st != nil {
			if err := st.Save(ctx, r.Result); err != nil {
				fmt.Fprintf(os.Stderr, "✗ %s: failed to save result: %v\n", r.Source, err)
			}
		}

		successCount++
		status := ""
		if !r.Result.Complete {
			status = fmt.Sprintf(", %d failed fields", r.Result.Stats.FailedFields)
		}
		fmt.Fprintf(os.Stderr, "✓ %s (%s, %d clauses%s)\n", r.Source, orDash(r.Result.Classification), r.Result.Stats.Clauses, status)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d documents\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	if successCount == 0 && failureCount > 0 {
		return fmt.Errorf("all %d documents failed", failureCount)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
