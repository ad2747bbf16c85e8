package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/clausewise/internal/model"
	"github.com/ppiankov/clausewise/internal/store"
)

var (
	historyLimit  int
	historyEntity string
	historyJSON   bool
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List saved analyses",
	Long: `History lists analyses saved in the result store, newest first.

Example:
  clausewise history --store clausewise.db
  clausewise history --limit 5 --json
  clausewise history --entity MONETARY_AMOUNT='$500'`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of analyses to list")
	historyCmd.Flags().StringVar(&historyEntity, "entity", "", "only analyses mentioning CATEGORY=text")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print JSON instead of a table")
	historyCmd.Flags().StringVar(&storePath, "store", "", "SQLite file to read (default from config)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg := *appConfig
	if storePath != "" {
		cfg.Store.Path = storePath
	}
	if cfg.Store.Path == "" {
		return fmt.Errorf("no store configured (set store.path or pass --store)")
	}

	st, err := openStore(ctx, &cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	var summaries []store.Summary
	if historyEntity != "" {
		category, text, ok := strings.Cut(historyEntity, "=")
		if !ok || text == "" {
			return fmt.Errorf("invalid --entity %q (want CATEGORY=text)", historyEntity)
		}
		c := model.EntityCategory(strings.ToUpper(strings.TrimSpace(category)))
		if !model.IsKnownEntityCategory(c) {
			return fmt.Errorf("unknown entity category %q", category)
		}
		summaries, err = st.FindByEntity(ctx, c, text, historyLimit)
	} else {
		summaries, err = st.List(ctx, historyLimit)
	}
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}

	return printHistory(cmd.OutOrStdout(), summaries, historyJSON)
}

func printHistory(out io.Writer, summaries []store.Summary, asJSON bool) error {
	if asJSON {
		if summaries == nil {
			summaries = []store.Summary{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	if len(summaries) == 0 {
		fmt.Fprintln(out, "No saved analyses.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tANALYZED\tSOURCE\tCLASSIFICATION\tCLAUSES\tENTITIES\tSTATUS")
	for _, s := range summaries {
		status := "complete"
		if !s.Complete {
			status = "partial"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			s.ID,
			s.AnalyzedAt.Format("2006-01-02 15:04"),
			s.Source,
			orDash(s.Classification),
			s.Clauses,
			s.Entities,
			status)
	}
	return w.Flush()
}
