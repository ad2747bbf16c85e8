package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ppiankov/clausewise/internal/model"
)

// Renderer writes analysis results as JSON, Markdown, CSV, and a console summary
type Renderer struct {
	includeFooter bool
	out           io.Writer
}

// NewRenderer creates a renderer that prints summaries to stdout
func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{includeFooter: includeFooter, out: os.Stdout}
}

// WithOutput redirects console output
func (r *Renderer) WithOutput(w io.Writer) *Renderer {
	r.out = w
	return r
}

// Outputs names the files RenderReport writes. Empty paths are skipped.
type Outputs struct {
	JSON     string
	Markdown string
	CSV      string
}

// RenderReport renders result to every requested output and prints the summary
func (r *Renderer) RenderReport(result *model.AnalysisResult, out Outputs, verbose bool) error {
	if out.JSON != "" {
		if err := r.RenderJSON(result, out.JSON); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		if verbose {
			fmt.Fprintf(r.out, "✓ Wrote JSON: %s\n", out.JSON)
		}
	}

	if out.Markdown != "" {
		if err := r.RenderMarkdown(result, out.Markdown); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		if verbose {
			fmt.Fprintf(r.out, "✓ Wrote Markdown: %s\n", out.Markdown)
		}
	}

	if out.CSV != "" {
		if err := r.RenderEntitiesCSV(result, out.CSV); err != nil {
			return fmt.Errorf("render CSV: %w", err)
		}
		if verbose {
			fmt.Fprintf(r.out, "✓ Wrote CSV: %s\n", out.CSV)
		}
	}

	r.RenderSummary(result)
	return nil
}

// RenderJSON writes the result as indented JSON
func (r *Renderer) RenderJSON(result *model.AnalysisResult, path string) error {
	data, err := MarshalJSON(result)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// MarshalJSON encodes the result the same way RenderJSON does
func MarshalJSON(result *model.AnalysisResult) ([]byte, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return append(data, '\n'), nil
}

// RenderMarkdown writes a human-readable report
func (r *Renderer) RenderMarkdown(result *model.AnalysisResult, path string) error {
	return os.WriteFile(path, []byte(r.Markdown(result)), 0o644)
}

// Markdown builds the report body
func (r *Renderer) Markdown(result *model.AnalysisResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Clausewise Report: %s\n\n", result.Document.Source)
	fmt.Fprintf(&b, "- **Run:** `%s`\n", result.ID)
	fmt.Fprintf(&b, "- **Analyzed:** %s\n", result.AnalyzedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "- **Format:** %s\n", result.Document.Format)
	fmt.Fprintf(&b, "- **Classification:** %s\n", orDash(result.Classification))
	fmt.Fprintf(&b, "- **Clauses:** %d\n", result.Stats.Clauses)
	fmt.Fprintf(&b, "- **Entities:** %d\n", result.Stats.Entities)
	if !result.Complete {
		fmt.Fprintf(&b, "- **Status:** partial (%d failed fields)\n", result.Stats.FailedFields)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Summary\n\n%s\n\n", result.Summary)
	if result.PlainSummary != "" {
		fmt.Fprintf(&b, "### In Plain Language\n\n%s\n\n", result.PlainSummary)
	}

	if len(result.Entities) > 0 {
		b.WriteString("## Entities\n\n")
		b.WriteString("| Type | Values |\n|------|--------|\n")
		for _, g := range result.Entities {
			fmt.Fprintf(&b, "| %s | %s |\n", g.Category, escapeCell(strings.Join(g.Values, ", ")))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Clauses\n\n")
	for _, c := range result.Clauses() {
		heading := fmt.Sprintf("Clause %d", c.Index+1)
		if c.Number != "" {
			heading += " (" + c.Number + ")"
		}
		if c.Label != "" {
			heading += " · " + c.Label
		}
		fmt.Fprintf(&b, "### %s\n\n", heading)
		fmt.Fprintf(&b, "> %s\n\n", strings.ReplaceAll(c.Text, "\n", "\n> "))

		if c.Simplified != "" {
			fmt.Fprintf(&b, "**Plain language:** %s\n\n", c.Simplified)
		}
		if len(c.Entities) > 0 {
			parts := make([]string, len(c.Entities))
			for i, e := range c.Entities {
				parts[i] = fmt.Sprintf("%s `%s`", e.Text, e.Category)
			}
			fmt.Fprintf(&b, "**Entities:** %s\n\n", strings.Join(parts, "; "))
		}
		for _, f := range []struct {
			name  string
			state model.FieldState
		}{
			{"simplify", c.Status.Simplify},
			{"entities", c.Status.Entities},
			{"classify", c.Status.Classify},
		} {
			if f.state.Status == model.FieldFailed {
				fmt.Fprintf(&b, "⚠️ %s failed (%s): %s\n\n", f.name, f.state.Kind, f.state.Error)
			}
		}
	}

	if r.includeFooter {
		b.WriteString("---\n\n")
		b.WriteString("*Generated by clausewise. Plain-language text and labels are aids to reading, not legal advice.*\n")
	}

	return b.String()
}

// RenderEntitiesCSV writes one row per entity occurrence
func (r *Renderer) RenderEntitiesCSV(result *model.AnalysisResult, path string) error {
	data, err := EntitiesCSV(result)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// EntitiesCSV encodes every entity with its clause and document offsets
func EntitiesCSV(result *model.AnalysisResult) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"Type", "Entity", "Clause", "Start", "End", "Confidence"}); err != nil {
		return nil, err
	}
	for _, c := range result.Clauses() {
		for _, e := range c.Entities {
			row := []string{
				string(e.Category),
				e.Text,
				strconv.Itoa(c.Index),
				strconv.Itoa(e.Span.Start),
				strconv.Itoa(e.Span.End),
				strconv.FormatFloat(e.Confidence, 'f', 2, 64),
			}
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write CSV: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderSummary prints a short summary to the console
func (r *Renderer) RenderSummary(result *model.AnalysisResult) {
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "═══════════════════════════════════════════════════════════")
	fmt.Fprintf(r.out, "  %s\n", result.Document.Source)
	fmt.Fprintln(r.out, "═══════════════════════════════════════════════════════════")
	fmt.Fprintf(r.out, "  Classification: %s\n", orDash(result.Classification))
	fmt.Fprintf(r.out, "  Clauses:        %d\n", result.Stats.Clauses)
	fmt.Fprintf(r.out, "  Entities:       %d\n", result.Stats.Entities)
	fmt.Fprintf(r.out, "  Duration:       %dms\n", result.DurationMS)
	if !result.Complete {
		fmt.Fprintf(r.out, "  ⚠️  Partial: %d failed fields in %d clauses\n",
			result.Stats.FailedFields, result.Stats.FailedClauses)
	}
	fmt.Fprintln(r.out)
	fmt.Fprintf(r.out, "  %s\n", result.Summary)
	fmt.Fprintln(r.out)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
