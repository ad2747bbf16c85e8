// Package aggregate merges dispatcher output into an AnalysisResult.
package aggregate

import (
	"fmt"
	"sort"
	"time"

	"github.com/ppiankov/clausewise/internal/dispatch"
	"github.com/ppiankov/clausewise/internal/model"
)

// Run identifies one analysis run
type Run struct {
	ID       string
	Finished time.Time
	Duration time.Duration
}

// Aggregate builds the immutable result of a run. The document is copied;
// later changes to doc or ann do not affect the result.
func Aggregate(run Run, doc *model.Document, ann *dispatch.Annotations) *model.AnalysisResult {
	clauses := make([]model.Clause, len(ann.Clauses))
	for i, c := range ann.Clauses {
		c.Entities = append([]model.Entity(nil), c.Entities...)
		clauses[i] = c
	}
	sort.SliceStable(clauses, func(i, j int) bool {
		return clauses[i].Span.Start < clauses[j].Span.Start
	})
	for i := range clauses {
		clauses[i].Index = i
		clauses[i].DocumentID = doc.ID
	}

	result := &model.AnalysisResult{
		ID:             run.ID,
		AnalyzedAt:     run.Finished.UTC(),
		DurationMS:     run.Duration.Milliseconds(),
		Document:       *doc,
		Classification: ann.Classification,
		ClassifyStatus: ann.ClassifyStatus,
		PlainSummary:   ann.PlainSummary,
		SummaryStatus:  ann.SummaryStatus,
		Entities:       GroupEntities(clauses),
	}
	result.Document.Clauses = clauses
	result.Stats = computeStats(result)
	result.Summary = Summarize(result.Classification, len(clauses))
	result.Complete = result.Stats.FailedFields == 0

	return result
}

// Summarize describes the run in one line
func Summarize(label string, clauses int) string {
	if label == "" {
		label = "unclassified"
	}
	return fmt.Sprintf("Document classified as %s with %d clauses extracted.", label, clauses)
}

// GroupEntities indexes distinct entity texts by category. Categories follow
// the entity taxonomy order; values keep their first-occurrence order.
func GroupEntities(clauses []model.Clause) []model.EntityGroup {
	values := make(map[model.EntityCategory][]string)
	seen := make(map[model.EntityCategory]map[string]bool)

	for _, c := range clauses {
		for _, e := range c.Entities {
			if seen[e.Category] == nil {
				seen[e.Category] = make(map[string]bool)
			}
			if seen[e.Category][e.Text] {
				continue
			}
			seen[e.Category][e.Text] = true
			values[e.Category] = append(values[e.Category], e.Text)
		}
	}

	groups := make([]model.EntityGroup, 0, len(values))
	for _, category := range model.KnownEntityCategories {
		if v, ok := values[category]; ok {
			groups = append(groups, model.EntityGroup{Category: category, Values: v})
		}
	}
	return groups
}

func computeStats(r *model.AnalysisResult) model.Stats {
	stats := model.Stats{Clauses: len(r.Document.Clauses)}

	count := func(f model.FieldState) {
		switch f.Status {
		case model.FieldFailed:
			stats.FailedFields++
		case model.FieldSkipped:
			stats.SkippedFields++
		}
	}

	for _, c := range r.Document.Clauses {
		stats.Entities += len(c.Entities)
		count(c.Status.Simplify)
		count(c.Status.Entities)
		count(c.Status.Classify)
		if c.Status.Failed() > 0 {
			stats.FailedClauses++
		}
	}
	count(r.ClassifyStatus)
	count(r.SummaryStatus)

	return stats
}
