package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/clausewise/internal/dispatch"
	"github.com/ppiankov/clausewise/internal/model"
)

var ok = model.FieldState{Status: model.FieldOK, Provider: "rules"}

func entity(text string, category model.EntityCategory, start int) model.Entity {
	return model.Entity{Text: text, Category: category, Span: model.Span{Start: start, End: start + len(text)}, Confidence: 0.9}
}

func fixture() (*model.Document, *dispatch.Annotations) {
	text := "1. The Buyer shall pay $500. 2. Delivery occurs within 10 days."
	doc := &model.Document{ID: "doc-1", Source: "contract.txt", Format: model.FormatText, Text: text}
	doc.Clauses = []model.Clause{
		{DocumentID: "doc-1", Index: 0, Number: "1", Span: model.Span{Start: 0, End: 28}, Text: text[0:28]},
		{DocumentID: "doc-1", Index: 1, Number: "2", Span: model.Span{Start: 29, End: 63}, Text: text[29:63]},
	}

	// Out of order on purpose
	ann := &dispatch.Annotations{
		Clauses: []model.Clause{
			{
				DocumentID: "doc-1", Index: 1, Number: "2", Span: doc.Clauses[1].Span, Text: doc.Clauses[1].Text,
				Simplified: "Delivery happens within 10 days.",
				Entities:   []model.Entity{entity("10 days", model.EntityDuration, 55)},
				Label:      "delivery",
				Status:     model.ClauseStatus{Simplify: ok, Entities: ok, Classify: ok},
			},
			{
				DocumentID: "doc-1", Index: 0, Number: "1", Span: doc.Clauses[0].Span, Text: doc.Clauses[0].Text,
				Simplified: "The Buyer must pay $500.",
				Entities:   []model.Entity{entity("Buyer", model.EntityParty, 7), entity("$500", model.EntityMonetaryAmount, 23)},
				Label:      "payment",
				Status:     model.ClauseStatus{Simplify: ok, Entities: ok, Classify: ok},
			},
		},
		Classification: "sales_contract",
		ClassifyStatus: ok,
		SummaryStatus:  model.FieldState{Status: model.FieldSkipped},
	}
	return doc, ann
}

func TestAggregate(t *testing.T) {
	doc, ann := fixture()
	finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))

	r := Aggregate(Run{ID: "run-1", Finished: finished, Duration: 1500 * time.Millisecond}, doc, ann)

	assert.Equal(t, "run-1", r.ID)
	assert.Equal(t, time.UTC, r.AnalyzedAt.Location())
	assert.Equal(t, int64(1500), r.DurationMS)
	assert.Equal(t, "sales_contract", r.Classification)
	assert.Equal(t, "Document classified as sales_contract with 2 clauses extracted.", r.Summary)
	assert.True(t, r.Complete)

	clauses := r.Clauses()
	require.Len(t, clauses, 2)
	assert.Equal(t, "1", clauses[0].Number, "sorted by span")
	assert.Equal(t, 0, clauses[0].Index)
	assert.Equal(t, "payment", clauses[0].Label)
	assert.Equal(t, "delivery", clauses[1].Label)

	assert.Equal(t, []model.EntityGroup{
		{Category: model.EntityParty, Values: []string{"Buyer"}},
		{Category: model.EntityDuration, Values: []string{"10 days"}},
		{Category: model.EntityMonetaryAmount, Values: []string{"$500"}},
	}, r.Entities)

	assert.Equal(t, model.Stats{Clauses: 2, Entities: 3, SkippedFields: 1}, r.Stats)
}

func TestAggregate_IsolatedFromInputs(t *testing.T) {
	doc, ann := fixture()
	r := Aggregate(Run{ID: "run-1", Finished: time.Now()}, doc, ann)

	ann.Clauses[1].Entities[0].Text = "changed"
	ann.Clauses[1].Label = "changed"
	doc.Source = "changed"

	assert.Equal(t, "Buyer", r.Clauses()[0].Entities[0].Text)
	assert.Equal(t, "payment", r.Clauses()[0].Label)
	assert.Equal(t, "contract.txt", r.Document.Source)
	assert.Empty(t, doc.Clauses[0].Label, "input document untouched")
}

func TestAggregate_Partial(t *testing.T) {
	doc, ann := fixture()
	failed := model.FieldState{Status: model.FieldFailed, Provider: "openai", Kind: model.ProviderTimeout, Error: "deadline"}
	ann.Clauses[0].Status.Simplify = failed
	ann.Clauses[0].Simplified = ""
	ann.ClassifyStatus = failed
	ann.Classification = ""

	r := Aggregate(Run{ID: "run-2", Finished: time.Now()}, doc, ann)

	assert.False(t, r.Complete)
	assert.Equal(t, 2, r.Stats.FailedFields)
	assert.Equal(t, 1, r.Stats.FailedClauses)
	assert.Equal(t, "Document classified as unclassified with 2 clauses extracted.", r.Summary)
	assert.Equal(t, model.ProviderTimeout, r.Clauses()[1].Status.Simplify.Kind)
}

func TestGroupEntities_Dedupes(t *testing.T) {
	clauses := []model.Clause{
		{Entities: []model.Entity{entity("Buyer", model.EntityParty, 0), entity("Seller", model.EntityParty, 10)}},
		{Entities: []model.Entity{entity("Buyer", model.EntityParty, 30), entity("$5", model.EntityMonetaryAmount, 40)}},
	}

	assert.Equal(t, []model.EntityGroup{
		{Category: model.EntityParty, Values: []string{"Buyer", "Seller"}},
		{Category: model.EntityMonetaryAmount, Values: []string{"$5"}},
	}, GroupEntities(clauses))

	assert.Empty(t, GroupEntities(nil))
}
