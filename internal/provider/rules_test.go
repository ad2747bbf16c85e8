package provider

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/clausewise/internal/model"
)

func entityTexts(entities []model.Entity, category model.EntityCategory) []string {
	var out []string
	for _, e := range entities {
		if e.Category == category {
			out = append(out, e.Text)
		}
	}
	return out
}

func TestRulesSimplify(t *testing.T) {
	p := NewRulesProvider(nil)
	ctx := context.Background()

	tests := []struct {
		in   string
		want string
	}{
		{"The Tenant hereby agrees to pay rent prior to the first day.", "The Tenant by this agreement agrees to pay rent before the first day."},
		{"Notwithstanding the foregoing, either party may terminate.", "Despite the foregoing, either party may end."},
		{"Payment is due   subject to\napproval.", "Payment is due depending on approval."},
		{"The Buyer shall pay $500.", "The Buyer shall pay $500."},
	}
	for _, tt := range tests {
		got, err := p.Simplify(ctx, tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestRulesSimplify_SplitsLongSentences(t *testing.T) {
	p := NewRulesProvider(nil)

	long := "The Seller shall deliver the goods to the Buyer at the address stated above, " +
		"in good condition and properly packaged, together with all documents required for import; " +
		"and the Buyer shall inspect the goods within five days of receipt."
	require.Greater(t, len(strings.Fields(long)), maxSentenceWords)

	got, err := p.Simplify(context.Background(), long)
	require.NoError(t, err)
	assert.Equal(t, "The Seller shall deliver the goods to the Buyer at the address stated above. "+
		"In good condition and properly packaged. "+
		"Together with all documents required for import. "+
		"And the Buyer shall inspect the goods within five days of receipt.", got)
}

func TestRulesSimplify_Empty(t *testing.T) {
	_, err := NewRulesProvider(nil).Simplify(context.Background(), "  \n ")
	require.Error(t, err)
	assert.Equal(t, model.ProviderMalformed, Classify(err))
}

func TestRulesRecognizeEntities(t *testing.T) {
	p := NewRulesProvider(nil)
	text := "The Buyer shall pay $1,250.50 to Acme Widgets Inc. within thirty (30) days after January 5, 2024, " +
		"plus interest of 1.5% per month. This Agreement is governed by the laws of the State of New York. " +
		"Notices go to Ms. Jane Doe. The fee is EUR 300 and late fees are 20 dollars."

	entities, err := p.RecognizeEntities(context.Background(), text)
	require.NoError(t, err)

	assert.Equal(t, []string{"$1,250.50", "EUR 300", "20 dollars"}, entityTexts(entities, model.EntityMonetaryAmount))
	assert.Equal(t, []string{"1.5%"}, entityTexts(entities, model.EntityPercentage))
	assert.Equal(t, []string{"thirty (30) days"}, entityTexts(entities, model.EntityDuration))
	assert.Equal(t, []string{"January 5, 2024"}, entityTexts(entities, model.EntityDate))
	assert.Equal(t, []string{"Acme Widgets Inc."}, entityTexts(entities, model.EntityOrganization))
	assert.Equal(t, []string{"Buyer"}, entityTexts(entities, model.EntityParty))
	assert.Equal(t, []string{"Ms. Jane Doe"}, entityTexts(entities, model.EntityPerson))
	assert.Equal(t, []string{"State of New York"}, entityTexts(entities, model.EntityLocation))

	lastEnd := 0
	for _, e := range entities {
		assert.Equal(t, e.Text, text[e.Span.Start:e.Span.End], "span matches text")
		assert.GreaterOrEqual(t, e.Span.Start, lastEnd, "ordered and non-overlapping")
		assert.True(t, e.Confidence > 0 && e.Confidence <= 1)
		lastEnd = e.Span.End
	}
}

func TestRulesRecognizeEntities_Example(t *testing.T) {
	p := NewRulesProvider(nil)

	entities, err := p.RecognizeEntities(context.Background(), "2. Delivery occurs within 10 days.")
	require.NoError(t, err)
	assert.Equal(t, []string{"10 days"}, entityTexts(entities, model.EntityDuration))

	entities, err = p.RecognizeEntities(context.Background(), "1. The Buyer shall pay $500.")
	require.NoError(t, err)
	assert.Equal(t, []string{"$500"}, entityTexts(entities, model.EntityMonetaryAmount))
}

func TestRulesRecognizeEntities_None(t *testing.T) {
	entities, err := NewRulesProvider(nil).RecognizeEntities(context.Background(), "nothing to see here")
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestRulesClassify(t *testing.T) {
	p := NewRulesProvider(nil)
	ctx := context.Background()

	tests := []struct {
		text  string
		scope model.Scope
		want  string
	}{
		{"1. The Buyer shall pay $500. 2. Delivery occurs within 10 days.", model.ScopeDocument, LabelSalesContract},
		{"The Tenant shall pay rent to the Landlord for the premises.", model.ScopeDocument, LabelLeaseAgreement},
		{"The Receiving Party shall keep all Confidential Information confidential.", model.ScopeDocument, LabelNDA},
		{"Lorem ipsum dolor sit amet.", model.ScopeDocument, LabelOther},
		{"1. The Buyer shall pay $500.", model.ScopeClause, LabelPayment},
		{"2. Delivery occurs within 10 days.", model.ScopeClause, LabelDelivery},
		{"Either party may terminate this Agreement on notice.", model.ScopeClause, LabelTermination},
		{"This Agreement is governed by the laws of Delaware.", model.ScopeClause, LabelGoverningLaw},
		{"The Contractor shall keep records.", model.ScopeClause, LabelObligation},
		{"Headings are for convenience only.", model.ScopeClause, LabelGeneral},
	}
	for _, tt := range tests {
		got, err := p.Classify(ctx, tt.text, tt.scope)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.text)
	}
}

func TestRules_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewRulesProvider(nil)
	_, err := p.Simplify(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = p.Classify(ctx, "text", model.ScopeClause)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadTaxonomy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
documents:
  - label: loan_agreement
    keywords: [loan, borrower, lender, principal]
clauses:
  - label: interest
    keywords: [interest, "annual rate"]
document_fallback: other
clause_fallback: general
`), 0o644))

	tax, err := LoadTaxonomy(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"loan_agreement", "other"}, tax.Labels(model.ScopeDocument))
	assert.True(t, tax.Contains(model.ScopeClause, "general"))
	assert.False(t, tax.Contains(model.ScopeClause, "payment"))

	p := NewRulesProvider(tax)
	label, err := p.Classify(context.Background(), "The Borrower repays the loan to the Lender.", model.ScopeDocument)
	require.NoError(t, err)
	assert.Equal(t, "loan_agreement", label)

	label, err = p.Classify(context.Background(), "The annual   rate is fixed.", model.ScopeClause)
	require.NoError(t, err)
	assert.Equal(t, "interest", label)
}

func TestLoadTaxonomy_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadTaxonomy(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	noFallback := filepath.Join(dir, "nofallback.yaml")
	require.NoError(t, os.WriteFile(noFallback, []byte("documents: []\n"), 0o644))
	_, err = LoadTaxonomy(noFallback)
	assert.ErrorContains(t, err, "fallback")

	dup := filepath.Join(dir, "dup.yaml")
	require.NoError(t, os.WriteFile(dup, []byte(`
clauses:
  - label: a
  - label: a
document_fallback: other
clause_fallback: general
`), 0o644))
	_, err = LoadTaxonomy(dup)
	assert.ErrorContains(t, err, "duplicate")
}
