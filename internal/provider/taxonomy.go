package provider

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/clausewise/internal/model"
)

// LabelRule scores one label by keyword occurrences
type LabelRule struct {
	Label    string   `yaml:"label"`
	Keywords []string `yaml:"keywords"`
}

// Taxonomy defines the document and clause label sets and the keywords the
// rules classifier scores them with. Rules are ordered; ties go to the earlier rule.
type Taxonomy struct {
	Documents        []LabelRule `yaml:"documents"`
	Clauses          []LabelRule `yaml:"clauses"`
	DocumentFallback string      `yaml:"document_fallback"`
	ClauseFallback   string      `yaml:"clause_fallback"`

	compiled map[model.Scope][]compiledRule
}

type compiledRule struct {
	label    string
	patterns []*regexp.Regexp
}

// DefaultTaxonomy returns the built-in label sets
func DefaultTaxonomy() *Taxonomy {
	t := &Taxonomy{
		Documents: []LabelRule{
			{Label: LabelNDA, Keywords: []string{"confidential", "confidentiality", "non-disclosure", "nondisclosure", "trade secret", "trade secrets", "proprietary", "disclosing party", "receiving party"}},
			{Label: LabelLeaseAgreement, Keywords: []string{"lease", "tenant", "landlord", "rent", "premises", "lessee", "lessor", "security deposit"}},
			{Label: LabelEmploymentContract, Keywords: []string{"employment", "employee", "employer", "salary", "wages", "job title", "benefits", "probationary period"}},
			{Label: LabelServiceAgreement, Keywords: []string{"service", "services", "service provider", "client", "deliverables", "scope of work", "statement of work"}},
			{Label: LabelSalesContract, Keywords: []string{"buyer", "seller", "purchase", "purchaser", "sale", "goods", "delivery", "purchase price"}},
			{Label: LabelLicenseAgreement, Keywords: []string{"license", "licensor", "licensee", "royalty", "royalties", "sublicense", "intellectual property"}},
			{Label: LabelPartnershipAgreement, Keywords: []string{"partnership", "partner", "partners", "capital contribution", "profits and losses"}},
		},
		Clauses: []LabelRule{
			{Label: LabelPayment, Keywords: []string{"pay", "pays", "paid", "payment", "payments", "payable", "fee", "fees", "price", "invoice", "invoices", "compensation", "salary", "rent"}},
			{Label: LabelDelivery, Keywords: []string{"deliver", "delivers", "delivered", "delivery", "shipment", "ship", "shipped", "shipping"}},
			{Label: LabelTermination, Keywords: []string{"terminate", "terminates", "terminated", "termination", "cancel", "cancellation", "expire", "expiry"}},
			{Label: LabelConfidentiality, Keywords: []string{"confidential", "confidentiality", "disclose", "disclosure", "non-disclosure", "secret", "secrets"}},
			{Label: LabelLiability, Keywords: []string{"liable", "liability", "indemnify", "indemnification", "damages", "warranty", "warranties"}},
			{Label: LabelGoverningLaw, Keywords: []string{"governing law", "governed by", "jurisdiction", "court", "courts", "laws of", "arbitration"}},
			{Label: LabelTerm, Keywords: []string{"term", "duration", "effective date", "commence", "commencement", "renew", "renewal"}},
			{Label: LabelDefinitions, Keywords: []string{"means", "shall mean", "defined", "definitions", "refers to"}},
			{Label: LabelObligation, Keywords: []string{"shall", "must", "agrees", "is required", "undertakes"}},
		},
		DocumentFallback: LabelOther,
		ClauseFallback:   LabelGeneral,
	}
	t.compile()
	return t
}

// LoadTaxonomy reads a taxonomy from a YAML file
func LoadTaxonomy(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}

	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, fmt.Errorf("taxonomy %s: %w", path, err)
	}

	t.compile()
	return &t, nil
}

func (t *Taxonomy) validate() error {
	if t.DocumentFallback == "" || t.ClauseFallback == "" {
		return fmt.Errorf("document_fallback and clause_fallback are required")
	}
	for scope, rules := range map[string][]LabelRule{"documents": t.Documents, "clauses": t.Clauses} {
		seen := make(map[string]bool)
		for i, r := range rules {
			if r.Label == "" {
				return fmt.Errorf("%s[%d]: empty label", scope, i)
			}
			if seen[r.Label] {
				return fmt.Errorf("%s: duplicate label %q", scope, r.Label)
			}
			seen[r.Label] = true
		}
	}
	return nil
}

// Fingerprint is a short hash of the label sets, keywords, and fallbacks
func (t *Taxonomy) Fingerprint() string {
	data, err := yaml.Marshal(t)
	if err != nil {
		// Only exported string fields are marshalled; this cannot fail
		return "taxonomy"
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

func (t *Taxonomy) compile() {
	t.compiled = map[model.Scope][]compiledRule{
		model.ScopeDocument: compileRules(t.Documents),
		model.ScopeClause:   compileRules(t.Clauses),
	}
}

func compileRules(rules []LabelRule) []compiledRule {
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		cr := compiledRule{label: r.Label}
		for _, kw := range r.Keywords {
			kw = strings.TrimSpace(kw)
			if kw == "" {
				continue
			}
			words := strings.Fields(regexp.QuoteMeta(kw))
			cr.patterns = append(cr.patterns, regexp.MustCompile(`(?i)\b`+strings.Join(words, `\s+`)+`\b`))
		}
		out = append(out, cr)
	}
	return out
}

// Labels returns every label of the scope, fallback last
func (t *Taxonomy) Labels(scope model.Scope) []string {
	rules, fallback := t.rules(scope)
	labels := make([]string, 0, len(rules)+1)
	for _, r := range rules {
		labels = append(labels, r.Label)
	}
	return append(labels, fallback)
}

// Contains reports whether label belongs to the scope's label set
func (t *Taxonomy) Contains(scope model.Scope, label string) bool {
	for _, l := range t.Labels(scope) {
		if l == label {
			return true
		}
	}
	return false
}

// Score picks the label whose keywords occur most often in text.
// With no keyword hits the scope's fallback label is returned.
func (t *Taxonomy) Score(text string, scope model.Scope) string {
	_, fallback := t.rules(scope)

	best, bestScore := fallback, 0
	for _, cr := range t.compiled[scope] {
		score := 0
		for _, p := range cr.patterns {
			score += len(p.FindAllStringIndex(text, -1))
		}
		if score > bestScore {
			best, bestScore = cr.label, score
		}
	}
	return best
}

func (t *Taxonomy) rules(scope model.Scope) ([]LabelRule, string) {
	if scope == model.ScopeDocument {
		return t.Documents, t.DocumentFallback
	}
	return t.Clauses, t.ClauseFallback
}
