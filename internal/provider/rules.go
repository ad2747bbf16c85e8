package provider

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ppiankov/clausewise/internal/model"
)

// RulesName is the name of the offline rules provider
const RulesName = "rules"

// RulesProvider serves every capability offline with substitution tables,
// entity patterns, and keyword scoring. It never calls the network.
type RulesProvider struct {
	taxonomy *Taxonomy
}

// NewRulesProvider creates a rules provider. A nil taxonomy uses the default.
func NewRulesProvider(taxonomy *Taxonomy) *RulesProvider {
	if taxonomy == nil {
		taxonomy = DefaultTaxonomy()
	}
	return &RulesProvider{taxonomy: taxonomy}
}

// Name returns the provider name
func (p *RulesProvider) Name() string {
	return RulesName
}

// Fingerprint identifies the rule set: answers change with the taxonomy
func (p *RulesProvider) Fingerprint() string {
	return RulesName + "/" + p.taxonomy.Fingerprint()
}

// Taxonomy returns the label sets used by Classify
func (p *RulesProvider) Taxonomy() *Taxonomy {
	return p.taxonomy
}

type substitution struct {
	pattern     *regexp.Regexp
	replacement string
}

// Phrases come before the single words they contain.
var substitutions = compileSubstitutions([][2]string{
	{"provided that", "on condition that"},
	{"subject to", "depending on"},
	{"in accordance with", "following"},
	{"for the purpose of", "to"},
	{"with respect to", "regarding"},
	{"prior to", "before"},
	{"subsequent to", "after"},
	{"hereby", "by this agreement"},
	{"whereas", "considering that"},
	{"aforesaid", "mentioned above"},
	{"hereinafter", "from now on"},
	{"notwithstanding", "despite"},
	{"terminate", "end"},
	{"cease", "stop"},
	{"commence", "begin"},
	{"obligation", "duty"},
	{"liability", "responsibility"},
	{"indemnify", "protect from loss"},
	{"breach", "violation"},
	{"remedy", "solution"},
})

func compileSubstitutions(pairs [][2]string) []substitution {
	subs := make([]substitution, 0, len(pairs))
	for _, p := range pairs {
		words := strings.Fields(regexp.QuoteMeta(p[0]))
		subs = append(subs, substitution{
			pattern:     regexp.MustCompile(`(?i)\b` + strings.Join(words, `\s+`) + `\b`),
			replacement: p[1],
		})
	}
	return subs
}

// maxSentenceWords is the length above which a simplified clause is broken
// into shorter sentences at commas and semicolons
const maxSentenceWords = 30

var sentenceBreaks = regexp.MustCompile(`\s*[,;]\s+`)

// Simplify replaces legalese with plain equivalents and shortens long sentences
func (p *RulesProvider) Simplify(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	out := strings.Join(strings.Fields(text), " ")
	for _, sub := range substitutions {
		out = sub.pattern.ReplaceAllStringFunc(out, func(match string) string {
			return matchCase(match, sub.replacement)
		})
	}

	if len(strings.Fields(out)) > maxSentenceWords {
		var parts []string
		for _, part := range sentenceBreaks.Split(out, -1) {
			if part = strings.TrimSpace(part); part != "" {
				parts = append(parts, capitalize(part))
			}
		}
		out = strings.Join(parts, ". ")
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", malformedf("nothing to simplify")
	}
	return out, nil
}

// matchCase capitalizes replacement when match starts with an upper-case letter
func matchCase(match, replacement string) string {
	r, _ := utf8.DecodeRuneInString(match)
	if unicode.IsUpper(r) {
		return capitalize(replacement)
	}
	return replacement
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

const monthNames = `January|February|March|April|May|June|July|August|September|October|November|December|Jan\.?|Feb\.?|Mar\.?|Apr\.?|Jun\.?|Jul\.?|Aug\.?|Sept?\.?|Oct\.?|Nov\.?|Dec\.?`

const numberWords = `\d+|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|fourteen|fifteen|twenty|thirty|forty-five|forty|sixty|ninety`

type entityPattern struct {
	category   model.EntityCategory
	pattern    *regexp.Regexp
	confidence float64
	group      int // Submatch holding the entity; 0 for the whole match
}

// Listed in priority order; on equal spans the earlier pattern wins.
var entityPatterns = []entityPattern{
	{
		category:   model.EntityMonetaryAmount,
		confidence: 0.95,
		pattern: regexp.MustCompile(`(?:\b(?:USD|EUR|GBP)\s?\d[\d,]*(?:\.\d+)?|[$€£]\s?(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d+)?)(?:\s(?:thousand|million|billion)\b)?` +
			`|\b\d[\d,]*(?:\.\d+)?\s(?:dollars|euros|pounds)\b`),
	},
	{
		category:   model.EntityPercentage,
		confidence: 0.95,
		pattern:    regexp.MustCompile(`\b\d+(?:\.\d+)?\s?(?:%|percent\b|per cent\b)`),
	},
	{
		category:   model.EntityDate,
		confidence: 0.9,
		pattern: regexp.MustCompile(`\b(?:\d{4}-\d{2}-\d{2}|\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4}` +
			`|(?:` + monthNames + `)\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}` +
			`|\d{1,2}(?:st|nd|rd|th)?\s+(?:day\s+of\s+)?(?:` + monthNames + `),?\s+\d{4})\b`),
	},
	{
		category:   model.EntityDuration,
		confidence: 0.9,
		pattern: regexp.MustCompile(`(?i)\b(?:` + numberWords + `)(?:\s+\(\d+\))?(?:\s+(?:business|calendar|working))?\s+(?:days?|weeks?|months?|years?)\b`),
	},
	{
		category:   model.EntityOrganization,
		confidence: 0.8,
		pattern:    regexp.MustCompile(`\b(?:[A-Z][\w&'-]*\s+){0,4}[A-Z][\w&'-]*,?\s+(?:Inc|LLC|Ltd|Corp|Corporation|Co|GmbH|LLP|PLC)\b\.?`),
	},
	{
		category:   model.EntityParty,
		confidence: 0.75,
		group:      1,
		pattern:    regexp.MustCompile(`\b(Disclosing Party|Receiving Party|Buyer|Seller|Purchaser|Vendor|Tenant|Landlord|Lessee|Lessor|Licensor|Licensee|Employer|Employee|Contractor|Consultant|Client|Customer|Supplier|Company|Partner)s?\b`),
	},
	{
		category:   model.EntityPerson,
		confidence: 0.7,
		pattern:    regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr|Prof)\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?\b`),
	},
	{
		category:   model.EntityLocation,
		confidence: 0.7,
		pattern:    regexp.MustCompile(`\b(?:State|Commonwealth|Province|County|City) of [A-Z][a-z]+(?:\s+[A-Z][a-z]+)?\b`),
	},
}

type entityCandidate struct {
	entity   model.Entity
	priority int
}

// RecognizeEntities finds entities with the pattern table. Overlapping
// matches resolve to the earliest, then the longest, then the higher priority.
func (p *RulesProvider) RecognizeEntities(ctx context.Context, text string) ([]model.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var candidates []entityCandidate
	for priority, ep := range entityPatterns {
		for _, m := range ep.pattern.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[2*ep.group], m[2*ep.group+1]
			if start < 0 {
				continue
			}
			if ep.category == model.EntityOrganization {
				start = trimArticle(text, start, end)
			}
			candidates = append(candidates, entityCandidate{
				entity: model.Entity{
					Text:       text[start:end],
					Category:   ep.category,
					Span:       model.Span{Start: start, End: end},
					Confidence: ep.confidence,
				},
				priority: priority,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].entity.Span, candidates[j].entity.Span
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.Len() != b.Len() {
			return a.Len() > b.Len()
		}
		return candidates[i].priority < candidates[j].priority
	})

	entities := make([]model.Entity, 0, len(candidates))
	lastEnd := -1
	for _, c := range candidates {
		if c.entity.Span.Start < lastEnd {
			continue
		}
		entities = append(entities, c.entity)
		lastEnd = c.entity.Span.End
	}
	return entities, nil
}

// trimArticle skips a leading "The " inside an organization match
func trimArticle(text string, start, end int) int {
	if end-start > 4 && (strings.HasPrefix(text[start:end], "The ") || strings.HasPrefix(text[start:end], "THE ")) {
		return start + 4
	}
	return start
}

// Classify scores the text against the taxonomy of the scope
func (p *RulesProvider) Classify(ctx context.Context, text string, scope model.Scope) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.taxonomy.Score(text, scope), nil
}
