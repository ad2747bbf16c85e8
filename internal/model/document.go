package model

import "time"

// Format identifies the source format of a loaded document
type Format string

const (
	FormatText Format = "txt"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatHTML Format = "html"
)

// Document is a loaded legal document. Text is never modified after loading;
// annotations live on the clauses.
type Document struct {
	ID       string    `json:"id"`                // ULID assigned at load time
	Source   string    `json:"source"`            // File path, URL, or upload name
	Format   Format    `json:"format"`            // Source format
	Text     string    `json:"text"`              // Normalized raw text
	LoadedAt time.Time `json:"loaded_at"`         // When the document was loaded
	Clauses  []Clause  `json:"clauses,omitempty"` // Filled by the segmenter
}

// Span is a half-open byte range [Start, End) into Document.Text
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes covered by the span
func (s Span) Len() int {
	return s.End - s.Start
}

// Clause is one contiguous unit of the document text
type Clause struct {
	DocumentID string `json:"document_id"`      // Back-reference to the owning document
	Index      int    `json:"index"`            // Position in document order (0-based)
	Number     string `json:"number,omitempty"` // Enumerator label, e.g. "1", "(a)", "Section 3"
	Span       Span   `json:"span"`
	Text       string `json:"text"`

	Simplified string   `json:"simplified,omitempty"`
	Entities   []Entity `json:"entities,omitempty"`
	Label      string   `json:"label,omitempty"`

	Status ClauseStatus `json:"status"`
}

// ClauseStatus tracks the outcome of each capability for one clause
type ClauseStatus struct {
	Simplify FieldState `json:"simplify"`
	Entities FieldState `json:"entities"`
	Classify FieldState `json:"classify"`
}

// Failed reports how many fields of the clause failed
func (s ClauseStatus) Failed() int {
	n := 0
	for _, f := range []FieldState{s.Simplify, s.Entities, s.Classify} {
		if f.Status == FieldFailed {
			n++
		}
	}
	return n
}

// EntityCategory labels the kind of a recognized entity
type EntityCategory string

const (
	EntityParty          EntityCategory = "PARTY"
	EntityOrganization   EntityCategory = "ORGANIZATION"
	EntityPerson         EntityCategory = "PERSON"
	EntityDate           EntityCategory = "DATE"
	EntityDuration       EntityCategory = "DURATION"
	EntityMonetaryAmount EntityCategory = "MONETARY_AMOUNT"
	EntityPercentage     EntityCategory = "PERCENTAGE"
	EntityLocation       EntityCategory = "LOCATION"
)

// KnownEntityCategories lists every category a provider may emit
var KnownEntityCategories = []EntityCategory{
	EntityParty,
	EntityOrganization,
	EntityPerson,
	EntityDate,
	EntityDuration,
	EntityMonetaryAmount,
	EntityPercentage,
	EntityLocation,
}

// IsKnownEntityCategory reports whether c is part of the entity taxonomy
func IsKnownEntityCategory(c EntityCategory) bool {
	for _, k := range KnownEntityCategories {
		if k == c {
			return true
		}
	}
	return false
}

// Entity is a categorized span of text. Span offsets are relative to the text
// passed to the recognizer; the dispatcher rebases them onto Document.Text.
type Entity struct {
	Text       string         `json:"text"`
	Category   EntityCategory `json:"category"`
	Span       Span           `json:"span"`
	Confidence float64        `json:"confidence"`
}

// Scope tells a classifier whether it labels a whole document or one clause
type Scope string

const (
	ScopeDocument Scope = "document"
	ScopeClause   Scope = "clause"
)
