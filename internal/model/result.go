package model

import "time"

// AnalysisResult is the complete output of one analysis run.
// It is built once by the aggregator and never modified afterwards.
type AnalysisResult struct {
	ID         string    `json:"id"`          // Run ID (UUID)
	AnalyzedAt time.Time `json:"analyzed_at"` // When the run finished
	DurationMS int64     `json:"duration_ms"` // Wall time of the run
	Document   Document  `json:"document"`    // Document with annotated clauses

	Classification string     `json:"classification,omitempty"` // Document-level label
	ClassifyStatus FieldState `json:"classify_status"`          // Outcome of document classification

	Summary       string     `json:"summary"`                 // One-line description of the run
	PlainSummary  string     `json:"plain_summary,omitempty"` // Simplified whole-document text, when enabled
	SummaryStatus FieldState `json:"summary_status"`

	Entities []EntityGroup `json:"entities"` // Document-level entity index
	Stats    Stats         `json:"stats"`
	Complete bool          `json:"complete"` // True when no field failed
}

// Clauses returns the annotated clauses in document order
func (r *AnalysisResult) Clauses() []Clause {
	return r.Document.Clauses
}

// EntityGroup collects distinct entity texts of one category
type EntityGroup struct {
	Category EntityCategory `json:"category"`
	Values   []string       `json:"values"`
}

// Stats counts what happened during a run
type Stats struct {
	Clauses       int `json:"clauses"`
	Entities      int `json:"entities"`
	FailedFields  int `json:"failed_fields"`
	SkippedFields int `json:"skipped_fields"`
	FailedClauses int `json:"failed_clauses"`
}

// FieldStatus is the outcome of one capability call
type FieldStatus string

const (
	FieldPending FieldStatus = ""        // Not dispatched yet
	FieldOK      FieldStatus = "ok"      // Provider succeeded
	FieldFailed  FieldStatus = "failed"  // Provider returned an error
	FieldSkipped FieldStatus = "skipped" // Capability disabled
)

// FieldState records the outcome of a single field and why it failed
type FieldState struct {
	Status     FieldStatus       `json:"status"`
	Provider   string            `json:"provider,omitempty"`
	Kind       ProviderErrorKind `json:"error_kind,omitempty"`
	Error      string            `json:"error,omitempty"`
	DurationMS int64             `json:"duration_ms,omitempty"`
}

// OK reports whether the field succeeded
func (f FieldState) OK() bool {
	return f.Status == FieldOK
}
