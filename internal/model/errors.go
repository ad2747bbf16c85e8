package model

import (
	"errors"
	"fmt"
)

// Stage names a step of the analysis pipeline
type Stage string

const (
	StageLoad      Stage = "load"
	StageSegment   Stage = "segment"
	StageDispatch  Stage = "dispatch"
	StageAggregate Stage = "aggregate"
)

// ErrEmptyDocument is returned when a document has no text to segment
var ErrEmptyDocument = errors.New("document has no text")

// StageError wraps a fatal error with the pipeline stage that produced it
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// LoadErrorKind classifies document loading failures
type LoadErrorKind string

const (
	LoadUnreadable  LoadErrorKind = "unreadable"  // File missing, permission denied, fetch failed
	LoadUnsupported LoadErrorKind = "unsupported" // No loader for the format
	LoadCorrupt     LoadErrorKind = "corrupt"     // Loader could not parse the content
)

// LoadError is returned by the document loader
type LoadError struct {
	Source string
	Format Format
	Kind   LoadErrorKind
	Err    error
}

func (e *LoadError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("load %s (%s): %s: %v", e.Source, e.Format, e.Kind, e.Err)
	}
	return fmt.Sprintf("load %s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// SegmentationError is returned when text cannot be split into clauses
type SegmentationError struct {
	Reason string
	Err    error
}

func (e *SegmentationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("segmentation: %s: %v", e.Reason, e.Err)
	}
	return "segmentation: " + e.Reason
}

func (e *SegmentationError) Unwrap() error {
	return e.Err
}

// Capability names one of the provider functions
type Capability string

const (
	CapabilitySimplify Capability = "simplify"
	CapabilityEntities Capability = "entities"
	CapabilityClassify Capability = "classify"
)

// ProviderErrorKind classifies capability provider failures
type ProviderErrorKind string

const (
	ProviderTimeout     ProviderErrorKind = "timeout"
	ProviderQuota       ProviderErrorKind = "quota"
	ProviderMalformed   ProviderErrorKind = "malformed"
	ProviderUnavailable ProviderErrorKind = "unavailable"
	ProviderFailed      ProviderErrorKind = "failed"
)

// ProviderError is a non-fatal failure of a single capability call
type ProviderError struct {
	Provider   string
	Capability Capability
	Kind       ProviderErrorKind
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Capability, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// StageOf returns the pipeline stage recorded in err, or "" if none
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
