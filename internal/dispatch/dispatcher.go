// Package dispatch fans capability calls out over the clauses of a document.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/clausewise/internal/model"
	"github.com/ppiankov/clausewise/internal/observability"
	"github.com/ppiankov/clausewise/internal/provider"
)

// Annotations are the dispatcher's output. Clauses are copies of the
// document's clauses, in the same order, with capability results filled in.
type Annotations struct {
	Clauses []model.Clause

	Classification string
	ClassifyStatus model.FieldState

	PlainSummary  string
	SummaryStatus model.FieldState
}

// Dispatcher runs simplify, entity recognition, and classification for every
// clause, plus classification (and optionally simplification) of the whole
// document. A failed call marks only its own field.
type Dispatcher struct {
	providers provider.Set
	cfg       model.DispatchConfig
	logger    *zap.Logger
	collector *observability.Collector
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithCollector sets the metrics collector
func WithCollector(c *observability.Collector) Option {
	return func(d *Dispatcher) {
		d.collector = c
	}
}

// New creates a dispatcher
func New(providers provider.Set, cfg model.DispatchConfig, opts ...Option) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	d := &Dispatcher{
		providers: providers,
		cfg:       cfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch annotates the clauses of doc. It fails only when ctx ends before
// every call has finished; provider failures are recorded per field.
func (d *Dispatcher) Dispatch(ctx context.Context, doc *model.Document) (*Annotations, error) {
	if err := ctx.Err(); err != nil {
		return nil, &model.StageError{Stage: model.StageDispatch, Err: err}
	}

	ann := &Annotations{Clauses: make([]model.Clause, len(doc.Clauses))}
	copy(ann.Clauses, doc.Clauses)

	start := time.Now()
	var g errgroup.Group
	g.SetLimit(d.cfg.Workers)

	// Tasks write to disjoint fields, so no locking is needed.
	schedule := func(task func()) bool {
		if ctx.Err() != nil {
			return false
		}
		g.Go(func() error {
			task()
			return nil
		})
		return true
	}

	d.scheduleDocument(ctx, doc, ann, schedule)
	for i := range ann.Clauses {
		d.scheduleClause(ctx, &ann.Clauses[i], schedule)
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, &model.StageError{Stage: model.StageDispatch, Err: err}
	}

	d.logger.Debug("dispatch finished",
		zap.String("document", doc.ID),
		zap.Int("clauses", len(ann.Clauses)),
		zap.Duration("duration", time.Since(start)))
	return ann, nil
}

func (d *Dispatcher) scheduleDocument(ctx context.Context, doc *model.Document, ann *Annotations, schedule func(func()) bool) {
	if c := d.providers.Classifier; d.cfg.ClassifyDocument && c != nil {
		schedule(func() {
			ann.Classification, ann.ClassifyStatus = call(ctx, d, c.Name(), model.CapabilityClassify, -1,
				func(ctx context.Context) (string, error) {
					return c.Classify(ctx, doc.Text, model.ScopeDocument)
				})
		})
	} else {
		ann.ClassifyStatus = skipped()
	}

	if s := d.providers.Simplifier; d.cfg.SimplifyDocument && s != nil {
		schedule(func() {
			ann.PlainSummary, ann.SummaryStatus = call(ctx, d, s.Name(), model.CapabilitySimplify, -1,
				func(ctx context.Context) (string, error) {
					return nonBlank(s.Simplify(ctx, doc.Text))
				})
		})
	} else {
		ann.SummaryStatus = skipped()
	}
}

func (d *Dispatcher) scheduleClause(ctx context.Context, clause *model.Clause, schedule func(func()) bool) {
	if s := d.providers.Simplifier; d.cfg.Simplify && s != nil {
		schedule(func() {
			clause.Simplified, clause.Status.Simplify = call(ctx, d, s.Name(), model.CapabilitySimplify, clause.Index,
				func(ctx context.Context) (string, error) {
					return nonBlank(s.Simplify(ctx, clause.Text))
				})
		})
	} else {
		clause.Status.Simplify = skipped()
	}

	if r := d.providers.EntityRecognizer; d.cfg.Entities && r != nil {
		schedule(func() {
			clause.Entities, clause.Status.Entities = call(ctx, d, r.Name(), model.CapabilityEntities, clause.Index,
				func(ctx context.Context) ([]model.Entity, error) {
					entities, err := r.RecognizeEntities(ctx, clause.Text)
					if err != nil {
						return nil, err
					}
					return rebase(entities, clause)
				})
		})
	} else {
		clause.Status.Entities = skipped()
	}

	if c := d.providers.Classifier; d.cfg.ClassifyClauses && c != nil {
		schedule(func() {
			clause.Label, clause.Status.Classify = call(ctx, d, c.Name(), model.CapabilityClassify, clause.Index,
				func(ctx context.Context) (string, error) {
					return c.Classify(ctx, clause.Text, model.ScopeClause)
				})
		})
	} else {
		clause.Status.Classify = skipped()
	}
}

// call runs fn under the per-call timeout and records the outcome.
// clauseIndex is -1 for document-level calls.
func call[T any](ctx context.Context, d *Dispatcher, name string, capability model.Capability, clauseIndex int, fn func(context.Context) (T, error)) (T, model.FieldState) {
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	v, err := bounded(callCtx, fn)
	elapsed := time.Since(start)

	state := model.FieldState{Provider: name, DurationMS: elapsed.Milliseconds()}
	if err == nil {
		state.Status = model.FieldOK
		d.collector.RecordProviderCall(name, string(capability), string(model.FieldOK), elapsed)
		return v, state
	}

	if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = &model.ProviderError{Provider: name, Capability: capability, Kind: model.ProviderTimeout,
			Err: fmt.Errorf("no response within %s: %w", d.cfg.CallTimeout, err)}
	}
	var perr *model.ProviderError
	if !errors.As(provider.Wrap(name, capability, err), &perr) {
		perr = &model.ProviderError{Provider: name, Capability: capability, Kind: model.ProviderFailed, Err: err}
	}

	state.Status = model.FieldFailed
	state.Kind = perr.Kind
	state.Error = perr.Err.Error()
	d.collector.RecordProviderCall(name, string(capability), string(perr.Kind), elapsed)

	d.logger.Warn("provider call failed",
		zap.String("provider", name),
		zap.String("capability", string(capability)),
		zap.Int("clause", clauseIndex),
		zap.String("kind", string(perr.Kind)),
		zap.Error(perr.Err))

	var zero T
	return zero, state
}

// bounded returns when fn does or when ctx ends, whichever comes first.
// A provider that ignores its context cannot hold up the run.
func bounded[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// nonBlank rejects an empty simplification so a successful field always
// carries text.
func nonBlank(text string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty simplification", provider.ErrMalformed)
	}
	return text, nil
}

// rebase moves entity spans from clause-relative to document offsets
func rebase(entities []model.Entity, clause *model.Clause) ([]model.Entity, error) {
	out := make([]model.Entity, 0, len(entities))
	for _, e := range entities {
		if e.Span.Start < 0 || e.Span.End > len(clause.Text) || e.Span.Start >= e.Span.End {
			return nil, fmt.Errorf("%w: entity %q has span [%d,%d) outside the clause",
				provider.ErrMalformed, e.Text, e.Span.Start, e.Span.End)
		}
		e.Span.Start += clause.Span.Start
		e.Span.End += clause.Span.Start
		out = append(out, e)
	}
	return out, nil
}

func skipped() model.FieldState {
	return model.FieldState{Status: model.FieldSkipped}
}
