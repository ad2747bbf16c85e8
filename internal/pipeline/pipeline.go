// Package pipeline runs a document through load, segmentation, dispatch, and aggregation.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/clausewise/internal/aggregate"
	"github.com/ppiankov/clausewise/internal/cache"
	"github.com/ppiankov/clausewise/internal/dispatch"
	"github.com/ppiankov/clausewise/internal/load"
	"github.com/ppiankov/clausewise/internal/model"
	"github.com/ppiankov/clausewise/internal/observability"
	"github.com/ppiankov/clausewise/internal/provider"
	"github.com/ppiankov/clausewise/internal/segment"
)

// Analyzer orchestrates the complete analysis. Build it once and reuse it;
// it holds no per-run state and is safe for concurrent use.
type Analyzer struct {
	config     *model.Config
	registry   *load.Registry
	segmenter  *segment.Segmenter
	dispatcher *dispatch.Dispatcher
	providers  *provider.Set
	logger     *zap.Logger
	collector  *observability.Collector
	now        func() time.Time
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithProviders injects the capability providers instead of building them from config
func WithProviders(set provider.Set) Option {
	return func(a *Analyzer) {
		a.providers = &set
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithCollector sets the metrics collector
func WithCollector(c *observability.Collector) Option {
	return func(a *Analyzer) {
		a.collector = c
	}
}

// WithRegistry replaces the loader registry
func WithRegistry(r *load.Registry) Option {
	return func(a *Analyzer) {
		a.registry = r
	}
}

// WithClock sets the time source used for run timestamps
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAnalyzer creates an analyzer with the given configuration
func NewAnalyzer(cfg *model.Config, opts ...Option) (*Analyzer, error) {
	a := &Analyzer{
		config: cfg,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.registry == nil {
		a.registry = load.NewRegistry(cfg.Load, a.logger)
	}
	if a.providers == nil {
		set, err := provider.NewSet(cfg, provider.Deps{
			Logger:    a.logger,
			Collector: a.collector,
			Cache:     cache.New(cfg.Cache),
		})
		if err != nil {
			return nil, fmt.Errorf("build providers: %w", err)
		}
		a.providers = &set
	}

	a.segmenter = segment.New(cfg.Segment)
	a.dispatcher = dispatch.New(*a.providers, cfg.Dispatch,
		dispatch.WithLogger(a.logger),
		dispatch.WithCollector(a.collector))

	return a, nil
}

// Providers returns the capability providers in use
func (a *Analyzer) Providers() provider.Set {
	return *a.providers
}

// Formats lists the accepted document format names
func (a *Analyzer) Formats() []string {
	return a.registry.Formats()
}

// Analyze loads source as a URL or file path and analyzes it
func (a *Analyzer) Analyze(ctx context.Context, source string) (*model.AnalysisResult, error) {
	if load.IsURL(source) {
		return a.AnalyzeURL(ctx, source, "")
	}
	return a.AnalyzeFile(ctx, source, "")
}

// AnalyzeFile analyzes a document on disk. format may be empty to detect it.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path, format string) (*model.AnalysisResult, error) {
	start := a.now()
	doc, err := a.registry.LoadFile(ctx, path, format)
	if err != nil {
		return nil, a.fail(model.StageLoad, err)
	}
	return a.run(ctx, doc, start)
}

// AnalyzeURL fetches and analyzes a document
func (a *Analyzer) AnalyzeURL(ctx context.Context, rawURL, format string) (*model.AnalysisResult, error) {
	start := a.now()
	doc, err := a.registry.LoadURL(ctx, rawURL, format)
	if err != nil {
		return nil, a.fail(model.StageLoad, err)
	}
	return a.run(ctx, doc, start)
}

// AnalyzeReader analyzes a document read from r. size may be -1 when unknown.
func (a *Analyzer) AnalyzeReader(ctx context.Context, name string, r io.Reader, size int64, format string) (*model.AnalysisResult, error) {
	start := a.now()

	var declared model.Format
	if format != "" {
		f, ok := load.ParseFormat(format)
		if !ok {
			return nil, a.fail(model.StageLoad, &model.LoadError{Source: name, Kind: model.LoadUnsupported,
				Err: fmt.Errorf("unsupported format %q (supported: %s)", format, strings.Join(a.registry.Formats(), ", "))})
		}
		declared = f
	}

	doc, err := a.registry.Load(ctx, load.Source{Name: name, Format: declared, Reader: r, Size: size})
	if err != nil {
		return nil, a.fail(model.StageLoad, err)
	}
	return a.run(ctx, doc, start)
}

// AnalyzeText analyzes plain text
func (a *Analyzer) AnalyzeText(ctx context.Context, name, text string) (*model.AnalysisResult, error) {
	return a.AnalyzeReader(ctx, name, strings.NewReader(text), int64(len(text)), string(model.FormatText))
}

func (a *Analyzer) run(ctx context.Context, doc *model.Document, start time.Time) (*model.AnalysisResult, error) {
	logger := a.logger.With(zap.String("document", doc.ID), zap.String("source", doc.Source))

	// 1. Segment
	clauses, err := a.segmenter.Segment(doc)
	if err != nil {
		return nil, a.fail(model.StageSegment, err)
	}
	if a.config.Segment.Verify {
		if err := segment.Verify(doc.Text, clauses); err != nil {
			return nil, a.fail(model.StageSegment, &model.SegmentationError{Reason: "verification failed", Err: err})
		}
	}
	doc.Clauses = clauses
	logger.Debug("document segmented", zap.Int("clauses", len(clauses)))

	// 2. Dispatch capability calls
	ann, err := a.dispatcher.Dispatch(ctx, doc)
	if err != nil {
		return nil, a.fail(model.StageDispatch, err)
	}

	// 3. Aggregate
	finished := a.now()
	result := aggregate.Aggregate(aggregate.Run{
		ID:       uuid.NewString(),
		Finished: finished,
		Duration: finished.Sub(start),
	}, doc, ann)

	status := "complete"
	if !result.Complete {
		status = "partial"
	}
	a.collector.RecordDocument(status, result.Stats.Clauses)

	logger.Info("analysis finished",
		zap.String("run", result.ID),
		zap.String("classification", result.Classification),
		zap.Int("clauses", result.Stats.Clauses),
		zap.Int("entities", result.Stats.Entities),
		zap.Int("failed_fields", result.Stats.FailedFields),
		zap.Duration("duration", finished.Sub(start)))

	return result, nil
}

// fail wraps err with the stage that produced it, unless it already names one
func (a *Analyzer) fail(stage model.Stage, err error) error {
	a.collector.RecordDocument("failed", 0)
	if model.StageOf(err) == "" {
		err = &model.StageError{Stage: stage, Err: err}
	}
	a.logger.Warn("analysis failed", zap.String("stage", string(model.StageOf(err))), zap.Error(err))
	return err
}
