package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ppiankov/clausewise/internal/model"
	"github.com/ppiankov/clausewise/internal/observability"
	"github.com/ppiankov/clausewise/internal/pipeline"
	"github.com/ppiankov/clausewise/internal/store"
)

// providerFlags are shared by the commands that run analyses
type providerFlags struct {
	provider         string
	noCache          bool
	simplifyDocument bool
	workers          int
}

// apply overrides cfg with the flags that were set
func (f *providerFlags) apply(cfg *model.Config) {
	if f.provider != "" {
		name := strings.ToLower(f.provider)
		cfg.Providers.Simplifier = name
		cfg.Providers.EntityRecognizer = name
		cfg.Providers.Classifier = name
	}
	if f.noCache {
		cfg.Cache.Enabled = false
	}
	if f.simplifyDocument {
		cfg.Dispatch.SimplifyDocument = true
	}
	if f.workers > 0 {
		cfg.Dispatch.Workers = f.workers
	}
}

func newAnalyzer(cfg *model.Config, collector *observability.Collector) (*pipeline.Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a, err := pipeline.NewAnalyzer(cfg,
		pipeline.WithLogger(logger),
		pipeline.WithCollector(collector))
	if err != nil {
		return nil, fmt.Errorf("create analyzer: %w", err)
	}
	return a, nil
}

// openStore opens the result store, or returns nil when none is configured
func openStore(ctx context.Context, cfg *model.Config) (*store.SQLiteStore, error) {
	if cfg.Store.Path == "" {
		return nil, nil
	}
	st, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Store.Path, err)
	}
	return st, nil
}

var filenameReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	" ", "-",
)

// sanitizeFilename turns a document source into a safe report file stem
func sanitizeFilename(source string) string {
	s := source
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	} else {
		s = filepath.Base(s)
	}
	s = strings.TrimSuffix(s, filepath.Ext(s))
	s = strings.Trim(filenameReplacer.Replace(s), "._-")

	if len(s) > 100 {
		s = s[:100]
	}
	if s == "" {
		s = "document"
	}
	return s
}
