// Package ingest runs the per-source sync: load ledger keys, extract,
// deduplicate, append and render the output window.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/lysyi3m/rss-ledger/app/database"
	"github.com/lysyi3m/rss-ledger/app/extract"
	"github.com/lysyi3m/rss-ledger/app/feed"
	"github.com/lysyi3m/rss-ledger/app/ledger"
	"github.com/lysyi3m/rss-ledger/app/metrics"
)

const (
	StatusAppended  = "appended"
	StatusUnchanged = "unchanged"
	StatusFailed    = "failed"
)

// Result describes one source's run.
type Result struct {
	Source     string
	Existing   int // keys in the ledger before extraction
	Candidates int // records left after the inclusion filter
	Appended   int
	Migrated   int
	Rendered   bool
	WindowSize int
	Err        error // extraction failure; the ledger was left untouched
	Duration   time.Duration
}

func (r *Result) Status() string {
	switch {
	case r.Err != nil:
		return StatusFailed
	case r.Appended > 0:
		return StatusAppended
	default:
		return StatusUnchanged
	}
}

type Engine struct {
	registry  *extract.Registry
	filterer  *feed.Filterer
	generator *feed.Generator
	runs      database.RunRepository
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Engine)

// WithJournal records every run in the run journal.
func WithJournal(runs database.RunRepository) Option {
	return func(e *Engine) {
		e.runs = runs
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(registry *extract.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:  registry,
		filterer:  feed.NewFilterer(),
		generator: feed.NewGenerator(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sync brings one source's ledger and output document up to date.
//
// Extraction failures are reported in Result.Err with a nil error; the
// ledger and output are left as they were. Storage failures are returned.
func (e *Engine) Sync(ctx context.Context, src *feed.Source) (*Result, error) {
	start := e.now()
	res := &Result{Source: src.Name}
	defer func() { res.Duration = e.now().Sub(start) }()

	logger := slog.With("source", src.Name)

	store := ledger.NewStore(src.LedgerPath, src.Fields)
	unlock, err := store.Lock()
	if err != nil {
		return res, err
	}
	defer unlock()

	migrated, err := e.migrate(store, src)
	if err != nil {
		return res, err
	}
	res.Migrated = migrated

	keyFn := src.KeyFunc()
	keys, err := store.LoadKeys(keyFn)
	if err != nil {
		return res, err
	}
	res.Existing = len(keys)

	extractor, err := e.registry.For(src.Type)
	if err != nil {
		res.Err = err
		logger.Error("No extractor for source", "type", src.Type, "error", err)
		return res, nil
	}

	candidates, err := extractor.Extract(ctx, src)
	if err != nil {
		res.Err = err
		logger.Error("Extraction failed, skipping append and render",
			"kind", extract.Kind(err),
			"error", err)
		return res, nil
	}

	extracted := len(candidates)
	candidates = e.filterer.Run(candidates, src.Include)
	res.Candidates = len(candidates)

	accepted := accept(candidates, keys, keyFn)

	logger.Info("Extracted candidates",
		"existing", res.Existing,
		"extracted", extracted,
		"candidates", res.Candidates,
		"new", len(accepted))

	if len(accepted) == 0 {
		missing, err := outputMissing(src.OutputPath)
		if err != nil {
			return res, err
		}
		if !missing || res.Existing == 0 {
			logger.Info("No new records, skipping append and render")
			return res, nil
		}
		logger.Info("No new records but output is missing, rendering")
	} else {
		if enricher, ok := extractor.(extract.Enricher); ok {
			enricher.Enrich(ctx, src, accepted)
		}

		if err := store.Append(accepted); err != nil {
			return res, err
		}
		res.Appended = len(accepted)
		logger.Info("Appended records", "count", res.Appended)
	}

	size, err := e.render(store, src)
	if err != nil {
		return res, err
	}
	res.Rendered = true
	res.WindowSize = size
	logger.Info("Rendered output", "path", src.OutputPath, "items", size)

	return res, nil
}

// accept drops records without link or key and records whose key is
// already known. Accepted keys join the set at once, so duplicates within
// one extraction are dropped as well.
func accept(candidates []ledger.Record, keys map[string]struct{}, keyFn ledger.KeyFunc) []ledger.Record {
	var accepted []ledger.Record
	for _, record := range candidates {
		if record.Link() == "" {
			continue
		}
		key := keyFn(record)
		if key == "" {
			continue
		}
		if _, seen := keys[key]; seen {
			continue
		}
		keys[key] = struct{}{}
		accepted = append(accepted, record)
	}
	return accepted
}

func (e *Engine) render(store *ledger.Store, src *feed.Source) (int, error) {
	window := src.Settings.Window
	if window <= 0 {
		window = feed.DefaultWindow
	}

	newest, err := store.ReadNewest(window)
	if err != nil {
		return 0, err
	}
	records := feed.Window(newest, src.Settings.Ordering, window)

	doc, err := e.generator.Run(src.Channel(), records, store.Fields())
	if err != nil {
		return 0, fmt.Errorf("failed to generate output: %w", err)
	}

	if err := ledger.WriteFileAtomic(src.OutputPath, []byte(doc)); err != nil {
		return 0, err
	}

	return len(records), nil
}

// migrate seeds a missing ledger from a previously published output
// document. Documents list newest first and ledgers oldest first.
func (e *Engine) migrate(store *ledger.Store, src *feed.Source) (int, error) {
	exists, err := store.Exists()
	if err != nil || exists {
		return 0, err
	}

	data, err := os.ReadFile(src.OutputPath)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, &ledger.StorageError{Op: "read", Path: src.OutputPath, Err: err}
	}

	records, err := feed.ParseLegacyDocument(data)
	if err != nil {
		slog.Warn("Failed to parse existing output, starting with an empty ledger",
			"source", src.Name,
			"path", src.OutputPath,
			"error", err)
		return 0, nil
	}
	slices.Reverse(records)
	records = accept(records, make(map[string]struct{}), src.KeyFunc())
	if len(records) == 0 {
		return 0, nil
	}

	if err := store.Rewrite(records); err != nil {
		return 0, err
	}

	slog.Info("Seeded ledger from existing output",
		"source", src.Name,
		"records", len(records))

	return len(records), nil
}

func outputMissing(path string) (bool, error) {
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, &ledger.StorageError{Op: "stat", Path: path, Err: err}
	}
	return false, nil
}
