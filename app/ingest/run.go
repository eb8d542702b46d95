package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/rss-ledger/app/database"
	"github.com/lysyi3m/rss-ledger/app/feed"
)

// Run syncs one source and records the outcome in the journal and metrics.
// A panic inside the sync is converted into a returned error.
func (e *Engine) Run(ctx context.Context, src *feed.Source) (res *Result, err error) {
	runID := e.startRun(src.Name)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Sync panicked",
				"source", src.Name,
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("sync of %s panicked: %v", src.Name, r)
		}
		if res == nil {
			res = &Result{Source: src.Name}
		}
		e.finishRun(runID, res, err)
	}()

	res, err = e.Sync(ctx, src)
	if err != nil {
		slog.Error("Sync failed", "source", src.Name, "error", err)
	}
	return res, err
}

// SyncAll runs every source with at most concurrency syncs in flight.
// One source's failure never stops the others; results keep input order.
func (e *Engine) SyncAll(ctx context.Context, sources []*feed.Source, concurrency int) []*Result {
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]*Result, len(sources))

	var g errgroup.Group
	g.SetLimit(concurrency)

	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			res, err := e.Run(ctx, src)
			if err != nil && res.Err == nil {
				res.Err = err
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *Engine) startRun(source string) string {
	if e.runs == nil {
		return ""
	}

	id, err := e.runs.StartRun(source, e.now())
	if err != nil {
		slog.Warn("Failed to record run start", "source", source, "error", err)
		return ""
	}
	return id
}

func (e *Engine) finishRun(id string, res *Result, err error) {
	status := res.Status()
	if err != nil {
		status = StatusFailed
	}

	e.metrics.ObserveSync(res.Source, status, res.Appended, res.WindowSize, res.Duration)

	if e.runs == nil || id == "" {
		return
	}

	msg := ""
	switch {
	case err != nil:
		msg = err.Error()
	case res.Err != nil:
		msg = res.Err.Error()
	}

	outcome := database.RunOutcome{
		FinishedAt: e.now(),
		Status:     status,
		Existing:   res.Existing,
		Candidates: res.Candidates,
		Appended:   res.Appended,
		WindowSize: res.WindowSize,
		Error:      msg,
	}
	if ferr := e.runs.FinishRun(id, outcome); ferr != nil {
		slog.Warn("Failed to record run outcome", "source", res.Source, "error", ferr)
	}
}
