package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/rss-ledger/app/feed"
	"github.com/lysyi3m/rss-ledger/app/ingest"
	"github.com/lysyi3m/rss-ledger/app/ledger"
)

// Syncer runs one source's sync. Implemented by *ingest.Engine.
type Syncer interface {
	Run(ctx context.Context, src *feed.Source) (*ingest.Result, error)
}

type SyncSourceTask struct {
	Task
	Source *feed.Source
	syncer Syncer
}

func NewSyncSourceTask(source *feed.Source, syncer Syncer, trigger string) *SyncSourceTask {
	return &SyncSourceTask{
		Task:   NewTask(TaskTypeSyncSource, source.Name, trigger),
		Source: source,
		syncer: syncer,
	}
}

func (t *SyncSourceTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	res, err := t.syncer.Run(ctx, t.Source)
	if err != nil {
		return fmt.Errorf("failed to sync source %s: %w", t.SourceName, err)
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"source", t.SourceName,
		"trigger", t.Trigger,
		"status", res.Status(),
		"candidates", res.Candidates,
		"appended", res.Appended,
		"duration", t.GetDuration())

	return nil
}

// Retryable limits retries to storage failures such as a held ledger
// lock. Extraction failures are reported in the result and wait for the
// next scheduled run instead.
func (t *SyncSourceTask) Retryable(err error) bool {
	return ledger.IsStorageError(err)
}
