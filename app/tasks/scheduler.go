package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lysyi3m/rss-ledger/app/feed"
	"github.com/lysyi3m/rss-ledger/app/metrics"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	DefaultQueueSize   = 300
	DefaultTaskTimeout = 15 * time.Minute
)

// SourceProvider is satisfied by *feed.ConfigCache.
type SourceProvider interface {
	GetEnabledSources() []*feed.Source
	GetConfig(sourceName string) (*feed.Source, error)
}

type Scheduler struct {
	sources     SourceProvider
	syncer      Syncer
	metrics     *metrics.Metrics
	cron        *cron.Cron
	workerCount int
	taskTimeout time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
}

func NewScheduler(sources SourceProvider, syncer Syncer, workerCount int, m *metrics.Metrics) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	if workerCount <= 0 {
		workerCount = 1
	}

	return &Scheduler{
		sources:     sources,
		syncer:      syncer,
		metrics:     m,
		cron:        cron.New(),
		workerCount: workerCount,
		taskTimeout: DefaultTaskTimeout,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, DefaultQueueSize),
	}
}

// Start launches the workers, registers one cron entry per enabled source
// and enqueues an initial sync of every enabled source.
func (s *Scheduler) Start() error {
	sources := s.sources.GetEnabledSources()

	for _, src := range sources {
		src := src
		_, err := s.cron.AddFunc(src.Schedule, func() {
			s.enqueueSync(src, TriggerCron)
		})
		if err != nil {
			return fmt.Errorf("invalid schedule %q for source %s: %w", src.Schedule, src.Name, err)
		}
		slog.Debug("Source scheduled", "source", src.Name, "schedule", src.Schedule)
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.cron.Start()

	for _, src := range sources {
		s.enqueueSync(src, TriggerStartup)
	}

	slog.Info("Scheduler started", "workers", s.workerCount, "sources", len(sources))
	return nil
}

// Stop stops the cron, cancels running tasks and waits for the workers.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

// TriggerSync enqueues an immediate sync of an enabled source.
func (s *Scheduler) TriggerSync(sourceName string) error {
	src, err := s.sources.GetConfig(sourceName)
	if err != nil {
		return err
	}
	if !src.Settings.Enabled {
		return fmt.Errorf("source %s is disabled", sourceName)
	}

	task := NewSyncSourceTask(src, s.syncer, TriggerAPI)
	if err := s.EnqueueTask(task); err != nil {
		return err
	}
	s.metrics.TaskEnqueued(TriggerAPI, len(s.taskQueue))
	return nil
}

func (s *Scheduler) enqueueSync(src *feed.Source, trigger string) {
	task := NewSyncSourceTask(src, s.syncer, trigger)
	if err := s.EnqueueTask(task); err != nil {
		slog.Warn("Failed to enqueue SyncSourceTask", "source", src.Name, "trigger", trigger, "error", err)
		return
	}
	s.metrics.TaskEnqueued(trigger, len(s.taskQueue))
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	s.metrics.TaskStarted(len(s.taskQueue))
	defer s.metrics.TaskFinished()

	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, s.taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		return
	}

	slog.Error("Worker task execution failed",
		"worker_id", workerID,
		"type", string(task.GetType()),
		"id", task.GetID(),
		"source", task.GetSourceName(),
		"retry_count", task.GetRetryCount(),
		"error", err)

	if !task.Retryable(err) {
		return
	}
	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries",
			"type", string(task.GetType()),
			"id", task.GetID(),
			"source", task.GetSourceName(),
			"max_retries", task.GetMaxRetries(),
			"last_error", err)
		return
	}

	task.IncrementRetryCount()
	delay := retryDelay(task.GetRetryCount())

	slog.Warn("Task retry scheduled",
		"type", string(task.GetType()),
		"source", task.GetSourceName(),
		"retry_count", task.GetRetryCount(),
		"max_retries", task.GetMaxRetries(),
		"delay", delay.String())

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
		case <-timer.C:
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry",
					"type", string(task.GetType()),
					"id", task.GetID(),
					"retry_count", task.GetRetryCount(),
					"error", retryErr)
				return
			}
			s.metrics.TaskEnqueued(TriggerRetry, len(s.taskQueue))
		}
	}()
}
