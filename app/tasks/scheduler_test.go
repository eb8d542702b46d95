package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/rss-ledger/app/feed"
	"github.com/lysyi3m/rss-ledger/app/ingest"
	"github.com/lysyi3m/rss-ledger/app/ledger"
)

// MockSourceProvider serves a fixed set of sources
type MockSourceProvider struct {
	sources []*feed.Source
}

func (m *MockSourceProvider) GetEnabledSources() []*feed.Source {
	var enabled []*feed.Source
	for _, src := range m.sources {
		if src.Settings.Enabled {
			enabled = append(enabled, src)
		}
	}
	return enabled
}

func (m *MockSourceProvider) GetConfig(sourceName string) (*feed.Source, error) {
	for _, src := range m.sources {
		if src.Name == sourceName {
			return src, nil
		}
	}
	return nil, fmt.Errorf("source config with name '%s' not found", sourceName)
}

// MockSyncer records sync calls and fails the first failures calls
type MockSyncer struct {
	mu       sync.Mutex
	calls    []string
	failures int
	err      error
	called   chan string
}

func newMockSyncer() *MockSyncer {
	return &MockSyncer{called: make(chan string, 100)}
}

func (m *MockSyncer) Run(ctx context.Context, src *feed.Source) (*ingest.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, src.Name)
	fail := m.failures > 0
	if fail {
		m.failures--
	}
	m.mu.Unlock()

	m.called <- src.Name

	if fail {
		return &ingest.Result{Source: src.Name}, m.err
	}
	return &ingest.Result{Source: src.Name, Appended: 1}, nil
}

func (m *MockSyncer) waitFor(t *testing.T, n int, timeout time.Duration) []string {
	t.Helper()

	var got []string
	deadline := time.After(timeout)
	for len(got) < n {
		select {
		case name := <-m.called:
			got = append(got, name)
		case <-deadline:
			t.Fatalf("Expected %d sync calls, got %d: %v", n, len(got), got)
		}
	}
	return got
}

func testSource(name string, enabled bool) *feed.Source {
	return &feed.Source{
		Name:     name,
		Schedule: "@every 1h",
		Settings: feed.SourceSettings{Enabled: enabled},
	}
}

func TestNewScheduler(t *testing.T) {
	scheduler := NewScheduler(&MockSourceProvider{}, newMockSyncer(), 0, nil)

	if scheduler == nil {
		t.Fatal("Expected scheduler to be created")
	}

	if scheduler.workerCount != 1 {
		t.Errorf("Expected worker count 1, got %d", scheduler.workerCount)
	}

	if cap(scheduler.taskQueue) != DefaultQueueSize {
		t.Errorf("Expected queue size %d, got %d", DefaultQueueSize, cap(scheduler.taskQueue))
	}
}

func TestScheduler_StartSyncsEnabledSources(t *testing.T) {
	provider := &MockSourceProvider{sources: []*feed.Source{
		testSource("blog", true),
		testSource("press", true),
		testSource("archive", false),
	}}
	syncer := newMockSyncer()

	scheduler := NewScheduler(provider, syncer, 2, nil)
	if err := scheduler.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer scheduler.Stop()

	got := syncer.waitFor(t, 2, 2*time.Second)

	seen := map[string]bool{}
	for _, name := range got {
		seen[name] = true
	}
	if !seen["blog"] || !seen["press"] {
		t.Errorf("Expected blog and press to be synced, got %v", got)
	}
	if seen["archive"] {
		t.Error("Disabled source should not be synced")
	}

	if entries := len(scheduler.cron.Entries()); entries != 2 {
		t.Errorf("Expected 2 cron entries, got %d", entries)
	}
}

func TestScheduler_StartRejectsInvalidSchedule(t *testing.T) {
	src := testSource("blog", true)
	src.Schedule = "not a schedule"

	scheduler := NewScheduler(&MockSourceProvider{sources: []*feed.Source{src}}, newMockSyncer(), 1, nil)
	if err := scheduler.Start(); err == nil {
		scheduler.Stop()
		t.Fatal("Expected error for invalid schedule")
	}
}

func TestScheduler_TriggerSync(t *testing.T) {
	provider := &MockSourceProvider{sources: []*feed.Source{
		testSource("blog", true),
		testSource("archive", false),
	}}
	syncer := newMockSyncer()

	scheduler := NewScheduler(provider, syncer, 1, nil)
	if err := scheduler.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer scheduler.Stop()

	// Startup sync
	syncer.waitFor(t, 1, 2*time.Second)

	if err := scheduler.TriggerSync("missing"); err == nil {
		t.Error("Expected error for unknown source")
	}
	if err := scheduler.TriggerSync("archive"); err == nil {
		t.Error("Expected error for disabled source")
	}
	if err := scheduler.TriggerSync("blog"); err != nil {
		t.Fatalf("TriggerSync failed: %v", err)
	}

	got := syncer.waitFor(t, 1, 2*time.Second)
	if got[0] != "blog" {
		t.Errorf("Expected blog to be synced, got %s", got[0])
	}
}

func TestScheduler_RetriesStorageErrors(t *testing.T) {
	provider := &MockSourceProvider{sources: []*feed.Source{testSource("blog", true)}}
	syncer := newMockSyncer()
	syncer.failures = 1
	syncer.err = &ledger.StorageError{Op: "lock", Path: "blog.csv", Err: ledger.ErrLedgerLocked}

	scheduler := NewScheduler(provider, syncer, 1, nil)
	if err := scheduler.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer scheduler.Stop()

	// First attempt fails, the retry after 1s succeeds.
	syncer.waitFor(t, 2, 5*time.Second)
}

func TestEnqueueTask_QueueFull(t *testing.T) {
	scheduler := NewScheduler(&MockSourceProvider{}, newMockSyncer(), 1, nil)
	src := testSource("blog", true)

	for i := 0; i < DefaultQueueSize; i++ {
		if err := scheduler.EnqueueTask(NewSyncSourceTask(src, scheduler.syncer, TriggerCron)); err != nil {
			t.Fatalf("Unexpected error at %d: %v", i, err)
		}
	}

	if err := scheduler.EnqueueTask(NewSyncSourceTask(src, scheduler.syncer, TriggerCron)); err == nil {
		t.Error("Expected queue full error")
	}
}

func TestEnqueueTask_AfterStop(t *testing.T) {
	scheduler := NewScheduler(&MockSourceProvider{}, newMockSyncer(), 1, nil)
	if err := scheduler.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	scheduler.Stop()

	err := scheduler.EnqueueTask(NewSyncSourceTask(testSource("blog", true), scheduler.syncer, TriggerAPI))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestSyncSourceTask_Retryable(t *testing.T) {
	task := NewSyncSourceTask(testSource("blog", true), newMockSyncer(), TriggerCron)

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"storage", &ledger.StorageError{Op: "append", Path: "blog.csv", Err: errors.New("disk full")}, true},
		{"wrapped storage", fmt.Errorf("failed to sync: %w", &ledger.StorageError{Op: "lock", Err: ledger.ErrLedgerLocked}), true},
		{"other", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := task.Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSyncSourceTask_CancelledContext(t *testing.T) {
	syncer := newMockSyncer()
	task := NewSyncSourceTask(testSource("blog", true), syncer, TriggerCron)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := task.Execute(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if len(syncer.calls) != 0 {
		t.Errorf("Expected no sync calls, got %v", syncer.calls)
	}
}

func TestTask_Retries(t *testing.T) {
	task := NewTask(TaskTypeSyncSource, "blog", TriggerCron)

	if task.ID == "" {
		t.Error("Expected task ID to be set")
	}
	if task.GetDuration() != 0 {
		t.Error("Expected zero duration before start")
	}

	for i := 0; i < DefaultMaxRetries; i++ {
		if !task.CanRetry() {
			t.Fatalf("Expected retry %d to be allowed", i+1)
		}
		task.IncrementRetryCount()
	}
	if task.CanRetry() {
		t.Error("Expected retries to be exhausted")
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		retry int
		want  time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 30 * time.Second},
		{10, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := retryDelay(tt.retry); got != tt.want {
			t.Errorf("retryDelay(%d) = %v, want %v", tt.retry, got, tt.want)
		}
	}
}
