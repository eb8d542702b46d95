package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/rss-ledger/app/database"
	"github.com/lysyi3m/rss-ledger/app/feed"
	"github.com/lysyi3m/rss-ledger/app/metrics"
	"github.com/lysyi3m/rss-ledger/app/tasks"
)

const testAPIKey = "secret"

type mockScheduler struct {
	triggered []string
	err       error
}

func (m *mockScheduler) Start() error { return nil }

func (m *mockScheduler) Stop() {}

func (m *mockScheduler) EnqueueTask(task tasks.TaskInterface) error { return m.err }

func (m *mockScheduler) TriggerSync(sourceName string) error {
	if m.err != nil {
		return m.err
	}
	m.triggered = append(m.triggered, sourceName)
	return nil
}

type testEnv struct {
	router     http.Handler
	scheduler  *mockScheduler
	runs       database.RunRepository
	sourcesDir string
	dataDir    string
}

const blogSource = `
type: listing
url: "https://example.com/blog"
title: "Blog"
settings:
  enabled: true
selectors:
  item: "article"
  date: "time"
`

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	sourcesDir := t.TempDir()
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(sourcesDir, "blog.yml"), []byte(blogSource), 0o644))

	configCache := feed.NewConfigCache(sourcesDir, dataDir)
	require.NoError(t, configCache.Run())

	db, err := database.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	runs := database.NewRunRepository(db)

	reg := prometheus.NewRegistry()
	metrics.NewMetrics(reg).ObserveSync("blog", "appended", 2, 2, time.Second)

	scheduler := &mockScheduler{}
	handler := NewHandler(configCache, runs, scheduler, reg)

	return &testEnv{
		router:     NewServer(handler, testAPIKey),
		scheduler:  scheduler,
		runs:       runs,
		sourcesDir: sourcesDir,
		dataDir:    dataDir,
	}
}

func (e *testEnv) do(method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestGetFeed(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/feeds/blog", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "not rendered yet")

	doc := `<?xml version="1.0" encoding="UTF-8"?>` + "\n<rss version=\"2.0\"></rss>\n"
	require.NoError(t, os.WriteFile(filepath.Join(env.dataDir, "blog.xml"), []byte(doc), 0o644))

	w = env.do(http.MethodGet, "/feeds/blog", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/rss+xml; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "blog", w.Header().Get("X-Feed-Name"))
	assert.NotEmpty(t, w.Header().Get("Last-Modified"))
	assert.Equal(t, doc, w.Body.String())

	w = env.do(http.MethodGet, "/feeds/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 1.0, body["loaded_configurations"])
	assert.Equal(t, 0.0, body["runs"])
}

func TestGetStats(t *testing.T) {
	env := newTestEnv(t)

	started := time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC)
	id, err := env.runs.StartRun("blog", started)
	require.NoError(t, err)
	require.NoError(t, env.runs.FinishRun(id, database.RunOutcome{
		FinishedAt: started.Add(2 * time.Second),
		Status:     "failed",
		Error:      "fetch failed",
	}))

	w := env.do(http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Sources []map[string]interface{} `json:"sources"`
		Total   int                      `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 1, body.Total)
	assert.Equal(t, "blog", body.Sources[0]["source"])
	assert.Equal(t, "failed", body.Sources[0]["status"])
	assert.Equal(t, "fetch failed", body.Sources[0]["error"])
	assert.Equal(t, "2s", body.Sources[0]["duration"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `rss_ledger_sync_runs_total{source="blog",status="appended"} 1`)
}

func TestAPIAuth(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"missing key", nil, http.StatusUnauthorized},
		{"wrong key", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"header key", map[string]string{"X-API-Key": testAPIKey}, http.StatusOK},
		{"bearer key", map[string]string{"Authorization": "Bearer " + testAPIKey}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodGet, "/api/sources", tt.header)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAPISyncSource(t *testing.T) {
	env := newTestEnv(t)
	auth := map[string]string{"X-API-Key": testAPIKey}

	w := env.do(http.MethodPost, "/api/sources/blog/sync", auth)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"blog"}, env.scheduler.triggered)

	w = env.do(http.MethodPost, "/api/sources/unknown/sync", auth)
	assert.Equal(t, http.StatusNotFound, w.Code)

	env.scheduler.err = fmt.Errorf("task queue is full")
	w = env.do(http.MethodPost, "/api/sources/blog/sync", auth)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAPIReloadSource(t *testing.T) {
	env := newTestEnv(t)
	auth := map[string]string{"X-API-Key": testAPIKey}

	updated := strings.Replace(blogSource, "https://example.com/blog", "https://example.com/news", 1)
	require.NoError(t, os.WriteFile(filepath.Join(env.sourcesDir, "blog.yml"), []byte(updated), 0o644))

	w := env.do(http.MethodPost, "/api/sources/blog/reload", auth)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "https://example.com/news")
	assert.Equal(t, []string{"blog"}, env.scheduler.triggered)

	require.NoError(t, os.WriteFile(filepath.Join(env.sourcesDir, "blog.yml"), []byte("url: ''"), 0o644))
	w = env.do(http.MethodPost, "/api/sources/blog/reload", auth)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRootAndFavicon(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/sources")

	w = env.do(http.MethodGet, "/favicon.ico", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
