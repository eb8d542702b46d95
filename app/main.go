package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lysyi3m/rss-ledger/app/api"
	"github.com/lysyi3m/rss-ledger/app/browser"
	"github.com/lysyi3m/rss-ledger/app/cfg"
	"github.com/lysyi3m/rss-ledger/app/crawl"
	"github.com/lysyi3m/rss-ledger/app/database"
	"github.com/lysyi3m/rss-ledger/app/extract"
	"github.com/lysyi3m/rss-ledger/app/feed"
	"github.com/lysyi3m/rss-ledger/app/ingest"
	"github.com/lysyi3m/rss-ledger/app/metrics"
	"github.com/lysyi3m/rss-ledger/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	setupLogger(appCfg)

	if err := run(appCfg); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(appCfg *cfg.Cfg) {
	level := slog.LevelInfo
	if appCfg.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if appCfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func run(appCfg *cfg.Cfg) error {
	var runs database.RunRepository
	if appCfg.JournalPath != "" {
		db, err := database.Open(appCfg.JournalPath)
		if err != nil {
			return fmt.Errorf("failed to open run journal: %w", err)
		}
		defer db.Close()
		runs = database.NewRunRepository(db)
		slog.Debug("Run journal opened", "path", appCfg.JournalPath)
	}

	if appCfg.Mode == cfg.ModeStatus {
		return printStatus(runs)
	}

	configCache := feed.NewConfigCache(appCfg.SourcesDir, appCfg.DataDir)
	if err := configCache.Run(); err != nil {
		return fmt.Errorf("failed to load source configurations: %w", err)
	}
	slog.Info("Source configurations loaded", "dir", appCfg.SourcesDir, "count", configCache.GetConfigCount())

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	engine := ingest.NewEngine(newRegistry(appCfg, m), ingest.WithJournal(runs), ingest.WithMetrics(m))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch appCfg.Mode {
	case cfg.ModeServe:
		return serve(ctx, appCfg, configCache, engine, runs, m)
	default:
		return syncOnce(ctx, appCfg, configCache, engine)
	}
}

func newRegistry(appCfg *cfg.Cfg, m *metrics.Metrics) *extract.Registry {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	fetcher := extract.NewFetcher(httpClient, appCfg.UserAgent)

	launcher := browser.NewChromeLauncher(browser.Options{
		ExecPath:    appCfg.ChromePath,
		UserDataDir: appCfg.UserDataDir,
		UserAgent:   appCfg.UserAgent,
		Headless:    !appCfg.Headful,
	})

	registry := extract.NewRegistry()
	registry.Register(feed.SourceTypeRSS, extract.NewRSSExtractor(fetcher))
	registry.Register(feed.SourceTypeListing, extract.NewListingExtractor(fetcher, extract.NewSummarizer(fetcher, 0)))
	registry.Register(feed.SourceTypeCalendar, crawl.NewDriver(launcher, crawl.WithMetrics(m)))
	return registry
}

// syncOnce runs every enabled source once. Per-source failures are logged
// and do not change the exit status.
func syncOnce(ctx context.Context, appCfg *cfg.Cfg, configCache *feed.ConfigCache, engine *ingest.Engine) error {
	sources := configCache.GetEnabledSources()
	if len(sources) == 0 {
		slog.Warn("No enabled sources found", "dir", appCfg.SourcesDir)
		return nil
	}

	start := time.Now()
	results := engine.SyncAll(ctx, sources, appCfg.Concurrency)

	var appended, failed int
	for _, res := range results {
		appended += res.Appended
		if res.Status() == ingest.StatusFailed {
			failed++
		}
	}

	slog.Info("Sync finished",
		"sources", len(results),
		"failed", failed,
		"appended", appended,
		"duration", time.Since(start).Round(time.Millisecond))

	return nil
}

func serve(ctx context.Context, appCfg *cfg.Cfg, configCache *feed.ConfigCache, engine *ingest.Engine,
	runs database.RunRepository, m *metrics.Metrics) error {
	scheduler := tasks.NewScheduler(configCache, engine, appCfg.WorkerCount, m)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer scheduler.Stop()

	handler := api.NewHandler(configCache, runs, scheduler, prometheus.DefaultGatherer)
	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler, appCfg.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		baseURL := appCfg.BaseUrl
		if baseURL == "" {
			baseURL = "http://localhost:" + appCfg.Port
		}
		slog.Info("Starting HTTP server", "port", appCfg.Port, "feeds", baseURL+"/feeds/<name>")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case serverErr = <-serverErrChan:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}

	slog.Info("Server stopped")
	return serverErr
}

func printStatus(runs database.RunRepository) error {
	if runs == nil {
		return fmt.Errorf("status mode requires a run journal (--journal-path)")
	}

	latest, err := runs.GetLatestRuns()
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Source", "Started", "Duration", "Status", "Existing", "Candidates", "Appended", "Window", "Error"})

	for _, run := range latest {
		duration := "-"
		if run.FinishedAt != nil {
			duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		t.AppendRow(table.Row{
			run.Source,
			run.StartedAt.In(time.Local).Format(time.DateTime),
			duration,
			run.Status,
			run.Existing,
			run.Candidates,
			run.Appended,
			run.WindowSize,
			truncate(run.Error, 60),
		})
	}

	t.AppendFooter(table.Row{"", "", "", "", "", "", "", "Sources", len(latest)})
	t.Render()
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
