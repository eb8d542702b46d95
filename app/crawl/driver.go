// Package crawl walks browser-rendered calendar sources month by month.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/lysyi3m/rss-ledger/app/browser"
	"github.com/lysyi3m/rss-ledger/app/extract"
	"github.com/lysyi3m/rss-ledger/app/feed"
	"github.com/lysyi3m/rss-ledger/app/ledger"
	"github.com/lysyi3m/rss-ledger/app/metrics"
)

const (
	DefaultNavigateTimeout = 60 * time.Second
	DefaultReadyTimeout    = 60 * time.Second
)

// Driver is the Extractor for calendar sources. One browser session is
// held for the whole crawl and every month gets its own page, so a failing
// month costs only its own records.
type Driver struct {
	launcher        browser.Launcher
	metrics         *metrics.Metrics
	navigateTimeout time.Duration
	readyTimeout    time.Duration
	now             func() time.Time
}

type Option func(*Driver)

func WithTimeouts(navigate, ready time.Duration) Option {
	return func(d *Driver) {
		d.navigateTimeout = navigate
		d.readyTimeout = ready
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Driver) { d.metrics = m }
}

func NewDriver(launcher browser.Launcher, opts ...Option) *Driver {
	d := &Driver{
		launcher:        launcher,
		navigateTimeout: DefaultNavigateTimeout,
		readyTimeout:    DefaultReadyTimeout,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) Extract(ctx context.Context, src *feed.Source) ([]ledger.Record, error) {
	b, err := d.launcher.Launch(ctx)
	if err != nil {
		return nil, &extract.FetchError{URL: src.URL, Err: err}
	}
	defer func() {
		if err := b.Close(); err != nil {
			slog.Warn("Failed to close browser", "source", src.Name, "error", err)
		}
	}()

	months := Months(d.now(), src.Settings.SpanDays)
	slog.Debug("Crawl started", "source", src.Name, "months", len(months))

	var records []ledger.Record
	failed := 0
	for _, month := range months {
		if ctx.Err() != nil {
			slog.Warn("Crawl interrupted", "source", src.Name, "month", month.Format("2006-01"), "error", ctx.Err())
			break
		}

		url := MonthURL(src.URL, month)
		monthRecords, err := d.crawlMonth(ctx, b, src, month, url)
		if err != nil {
			failed++
			outcome := extract.Kind(err)
			d.metrics.ObserveCrawlWindow(src.Name, outcome)
			slog.Error("Month window failed",
				"source", src.Name,
				"url", url,
				"kind", outcome,
				"error", err)
			continue
		}

		d.metrics.ObserveCrawlWindow(src.Name, "ok")
		slog.Info("Month window crawled", "source", src.Name, "url", url, "records", len(monthRecords))
		records = append(records, monthRecords...)
	}

	slog.Info("Crawl completed",
		"source", src.Name,
		"months", len(months),
		"failed", failed,
		"records", len(records))

	return records, nil
}

func (d *Driver) crawlMonth(ctx context.Context, b browser.Browser, src *feed.Source, month time.Time, url string) (records []ledger.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic while crawling month", "source", src.Name, "url", url, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic while crawling %s: %v", url, r)
		}
	}()

	openCtx, cancel := context.WithTimeout(ctx, d.navigateTimeout)
	page, err := b.NewPage(openCtx)
	cancel()
	if err != nil {
		return nil, classify(url, "page", err)
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			slog.Debug("Failed to close page", "source", src.Name, "url", url, "error", closeErr)
		}
	}()

	navCtx, cancel := context.WithTimeout(ctx, d.navigateTimeout)
	status, err := page.Navigate(navCtx, url)
	cancel()
	if err != nil {
		return nil, classify(url, "navigation", err)
	}
	slog.Debug("Navigated", "source", src.Name, "url", url, "status", status)
	if status >= http.StatusBadRequest {
		return nil, &extract.FetchError{URL: url, StatusCode: status}
	}

	readySelector := src.Selectors.Ready
	if readySelector == "" {
		readySelector = src.Selectors.Day
	}

	readyCtx, cancel := context.WithTimeout(ctx, d.readyTimeout)
	defer cancel()

	if err := page.WaitReady(readyCtx, readySelector); err != nil {
		return nil, classify(url, "readiness", err)
	}

	html, err := page.HTML(readyCtx)
	if err != nil {
		return nil, classify(url, "content", err)
	}

	return ParseCalendar(html, src, month, url)
}

func classify(url, stage string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &extract.TimeoutError{URL: url, Stage: stage, Err: err}
	}
	return &extract.FetchError{URL: url, Err: fmt.Errorf("%s: %w", stage, err)}
}
