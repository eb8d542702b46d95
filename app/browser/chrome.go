package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/chromedp/chromedp"
)

type Options struct {
	ExecPath    string
	UserDataDir string
	UserAgent   string
	Headless    bool
}

type ChromeLauncher struct {
	opts Options
}

func NewChromeLauncher(opts Options) *ChromeLauncher {
	return &ChromeLauncher{opts: opts}
}

func (l *ChromeLauncher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("headless", l.opts.Headless),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-accelerated-2d-canvas", true),
	)
	if l.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.opts.ExecPath))
	}
	if l.opts.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(l.opts.UserDataDir))
	}
	if l.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.opts.UserAgent))
	}
	return opts
}

// Launch starts the browser process. The session outlives ctx's
// cancellation and ends only with Close.
func (l *ChromeLauncher) Launch(ctx context.Context) (Browser, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), l.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	cancel := func() {
		browserCancel()
		allocCancel()
	}

	// An empty Run starts the process so launch failures surface here.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	slog.Debug("Browser launched", "exec_path", l.opts.ExecPath)

	return &chromeBrowser{ctx: browserCtx, cancel: cancel}, nil
}

type chromeBrowser struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPage opens a tab. ctx bounds only the opening; the tab itself lives
// until its Close.
func (b *chromeBrowser) NewPage(ctx context.Context) (Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.ctx)
	stop := context.AfterFunc(ctx, tabCancel)

	err := chromedp.Run(tabCtx)
	if !stop() {
		tabCancel()
		if err == nil {
			return nil, fmt.Errorf("failed to open page: %w", ctx.Err())
		}
		return nil, fmt.Errorf("failed to open page: %w", contextError(ctx, err))
	}
	if err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return &chromePage{ctx: tabCtx, cancel: tabCancel}, nil
}

func (b *chromeBrowser) Close() error {
	err := chromedp.Cancel(b.ctx)
	b.cancel()
	if err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	slog.Debug("Browser closed")
	return nil
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// bind derives a context from the tab that carries the caller's deadline
// and cancellation. Cancelling it aborts the action, not the tab.
func (p *chromePage) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(p.ctx)
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		parentCancel := cancel
		cancel = func() {
			cancelDeadline()
			parentCancel()
		}
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (p *chromePage) Navigate(ctx context.Context, url string) (int, error) {
	runCtx, cancel := p.bind(ctx)
	defer cancel()

	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(url))
	if err != nil {
		return 0, contextError(runCtx, err)
	}
	if resp == nil {
		return 0, nil
	}
	return int(resp.Status), nil
}

func (p *chromePage) WaitReady(ctx context.Context, selector string) error {
	runCtx, cancel := p.bind(ctx)
	defer cancel()

	var ok bool
	var actions []chromedp.Action
	if selector != "" {
		quoted, err := json.Marshal(selector)
		if err != nil {
			return fmt.Errorf("failed to quote selector: %w", err)
		}
		actions = append(actions, chromedp.Poll(fmt.Sprintf("document.querySelectorAll(%s).length > 0", quoted), &ok))
	}
	actions = append(actions, chromedp.Poll(`document.readyState === "complete"`, &ok))

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return contextError(runCtx, err)
	}
	return nil
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	runCtx, cancel := p.bind(ctx)
	defer cancel()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", contextError(runCtx, err)
	}
	return html, nil
}

func (p *chromePage) Close() error {
	p.cancel()
	return nil
}

// contextError reports the context's own error when it ended the action,
// so deadline expiry stays detectable with errors.Is.
func contextError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}
