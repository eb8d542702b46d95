// Package browser drives a scriptable headless browser for pages that only
// render their content through JavaScript.
package browser

import "context"

// Launcher opens a browser session. A session is meant to be reused for
// every page of one run and closed once at the end.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single tab. Every method is bounded by the deadline of the
// context it receives.
type Page interface {
	// Navigate loads url and returns the HTTP status of the main document.
	Navigate(ctx context.Context, url string) (int, error)
	// WaitReady blocks until selector matches at least one element and the
	// document has finished loading.
	WaitReady(ctx context.Context, selector string) error
	HTML(ctx context.Context) (string, error)
	Close() error
}
