package extract

import (
	"errors"
	"fmt"
)

// FetchError is a transport failure or a non-success HTTP status.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError is an empty or structurally unusable upstream document.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TimeoutError is a browser navigation or readiness wait that exceeded its
// bound.
type TimeoutError struct {
	URL   string
	Stage string
	Err   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout during %s of %s: %v", e.Stage, e.URL, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// DateFormatError is a record date that does not match the expected layout.
type DateFormatError struct {
	Value  string
	Layout string
	Err    error
}

func (e *DateFormatError) Error() string {
	return fmt.Sprintf("invalid date %q (want %s): %v", e.Value, e.Layout, e.Err)
}

func (e *DateFormatError) Unwrap() error { return e.Err }

// Kind names the failure class of err for logs and metrics.
func Kind(err error) string {
	var (
		fetchErr   *FetchError
		parseErr   *ParseError
		timeoutErr *TimeoutError
		dateErr    *DateFormatError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &fetchErr):
		return "fetch"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &dateErr):
		return "date_format"
	default:
		return "unexpected"
	}
}
