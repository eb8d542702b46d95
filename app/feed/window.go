package feed

import (
	"slices"
	"strings"
	"time"

	"github.com/lysyi3m/rss-ledger/app/ledger"
)

var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/1/2 15:04",
	"2006/1/2",
	"2006.01.02 15:04",
	"2006.01.02",
}

// Window selects at most size records for display. records must be newest
// first by arrival, as returned by ledger.Store.ReadNewest.
//
// OrderingDate re-sorts the selection by publication date, newest first.
// Ties and unparseable dates keep arrival order; unparseable dates sort last.
func Window(records []ledger.Record, ordering Ordering, size int) []ledger.Record {
	if size <= 0 {
		size = DefaultWindow
	}
	if len(records) > size {
		records = records[:size]
	}

	window := slices.Clone(records)
	if ordering != OrderingDate {
		return window
	}

	type dated struct {
		at time.Time
		ok bool
	}
	dates := make([]dated, len(window))
	indexed := make([]int, len(window))
	for i, record := range window {
		indexed[i] = i
		at, ok := ParseDate(record.PubDate())
		dates[i] = dated{at: at, ok: ok}
	}

	slices.SortStableFunc(indexed, func(a, b int) int {
		da, db := dates[a], dates[b]
		switch {
		case da.ok && !db.ok:
			return -1
		case !da.ok && db.ok:
			return 1
		case !da.ok && !db.ok:
			return 0
		}
		return db.at.Compare(da.at)
	})

	sorted := make([]ledger.Record, len(window))
	for i, idx := range indexed {
		sorted[i] = window[idx]
	}
	return sorted
}

// ParseDate parses a free-text publication date in any of the formats the
// supported sources emit.
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
