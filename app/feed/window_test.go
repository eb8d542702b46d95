package feed

import (
	"fmt"
	"testing"

	"github.com/lysyi3m/rss-ledger/app/ledger"
)

func titles(records []ledger.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Title()
	}
	return out
}

func TestWindowArrivalKeepsOrderAndCaps(t *testing.T) {
	var newestFirst []ledger.Record
	for i := 10; i >= 1; i-- {
		newestFirst = append(newestFirst, ledger.Record{ledger.FieldTitle: fmt.Sprintf("r%d", i)})
	}

	window := Window(newestFirst, OrderingArrival, 3)

	got := fmt.Sprint(titles(window))
	if got != "[r10 r9 r8]" {
		t.Errorf("Expected [r10 r9 r8], got %s", got)
	}
}

func TestWindowDateOrdering(t *testing.T) {
	newestFirst := []ledger.Record{
		{ledger.FieldTitle: "late-arrival-old-date", ledger.FieldPubDate: "2024/3/5"},
		{ledger.FieldTitle: "no-date", ledger.FieldPubDate: "soon"},
		{ledger.FieldTitle: "newest", ledger.FieldPubDate: "2024/04/20"},
		{ledger.FieldTitle: "tie-a", ledger.FieldPubDate: "2024/04/01"},
		{ledger.FieldTitle: "tie-b", ledger.FieldPubDate: "2024/4/1"},
	}

	window := Window(newestFirst, OrderingDate, 300)

	got := fmt.Sprint(titles(window))
	want := "[newest tie-a tie-b late-arrival-old-date no-date]"
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if newestFirst[0].Title() != "late-arrival-old-date" {
		t.Error("Window must not reorder its input")
	}
}

func TestWindowDefaultSize(t *testing.T) {
	records := make([]ledger.Record, DefaultWindow+5)
	for i := range records {
		records[i] = ledger.Record{}
	}
	if got := len(Window(records, OrderingArrival, 0)); got != DefaultWindow {
		t.Errorf("Expected %d records, got %d", DefaultWindow, got)
	}
}

func TestParseDate(t *testing.T) {
	valid := []string{
		"Mon, 02 Jan 2006 15:04:05 +0900",
		"2024-05-01T10:00:00+09:00",
		"2024-05-01",
		"2024/5/1",
		"2024.05.01",
	}
	for _, v := range valid {
		if _, ok := ParseDate(v); !ok {
			t.Errorf("Expected %q to parse", v)
		}
	}

	for _, v := range []string{"", "yesterday", "2024/13/01"} {
		if _, ok := ParseDate(v); ok {
			t.Errorf("Expected %q not to parse", v)
		}
	}
}
