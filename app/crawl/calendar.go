package crawl

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/lysyi3m/rss-ledger/app/extract"
	"github.com/lysyi3m/rss-ledger/app/feed"
	"github.com/lysyi3m/rss-ledger/app/ledger"
)

// DateLayout is the layout of calendar record dates. The day may have one
// or two digits.
const DateLayout = "2006/01/2"

// ParseCalendar extracts one record per event from a rendered month page.
// Day blocks without a date marker are skipped, and days whose date does
// not parse are dropped with a DateFormatError logged.
func ParseCalendar(html string, src *feed.Source, month time.Time, pageURL string) ([]ledger.Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &extract.ParseError{URL: pageURL, Err: err}
	}

	sel := src.Selectors
	root := doc.Selection
	if sel.Container != "" {
		root = doc.Find(sel.Container).First()
		if root.Length() == 0 {
			return nil, &extract.ParseError{URL: pageURL, Err: fmt.Errorf("container %q not found", sel.Container)}
		}
	}

	base := src.BaseURL
	if base == "" {
		base = pageURL
	}
	prefix := month.Format("2006/01/")

	var records []ledger.Record
	root.Find(sel.Day).Each(func(_ int, day *goquery.Selection) {
		marker := extract.CollapseSpace(day.Find(sel.DayDate).First().Text())
		if marker == "" {
			slog.Debug("Skipping day without date marker", "source", src.Name, "url", pageURL)
			return
		}

		date := prefix + marker
		if _, err := time.Parse(DateLayout, date); err != nil {
			dateErr := &extract.DateFormatError{Value: date, Layout: DateLayout, Err: err}
			slog.Warn("Dropping day with invalid date", "source", src.Name, "error", dateErr)
			return
		}

		day.Find(sel.Event).Each(func(_ int, event *goquery.Selection) {
			link := eventLink(event, sel)
			if link == "" {
				slog.Debug("Skipping event without link", "source", src.Name, "date", date)
				return
			}

			records = append(records, ledger.Record{
				ledger.FieldPubDate:   date,
				ledger.FieldTitle:     childText(event, sel.Title),
				ledger.FieldLink:      extract.ResolveURL(base, link),
				ledger.FieldCategory:  childText(event, sel.Category),
				ledger.FieldStartTime: childText(event, sel.StartTime),
			})
		})
	})

	return records, nil
}

func eventLink(event *goquery.Selection, sel feed.Selectors) string {
	target := event
	if sel.Link != "" {
		target = event.Find(sel.Link).First()
	}
	attr := sel.LinkAttr
	if attr == "" {
		attr = "href"
	}
	href, _ := target.Attr(attr)
	return strings.TrimSpace(href)
}

func childText(event *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return extract.CollapseSpace(event.Find(selector).First().Text())
}

