package extract

import (
	"bytes"
	"context"
	"log/slog"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/lysyi3m/rss-ledger/app/feed"
	"github.com/lysyi3m/rss-ledger/app/ledger"
)

// RSSExtractor reads RSS 2.0, RDF and Atom documents.
type RSSExtractor struct {
	fetcher *Fetcher
}

func NewRSSExtractor(fetcher *Fetcher) *RSSExtractor {
	return &RSSExtractor{fetcher: fetcher}
}

func (e *RSSExtractor) Extract(ctx context.Context, src *feed.Source) ([]ledger.Record, error) {
	data, err := e.fetcher.Fetch(ctx, src.URL, src.GetTimeout())
	if err != nil {
		return nil, err
	}

	// gofeed.Parser keeps per-parse state, so one is created per document.
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{URL: src.URL, Err: err}
	}

	records := make([]ledger.Record, 0, len(parsed.Items))
	skipped := 0
	for _, item := range parsed.Items {
		record, ok := e.normalizeItem(item)
		if !ok {
			skipped++
			continue
		}
		records = append(records, record)
	}

	if skipped > 0 {
		slog.Debug("Skipped incomplete feed items", "source", src.Name, "skipped", skipped)
	}

	return records, nil
}

// normalizeItem requires a title, a link and a publication date. The date
// is kept as published, preferring dc:date.
func (e *RSSExtractor) normalizeItem(item *gofeed.Item) (ledger.Record, bool) {
	if item == nil {
		return nil, false
	}

	title := strings.TrimSpace(item.Title)
	link := strings.TrimSpace(item.Link)

	var dcDate string
	if item.DublinCoreExt != nil && len(item.DublinCoreExt.Date) > 0 {
		dcDate = item.DublinCoreExt.Date[0]
	}
	pubDate := strings.TrimSpace(cmpOr(dcDate, item.Published, item.Updated))

	if title == "" || link == "" || pubDate == "" {
		return nil, false
	}

	return ledger.Record{
		ledger.FieldTitle:       title,
		ledger.FieldLink:        link,
		ledger.FieldPubDate:     pubDate,
		ledger.FieldDescription: strings.TrimSpace(item.Description),
	}, true
}
