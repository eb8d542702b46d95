package extract

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lysyi3m/rss-ledger/app/feed"
	"github.com/lysyi3m/rss-ledger/app/ledger"
)

const pagePlaceholder = "{page}"

// ListingExtractor scrapes static HTML listing pages with CSS selectors.
type ListingExtractor struct {
	fetcher    *Fetcher
	summarizer *Summarizer
}

func NewListingExtractor(fetcher *Fetcher, summarizer *Summarizer) *ListingExtractor {
	return &ListingExtractor{fetcher: fetcher, summarizer: summarizer}
}

// Extract walks up to max_pages pages. A failure on the first page fails
// the source; a failure on a later page ends pagination and keeps what was
// collected so far.
func (e *ListingExtractor) Extract(ctx context.Context, src *feed.Source) ([]ledger.Record, error) {
	var records []ledger.Record

	pageURL := e.pageURL(src, 1)
	for page := 1; page <= src.Settings.MaxPages && pageURL != ""; page++ {
		data, err := e.fetcher.Fetch(ctx, pageURL, src.GetTimeout())
		if err != nil {
			if page == 1 {
				return nil, err
			}
			slog.Warn("Stopping pagination", "source", src.Name, "page", page, "url", pageURL, "error", err)
			break
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
		if err != nil {
			if page == 1 {
				return nil, &ParseError{URL: pageURL, Err: err}
			}
			slog.Warn("Stopping pagination", "source", src.Name, "page", page, "url", pageURL, "error", err)
			break
		}

		pageRecords := e.parsePage(doc, src, pageURL)
		slog.Debug("Listing page parsed", "source", src.Name, "page", page, "records", len(pageRecords))
		records = append(records, pageRecords...)

		pageURL = e.nextURL(doc, src, pageURL, page+1)
	}

	return records, nil
}

// Enrich fills empty descriptions with a summary of the linked page when
// the source asks for it. Failures leave the description empty.
func (e *ListingExtractor) Enrich(ctx context.Context, src *feed.Source, records []ledger.Record) {
	if e.summarizer == nil || !src.Settings.Summary || !src.HasField(ledger.FieldDescription) {
		return
	}

	for _, record := range records {
		if record.Description() != "" {
			continue
		}
		summary, err := e.summarizer.Summarize(ctx, record.Link(), src.GetTimeout())
		if err != nil {
			slog.Debug("Summary unavailable", "source", src.Name, "link", record.Link(), "error", err)
			continue
		}
		record[ledger.FieldDescription] = summary
	}
}

func (e *ListingExtractor) parsePage(doc *goquery.Document, src *feed.Source, pageURL string) []ledger.Record {
	sel := src.Selectors
	base := src.BaseURL
	if base == "" {
		base = pageURL
	}

	var records []ledger.Record
	doc.Find(sel.Item).Each(func(i int, item *goquery.Selection) {
		title := selectText(item, sel.Title, sel.TitleAttr)
		link := selectAttr(item, sel.Link, sel.LinkAttr)
		if title == "" || link == "" {
			slog.Debug("Skipping listing item without title or link", "source", src.Name, "index", i)
			return
		}

		record := ledger.Record{
			ledger.FieldTitle:   title,
			ledger.FieldLink:    ResolveURL(base, link),
			ledger.FieldPubDate: selectText(item, sel.Date, ""),
		}
		if sel.Description != "" {
			record[ledger.FieldDescription] = selectText(item, sel.Description, "")
		}
		if sel.Category != "" {
			record[ledger.FieldCategory] = selectText(item, sel.Category, "")
		}
		records = append(records, record)
	})

	return records
}

func (e *ListingExtractor) pageURL(src *feed.Source, page int) string {
	return strings.ReplaceAll(src.URL, pagePlaceholder, strconv.Itoa(page))
}

func (e *ListingExtractor) nextURL(doc *goquery.Document, src *feed.Source, current string, next int) string {
	if src.Selectors.Next != "" {
		href, ok := doc.Find(src.Selectors.Next).First().Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return ""
		}
		return ResolveURL(current, href)
	}
	if strings.Contains(src.URL, pagePlaceholder) {
		return e.pageURL(src, next)
	}
	return ""
}

// selectText returns the collapsed text of the first match of selector
// inside item, or of item itself when selector is empty. A non-empty attr
// reads that attribute instead of the text.
func selectText(item *goquery.Selection, selector, attr string) string {
	target := item
	if selector != "" {
		target = item.Find(selector).First()
	}
	if attr != "" {
		value, _ := target.Attr(attr)
		return CollapseSpace(value)
	}
	return CollapseSpace(target.Text())
}

func selectAttr(item *goquery.Selection, selector, attr string) string {
	if attr == "" {
		attr = "href"
	}
	target := item
	if selector != "" {
		target = item.Find(selector).First()
	}
	value, _ := target.Attr(attr)
	return strings.TrimSpace(value)
}

func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func ResolveURL(base, ref string) string {
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if refURL.IsAbs() {
		return refURL.String()
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}
