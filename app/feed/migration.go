package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/lysyi3m/rss-ledger/app/ledger"
)

type legacyDocument struct {
	Channel struct {
		Items []legacyItem `xml:"item"`
	} `xml:"channel"`
}

type legacyItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	PubDate     string `xml:"pubDate"`
	Description string `xml:"description"`
	Category    string `xml:"category"`
	StartTime   string `xml:"start_time"`
}

// ParseLegacyDocument reads the items of a previously published output
// document, in document order. Items without a link are skipped.
func ParseLegacyDocument(data []byte) ([]ledger.Record, error) {
	var doc legacyDocument

	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = false
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse legacy document: %w", err)
	}

	records := make([]ledger.Record, 0, len(doc.Channel.Items))
	for _, item := range doc.Channel.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}
		records = append(records, ledger.Record{
			ledger.FieldTitle:       strings.TrimSpace(item.Title),
			ledger.FieldLink:        link,
			ledger.FieldPubDate:     strings.TrimSpace(item.PubDate),
			ledger.FieldDescription: strings.TrimSpace(item.Description),
			ledger.FieldCategory:    strings.TrimSpace(item.Category),
			ledger.FieldStartTime:   strings.TrimSpace(item.StartTime),
		})
	}

	return records, nil
}
