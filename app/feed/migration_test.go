package feed

import (
	"testing"

	"github.com/lysyi3m/rss-ledger/app/ledger"
)

func TestParseLegacyDocument(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Hatena</title>
    <description></description>
    <item>
      <title> Newest </title>
      <link>https://example.com/b</link>
      <pubDate>2024/05/02</pubDate>
      <description>Second</description>
    </item>
    <item>
      <title>No link</title>
    </item>
    <item>
      <title>Oldest</title>
      <link>https://example.com/a</link>
    </item>
  </channel>
</rss>`

	records, err := ParseLegacyDocument([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}

	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].Title() != "Newest" {
		t.Errorf("Expected trimmed title 'Newest', got %q", records[0].Title())
	}
	if records[0].Description() != "Second" {
		t.Errorf("Expected description 'Second', got %q", records[0].Description())
	}
	if records[1].Link() != "https://example.com/a" {
		t.Errorf("Unexpected link %s", records[1].Link())
	}
	if records[1].PubDate() != "" || records[1][ledger.FieldCategory] != "" {
		t.Error("Missing fields should be empty")
	}
}

func TestParseLegacyDocumentInvalid(t *testing.T) {
	if _, err := ParseLegacyDocument([]byte("not xml at all <")); err == nil {
		t.Error("Expected error for malformed document")
	}
}
