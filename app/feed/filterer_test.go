package feed

import (
	"testing"

	"github.com/lysyi3m/rss-ledger/app/ledger"
)

func TestFilterer_NoPhrases(t *testing.T) {
	filterer := NewFilterer()

	records := []ledger.Record{
		{ledger.FieldTitle: "Test Item 1", ledger.FieldDescription: "Test description"},
		{ledger.FieldTitle: "Test Item 2", ledger.FieldDescription: "Another description"},
	}

	result := filterer.Run(records, nil)

	if len(result) != 2 {
		t.Errorf("Expected 2 records, got %d", len(result))
	}
}

func TestFilterer_MatchesTitleOrDescription(t *testing.T) {
	filterer := NewFilterer()

	records := []ledger.Record{
		{ledger.FieldTitle: "New Release of the product", ledger.FieldDescription: "details"},
		{ledger.FieldTitle: "Company news", ledger.FieldDescription: "Contains 新発売 information"},
		{ledger.FieldTitle: "Weather Report", ledger.FieldDescription: "Sunny"},
	}

	result := filterer.Run(records, []string{"Release", "新発売"})

	if len(result) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(result))
	}
	if result[0].Title() != "New Release of the product" {
		t.Errorf("Expected first record to be kept in order, got %s", result[0].Title())
	}
	if result[1].Title() != "Company news" {
		t.Errorf("Expected description match to be kept, got %s", result[1].Title())
	}
}

func TestFilterer_IsCaseSensitive(t *testing.T) {
	filterer := NewFilterer()

	records := []ledger.Record{
		{ledger.FieldTitle: "release notes"},
	}

	if result := filterer.Run(records, []string{"Release"}); len(result) != 0 {
		t.Errorf("Expected case-sensitive match to drop record, got %d", len(result))
	}
}

func TestFilterer_NoMatchDropsAll(t *testing.T) {
	filterer := NewFilterer()

	records := []ledger.Record{
		{ledger.FieldTitle: "One"},
		{ledger.FieldTitle: "Two"},
	}

	if result := filterer.Run(records, []string{"Three"}); len(result) != 0 {
		t.Errorf("Expected 0 records, got %d", len(result))
	}
}
