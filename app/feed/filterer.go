package feed

import (
	"strings"

	"github.com/lysyi3m/rss-ledger/app/ledger"
)

type Filterer struct{}

func NewFilterer() *Filterer {
	return &Filterer{}
}

// Run keeps records whose title or description contains at least one of
// the inclusion phrases. Matching is case-sensitive. No phrases keeps all.
func (f *Filterer) Run(records []ledger.Record, phrases []string) []ledger.Record {
	if len(phrases) == 0 {
		return records
	}

	filtered := make([]ledger.Record, 0, len(records))
	for _, record := range records {
		if f.matches(record, phrases) {
			filtered = append(filtered, record)
		}
	}

	return filtered
}

func (f *Filterer) matches(record ledger.Record, phrases []string) bool {
	for _, phrase := range phrases {
		if phrase == "" {
			continue
		}
		if strings.Contains(record.Title(), phrase) || strings.Contains(record.Description(), phrase) {
			return true
		}
	}
	return false
}
