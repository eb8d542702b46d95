package feed

import (
	"time"

	"github.com/lysyi3m/rss-ledger/app/ledger"
)

type SourceType string

const (
	SourceTypeListing  SourceType = "listing"
	SourceTypeRSS      SourceType = "rss"
	SourceTypeCalendar SourceType = "calendar"
)

// Ordering is the display order of the output window. Both orders are
// newest first.
type Ordering string

const (
	OrderingArrival Ordering = "arrival"
	OrderingDate    Ordering = "date"
)

const (
	DefaultWindow   = 300
	DefaultTimeout  = 60 // seconds
	DefaultMaxPages = 1
	DefaultSpanDays = 90
	DefaultSchedule = "@every 1h"
)

// Source is the configuration of one upstream origin, loaded from
// <sources-dir>/<name>.yml.
type Source struct {
	Name        string         // Derived from filename (without .yml extension)
	Type        SourceType     `yaml:"type"`
	URL         string         `yaml:"url"` // may contain {page} or {yyyymm}
	BaseURL     string         `yaml:"base_url"`
	Title       string         `yaml:"title"`
	Description string         `yaml:"description"`
	Link        string         `yaml:"link"`
	Schedule    string         `yaml:"schedule"`
	Fields      []string       `yaml:"fields"`
	Include     []string       `yaml:"include"`
	Settings    SourceSettings `yaml:"settings"`
	Selectors   Selectors      `yaml:"selectors"`

	LedgerPath string `yaml:"-"`
	OutputPath string `yaml:"-"`
}

type SourceSettings struct {
	Enabled   bool             `yaml:"enabled"`
	Timeout   int              `yaml:"timeout"` // seconds
	MaxPages  int              `yaml:"max_pages"`
	SpanDays  int              `yaml:"span_days"`
	Window    int              `yaml:"window"`
	Ordering  Ordering         `yaml:"ordering"`
	Key       ledger.KeyPolicy `yaml:"key"`
	KeyParams []string         `yaml:"key_params"`
	Ledger    string           `yaml:"ledger"`
	Output    string           `yaml:"output"`
	Summary   bool             `yaml:"summary"` // fill missing descriptions from the linked page
}

// Selectors are the CSS selectors used by the listing and calendar
// extractors. Empty Title/Link selectors address the item element itself.
type Selectors struct {
	Item        string `yaml:"item"`
	Title       string `yaml:"title"`
	TitleAttr   string `yaml:"title_attr"`
	Link        string `yaml:"link"`
	LinkAttr    string `yaml:"link_attr"`
	Date        string `yaml:"date"`
	Description string `yaml:"description"`
	Next        string `yaml:"next"`

	Ready     string `yaml:"ready"`
	Container string `yaml:"container"`
	Day       string `yaml:"day"`
	DayDate   string `yaml:"day_date"`
	Event     string `yaml:"event"`
	Category  string `yaml:"category"`
	StartTime string `yaml:"start_time"`
}

// Channel is the static metadata of an output document.
type Channel struct {
	Title       string
	Description string
	Link        string
}

func (s *Source) Channel() Channel {
	return Channel{Title: s.Title, Description: s.Description, Link: s.Link}
}

func (s *Source) KeyFunc() ledger.KeyFunc {
	return ledger.KeyFuncFor(s.Settings.Key, s.Settings.KeyParams)
}

func (s *Source) GetTimeout() time.Duration {
	if s.Settings.Timeout <= 0 {
		return DefaultTimeout * time.Second
	}
	return time.Duration(s.Settings.Timeout) * time.Second
}

func (s *Source) HasField(field string) bool {
	for _, f := range s.Fields {
		if f == field {
			return true
		}
	}
	return false
}
