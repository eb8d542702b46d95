package crawl

import (
	"strings"
	"time"
)

const monthPlaceholder = "{yyyymm}"

// Months returns the first day of every month from the start of the
// previous month through spanDays later, inclusive of the month that
// contains the end date.
func Months(now time.Time, spanDays int) []time.Time {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -1, 0)
	end := start.AddDate(0, 0, spanDays)

	var months []time.Time
	for month := start; !month.After(end); month = month.AddDate(0, 1, 0) {
		months = append(months, month)
	}
	return months
}

func MonthURL(template string, month time.Time) string {
	return strings.ReplaceAll(template, monthPlaceholder, month.Format("200601"))
}
