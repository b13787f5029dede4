package catalog

import (
	"strings"
	"time"
)

// SuggestedDateCount is how many candidate dates suggest_dates returns.
const SuggestedDateCount = 5

// monthNames maps lowercase month names/abbreviations to time.Month, used to
// parse a loose "month hint" out of client text (e.g. "sometime in March").
var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

// ParseMonthHint scans text for a month name and returns it, or false when
// none is found.
func ParseMonthHint(text string) (time.Month, bool) {
	lower := strings.ToLower(text)
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	}) {
		if m, ok := monthNames[w]; ok {
			return m, true
		}
	}
	return 0, false
}

// SuggestDates returns SuggestedDateCount deterministic candidate dates,
// alternating between a weekday and a weekend day, filtered to exclude
// venue-closed dates and operating-hours gaps. When monthHint is set, the
// scan starts at the first day of the next occurrence of that month (this
// year if it hasn't passed, next year otherwise); otherwise it starts the
// day after now.
//
// The alternation (weekday, weekend, weekday, weekend, ...) mirrors how a
// venue coordinator would pitch options: one easy business-hours slot, one
// higher-demand weekend slot, repeated until five land on open dates.
func (v *Venue) SuggestDates(now time.Time, monthHint *time.Month) []time.Time {
	start := now.AddDate(0, 0, 1)
	if monthHint != nil {
		start = firstOccurrenceOfMonth(now, *monthHint)
	}
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())

	const maxScanDays = 365
	wantWeekend := false
	var out []time.Time

	for i := 0; i < maxScanDays && len(out) < SuggestedDateCount; i++ {
		d := start.AddDate(0, 0, i)
		isWeekend := d.Weekday() == time.Saturday || d.Weekday() == time.Sunday
		if isWeekend != wantWeekend {
			continue
		}
		if v != nil && v.IsClosed(d) {
			continue
		}
		out = append(out, d)
		wantWeekend = !wantWeekend
	}
	return out
}

// firstOccurrenceOfMonth returns the first day of month m on or after now,
// rolling to next year if m has already passed this year.
func firstOccurrenceOfMonth(now time.Time, m time.Month) time.Time {
	year := now.Year()
	candidate := time.Date(year, m, 1, 0, 0, 0, 0, now.Location())
	if candidate.Before(time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())) {
		candidate = time.Date(year+1, m, 1, 0, 0, 0, 0, now.Location())
	}
	return candidate
}
