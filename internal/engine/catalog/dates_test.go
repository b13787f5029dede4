package catalog_test

import (
	"testing"
	"time"

	"github.com/openevent-ai/conversation-engine/internal/engine/catalog"
	"github.com/stretchr/testify/require"
)

func TestSuggestDates_AlternatesWeekdayWeekend(t *testing.T) {
	v := sampleVenue()
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC) // Thursday

	got := v.SuggestDates(now, nil)
	want := []time.Time{
		time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 8, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
	}
	require.Len(t, got, catalog.SuggestedDateCount)
	for i, d := range want {
		require.True(t, d.Equal(got[i]), "index %d: want %v got %v", i, d, got[i])
	}
}

func TestSuggestDates_SkipsClosedDate(t *testing.T) {
	v := sampleVenue()
	now := time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC)

	got := v.SuggestDates(now, nil)
	for _, d := range got {
		require.NotEqual(t, "2026-12-25", d.Format("2006-01-02"))
	}
}

func TestSuggestDates_MonthHintRollsToNextYear(t *testing.T) {
	v := sampleVenue()
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	march := time.March

	got := v.SuggestDates(now, &march)
	require.NotEmpty(t, got)
	for _, d := range got {
		require.Equal(t, time.March, d.Month())
		require.Equal(t, 2027, d.Year())
	}
}

func TestParseMonthHint(t *testing.T) {
	m, ok := catalog.ParseMonthHint("we're thinking sometime in March next year")
	require.True(t, ok)
	require.Equal(t, time.March, m)

	_, ok = catalog.ParseMonthHint("no month mentioned here")
	require.False(t, ok)
}
