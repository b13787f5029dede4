package catalog_test

import (
	"testing"
	"time"

	"github.com/openevent-ai/conversation-engine/internal/engine/catalog"
	"github.com/stretchr/testify/require"
)

func TestRoomStatusOnDate_Available(t *testing.T) {
	v := sampleVenue()
	room, _ := v.RoomByID("loft")
	date := time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC)

	status := catalog.RoomStatusOnDate(room, date, nil, "")
	require.Equal(t, catalog.RoomAvailable, status)
}

func TestRoomStatusOnDate_BookedByConfirmedEvent(t *testing.T) {
	v := sampleVenue()
	room, _ := v.RoomByID("loft")
	date := time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC)

	bookings := []catalog.BookingRef{
		{EventID: "evt-1", RoomID: "loft", EventDate: date, Confirmed: true},
	}
	status := catalog.RoomStatusOnDate(room, date, bookings, "evt-2")
	require.Equal(t, catalog.RoomBooked, status)
}

func TestRoomStatusOnDate_PendingByUnconfirmedEvent(t *testing.T) {
	v := sampleVenue()
	room, _ := v.RoomByID("loft")
	date := time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC)

	bookings := []catalog.BookingRef{
		{EventID: "evt-1", RoomID: "loft", EventDate: date, Confirmed: false},
	}
	status := catalog.RoomStatusOnDate(room, date, bookings, "evt-2")
	require.Equal(t, catalog.RoomPending, status)
}

func TestRoomStatusOnDate_SelfExclusion(t *testing.T) {
	v := sampleVenue()
	room, _ := v.RoomByID("loft")
	date := time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC)

	// The event under evaluation already holds this room on this date —
	// that must never show up as "booked" against itself.
	bookings := []catalog.BookingRef{
		{EventID: "evt-1", RoomID: "loft", EventDate: date, Confirmed: true},
	}
	status := catalog.RoomStatusOnDate(room, date, bookings, "evt-1")
	require.Equal(t, catalog.RoomAvailable, status)
}

func TestEvaluateRoomStatuses(t *testing.T) {
	v := sampleVenue()
	date := time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC)
	bookings := []catalog.BookingRef{
		{EventID: "evt-1", RoomID: "hall", EventDate: date, Confirmed: true},
	}

	statuses := v.EvaluateRoomStatuses(date, bookings, "evt-2")
	require.Len(t, statuses, 3)

	byID := map[string]catalog.RoomStatus{}
	for _, s := range statuses {
		byID[s.Room.ID] = s.Status
	}
	require.Equal(t, catalog.RoomBooked, byID["hall"])
	require.Equal(t, catalog.RoomAvailable, byID["garden"])
	require.Equal(t, catalog.RoomAvailable, byID["loft"])
}
