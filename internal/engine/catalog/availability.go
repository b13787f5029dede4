package catalog

import "time"

// RoomStatus is a room's availability on a given date.
type RoomStatus string

const (
	RoomAvailable RoomStatus = "available"
	RoomBooked    RoomStatus = "booked"
	RoomPending   RoomStatus = "pending" // held by another event's in-progress offer
)

// RoomAvailability is one row of an evaluate_room_statuses result.
type RoomAvailability struct {
	Room   Room
	Status RoomStatus
}

// BookingRef is the minimal view of another event's room hold that
// RoomStatusOnDate/EvaluateRoomStatuses need: which room, which date, how
// firm the hold is, and which event it belongs to (for self-exclusion).
type BookingRef struct {
	EventID   string
	RoomID    string
	EventDate time.Time
	Confirmed bool // true once the booking is in EventConfirmed status
}

// RoomStatusOnDate evaluates a single room's status on date given the set of
// other events' room holds. selfEventID is excluded from consideration so a
// room already locked to the event being evaluated never shows as booked
// against itself (§8 self-exclusion invariant).
func RoomStatusOnDate(room Room, date time.Time, bookings []BookingRef, selfEventID string) RoomStatus {
	iso := date.Format("2006-01-02")
	pending := false
	for _, b := range bookings {
		if b.EventID == selfEventID {
			continue
		}
		if b.RoomID != room.ID {
			continue
		}
		if b.EventDate.Format("2006-01-02") != iso {
			continue
		}
		if b.Confirmed {
			return RoomBooked
		}
		pending = true
	}
	if pending {
		return RoomPending
	}
	return RoomAvailable
}

// EvaluateRoomStatuses evaluates every room in the venue on date, excluding
// selfEventID's own holds from the booked/pending determination.
func (v *Venue) EvaluateRoomStatuses(date time.Time, bookings []BookingRef, selfEventID string) []RoomAvailability {
	out := make([]RoomAvailability, 0, len(v.Rooms))
	for _, r := range v.Rooms {
		out = append(out, RoomAvailability{
			Room:   r,
			Status: RoomStatusOnDate(r, date, bookings, selfEventID),
		})
	}
	return out
}
