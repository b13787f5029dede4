package steps

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/openevent-ai/conversation-engine/internal/engine/catalog"
	"github.com/openevent-ai/conversation-engine/internal/engine/model"
)

// arrangementPattern recognizes a request to handle a room's missing product
// ("please arrange the flipchart") rather than a fresh change request — it
// must route to the arrangement branch below before generic change
// detection ever sees the message.
var arrangementPattern = regexp.MustCompile(`(?i)\b(?:please\s+)?arrange(?:\s+the)?\s+([a-z][a-z \-]*)`)

// HandleRoom runs Step 3: room availability. This step never produces a HIL
// task (hil.StepNeverGated) — the availability answer always reaches the
// client directly.
func HandleRoom(ctx context.Context, hc *Context, conv *model.Conversation, event *model.Event, in Input, sig model.UnifiedSignals) model.StepDecision {
	clean := normalizeApostrophes(strings.TrimSpace(in.Message))

	if hc.Venue == nil {
		return model.Halt(&model.Draft{Body: "We're still setting up our room catalog — someone from our team will follow up shortly."})
	}

	// Short-circuit: the locked room already satisfies the current
	// requirements hash, nothing to re-evaluate.
	if event.LockedRoomID != "" && event.RoomEvalHash != "" && event.RoomEvalHash == event.RequirementsHash {
		if conv.CallerStep != nil {
			return model.ReturnToCaller()
		}
		return model.Advance(model.StepOffer)
	}

	firstEntry := event.RoomPendingDecision == nil && !hasRoomAuditEntry(ctx, hc, conv.ThreadID)

	// Fast-skip on a date detour: a room already locked that is still
	// available on the new date is re-stamped and handed straight back,
	// without re-presenting the room list.
	if conv.CallerStep != nil && event.LockedRoomID != "" && event.EventDate != nil {
		if room, ok := hc.Venue.RoomByID(event.LockedRoomID); ok {
			status, err := roomStatusOnDate(ctx, hc, room, *event.EventDate, event.EventID)
			if err == nil && status == catalog.RoomAvailable {
				event.RoomEvalHash = event.RequirementsHash
				return model.ReturnToCaller()
			}
			conv.Extras.LockedRoomUnavailableOnDate = true
		}
	}

	// Arrangement request for a room already pending on a missing product —
	// bypasses generic change detection and finalizes the pending room.
	if event.RoomPendingDecision != nil {
		if m := arrangementPattern.FindStringSubmatch(clean); m != nil {
			return finalizeRoom(hc, conv, event, event.RoomPendingDecision.RoomID)
		}
	}

	// Room choice captured from free text.
	if hc.Venue != nil {
		if room, ok := matchRoomByName(hc.Venue, clean); ok {
			return finalizeRoom(hc, conv, event, room.ID)
		}
	}

	fitting := hc.Venue.RoomsWithCapacity(event.ParticipantsCount)
	if len(fitting) == 0 {
		return model.Halt(&model.Draft{
			Body: "Our rooms don't accommodate that many guests in one space. We could reduce the headcount, split across two rooms, or point you to a partner venue with more capacity — happy to explore any of those.",
		})
	}

	var available []catalog.Room
	if event.EventDate != nil {
		for _, r := range fitting {
			status, err := roomStatusOnDate(ctx, hc, r, *event.EventDate, event.EventID)
			if err != nil {
				continue
			}
			if status == catalog.RoomAvailable {
				available = append(available, r)
			}
		}
	} else {
		available = fitting
	}

	if !firstEntry && conv.CallerStep == nil && sig.IsQuestion && len(sig.QnATypes) > 0 {
		return model.Halt(&model.Draft{Body: qnaHoldingBody(sig.QnATypes)})
	}

	var names []string
	for _, r := range available {
		names = append(names, r.Name)
	}
	body := fmt.Sprintf("Here's what we have available for %d guests: %s. Which would you like to go with?", event.ParticipantsCount, strings.Join(names, ", "))
	if conv.Extras.SequentialCateringLookahead {
		body += " We can also start talking through catering options alongside the room choice, if that's helpful."
	}
	facts := model.FactsBundle{RoomNames: names}
	if event.ParticipantsCount > 0 {
		facts.ParticipantCounts = []int{event.ParticipantsCount}
	}
	return model.Halt(&model.Draft{Body: body, Facts: facts})
}

// finalizeRoom locks roomID onto event, stamps room_eval_hash, and stashes
// the confirmation prefix for Step 4 to prepend — it never emits its own
// draft, since the offer step owns the combined message.
func finalizeRoom(hc *Context, conv *model.Conversation, event *model.Event, roomID string) model.StepDecision {
	event.LockedRoomID = roomID
	event.RoomEvalHash = event.RequirementsHash
	event.RoomPendingDecision = nil

	name := roomID
	if hc != nil && hc.Venue != nil {
		if room, ok := hc.Venue.RoomByID(roomID); ok {
			name = room.Name
		}
	}
	conv.Extras.RoomConfirmationPrefix = fmt.Sprintf("Great choice! Room %s is confirmed. ", name)

	if conv.CallerStep != nil {
		return model.ReturnToCaller()
	}
	return model.Advance(model.StepOffer)
}

func matchRoomByName(v *catalog.Venue, text string) (catalog.Room, bool) {
	lower := strings.ToLower(text)
	for _, r := range v.Rooms {
		if r.Name != "" && strings.Contains(lower, strings.ToLower(r.Name)) {
			return r, true
		}
	}
	return catalog.Room{}, false
}

func roomStatusOnDate(ctx context.Context, hc *Context, room catalog.Room, date time.Time, selfEventID string) (catalog.RoomStatus, error) {
	if hc.Store == nil {
		return catalog.RoomAvailable, nil
	}
	rows, err := hc.Store.ListRoomBookingsOnDate(ctx, date)
	if err != nil {
		return "", err
	}
	bookings := make([]catalog.BookingRef, 0, len(rows))
	for _, b := range rows {
		bookings = append(bookings, catalog.BookingRef{
			EventID: b.EventID, RoomID: b.RoomID, EventDate: b.EventDate, Confirmed: b.Confirmed,
		})
	}
	return catalog.RoomStatusOnDate(room, date, bookings, selfEventID), nil
}

// hasRoomAuditEntry reports whether Step 3 has already produced an audit
// entry for this thread — part of the first-entry Q&A-skip detection.
func hasRoomAuditEntry(ctx context.Context, hc *Context, threadID string) bool {
	if hc == nil || hc.Store == nil {
		return false
	}
	rows, err := hc.Store.GetAuditByThread(ctx, threadID)
	if err != nil {
		return false
	}
	for _, r := range rows {
		if r.Step == int(model.StepRoom) {
			return true
		}
	}
	return false
}
