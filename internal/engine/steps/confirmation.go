package steps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openevent-ai/conversation-engine/internal/engine/catalog"
	"github.com/openevent-ai/conversation-engine/internal/engine/model"
)

// siteVisitTimeSlots are the candidate times offered at Step B of the
// site-visit flow — three spaced-out slots inside a typical operating
// window, never auto-selected for the client.
var siteVisitTimeSlots = []string{"10:00", "14:00", "17:00"}

// HandleConfirmation runs Step 7: event confirmation. deposit_just_paid
// overrides everything else and routes straight to the deposit-receipt
// branch; otherwise the site-visit flow takes priority over a plain
// confirm/decline classification whenever it is already underway or the
// message itself carries a site-visit keyword.
func HandleConfirmation(ctx context.Context, hc *Context, conv *model.Conversation, event *model.Event, in Input, sig model.UnifiedSignals) model.StepDecision {
	clean := normalizeApostrophes(strings.TrimSpace(in.Message))
	now := hc.now()

	if sig.DepositJustPaid {
		event.DepositState.Paid = true
		t := now
		event.DepositState.PaidAt = &t
		return model.Halt(&model.Draft{
			Body:             "Thanks, we've recorded your deposit payment.",
			RequiresApproval: true,
			HilTaskType:      model.TaskConfirmationMessage,
		})
	}

	if wantsSiteVisit(event, sig) {
		return handleSiteVisitFlow(hc, event, clean, now)
	}

	switch {
	case sig.IsRejection:
		event.Status = model.EventCancelled
		return model.Halt(&model.Draft{
			Body:             "Understood — we'll cancel this booking and hope to host you another time.",
			RequiresApproval: true,
			HilTaskType:      model.TaskConfirmationMessage,
		})
	case sig.IsAcceptance:
		available, err := roomStillAvailable(ctx, hc, event)
		if err == nil && !available {
			conv.Extras.LockedRoomUnavailableOnDate = true
			event.RoomEvalHash = ""
			return model.Detour(model.StepRoom, model.StepConfirmation)
		}
		event.Status = model.EventConfirmed
		return model.Halt(&model.Draft{
			Body:             fmt.Sprintf("Wonderful — your event is confirmed for %s.", formatEventDate(event)),
			RequiresApproval: true,
			HilTaskType:      model.TaskConfirmationMessage,
		})
	default:
		return model.Halt(&model.Draft{Body: "Just to confirm — would you like to proceed with this booking as is?"})
	}
}

// wantsSiteVisit reports whether the current message should be routed into
// the site-visit flow rather than plain confirm/decline handling: either a
// visit is already in progress (proposed or time_pending), or the message
// itself carries the site-visit keyword the Q&A matcher surfaces.
func wantsSiteVisit(event *model.Event, sig model.UnifiedSignals) bool {
	if event.SiteVisitState.Status == model.SiteVisitProposed || event.SiteVisitState.Status == model.SiteVisitTimePending {
		return true
	}
	for _, t := range sig.QnATypes {
		if t == "site_visit_request" {
			return true
		}
	}
	return false
}

// handleSiteVisitFlow drives the two-step site-visit flow: Step A proposes
// dates, Step B (once a date is picked) proposes times. Neither step ever
// auto-selects on the client's behalf; a date that lands on a closed day is
// treated as a conflict and answered with a fresh round of alternatives.
func handleSiteVisitFlow(hc *Context, event *model.Event, clean string, now time.Time) model.StepDecision {
	switch event.SiteVisitState.Status {
	case model.SiteVisitTimePending:
		if picked, ok := matchSiteVisitTime(clean); ok {
			event.SiteVisitState.ConfirmedTime = picked
			event.SiteVisitState.Status = model.SiteVisitScheduled
			return model.Halt(&model.Draft{
				Body:             fmt.Sprintf("Your site visit is scheduled for %s at %s.", formatSiteVisitDate(event), picked),
				RequiresApproval: true,
				HilTaskType:      model.TaskTransitionMessage,
			})
		}
		return model.Halt(&model.Draft{
			Body: "Which time works for your visit: " + strings.Join(siteVisitTimeSlots, ", ") + "?",
		})

	case model.SiteVisitProposed:
		if d, ok := resolveDateFromText(clean, now); ok {
			if hc.Venue != nil && hc.Venue.IsClosed(d) {
				dates := proposeSiteVisitDates(hc, now)
				event.SiteVisitState.ProposedDates = dates
				return model.Halt(&model.Draft{
					Body: "We're closed that day — here are some alternatives: " + formatSiteVisitDates(dates) + ".",
				})
			}
			event.SiteVisitState.SelectedDate = &d
			event.SiteVisitState.Status = model.SiteVisitTimePending
			return model.Halt(&model.Draft{
				Body: fmt.Sprintf("Great, %s it is. Which time works: %s?", d.Format("02.01.2006"), strings.Join(siteVisitTimeSlots, ", ")),
			})
		}
		return model.Halt(&model.Draft{
			Body: "Which of these dates works for your visit: " + formatSiteVisitDates(event.SiteVisitState.ProposedDates) + "?",
		})

	default:
		dates := proposeSiteVisitDates(hc, now)
		event.SiteVisitState.Status = model.SiteVisitProposed
		event.SiteVisitState.ProposedDates = dates
		return model.Halt(&model.Draft{
			Body: "We'd be glad to host a site visit. Here are some available dates: " + formatSiteVisitDates(dates) + ". Which works for you?",
		})
	}
}

func proposeSiteVisitDates(hc *Context, now time.Time) []time.Time {
	if hc.Venue == nil {
		return nil
	}
	return hc.Venue.SuggestDates(now, nil)
}

func formatSiteVisitDates(dates []time.Time) string {
	labels := make([]string, 0, len(dates))
	for _, d := range dates {
		labels = append(labels, d.Format("02.01.2006"))
	}
	return strings.Join(labels, ", ")
}

func formatSiteVisitDate(event *model.Event) string {
	if event.SiteVisitState.SelectedDate == nil {
		return "the agreed date"
	}
	return event.SiteVisitState.SelectedDate.Format("02.01.2006")
}

func matchSiteVisitTime(clean string) (string, bool) {
	start, _ := resolveConfirmationWindow(clean)
	if start == "" {
		return "", false
	}
	for _, slot := range siteVisitTimeSlots {
		if slot == start {
			return slot, true
		}
	}
	return "", false
}

func formatEventDate(event *model.Event) string {
	if event.EventDate == nil {
		return "the agreed date"
	}
	return event.EventDate.Format("02.01.2006")
}

// roomStillAvailable re-checks the locked room's availability on the event's
// date immediately before confirming (§5): a cross-client booking race can
// take the slot between room selection and this final step, and a booking
// must never be confirmed onto a room someone else now holds.
func roomStillAvailable(ctx context.Context, hc *Context, event *model.Event) (bool, error) {
	if hc.Venue == nil || event.LockedRoomID == "" || event.EventDate == nil {
		return true, nil
	}
	room, ok := hc.Venue.RoomByID(event.LockedRoomID)
	if !ok {
		return true, nil
	}
	status, err := roomStatusOnDate(ctx, hc, room, *event.EventDate, event.EventID)
	if err != nil {
		return true, err
	}
	return status == catalog.RoomAvailable, nil
}
