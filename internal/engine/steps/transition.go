package steps

import (
	"context"
	"strings"

	"github.com/openevent-ai/conversation-engine/internal/engine/model"
)

// HandleTransition runs Step 6: the transition checkpoint. It collects
// blockers against the event's current state and either holds with a
// clarification draft or advances to Step 7 once every gate is clear.
func HandleTransition(ctx context.Context, hc *Context, conv *model.Conversation, event *model.Event, in Input, sig model.UnifiedSignals) model.StepDecision {
	blockers := transitionBlockers(event)
	if len(blockers) > 0 {
		return model.Halt(&model.Draft{Body: transitionBlockersBody(blockers)})
	}

	event.TransitionReady = true
	return model.Advance(model.StepConfirmation)
}

// transitionBlockers lists, in a stable order, every gate still open before
// an event can move to confirmation.
func transitionBlockers(event *model.Event) []string {
	var blockers []string

	if event.EventDate == nil {
		blockers = append(blockers, "a confirmed date")
	}
	if event.LockedRoomID == "" {
		blockers = append(blockers, "a locked room")
	}
	if event.RequirementsHash == "" || event.RoomEvalHash != event.RequirementsHash {
		blockers = append(blockers, "a room evaluation matching the current requirements")
	}
	if !event.OfferAccepted {
		blockers = append(blockers, "offer acceptance")
	}
	if event.DepositState.Required && !event.DepositState.Paid {
		blockers = append(blockers, "the deposit payment")
	}
	if !siteVisitResolved(event.SiteVisitState) {
		blockers = append(blockers, "the site visit")
	}

	return blockers
}

// siteVisitResolved reports whether the two-step site-visit flow has either
// never started or reached a terminal state. A visit sitting at
// proposed/time_pending/scheduled is still open and blocks the transition.
func siteVisitResolved(s model.SiteVisitState) bool {
	switch s.Status {
	case model.SiteVisitProposed, model.SiteVisitTimePending, model.SiteVisitScheduled:
		return false
	default:
		return true
	}
}

func transitionBlockersBody(blockers []string) string {
	return "Before we can confirm this event, we still need: " + strings.Join(blockers, ", ") + "."
}
