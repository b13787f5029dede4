// Package change implements Change Propagation & Routing (C4): given the
// prior event state and a message's UnifiedSignals, it classifies what
// changed (date, room, requirements, products) and picks the step handler
// that must process the change, along with that change's side effects on
// the event's cached evaluation state.
package change

import (
	"strings"
	"time"

	"github.com/openevent-ai/conversation-engine/internal/engine/model"
)

// Type is the kind of change detected between the prior event state and an
// inbound message (§4.4).
type Type string

const (
	Date         Type = "DATE"
	Room         Type = "ROOM"
	Requirements Type = "REQUIREMENTS"
	Products     Type = "PRODUCTS"
	None         Type = "NONE"
)

// Decision is the outcome of routing a detected change: which step must
// process it, and which side effects to apply to the event before dispatch.
type Decision struct {
	Type          Type
	Target        model.Step
	ClearLockedRoom bool // REQUIREMENTS clears locked_room_id
	ClearRoomEvalHash bool // DATE and REQUIREMENTS clear room_eval_hash
}

// Signals is the subset of extracted/detected facts relevant to change
// classification — the regex/LLM entity-extraction layer feeds this in.
type Signals struct {
	NewDate          *time.Time // nil when the message carries no date
	RoomMention      string
	ParticipantCount int // 0 when not mentioned
	SeatingLayout    string
	ProductsAdd      []string
}

// Classify implements the §4.4 decision table. isChangeRequest gates
// detection: when an LLM classification ran (llmAvailable) and it did not
// flag is_change_request, its verdict is authoritative and no regex-derived
// signal is allowed to override it. Without a usable LLM signal,
// regex-derived Signals drive routing as a fallback. Either way, once a
// change is established, the regex-derived Signals still decide which kind
// of change it is (date/room/requirements/products) — the LLM flag only
// gates whether one happened at all.
func Classify(prior *model.Event, sig Signals, isChangeRequest bool, llmAvailable bool) Decision {
	if prior == nil {
		return Decision{Type: None}
	}

	if llmAvailable && !isChangeRequest {
		return Decision{Type: None}
	}

	if dateChanged(prior, sig.NewDate) {
		return Decision{Type: Date, Target: model.StepDate, ClearRoomEvalHash: true}
	}

	if requirementsChanged(prior, sig) {
		return Decision{Type: Requirements, Target: model.StepRoom, ClearLockedRoom: true, ClearRoomEvalHash: true}
	}

	if sig.RoomMention != "" && !strings.EqualFold(sig.RoomMention, prior.LockedRoomID) {
		return Decision{Type: Room, Target: model.StepRoom}
	}

	if len(sig.ProductsAdd) > 0 {
		return Decision{Type: Products, Target: model.StepOffer}
	}

	return Decision{Type: None}
}

// dateChanged normalizes both sides to ISO calendar dates before comparing —
// a formatting difference between "14.09.2026" and "2026-09-14" is never a
// change (§4.4).
func dateChanged(prior *model.Event, newDate *time.Time) bool {
	if newDate == nil {
		return false
	}
	if prior.EventDate == nil {
		return true
	}
	return !sameISODate(*prior.EventDate, *newDate)
}

func sameISODate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// requirementsChanged reports a capacity, seating-layout, or amenity-set
// change — any of which must re-run room evaluation (§4.4).
func requirementsChanged(prior *model.Event, sig Signals) bool {
	if sig.ParticipantCount > 0 && sig.ParticipantCount != prior.ParticipantsCount {
		return true
	}
	if sig.SeatingLayout != "" && !strings.EqualFold(sig.SeatingLayout, prior.SeatingLayout) {
		return true
	}
	return false
}

// OutOfContextGuard blocks a reply from being processed at the stored step
// when there is intent evidence that it belongs elsewhere — i.e. a detected
// change would detour to a different step than storedStep. Billing flow,
// deposit-just-paid, and Step 4/5 confirmation signals bypass the guard
// (§4.4).
func OutOfContextGuard(sig model.UnifiedSignals, decision Decision, storedStep model.Step) bool {
	if sig.BillingSignal || sig.DepositJustPaid {
		return false
	}
	if (storedStep == model.StepOffer || storedStep == model.StepNegotiation) && sig.IsConfirmation {
		return false
	}
	if !sig.HasIntentEvidence() {
		return false
	}
	return decision.Type != None && decision.Target != storedStep
}
