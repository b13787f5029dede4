package steps

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/openevent-ai/conversation-engine/internal/engine/change"
	"github.com/openevent-ai/conversation-engine/internal/engine/model"
)

// maxCounterOffers is how many counter-offer rounds are allowed before the
// negotiation escalates to a manager rather than looping indefinitely.
const maxCounterOffers = 4

// billingFieldPattern captures a "label: value" billing field mentioned in
// free text, e.g. "Street: Main St 1" or "Company - Acme GmbH".
var billingFieldPattern = regexp.MustCompile(`(?i)\b(name|company|street|postal code|city|country)\s*[:\-]\s*([^\n,;]+)`)

// HandleNegotiation runs Step 5: negotiation close. Structural changes
// detour to the step that owns them; counter-offers escalate after
// maxCounterOffers rounds; acceptance moves the event toward Step 6/7 once
// billing and deposit are settled.
func HandleNegotiation(ctx context.Context, hc *Context, conv *model.Conversation, event *model.Event, in Input, sig model.UnifiedSignals) model.StepDecision {
	clean := normalizeApostrophes(strings.TrimSpace(in.Message))
	now := hc.now()

	// The date-change guard runs before any billing capture: a reply that
	// reads as a date change is routed as a change, never mistaken for a
	// billing-detail update.
	if _, ok := resolveDateFromText(clean, now); ok {
		event.RoomEvalHash = ""
		return model.Detour(model.StepDate, model.StepNegotiation)
	}

	mergeBillingFields(event, clean)

	if decision, ok := structuralChangeDetour(hc, event, sig); ok {
		return decision
	}

	switch {
	case sig.IsCounterOffer:
		return handleCounterOffer(event)
	case sig.IsRejection:
		return model.Halt(&model.Draft{Body: "Understood — thanks for letting us know, and we hope to host you another time."})
	case sig.IsAcceptance:
		return handleAcceptance(event)
	default:
		return model.Halt(&model.Draft{Body: "Just to make sure we move forward correctly — could you confirm whether this offer works for you, or let us know what you'd like adjusted?"})
	}
}

// structuralChangeDetour classifies the message against the event's current
// state for a date/room/requirements/products change. The date branch above
// already covers plain date mentions; this covers room/participant/product
// mentions the deterministic signals surface.
func structuralChangeDetour(hc *Context, event *model.Event, sig model.UnifiedSignals) (model.StepDecision, bool) {
	csig := change.Signals{
		RoomMention:      sig.RoomPreference,
		ParticipantCount: 0,
	}
	decision := change.Classify(event, csig, sig.IsChangeRequest, sig.LLMAvailable)
	if decision.Type == change.None {
		return model.StepDecision{}, false
	}
	if decision.ClearLockedRoom {
		event.LockedRoomID = ""
	}
	if decision.ClearRoomEvalHash {
		event.RoomEvalHash = ""
	}
	return model.Detour(decision.Target, model.StepNegotiation), true
}

// handleCounterOffer tracks the negotiation_counter_count and escalates to a
// manager once it passes maxCounterOffers, holding at Step 5 either way.
func handleCounterOffer(event *model.Event) model.StepDecision {
	event.NegotiationCounterCount++
	if event.NegotiationCounterCount >= maxCounterOffers {
		return model.Halt(&model.Draft{
			Body:             "This negotiation needs a manager's judgment call before we continue.",
			RequiresApproval: true,
			HilTaskType:      model.TaskTooManyAttempts,
		})
	}
	return model.Halt(&model.Draft{Body: "Thanks for the counter-offer — let us check with the team and get back to you shortly."})
}

// handleAcceptance sets offer_accepted (recognized by Step 4's billing gate
// on re-entry) and clears to Step 6 only once billing and deposit are both
// settled; otherwise it holds at Step 5 behind a manager-approval draft.
func handleAcceptance(event *model.Event) model.StepDecision {
	event.OfferAccepted = true

	billingComplete := event.BillingDetails.Complete()
	depositOK := !event.DepositState.Required || event.DepositState.Paid

	if billingComplete && depositOK {
		event.NegotiationPendingDecision = false
		event.BillingRequirements.AwaitingBillingForAccept = false
		return model.Advance(model.StepTransition)
	}

	event.NegotiationPendingDecision = true
	if !billingComplete {
		event.BillingRequirements.AwaitingBillingForAccept = true
	}
	return model.Halt(&model.Draft{
		Body:             acceptanceSummaryBody(event, billingComplete, depositOK),
		RequiresApproval: true,
		HilTaskType:      model.TaskAIReplyApproval,
	})
}

func acceptanceSummaryBody(event *model.Event, billingComplete, depositOK bool) string {
	var total float64
	var parts []string
	for _, li := range event.LineItems {
		total += priceLineItem(li, event.ParticipantsCount)
		parts = append(parts, fmt.Sprintf("%dx %s", maxInt(li.Quantity, 1), li.Name))
	}
	body := fmt.Sprintf("Offer accepted: %s. Total CHF %.2f.", strings.Join(parts, ", "), total)
	if !billingComplete {
		body += " Awaiting billing details: " + strings.Join(event.BillingDetails.MissingFields(), ", ") + "."
	}
	if !depositOK {
		body += " Awaiting deposit payment."
	}
	return body
}

// mergeBillingFields folds any "label: value" billing fields found in text
// into event.BillingDetails, never overwriting a field already captured —
// a billing update arriving in a separate message is never dropped.
func mergeBillingFields(event *model.Event, text string) {
	matches := billingFieldPattern.FindAllStringSubmatch(text, -1)
	for _, m := range matches {
		label := strings.ToLower(strings.TrimSpace(m[1]))
		value := strings.TrimSpace(m[2])
		if value == "" {
			continue
		}
		switch label {
		case "name":
			if event.BillingDetails.Name == "" {
				event.BillingDetails.Name = value
			}
		case "company":
			if event.BillingDetails.Company == "" {
				event.BillingDetails.Company = value
			}
		case "street":
			if event.BillingDetails.Street == "" {
				event.BillingDetails.Street = value
			}
		case "postal code":
			if event.BillingDetails.Postal == "" {
				event.BillingDetails.Postal = value
			}
		case "city":
			if event.BillingDetails.City == "" {
				event.BillingDetails.City = value
			}
		case "country":
			if event.BillingDetails.Country == "" {
				event.BillingDetails.Country = value
			}
		}
	}
}
