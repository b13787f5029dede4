package steps

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openevent-ai/conversation-engine/internal/engine/catalog"
	"github.com/openevent-ai/conversation-engine/internal/engine/model"
	"github.com/openevent-ai/conversation-engine/internal/engine/store"
)

// HandleOffer runs Step 4: offer preparation. Room selection never implies
// offer acceptance — an accept/decline verdict belongs entirely to Step 5.
func HandleOffer(ctx context.Context, hc *Context, conv *model.Conversation, event *model.Event, in Input, sig model.UnifiedSignals) model.StepDecision {
	// Entry with a pending manager decision: the client already sees "sent to
	// manager" and nothing is re-emitted or re-queued.
	if event.NegotiationPendingDecision {
		return model.Halt(&model.Draft{Body: "Thanks — your offer has been sent to our team for a final check. We'll follow up shortly."})
	}

	if hc.Venue == nil {
		return model.Halt(&model.Draft{Body: "We're still setting up our catalog — someone from our team will follow up shortly."})
	}

	// A detour into Step 4 invalidates whatever negotiation hold was in
	// place before the structural change was detected.
	if conv.CallerStep != nil {
		event.NegotiationPendingDecision = false
	}

	if event.OfferAccepted {
		return offerAcceptanceGate(ctx, hc, conv, event)
	}

	normalizeProductOps(hc.Venue, conv, event)

	lineItems, total, currency := composeOffer(hc.Venue, event)
	event.LineItems = lineItems

	if err := recordOfferVersion(ctx, hc, event); err != nil {
		// A failed version write never blocks the client-facing draft — the
		// offer still goes out, just without a recorded history row.
		_ = err
	}

	if !detourReentryForOffer(conv) && sig.IsQuestion && len(sig.QnATypes) > 0 {
		return model.Halt(&model.Draft{Body: qnaHoldingBody(sig.QnATypes)})
	}

	body := formatOfferBody(hc.Venue, conv, event, lineItems, total, currency)
	facts := model.FactsBundle{
		Amounts:   []string{fmt.Sprintf("%s %.2f", currency, total)},
		RoomNames: roomNameOrEmpty(hc.Venue, event.LockedRoomID),
	}
	if event.EventDate != nil {
		facts.Dates = []string{event.EventDate.Format("02.01.2006")}
	}
	if window := timeWindowLabel(event); window != "" {
		facts.TimeWindows = []string{window}
	}
	if event.ParticipantsCount > 0 {
		facts.ParticipantCounts = []int{event.ParticipantsCount}
	}
	return model.Halt(&model.Draft{Body: body, Facts: facts})
}

// detourReentryForOffer mirrors the other handlers' QNA_GUARD bypass: a
// validated detour into this step skips the Q&A-holding path.
func detourReentryForOffer(conv *model.Conversation) bool {
	return conv.CallerStep != nil || conv.Extras.ChangeDetour
}

// offerAcceptanceGate handles Step 4 being re-entered after Step 5 recorded
// an acceptance: billing must be complete before the offer moves on.
func offerAcceptanceGate(ctx context.Context, hc *Context, conv *model.Conversation, event *model.Event) model.StepDecision {
	if event.BillingDetails.Complete() {
		event.BillingRequirements.AwaitingBillingForAccept = false
		event.NegotiationPendingDecision = true
		return model.StepDecision{
			Kind:     model.DecisionAdvance,
			NextStep: model.StepNegotiation,
			Draft: &model.Draft{
				Body:             formatAcceptanceSummary(event),
				RequiresApproval: true,
				HilTaskType:      model.TaskOfferMessage,
			},
		}
	}

	event.BillingRequirements.AwaitingBillingForAccept = true
	missing := event.BillingDetails.MissingFields()
	return model.Halt(&model.Draft{
		Body: "Thanks for confirming! To finalize the contract we still need: " + strings.Join(missing, ", ") + ".",
	})
}

// normalizeProductOps increments existing line-item quantities for every
// pending add from Step 1's catalog-item detection, or appends a new line
// item when the product has not been ordered yet. Pending adds are cleared
// once applied so they are never double-counted on the next turn.
func normalizeProductOps(v *catalog.Venue, conv *model.Conversation, event *model.Event) {
	if len(conv.Extras.PendingProductsAdd) == 0 {
		return
	}
	for _, name := range conv.Extras.PendingProductsAdd {
		product, ok := matchProductByName(v, name)
		if !ok {
			continue
		}
		found := false
		for i := range event.LineItems {
			if event.LineItems[i].ProductID == product.ID {
				event.LineItems[i].Quantity++
				found = true
				break
			}
		}
		if !found {
			event.LineItems = append(event.LineItems, model.LineItem{
				ProductID: product.ID, Name: product.Name, Quantity: 1,
				UnitPrice: product.UnitPrice, Unit: product.Unit,
			})
		}
	}
	conv.Extras.PendingProductsAdd = nil
}

func matchProductByName(v *catalog.Venue, name string) (catalog.Product, bool) {
	if v == nil {
		return catalog.Product{}, false
	}
	lower := strings.ToLower(strings.TrimSpace(name))
	for _, p := range v.Products {
		if strings.Contains(strings.ToLower(p.Name), lower) || strings.Contains(lower, strings.ToLower(p.Name)) {
			return p, true
		}
	}
	return catalog.Product{}, false
}

// composeOffer builds the full line-item set (room plus ordered products)
// and the priced total. The room itself is carried as a catalog product
// keyed "room-<room_id>" — the same convention the offer-history fixtures use.
func composeOffer(v *catalog.Venue, event *model.Event) ([]model.LineItem, float64, string) {
	lineItems := append([]model.LineItem(nil), event.LineItems...)

	if event.LockedRoomID != "" {
		roomProductID := "room-" + event.LockedRoomID
		hasRoom := false
		for _, li := range lineItems {
			if li.ProductID == roomProductID {
				hasRoom = true
				break
			}
		}
		if !hasRoom {
			if p, ok := v.ProductByID(roomProductID); ok {
				lineItems = append([]model.LineItem{{
					ProductID: p.ID, Name: p.Name, Quantity: 1, UnitPrice: p.UnitPrice, Unit: p.Unit,
				}}, lineItems...)
			}
		}
	}

	var total float64
	for _, li := range lineItems {
		total += priceLineItem(li, event.ParticipantsCount)
	}
	return lineItems, total, "CHF"
}

func priceLineItem(li model.LineItem, participants int) float64 {
	switch li.Unit {
	case "per_person":
		return li.UnitPrice * float64(participants) * float64(maxInt(li.Quantity, 1))
	default:
		return li.UnitPrice * float64(maxInt(li.Quantity, 1))
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func recordOfferVersion(ctx context.Context, hc *Context, event *model.Event) error {
	if hc.Store == nil {
		return nil
	}
	seq, err := hc.Store.NextOfferSequence(ctx, event.EventID)
	if err != nil {
		return err
	}
	blob, err := json.Marshal(event.LineItems)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(blob)
	event.OfferSequence = seq
	return hc.Store.CreateOfferVersion(ctx, &store.OfferVersion{
		EventID: event.EventID, Sequence: seq, Hash: hex.EncodeToString(sum[:]), BlobJSON: string(blob),
	})
}

func formatOfferBody(v *catalog.Venue, conv *model.Conversation, event *model.Event, lineItems []model.LineItem, total float64, currency string) string {
	var b strings.Builder
	if conv.Extras.RoomConfirmationPrefix != "" {
		b.WriteString(conv.Extras.RoomConfirmationPrefix)
		conv.Extras.RoomConfirmationPrefix = ""
	}
	b.WriteString("Here's your offer")
	if event.EventDate != nil {
		b.WriteString(" for " + event.EventDate.Format("02.01.2006"))
		if window := timeWindowLabel(event); window != "" {
			b.WriteString(" (" + window + ")")
		}
	}
	if event.ParticipantsCount > 0 {
		b.WriteString(fmt.Sprintf(", %d guests", event.ParticipantsCount))
	}
	b.WriteString(": ")
	var parts []string
	for _, li := range lineItems {
		parts = append(parts, fmt.Sprintf("%dx %s", maxInt(li.Quantity, 1), li.Name))
	}
	b.WriteString(strings.Join(parts, ", "))
	b.WriteString(fmt.Sprintf(". Total: %s %.2f", currency, total))

	if !event.BillingDetails.Complete() {
		b.WriteString(". Once you're ready to proceed, we'll also need your billing details.")
	}

	if !hasChosenMenu(v, lineItems) && len(v.Menus) > 0 {
		var menuNames []string
		for _, m := range v.Menus {
			menuNames = append(menuNames, m.Name)
		}
		b.WriteString(" If you'd like catering, our menus include: " + strings.Join(menuNames, ", ") + ".")
	}

	if conv.Extras.TimeWarning != "" {
		b.WriteString(" Note: " + conv.Extras.TimeWarning)
	}
	return b.String()
}

func hasChosenMenu(v *catalog.Venue, lineItems []model.LineItem) bool {
	for _, li := range lineItems {
		for _, m := range v.Menus {
			if li.ProductID == m.ID {
				return true
			}
		}
	}
	return false
}

// timeWindowLabel formats the event's locked start/end times as
// "14:00–18:00", or "" when either side is unset.
func timeWindowLabel(event *model.Event) string {
	if event.StartTime == "" || event.EndTime == "" {
		return ""
	}
	return event.StartTime + "–" + event.EndTime
}

func roomNameOrEmpty(v *catalog.Venue, roomID string) []string {
	if roomID == "" || v == nil {
		return nil
	}
	if r, ok := v.RoomByID(roomID); ok {
		return []string{r.Name}
	}
	return nil
}

func formatAcceptanceSummary(event *model.Event) string {
	var total float64
	var parts []string
	for _, li := range event.LineItems {
		total += priceLineItem(li, event.ParticipantsCount)
		parts = append(parts, fmt.Sprintf("%dx %s", maxInt(li.Quantity, 1), li.Name))
	}
	return fmt.Sprintf("Offer accepted: %s. Total CHF %.2f. Billing: %s, %s, %s %s, %s.",
		strings.Join(parts, ", "), total,
		event.BillingDetails.Name, event.BillingDetails.Street, event.BillingDetails.Postal,
		event.BillingDetails.City, event.BillingDetails.Country)
}
