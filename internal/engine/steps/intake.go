package steps

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/openevent-ai/conversation-engine/internal/engine/model"
)

// shortAcceptancePattern recognizes a short reply that, in isolation, looks
// like low-signal chatter but in the context of an ongoing negotiation is a
// clear continue/accept. Curly apostrophes are normalized before matching.
var shortAcceptancePattern = regexp.MustCompile(`(?i)^\s*(continue|please send|that's fine|sounds good|go ahead)\s*[.!]*\s*$`)

// catalogItemAddPattern recognizes a client asking to add another unit of a
// product already on the offer ("add another wireless microphone").
var catalogItemAddPattern = regexp.MustCompile(`(?i)\badd (?:another|one more|an extra)\s+([a-z][a-z \-]*)`)

// looseDatePattern is a best-effort existence/parse check (not the
// authoritative parse — Step 2 owns relative-phrase resolution) used only to
// decide whether a concrete date is present at all, for the reuse decision.
var looseDatePattern = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b|\b(\d{1,2})\.(\d{1,2})\.(\d{4})\b`)

func parseLooseDate(s string) *time.Time {
	m := looseDatePattern.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	var t time.Time
	var err error
	if m[1] != "" {
		t, err = time.Parse("2006-01-02", m[1]+"-"+m[2]+"-"+m[3])
	} else {
		t, err = time.Parse("2.1.2006", m[4]+"."+m[5]+"."+m[6])
	}
	if err != nil {
		return nil
	}
	return &t
}

// IntakeResult is Step 1's outcome: the control decision, plus whether the
// caller's existing event may be reused or a fresh one must replace it (the
// event-reuse invariant decision belongs here since Step 1 is the only
// handler that runs before an event is attached to the conversation).
type IntakeResult struct {
	Decision   model.StepDecision
	ReuseEvent bool
}

// HandleIntake runs Step 1. Client upsert and history recording have already
// happened at the orchestrator boundary (it owns the store); this handler
// covers classification, the confidence gate, the acceptance-shortcut
// heuristic, catalog-item detection, requirements hashing, and the
// event-reuse decision.
func HandleIntake(ctx context.Context, hc *Context, conv *model.Conversation, event *model.Event, in Input, sig model.UnifiedSignals) IntakeResult {
	clean := normalizeApostrophes(strings.TrimSpace(in.Message))

	// Heuristic upgrade: a short acceptance reply is force-classified as an
	// event request pinned straight to negotiation close, bypassing the
	// confidence gate entirely.
	if shortAcceptancePattern.MatchString(clean) {
		return IntakeResult{Decision: model.Advance(model.StepNegotiation), ReuseEvent: true}
	}

	// Catalog-item detection keeps an in-flight offer iterating instead of
	// falling into manual review, regardless of classifier confidence.
	if m := catalogItemAddPattern.FindStringSubmatch(clean); m != nil {
		conv.Extras.PendingProductsAdd = append(conv.Extras.PendingProductsAdd, strings.TrimSpace(m[1]))
		return IntakeResult{Decision: model.Advance(model.StepOffer), ReuseEvent: true}
	}

	thresholds := resolveThresholds(ctx, hc)
	if sig.Confidence < thresholds.HighConfidence || sig.Intent == model.IntentOther {
		return IntakeResult{
			Decision: model.Halt(&model.Draft{
				Body:             "Thanks for reaching out — one of our team will follow up shortly to make sure we understand your request correctly.",
				RequiresApproval: true,
				HilTaskType:      model.TaskManualReview,
			}),
			ReuseEvent: true,
		}
	}

	// Clearing billing-flow state before any step change avoids the
	// pre-route correction at the orchestrator forcing current_step back to
	// 5 on a date change mid-billing-capture.
	if event != nil && event.OfferAccepted && event.BillingRequirements.AwaitingBillingForAccept && sig.IsChangeRequest {
		event.BillingRequirements.AwaitingBillingForAccept = false
	}

	newDate := parseLooseDate(clean)
	if event == nil {
		return IntakeResult{Decision: model.Advance(model.StepDate), ReuseEvent: true}
	}

	reuse := event.ShouldReuse(newDate, sig.IsChangeRequest)
	if !reuse {
		return IntakeResult{Decision: model.Advance(model.StepDate), ReuseEvent: false}
	}

	products := append([]string(nil), conv.Extras.PendingProductsAdd...)
	newHash := hashRequirements(event.ParticipantsCount, event.SeatingLayout, products)
	requirementsChanged := newHash != event.RequirementsHash
	event.RequirementsHash = newHash
	if requirementsChanged {
		event.RoomEvalHash = ""
	}

	dateChanged := newDate != nil && event.EventDate != nil && !sameISODate(*newDate, *event.EventDate)

	switch {
	case requirementsChanged:
		return IntakeResult{Decision: model.Detour(model.StepRoom, model.StepIntake), ReuseEvent: true}
	case dateChanged:
		return IntakeResult{Decision: model.Detour(model.StepDate, model.StepIntake), ReuseEvent: true}
	default:
		return IntakeResult{Decision: model.Advance(model.StepDate), ReuseEvent: true}
	}
}

func sameISODate(a, b time.Time) bool {
	return a.Format("2006-01-02") == b.Format("2006-01-02")
}
