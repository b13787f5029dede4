// Package model defines the core data types shared across the conversation
// engine: Conversation, Event, Client, and HilTask, plus the small set of
// value types (UnifiedSignals, StepDecision, WorkflowReply) that flow between
// the orchestrator and the step handlers.
//
// Every handler input/output is a concretely-typed struct rather than a
// dynamic map — extensions add fields or variants, never new untyped keys.
package model

import (
	"strings"
	"time"

	"github.com/openevent-ai/conversation-engine/common/redact"
)

// Step identifies one of the seven workflow positions.
type Step int

const (
	StepIntake Step = 1 + iota
	StepDate
	StepRoom
	StepOffer
	StepNegotiation
	StepTransition
	StepConfirmation
)

// String renders a Step for logs and audit rows.
func (s Step) String() string {
	switch s {
	case StepIntake:
		return "intake"
	case StepDate:
		return "date"
	case StepRoom:
		return "room"
	case StepOffer:
		return "offer"
	case StepNegotiation:
		return "negotiation"
	case StepTransition:
		return "transition"
	case StepConfirmation:
		return "confirmation"
	default:
		return "unknown"
	}
}

// MessageRole identifies who authored a message_history entry.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleManager   MessageRole = "manager"
)

// HistoryEntry is one entry in a Conversation's message_history. Only a
// 160-char preview of the body is retained for context snapshots.
type HistoryEntry struct {
	Role        MessageRole
	Body        string
	Preview     string
	Timestamp   time.Time
	IntentLabel string
}

const historyPreviewLen = 160

// NewHistoryEntry builds a HistoryEntry, deriving Preview from Body.
func NewHistoryEntry(role MessageRole, body, intentLabel string, ts time.Time) HistoryEntry {
	return HistoryEntry{
		Role:        role,
		Body:        body,
		Preview:     Preview(body, historyPreviewLen),
		Timestamp:   ts,
		IntentLabel: intentLabel,
	}
}

// Preview truncates s to at most n runes, appending an ellipsis when truncated.
func Preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// Conversation identifies a thread with one client (§3).
type Conversation struct {
	ThreadID          string
	ClientEmail       string // lowercased
	CurrentStep       Step
	CallerStep        *Step // nil when not mid-detour
	MessageHistory    []HistoryEntry
	PendingHilTaskIDs map[HilKey]string // (step, action) -> task ID
	Extras            Extras
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HilKey is the dedupe key for pending_hil_requests: (step, action).
type HilKey struct {
	Step   Step
	Action string
}

// Extras is the per-conversation scratchpad for detours and cross-step
// signals. Fields are explicit (not a dynamic map) so extensions are
// reviewable, per the "dynamic payload dictionaries" redesign note.
type Extras struct {
	HybridQnAResponse           string
	RoomConfirmationPrefix      string
	TimeWarning                 string
	DepositJustPaid             bool
	LockedRoomUnavailableOnDate bool
	ChangeDetour                bool
	SequentialCateringLookahead bool
	PendingProductsAdd          []string
}

// Clear resets all detour/cross-step scratch fields. Called defensively at
// detour boundaries (§3 invariant).
func (e *Extras) Clear() {
	*e = Extras{}
}

// NewConversation starts a fresh conversation at Step 1.
func NewConversation(threadID, clientEmail string, now time.Time) *Conversation {
	return &Conversation{
		ThreadID:          threadID,
		ClientEmail:       clientEmail,
		CurrentStep:       StepIntake,
		PendingHilTaskIDs: make(map[HilKey]string),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// EventStatus is the lifecycle state of a booking.
type EventStatus string

const (
	EventLead      EventStatus = "lead"
	EventOption    EventStatus = "option"
	EventConfirmed EventStatus = "confirmed"
	EventCancelled EventStatus = "cancelled"
)

// OfferStatus tracks where the current offer sits in the negotiation cycle.
type OfferStatus string

const (
	OfferDraft        OfferStatus = "draft"
	OfferSent         OfferStatus = "sent"
	OfferAwaitingHIL  OfferStatus = "awaiting_hil"
	OfferAccepted     OfferStatus = "accepted"
	OfferSuperseded   OfferStatus = "superseded"
)

// SiteVisitStatus is the two-step site-visit scheduling state (§4.6.7).
type SiteVisitStatus string

const (
	SiteVisitIdle        SiteVisitStatus = "idle"
	SiteVisitProposed    SiteVisitStatus = "proposed"
	SiteVisitTimePending SiteVisitStatus = "time_pending"
	SiteVisitScheduled   SiteVisitStatus = "scheduled"
	SiteVisitCompleted   SiteVisitStatus = "completed"
	SiteVisitDeclined    SiteVisitStatus = "declined"
	SiteVisitNoShow      SiteVisitStatus = "no_show"
)

// BillingDetails is the billing address captured before offer acceptance.
type BillingDetails struct {
	Name    string
	Company string
	Street  string
	Postal  string
	City    string
	Country string
}

// Complete reports whether the billing gate (§4.8) is satisfied:
// (name ∨ company) ∧ street ∧ postal ∧ city ∧ country.
func (b BillingDetails) Complete() bool {
	return (b.Name != "" || b.Company != "") &&
		b.Street != "" && b.Postal != "" && b.City != "" && b.Country != ""
}

// MissingFields lists the billing fields still required, in a stable order.
func (b BillingDetails) MissingFields() []string {
	var missing []string
	if b.Name == "" && b.Company == "" {
		missing = append(missing, "name or company")
	}
	if b.Street == "" {
		missing = append(missing, "street")
	}
	if b.Postal == "" {
		missing = append(missing, "postal code")
	}
	if b.City == "" {
		missing = append(missing, "city")
	}
	if b.Country == "" {
		missing = append(missing, "country")
	}
	return missing
}

// BillingRequirements tracks whether we are in the billing-capture flow
// triggered by an offer acceptance (§4.6.1, §4.6.5).
type BillingRequirements struct {
	AwaitingBillingForAccept bool
}

// DepositState tracks the deposit gate (§4.8).
type DepositState struct {
	Required bool
	Amount   float64
	Currency string
	Deadline *time.Time
	Paid     bool
	PaidAt   *time.Time
}

// SiteVisitState tracks the two-step site-visit flow (§4.6.7).
type SiteVisitState struct {
	Status        SiteVisitStatus
	ProposedDates []time.Time
	SelectedDate  *time.Time
	ConfirmedTime string
}

// RoomPendingDecision records a candidate room awaiting missing-product
// arrangement before it is finalized as locked_room_id (§4.6.3).
type RoomPendingDecision struct {
	RoomID          string
	MissingProducts []string
}

// LineItem is one priced product/room line in an offer.
type LineItem struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice float64
	Unit      string // per event, per person, per hour, per day, per night, per week, flat fee
}

// AuditEntry is one append-only row in Event.audit_log (§3).
type AuditEntry struct {
	Step      Step
	Action    string
	Timestamp time.Time
	Data      map[string]string
	TraceID   string
}

// Event is a booking in progress (§3).
type Event struct {
	EventID          string
	ClientID         string
	ThreadID         string
	Status           EventStatus
	EventDate        *time.Time // ISO date, time component zeroed
	StartTime        string     // "HH:MM"
	EndTime          string     // "HH:MM"
	ParticipantsCount int
	SeatingLayout    string
	RequirementsHash string
	RoomEvalHash     string

	LockedRoomID        string
	RoomPendingDecision *RoomPendingDecision

	OfferSequence  int
	OfferStatus    OfferStatus
	OfferAccepted  bool
	CurrentOfferID string
	LineItems      []LineItem

	BillingDetails       BillingDetails
	BillingRequirements  BillingRequirements

	DepositState DepositState

	SiteVisitState SiteVisitState

	NegotiationPendingDecision bool
	NegotiationCounterCount   int

	TransitionReady bool

	AuditLog []AuditEntry

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AppendAudit appends an audit row and bumps UpdatedAt.
func (e *Event) AppendAudit(step Step, action, traceID string, data map[string]string, now time.Time) {
	e.AuditLog = append(e.AuditLog, AuditEntry{
		Step: step, Action: action, Timestamp: now, Data: data, TraceID: traceID,
	})
	e.UpdatedAt = now
}

// ShouldReuse implements the event-reuse invariant from §3: the prior event
// is terminated and a new one created whenever it is confirmed/cancelled,
// has offer_accepted=true, has a site visit in {proposed, scheduled}, or the
// new message carries a concrete date different from event_date that is not
// a detected change request on the existing event.
func (e *Event) ShouldReuse(newDate *time.Time, isChangeRequest bool) bool {
	if e == nil {
		return false
	}
	if e.Status == EventConfirmed || e.Status == EventCancelled {
		return false
	}
	if e.OfferAccepted {
		return false
	}
	if e.SiteVisitState.Status == SiteVisitProposed || e.SiteVisitState.Status == SiteVisitScheduled {
		return false
	}
	if newDate != nil && e.EventDate != nil && !sameDate(*newDate, *e.EventDate) && !isChangeRequest {
		return false
	}
	return true
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Client is keyed by lowercased email (§3).
type Client struct {
	Email          string
	Name           string
	Company        string
	HistoryPreview []string // last 5 message previews
	ContextHash    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RecordHistoryPreview appends a preview, keeping only the last 5 (§3).
func (c *Client) RecordHistoryPreview(preview string) {
	c.HistoryPreview = append(c.HistoryPreview, preview)
	const max = 5
	if len(c.HistoryPreview) > max {
		c.HistoryPreview = c.HistoryPreview[len(c.HistoryPreview)-max:]
	}
}

// HilTaskType enumerates the HIL task kinds (§3).
type HilTaskType string

const (
	TaskAskForDate             HilTaskType = "ask_for_date"
	TaskManualReview           HilTaskType = "manual_review"
	TaskOfferMessage           HilTaskType = "offer_message"
	TaskRoomAvailabilityMsg    HilTaskType = "room_availability_message"
	TaskDateConfirmationMsg    HilTaskType = "date_confirmation_message"
	TaskAIReplyApproval        HilTaskType = "ai_reply_approval"
	TaskConfirmationMessage    HilTaskType = "confirmation_message"
	TaskTransitionMessage      HilTaskType = "transition_message"
	TaskSpecialRequest         HilTaskType = "special_request"
	TaskTooManyAttempts        HilTaskType = "too_many_attempts"
)

// HilTaskStatus is the lifecycle state of a HIL task (§3).
type HilTaskStatus string

const (
	HilPending    HilTaskStatus = "pending"
	HilApproved   HilTaskStatus = "approved"
	HilRejected   HilTaskStatus = "rejected"
	HilSuperseded HilTaskStatus = "superseded"
	HilExpired    HilTaskStatus = "expired"
)

// HilTask is a pending (or resolved) human-in-the-loop approval (§3).
type HilTask struct {
	TaskID        string
	ThreadID      string
	EventID       string
	Step          Step
	TaskType      HilTaskType
	Body          string // client-visible text
	BodyMarkdown  string // manager-visible summary
	EventSummary  string
	Status        HilTaskStatus
	Notes         string
	EditedMessage string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	ResolvedAt    *time.Time
}

// DefaultHilTTL is how long a pending HIL task remains valid before the
// expiry sweep marks it expired (§4, supplemented feature; longer than the
// teacher's 24h ops-approval TTL since manager review cadence is slower).
const DefaultHilTTL = 72 * time.Hour

// IsExpired reports whether a pending task has passed its deadline.
func (t *HilTask) IsExpired(now time.Time) bool {
	return t.Status == HilPending && now.After(t.ExpiresAt)
}

// FallbackSource identifies which LLM adapter produced a fallback (§4.2, §7).
type FallbackSource string

const (
	SourceIntentClassifier FallbackSource = "intent_classifier"
	SourceEntityExtractor  FallbackSource = "entity_extractor"
	SourceVerbalizer       FallbackSource = "verbalizer"
)

// FallbackReason is emitted whenever an LLM adapter fails closed.
type FallbackReason struct {
	Source       FallbackSource
	Trigger      string // e.g. "llm_exception", "rate_limit", "timeout", "empty_output"
	FailedChecks []string
	Context      string
	Err          error
}

func (f *FallbackReason) Error() string {
	if f == nil {
		return ""
	}
	msg := string(f.Source) + ": " + f.Trigger
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

// Diagnostic renders the fallback for an audit trail or operator log. In
// production it collapses to a single generic sentence (§4.2, §7: "in prod
// they are redacted to a single system error sentence"); elsewhere it
// includes the full trigger/context/error detail with sensitiveValues (API
// keys, tokens) scrubbed.
func (f *FallbackReason) Diagnostic(prod bool, sensitiveValues ...string) string {
	if f == nil {
		return ""
	}
	if prod {
		return "system error"
	}
	msg := f.Error()
	if f.Context != "" {
		msg += " context=" + f.Context
	}
	if len(f.FailedChecks) > 0 {
		msg += " failed_checks=" + strings.Join(f.FailedChecks, ",")
	}
	return redact.String(msg, sensitiveValues...)
}

// StepDecisionKind is the tagged-union discriminant for a step handler's
// control-flow outcome (§9 redesign note: handlers return a StepDecision,
// the orchestrator owns control flow).
type StepDecisionKind string

const (
	DecisionHalt           StepDecisionKind = "halt"
	DecisionAdvance        StepDecisionKind = "advance"
	DecisionDetour         StepDecisionKind = "detour"
	DecisionReturnToCaller StepDecisionKind = "return_to_caller"
)

// Draft is a deterministic-engine output: body text plus the facts bundle
// that the verbalizer and safety verifier operate on (§4.5).
type Draft struct {
	Body             string
	Facts            FactsBundle
	RequiresApproval bool
	HilTaskType      HilTaskType
}

// FactsBundle is the structured input to the verbalizer (§4.5) — the
// contract between deterministic logic and LLM prose.
type FactsBundle struct {
	Dates             []string // DD.MM.YYYY
	Amounts           []string // "CHF 75.00 per event"
	RoomNames         []string
	ParticipantCounts []int
	TimeWindows       []string // "14:00–18:00"
}

// StepDecision is what a step handler returns to the orchestrator.
type StepDecision struct {
	Kind       StepDecisionKind
	NextStep   Step // valid for DecisionAdvance and DecisionDetour
	CallerStep Step // valid for DecisionDetour (the step to return to)
	Draft      *Draft
}

// Halt returns a StepDecision that halts with the given draft (may be nil).
func Halt(d *Draft) StepDecision { return StepDecision{Kind: DecisionHalt, Draft: d} }

// Advance returns a StepDecision that advances to next, continuing the loop.
func Advance(next Step) StepDecision { return StepDecision{Kind: DecisionAdvance, NextStep: next} }

// Detour returns a StepDecision that detours to target, recording caller.
func Detour(target, caller Step) StepDecision {
	return StepDecision{Kind: DecisionDetour, NextStep: target, CallerStep: caller}
}

// ReturnToCaller returns a StepDecision that resumes the caller step.
func ReturnToCaller() StepDecision { return StepDecision{Kind: DecisionReturnToCaller} }

// WorkflowReply is the shape returned to the external API (§6).
type WorkflowReply struct {
	SessionID      string
	WorkflowType   string
	Response       string // empty if HIL pending
	IsComplete     bool
	EventInfo      *EventInfo
	PendingActions []PendingAction
	DepositInfo    *DepositInfo // only emitted at current_step >= 4
}

// EventInfo is a read-only summary of an Event for WorkflowReply.
type EventInfo struct {
	EventID           string
	Status            EventStatus
	EventDate         *time.Time
	RoomName          string
	ParticipantsCount int
}

// PendingAction describes a pending client-facing action (e.g. pick a date).
type PendingAction struct {
	Type string
	Date *time.Time
}

// DepositInfo mirrors §6's deposit_info shape.
type DepositInfo struct {
	DepositRequired  bool
	DepositAmount    float64
	DepositVATIncl   bool
	DepositDueDate   *time.Time
	DepositPaid      bool
	DepositPaidAt    *time.Time
	EventID          string
	OfferAccepted    bool
}

// OperationResult is the shape of terminal operations (accept/reject booking).
type OperationResult struct {
	Success bool
	Message string
}

// Intent is the top-level classification of an inbound message (§4.3).
type Intent string

const (
	IntentEventRequest  Intent = "event_request"
	IntentChangeRequest Intent = "change_request"
	IntentNegotiation   Intent = "negotiation"
	IntentOther         Intent = "other"
)

// UnifiedSignals is the single per-message signal bundle (§4.3) produced by
// Unified Detection and consumed by every downstream step handler and the
// change-propagation router. It merges pre-filter heuristics, regex/keyword
// matchers, and the LLM intent classifier into one value so no two callers
// can disagree about what a message meant.
type UnifiedSignals struct {
	Intent       Intent
	IntentDetail string
	Confidence   float64

	IsQuestion      bool
	IsAcceptance    bool
	IsRejection     bool
	IsCounterOffer  bool
	IsChangeRequest bool
	IsConfirmation  bool
	IsGeneral       bool

	QnATypes      []string
	RoomPreference string
	Secondary     []string

	StartTime string
	EndTime   string

	// BillingSignal is set when the message carries billing-address fields
	// or a deposit/payment reference — it bypasses the out-of-context guard
	// at Steps 4/5 regardless of the stored step (§4.3, §4.4).
	BillingSignal bool

	// DepositJustPaid overrides misclassification and routes straight to the
	// Step 7 confirmation HIL path (§4.6.7, §4.7 step 4).
	DepositJustPaid bool

	// Fallback is set when the LLM classifier failed closed; callers fall
	// back to the deterministic/regex signal in that case.
	Fallback *FallbackReason

	// LLMAvailable is true when an LLM classification actually ran and
	// succeeded — false when no provider was configured or the call failed
	// closed. change.Classify uses this to decide whether IsChangeRequest is
	// authoritative or whether regex-derived Signals must drive detection
	// instead (§4.4).
	LLMAvailable bool
}

// HasIntentEvidence reports whether any signal indicates the message carries
// intent that must be routed to the right step rather than silently dropped
// — the trigger condition for the out-of-context guard (§4.4).
func (s UnifiedSignals) HasIntentEvidence() bool {
	return s.IsQuestion || s.IsAcceptance || s.IsRejection || s.IsCounterOffer ||
		s.IsChangeRequest || s.BillingSignal || s.StartTime != "" || s.EndTime != ""
}
