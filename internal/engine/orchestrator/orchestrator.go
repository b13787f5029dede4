// Package orchestrator implements the Workflow Orchestrator (C7): the
// per-message control loop that ties Unified Detection, Change Propagation,
// the seven Step Handlers, the Verbalizer, and the HIL Task Queue together
// behind the external API surface consumed by the HTTP façade.
package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openevent-ai/conversation-engine/common/trace"
	"github.com/openevent-ai/conversation-engine/internal/engine/catalog"
	"github.com/openevent-ai/conversation-engine/internal/engine/change"
	"github.com/openevent-ai/conversation-engine/internal/engine/detect"
	"github.com/openevent-ai/conversation-engine/internal/engine/hil"
	"github.com/openevent-ai/conversation-engine/internal/engine/model"
	"github.com/openevent-ai/conversation-engine/internal/engine/steps"
	"github.com/openevent-ai/conversation-engine/internal/engine/store"
)

// Orchestrator is the single per-process control loop. One instance is
// shared across every conversation; all per-conversation state lives in the
// store, never on the struct.
type Orchestrator struct {
	hc       *steps.Context
	store    *store.Store
	detector *detect.Detector
	gate     *hil.Gate
}

// New builds an Orchestrator from its collaborators. hc, store, detector and
// gate must all be non-nil.
func New(hc *steps.Context, st *store.Store, detector *detect.Detector, gate *hil.Gate) *Orchestrator {
	return &Orchestrator{hc: hc, store: st, detector: detector, gate: gate}
}

func (o *Orchestrator) now() time.Time {
	if o.hc != nil && o.hc.Now != nil {
		return o.hc.Now()
	}
	return time.Now()
}

// sweepExpiredTasks opportunistically expires stale pending HIL tasks on
// every tick, rather than requiring a separate scheduler process — mirrors
// Gate.CheckExpiry's own doc comment ("call this periodically... from the
// orchestrator's idle sweep"). A sweep failure never blocks the inbound
// message from being processed.
func (o *Orchestrator) sweepExpiredTasks(ctx context.Context) {
	if o.gate == nil {
		return
	}
	n, err := o.gate.CheckExpiry(ctx)
	if err != nil {
		slog.Warn("hil task expiry sweep failed", "err", err)
		return
	}
	if n > 0 {
		slog.Info("expired stale hil tasks", "count", n)
	}
}

func newID(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return prefix + strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return prefix + hex.EncodeToString(buf)
}

// StartConversation creates a new thread for clientEmail and runs the
// orchestrator once against emailBody (§6 start_conversation).
func (o *Orchestrator) StartConversation(ctx context.Context, emailBody, clientEmail string) (*model.WorkflowReply, error) {
	ctx = trace.WithTraceID(ctx, trace.GenerateID())
	clientEmail = strings.ToLower(strings.TrimSpace(clientEmail))
	now := o.now()

	if err := o.touchClient(ctx, clientEmail, now); err != nil {
		return nil, err
	}

	conv := model.NewConversation(newID("thr_"), clientEmail, now)
	if err := o.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	return o.tick(ctx, conv, nil, emailBody)
}

// SendMessage continues an existing thread (§6 send_message).
func (o *Orchestrator) SendMessage(ctx context.Context, threadID, body string) (*model.WorkflowReply, error) {
	ctx = trace.WithTraceID(ctx, trace.GenerateID())
	conv, event, err := o.loadThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return o.tick(ctx, conv, event, body)
}

// ConfirmDate is a UI shortcut equivalent to sending a plain confirmation
// message carrying dateISO (§6 confirm_date) — the date handler's own text
// parsing recognizes the ISO form directly, so no special-casing is needed
// beyond routing the raw string through the normal message path.
func (o *Orchestrator) ConfirmDate(ctx context.Context, threadID, dateISO string) (*model.WorkflowReply, error) {
	return o.SendMessage(ctx, threadID, dateISO)
}

// AcceptBooking is a terminal-transition shortcut: equivalent to the client
// sending an unambiguous acceptance at whatever step the thread is currently
// parked on (§6 accept_booking).
func (o *Orchestrator) AcceptBooking(ctx context.Context, threadID string) (*model.OperationResult, error) {
	return o.terminalShortcut(ctx, threadID, model.UnifiedSignals{IsAcceptance: true})
}

// RejectBooking is the decline counterpart of AcceptBooking (§6 reject_booking).
func (o *Orchestrator) RejectBooking(ctx context.Context, threadID string) (*model.OperationResult, error) {
	return o.terminalShortcut(ctx, threadID, model.UnifiedSignals{IsRejection: true})
}

func (o *Orchestrator) terminalShortcut(ctx context.Context, threadID string, sig model.UnifiedSignals) (*model.OperationResult, error) {
	ctx = trace.WithTraceID(ctx, trace.GenerateID())
	conv, event, err := o.loadThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return &model.OperationResult{Success: false, Message: "no active booking on this thread"}, nil
	}

	body := "yes, confirmed"
	if sig.IsRejection {
		body = "no, please cancel"
	}
	in := steps.Input{Message: body, Transcript: o.transcript(conv)}

	draft, event, err := o.runLoop(ctx, conv, event, in, sig, model.StepConfirmation)
	if err != nil {
		return nil, err
	}
	reply, err := o.emit(ctx, conv, event, draft)
	if err != nil {
		return nil, err
	}
	return &model.OperationResult{Success: event.Status != model.EventCancelled, Message: reply.Response}, nil
}

// ListPendingTasks returns every task awaiting manager review (§6 list_pending_tasks).
func (o *Orchestrator) ListPendingTasks(ctx context.Context) ([]*model.HilTask, error) {
	return o.gate.Store().ListPending(ctx)
}

// ApproveTask resolves a pending task as approved and, for the offer/
// negotiation acceptance gates, re-enters the orchestrator at the
// transition checkpoint per §4.8: "Step 4/5 approval sets offer to
// accepted... runs the transition checkpoint (Step 6) in the same tick,
// then Step 7 if unblocked." Every other task type is a plain send: the
// draft body (or the manager's edited_message) reaches the client exactly
// as approved, with no handler re-dispatch.
func (o *Orchestrator) ApproveTask(ctx context.Context, taskID, notes, editedMessage string) (*model.WorkflowReply, error) {
	ctx = trace.WithTraceID(ctx, trace.GenerateID())
	task, err := o.gate.Store().Approve(ctx, taskID, editedMessage)
	if err != nil {
		return nil, fmt.Errorf("approve hil task: %w", err)
	}

	conv, err := o.store.GetConversation(ctx, task.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("load conversation for approved task: %w", err)
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation %q not found", task.ThreadID)
	}

	var event *model.Event
	if task.EventID != "" {
		event, err = o.store.GetEvent(ctx, task.EventID)
		if err != nil {
			return nil, fmt.Errorf("load event for approved task: %w", err)
		}
	}

	reply := task.Body
	if editedMessage != "" {
		reply = editedMessage
	}

	if event != nil && (task.Step == model.StepOffer || task.Step == model.StepNegotiation) {
		event.OfferAccepted = true
		event.NegotiationPendingDecision = false
		draft, updated, err := o.runLoop(ctx, conv, event, steps.Input{}, model.UnifiedSignals{}, model.StepTransition)
		if err != nil {
			return nil, err
		}
		event = updated
		if draft != nil {
			rendered, err := o.resolveDraft(ctx, conv, event, draft)
			if err != nil {
				return nil, err
			}
			if rendered != "" {
				reply = rendered
			}
		}
	}

	conv.MessageHistory = append(conv.MessageHistory, model.NewHistoryEntry(model.RoleManager, reply, "approve_task", o.now()))
	if err := o.persist(ctx, conv, event); err != nil {
		return nil, err
	}
	return o.buildReply(conv, event, reply, task.Step), nil
}

// RejectTask resolves a pending task as rejected; the draft that was
// awaiting review is simply discarded, nothing reaches the client.
func (o *Orchestrator) RejectTask(ctx context.Context, taskID, notes string) (*model.HilTask, error) {
	ctx = trace.WithTraceID(ctx, trace.GenerateID())
	return o.gate.Store().Reject(ctx, taskID, notes)
}

func (o *Orchestrator) loadThread(ctx context.Context, threadID string) (*model.Conversation, *model.Event, error) {
	conv, err := o.store.GetConversation(ctx, threadID)
	if err != nil {
		return nil, nil, fmt.Errorf("load conversation: %w", err)
	}
	if conv == nil {
		return nil, nil, fmt.Errorf("unknown thread %q", threadID)
	}
	event, err := o.store.GetActiveEventByThread(ctx, threadID)
	if err != nil {
		return nil, nil, fmt.Errorf("load active event: %w", err)
	}
	return conv, event, nil
}

func (o *Orchestrator) touchClient(ctx context.Context, email string, now time.Time) error {
	client, err := o.store.GetClient(ctx, email)
	if err != nil {
		return fmt.Errorf("load client: %w", err)
	}
	if client == nil {
		client = &model.Client{Email: email, CreatedAt: now}
	}
	client.UpdatedAt = now
	if err := o.store.UpsertClient(ctx, client); err != nil {
		return fmt.Errorf("upsert client: %w", err)
	}
	return nil
}

// tick runs steps 1-8 of §4.7 for one inbound message and returns the
// client-facing reply.
func (o *Orchestrator) tick(ctx context.Context, conv *model.Conversation, event *model.Event, body string) (*model.WorkflowReply, error) {
	now := o.now()
	o.sweepExpiredTasks(ctx)
	conv.MessageHistory = append(conv.MessageHistory, model.NewHistoryEntry(model.RoleUser, body, "", now))

	sig := o.detector.Detect(ctx, detect.Input{
		ThreadID:    conv.ThreadID,
		Message:     body,
		Transcript:  o.transcript(conv),
		CurrentStep: conv.CurrentStep,
	})

	entryStep := o.resolveEntryStep(conv, event, sig, body, now)
	in := steps.Input{Message: body, Transcript: o.transcript(conv)}

	var draft *model.Draft
	var err error
	if entryStep == model.StepIntake && conv.CallerStep == nil {
		draft, event, err = o.runIntake(ctx, conv, event, in, sig)
	} else {
		draft, event, err = o.runLoop(ctx, conv, event, in, sig, entryStep)
	}
	if err != nil {
		return nil, err
	}

	return o.emit(ctx, conv, event, draft)
}

// resolveEntryStep picks the step the dispatch loop starts at, per §4.7
// steps 2 and 4. A detour already in progress always resumes exactly where
// it left off; the billing-flow correction and the out-of-context guard
// only apply when no detour is pending, so neither ever overrides one.
func (o *Orchestrator) resolveEntryStep(conv *model.Conversation, event *model.Event, sig model.UnifiedSignals, body string, now time.Time) model.Step {
	conv.Extras.ChangeDetour = false

	if conv.CallerStep != nil {
		return conv.CurrentStep
	}

	if event != nil && event.BillingRequirements.AwaitingBillingForAccept {
		// The correction marks this tick as a forced re-entry the same way a
		// real detour would, so a downstream handler's detour-reentry check
		// (conv.CallerStep != nil || conv.Extras.ChangeDetour) still skips a
		// stale Q&A prompt even though conv.CallerStep itself stays nil here.
		conv.Extras.ChangeDetour = true
		conv.CurrentStep = model.StepNegotiation
		return model.StepNegotiation
	}

	if o.outOfContext(conv, event, sig, body, now) {
		conv.CurrentStep = model.StepIntake
		return model.StepIntake
	}

	return conv.CurrentStep
}

// looseDatePattern is a best-effort existence check only, used to feed the
// out-of-context guard's change classification — not the authoritative date
// parse, which belongs to Step 2.
var looseDatePattern = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b|\b(\d{1,2})\.(\d{1,2})\.(\d{4})\b`)

func parseLooseDate(s string, loc *time.Location) *time.Time {
	m := looseDatePattern.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	var t time.Time
	var err error
	if m[1] != "" {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		t = time.Date(y, time.Month(mo), d, 0, 0, 0, 0, loc)
	} else {
		d, _ := strconv.Atoi(m[4])
		mo, _ := strconv.Atoi(m[5])
		y, _ := strconv.Atoi(m[6])
		t = time.Date(y, time.Month(mo), d, 0, 0, 0, 0, loc)
	}
	if err != nil {
		return nil
	}
	return &t
}

// outOfContext applies change.OutOfContextGuard against a lightweight
// change classification (date only — the orchestrator does not run full
// entity extraction, that belongs to the step handlers) to decide whether
// the stored step should be bypassed in favor of a fresh Intake pass.
func (o *Orchestrator) outOfContext(conv *model.Conversation, event *model.Event, sig model.UnifiedSignals, body string, now time.Time) bool {
	if event == nil {
		return false
	}
	csig := change.Signals{NewDate: parseLooseDate(body, now.Location())}
	decision := change.Classify(event, csig, sig.IsChangeRequest, sig.LLMAvailable)
	return change.OutOfContextGuard(sig, decision, conv.CurrentStep)
}

// runIntake runs Step 1 and resolves the event-reuse decision before
// continuing the dispatch loop, since every handler past Step 1 assumes a
// concrete *model.Event.
func (o *Orchestrator) runIntake(ctx context.Context, conv *model.Conversation, event *model.Event, in steps.Input, sig model.UnifiedSignals) (*model.Draft, *model.Event, error) {
	res := steps.HandleIntake(ctx, o.hc, conv, event, in, sig)

	resolved, err := o.resolveEvent(ctx, conv, event, res.ReuseEvent)
	if err != nil {
		return nil, nil, err
	}

	return o.runDecision(ctx, conv, resolved, in, sig, model.StepIntake, res.Decision)
}

// resolveEvent implements the event-reuse invariant's write side (§3):
// model.Event.ShouldReuse already decided whether to reuse; here a
// non-reused prior event is terminated (moved to cancelled so it no longer
// surfaces as the thread's active event) and a fresh lead is started.
func (o *Orchestrator) resolveEvent(ctx context.Context, conv *model.Conversation, event *model.Event, reuse bool) (*model.Event, error) {
	now := o.now()
	if event == nil {
		return o.newEvent(conv, now), nil
	}
	if reuse {
		return event, nil
	}

	event.Status = model.EventCancelled
	event.UpdatedAt = now
	if err := o.store.SaveEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("terminate superseded event: %w", err)
	}
	return o.newEvent(conv, now), nil
}

func (o *Orchestrator) newEvent(conv *model.Conversation, now time.Time) *model.Event {
	return &model.Event{
		EventID:     "evt_" + uuid.NewString(),
		ClientID:    conv.ClientEmail,
		ThreadID:    conv.ThreadID,
		Status:      model.EventLead,
		OfferStatus: model.OfferDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// runLoop dispatches startStep and every step.Decision it returns until a
// Halt (or a same-tick Advance carrying a draft, see runDecision) ends the
// tick. It is also the re-entry path for HIL approvals, which start at
// model.StepTransition rather than model.StepIntake.
func (o *Orchestrator) runLoop(ctx context.Context, conv *model.Conversation, event *model.Event, in steps.Input, sig model.UnifiedSignals, startStep model.Step) (*model.Draft, *model.Event, error) {
	decision := o.dispatchStep(ctx, startStep, conv, event, in, sig)
	return o.runDecision(ctx, conv, event, in, sig, startStep, decision)
}

// runDecision drives the Advance/Detour/ReturnToCaller/Halt state machine
// from an already-produced first decision — split out from runLoop so
// HandleIntake's special event-resolution step can feed its own decision in
// without re-dispatching Step 1.
func (o *Orchestrator) runDecision(ctx context.Context, conv *model.Conversation, event *model.Event, in steps.Input, sig model.UnifiedSignals, step model.Step, decision model.StepDecision) (*model.Draft, *model.Event, error) {
	for {
		switch decision.Kind {
		case model.DecisionAdvance:
			conv.CurrentStep = decision.NextStep
			if decision.Draft != nil {
				// A small number of handlers (the Step 4 billing-complete
				// acceptance gate) attach a draft to an Advance: the
				// transition itself happens now, but the draft it produces
				// is this tick's terminal output rather than an
				// intermediate one — the loop does not keep dispatching.
				return decision.Draft, event, nil
			}
			step = decision.NextStep
		case model.DecisionDetour:
			caller := decision.CallerStep
			conv.CallerStep = &caller
			conv.Extras.HybridQnAResponse = ""
			conv.CurrentStep = decision.NextStep
			step = decision.NextStep
		case model.DecisionReturnToCaller:
			if conv.CallerStep != nil {
				step = *conv.CallerStep
			}
			conv.CallerStep = nil
			conv.CurrentStep = step
		case model.DecisionHalt:
			conv.CurrentStep = step
			return decision.Draft, event, nil
		default:
			return decision.Draft, event, nil
		}
		decision = o.dispatchStep(ctx, step, conv, event, in, sig)
	}
}

func (o *Orchestrator) dispatchStep(ctx context.Context, step model.Step, conv *model.Conversation, event *model.Event, in steps.Input, sig model.UnifiedSignals) model.StepDecision {
	switch step {
	case model.StepDate:
		return steps.HandleDate(o.hc, conv, event, in, sig)
	case model.StepRoom:
		return steps.HandleRoom(ctx, o.hc, conv, event, in, sig)
	case model.StepOffer:
		return steps.HandleOffer(ctx, o.hc, conv, event, in, sig)
	case model.StepNegotiation:
		return steps.HandleNegotiation(ctx, o.hc, conv, event, in, sig)
	case model.StepTransition:
		return steps.HandleTransition(ctx, o.hc, conv, event, in, sig)
	case model.StepConfirmation:
		return steps.HandleConfirmation(ctx, o.hc, conv, event, in, sig)
	default:
		// Reached only if a handler's Advance/Detour names StepIntake
		// explicitly; re-run Step 1 rather than treat it as a dead end.
		return steps.HandleIntake(ctx, o.hc, conv, event, in, sig).Decision
	}
}

// resolveDraft renders draft through the Verbalizer, without any HIL
// gating — used by the approval re-entry path, where gating is decided
// once at the top (ApproveTask already resolved the pending task).
func (o *Orchestrator) resolveDraft(ctx context.Context, conv *model.Conversation, event *model.Event, draft *model.Draft) (string, error) {
	if draft == nil {
		return "", nil
	}
	body, fb := o.hc.Verbalizer.Render(ctx, conv.ThreadID, conv.CurrentStep, draft)
	o.recordFallback(ctx, conv, fb)
	return body, nil
}

// recordFallback logs a verbalizer fallback at the verbosity permitted by
// hc.Env/hc.FallbackDiagnostics — full detail outside prod, a single
// generic sentence in prod (§4.2, §7).
func (o *Orchestrator) recordFallback(ctx context.Context, conv *model.Conversation, fb *model.FallbackReason) {
	if fb == nil {
		return
	}
	prod := o.hc != nil && o.hc.Env == "prod" && !o.hc.FallbackDiagnostics
	slog.Warn("verbalizer fallback to deterministic body",
		"thread_id", conv.ThreadID, "diagnostic", fb.Diagnostic(prod))
}

// emit runs the back half of §4.7 (steps 6-8): verbalize, gate if
// requires_approval, write the audit trail, and persist.
func (o *Orchestrator) emit(ctx context.Context, conv *model.Conversation, event *model.Event, draft *model.Draft) (*model.WorkflowReply, error) {
	if draft == nil {
		if err := o.persist(ctx, conv, event); err != nil {
			return nil, err
		}
		return o.buildReply(conv, event, "", conv.CurrentStep), nil
	}

	body := draft.Body
	if o.hc.Verbalizer != nil {
		var fb *model.FallbackReason
		body, fb = o.hc.Verbalizer.Render(ctx, conv.ThreadID, conv.CurrentStep, draft)
		o.recordFallback(ctx, conv, fb)
	}

	force := o.forceGateAll(ctx)
	result := "sent"
	reply := body

	if draft.RequiresApproval {
		eventID := ""
		if event != nil {
			eventID = event.EventID
		}
		pending := &model.HilTask{
			ThreadID:     conv.ThreadID,
			EventID:      eventID,
			Step:         conv.CurrentStep,
			TaskType:     draft.HilTaskType,
			Body:         body,
			BodyMarkdown: eventSummaryMarkdown(event),
			EventSummary: eventSummaryMarkdown(event),
		}
		task, err := o.gate.Request(ctx, pending, force)
		if err != nil {
			return nil, fmt.Errorf("request hil gate: %w", err)
		}
		if task != nil {
			result = "gated"
			reply = ""
		}
	} else if force && draft.HilTaskType == "" && conv.CurrentStep != hil.StepNeverGated {
		pending := &model.HilTask{
			ThreadID: conv.ThreadID,
			Step:     conv.CurrentStep,
			TaskType: model.TaskAIReplyApproval,
			Body:     body,
		}
		task, err := o.gate.Request(ctx, pending, true)
		if err != nil {
			return nil, fmt.Errorf("request hil gate: %w", err)
		}
		if task != nil {
			result = "gated"
			reply = ""
		}
	}

	if reply != "" {
		conv.MessageHistory = append(conv.MessageHistory, model.NewHistoryEntry(model.RoleAssistant, reply, string(draft.HilTaskType), o.now()))
	}

	if err := o.writeAudit(ctx, conv, event, result); err != nil {
		slog.Warn("orchestrator: audit write failed", "thread_id", conv.ThreadID, "err", err)
	}

	if err := o.persist(ctx, conv, event); err != nil {
		return nil, err
	}

	return o.buildReply(conv, event, reply, conv.CurrentStep), nil
}

// forceGateAll reads the OE_HIL_ALL_LLM_REPLIES knob from the config store:
// when set, every AI-authored reply is gated behind manager approval
// regardless of task type (Step 3 stays exempt — hil.Gate.Request enforces
// that unconditionally).
func (o *Orchestrator) forceGateAll(ctx context.Context) bool {
	if o.hc == nil || o.hc.Config == nil {
		return false
	}
	v, err := o.hc.Config.Get(ctx, catalog.KeyHilAllLLMReplies)
	if err != nil {
		return false
	}
	return v == "true" || v == "1"
}

func (o *Orchestrator) writeAudit(ctx context.Context, conv *model.Conversation, event *model.Event, result string) error {
	eventID := ""
	if event != nil {
		eventID = event.EventID
	}
	payload := store.AuditPayload{"event_id": eventID}
	return o.store.WriteAudit(ctx, trace.FromContext(ctx), conv.ThreadID, int(conv.CurrentStep), "message", conv.CurrentStep.String(), result, payload, "")
}

func (o *Orchestrator) persist(ctx context.Context, conv *model.Conversation, event *model.Event) error {
	if err := o.store.SaveConversation(ctx, conv); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	if event == nil {
		return nil
	}
	if existing, err := o.store.GetEvent(ctx, event.EventID); err != nil {
		return fmt.Errorf("check event existence: %w", err)
	} else if existing == nil {
		if err := o.store.CreateEvent(ctx, event); err != nil {
			return fmt.Errorf("create event: %w", err)
		}
		return nil
	}
	event.UpdatedAt = o.now()
	if err := o.store.SaveEvent(ctx, event); err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	return nil
}

func (o *Orchestrator) transcript(conv *model.Conversation) string {
	var b strings.Builder
	for _, h := range conv.MessageHistory {
		b.WriteString(string(h.Role))
		b.WriteString(": ")
		b.WriteString(h.Preview)
		b.WriteString("\n")
	}
	return b.String()
}

func eventSummaryMarkdown(event *model.Event) string {
	if event == nil {
		return "no active event"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**Event %s** — status: %s", event.EventID, event.Status)
	if event.EventDate != nil {
		fmt.Fprintf(&b, ", date: %s", event.EventDate.Format("02.01.2006"))
	}
	if event.LockedRoomID != "" {
		fmt.Fprintf(&b, ", room: %s", event.LockedRoomID)
	}
	fmt.Fprintf(&b, ", participants: %d", event.ParticipantsCount)
	return b.String()
}

// buildReply assembles the §6 WorkflowReply shape.
func (o *Orchestrator) buildReply(conv *model.Conversation, event *model.Event, response string, step model.Step) *model.WorkflowReply {
	reply := &model.WorkflowReply{
		SessionID:    conv.ThreadID,
		WorkflowType: "event_inquiry",
		Response:     response,
	}
	if event == nil {
		return reply
	}

	reply.IsComplete = event.Status == model.EventConfirmed || event.Status == model.EventCancelled
	reply.EventInfo = &model.EventInfo{
		EventID:           event.EventID,
		Status:            event.Status,
		EventDate:         event.EventDate,
		ParticipantsCount: event.ParticipantsCount,
	}
	if o.hc.Venue != nil && event.LockedRoomID != "" {
		if r, ok := o.hc.Venue.RoomByID(event.LockedRoomID); ok {
			reply.EventInfo.RoomName = r.Name
		}
	}

	reply.PendingActions = pendingActions(event)

	if step >= model.StepOffer {
		reply.DepositInfo = &model.DepositInfo{
			DepositRequired: event.DepositState.Required,
			DepositAmount:   event.DepositState.Amount,
			DepositDueDate:  event.DepositState.Deadline,
			DepositPaid:     event.DepositState.Paid,
			DepositPaidAt:   event.DepositState.PaidAt,
			EventID:         event.EventID,
			OfferAccepted:   event.OfferAccepted,
		}
	}

	return reply
}

// pendingActions surfaces the client-facing actions still awaiting a pick —
// currently the two open-ended cases a plain text reply cannot fully
// capture: an unconfirmed date and an in-progress site visit.
func pendingActions(event *model.Event) []model.PendingAction {
	var actions []model.PendingAction
	if event.EventDate == nil {
		actions = append(actions, model.PendingAction{Type: "confirm_date"})
	}
	switch event.SiteVisitState.Status {
	case model.SiteVisitProposed:
		actions = append(actions, model.PendingAction{Type: "site_visit_pick_date"})
	case model.SiteVisitTimePending:
		actions = append(actions, model.PendingAction{Type: "site_visit_pick_time", Date: event.SiteVisitState.SelectedDate})
	}
	return actions
}
