package hil

import (
	"context"
	"fmt"
	"time"

	"github.com/openevent-ai/conversation-engine/internal/engine/model"
)

// BillingGatedTypes always require manager approval before the client sees
// them — anything that touches billing details, a deposit confirmation, or
// the confirmation message itself carries money implications a step handler
// should never finalize alone.
var BillingGatedTypes = map[model.HilTaskType]bool{
	model.TaskOfferMessage:        true,
	model.TaskConfirmationMessage: true,
}

// Gate manages creation and deduplication of HIL tasks for step-handler
// drafts that require manager review before the client sees a reply.
type Gate struct {
	store *Store
	ttl   time.Duration
}

// NewGate creates a Gate backed by the given Store. ttl controls how long a
// pending task remains valid before it auto-expires; pass 0 for model.DefaultHilTTL.
func NewGate(store *Store, ttl time.Duration) *Gate {
	if ttl == 0 {
		ttl = model.DefaultHilTTL
	}
	return &Gate{store: store, ttl: ttl}
}

// Store returns the underlying task Store.
func (g *Gate) Store() *Store {
	return g.store
}

// Request enqueues a HIL task for a step handler's draft. Step 3 (room
// selection) is never gated regardless of the caller's request — the
// availability answer must reach the client immediately. When a pending
// task already exists for the same (thread, step, type) dedupe key, the
// older one is superseded so exactly one pending task stands per key.
//
// Returns (nil, nil) when the draft is not actually gated (Step 3, or a
// task type not in BillingGatedTypes and the caller didn't force it) —
// callers should treat a nil task as "send directly, no review needed."
func (g *Gate) Request(ctx context.Context, draft *model.HilTask, force bool) (*model.HilTask, error) {
	if draft.Step == StepNeverGated {
		return nil, nil
	}
	if !force && !BillingGatedTypes[draft.TaskType] && draft.TaskType != model.TaskAIReplyApproval &&
		draft.TaskType != model.TaskManualReview && draft.TaskType != model.TaskSpecialRequest &&
		draft.TaskType != model.TaskTooManyAttempts {
		return nil, nil
	}

	existing, err := g.store.GetPendingByKey(ctx, draft.ThreadID, draft.Step, draft.TaskType)
	if err != nil {
		return nil, fmt.Errorf("check existing hil task: %w", err)
	}
	if existing != nil {
		if err := g.store.Supersede(ctx, existing.TaskID); err != nil {
			return nil, fmt.Errorf("supersede stale hil task: %w", err)
		}
	}

	return g.store.Create(ctx, draft, g.ttl)
}

// CheckExpiry atomically marks stale tasks as expired and returns the count.
// Call this periodically, e.g. from the orchestrator's idle sweep.
func (g *Gate) CheckExpiry(ctx context.Context) (int64, error) {
	return g.store.ExpireStale(ctx)
}
