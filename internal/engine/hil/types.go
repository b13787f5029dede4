// Package hil implements the HIL Task Queue & Gates (C8): gating certain
// step-handler drafts behind manager approval before they reach the client,
// with deduplication, expiry, and billing/deposit gate policy.
package hil

import "github.com/openevent-ai/conversation-engine/internal/engine/model"

// StepNeverGated is the step that must never produce a HIL task, regardless
// of what a step handler's draft requests — room selection (Step 3) always
// replies immediately, since holding a room-availability answer for manager
// review would stall the one step clients expect to be instant.
const StepNeverGated = model.StepRoom

// Decision holds the result of parsing an operator's plain-text approve/
// reject command (console/CLI use — the primary interface is the structured
// approve_task/reject_task API in §6).
type Decision struct {
	Approve bool
	TaskID  string
	Reason  string
}
