package hil

import (
	"fmt"
	"strings"
)

// ParseDecision parses a manager's plain-text console command into a
// Decision. This backs an admin-console convenience path; the primary
// interface is the structured approve_task/reject_task API.
//
// Accepted formats (case-insensitive verb):
//
//	approve <task-id>
//	approve <task-id> <edited reply text>
//	reject <task-id> reason="<text>"
//	reject <task-id> <reason text>
//
// Returns ErrNotADecision if the message does not start with "approve" or
// "reject". Returns an error if the message is malformed (e.g. reject
// without a reason).
func ParseDecision(text string) (*Decision, error) {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)

	var isApprove bool
	switch {
	case strings.HasPrefix(lower, "approve ") || lower == "approve":
		isApprove = true
	case strings.HasPrefix(lower, "reject ") || lower == "reject":
		isApprove = false
	default:
		return nil, ErrNotADecision
	}

	rest := strings.TrimSpace(text[len(verb(isApprove)):])
	if rest == "" {
		return nil, fmt.Errorf("usage: %s <task-id> [reason]", verb(isApprove))
	}

	parts := strings.Fields(rest)
	taskID := parts[0]

	var reason string
	if len(parts) > 1 {
		reason = parseReason(strings.Join(parts[1:], " "))
	}

	if !isApprove && strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf(`reject requires a reason: reject <task-id> reason="<text>" or reject <task-id> <text>`)
	}

	return &Decision{
		Approve: isApprove,
		TaskID:  taskID,
		Reason:  reason,
	}, nil
}

// ErrNotADecision is returned when the message is not an approve/reject command.
var ErrNotADecision = fmt.Errorf("not a hil task decision")

func verb(approve bool) string {
	if approve {
		return "approve"
	}
	return "reject"
}

// parseReason extracts the reason from either:
//   - `reason="<text>"` or `reason=<text>`
//   - plain trailing text
func parseReason(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "reason=") {
		return strings.Trim(s[len("reason="):], `"'`)
	}
	return s
}
