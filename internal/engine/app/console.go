package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/openevent-ai/conversation-engine/internal/engine/hil"
)

// HilStore returns the underlying HIL task store — the operator console and
// any other manager-facing surface resolve tasks through it directly.
func (a *App) HilStore() *hil.Store {
	return a.hilStore
}

// RunHilConsole reads one operator command per line from r until EOF or ctx
// is cancelled, applying each via hil.ParseDecision. It backs the
// admin-console convenience path (§6) alongside the structured
// approve_task/reject_task API; a manager can type:
//
//	approve <task-id>
//	approve <task-id> <edited reply text>
//	reject <task-id> <reason>
//
// Malformed lines and lines that are not an approve/reject command are
// reported to w and otherwise ignored — a typo never terminates the console.
func (a *App) RunHilConsole(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		decision, err := hil.ParseDecision(line)
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
			continue
		}

		if decision.Approve {
			task, err := a.hilStore.Approve(ctx, decision.TaskID, decision.Reason)
			if err != nil {
				fmt.Fprintf(w, "error: %v\n", err)
				slog.Warn("hil console approve failed", "task_id", decision.TaskID, "err", err)
				continue
			}
			fmt.Fprintf(w, "approved %s\n", task.TaskID)
			continue
		}

		task, err := a.hilStore.Reject(ctx, decision.TaskID, decision.Reason)
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
			slog.Warn("hil console reject failed", "task_id", decision.TaskID, "err", err)
			continue
		}
		fmt.Fprintf(w, "rejected %s\n", task.TaskID)
	}
	return scanner.Err()
}
