package hil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/openevent-ai/conversation-engine/internal/engine/model"
	"github.com/openevent-ai/conversation-engine/internal/engine/store"
)

// Store persists HIL tasks against the hil_tasks table.
type Store struct {
	db *store.Store
}

// NewStore wraps an engine store.Store for HIL task persistence.
func NewStore(db *store.Store) *Store {
	return &Store{db: db}
}

// maxIDRetries is the number of times Create will retry on an ID collision.
const maxIDRetries = 3

// generateID returns a short, cryptographically random hex task ID
// (6 bytes = 12 hex chars).
func generateID() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate task id: %w", err)
	}
	return "hil_" + hex.EncodeToString(buf), nil
}

// Create persists a new pending HIL task. The caller is responsible for
// superseding any existing pending task with the same (thread, step, type)
// dedupe key first — see Gate.Request.
func (s *Store) Create(ctx context.Context, task *model.HilTask, ttl time.Duration) (*model.HilTask, error) {
	now := time.Now()
	task.CreatedAt = now
	task.ExpiresAt = now.Add(ttl)
	task.Status = model.HilPending

	var lastErr error
	for attempt := 0; attempt < maxIDRetries; attempt++ {
		id, err := generateID()
		if err != nil {
			return nil, err
		}
		task.TaskID = id

		_, err = s.db.DB().ExecContext(ctx, `
			INSERT INTO hil_tasks (task_id, thread_id, event_id, step, task_type, body, body_markdown,
				event_summary, status, notes, edited_message, created_at, expires_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, task.TaskID, task.ThreadID, task.EventID, int(task.Step), string(task.TaskType),
			task.Body, task.BodyMarkdown, task.EventSummary, string(task.Status),
			task.Notes, task.EditedMessage, task.CreatedAt, task.ExpiresAt)
		if err != nil {
			lastErr = err
			continue // likely task ID collision; retry with a new ID
		}
		return task, nil
	}
	return nil, fmt.Errorf("failed to create hil task after %d attempts: %w", maxIDRetries, lastErr)
}

// Get retrieves a task by ID.
func (s *Store) Get(ctx context.Context, taskID string) (*model.HilTask, error) {
	row := s.db.DB().QueryRowContext(ctx, `
		SELECT task_id, thread_id, event_id, step, task_type, body, body_markdown,
			event_summary, status, notes, edited_message, created_at, expires_at, resolved_at
		FROM hil_tasks WHERE task_id = ?
	`, taskID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("hil task not found: %s", taskID)
	}
	return t, err
}

// GetPendingByKey finds a still-pending task for a given (thread, step,
// task type) dedupe key, or nil if none exists.
func (s *Store) GetPendingByKey(ctx context.Context, threadID string, step model.Step, taskType model.HilTaskType) (*model.HilTask, error) {
	row := s.db.DB().QueryRowContext(ctx, `
		SELECT task_id, thread_id, event_id, step, task_type, body, body_markdown,
			event_summary, status, notes, edited_message, created_at, expires_at, resolved_at
		FROM hil_tasks
		WHERE thread_id = ? AND step = ? AND task_type = ? AND status = ?
		ORDER BY created_at DESC LIMIT 1
	`, threadID, int(step), string(taskType), string(model.HilPending))
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// ListPending returns all pending tasks, oldest first — the backing query
// for list_pending_tasks.
func (s *Store) ListPending(ctx context.Context) ([]*model.HilTask, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT task_id, thread_id, event_id, step, task_type, body, body_markdown,
			event_summary, status, notes, edited_message, created_at, expires_at, resolved_at
		FROM hil_tasks
		WHERE status = ?
		ORDER BY created_at ASC
		LIMIT 100
	`, string(model.HilPending))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending hil tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.HilTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan hil task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hil tasks: %w", err)
	}
	return tasks, nil
}

// resolve atomically transitions a pending task to newStatus, distinguishing
// "not found" from "already resolved" via the affected-row count.
func (s *Store) resolve(ctx context.Context, taskID string, newStatus model.HilTaskStatus, notes, editedMessage string) (*model.HilTask, error) {
	now := time.Now()
	result, err := s.db.DB().ExecContext(ctx, `
		UPDATE hil_tasks
		SET status = ?, notes = ?, edited_message = ?, resolved_at = ?
		WHERE task_id = ? AND status = ?
	`, string(newStatus), notes, editedMessage, now, taskID, string(model.HilPending))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve hil task: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		existing, lookupErr := s.Get(ctx, taskID)
		if lookupErr != nil {
			return nil, fmt.Errorf("hil task not found: %s", taskID)
		}
		return nil, fmt.Errorf("hil task %s is already %q and cannot be changed", taskID, existing.Status)
	}

	return s.Get(ctx, taskID)
}

// Approve marks a task approved, optionally carrying a manager-edited reply.
func (s *Store) Approve(ctx context.Context, taskID, editedMessage string) (*model.HilTask, error) {
	return s.resolve(ctx, taskID, model.HilApproved, "", editedMessage)
}

// Reject marks a task rejected with a reason.
func (s *Store) Reject(ctx context.Context, taskID, reason string) (*model.HilTask, error) {
	return s.resolve(ctx, taskID, model.HilRejected, reason, "")
}

// Supersede marks a still-pending task superseded by a fresher draft sharing
// its dedupe key.
func (s *Store) Supersede(ctx context.Context, taskID string) error {
	_, err := s.resolve(ctx, taskID, model.HilSuperseded, "superseded by a newer task", "")
	return err
}

// ExpireStale marks all pending tasks past their deadline as expired and
// returns the number affected — the backing query for the expiry sweep.
func (s *Store) ExpireStale(ctx context.Context) (int64, error) {
	now := time.Now()
	result, err := s.db.DB().ExecContext(ctx, `
		UPDATE hil_tasks
		SET status = ?, resolved_at = ?
		WHERE status = ? AND expires_at < ?
	`, string(model.HilExpired), now, string(model.HilPending), now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale hil tasks: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n, nil
}

// rowScanner lets scanTask accept either *sql.Row or *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.HilTask, error) {
	t := &model.HilTask{}
	var step int
	var taskType, status string
	var resolvedAt sql.NullTime

	err := row.Scan(
		&t.TaskID, &t.ThreadID, &t.EventID, &step, &taskType, &t.Body, &t.BodyMarkdown,
		&t.EventSummary, &status, &t.Notes, &t.EditedMessage, &t.CreatedAt, &t.ExpiresAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Step = model.Step(step)
	t.TaskType = model.HilTaskType(taskType)
	t.Status = model.HilTaskStatus(status)
	if resolvedAt.Valid {
		rt := resolvedAt.Time
		t.ResolvedAt = &rt
	}
	return t, nil
}
