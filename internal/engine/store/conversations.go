package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openevent-ai/conversation-engine/internal/engine/model"
)

// UpsertClient inserts or updates a client row keyed by lowercased email.
func (s *Store) UpsertClient(ctx context.Context, c *model.Client) error {
	previewJSON, err := json.Marshal(c.HistoryPreview)
	if err != nil {
		return fmt.Errorf("marshal history_preview: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO clients (email, name, company, history_preview, context_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			name = excluded.name, company = excluded.company,
			history_preview = excluded.history_preview, context_hash = excluded.context_hash,
			updated_at = excluded.updated_at
	`, c.Email, c.Name, c.Company, string(previewJSON), c.ContextHash, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert client: %w", err)
	}
	return nil
}

// GetClient loads a client by lowercased email. Returns (nil, nil) if absent.
func (s *Store) GetClient(ctx context.Context, email string) (*model.Client, error) {
	c := &model.Client{}
	var previewJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT email, name, company, history_preview, context_hash, created_at, updated_at
		FROM clients WHERE email = ?
	`, email).Scan(&c.Email, &c.Name, &c.Company, &previewJSON, &c.ContextHash, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query client: %w", err)
	}
	if err := json.Unmarshal([]byte(previewJSON), &c.HistoryPreview); err != nil {
		return nil, fmt.Errorf("unmarshal history_preview: %w", err)
	}
	return c, nil
}

// CreateConversation inserts a new conversation row at Step 1.
func (s *Store) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	extrasJSON, err := json.Marshal(conv.Extras)
	if err != nil {
		return fmt.Errorf("marshal extras: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (thread_id, client_email, current_step, caller_step, extras_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, conv.ThreadID, conv.ClientEmail, int(conv.CurrentStep), callerStepValue(conv.CallerStep),
		string(extrasJSON), conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// SaveConversation persists conv's mutable fields and replaces its
// message_history with the in-memory copy.
func (s *Store) SaveConversation(ctx context.Context, conv *model.Conversation) error {
	extrasJSON, err := json.Marshal(conv.Extras)
	if err != nil {
		return fmt.Errorf("marshal extras: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		UPDATE conversations
		SET current_step = ?, caller_step = ?, extras_json = ?, updated_at = ?
		WHERE thread_id = ?
	`, int(conv.CurrentStep), callerStepValue(conv.CallerStep), string(extrasJSON), conv.UpdatedAt, conv.ThreadID)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM message_history WHERE thread_id = ?`, conv.ThreadID); err != nil {
		return fmt.Errorf("clear message_history: %w", err)
	}
	for _, h := range conv.MessageHistory {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO message_history (thread_id, role, body, preview, intent_label, ts)
			VALUES (?, ?, ?, ?, ?, ?)
		`, conv.ThreadID, string(h.Role), h.Body, h.Preview, h.IntentLabel, h.Timestamp)
		if err != nil {
			return fmt.Errorf("insert message_history: %w", err)
		}
	}

	return tx.Commit()
}

// GetConversation loads a conversation and its message_history by thread ID.
// Returns (nil, nil) if absent.
func (s *Store) GetConversation(ctx context.Context, threadID string) (*model.Conversation, error) {
	conv := &model.Conversation{ThreadID: threadID, PendingHilTaskIDs: make(map[model.HilKey]string)}
	var currentStep int
	var callerStep sql.NullInt64
	var extrasJSON string

	err := s.db.QueryRowContext(ctx, `
		SELECT client_email, current_step, caller_step, extras_json, created_at, updated_at
		FROM conversations WHERE thread_id = ?
	`, threadID).Scan(&conv.ClientEmail, &currentStep, &callerStep, &extrasJSON, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	conv.CurrentStep = model.Step(currentStep)
	if callerStep.Valid {
		cs := model.Step(callerStep.Int64)
		conv.CallerStep = &cs
	}
	if err := json.Unmarshal([]byte(extrasJSON), &conv.Extras); err != nil {
		return nil, fmt.Errorf("unmarshal extras: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, body, preview, intent_label, ts
		FROM message_history WHERE thread_id = ? ORDER BY ts ASC, id ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("query message_history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var role, body, preview, label string
		var ts time.Time
		if err := rows.Scan(&role, &body, &preview, &label, &ts); err != nil {
			return nil, fmt.Errorf("scan message_history: %w", err)
		}
		conv.MessageHistory = append(conv.MessageHistory, model.HistoryEntry{
			Role: model.MessageRole(role), Body: body, Preview: preview, IntentLabel: label, Timestamp: ts,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message_history: %w", err)
	}

	return conv, nil
}

func callerStepValue(s *model.Step) any {
	if s == nil {
		return nil
	}
	return int(*s)
}
