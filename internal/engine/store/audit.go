package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AuditRow is one row of the append-only audit_log table — a structured,
// trace-correlated record of a step transition, HIL decision, or fallback.
type AuditRow struct {
	ID           int64
	Timestamp    time.Time
	TraceID      string
	ThreadID     string
	Step         int
	Action       string
	Target       sql.NullString
	PayloadJSON  sql.NullString
	Result       string
	ErrorMessage sql.NullString
}

// AuditPayload is a helper for structured audit payloads.
type AuditPayload map[string]interface{}

// WriteAudit appends a row to the audit_log.
func (s *Store) WriteAudit(ctx context.Context, traceID, threadID string, step int, action, target, result string, payload AuditPayload, errorMsg string) error {
	var payloadJSON sql.NullString
	if payload != nil {
		jsonBytes, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal audit payload: %w", err)
		}
		payloadJSON = sql.NullString{String: string(jsonBytes), Valid: true}
	}

	var targetNull sql.NullString
	if target != "" {
		targetNull = sql.NullString{String: target, Valid: true}
	}

	var errorNull sql.NullString
	if errorMsg != "" {
		errorNull = sql.NullString{String: errorMsg, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (ts, trace_id, thread_id, step, action, target, payload_json, result, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, time.Now(), traceID, threadID, step, action, targetNull, payloadJSON, result, errorNull)
	if err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// GetAuditByThread retrieves all audit rows for a thread, oldest first —
// the backing query for Event.audit_log.
func (s *Store) GetAuditByThread(ctx context.Context, threadID string) ([]*AuditRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, trace_id, thread_id, step, action, target, payload_json, result, error_message
		FROM audit_log
		WHERE thread_id = ?
		ORDER BY ts ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("query audit log by thread: %w", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

// GetAuditByTrace retrieves all audit rows for a trace ID, oldest first.
func (s *Store) GetAuditByTrace(ctx context.Context, traceID string) ([]*AuditRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, trace_id, thread_id, step, action, target, payload_json, result, error_message
		FROM audit_log
		WHERE trace_id = ?
		ORDER BY ts ASC
	`, traceID)
	if err != nil {
		return nil, fmt.Errorf("query audit log by trace: %w", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

func scanAuditRows(rows *sql.Rows) ([]*AuditRow, error) {
	var entries []*AuditRow
	for rows.Next() {
		e := &AuditRow{}
		if err := rows.Scan(
			&e.ID, &e.Timestamp, &e.TraceID, &e.ThreadID, &e.Step,
			&e.Action, &e.Target, &e.PayloadJSON, &e.Result, &e.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log: %w", err)
	}
	return entries, nil
}
