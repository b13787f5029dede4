package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openevent-ai/conversation-engine/internal/engine/model"
)

// eventRow mirrors the events table's JSON-blob columns.
type eventRow struct {
	roomPendingJSON  sql.NullString
	lineItemsJSON    string
	billingJSON      string
	billingReqJSON   string
	depositJSON      string
	siteVisitJSON    string
}

// CreateEvent inserts a new event row.
func (s *Store) CreateEvent(ctx context.Context, e *model.Event) error {
	blobs, err := marshalEventBlobs(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (
			event_id, client_id, thread_id, status, event_date, start_time, end_time,
			participants_count, seating_layout, requirements_hash, room_eval_hash,
			locked_room_id, room_pending_json, offer_sequence, offer_status, offer_accepted,
			current_offer_id, line_items_json, billing_json, billing_requirements_json,
			deposit_json, site_visit_json, negotiation_pending_decision, negotiation_counter_count,
			transition_ready, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`, e.EventID, e.ClientID, e.ThreadID, string(e.Status), e.EventDate, e.StartTime, e.EndTime,
		e.ParticipantsCount, e.SeatingLayout, e.RequirementsHash, e.RoomEvalHash,
		e.LockedRoomID, blobs.roomPendingJSON, e.OfferSequence, string(e.OfferStatus), e.OfferAccepted,
		e.CurrentOfferID, blobs.lineItemsJSON, blobs.billingJSON, blobs.billingReqJSON,
		blobs.depositJSON, blobs.siteVisitJSON, e.NegotiationPendingDecision, e.NegotiationCounterCount,
		e.TransitionReady, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// SaveEvent persists e's full mutable state, overwriting the existing row.
func (s *Store) SaveEvent(ctx context.Context, e *model.Event) error {
	blobs, err := marshalEventBlobs(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE events SET
			status = ?, event_date = ?, start_time = ?, end_time = ?,
			participants_count = ?, seating_layout = ?, requirements_hash = ?, room_eval_hash = ?,
			locked_room_id = ?, room_pending_json = ?, offer_sequence = ?, offer_status = ?,
			offer_accepted = ?, current_offer_id = ?, line_items_json = ?, billing_json = ?,
			billing_requirements_json = ?, deposit_json = ?, site_visit_json = ?,
			negotiation_pending_decision = ?, negotiation_counter_count = ?, transition_ready = ?,
			updated_at = ?
		WHERE event_id = ?
	`, string(e.Status), e.EventDate, e.StartTime, e.EndTime,
		e.ParticipantsCount, e.SeatingLayout, e.RequirementsHash, e.RoomEvalHash,
		e.LockedRoomID, blobs.roomPendingJSON, e.OfferSequence, string(e.OfferStatus),
		e.OfferAccepted, e.CurrentOfferID, blobs.lineItemsJSON, blobs.billingJSON,
		blobs.billingReqJSON, blobs.depositJSON, blobs.siteVisitJSON,
		e.NegotiationPendingDecision, e.NegotiationCounterCount, e.TransitionReady,
		e.UpdatedAt, e.EventID)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

// GetEvent loads an event by ID. Returns (nil, nil) if absent.
func (s *Store) GetEvent(ctx context.Context, eventID string) (*model.Event, error) {
	return s.queryEvent(ctx, `WHERE event_id = ?`, eventID)
}

// GetActiveEventByThread loads the most recent non-terminal event for a
// thread (the event a new message should be applied to, per the event-reuse
// invariant). Returns (nil, nil) if none exists.
func (s *Store) GetActiveEventByThread(ctx context.Context, threadID string) (*model.Event, error) {
	return s.queryEvent(ctx, `
		WHERE thread_id = ? AND status NOT IN ('confirmed', 'cancelled')
		ORDER BY created_at DESC LIMIT 1
	`, threadID)
}

// RoomBooking is one other event's room hold on a given date — the store's
// own view, kept free of any catalog import (catalog already depends on
// store for its config table) and converted to catalog.BookingRef by callers.
type RoomBooking struct {
	EventID   string
	RoomID    string
	EventDate time.Time
	Confirmed bool
}

// ListRoomBookingsOnDate returns every other event's room hold on date, for
// cross-client conflict detection (room_status_on_date). Rows with no room
// locked yet are excluded since they cannot conflict with anything.
func (s *Store) ListRoomBookingsOnDate(ctx context.Context, date time.Time) ([]RoomBooking, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, locked_room_id, event_date, status
		FROM events
		WHERE locked_room_id != '' AND event_date = ? AND status != 'cancelled'
	`, date)
	if err != nil {
		return nil, fmt.Errorf("query room bookings: %w", err)
	}
	defer rows.Close()

	var out []RoomBooking
	for rows.Next() {
		var b RoomBooking
		var status string
		if err := rows.Scan(&b.EventID, &b.RoomID, &b.EventDate, &status); err != nil {
			return nil, fmt.Errorf("scan room booking: %w", err)
		}
		b.Confirmed = status == "confirmed"
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) queryEvent(ctx context.Context, whereClause string, args ...any) (*model.Event, error) {
	e := &model.Event{}
	var status, offerStatus string
	var roomPendingJSON sql.NullString
	var lineItemsJSON, billingJSON, billingReqJSON, depositJSON, siteVisitJSON string

	query := `
		SELECT event_id, client_id, thread_id, status, event_date, start_time, end_time,
			participants_count, seating_layout, requirements_hash, room_eval_hash,
			locked_room_id, room_pending_json, offer_sequence, offer_status, offer_accepted,
			current_offer_id, line_items_json, billing_json, billing_requirements_json,
			deposit_json, site_visit_json, negotiation_pending_decision, negotiation_counter_count,
			transition_ready, created_at, updated_at
		FROM events ` + whereClause

	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&e.EventID, &e.ClientID, &e.ThreadID, &status, &e.EventDate, &e.StartTime, &e.EndTime,
		&e.ParticipantsCount, &e.SeatingLayout, &e.RequirementsHash, &e.RoomEvalHash,
		&e.LockedRoomID, &roomPendingJSON, &e.OfferSequence, &offerStatus, &e.OfferAccepted,
		&e.CurrentOfferID, &lineItemsJSON, &billingJSON, &billingReqJSON,
		&depositJSON, &siteVisitJSON, &e.NegotiationPendingDecision, &e.NegotiationCounterCount,
		&e.TransitionReady, &e.CreatedAt, &e.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query event: %w", err)
	}
	e.Status = model.EventStatus(status)
	e.OfferStatus = model.OfferStatus(offerStatus)

	if roomPendingJSON.Valid && roomPendingJSON.String != "" {
		var rp model.RoomPendingDecision
		if err := json.Unmarshal([]byte(roomPendingJSON.String), &rp); err != nil {
			return nil, fmt.Errorf("unmarshal room_pending_json: %w", err)
		}
		e.RoomPendingDecision = &rp
	}
	if err := json.Unmarshal([]byte(lineItemsJSON), &e.LineItems); err != nil {
		return nil, fmt.Errorf("unmarshal line_items_json: %w", err)
	}
	if err := json.Unmarshal([]byte(billingJSON), &e.BillingDetails); err != nil {
		return nil, fmt.Errorf("unmarshal billing_json: %w", err)
	}
	if err := json.Unmarshal([]byte(billingReqJSON), &e.BillingRequirements); err != nil {
		return nil, fmt.Errorf("unmarshal billing_requirements_json: %w", err)
	}
	if err := json.Unmarshal([]byte(depositJSON), &e.DepositState); err != nil {
		return nil, fmt.Errorf("unmarshal deposit_json: %w", err)
	}
	if err := json.Unmarshal([]byte(siteVisitJSON), &e.SiteVisitState); err != nil {
		return nil, fmt.Errorf("unmarshal site_visit_json: %w", err)
	}
	return e, nil
}

func marshalEventBlobs(e *model.Event) (eventRow, error) {
	var blobs eventRow

	if e.RoomPendingDecision != nil {
		data, err := json.Marshal(e.RoomPendingDecision)
		if err != nil {
			return blobs, fmt.Errorf("marshal room_pending_decision: %w", err)
		}
		blobs.roomPendingJSON = sql.NullString{String: string(data), Valid: true}
	}

	lineItems := e.LineItems
	if lineItems == nil {
		lineItems = []model.LineItem{}
	}
	data, err := json.Marshal(lineItems)
	if err != nil {
		return blobs, fmt.Errorf("marshal line_items: %w", err)
	}
	blobs.lineItemsJSON = string(data)

	if data, err = json.Marshal(e.BillingDetails); err != nil {
		return blobs, fmt.Errorf("marshal billing_details: %w", err)
	}
	blobs.billingJSON = string(data)

	if data, err = json.Marshal(e.BillingRequirements); err != nil {
		return blobs, fmt.Errorf("marshal billing_requirements: %w", err)
	}
	blobs.billingReqJSON = string(data)

	if data, err = json.Marshal(e.DepositState); err != nil {
		return blobs, fmt.Errorf("marshal deposit_state: %w", err)
	}
	blobs.depositJSON = string(data)

	if data, err = json.Marshal(e.SiteVisitState); err != nil {
		return blobs, fmt.Errorf("marshal site_visit_state: %w", err)
	}
	blobs.siteVisitJSON = string(data)

	return blobs, nil
}
