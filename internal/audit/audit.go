// Package audit keeps an immutable Postgres trail of workflow decisions:
// who booked what, which submissions conflicted, how invoices were paid.
// The trail is the portal's own record; the upstream backend never sees it.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType classifies an audit record.
type EventType string

const (
	// EventBookingCreated is logged after a successful creation.
	EventBookingCreated EventType = "booking.created"
	// EventBookingUpdated is logged after a successful update.
	EventBookingUpdated EventType = "booking.updated"
	// EventBookingConflict is logged when the backend rejected the slot.
	EventBookingConflict EventType = "booking.conflict"
	// EventBookingCancelled is logged on cancellation, with the reason.
	EventBookingCancelled EventType = "booking.cancelled"
	// EventInvoiceCreated is logged when an invoice is generated.
	EventInvoiceCreated EventType = "invoice.created"
	// EventPaymentCash is logged on a cash settlement.
	EventPaymentCash EventType = "payment.cash"
	// EventPaymentQRPaid is logged when polling observed a QR payment.
	EventPaymentQRPaid EventType = "payment.qr_paid"
	// EventPaymentQRExpired is logged when the QR lapsed unpaid.
	EventPaymentQRExpired EventType = "payment.qr_expired"
)

// Event is one immutable audit record.
type Event struct {
	ID            string          `json:"id"`
	EventType     EventType       `json:"event_type"`
	Actor         string          `json:"actor"`
	AppointmentID int             `json:"appointment_id,omitempty"`
	InvoiceID     int             `json:"invoice_id,omitempty"`
	Details       json.RawMessage `json:"details,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Details carries event-specific fields.
type Details struct {
	// For bookings
	CustomerID int    `json:"customer_id,omitempty"`
	ServiceIDs []int  `json:"service_ids,omitempty"`
	StaffID    *int   `json:"staff_id,omitempty"`
	StartsAt   string `json:"starts_at,omitempty"`
	Reason     string `json:"reason,omitempty"`

	// For conflicts
	ConflictCount int `json:"conflict_count,omitempty"`

	// For payments
	Amount   int64  `json:"amount,omitempty"`
	Change   int64  `json:"change,omitempty"`
	Method   string `json:"method,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
}

// Trail writes and queries audit events.
type Trail struct {
	db *sql.DB
}

// NewTrail creates the audit trail over an open database handle.
func NewTrail(db *sql.DB) *Trail {
	return &Trail{db: db}
}

// Log records an event. ID and timestamp are filled in when absent.
func (t *Trail) Log(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO workflow_audit_events (
			id, event_type, actor, appointment_id, invoice_id, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := t.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.Actor,
		nullInt(event.AppointmentID),
		nullInt(event.InvoiceID),
		event.Details,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to log event: %w", err)
	}
	return nil
}

// LogBooking records a successful create or update.
func (t *Trail) LogBooking(ctx context.Context, actor string, appointmentID int, d Details, update bool) error {
	detailsJSON, _ := json.Marshal(d)
	eventType := EventBookingCreated
	if update {
		eventType = EventBookingUpdated
	}
	return t.Log(ctx, Event{
		EventType:     eventType,
		Actor:         actor,
		AppointmentID: appointmentID,
		Details:       detailsJSON,
	})
}

// LogConflict records a rejected submission with the collision count.
func (t *Trail) LogConflict(ctx context.Context, actor string, d Details) error {
	detailsJSON, _ := json.Marshal(d)
	return t.Log(ctx, Event{
		EventType: EventBookingConflict,
		Actor:     actor,
		Details:   detailsJSON,
	})
}

// LogCancellation records a cancellation and its reason.
func (t *Trail) LogCancellation(ctx context.Context, actor string, appointmentID int, reason string) error {
	detailsJSON, _ := json.Marshal(Details{Reason: reason})
	return t.Log(ctx, Event{
		EventType:     EventBookingCancelled,
		Actor:         actor,
		AppointmentID: appointmentID,
		Details:       detailsJSON,
	})
}

// LogInvoiceCreated records invoice generation.
func (t *Trail) LogInvoiceCreated(ctx context.Context, actor string, appointmentID, invoiceID int, total int64) error {
	detailsJSON, _ := json.Marshal(Details{Amount: total})
	return t.Log(ctx, Event{
		EventType:     EventInvoiceCreated,
		Actor:         actor,
		AppointmentID: appointmentID,
		InvoiceID:     invoiceID,
		Details:       detailsJSON,
	})
}

// LogCashPayment records a cash settlement with the change given.
func (t *Trail) LogCashPayment(ctx context.Context, actor string, invoiceID int, amount, change int64) error {
	detailsJSON, _ := json.Marshal(Details{Amount: amount, Change: change, Method: "cash"})
	return t.Log(ctx, Event{
		EventType: EventPaymentCash,
		Actor:     actor,
		InvoiceID: invoiceID,
		Details:   detailsJSON,
	})
}

// LogQRResult records the terminal outcome of a QR polling run.
func (t *Trail) LogQRResult(ctx context.Context, actor string, invoiceID int, paid bool, attempts int) error {
	detailsJSON, _ := json.Marshal(Details{Method: "momo_qr", Attempts: attempts})
	eventType := EventPaymentQRExpired
	if paid {
		eventType = EventPaymentQRPaid
	}
	return t.Log(ctx, Event{
		EventType: eventType,
		Actor:     actor,
		InvoiceID: invoiceID,
		Details:   detailsJSON,
	})
}

// Filter narrows an audit query.
type Filter struct {
	Actor         string
	EventType     EventType
	AppointmentID int
	InvoiceID     int
	StartTime     time.Time
	EndTime       time.Time
	Limit         int
	Offset        int
}

// Query retrieves events matching the filter, newest first.
func (t *Trail) Query(ctx context.Context, filter Filter) ([]Event, error) {
	query := `
		SELECT id, event_type, actor, appointment_id, invoice_id, details, created_at
		FROM workflow_audit_events
		WHERE 1=1
	`
	var args []interface{}
	argIdx := 1

	if filter.Actor != "" {
		query += fmt.Sprintf(" AND actor = $%d", argIdx)
		args = append(args, filter.Actor)
		argIdx++
	}
	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, filter.EventType)
		argIdx++
	}
	if filter.AppointmentID > 0 {
		query += fmt.Sprintf(" AND appointment_id = $%d", argIdx)
		args = append(args, filter.AppointmentID)
		argIdx++
	}
	if filter.InvoiceID > 0 {
		query += fmt.Sprintf(" AND invoice_id = $%d", argIdx)
		args = append(args, filter.InvoiceID)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var aptID, invID sql.NullInt64
		if err := rows.Scan(&e.ID, &e.EventType, &e.Actor, &aptID, &invID, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		e.AppointmentID = int(aptID.Int64)
		e.InvoiceID = int(invID.Int64)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: failed to read events: %w", err)
	}
	return events, nil
}

func nullInt(v int) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(v), Valid: true}
}
