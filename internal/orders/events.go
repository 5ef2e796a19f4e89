package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/google/uuid"
	"time"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderCanceled      = "OrderCanceled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

// Every payload carries order_id and status, which is all a status
// projection needs.

type OrderCreatedPayload struct {
	OrderID string            `json:"order_id"`
	UserID  string            `json:"user_id"`
	Status  Status            `json:"status"`
	Items   []catalog.ItemQty `json:"items"`
}

type OrderStatusChangedPayload struct {
	OrderID string     `json:"order_id"`
	UserID  string     `json:"user_id"`
	From    Status     `json:"from"`
	Status  Status     `json:"status"`
	EndDate *time.Time `json:"end_date,omitempty"`
}

type OrderCanceledPayload struct {
	OrderID         string            `json:"order_id"`
	UserID          string            `json:"user_id"`
	From            Status            `json:"from"`
	Status          Status            `json:"status"`
	Items           []catalog.ItemQty `json:"items"`
	EndDate         *time.Time        `json:"end_date,omitempty"`
	RestoreComplete bool              `json:"restore_complete"`
}

// EventSink receives order lifecycle events.
type EventSink interface {
	Publish(ctx context.Context, ev Envelope) error
}

func NewEnvelope(eventType, producer, orderID, traceID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: orderID,
		Payload:       b,
	}, nil
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Publish(context.Context, Envelope) error { return nil }
