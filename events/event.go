package events

import (
	"encoding/json"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

// Type names a mutation that makes cached dashboard data stale.
type Type string

const (
	OrderStatusChanged    Type = "order.status_changed"
	OrderPaymentConfirmed Type = "order.payment_confirmed"
	TableClosed           Type = "table.closed"
)

// Types lists every accepted event type.
var Types = []Type{OrderStatusChanged, OrderPaymentConfirmed, TableClosed}

// ErrCodeInvalidEvent tags events that fail to decode or validate.
const ErrCodeInvalidEvent = "ORDER_EVENT_INVALID"

// Event is the JSON payload published by the order and table writers.
type Event struct {
	Type       Type      `json:"type"`
	OrderID    int64     `json:"order_id,omitempty"`
	TableID    string    `json:"table_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Validate checks the event shape. Order events need an order id and table
// events a table id.
func (e Event) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Type, validation.Required, validation.In(OrderStatusChanged, OrderPaymentConfirmed, TableClosed)),
		validation.Field(&e.OrderID, validation.When(e.Type != TableClosed, validation.Required, validation.Min(int64(1)))),
		validation.Field(&e.TableID, validation.When(e.Type == TableClosed, validation.Required)),
	)
}

// Decode parses and validates a raw event. Failures are validation errors
// carrying ErrCodeInvalidEvent.
func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, goerrors.Wrap(err, goerrors.CategoryValidation, "malformed order event").
			WithTextCode(ErrCodeInvalidEvent)
	}
	if err := e.Validate(); err != nil {
		return Event{}, goerrors.FromOzzoValidation(err, "invalid order event").
			WithTextCode(ErrCodeInvalidEvent).
			WithMetadata(map[string]any{"type": string(e.Type)})
	}
	return e, nil
}
