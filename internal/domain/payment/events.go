package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreatedEvent is emitted when a new payment record is opened for an order.
type CreatedEvent struct {
	PaymentID  string
	OrderID    string
	Backend    string
	Amount     decimal.Decimal
	Currency   string
	OccurredAt time.Time
}

func (CreatedEvent) EventName() string { return "payment.created" }

func NewCreatedEvent(p *Payment) CreatedEvent {
	return CreatedEvent{
		PaymentID:  p.ID,
		OrderID:    p.OrderID,
		Backend:    p.Backend,
		Amount:     p.AmountRequired,
		Currency:   p.Currency,
		OccurredAt: time.Now().UTC(),
	}
}

// StatusChangedEvent is emitted on every effective status transition.
// It is delivered synchronously and in order, so subscribers (order
// fulfillment bookkeeping and the like) see transitions exactly as applied.
type StatusChangedEvent struct {
	PaymentID  string
	OrderID    string
	Old        Status
	New        Status
	AmountPaid decimal.Decimal
	OccurredAt time.Time
}

func (StatusChangedEvent) EventName() string { return "payment.status_changed" }

func NewStatusChangedEvent(p *Payment, old, next Status) StatusChangedEvent {
	return StatusChangedEvent{
		PaymentID:  p.ID,
		OrderID:    p.OrderID,
		Old:        old,
		New:        next,
		AmountPaid: p.AmountPaid,
		OccurredAt: time.Now().UTC(),
	}
}
