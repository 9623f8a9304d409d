package payment

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"paygate/internal/domain/event"
)

var (
	ErrNotFound             = errors.New("payment: not found")
	ErrConflict             = errors.New("payment: concurrent modification")
	ErrInvalidAmount        = errors.New("payment: amount must be greater than zero")
	ErrInvalidCurrency      = errors.New("payment: currency must be a 3-letter ISO code")
	ErrUnsupportedOperation = errors.New("payment: operation not supported by this gateway")
	ErrMalformedCallback    = errors.New("payment: malformed callback payload")
	ErrGatewayUnavailable   = errors.New("payment: gateway unavailable")
)

// Status is the canonical gateway-agnostic payment status. Persisted and
// wire representations use exactly these tokens.
type Status string

const (
	StatusNew             Status = "new"
	StatusInProgress      Status = "in_progress"
	StatusAcceptedForProc Status = "accepted_for_proc"
	StatusPartiallyPaid   Status = "partially_paid"
	StatusPaid            Status = "paid"
	StatusCancelled       Status = "cancelled"
	StatusFailed          Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusAcceptedForProc,
		StatusPartiallyPaid, StatusPaid, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Payment is the canonical record of one transaction attempt against a
// gateway. It is owned by exactly one order; an order may hold many
// payments. Records are never deleted.
//
// Status must only change through ChangeStatus (directly or via
// OnSuccess/OnFailure) so every transition emits a StatusChangedEvent.
// Mutations are applied inside Repository.Mutate, which serializes
// concurrent transitions on the same record.
type Payment struct {
	ID             string
	OrderID        string
	AmountRequired decimal.Decimal
	AmountPaid     decimal.Decimal
	Currency       string
	Backend        string
	Status         Status
	ExternalID     string
	Description    string
	CreatedAt      time.Time
	PaidAt         *time.Time
	Version        int64

	events []event.Event
}

func New(id, orderID, backend, currency, description string, amount decimal.Decimal) (*Payment, error) {
	if id == "" {
		return nil, errors.New("payment: id is required")
	}
	if backend == "" {
		return nil, errors.New("payment: backend is required")
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if len(currency) != 3 {
		return nil, ErrInvalidCurrency
	}

	p := &Payment{
		ID:             id,
		OrderID:        orderID,
		AmountRequired: amount,
		AmountPaid:     decimal.Zero,
		Currency:       currency,
		Backend:        backend,
		Status:         StatusNew,
		Description:    description,
		CreatedAt:      time.Now().UTC(),
	}
	p.record(NewCreatedEvent(p))
	return p, nil
}

// ChangeStatus is the only status mutator. Setting the current status again
// is a no-op: no event is recorded and nothing else changes. Returns whether
// the status actually changed.
func (p *Payment) ChangeStatus(next Status) bool {
	if p.Status == next {
		return false
	}
	old := p.Status
	p.Status = next
	p.record(NewStatusChangedEvent(p, old, next))
	return true
}

// OnSuccess records a successful balance income. A nil amount means the full
// required amount was received. Stamps the paid timestamp, updates the paid
// amount and transitions to paid or partially_paid. Returns whether the
// payment is now fully settled.
func (p *Payment) OnSuccess(received *decimal.Decimal) bool {
	now := time.Now().UTC()
	p.PaidAt = &now
	if received != nil {
		p.AmountPaid = *received
	} else {
		p.AmountPaid = p.AmountRequired
	}
	fullyPaid := p.AmountPaid.GreaterThanOrEqual(p.AmountRequired)
	if fullyPaid {
		p.ChangeStatus(StatusPaid)
	} else {
		p.ChangeStatus(StatusPartiallyPaid)
	}
	return fullyPaid
}

// OnFailure marks the payment failed.
func (p *Payment) OnFailure() {
	p.ChangeStatus(StatusFailed)
}

func (p *Payment) record(e event.Event) {
	p.events = append(p.events, e)
}

// DrainEvents returns the events recorded since the last drain and clears
// them. The caller publishes them after the mutation has been persisted.
func (p *Payment) DrainEvents() []event.Event {
	out := p.events
	p.events = nil
	return out
}

// Clone copies the persisted state of the payment. Pending events do not
// travel with the clone.
func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	clone := *p
	clone.events = nil
	if p.PaidAt != nil {
		paidAt := *p.PaidAt
		clone.PaidAt = &paidAt
	}
	return &clone
}
