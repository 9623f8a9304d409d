// Package fulfillment contains the bookkeeping that reacts to payment
// status transitions. It is deliberately one-directional: the payment core
// never calls into order handling, it only announces transitions on the bus.
package fulfillment

import (
	"context"
	"fmt"

	"paygate/internal/domain/event"
	"paygate/internal/domain/payment"
	"paygate/internal/observability"
)

const componentFulfillment = "fulfillment"

type Subscriber struct {
	log       observability.Logger
	fulfilled observability.Counter
}

func NewSubscriber(tel observability.Telemetry) *Subscriber {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &Subscriber{
		log:       tel.Logger().With(observability.F("component", componentFulfillment)),
		fulfilled: tel.Counter("orders_fulfilled_total"),
	}
}

// Attach registers the handlers on the bus. Must be called before the
// server starts accepting traffic so no transition is missed.
func (s *Subscriber) Attach(bus event.Subscriber) {
	bus.Subscribe(payment.StatusChangedEvent{}.EventName(), s.onStatusChanged)
}

func (s *Subscriber) onStatusChanged(_ context.Context, e event.Event) error {
	changed, ok := e.(payment.StatusChangedEvent)
	if !ok {
		return fmt.Errorf("fulfillment: unexpected event payload %T", e)
	}

	switch changed.New {
	case payment.StatusPaid:
		s.fulfilled.Add(1)
		s.log.Info("order_fulfilled",
			observability.F("order_id", changed.OrderID),
			observability.F("payment_id", changed.PaymentID),
			observability.F("amount_paid", changed.AmountPaid.String()),
		)
	case payment.StatusPartiallyPaid:
		s.log.Info("order_partially_paid",
			observability.F("order_id", changed.OrderID),
			observability.F("payment_id", changed.PaymentID),
			observability.F("amount_paid", changed.AmountPaid.String()),
		)
	case payment.StatusFailed, payment.StatusCancelled:
		s.log.Info("order_payment_abandoned",
			observability.F("order_id", changed.OrderID),
			observability.F("payment_id", changed.PaymentID),
			observability.F("status", changed.New),
		)
	}
	return nil
}
