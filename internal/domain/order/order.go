package order

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("order: not found")

// Item is a single line of an order. Some gateways require an item list to
// be attached to the payment; it is up to the storefront whether the list is
// real or a single summary line.
type Item struct {
	Name      string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// Order is the capability the storefront's order entity must expose to the
// payment core. The core never mutates orders; fulfillment reacts to payment
// status events instead.
type Order interface {
	ID() string
	Items() []Item
	TotalAmount() decimal.Decimal
	Currency() string
	Description() string

	// ReturnURL is where the client ends up after the gateway hands control
	// back, unless the backend configures its own success/failure URL.
	ReturnURL(paymentID string, success bool) string
}

// Source resolves order references handed in by the storefront.
type Source interface {
	Get(ctx context.Context, id string) (Order, error)
}
