package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	domain "paygate/internal/domain/order"
)

// Order is a plain value implementation of the order capability, used by
// the in-memory source and by tests.
type Order struct {
	OrderID     string
	Lines       []domain.Item
	Total       decimal.Decimal
	CurrencyISO string
	Summary     string

	// ReturnBase receives the default post-payment redirect; the final URL
	// is ReturnBase?payment=<id>&success=<bool>.
	ReturnBase string
}

func (o Order) ID() string                   { return o.OrderID }
func (o Order) Items() []domain.Item         { return o.Lines }
func (o Order) TotalAmount() decimal.Decimal { return o.Total }
func (o Order) Currency() string             { return o.CurrencyISO }
func (o Order) Description() string          { return o.Summary }

func (o Order) ReturnURL(paymentID string, success bool) string {
	return fmt.Sprintf("%s?payment=%s&success=%t", o.ReturnBase, paymentID, success)
}

// OrderSource is an in-memory order lookup for wiring and tests.
type OrderSource struct {
	mu     sync.RWMutex
	orders map[string]Order
}

func NewOrderSource() *OrderSource {
	return &OrderSource{orders: make(map[string]Order)}
}

func (s *OrderSource) Put(o Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.OrderID] = o
}

func (s *OrderSource) Get(ctx context.Context, id string) (domain.Order, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o, nil
}
