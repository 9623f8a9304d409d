package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	domain "paygate/internal/domain/payment"
)

// PaymentRepository is an in-memory payment store. Mutate serializes on a
// per-payment mutex, applies the update function to a private clone and
// commits only when it returns nil, so concurrent callback/return races
// cannot lose a transition and a failed mutation leaves the stored record
// untouched.
type PaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]*domain.Payment
	locks    sync.Map // payment id -> *sync.Mutex
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{
		payments: make(map[string]*domain.Payment),
	}
}

func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("payment repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.payments[p.ID]; exists {
		return domain.ErrConflict
	}
	r.payments[p.ID] = p.Clone()
	return nil
}

func (r *PaymentRepository) Get(ctx context.Context, id string) (*domain.Payment, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *PaymentRepository) List(ctx context.Context) ([]*domain.Payment, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Payment, 0, len(r.payments))
	for _, p := range r.payments {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *PaymentRepository) Mutate(ctx context.Context, id string, fn func(*domain.Payment) error) (*domain.Payment, error) {
	_ = ctx

	lock := r.recordLock(id)
	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	stored, ok := r.payments[id]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}

	working := stored.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.Version++

	r.mu.Lock()
	r.payments[id] = working.Clone()
	r.mu.Unlock()

	return working, nil
}

func (r *PaymentRepository) recordLock(id string) *sync.Mutex {
	lock, _ := r.locks.LoadOrStore(id, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
