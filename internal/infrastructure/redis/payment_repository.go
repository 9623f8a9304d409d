package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	domain "paygate/internal/domain/payment"
)

const (
	keyPrefix    = "payment:"
	indexByDate  = "payment:index_by_date"
	watchRetries = 5
)

// PaymentRepository stores payments as JSON values indexed by a
// creation-date ZSET. Mutate runs under WATCH so a concurrent writer aborts
// the transaction and the mutation is retried against fresh state.
type PaymentRepository struct {
	client *redis.Client
}

func NewPaymentRepository(client *redis.Client) *PaymentRepository {
	return &PaymentRepository{client: client}
}

func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	data, err := json.Marshal(toRecord(p))
	if err != nil {
		return err
	}

	key := keyPrefix + p.ID
	ok, err := r.client.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis: create payment: %w", err)
	}
	if !ok {
		return domain.ErrConflict
	}

	return r.client.ZAdd(ctx, indexByDate, redis.Z{
		Score:  float64(p.CreatedAt.UnixNano()),
		Member: p.ID,
	}).Err()
}

func (r *PaymentRepository) Get(ctx context.Context, id string) (*domain.Payment, error) {
	data, err := r.client.Get(ctx, keyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get payment: %w", err)
	}

	var rec record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("redis: decode payment: %w", err)
	}
	return rec.toPayment()
}

func (r *PaymentRepository) List(ctx context.Context) ([]*domain.Payment, error) {
	// Newest first.
	ids, err := r.client.ZRevRange(ctx, indexByDate, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list payments: %w", err)
	}

	out := make([]*domain.Payment, 0, len(ids))
	for _, id := range ids {
		p, err := r.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *PaymentRepository) Mutate(ctx context.Context, id string, fn func(*domain.Payment) error) (*domain.Payment, error) {
	key := keyPrefix + id

	var result *domain.Payment
	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		var rec record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return fmt.Errorf("redis: decode payment: %w", err)
		}
		p, err := rec.toPayment()
		if err != nil {
			return err
		}

		if err := fn(p); err != nil {
			return err
		}
		p.Version++

		updated, err := json.Marshal(toRecord(p))
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		if err != nil {
			return err
		}
		result = p
		return nil
	}

	for attempt := 0; attempt < watchRetries; attempt++ {
		err := r.client.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, domain.ErrConflict
}

type record struct {
	ID             string     `json:"id"`
	OrderID        string     `json:"order_id"`
	AmountRequired string     `json:"amount_required"`
	AmountPaid     string     `json:"amount_paid"`
	Currency       string     `json:"currency"`
	Backend        string     `json:"backend"`
	Status         string     `json:"status"`
	ExternalID     string     `json:"external_id,omitempty"`
	Description    string     `json:"description,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	Version        int64      `json:"version"`
}

func toRecord(p *domain.Payment) record {
	return record{
		ID:             p.ID,
		OrderID:        p.OrderID,
		AmountRequired: p.AmountRequired.String(),
		AmountPaid:     p.AmountPaid.String(),
		Currency:       p.Currency,
		Backend:        p.Backend,
		Status:         string(p.Status),
		ExternalID:     p.ExternalID,
		Description:    p.Description,
		CreatedAt:      p.CreatedAt,
		PaidAt:         p.PaidAt,
		Version:        p.Version,
	}
}

func (rec record) toPayment() (*domain.Payment, error) {
	amountRequired, err := decimal.NewFromString(rec.AmountRequired)
	if err != nil {
		return nil, fmt.Errorf("redis: amount_required: %w", err)
	}
	amountPaid, err := decimal.NewFromString(rec.AmountPaid)
	if err != nil {
		return nil, fmt.Errorf("redis: amount_paid: %w", err)
	}

	return &domain.Payment{
		ID:             rec.ID,
		OrderID:        rec.OrderID,
		AmountRequired: amountRequired,
		AmountPaid:     amountPaid,
		Currency:       rec.Currency,
		Backend:        rec.Backend,
		Status:         domain.Status(rec.Status),
		ExternalID:     rec.ExternalID,
		Description:    rec.Description,
		CreatedAt:      rec.CreatedAt,
		PaidAt:         rec.PaidAt,
		Version:        rec.Version,
	}, nil
}
