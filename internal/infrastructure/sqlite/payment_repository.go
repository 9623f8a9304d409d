package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	domain "paygate/internal/domain/payment"
)

const mutateRetries = 3

// PaymentRepository stores payments in sqlite. Amounts are persisted as
// decimal strings to keep fixed precision; Mutate uses a version-guarded
// UPDATE so a concurrent writer is detected instead of silently overwritten.
type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	var paidAt any
	if p.PaidAt != nil {
		paidAt = p.PaidAt.UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payments
		 (id, order_id, amount_required, amount_paid, currency, backend,
		  status, external_id, description, created_at, paid_at, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.OrderID,
		p.AmountRequired.String(),
		p.AmountPaid.String(),
		p.Currency,
		p.Backend,
		string(p.Status),
		p.ExternalID,
		p.Description,
		p.CreatedAt.UTC(),
		paidAt,
		p.Version,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) Get(ctx context.Context, id string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	return scanPayment(row)
}

func (r *PaymentRepository) List(ctx context.Context) ([]*domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list payments: %w", err)
	}
	defer rows.Close()

	var out []*domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PaymentRepository) Mutate(ctx context.Context, id string, fn func(*domain.Payment) error) (*domain.Payment, error) {
	for attempt := 0; attempt < mutateRetries; attempt++ {
		p, err := r.mutateOnce(ctx, id, fn)
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		return p, err
	}
	return nil, domain.ErrConflict
}

func (r *PaymentRepository) mutateOnce(ctx context.Context, id string, fn func(*domain.Payment) error) (*domain.Payment, error) {
	p, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	expectedVersion := p.Version

	if err := fn(p); err != nil {
		return nil, err
	}
	p.Version = expectedVersion + 1

	var paidAt any
	if p.PaidAt != nil {
		paidAt = p.PaidAt.UTC()
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments
		 SET amount_paid = ?, status = ?, external_id = ?, paid_at = ?, version = ?
		 WHERE id = ? AND version = ?`,
		p.AmountPaid.String(),
		string(p.Status),
		p.ExternalID,
		paidAt,
		p.Version,
		id,
		expectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: update payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Someone else bumped the version between the read and the write.
		return nil, domain.ErrConflict
	}
	return p, nil
}

const selectColumns = `SELECT id, order_id, amount_required, amount_paid, currency, backend,
	status, external_id, description, created_at, paid_at, version
	FROM payments`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var (
		p              domain.Payment
		amountRequired string
		amountPaid     string
		status         string
		paidAt         sql.NullTime
	)

	err := row.Scan(
		&p.ID,
		&p.OrderID,
		&amountRequired,
		&amountPaid,
		&p.Currency,
		&p.Backend,
		&status,
		&p.ExternalID,
		&p.Description,
		&p.CreatedAt,
		&paidAt,
		&p.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: scan payment: %w", err)
	}

	if p.AmountRequired, err = decimal.NewFromString(amountRequired); err != nil {
		return nil, fmt.Errorf("sqlite: amount_required: %w", err)
	}
	if p.AmountPaid, err = decimal.NewFromString(amountPaid); err != nil {
		return nil, fmt.Errorf("sqlite: amount_paid: %w", err)
	}
	p.Status = domain.Status(status)
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		p.PaidAt = &t
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}
