package payment

import "context"

// Repository persists payments. Implementations must make Mutate atomic per
// record: concurrent mutations of the same payment serialize, the update
// function runs against a private copy, and nothing is stored when it
// returns an error. The push-callback and browser-return paths race on the
// same record; whichever mutation is accepted last wins and none is lost.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)

	// List returns all payments, newest first.
	List(ctx context.Context) ([]*Payment, error)

	// Mutate loads the payment, applies fn and persists the result. The
	// returned payment carries the events fn recorded, for publishing after
	// the fact. ErrNotFound when the id is unknown; fn errors pass through
	// unchanged with the stored record untouched.
	Mutate(ctx context.Context, id string, fn func(*Payment) error) (*Payment, error)
}
