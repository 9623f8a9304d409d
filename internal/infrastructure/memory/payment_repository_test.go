package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"paygate/internal/domain/payment"
	"paygate/internal/infrastructure/memory"
)

func mustPayment(t *testing.T, id string) *payment.Payment {
	t.Helper()
	p, err := payment.New(id, "ord-1", "dummy", "EUR", "", decimal.NewFromInt(100))
	require.NoError(t, err)
	p.DrainEvents()
	return p
}

func TestCreate_DuplicateIDConflicts(t *testing.T) {
	repo := memory.NewPaymentRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, mustPayment(t, "pay-1")))
	require.ErrorIs(t, repo.Create(ctx, mustPayment(t, "pay-1")), payment.ErrConflict)
}

func TestGet_NotFound(t *testing.T) {
	repo := memory.NewPaymentRepository()

	_, err := repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, payment.ErrNotFound)
}

func TestGet_ReturnsACopy(t *testing.T) {
	repo := memory.NewPaymentRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, mustPayment(t, "pay-1")))

	got, err := repo.Get(ctx, "pay-1")
	require.NoError(t, err)
	got.Status = payment.StatusFailed

	again, err := repo.Get(ctx, "pay-1")
	require.NoError(t, err)
	require.Equal(t, payment.StatusNew, again.Status, "mutating a returned payment must not touch the store")
}

func TestList_NewestFirst(t *testing.T) {
	repo := memory.NewPaymentRepository()
	ctx := context.Background()

	older := mustPayment(t, "pay-old")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := mustPayment(t, "pay-new")

	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "pay-new", list[0].ID)
	require.Equal(t, "pay-old", list[1].ID)
}

func TestMutate_ErrorDiscardsChanges(t *testing.T) {
	repo := memory.NewPaymentRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, mustPayment(t, "pay-1")))

	boom := errors.New("boom")
	_, err := repo.Mutate(ctx, "pay-1", func(p *payment.Payment) error {
		p.OnFailure()
		return boom
	})
	require.ErrorIs(t, err, boom)

	stored, err := repo.Get(ctx, "pay-1")
	require.NoError(t, err)
	require.Equal(t, payment.StatusNew, stored.Status)
}

func TestMutate_ReturnsRecordedEvents(t *testing.T) {
	repo := memory.NewPaymentRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, mustPayment(t, "pay-1")))

	updated, err := repo.Mutate(ctx, "pay-1", func(p *payment.Payment) error {
		p.ChangeStatus(payment.StatusInProgress)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, updated.DrainEvents(), 1)

	stored, err := repo.Get(ctx, "pay-1")
	require.NoError(t, err)
	require.Empty(t, stored.DrainEvents(), "events must not be persisted")
}

func TestMutate_ConcurrentUpdatesAreNotLost(t *testing.T) {
	repo := memory.NewPaymentRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, mustPayment(t, "pay-1")))

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := repo.Mutate(ctx, "pay-1", func(p *payment.Payment) error {
				p.AmountPaid = p.AmountPaid.Add(decimal.NewFromInt(1))
				return nil
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	stored, err := repo.Get(ctx, "pay-1")
	require.NoError(t, err)
	if !stored.AmountPaid.Equal(decimal.NewFromInt(workers)) {
		t.Fatalf("lost updates: expected %d, got %s", workers, stored.AmountPaid)
	}
	require.Equal(t, int64(workers), stored.Version)
}
