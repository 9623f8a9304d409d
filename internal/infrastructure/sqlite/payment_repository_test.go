package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"paygate/internal/domain/payment"
	"paygate/internal/infrastructure/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "payments.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.RunMigrations(db))
	return db
}

func mustPayment(t *testing.T, id string) *payment.Payment {
	t.Helper()
	p, err := payment.New(id, "ord-1", "dummy", "EUR", "two books", decimal.RequireFromString("123.45"))
	require.NoError(t, err)
	p.DrainEvents()
	return p
}

func TestCreateAndGet_Roundtrip(t *testing.T) {
	repo := sqlite.NewPaymentRepository(setupTestDB(t))
	ctx := context.Background()

	p := mustPayment(t, "pay-1")
	require.NoError(t, repo.Create(ctx, p))

	got, err := repo.Get(ctx, "pay-1")
	require.NoError(t, err)
	require.Equal(t, p.ID, got.ID)
	require.Equal(t, p.OrderID, got.OrderID)
	require.Equal(t, p.Backend, got.Backend)
	require.Equal(t, payment.StatusNew, got.Status)
	require.True(t, got.AmountRequired.Equal(decimal.RequireFromString("123.45")))
	require.Nil(t, got.PaidAt)
}

func TestCreate_DuplicateIDConflicts(t *testing.T) {
	repo := sqlite.NewPaymentRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, mustPayment(t, "pay-1")))
	require.Error(t, repo.Create(ctx, mustPayment(t, "pay-1")))
}

func TestGet_NotFound(t *testing.T) {
	repo := sqlite.NewPaymentRepository(setupTestDB(t))

	_, err := repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, payment.ErrNotFound)
}

func TestList_NewestFirst(t *testing.T) {
	repo := sqlite.NewPaymentRepository(setupTestDB(t))
	ctx := context.Background()

	older := mustPayment(t, "pay-old")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, mustPayment(t, "pay-new")))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "pay-new", list[0].ID)
}

func TestMutate_PersistsTransition(t *testing.T) {
	repo := sqlite.NewPaymentRepository(setupTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, mustPayment(t, "pay-1")))

	updated, err := repo.Mutate(ctx, "pay-1", func(p *payment.Payment) error {
		p.OnSuccess(nil)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, payment.StatusPaid, updated.Status)
	require.Len(t, updated.DrainEvents(), 1)

	stored, err := repo.Get(ctx, "pay-1")
	require.NoError(t, err)
	require.Equal(t, payment.StatusPaid, stored.Status)
	require.NotNil(t, stored.PaidAt)
	require.True(t, stored.AmountPaid.Equal(stored.AmountRequired))
}

func TestMutate_ErrorDiscardsChanges(t *testing.T) {
	repo := sqlite.NewPaymentRepository(setupTestDB(t))
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

func TestMutate_ConcurrentUpdatesAreNotLost(t *testing.T) {
	repo := sqlite.NewPaymentRepository(setupTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, mustPayment(t, "pay-1")))

	const workers = 8
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				_, err := repo.Mutate(ctx, "pay-1", func(p *payment.Payment) error {
					p.AmountPaid = p.AmountPaid.Add(decimal.NewFromInt(1))
					return nil
				})
				if err == nil {
					return
				}
				if !errors.Is(err, payment.ErrConflict) {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	stored, err := repo.Get(ctx, "pay-1")
	require.NoError(t, err)
	if !stored.AmountPaid.Equal(decimal.NewFromInt(workers)) {
		t.Fatalf("lost updates: expected %d, got %s", workers, stored.AmountPaid)
	}
}
