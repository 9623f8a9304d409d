package payment_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"paygate/internal/domain/payment"
)

func newPayment(t *testing.T) *payment.Payment {
	t.Helper()
	p, err := payment.New("pay-1", "ord-1", "dummy", "EUR", "two books", decimal.NewFromInt(100))
	require.NoError(t, err)
	return p
}

func TestNew_Validation(t *testing.T) {
	_, err := payment.New("pay-1", "ord-1", "dummy", "EUR", "", decimal.Zero)
	require.ErrorIs(t, err, payment.ErrInvalidAmount)

	_, err = payment.New("pay-1", "ord-1", "dummy", "EURO", "", decimal.NewFromInt(10))
	require.ErrorIs(t, err, payment.ErrInvalidCurrency)

	_, err = payment.New("pay-1", "ord-1", "", "EUR", "", decimal.NewFromInt(10))
	require.Error(t, err)
}

func TestNew_StartsNewWithCreatedEvent(t *testing.T) {
	p := newPayment(t)

	if p.Status != payment.StatusNew {
		t.Fatalf("expected status new, got %s", p.Status)
	}

	events := p.DrainEvents()
	require.Len(t, events, 1)
	created, ok := events[0].(payment.CreatedEvent)
	require.True(t, ok)
	require.Equal(t, "pay-1", created.PaymentID)
	require.Equal(t, "ord-1", created.OrderID)
}

func TestChangeStatus_SameStatusIsNoOp(t *testing.T) {
	p := newPayment(t)
	p.DrainEvents()

	require.True(t, p.ChangeStatus(payment.StatusInProgress))
	require.False(t, p.ChangeStatus(payment.StatusInProgress))

	events := p.DrainEvents()
	require.Len(t, events, 1, "repeated transition must not emit a second event")

	changed := events[0].(payment.StatusChangedEvent)
	require.Equal(t, payment.StatusNew, changed.Old)
	require.Equal(t, payment.StatusInProgress, changed.New)
}

func TestOnSuccess_FullAmountByDefault(t *testing.T) {
	p := newPayment(t)

	fullyPaid := p.OnSuccess(nil)

	require.True(t, fullyPaid)
	require.Equal(t, payment.StatusPaid, p.Status)
	require.True(t, p.AmountPaid.Equal(p.AmountRequired))
	require.NotNil(t, p.PaidAt)
}

func TestOnSuccess_PartialThenTopUp(t *testing.T) {
	p := newPayment(t)

	part := decimal.NewFromInt(40)
	fullyPaid := p.OnSuccess(&part)
	require.False(t, fullyPaid)
	require.Equal(t, payment.StatusPartiallyPaid, p.Status)

	rest := decimal.NewFromInt(100)
	fullyPaid = p.OnSuccess(&rest)
	require.True(t, fullyPaid)
	require.Equal(t, payment.StatusPaid, p.Status)
}

func TestOnSuccess_OverpaymentCountsAsPaid(t *testing.T) {
	p := newPayment(t)

	over := decimal.NewFromInt(120)
	require.True(t, p.OnSuccess(&over))
	require.Equal(t, payment.StatusPaid, p.Status)
	require.True(t, p.AmountPaid.Equal(over))
}

func TestOnFailure(t *testing.T) {
	p := newPayment(t)
	p.OnFailure()
	require.Equal(t, payment.StatusFailed, p.Status)
}

func TestClone_DropsPendingEvents(t *testing.T) {
	p := newPayment(t)
	p.ChangeStatus(payment.StatusInProgress)

	clone := p.Clone()
	require.Empty(t, clone.DrainEvents())
	require.NotEmpty(t, p.DrainEvents())
	require.Equal(t, p.Status, clone.Status)
}

func TestStatus_Valid(t *testing.T) {
	for _, s := range []payment.Status{
		payment.StatusNew, payment.StatusInProgress, payment.StatusAcceptedForProc,
		payment.StatusPartiallyPaid, payment.StatusPaid, payment.StatusCancelled, payment.StatusFailed,
	} {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}
	if payment.Status("refunded").Valid() {
		t.Error("unknown status must not validate")
	}
}
