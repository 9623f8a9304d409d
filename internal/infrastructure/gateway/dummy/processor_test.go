package dummy_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"paygate/internal/domain/payment"
	"paygate/internal/infrastructure/gateway/dummy"
)

var testURLs = payment.ReturnURLs{
	Success:  "http://shop.test/payments/pay-1/success",
	Failure:  "http://shop.test/payments/pay-1/failure",
	Callback: "http://shop.test/payments/callback/pay-1",
}

func testPayment(t *testing.T) *payment.Payment {
	t.Helper()
	p, err := payment.New("pay-1", "ord-1", "dummy", "EUR", "two books", decimal.RequireFromString("100.00"))
	require.NoError(t, err)
	p.DrainEvents()
	return p
}

func TestNew_Defaults(t *testing.T) {
	proc := dummy.New(payment.Settings{}, http.DefaultClient, false)

	require.Equal(t, "dummy", proc.Slug())
	require.Equal(t, payment.DispatchRest, proc.DispatchMethod())
}

func TestNew_MethodFromSettings(t *testing.T) {
	proc := dummy.New(payment.Settings{"method": "get"}, http.DefaultClient, false)
	require.Equal(t, payment.DispatchGet, proc.DispatchMethod())
}

func TestPaywallParams_PushIncludesCallback(t *testing.T) {
	proc := dummy.New(payment.Settings{}, http.DefaultClient, false)

	params, err := proc.PaywallParams(context.Background(), testPayment(t), testURLs)
	require.NoError(t, err)
	require.Equal(t, "pay-1", params["ext_id"])
	require.Equal(t, "100", params["value"])
	require.Equal(t, "EUR", params["currency"])
	require.Equal(t, testURLs.Callback, params["callback"])
}

func TestPaywallParams_PullOmitsCallback(t *testing.T) {
	proc := dummy.New(payment.Settings{"confirmation_method": "PULL"}, http.DefaultClient, false)

	params, err := proc.PaywallParams(context.Background(), testPayment(t), testURLs)
	require.NoError(t, err)
	_, ok := params["callback"]
	require.False(t, ok)
}

func TestPaywallURL(t *testing.T) {
	settings := payment.Settings{"sandbox_url": "http://pay.test"}

	t.Run("explicit url wins", func(t *testing.T) {
		proc := dummy.New(settings, http.DefaultClient, false)
		require.Equal(t, "http://somewhere.test/x", proc.PaywallURL(map[string]string{"url": "http://somewhere.test/x"}))
	})

	t.Run("rest uses register endpoint", func(t *testing.T) {
		proc := dummy.New(settings, http.DefaultClient, false)
		require.Equal(t, "http://pay.test/api/register", proc.PaywallURL(nil))
	})

	t.Run("get attaches query params", func(t *testing.T) {
		proc := dummy.New(payment.Settings{"method": "GET", "sandbox_url": "http://pay.test"}, http.DefaultClient, false)
		raw := proc.PaywallURL(map[string]string{"ext_id": "pay-1", "value": "100"})

		parsed, err := url.Parse(raw)
		require.NoError(t, err)
		require.Equal(t, "/gateway", parsed.Path)
		require.Equal(t, "pay-1", parsed.Query().Get("ext_id"))
	})

	t.Run("production setting switches base", func(t *testing.T) {
		proc := dummy.New(payment.Settings{"production_url": "https://live.test"}, http.DefaultClient, true)
		require.True(t, strings.HasPrefix(proc.PaywallURL(nil), "https://live.test/"))
	})
}

func TestPrepareHeaders(t *testing.T) {
	proc := dummy.New(payment.Settings{"api_key": "s3cret"}, http.DefaultClient, false)

	headers, err := proc.PrepareHeaders(nil)
	require.NoError(t, err)
	require.Equal(t, "application/json", headers.Get("Content-Type"))
	require.Equal(t, "Bearer s3cret", headers.Get("Authorization"))
}

func TestHandleResponse(t *testing.T) {
	proc := dummy.New(payment.Settings{}, http.DefaultClient, false)

	rec := httptest.NewRecorder()
	require.NoError(t, json.NewEncoder(rec).Encode(map[string]string{
		"url":    "http://pay.test/gateway/abc",
		"ext_id": "gw-42",
	}))

	params, err := proc.HandleResponse(rec.Result())
	require.NoError(t, err)
	require.Equal(t, "http://pay.test/gateway/abc", params["url"])
	require.Equal(t, "gw-42", params["external_id"])
}

func TestHandleResponse_MissingURL(t *testing.T) {
	proc := dummy.New(payment.Settings{}, http.DefaultClient, false)

	rec := httptest.NewRecorder()
	rec.WriteString(`{}`)

	_, err := proc.HandleResponse(rec.Result())
	require.ErrorIs(t, err, payment.ErrGatewayUnavailable)
}

func TestHandleCallback(t *testing.T) {
	proc := dummy.New(payment.Settings{}, http.DefaultClient, false)
	ctx := context.Background()

	t.Run("paid", func(t *testing.T) {
		p := testPayment(t)
		require.NoError(t, proc.HandleCallback(ctx, p, []byte(`{"new_status":"paid"}`)))
		require.Equal(t, payment.StatusPaid, p.Status)
	})

	t.Run("paid with partial amount", func(t *testing.T) {
		p := testPayment(t)
		require.NoError(t, proc.HandleCallback(ctx, p, []byte(`{"new_status":"paid","amount":"40.00"}`)))
		require.Equal(t, payment.StatusPartiallyPaid, p.Status)
		require.True(t, p.AmountPaid.Equal(decimal.RequireFromString("40.00")))
	})

	t.Run("failed", func(t *testing.T) {
		p := testPayment(t)
		require.NoError(t, proc.HandleCallback(ctx, p, []byte(`{"new_status":"failed"}`)))
		require.Equal(t, payment.StatusFailed, p.Status)
	})

	t.Run("pre_auth", func(t *testing.T) {
		p := testPayment(t)
		require.NoError(t, proc.HandleCallback(ctx, p, []byte(`{"new_status":"pre_auth"}`)))
		require.Equal(t, payment.StatusAcceptedForProc, p.Status)
	})

	t.Run("missing new_status", func(t *testing.T) {
		p := testPayment(t)
		err := proc.HandleCallback(ctx, p, []byte(`{"amount":"40.00"}`))
		require.ErrorIs(t, err, payment.ErrMalformedCallback)
		require.Equal(t, payment.StatusNew, p.Status)
	})

	t.Run("not json", func(t *testing.T) {
		p := testPayment(t)
		err := proc.HandleCallback(ctx, p, []byte(`not json`))
		require.ErrorIs(t, err, payment.ErrMalformedCallback)
	})

	t.Run("unknown status", func(t *testing.T) {
		p := testPayment(t)
		err := proc.HandleCallback(ctx, p, []byte(`{"new_status":"levitating"}`))
		require.ErrorIs(t, err, payment.ErrMalformedCallback)
	})
}

func TestFetchRemoteStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("status and amount", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/status/gw-42", r.URL.Path)
			_ = json.NewEncoder(w).Encode(map[string]string{"payment_status": "paid", "amount": "100.00"})
		}))
		defer server.Close()

		proc := dummy.New(payment.Settings{"sandbox_url": server.URL}, server.Client(), false)
		p := testPayment(t)
		p.ExternalID = "gw-42"

		remote, err := proc.FetchRemoteStatus(ctx, p)
		require.NoError(t, err)
		require.NotNil(t, remote.Status)
		require.Equal(t, payment.StatusPaid, *remote.Status)
		require.NotNil(t, remote.Amount)
		require.True(t, remote.Amount.Equal(decimal.RequireFromString("100.00")))
	})

	t.Run("gateway error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		proc := dummy.New(payment.Settings{"sandbox_url": server.URL}, server.Client(), false)

		_, err := proc.FetchRemoteStatus(ctx, testPayment(t))
		require.ErrorIs(t, err, payment.ErrGatewayUnavailable)
	})
}

func TestLockAndRelease(t *testing.T) {
	ctx := context.Background()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/lock", "/api/charge":
			_ = json.NewEncoder(w).Encode(map[string]string{"amount": "100.00"})
		case "/api/release":
			_ = json.NewEncoder(w).Encode(map[string]string{"amount": "0"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	proc := dummy.New(payment.Settings{"sandbox_url": server.URL}, server.Client(), false)
	p := testPayment(t)

	locked, err := proc.Lock(ctx, p, decimal.RequireFromString("100.00"))
	require.NoError(t, err)
	require.True(t, locked.Equal(decimal.RequireFromString("100.00")))

	charged, err := proc.ChargeLocked(ctx, p, locked)
	require.NoError(t, err)
	require.True(t, charged.Equal(locked))

	released, err := proc.Release(ctx, p)
	require.NoError(t, err)
	require.True(t, released.IsZero())
}

func TestRefund_Unsupported(t *testing.T) {
	proc := dummy.New(payment.Settings{}, http.DefaultClient, false)

	_, err := proc.StartRefund(context.Background(), testPayment(t), decimal.NewFromInt(10))
	require.ErrorIs(t, err, payment.ErrUnsupportedOperation)
	require.ErrorIs(t, proc.CancelRefund(context.Background(), testPayment(t)), payment.ErrUnsupportedOperation)
}
