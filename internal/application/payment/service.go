// Package payment orchestrates the payment lifecycle: creating payments for
// orders, handing control to the gateway, accepting push callbacks and
// browser returns, and polling gateways that only support pull confirmation.
// Gateway protocol specifics stay behind the processor contract; everything
// here is backend-agnostic.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"paygate/internal/domain/event"
	"paygate/internal/domain/order"
	"paygate/internal/domain/payment"
	"paygate/internal/observability"
	"paygate/internal/observability/logctx"
	"paygate/internal/registry"
)

const componentPaymentService = "payment_service"

type IDGenerator interface {
	NewID() string
}

// HTTPDoer is the slice of http.Client the REST dispatch flow needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Service struct {
	registry *registry.Registry
	payments payment.Repository
	orders   order.Source
	bus      event.Publisher
	ids      IDGenerator
	client   HTTPDoer
	settings map[string]payment.Settings
	baseURL  string

	log        observability.Logger
	dispatched observability.Counter
	callbacks  observability.Counter
}

func NewService(
	reg *registry.Registry,
	payments payment.Repository,
	orders order.Source,
	bus event.Publisher,
	ids IDGenerator,
	client HTTPDoer,
	settings map[string]payment.Settings,
	baseURL string,
	tel observability.Telemetry,
) *Service {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Service{
		registry:   reg,
		payments:   payments,
		orders:     orders,
		bus:        bus,
		ids:        ids,
		client:     client,
		settings:   settings,
		baseURL:    baseURL,
		log:        tel.Logger().With(observability.F("component", componentPaymentService)),
		dispatched: tel.Counter("payments_dispatched_total"),
		callbacks:  tel.Counter("payment_callbacks_total"),
	}
}

// Create registers a new payment for the order and dispatches it to the
// backend's paywall. The returned Dispatch tells the caller whether to
// redirect the client or render an auto-submitting form.
func (s *Service) Create(ctx context.Context, backendKey, orderID string) (*payment.Payment, *Dispatch, error) {
	logger := logctx.FromOr(ctx, s.log)

	proc, err := s.registry.Resolve(backendKey)
	if err != nil {
		return nil, nil, err
	}
	ord, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	p, err := payment.New(s.ids.NewID(), ord.ID(), backendKey, ord.Currency(), ord.Description(), ord.TotalAmount())
	if err != nil {
		return nil, nil, err
	}
	if err := s.payments.Create(ctx, p); err != nil {
		logger.Error("payment_create_failed",
			observability.F("order_id", orderID),
			observability.F("error", err),
		)
		return nil, nil, fmt.Errorf("payment: create: %w", err)
	}
	s.publish(ctx, p)
	logger.Info("payment_created",
		observability.F("payment_id", p.ID),
		observability.F("order_id", p.OrderID),
		observability.F("backend", backendKey),
		observability.F("amount", p.AmountRequired.String()),
	)

	urls := s.returnURLs(p.ID)
	params, err := proc.PaywallParams(ctx, p, urls)
	if err != nil {
		return nil, nil, err
	}

	method := proc.DispatchMethod()
	switch method {
	case payment.DispatchGet:
		updated, err := s.transition(ctx, p.ID, payment.StatusInProgress)
		if err != nil {
			return nil, nil, err
		}
		s.countDispatch(backendKey, method, "success")
		return updated, redirectTo(proc.PaywallURL(params)), nil

	case payment.DispatchPost:
		// The client still has to submit the form, so the payment stays new
		// until the gateway reports back.
		s.countDispatch(backendKey, method, "success")
		return p, formTo(proc.PaywallURL(nil), params), nil

	case payment.DispatchRest:
		return s.dispatchRest(ctx, proc, p, params, urls)

	default:
		return nil, nil, fmt.Errorf("payment: backend %q declares unsupported dispatch method %q", backendKey, method)
	}
}

// dispatchRest performs the single synchronous registration call of the REST
// flow. Any failure leaves the payment in status new and resolves to the
// failure return URL instead of an error: the client gets a deterministic
// landing page and the stale record is picked up by reconciliation.
func (s *Service) dispatchRest(ctx context.Context, proc payment.Processor, p *payment.Payment, params map[string]string, urls payment.ReturnURLs) (*payment.Payment, *Dispatch, error) {
	logger := logctx.FromOr(ctx, s.log)

	fail := func(reason string, err error) (*payment.Payment, *Dispatch, error) {
		logger.Warn("paywall_registration_failed",
			observability.F("payment_id", p.ID),
			observability.F("backend", p.Backend),
			observability.F("reason", reason),
			observability.F("error", err),
		)
		s.countDispatch(p.Backend, payment.DispatchRest, "failure")
		return p, redirectTo(urls.Failure), nil
	}

	headers, err := proc.PrepareHeaders(params)
	if err != nil {
		return fail("prepare_headers", err)
	}
	body, err := json.Marshal(params)
	if err != nil {
		return fail("encode_params", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, proc.PaywallURL(nil), bytes.NewReader(body))
	if err != nil {
		return fail("build_request", err)
	}
	for name, values := range headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fail("gateway_call", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fail("gateway_status", fmt.Errorf("paywall returned status %d", resp.StatusCode))
	}

	result, err := proc.HandleResponse(resp)
	if err != nil {
		return fail("handle_response", err)
	}

	updated, err := s.mutateAndPublish(ctx, p.ID, func(pm *payment.Payment) error {
		pm.ChangeStatus(payment.StatusInProgress)
		if extID := result["external_id"]; extID != "" {
			pm.ExternalID = extID
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.countDispatch(p.Backend, payment.DispatchRest, "success")
	return updated, redirectTo(proc.PaywallURL(result)), nil
}

// HandleCallback applies a gateway push notification to the payment. The
// whole parse-and-transition runs inside the repository mutation, so a
// malformed payload leaves the stored record untouched.
func (s *Service) HandleCallback(ctx context.Context, paymentID string, body []byte) error {
	updated, err := s.mutateAndPublish(ctx, paymentID, func(pm *payment.Payment) error {
		proc, err := s.registry.Resolve(pm.Backend)
		if err != nil {
			return err
		}
		return proc.HandleCallback(ctx, pm, body)
	})
	if err != nil {
		s.callbacks.Add(1, observability.L("outcome", "rejected"))
		return err
	}
	s.callbacks.Add(1, observability.L("outcome", "accepted"))
	logctx.FromOr(ctx, s.log).Info("callback_applied",
		observability.F("payment_id", updated.ID),
		observability.F("backend", updated.Backend),
		observability.F("status", updated.Status),
	)
	return nil
}

// FinalizeReturn handles the browser landing back from the paywall and
// resolves where to send it next. The backend's configured success/failure
// URL wins over the order's own return URL.
func (s *Service) FinalizeReturn(ctx context.Context, paymentID string, success bool) (string, error) {
	updated, err := s.mutateAndPublish(ctx, paymentID, func(pm *payment.Payment) error {
		if success {
			pm.OnSuccess(nil)
		} else {
			pm.OnFailure()
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	option := "failure_url"
	if success {
		option = "success_url"
	}
	if target := s.settings[updated.Backend].Get(option, ""); target != "" {
		return target, nil
	}

	ord, err := s.orders.Get(ctx, updated.OrderID)
	if err != nil {
		return "", err
	}
	return ord.ReturnURL(updated.ID, success), nil
}

// FetchAndUpdateStatus polls the gateway and reconciles the local record.
// A reported amount always wins over a reported status label; the label is
// only trusted when no amount is present. Gateway unavailability propagates
// without touching the record.
func (s *Service) FetchAndUpdateStatus(ctx context.Context, paymentID string) (*payment.Payment, error) {
	p, err := s.payments.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	proc, err := s.registry.Resolve(p.Backend)
	if err != nil {
		return nil, err
	}

	// Poll outside the mutation: gateways are slow and the per-record lock
	// must not be held across network calls.
	remote, err := proc.FetchRemoteStatus(ctx, p)
	if err != nil {
		return nil, err
	}

	return s.mutateAndPublish(ctx, paymentID, func(pm *payment.Payment) error {
		switch {
		case remote.Amount != nil:
			pm.OnSuccess(remote.Amount)
		case remote.Status != nil:
			switch *remote.Status {
			case payment.StatusPaid:
				pm.OnSuccess(nil)
			case payment.StatusFailed:
				pm.OnFailure()
			default:
				pm.ChangeStatus(*remote.Status)
			}
		}
		return nil
	})
}

func (s *Service) Get(ctx context.Context, paymentID string) (*payment.Payment, error) {
	if paymentID == "" {
		return nil, errors.New("payment: id is required")
	}
	return s.payments.Get(ctx, paymentID)
}

func (s *Service) List(ctx context.Context) ([]*payment.Payment, error) {
	return s.payments.List(ctx)
}

// Lock reserves funds for a later charge. Backends without pre-auth support
// surface ErrUnsupportedOperation from the processor.
func (s *Service) Lock(ctx context.Context, paymentID string, amount decimal.Decimal) (decimal.Decimal, error) {
	p, proc, err := s.resolve(ctx, paymentID)
	if err != nil {
		return decimal.Zero, err
	}
	locked, err := proc.Lock(ctx, p, amount)
	if err != nil {
		return decimal.Zero, err
	}
	if _, err := s.transition(ctx, paymentID, payment.StatusAcceptedForProc); err != nil {
		return decimal.Zero, err
	}
	return locked, nil
}

// ChargeLocked settles previously locked funds.
func (s *Service) ChargeLocked(ctx context.Context, paymentID string, amount decimal.Decimal) (decimal.Decimal, error) {
	p, proc, err := s.resolve(ctx, paymentID)
	if err != nil {
		return decimal.Zero, err
	}
	charged, err := proc.ChargeLocked(ctx, p, amount)
	if err != nil {
		return decimal.Zero, err
	}
	if _, err := s.mutateAndPublish(ctx, paymentID, func(pm *payment.Payment) error {
		pm.OnSuccess(&charged)
		return nil
	}); err != nil {
		return decimal.Zero, err
	}
	return charged, nil
}

// Release frees a lock that will not be charged.
func (s *Service) Release(ctx context.Context, paymentID string) (decimal.Decimal, error) {
	p, proc, err := s.resolve(ctx, paymentID)
	if err != nil {
		return decimal.Zero, err
	}
	released, err := proc.Release(ctx, p)
	if err != nil {
		return decimal.Zero, err
	}
	if _, err := s.transition(ctx, paymentID, payment.StatusCancelled); err != nil {
		return decimal.Zero, err
	}
	return released, nil
}

// StartRefund asks the gateway to refund the given amount. The refund
// lifecycle is tracked by the gateway; the local status is untouched until
// the gateway confirms through its usual channels.
func (s *Service) StartRefund(ctx context.Context, paymentID string, amount decimal.Decimal) (decimal.Decimal, error) {
	p, proc, err := s.resolve(ctx, paymentID)
	if err != nil {
		return decimal.Zero, err
	}
	return proc.StartRefund(ctx, p, amount)
}

func (s *Service) CancelRefund(ctx context.Context, paymentID string) error {
	p, proc, err := s.resolve(ctx, paymentID)
	if err != nil {
		return err
	}
	return proc.CancelRefund(ctx, p)
}

func (s *Service) resolve(ctx context.Context, paymentID string) (*payment.Payment, payment.Processor, error) {
	p, err := s.payments.Get(ctx, paymentID)
	if err != nil {
		return nil, nil, err
	}
	proc, err := s.registry.Resolve(p.Backend)
	if err != nil {
		return nil, nil, err
	}
	return p, proc, nil
}

func (s *Service) transition(ctx context.Context, paymentID string, next payment.Status) (*payment.Payment, error) {
	return s.mutateAndPublish(ctx, paymentID, func(pm *payment.Payment) error {
		pm.ChangeStatus(next)
		return nil
	})
}

func (s *Service) mutateAndPublish(ctx context.Context, paymentID string, fn func(*payment.Payment) error) (*payment.Payment, error) {
	updated, err := s.payments.Mutate(ctx, paymentID, fn)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, updated)
	return updated, nil
}

func (s *Service) publish(ctx context.Context, p *payment.Payment) {
	for _, e := range p.DrainEvents() {
		if err := s.bus.Publish(ctx, e); err != nil {
			logctx.FromOr(ctx, s.log).Warn("event_publish_failed",
				observability.F("payment_id", p.ID),
				observability.F("event", e.EventName()),
				observability.F("error", err),
			)
		}
	}
}

func (s *Service) returnURLs(paymentID string) payment.ReturnURLs {
	return payment.ReturnURLs{
		Success:  fmt.Sprintf("%s/payments/%s/success", s.baseURL, paymentID),
		Failure:  fmt.Sprintf("%s/payments/%s/failure", s.baseURL, paymentID),
		Callback: fmt.Sprintf("%s/payments/callback/%s", s.baseURL, paymentID),
	}
}

func (s *Service) countDispatch(backend string, method payment.DispatchMethod, outcome string) {
	s.dispatched.Add(1,
		observability.L("backend", backend),
		observability.L("method", string(method)),
		observability.L("outcome", outcome),
	)
}
