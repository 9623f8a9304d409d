package payment

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
)

// DispatchMethod declares how control is handed to the gateway.
type DispatchMethod string

const (
	DispatchGet  DispatchMethod = "GET"  // redirect the browser to the paywall
	DispatchPost DispatchMethod = "POST" // auto-submitting form posted by the browser
	DispatchRest DispatchMethod = "REST" // synchronous server-side API call
)

func (m DispatchMethod) Valid() bool {
	switch m {
	case DispatchGet, DispatchPost, DispatchRest:
		return true
	}
	return false
}

// Settings is the per-backend option bag resolved from configuration at
// startup. Immutable afterward.
type Settings map[string]string

func (s Settings) Get(name, def string) string {
	if v, ok := s[name]; ok && v != "" {
		return v
	}
	return def
}

// ReturnURLs are the endpoints of this system that a gateway needs to hand
// control (or notifications) back.
type ReturnURLs struct {
	Success  string
	Failure  string
	Callback string
}

// RemoteStatus is the result of polling a gateway for a payment's state.
// A present Amount takes precedence over a present Status: a possibly stale
// status label is never trusted over an observed balance income.
type RemoteStatus struct {
	Status *Status
	Amount *decimal.Decimal
}

// Processor is the capability contract every gateway backend implements.
// Each gateway has a genuinely different wire protocol and dispatch
// mechanism, so the orchestration stays generic and the protocol specifics
// live behind this contract. Implementations are stateless and safe for
// concurrent use; the payment being acted on is passed per call.
//
// HandleCallback runs inside Repository.Mutate: it mutates the in-flight
// copy and any error discards the whole mutation, so a rejected callback
// never leaves a partial update behind.
type Processor interface {
	// Slug identifies the backend; it doubles as the registry key.
	Slug() string

	DispatchMethod() DispatchMethod

	// PaywallParams gathers everything the gateway needs to start the flow.
	// Must be deterministic for the same payment and URLs.
	PaywallParams(ctx context.Context, p *Payment, urls ReturnURLs) (map[string]string, error)

	// PaywallURL resolves the paywall endpoint, production or sandbox
	// depending on configuration. Implementations may extract or construct
	// the URL from params (REST and GET flows); nil params yields the bare
	// base endpoint.
	PaywallURL(params map[string]string) string

	// PrepareHeaders and HandleResponse serve the REST flow only.
	// HandleResponse normalizes the gateway's initial response into params
	// for the follow-up redirect; an "external_id" key, when present, is
	// recorded on the payment.
	PrepareHeaders(params map[string]string) (http.Header, error)
	HandleResponse(resp *http.Response) (map[string]string, error)

	// HandleCallback parses a push notification, maps the gateway's status
	// vocabulary onto the canonical enum and applies the transition to p.
	// Payloads missing required fields fail with ErrMalformedCallback.
	HandleCallback(ctx context.Context, p *Payment, body []byte) error

	// FetchRemoteStatus polls the gateway (pull-style confirmation).
	FetchRemoteStatus(ctx context.Context, p *Payment) (RemoteStatus, error)

	Capabilities
}

// Capabilities are the optional pre-authorization and refund sub-protocol
// operations. Gateways that do not support a flow signal
// ErrUnsupportedOperation (the Base defaults); only supporting gateways
// override them. Their outcomes ultimately drive canonical status
// transitions, they are not statuses themselves.
type Capabilities interface {
	// Lock reserves the amount for a future charge. Returns the locked amount.
	Lock(ctx context.Context, p *Payment, amount decimal.Decimal) (decimal.Decimal, error)
	// ChargeLocked settles a previously locked amount. Returns the charged amount.
	ChargeLocked(ctx context.Context, p *Payment, amount decimal.Decimal) (decimal.Decimal, error)
	// Release frees a lock that cannot be fulfilled. Returns the released amount.
	Release(ctx context.Context, p *Payment) (decimal.Decimal, error)
	// StartRefund begins refunding the given amount. Returns the amount accepted for refund.
	StartRefund(ctx context.Context, p *Payment, amount decimal.Decimal) (decimal.Decimal, error)
	CancelRefund(ctx context.Context, p *Payment) error
}

// Base provides explicit "unsupported" defaults for every optional part of
// the contract. Backends embed it and override what their gateway supports.
type Base struct{}

func (Base) PrepareHeaders(map[string]string) (http.Header, error) {
	return nil, ErrUnsupportedOperation
}

func (Base) HandleResponse(*http.Response) (map[string]string, error) {
	return nil, ErrUnsupportedOperation
}

func (Base) FetchRemoteStatus(context.Context, *Payment) (RemoteStatus, error) {
	return RemoteStatus{}, ErrUnsupportedOperation
}

func (Base) Lock(context.Context, *Payment, decimal.Decimal) (decimal.Decimal, error) {
	return decimal.Zero, ErrUnsupportedOperation
}

func (Base) ChargeLocked(context.Context, *Payment, decimal.Decimal) (decimal.Decimal, error) {
	return decimal.Zero, ErrUnsupportedOperation
}

func (Base) Release(context.Context, *Payment) (decimal.Decimal, error) {
	return decimal.Zero, ErrUnsupportedOperation
}

func (Base) StartRefund(context.Context, *Payment, decimal.Decimal) (decimal.Decimal, error) {
	return decimal.Zero, ErrUnsupportedOperation
}

func (Base) CancelRefund(context.Context, *Payment) error {
	return ErrUnsupportedOperation
}
