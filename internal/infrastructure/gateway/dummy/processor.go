// Package dummy implements the reference gateway backend. Its paywall
// understands every dispatch method, so the method and confirmation mode are
// picked per deployment through the backend's option bag:
//
//	method              GET | POST | REST   (default REST)
//	confirmation_method PUSH | PULL         (default PUSH)
//	production_url / sandbox_url            paywall base endpoints
//	api_key                                 bearer token for REST calls
package dummy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"paygate/internal/domain/payment"
)

const Slug = "dummy"

const (
	ConfirmationPush = "PUSH"
	ConfirmationPull = "PULL"
)

type Processor struct {
	payment.Base

	settings     payment.Settings
	method       payment.DispatchMethod
	confirmation string
	baseURL      string
	client       *http.Client
}

func New(settings payment.Settings, client *http.Client, production bool) *Processor {
	base := settings.Get("sandbox_url", "http://localhost:9900")
	if production {
		base = settings.Get("production_url", "https://paywall.dummy.example.com")
	}
	return &Processor{
		settings:     settings,
		method:       payment.DispatchMethod(strings.ToUpper(settings.Get("method", string(payment.DispatchRest)))),
		confirmation: strings.ToUpper(settings.Get("confirmation_method", ConfirmationPush)),
		baseURL:      strings.TrimRight(base, "/"),
		client:       client,
	}
}

func (p *Processor) Slug() string { return Slug }

func (p *Processor) DispatchMethod() payment.DispatchMethod { return p.method }

func (p *Processor) PaywallParams(_ context.Context, pm *payment.Payment, urls payment.ReturnURLs) (map[string]string, error) {
	params := map[string]string{
		"ext_id":      pm.ID,
		"value":       pm.AmountRequired.String(),
		"currency":    pm.Currency,
		"description": pm.Description,
		"success_url": urls.Success,
		"failure_url": urls.Failure,
	}
	if p.confirmation == ConfirmationPush {
		params["callback"] = urls.Callback
	}
	return params, nil
}

func (p *Processor) PaywallURL(params map[string]string) string {
	if u := params["url"]; u != "" {
		return u
	}
	if p.method == payment.DispatchRest {
		return p.baseURL + "/api/register"
	}
	gateway := p.baseURL + "/gateway"
	if p.method == payment.DispatchGet && len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		return gateway + "?" + values.Encode()
	}
	return gateway
}

func (p *Processor) PrepareHeaders(map[string]string) (http.Header, error) {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	if key := p.settings.Get("api_key", ""); key != "" {
		headers.Set("Authorization", "Bearer "+key)
	}
	return headers, nil
}

func (p *Processor) HandleResponse(resp *http.Response) (map[string]string, error) {
	var body struct {
		URL   string `json:"url"`
		ExtID string `json:"ext_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decoding register response: %v", payment.ErrGatewayUnavailable, err)
	}
	if body.URL == "" {
		return nil, fmt.Errorf("%w: register response carries no redirect url", payment.ErrGatewayUnavailable)
	}
	params := map[string]string{"url": body.URL}
	if body.ExtID != "" {
		params["external_id"] = body.ExtID
	}
	return params, nil
}

func (p *Processor) HandleCallback(_ context.Context, pm *payment.Payment, body []byte) error {
	var notification struct {
		NewStatus string `json:"new_status"`
		Amount    string `json:"amount"`
	}
	if err := json.Unmarshal(body, &notification); err != nil {
		return fmt.Errorf("%w: %v", payment.ErrMalformedCallback, err)
	}
	if notification.NewStatus == "" {
		return fmt.Errorf("%w: missing new_status", payment.ErrMalformedCallback)
	}

	var amount *decimal.Decimal
	if notification.Amount != "" {
		parsed, err := decimal.NewFromString(notification.Amount)
		if err != nil {
			return fmt.Errorf("%w: bad amount %q", payment.ErrMalformedCallback, notification.Amount)
		}
		amount = &parsed
	}

	switch notification.NewStatus {
	case "paid":
		pm.OnSuccess(amount)
	case "failed":
		pm.OnFailure()
	case "pre_auth":
		pm.ChangeStatus(payment.StatusAcceptedForProc)
	default:
		return fmt.Errorf("%w: unhandled status %q", payment.ErrMalformedCallback, notification.NewStatus)
	}
	return nil
}

func (p *Processor) FetchRemoteStatus(ctx context.Context, pm *payment.Payment) (payment.RemoteStatus, error) {
	ref := pm.ExternalID
	if ref == "" {
		ref = pm.ID
	}

	var body struct {
		PaymentStatus string `json:"payment_status"`
		Amount        string `json:"amount"`
	}
	if err := p.call(ctx, http.MethodGet, "/api/status/"+ref, nil, &body); err != nil {
		return payment.RemoteStatus{}, err
	}

	var remote payment.RemoteStatus
	if body.Amount != "" {
		amount, err := decimal.NewFromString(body.Amount)
		if err != nil {
			return payment.RemoteStatus{}, fmt.Errorf("%w: bad amount %q", payment.ErrGatewayUnavailable, body.Amount)
		}
		remote.Amount = &amount
	}
	if status := mapRemoteStatus(body.PaymentStatus); status != "" {
		remote.Status = &status
	}
	return remote, nil
}

func (p *Processor) Lock(ctx context.Context, pm *payment.Payment, amount decimal.Decimal) (decimal.Decimal, error) {
	return p.amountCall(ctx, "/api/lock", pm, amount)
}

func (p *Processor) ChargeLocked(ctx context.Context, pm *payment.Payment, amount decimal.Decimal) (decimal.Decimal, error) {
	return p.amountCall(ctx, "/api/charge", pm, amount)
}

func (p *Processor) Release(ctx context.Context, pm *payment.Payment) (decimal.Decimal, error) {
	return p.amountCall(ctx, "/api/release", pm, decimal.Zero)
}

// StartRefund and CancelRefund stay unsupported: the dummy paywall has no
// refund API, so the Base defaults apply.

func (p *Processor) amountCall(ctx context.Context, path string, pm *payment.Payment, amount decimal.Decimal) (decimal.Decimal, error) {
	req := map[string]string{"ext_id": pm.ID}
	if !amount.IsZero() {
		req["amount"] = amount.String()
	}

	var body struct {
		Amount string `json:"amount"`
	}
	if err := p.call(ctx, http.MethodPost, path, req, &body); err != nil {
		return decimal.Zero, err
	}
	if body.Amount == "" {
		return pm.AmountRequired, nil
	}
	result, err := decimal.NewFromString(body.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: bad amount %q", payment.ErrGatewayUnavailable, body.Amount)
	}
	return result, nil
}

func (p *Processor) call(ctx context.Context, method, path string, payloadIn, payloadOut any) error {
	var reqBody *bytes.Buffer
	if payloadIn != nil {
		data, err := json.Marshal(payloadIn)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if key := p.settings.Get("api_key", ""); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", payment.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: paywall returned status %d", payment.ErrGatewayUnavailable, resp.StatusCode)
	}
	if payloadOut == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(payloadOut); err != nil {
		return fmt.Errorf("%w: decoding paywall response: %v", payment.ErrGatewayUnavailable, err)
	}
	return nil
}

func mapRemoteStatus(raw string) payment.Status {
	switch raw {
	case "paid":
		return payment.StatusPaid
	case "failed":
		return payment.StatusFailed
	case "pre_auth":
		return payment.StatusAcceptedForProc
	case "prepared":
		return payment.StatusInProgress
	default:
		if s := payment.Status(raw); s.Valid() {
			return s
		}
		return ""
	}
}
