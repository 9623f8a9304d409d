// Package httppresentation exposes the payment core over HTTP. Dispatch to
// the paywall is represented as data (redirect or form) so that both browser
// storefronts and API clients can drive the flow.
package httppresentation

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	apppayment "paygate/internal/application/payment"
	"paygate/internal/domain/order"
	"paygate/internal/domain/payment"
	"paygate/internal/observability"
	"paygate/internal/registry"
)

const componentHTTPHandler = "http_server"

// maxCallbackBody caps gateway notification payloads.
const maxCallbackBody = 1 << 20

type Handler struct {
	payments *apppayment.Service
	log      observability.Logger
}

func NewHandler(paymentSvc *apppayment.Service, logger observability.Logger) *Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Handler{
		payments: paymentSvc,
		log:      logger.With(observability.F("component", componentHTTPHandler)),
	}
}

// Register wires the routes onto the echo instance. Callback and return
// routes follow the URL shape gateways are given at dispatch time, so they
// must stay stable across releases.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/health", h.handleHealth)

	e.POST("/payments", h.handleCreatePayment)
	e.GET("/payments", h.handleListPayments)
	e.GET("/payments/:payment_id", h.handleGetPayment)

	e.POST("/payments/callback/:payment_id", h.handleCallback)
	e.GET("/payments/:payment_id/success", h.handleReturn(true))
	e.GET("/payments/:payment_id/failure", h.handleReturn(false))

	e.POST("/payments/:payment_id/fetch-status", h.handleFetchStatus)
	e.POST("/payments/:payment_id/lock", h.handleLock)
	e.POST("/payments/:payment_id/charge", h.handleCharge)
	e.POST("/payments/:payment_id/release", h.handleRelease)
	e.POST("/payments/:payment_id/refund", h.handleStartRefund)
	e.POST("/payments/:payment_id/refund/cancel", h.handleCancelRefund)
}

type createPaymentRequest struct {
	Backend string `json:"backend"`
	OrderID string `json:"order_id"`
}

type paymentView struct {
	ID             string     `json:"id"`
	OrderID        string     `json:"order_id"`
	Backend        string     `json:"backend"`
	Status         string     `json:"status"`
	AmountRequired string     `json:"amount_required"`
	AmountPaid     string     `json:"amount_paid"`
	Currency       string     `json:"currency"`
	ExternalID     string     `json:"external_id,omitempty"`
	Description    string     `json:"description,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
}

type createPaymentResponse struct {
	Payment  paymentView          `json:"payment"`
	Dispatch *apppayment.Dispatch `json:"dispatch"`
}

func (h *Handler) handleCreatePayment(c echo.Context) error {
	var req createPaymentRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if req.Backend == "" || req.OrderID == "" {
		return writeError(c, http.StatusBadRequest, errors.New("backend and order_id are required"))
	}

	p, dispatch, err := h.payments.Create(c.Request().Context(), req.Backend, req.OrderID)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusCreated, createPaymentResponse{
		Payment:  toView(p),
		Dispatch: dispatch,
	})
}

func (h *Handler) handleGetPayment(c echo.Context) error {
	p, err := h.payments.Get(c.Request().Context(), c.Param("payment_id"))
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, toView(p))
}

func (h *Handler) handleListPayments(c echo.Context) error {
	list, err := h.payments.List(c.Request().Context())
	if err != nil {
		return writeDomainError(c, err)
	}
	views := make([]paymentView, 0, len(list))
	for _, p := range list {
		views = append(views, toView(p))
	}
	return c.JSON(http.StatusOK, views)
}

// handleCallback ingests a gateway push notification. Gateways only retry on
// non-2xx, so the body is the bare acknowledgement they expect.
func (h *Handler) handleCallback(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxCallbackBody))
	if err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}

	if err := h.payments.HandleCallback(c.Request().Context(), c.Param("payment_id"), body); err != nil {
		return writeDomainError(c, err)
	}
	return c.String(http.StatusOK, "OK")
}

func (h *Handler) handleReturn(success bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		target, err := h.payments.FinalizeReturn(c.Request().Context(), c.Param("payment_id"), success)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.Redirect(http.StatusFound, target)
	}
}

func (h *Handler) handleFetchStatus(c echo.Context) error {
	p, err := h.payments.FetchAndUpdateStatus(c.Request().Context(), c.Param("payment_id"))
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, toView(p))
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type amountResponse struct {
	Amount string `json:"amount"`
}

func (h *Handler) handleLock(c echo.Context) error {
	amount, err := bindAmount(c)
	if err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	locked, err := h.payments.Lock(c.Request().Context(), c.Param("payment_id"), amount)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, amountResponse{Amount: locked.String()})
}

func (h *Handler) handleCharge(c echo.Context) error {
	amount, err := bindAmount(c)
	if err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	charged, err := h.payments.ChargeLocked(c.Request().Context(), c.Param("payment_id"), amount)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, amountResponse{Amount: charged.String()})
}

func (h *Handler) handleRelease(c echo.Context) error {
	released, err := h.payments.Release(c.Request().Context(), c.Param("payment_id"))
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, amountResponse{Amount: released.String()})
}

func (h *Handler) handleStartRefund(c echo.Context) error {
	amount, err := bindAmount(c)
	if err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	accepted, err := h.payments.StartRefund(c.Request().Context(), c.Param("payment_id"), amount)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, amountResponse{Amount: accepted.String()})
}

func (h *Handler) handleCancelRefund(c echo.Context) error {
	if err := h.payments.CancelRefund(c.Request().Context(), c.Param("payment_id")); err != nil {
		return writeDomainError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func bindAmount(c echo.Context) (decimal.Decimal, error) {
	var req amountRequest
	if err := c.Bind(&req); err != nil {
		return decimal.Zero, err
	}
	if req.Amount == "" {
		return decimal.Zero, errors.New("amount is required")
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return decimal.Zero, err
	}
	if !amount.IsPositive() {
		return decimal.Zero, payment.ErrInvalidAmount
	}
	return amount, nil
}

func toView(p *payment.Payment) paymentView {
	return paymentView{
		ID:             p.ID,
		OrderID:        p.OrderID,
		Backend:        p.Backend,
		Status:         string(p.Status),
		AmountRequired: p.AmountRequired.String(),
		AmountPaid:     p.AmountPaid.String(),
		Currency:       p.Currency,
		ExternalID:     p.ExternalID,
		Description:    p.Description,
		CreatedAt:      p.CreatedAt,
		PaidAt:         p.PaidAt,
	}
}

func writeError(c echo.Context, status int, err error) error {
	return c.JSON(status, map[string]string{"error": err.Error()})
}

func writeDomainError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, payment.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, registry.ErrUnknownBackend):
		return writeError(c, http.StatusNotFound, err)
	case errors.Is(err, payment.ErrMalformedCallback),
		errors.Is(err, payment.ErrInvalidAmount),
		errors.Is(err, payment.ErrInvalidCurrency):
		return writeError(c, http.StatusBadRequest, err)
	case errors.Is(err, payment.ErrUnsupportedOperation):
		return writeError(c, http.StatusUnprocessableEntity, err)
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return writeError(c, http.StatusBadGateway, err)
	case errors.Is(err, payment.ErrConflict):
		return writeError(c, http.StatusConflict, err)
	default:
		return writeError(c, http.StatusInternalServerError, err)
	}
}
