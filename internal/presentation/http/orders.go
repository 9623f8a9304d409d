package httppresentation

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"paygate/internal/domain/order"
	"paygate/internal/infrastructure/memory"
)

// OrderHandler exposes a minimal storefront stub so the payment flow can be
// exercised end to end without an external order system. Real deployments
// plug their own order.Source into the payment service instead.
type OrderHandler struct {
	orders *memory.OrderSource
	ids    interface{ NewID() string }
}

func NewOrderHandler(orders *memory.OrderSource, ids interface{ NewID() string }) *OrderHandler {
	return &OrderHandler{orders: orders, ids: ids}
}

func (h *OrderHandler) Register(e *echo.Echo) {
	e.POST("/orders", h.handleCreateOrder)
	e.GET("/orders/:order_id", h.handleGetOrder)
}

type orderItemRequest struct {
	Name      string `json:"name"`
	Quantity  string `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type createOrderRequest struct {
	Currency    string             `json:"currency"`
	Description string             `json:"description"`
	ReturnURL   string             `json:"return_url"`
	Items       []orderItemRequest `json:"items"`
}

type orderView struct {
	OrderID     string `json:"order_id"`
	Total       string `json:"total"`
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
}

func (h *OrderHandler) handleCreateOrder(c echo.Context) error {
	var req createOrderRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if len(req.Items) == 0 {
		return writeError(c, http.StatusBadRequest, errors.New("at least one item is required"))
	}

	total := decimal.Zero
	items := make([]order.Item, 0, len(req.Items))
	for _, it := range req.Items {
		qty, err := decimal.NewFromString(it.Quantity)
		if err != nil {
			return writeError(c, http.StatusBadRequest, err)
		}
		price, err := decimal.NewFromString(it.UnitPrice)
		if err != nil {
			return writeError(c, http.StatusBadRequest, err)
		}
		items = append(items, order.Item{Name: it.Name, Quantity: qty, UnitPrice: price})
		total = total.Add(qty.Mul(price))
	}
	if !total.IsPositive() {
		return writeError(c, http.StatusBadRequest, errors.New("order total must be greater than zero"))
	}

	o := memory.Order{
		OrderID:     h.ids.NewID(),
		Lines:       items,
		Total:       total,
		CurrencyISO: req.Currency,
		Summary:     req.Description,
		ReturnBase:  req.ReturnURL,
	}
	h.orders.Put(o)

	return c.JSON(http.StatusCreated, orderView{
		OrderID:     o.OrderID,
		Total:       o.Total.String(),
		Currency:    o.CurrencyISO,
		Description: o.Summary,
	})
}

func (h *OrderHandler) handleGetOrder(c echo.Context) error {
	o, err := h.orders.Get(c.Request().Context(), c.Param("order_id"))
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, orderView{
		OrderID:     o.ID(),
		Total:       o.TotalAmount().String(),
		Currency:    o.Currency(),
		Description: o.Description(),
	})
}
