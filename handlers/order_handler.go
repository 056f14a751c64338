package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-checkin/internal/status"
	"ticket-checkin/models"
	"ticket-checkin/security"
	"ticket-checkin/services"
)

type OrderHandler struct {
	app     *pocketbase.PocketBase
	orders  *services.OrderService
	limiter *security.RateLimiter
}

func NewOrderHandler(app *pocketbase.PocketBase, orders *services.OrderService, limiter *security.RateLimiter) *OrderHandler {
	return &OrderHandler{
		app:     app,
		orders:  orders,
		limiter: limiter,
	}
}

// Approve moves a pending order to approved.
func (h *OrderHandler) Approve(e *core.RequestEvent) error {
	return h.update(e, models.OrderApproved, h.orders.Approve)
}

// Reject moves a pending order to rejected.
func (h *OrderHandler) Reject(e *core.RequestEvent) error {
	return h.update(e, models.OrderRejected, h.orders.Reject)
}

func (h *OrderHandler) update(e *core.RequestEvent, action string, fn func(context.Context, string) (*models.TicketOrder, error)) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Operator authentication required", nil)
	}

	orderID := e.Request.PathValue("orderId")
	if orderID == "" {
		return apis.NewBadRequestError("Order ID required", nil)
	}

	if h.limiter != nil {
		if err := h.limiter.Allow(e.Request.Context(), "orders:"+e.Auth.Id); err != nil {
			return apis.NewTooManyRequestsError("Too many order updates", err)
		}
	}

	order, err := fn(e.Request.Context(), orderID)
	switch {
	case err == nil:
		return e.JSON(http.StatusOK, map[string]any{
			"result": "ok",
			"order":  order,
		})
	case errors.Is(err, status.ErrAlreadyInState):
		// Benign: the order already is where another operator put it.
		// Informational response, not error styling.
		return e.JSON(http.StatusOK, map[string]any{
			"result": "noop",
			"detail": err.Error(),
		})
	case errors.Is(err, status.ErrInvalidTransition):
		return e.JSON(http.StatusConflict, map[string]any{
			"result": "conflict",
			"detail": err.Error(),
		})
	case errors.Is(err, status.ErrOrderNotFound):
		return apis.NewNotFoundError("Order not found", err)
	case errors.Is(err, status.ErrUnreachable):
		return apis.NewApiError(http.StatusServiceUnavailable, guidance(err), err)
	default:
		return apis.NewBadRequestError("Failed to "+action+" order", err)
	}
}
