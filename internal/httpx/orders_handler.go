package httpx

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"net/http"
	"strconv"
)

type OrdersHandler struct {
	Service *orders.Service
	// Idem and Status are optional; without them idempotency keys are
	// ignored and status reads go straight to the store.
	Idem   *redisx.Idempotency
	Status *redisx.StatusCache
	Logger *zap.Logger
}

type CreateOrderReq struct {
	ProductIDs []string `json:"productIds" validate:"required,min=1,dive,required"`
	Quantities []int    `json:"quantities" validate:"required,min=1,dive,gt=0"`
}

// Register mounts the order routes. r must already authenticate requests.
func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Get("/orders-user", h.listUserOrders)
	r.Patch("/orders-status/{id}", h.advanceOrder)
	r.Post("/orders-cancel/{id}", h.cancelOrder)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := UserID(ctx)
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	var req CreateOrderReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Logger, r, err)
		return
	}

	key := r.Header.Get("Idempotency-Key")
	claimed := false
	if key != "" && h.Idem != nil {
		id, ok, err := h.Idem.Claim(ctx, userID, key)
		switch {
		case ok:
			claimed = true
		case errors.Is(err, redisx.ErrIdempotencyPending):
			writeError(w, h.Logger, r, apperr.New(apperr.ErrConflict, "a request with this Idempotency-Key is still in progress"))
			return
		case err != nil:
			h.Logger.Warn("idempotency claim failed", zap.Error(err))
		default:
			o, err := h.Service.GetOrderByID(ctx, id)
			if err != nil {
				writeError(w, h.Logger, r, err)
				return
			}
			writeJSON(w, http.StatusOK, o)
			return
		}
	}

	o, err := h.Service.CreateOrder(ctx, userID, req.ProductIDs, req.Quantities)
	if err != nil {
		if claimed {
			if aerr := h.Idem.Abandon(context.WithoutCancel(ctx), userID, key); aerr != nil {
				h.Logger.Warn("idempotency abandon failed", zap.Error(aerr))
			}
		}
		writeError(w, h.Logger, r, err)
		return
	}
	if claimed {
		if err := h.Idem.Complete(context.WithoutCancel(ctx), userID, key, o.ID); err != nil {
			h.Logger.Warn("idempotency complete failed", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Service.GetOrderByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := chi.URLParam(r, "id")

	// 1) cache
	if h.Status != nil {
		e, ok, err := h.Status.Get(ctx, orderID)
		if err != nil {
			h.Logger.Warn("status cache read failed", zap.String("order_id", orderID), zap.Error(err))
		} else if ok {
			writeJSON(w, http.StatusOK, e)
			return
		}
	}

	// 2) fallback store; only the projector writes the cache, a read here
	// could race a newer event
	o, err := h.Service.GetOrderByID(ctx, orderID)
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	updated := o.IssueDate
	if o.EndDate != nil {
		updated = *o.EndDate
	}
	writeJSON(w, http.StatusOK, redisx.StatusEntry{Status: string(o.Status), UpdatedAt: updated})
}

func (h *OrdersHandler) listUserOrders(w http.ResponseWriter, r *http.Request) {
	userID, err := UserID(r.Context())
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	// unparsable values fall back to the defaults
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	list, err := h.Service.GetOrdersByUser(r.Context(), userID, page, limit)
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) advanceOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.UpdateOrderStatus)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.CancelOrder)
}

func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, orderID, userID string) (orders.Order, error)) {
	userID, err := UserID(r.Context())
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	o, err := fn(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
