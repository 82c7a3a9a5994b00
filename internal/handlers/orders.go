package handlers

import (
	"net/http"
	"strings"

	"courier-backend/internal/middleware"
	"courier-backend/internal/models"
	"courier-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// IdempotencyKeyHeader carries the client's retry key when the body doesn't
const IdempotencyKeyHeader = "Idempotency-Key"

type CreateOrderRequest struct {
	models.NewOrder
	IdempotencyKey string `json:"idempotency_key"`
	Defer          bool   `json:"defer"`
}

// CreateOrder creates an order for the calling shop and notifies its roster.
// A replayed idempotency key answers 200 with the original order, a deferred
// creation answers 202 before the roster is notified.
// POST /api/shop/orders
func CreateOrder(svc OrderService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := middleware.GetUserFromContext(r)

		var req CreateOrderRequest
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		key := strings.TrimSpace(req.IdempotencyKey)
		if key == "" {
			key = strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
		}

		result, err := svc.CreateOrder(r.Context(), claims.ShopID, req.NewOrder, key, req.Defer)
		if err != nil {
			respondServiceError(w, logger, err)
			return
		}

		status := http.StatusCreated
		switch {
		case result.Duplicate:
			status = http.StatusOK
		case result.Queued:
			status = http.StatusAccepted
		}
		utils.RespondJSON(w, status, result)
	}
}

// ListShopOrders returns every order of the calling shop
// GET /api/shop/orders
func ListShopOrders(reader OrderReader, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := middleware.GetUserFromContext(r)

		list, err := reader.ListOrders(r.Context(), claims.ShopID)
		if err != nil {
			respondServiceError(w, logger, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, list)
	}
}

// ListDriverOrders returns the caller's assigned orders plus pending orders
// of the shops it drives for
// GET /api/driver/orders
func ListDriverOrders(reader OrderReader, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := middleware.GetUserFromContext(r)

		list, err := reader.ListDriverOrders(r.Context(), claims.UserID)
		if err != nil {
			respondServiceError(w, logger, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, list)
	}
}

// TransitionOrder moves an order one lifecycle step for the calling driver.
// A lost race answers 409 with the order as it now stands.
// POST /api/driver/orders/{id}/{action}
func TransitionOrder(svc OrderService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := middleware.GetUserFromContext(r)
		orderID := chi.URLParam(r, "id")
		action := models.OrderAction(chi.URLParam(r, "action"))

		order, err := svc.Transition(r.Context(), orderID, action, claims.Identity())
		if err != nil {
			respondServiceError(w, logger, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, order)
	}
}
