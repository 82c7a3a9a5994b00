package handlers

import (
	"net/http"

	"courier-backend/internal/middleware"
	"courier-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type SendNotificationRequest struct {
	Message  string `json:"message"`
	DriverID string `json:"driver_id"` // empty sends to the whole roster
}

type EditNotificationRequest struct {
	Message string `json:"message"`
}

// SendNotification sends a standalone message to one rostered driver or all of them
// POST /api/shop/notifications
func SendNotification(svc OrderService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := middleware.GetUserFromContext(r)

		var req SendNotificationRequest
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		created, err := svc.SendNotification(r.Context(), claims.ShopID, req.DriverID, req.Message)
		if err != nil {
			respondServiceError(w, logger, err)
			return
		}
		utils.RespondJSON(w, http.StatusCreated, map[string]interface{}{
			"notifications":      created,
			"notifications_sent": len(created),
		})
	}
}

// ListShopNotifications returns the notifications the calling shop has sent
// GET /api/shop/notifications
func ListShopNotifications(reader OrderReader, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := middleware.GetUserFromContext(r)

		list, err := reader.ListShopNotifications(r.Context(), claims.ShopID)
		if err != nil {
			respondServiceError(w, logger, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, list)
	}
}

// EditNotification changes the message of a notification the shop sent
// PATCH /api/shop/notifications/{id}
func EditNotification(svc OrderService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := middleware.GetUserFromContext(r)

		var req EditNotificationRequest
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		n, err := svc.EditNotification(r.Context(), claims.Identity(), chi.URLParam(r, "id"), req.Message)
		if err != nil {
			respondServiceError(w, logger, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, n)
	}
}

// DeleteNotification withdraws a notification the shop sent
// DELETE /api/shop/notifications/{id}
func DeleteNotification(svc OrderService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := middleware.GetUserFromContext(r)

		if err := svc.DeleteNotification(r.Context(), claims.Identity(), chi.URLParam(r, "id")); err != nil {
			respondServiceError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ListDriverNotifications returns the caller's notifications, newest first
// GET /api/driver/notifications
func ListDriverNotifications(reader OrderReader, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := middleware.GetUserFromContext(r)

		list, err := reader.ListDriverNotifications(r.Context(), claims.UserID)
		if err != nil {
			respondServiceError(w, logger, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, list)
	}
}

// ConfirmNotification acknowledges a notification. Confirming twice is harmless.
// POST /api/driver/notifications/{id}/confirm
func ConfirmNotification(svc OrderService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := middleware.GetUserFromContext(r)

		n, err := svc.ConfirmNotification(r.Context(), claims.Identity(), chi.URLParam(r, "id"))
		if err != nil {
			respondServiceError(w, logger, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, n)
	}
}
