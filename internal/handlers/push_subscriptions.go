package handlers

import (
	"net/http"
	"strings"

	"courier-backend/internal/middleware"
	"courier-backend/internal/models"
	"courier-backend/pkg/utils"

	"go.uber.org/zap"
)

type PushSubscriptionRequest struct {
	Endpoint   string `json:"endpoint"`
	DeviceType string `json:"device_type"`
}

var deviceTypes = map[string]bool{"ios": true, "android": true, "web": true}

// RegisterPushSubscription stores an FCM registration token for the caller
// POST /api/push/subscriptions
func RegisterPushSubscription(store PushSubscriptionStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := middleware.GetUserFromContext(r)

		var req PushSubscriptionRequest
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		req.Endpoint = strings.TrimSpace(req.Endpoint)
		if req.Endpoint == "" {
			utils.RespondError(w, http.StatusBadRequest, "endpoint is required")
			return
		}
		if req.DeviceType == "" {
			req.DeviceType = "android"
		}
		if !deviceTypes[req.DeviceType] {
			utils.RespondError(w, http.StatusBadRequest, "device_type must be 'ios', 'android' or 'web'")
			return
		}

		sub := &models.PushSubscription{
			AccountID:   claims.UserID,
			AccountType: claims.Role,
			Endpoint:    req.Endpoint,
			DeviceType:  req.DeviceType,
		}
		if err := store.UpsertPushSubscription(r.Context(), sub); err != nil {
			respondServiceError(w, logger, err)
			return
		}

		logger.Info("push subscription registered",
			zap.String("account_id", claims.UserID),
			zap.String("device_type", sub.DeviceType),
		)
		utils.RespondJSON(w, http.StatusCreated, sub)
	}
}

// DeletePushSubscription removes one of the caller's push endpoints
// DELETE /api/push/subscriptions
func DeletePushSubscription(store PushSubscriptionStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := middleware.GetUserFromContext(r)

		var req PushSubscriptionRequest
		if err := utils.DecodeJSON(r, &req); err != nil || req.Endpoint == "" {
			utils.RespondError(w, http.StatusBadRequest, "endpoint is required")
			return
		}

		removed, err := store.DeletePushSubscription(r.Context(), claims.UserID, req.Endpoint)
		if err != nil {
			respondServiceError(w, logger, err)
			return
		}
		if removed == 0 {
			utils.RespondError(w, http.StatusNotFound, "subscription not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
