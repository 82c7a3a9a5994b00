package handlers

import (
	"context"
	"errors"
	"net/http"

	"courier-backend/internal/database"
	"courier-backend/internal/events"
	"courier-backend/internal/models"
	"courier-backend/internal/orders"
	"courier-backend/internal/sessions"
	"courier-backend/pkg/utils"

	"go.uber.org/zap"
)

// AccountStore is the account and roster side of the database
type AccountStore interface {
	FindAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	CreateAccount(ctx context.Context, account *models.Account) error
	AddRosterDriver(ctx context.Context, shopID, driverID string) error
	ListRosterAccounts(ctx context.Context, shopID string) ([]models.Account, error)
}

// OrderReader serves the full-refresh reads clients fall back to
type OrderReader interface {
	ListOrders(ctx context.Context, shopID string) ([]models.Order, error)
	ListDriverOrders(ctx context.Context, driverID string) ([]models.Order, error)
	ListShopNotifications(ctx context.Context, shopID string) ([]models.Notification, error)
	ListDriverNotifications(ctx context.Context, driverID string) ([]models.Notification, error)
}

// OrderService is the lifecycle engine
type OrderService interface {
	CreateOrder(ctx context.Context, shopID string, input models.NewOrder, idempotencyKey string, deferred bool) (orders.CreateResult, error)
	Transition(ctx context.Context, orderID string, action models.OrderAction, actor models.Identity) (*models.Order, error)
	SendNotification(ctx context.Context, shopID, driverID, message string) ([]models.Notification, error)
	EditNotification(ctx context.Context, actor models.Identity, id, message string) (*models.Notification, error)
	DeleteNotification(ctx context.Context, actor models.Identity, id string) error
	ConfirmNotification(ctx context.Context, actor models.Identity, id string) (*models.Notification, error)
}

// SessionRegistry holds the one live session per account
type SessionRegistry interface {
	Create(identity models.Identity) (sessions.Session, *sessions.Session)
	Lookup(accountID string) (sessions.Session, bool)
	Evict(accountID string) (sessions.Session, bool)
}

// ChannelEvictor closes realtime channels of an account after telling them why
type ChannelEvictor interface {
	Evict(accountID string, ev events.Event) int
	EvictExcept(accountID, keepToken string, ev events.Event) int
}

// Presence reports whether an identity has a live realtime channel
type Presence interface {
	IsConnected(identity models.Identity) bool
}

// PushSubscriptionStore persists push endpoints
type PushSubscriptionStore interface {
	UpsertPushSubscription(ctx context.Context, sub *models.PushSubscription) error
	DeletePushSubscription(ctx context.Context, accountID, endpoint string) (int64, error)
}

type staleResponse struct {
	Success bool          `json:"success"`
	Error   string        `json:"error"`
	Order   *models.Order `json:"order,omitempty"`
}

// respondServiceError maps core errors onto HTTP statuses
func respondServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var stale *orders.StaleStateError
	switch {
	case errors.As(err, &stale):
		utils.RespondJSON(w, http.StatusConflict, staleResponse{
			Error: "Order was updated by someone else, please refresh",
			Order: stale.Order,
		})
	case sessions.IsAuthenticationError(err):
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, orders.ErrNotificationNotFound),
		errors.Is(err, database.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, orders.ErrForbidden):
		utils.RespondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, orders.ErrInvalidAction),
		errors.Is(err, orders.ErrInvalidOrder),
		errors.Is(err, orders.ErrInvalidNotification),
		errors.Is(err, database.ErrInvalidAccount):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrAccountExists):
		utils.RespondError(w, http.StatusConflict, "Account with this email already exists")
	default:
		logger.Error("request failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
