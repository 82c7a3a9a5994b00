package orders

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"courier-backend/internal/database"
	"courier-backend/internal/events"
	"courier-backend/internal/models"

	"go.uber.org/zap"
)

// SendNotification stores a standalone message from a shop to one rostered
// driver, or to the whole roster when driverID is empty.
func (e *Engine) SendNotification(ctx context.Context, shopID, driverID, message string) ([]models.Notification, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidNotification)
	}

	roster, err := e.store.ListRosterDrivers(ctx, shopID)
	if err != nil {
		return nil, err
	}
	targets := roster
	if driverID != "" {
		if !slices.Contains(roster, driverID) {
			return nil, fmt.Errorf("%w: driver %s is not on the roster", ErrForbidden, driverID)
		}
		targets = []string{driverID}
	}

	pending := make([]*models.Notification, 0, len(targets))
	for _, id := range targets {
		pending = append(pending, &models.Notification{
			ShopID:   shopID,
			DriverID: id,
			Message:  message,
			Status:   models.NotificationStatusPending,
		})
	}
	if err := e.store.CreateNotifications(ctx, pending); err != nil {
		return nil, err
	}

	created := make([]models.Notification, 0, len(pending))
	for _, n := range pending {
		created = append(created, *n)
		e.broadcaster.Send(ctx, models.DriverIdentity(n.DriverID), events.NotificationCreated(*n))
	}

	e.logger.Info("notification sent",
		zap.String("account_id", shopID),
		zap.Int("drivers", len(created)),
	)
	return created, nil
}

// EditNotification replaces the message of a notification the shop owns
func (e *Engine) EditNotification(ctx context.Context, actor models.Identity, id, message string) (*models.Notification, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidNotification)
	}

	lock := e.locks.get("notification:" + id)
	lock.Lock()
	defer lock.Unlock()

	n, err := e.ownedNotification(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := e.checkOrderOpen(ctx, n); err != nil {
		return nil, err
	}

	rows, err := e.store.UpdateNotification(ctx, id, models.NotificationFields{Message: &message})
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotificationNotFound, id)
	}
	n.Message = message

	ev := events.NotificationUpdated(events.NotificationEdited, *n)
	e.broadcaster.Send(ctx, models.ShopIdentity(n.ShopID), ev)
	e.broadcaster.Send(ctx, models.DriverIdentity(n.DriverID), ev)

	e.logger.Info("notification edited", zap.String("notification_id", id), zap.String("account_id", actor.AccountID))
	return n, nil
}

// DeleteNotification removes a notification the shop owns
func (e *Engine) DeleteNotification(ctx context.Context, actor models.Identity, id string) error {
	lock := e.locks.get("notification:" + id)
	lock.Lock()
	defer lock.Unlock()

	n, err := e.ownedNotification(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := e.checkOrderOpen(ctx, n); err != nil {
		return err
	}

	rows, err := e.store.DeleteNotification(ctx, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotificationNotFound, id)
	}

	ev := events.NotificationUpdated(events.NotificationDeleted, *n)
	e.broadcaster.Send(ctx, models.ShopIdentity(n.ShopID), ev)
	e.broadcaster.Send(ctx, models.DriverIdentity(n.DriverID), ev)
	e.sendPendingCount(ctx, n.DriverID)

	e.logger.Info("notification deleted", zap.String("notification_id", id), zap.String("account_id", actor.AccountID))
	return nil
}

// ConfirmNotification marks a notification as seen by its driver. Confirming
// twice is a no-op.
func (e *Engine) ConfirmNotification(ctx context.Context, actor models.Identity, id string) (*models.Notification, error) {
	if actor.AccountType != models.AccountTypeDriver {
		return nil, fmt.Errorf("%w: only drivers confirm notifications", ErrForbidden)
	}

	lock := e.locks.get("notification:" + id)
	lock.Lock()
	defer lock.Unlock()

	n, err := e.getNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.DriverID != actor.AccountID {
		return nil, fmt.Errorf("%w: notification %s belongs to another driver", ErrForbidden, id)
	}
	if n.Status == models.NotificationStatusConfirmed {
		return n, nil
	}

	confirmed := models.NotificationStatusConfirmed
	rows, err := e.store.UpdateNotification(ctx, id, models.NotificationFields{Status: &confirmed})
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotificationNotFound, id)
	}
	n.Status = confirmed

	ev := events.NotificationUpdated(events.NotificationConfirmed, *n)
	e.broadcaster.Send(ctx, models.ShopIdentity(n.ShopID), ev)
	e.broadcaster.Send(ctx, models.DriverIdentity(n.DriverID), ev)
	e.sendPendingCount(ctx, n.DriverID)

	return n, nil
}

func (e *Engine) ownedNotification(ctx context.Context, actor models.Identity, id string) (*models.Notification, error) {
	if actor.AccountType != models.AccountTypeShop {
		return nil, fmt.Errorf("%w: only shops change notifications", ErrForbidden)
	}
	n, err := e.getNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.ShopID != actor.AccountID {
		return nil, fmt.Errorf("%w: notification %s belongs to another shop", ErrForbidden, id)
	}
	return n, nil
}

// checkOrderOpen rejects changes to notifications of delivered orders
func (e *Engine) checkOrderOpen(ctx context.Context, n *models.Notification) error {
	if n.OrderID == nil {
		return nil
	}
	order, err := e.store.GetOrder(ctx, *n.OrderID)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if order.Status.Terminal() {
		return fmt.Errorf("%w: order %s is already %s", ErrInvalidAction, order.ID, order.Status)
	}
	return nil
}

func (e *Engine) getNotification(ctx context.Context, id string) (*models.Notification, error) {
	n, err := e.store.GetNotification(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotificationNotFound, id)
	}
	return n, err
}

func (e *Engine) sendPendingCount(ctx context.Context, driverID string) {
	count, err := e.store.CountPendingNotifications(ctx, driverID)
	if err != nil {
		e.logger.Warn("failed to count pending notifications", zap.String("account_id", driverID), zap.Error(err))
		return
	}
	e.broadcaster.Send(ctx, models.DriverIdentity(driverID), events.NotificationCount(count))
}
