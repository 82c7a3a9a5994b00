package database

import (
	"context"
	"fmt"
	"strings"

	"courier-backend/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const notificationColumns = `id, shop_id, driver_id, message, status, order_id, created_at`

// CreateNotification inserts a single notification
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	return s.CreateNotifications(ctx, []*models.Notification{n})
}

// CreateNotifications inserts every notification in one transaction,
// assigning ids and timestamps.
func (s *Store) CreateNotifications(ctx context.Context, notifications []*models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.unixNow()
	query := `INSERT INTO notifications (` + notificationColumns + `)
	          VALUES (:id, :shop_id, :driver_id, :message, :status, :order_id, :created_at)`

	for i, n := range notifications {
		if n.ID == "" {
			n.ID = uuid.New().String()
		}
		if n.Status == "" {
			n.Status = models.NotificationStatusPending
		}
		n.CreatedAt = now

		if _, err := tx.NamedExecContext(ctx, query, n); err != nil {
			return fmt.Errorf("failed to create notification %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("notifications created", zap.Int("count", len(notifications)))
	return nil
}

func (s *Store) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	if err := s.db.GetContext(ctx, &n, query, id); err != nil {
		return nil, notFound(err, "notification")
	}
	return &n, nil
}

// UpdateNotification sets the non-nil fields and returns the number of rows changed
func (s *Store) UpdateNotification(ctx context.Context, id string, fields models.NotificationFields) (int64, error) {
	var sets []string
	var args []any

	if fields.Message != nil {
		args = append(args, *fields.Message)
		sets = append(sets, fmt.Sprintf("message = $%d", len(args)))
	}
	if fields.Status != nil {
		args = append(args, *fields.Status)
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(sets) == 0 {
		return 0, nil
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE notifications SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update notification: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// DeleteNotification removes a notification and returns the number of rows removed
func (s *Store) DeleteNotification(ctx context.Context, id string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notification: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// ListDriverNotifications returns a driver's notifications, newest first
func (s *Store) ListDriverNotifications(ctx context.Context, driverID string) ([]models.Notification, error) {
	notifications := []models.Notification{}
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE driver_id = $1 ORDER BY created_at DESC, id`
	if err := s.db.SelectContext(ctx, &notifications, query, driverID); err != nil {
		return nil, fmt.Errorf("failed to list driver notifications: %w", err)
	}
	return notifications, nil
}

// ListShopNotifications returns the notifications a shop has sent, newest first
func (s *Store) ListShopNotifications(ctx context.Context, shopID string) ([]models.Notification, error) {
	notifications := []models.Notification{}
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE shop_id = $1 ORDER BY created_at DESC, id`
	if err := s.db.SelectContext(ctx, &notifications, query, shopID); err != nil {
		return nil, fmt.Errorf("failed to list shop notifications: %w", err)
	}
	return notifications, nil
}

// CountPendingNotifications returns how many notifications a driver has not confirmed
func (s *Store) CountPendingNotifications(ctx context.Context, driverID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM notifications WHERE driver_id = $1 AND status = 'pending'`
	if err := s.db.GetContext(ctx, &count, query, driverID); err != nil {
		return 0, fmt.Errorf("failed to count pending notifications: %w", err)
	}
	return count, nil
}
