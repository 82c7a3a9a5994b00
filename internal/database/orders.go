package database

import (
	"context"
	"fmt"

	"courier-backend/internal/models"

	"github.com/google/uuid"
)

const orderColumns = `id, shop_id, status, driver_id, amount, address, phone, notes, idempotency_key, created_at, updated_at`

// CreateOrder inserts order. A reused (shop, idempotency key) pair fails with
// ErrDuplicateIdempotencyKey.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	now := s.unixNow()
	order.CreatedAt = now
	order.UpdatedAt = now

	query := `INSERT INTO orders (` + orderColumns + `)
	          VALUES (:id, :shop_id, :status, :driver_id, :amount, :address, :phone, :notes, :idempotency_key, :created_at, :updated_at)`
	if _, err := s.db.NamedExecContext(ctx, query, order); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("order for shop %s: %w", order.ShopID, ErrDuplicateIdempotencyKey)
		}
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if err := s.db.GetContext(ctx, &order, query, id); err != nil {
		return nil, notFound(err, "order")
	}
	return &order, nil
}

// FindOrderByIdempotencyKey returns the order a shop created with key
func (s *Store) FindOrderByIdempotencyKey(ctx context.Context, shopID, key string) (*models.Order, error) {
	var order models.Order
	query := `SELECT ` + orderColumns + ` FROM orders WHERE shop_id = $1 AND idempotency_key = $2`
	if err := s.db.GetContext(ctx, &order, query, shopID, key); err != nil {
		return nil, notFound(err, "order")
	}
	return &order, nil
}

// UpdateOrderStatus moves order id from expected to next in one statement and
// returns the number of rows changed. Zero means the stored status was not
// expected (or the order does not exist).
func (s *Store) UpdateOrderStatus(ctx context.Context, id string, expected, next models.OrderStatus, fields models.OrderFields) (int64, error) {
	query := `UPDATE orders
	          SET status = $1,
	              driver_id = COALESCE($2, driver_id),
	              updated_at = $3
	          WHERE id = $4 AND status = $5`

	result, err := s.db.ExecContext(ctx, query, next, fields.DriverID, s.unixNow(), id, expected)
	if err != nil {
		return 0, fmt.Errorf("failed to update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// ListOrders returns every order of a shop, newest first
func (s *Store) ListOrders(ctx context.Context, shopID string) ([]models.Order, error) {
	orders := []models.Order{}
	query := `SELECT ` + orderColumns + ` FROM orders WHERE shop_id = $1 ORDER BY created_at DESC, id`
	if err := s.db.SelectContext(ctx, &orders, query, shopID); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// ListDriverOrders returns the orders assigned to a driver plus the pending
// orders of every shop whose roster includes the driver.
func (s *Store) ListDriverOrders(ctx context.Context, driverID string) ([]models.Order, error) {
	orders := []models.Order{}
	query := `SELECT ` + orderColumns + ` FROM orders
	          WHERE driver_id = $1
	             OR (status = 'pending' AND shop_id IN (SELECT shop_id FROM shop_drivers WHERE driver_id = $1))
	          ORDER BY created_at DESC, id`
	if err := s.db.SelectContext(ctx, &orders, query, driverID); err != nil {
		return nil, fmt.Errorf("failed to list driver orders: %w", err)
	}
	return orders, nil
}
