package database

import (
	"context"
	"fmt"

	"courier-backend/internal/models"
)

// UpsertPushSubscription registers endpoint for the account. An endpoint
// already registered (e.g. a device that changed hands) moves to the new account.
func (s *Store) UpsertPushSubscription(ctx context.Context, sub *models.PushSubscription) error {
	now := s.unixNow()
	query := `INSERT INTO push_subscriptions (account_id, account_type, endpoint, device_type, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $5)
	          ON CONFLICT (endpoint) DO UPDATE
	          SET account_id = EXCLUDED.account_id,
	              account_type = EXCLUDED.account_type,
	              device_type = EXCLUDED.device_type,
	              updated_at = EXCLUDED.updated_at
	          RETURNING id, created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query, sub.AccountID, sub.AccountType, sub.Endpoint, sub.DeviceType, now)
	if err := row.Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save push subscription: %w", err)
	}
	return nil
}

// DeletePushSubscription removes endpoint from the account's subscriptions
func (s *Store) DeletePushSubscription(ctx context.Context, accountID, endpoint string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE account_id = $1 AND endpoint = $2`,
		accountID, endpoint,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete push subscription: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// ListPushSubscriptions returns every endpoint registered for identity
func (s *Store) ListPushSubscriptions(ctx context.Context, identity models.Identity) ([]models.PushSubscription, error) {
	subs := []models.PushSubscription{}
	query := `SELECT id, account_id, account_type, endpoint, device_type, created_at, updated_at
	          FROM push_subscriptions
	          WHERE account_id = $1 AND account_type = $2
	          ORDER BY updated_at DESC`
	if err := s.db.SelectContext(ctx, &subs, query, identity.AccountID, identity.AccountType); err != nil {
		return nil, fmt.Errorf("failed to list push subscriptions: %w", err)
	}
	return subs, nil
}
