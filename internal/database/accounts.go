package database

import (
	"context"
	"fmt"

	"courier-backend/internal/models"
	"courier-backend/internal/sessions"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FindAccountByEmail returns the account registered under email
func (s *Store) FindAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	query := `SELECT id, email, password, name, account_type, created_at, updated_at
	          FROM accounts WHERE email = $1`
	if err := s.db.GetContext(ctx, &account, query, email); err != nil {
		return nil, notFound(err, "account")
	}
	return &account, nil
}

// GetAccount returns an account by id
func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	query := `SELECT id, email, password, name, account_type, created_at, updated_at
	          FROM accounts WHERE id = $1`
	if err := s.db.GetContext(ctx, &account, query, id); err != nil {
		return nil, notFound(err, "account")
	}
	return &account, nil
}

// CreateAccount inserts account, assigning an id when it has none. Password
// must already be hashed.
func (s *Store) CreateAccount(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if err := validateAccount(account); err != nil {
		return err
	}
	now := s.unixNow()
	account.CreatedAt = now
	account.UpdatedAt = now

	query := `INSERT INTO accounts (id, email, password, name, account_type, created_at, updated_at)
	          VALUES (:id, :email, :password, :name, :account_type, :created_at, :updated_at)`
	if _, err := s.db.NamedExecContext(ctx, query, account); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrAccountExists, account.Email)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info("✅ account created",
		zap.String("account_id", account.ID),
		zap.String("account_type", string(account.AccountType)),
	)
	return nil
}

// AddRosterDriver puts driverID on the roster of shopID. Adding twice is a no-op.
func (s *Store) AddRosterDriver(ctx context.Context, shopID, driverID string) error {
	query := `INSERT INTO shop_drivers (shop_id, driver_id, created_at)
	          VALUES ($1, $2, $3)
	          ON CONFLICT (shop_id, driver_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, shopID, driverID, s.unixNow()); err != nil {
		return fmt.Errorf("failed to add driver to roster: %w", err)
	}
	return nil
}

// ListRosterDrivers returns the driver ids on the roster of shopID
func (s *Store) ListRosterDrivers(ctx context.Context, shopID string) ([]string, error) {
	ids := []string{}
	query := `SELECT driver_id FROM shop_drivers WHERE shop_id = $1 ORDER BY created_at, driver_id`
	if err := s.db.SelectContext(ctx, &ids, query, shopID); err != nil {
		return nil, fmt.Errorf("failed to list roster: %w", err)
	}
	return ids, nil
}

// ListRosterAccounts returns the driver accounts on the roster of shopID
func (s *Store) ListRosterAccounts(ctx context.Context, shopID string) ([]models.Account, error) {
	accounts := []models.Account{}
	query := `SELECT a.id, a.email, a.password, a.name, a.account_type, a.created_at, a.updated_at
	          FROM shop_drivers sd
	          JOIN accounts a ON a.id = sd.driver_id
	          WHERE sd.shop_id = $1
	          ORDER BY a.name`
	if err := s.db.SelectContext(ctx, &accounts, query, shopID); err != nil {
		return nil, fmt.Errorf("failed to list roster accounts: %w", err)
	}
	return accounts, nil
}

// validateAccount rejects accounts whose id could not be carried in a session token
func validateAccount(account *models.Account) error {
	if !sessions.ValidAccountID(account.ID) {
		return fmt.Errorf("%w: id %q", ErrInvalidAccount, account.ID)
	}
	if !account.AccountType.Valid() {
		return fmt.Errorf("%w: account type %q", ErrInvalidAccount, account.AccountType)
	}
	return nil
}
