package database

import (
	"context"
	"fmt"

	"courier-backend/internal/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// SeedAccounts creates a demo shop with two rostered drivers when the
// accounts table is empty.
func (s *Store) SeedAccounts(ctx context.Context) error {
	// Check if accounts already exist
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM accounts"); err != nil {
		return err
	}

	if count > 0 {
		s.logger.Info("✓ accounts already seeded, skipping...")
		return nil
	}

	s.logger.Info("🌱 seeding demo accounts...")

	seeds := []struct {
		email    string
		password string
		name     string
		kind     models.AccountType
	}{
		{"shop@courier.local", "shop123", "Corner Shop", models.AccountTypeShop},
		{"driver1@courier.local", "driver123", "Dana Driver", models.AccountTypeDriver},
		{"driver2@courier.local", "driver123", "Sam Rider", models.AccountTypeDriver},
	}

	var shopID string
	for _, seed := range seeds {
		hash, err := bcrypt.GenerateFromPassword([]byte(seed.password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		account := &models.Account{
			Email:       seed.email,
			Password:    string(hash),
			Name:        seed.name,
			AccountType: seed.kind,
		}
		if err := s.CreateAccount(ctx, account); err != nil {
			return err
		}

		if seed.kind == models.AccountTypeShop {
			shopID = account.ID
		} else if err := s.AddRosterDriver(ctx, shopID, account.ID); err != nil {
			return fmt.Errorf("failed to roster %s: %w", seed.email, err)
		}
		s.logger.Info("  ✓ created account", zap.String("email", seed.email), zap.String("account_type", string(seed.kind)))
	}

	return nil
}
