// Command addaccount creates a shop or driver account, optionally putting a
// driver on a shop's roster.
package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"courier-backend/internal/database"
	"courier-backend/internal/models"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	email := flag.String("email", "", "login email")
	password := flag.String("password", "", "login password")
	name := flag.String("name", "", "display name")
	kind := flag.String("type", "driver", "account type: shop or driver")
	shopEmail := flag.String("shop", "", "email of the shop whose roster a driver joins")
	flag.Parse()

	accountType, err := models.ParseAccountType(*kind)
	if err != nil {
		logger.Fatal("invalid account type", zap.Error(err))
	}
	if *email == "" || *password == "" || *name == "" {
		logger.Fatal("email, password and name are required")
	}

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := database.Connect(dbURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx := context.Background()
	store := database.NewStore(db, logger)

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		logger.Fatal("failed to hash password", zap.Error(err))
	}

	account := &models.Account{
		Email:       *email,
		Password:    string(hash),
		Name:        *name,
		AccountType: accountType,
	}
	if err := store.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, database.ErrAccountExists) {
			logger.Warn("⚠️  account already exists", zap.String("email", *email))
			return
		}
		logger.Fatal("failed to create account", zap.Error(err))
	}

	if accountType == models.AccountTypeDriver && *shopEmail != "" {
		shop, err := store.FindAccountByEmail(ctx, *shopEmail)
		if err != nil {
			logger.Fatal("shop not found", zap.String("shop", *shopEmail), zap.Error(err))
		}
		if shop.AccountType != models.AccountTypeShop {
			logger.Fatal("roster owner is not a shop", zap.String("shop", *shopEmail))
		}
		if err := store.AddRosterDriver(ctx, shop.ID, account.ID); err != nil {
			logger.Fatal("failed to add driver to roster", zap.Error(err))
		}
		logger.Info("✅ driver added to roster", zap.String("shop_id", shop.ID))
	}

	logger.Info("✅ account ready",
		zap.String("account_id", account.ID),
		zap.String("email", account.Email),
		zap.String("account_type", string(account.AccountType)),
	)
}
