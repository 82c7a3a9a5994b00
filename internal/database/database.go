package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateIdempotencyKey is returned when a shop reuses an idempotency key
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")

	// ErrAccountExists is returned when an email is already registered
	ErrAccountExists = errors.New("account already exists")

	// ErrInvalidAccount is returned for an account that cannot be stored
	ErrInvalidAccount = errors.New("invalid account")
)

func Connect(dbURL string, logger *zap.Logger) (*sqlx.DB, error) {
	logger.Info("🔌 connecting to database", zap.String("host", dbHost(dbURL)))

	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		logger.Error("❌ database connection failed at sqlx.Connect()", zap.Error(err))
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		logger.Error("❌ database connection failed at Ping()", zap.Error(err))
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	logger.Info("✅ database connection successful")
	return db, nil
}

// Migrate applies the embedded goose migrations
func Migrate(ctx context.Context, db *sqlx.DB, logger *zap.Logger) error {
	if err := RunMigrations(ctx, db, logger, "up"); err != nil {
		return err
	}
	logger.Info("✓ database migrations completed")
	return nil
}

// RunMigrations runs a goose command (up, down, status, version, redo, reset)
// against the embedded migrations
func RunMigrations(ctx context.Context, db *sqlx.DB, logger *zap.Logger, command string, args ...string) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(zap.NewStdLog(logger))

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.RunContext(ctx, command, db.DB, "migrations", args...); err != nil {
		return fmt.Errorf("migration %s failed: %w", command, err)
	}
	return nil
}

// Store implements the account, roster, order, notification and push
// subscription stores on Postgres.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewStore(db *sqlx.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger, now: time.Now}
}

func (s *Store) unixNow() int64 {
	return s.now().Unix()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgerrcode.UniqueViolation
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

// dbHost extracts host and database name from a connection URL so it can be
// logged without credentials. Key/value DSNs log as "unknown".
func dbHost(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host + u.Path
}
