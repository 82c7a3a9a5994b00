package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"courier-backend/internal/config"
	"courier-backend/internal/database"
	"courier-backend/internal/events"
	"courier-backend/internal/metrics"
	"courier-backend/internal/middleware"
	"courier-backend/internal/orders"
	"courier-backend/internal/services"
	"courier-backend/internal/sessions"
	"courier-backend/internal/telemetry"
	"courier-backend/internal/websocket"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const serviceName = "courier-backend"

func main() {
	bootLogger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}

	cfg, err := config.Load(bootLogger)
	if err != nil {
		bootLogger.Fatal("configuration error", zap.Error(err))
	}

	logger := bootLogger
	if cfg.IsDevelopment() {
		if logger, err = zap.NewDevelopment(); err != nil {
			bootLogger.Fatal("failed to build development logger", zap.Error(err))
		}
	}
	defer logger.Sync()

	logger.Info("🚀 courier backend starting", zap.String("env", cfg.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server terminated with error", zap.Error(err))
	}
	logger.Info("server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	shutdownTracing, err := telemetry.Init(ctx, serviceName, cfg.OTLPEndpoint, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	db, err := database.Connect(cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db, logger); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	store := database.NewStore(db, logger)
	if cfg.IsDevelopment() {
		if err := store.SeedAccounts(ctx); err != nil {
			return fmt.Errorf("account seeding failed: %w", err)
		}
	}

	codec := sessions.NewCodec(cfg.SessionTTL, cfg.TokenClockSkew)
	registry := sessions.NewRegistry(codec, cfg.SessionTTL, logger)
	authenticator := sessions.NewAuthenticator(registry, codec, cfg.TrustStatelessToken, logger)
	if cfg.TrustStatelessToken {
		logger.Warn("stateless session tokens are trusted after a restart")
	}

	metrics.Register(prometheus.DefaultRegisterer)
	metrics.TrackSessions(registry.Len)

	hub := websocket.NewHub(authenticator, logger)
	broadcaster := websocket.NewBroadcaster(hub, newPushTransport(ctx, cfg, logger), store, logger)
	engine := orders.NewEngine(store, broadcaster, cfg.IdempotencyTTL, logger)
	hub.SetDispatcher(engine)

	router := newRouter(routerDeps{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		registry:    registry,
		auth:        middleware.NewAuth(cfg.JWTSecret, authenticator, logger),
		hub:         hub,
		broadcaster: broadcaster,
		engine:      engine,
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		registry.Run(ctx, cfg.SessionSweepInterval, func(s sessions.Session) {
			broadcaster.Evict(s.AccountID, events.ForceLogout("expired"))
		})
		return nil
	})

	g.Go(func() error {
		logger.Info("✅ server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		// Deferred creations and push fallbacks still in flight
		engine.Wait()
		broadcaster.Wait()
		return nil
	})

	return g.Wait()
}

// newPushTransport returns nil when FCM cannot be initialised, which disables
// the push fallback without affecting realtime delivery.
func newPushTransport(ctx context.Context, cfg *config.Config, logger *zap.Logger) websocket.PushTransport {
	var (
		fcm *services.FCMService
		err error
	)
	switch {
	case cfg.FirebaseCredentialsBase64 != "":
		fcm, err = services.NewFCMServiceFromBase64(ctx, cfg.FirebaseCredentialsBase64, logger)
	case cfg.HasFirebaseCredentials():
		fcm, err = services.NewFCMService(ctx, cfg.FirebaseCredentialsFile, logger)
	default:
		logger.Warn("⚠️  no Firebase credentials configured, push notifications disabled")
		return nil
	}
	if err != nil {
		logger.Warn("⚠️  failed to initialize FCM, push notifications disabled", zap.Error(err))
		return nil
	}

	logger.Info("✅ Firebase Cloud Messaging initialized")
	return fcm
}
