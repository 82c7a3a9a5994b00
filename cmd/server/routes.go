package main

import (
	"net/http"

	"courier-backend/internal/config"
	"courier-backend/internal/database"
	"courier-backend/internal/handlers"
	"courier-backend/internal/metrics"
	"courier-backend/internal/middleware"
	"courier-backend/internal/models"
	"courier-backend/internal/orders"
	"courier-backend/internal/sessions"
	"courier-backend/internal/telemetry"
	"courier-backend/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type routerDeps struct {
	cfg         *config.Config
	logger      *zap.Logger
	store       *database.Store
	registry    *sessions.Registry
	auth        *middleware.Auth
	hub         *websocket.Hub
	broadcaster *websocket.Broadcaster
	engine      *orders.Engine
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.Instrument)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", handlers.IdempotencyKeyHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Realtime channel; authentication happens in the first frame
	r.Get("/ws", websocket.HandleWebSocket(d.hub, d.cfg.CORSAllowedOrigins))

	r.Route("/api", func(r chi.Router) {
		r.Use(telemetry.Middleware(serviceName))

		r.Post("/auth/login", handlers.Login(d.store, d.registry, d.broadcaster, d.auth, d.logger))
		r.Post("/logs/diagnostic", handlers.ReceiveDiagnosticLog(d.logger))

		r.Group(func(r chi.Router) {
			r.Use(d.auth.Middleware)

			r.Post("/auth/logout", handlers.Logout(d.registry, d.broadcaster, d.logger))
			r.Get("/auth/status", handlers.Status(d.registry))

			r.Post("/push/subscriptions", handlers.RegisterPushSubscription(d.store, d.logger))
			r.Delete("/push/subscriptions", handlers.DeletePushSubscription(d.store, d.logger))

			r.Route("/shop", func(r chi.Router) {
				r.Use(middleware.RequireRole(models.AccountTypeShop))

				r.Get("/drivers", handlers.ListDrivers(d.store, d.hub, d.logger))
				r.Post("/drivers", handlers.CreateDriver(d.store, d.logger))

				r.Get("/orders", handlers.ListShopOrders(d.store, d.logger))
				r.Post("/orders", handlers.CreateOrder(d.engine, d.logger))

				r.Get("/notifications", handlers.ListShopNotifications(d.store, d.logger))
				r.Post("/notifications", handlers.SendNotification(d.engine, d.logger))
				r.Patch("/notifications/{id}", handlers.EditNotification(d.engine, d.logger))
				r.Delete("/notifications/{id}", handlers.DeleteNotification(d.engine, d.logger))
			})

			r.Route("/driver", func(r chi.Router) {
				r.Use(middleware.RequireRole(models.AccountTypeDriver))

				r.Get("/orders", handlers.ListDriverOrders(d.store, d.logger))
				r.Post("/orders/{id}/{action}", handlers.TransitionOrder(d.engine, d.logger))

				r.Get("/notifications", handlers.ListDriverNotifications(d.store, d.logger))
				r.Post("/notifications/{id}/confirm", handlers.ConfirmNotification(d.engine, d.logger))
			})
		})
	})

	return r
}
