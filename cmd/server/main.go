// tgbridge - web front end for a messaging account over a protocol bridge
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/mkraev/tgbridge/internal/api"
	"github.com/mkraev/tgbridge/internal/config"
	"github.com/mkraev/tgbridge/internal/ingest"
	"github.com/mkraev/tgbridge/internal/middleware"
	"github.com/mkraev/tgbridge/internal/protocol"
	"github.com/mkraev/tgbridge/internal/reply"
	"github.com/mkraev/tgbridge/internal/session"
	"github.com/mkraev/tgbridge/internal/store"
	"github.com/mkraev/tgbridge/internal/stream"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "store", cfg.Store.Driver, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.New(cfg.Store)
	if err != nil {
		slog.Error("Failed to initialize session store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close session store", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Session store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Session store connected")

	// Initialize services.
	dialer := protocol.NewBridgeDialer(cfg.BridgeURL, logger)

	registry := session.NewRegistry(repo, dialer, session.AccessCredentials{
		APIID:   cfg.APIID,
		APIHash: cfg.APIHash,
	}, cfg.ConnectTimeout, logger)

	hub := stream.NewHub(cfg.ReapInterval, cfg.SubscriberStaleAfter, logger)

	supervisor := session.NewSupervisor(registry, hub, session.SupervisorConfig{
		MaxRetries:          cfg.MaxConnectRetries,
		ConnectTimeout:      cfg.ConnectTimeout,
		ProbeTimeout:        cfg.ProbeTimeout,
		BackoffStep:         cfg.RetryBackoffStep,
		MaintenanceInterval: cfg.MaintenanceInterval,
	}, logger)

	gate := reply.NewGate(cfg.ReplyClearInterval, logger)

	var responder reply.Responder
	if cfg.ResponderEnabled() {
		responder = reply.NewHTTPResponder(cfg.ResponderURL, cfg.ResponderTimeout, logger)
		slog.Info("Auto-response collaborator configured", "url", cfg.ResponderURL)
	} else {
		slog.Info("Auto-responses disabled (RESPONDER_URL not set)")
	}

	ingestor := ingest.NewIngestor(registry, supervisor, hub, responder, gate, cfg.EventQueueSize, logger)

	// Initialize handlers.
	baseHandler := api.NewHandler(registry, supervisor, ingestor, repo)
	healthHandler := api.NewHealthHandler(repo)
	sessionHandler := api.NewSessionHandler(baseHandler, hub)
	messageHandler := api.NewMessageHandler(baseHandler)
	sseHandler := stream.NewSSEHandler(hub, logger)
	wsHandler := stream.NewWebSocketHandler(hub, logger)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// API routes.
	sessionHandler.RegisterRoutes(r)
	messageHandler.RegisterRoutes(r)

	// Streaming endpoints.
	r.Get("/api/sessions/{id}/events", sseHandler.ServeHTTP)
	r.Get("/ws/events", wsHandler.ServeHTTP)

	// Create server.
	// SSE connections require long timeouts (no WriteTimeout); keepalive
	// comments run every 10s to hold the connection open.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start background workers.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	supervisor.Start(ctx)
	hub.StartReaper(ctx)
	gate.StartCleaner(ctx)
	ingestor.Start(ctx)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
