package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/datban/datban-api/internal/config"
	"github.com/datban/datban-api/internal/domain/booking"
	"github.com/datban/datban-api/internal/domain/events"
	"github.com/datban/datban-api/internal/domain/ledger"
	"github.com/datban/datban-api/internal/domain/sweeps"
	"github.com/datban/datban-api/internal/domain/topup"
	"github.com/datban/datban-api/internal/middleware"
	"github.com/datban/datban-api/internal/pkg/database"
	"github.com/datban/datban-api/internal/pkg/jwt"
	"github.com/datban/datban-api/internal/pkg/logger"
	"github.com/datban/datban-api/internal/pkg/response"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting DatBan API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	// ---------- Event hub ----------
	hub := events.NewHub(redis)
	go hub.Run()
	defer hub.Stop()

	// ---------- Repositories ----------
	ledgerStore := ledger.NewStore(db)
	topupRepo := topup.NewRepository(db)
	bookingRepo := booking.NewRepository(db)

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	for _, migrate := range []func(context.Context) error{ledgerStore.Migrate, topupRepo.Migrate, bookingRepo.Migrate} {
		if err := migrate(migrateCtx); err != nil {
			log.Fatal().Err(err).Msg("Schema migration failed")
		}
	}
	migrateCancel()

	// ---------- Services ----------
	ledgerService := ledger.NewService(ledgerStore, hub)
	ledgerHandler := ledger.NewHandler(ledgerService)

	codec := topup.NewCodec(cfg.TransferCodePrefix)
	topupService := topup.NewService(topupRepo, ledgerService, codec, hub,
		cfg.TopupTTL, cfg.BankAccountNumber, cfg.BankAccountName)
	topupHandler := topup.NewHandler(topupService)

	bookingService := booking.NewService(bookingRepo, ledgerStore, hub,
		cfg.PlatformFeeRate, booking.DefaultNoShowPolicy,
		cfg.PendingBookingTTL, cfg.CompletedPendingTTL)
	bookingHandler := booking.NewHandler(bookingService)

	// ---------- Handlers ----------
	sweepHandler := sweeps.NewHandler(bookingService, topupService, cfg.SweepTimeout)

	// ---------- Event stream ----------
	eventsHandler := events.NewHandler(hub, cfg.AllowedOrigins)

	authMiddleware := middleware.Auth(jwtService)

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	// WebSocket endpoint (before Compress)
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		authMiddleware(http.HandlerFunc(eventsHandler.Stream)).ServeHTTP(w, r)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Compress(5))

		r.Mount("/wallet", ledgerHandler.Routes(authMiddleware))
		r.Mount("/topups", topupHandler.Routes(authMiddleware))
		r.Mount("/bookings", bookingHandler.Routes(authMiddleware))
	})

	r.Route("/webhooks", func(r chi.Router) {
		r.Use(middleware.WebhookSecret(cfg.BankWebhookSecret))
		r.Post("/bank", topupHandler.HandleBankWebhook)
	})

	r.Route("/internal/sweeps", func(r chi.Router) {
		r.Use(middleware.SweepToken(cfg.SweepToken))
		r.Mount("/", sweepHandler.Routes())
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}
