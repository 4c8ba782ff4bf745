package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/datban/datban-api/internal/config"
	"github.com/datban/datban-api/internal/domain/booking"
	"github.com/datban/datban-api/internal/domain/events"
	"github.com/datban/datban-api/internal/domain/ledger"
	"github.com/datban/datban-api/internal/domain/topup"
	"github.com/datban/datban-api/internal/pkg/database"
	"github.com/datban/datban-api/internal/pkg/logger"
	"github.com/datban/datban-api/internal/pkg/storage"
)

// sweep-worker runs the deadline sweeps on a fixed interval. It shares no
// state with the API beyond the database: every sweep claims its rows with
// conditional updates, so extra workers or the HTTP sweep endpoints running
// alongside never double-apply anything.
func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	log.Info().
		Dur("interval", cfg.SweepInterval).
		Msg("Starting sweep-worker")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	rdb, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(rdb)

	// Events still flow from the worker: an auto-completed booking should
	// show up on an open wallet screen the same as a confirmed one.
	hub := events.NewHub(rdb)
	go hub.Run()
	defer hub.Stop()

	ledgerStore := ledger.NewStore(db)
	ledgerService := ledger.NewService(ledgerStore, hub)

	topupRepo := topup.NewRepository(db)
	bookingRepo := booking.NewRepository(db)

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	for _, migrate := range []func(context.Context) error{ledgerStore.Migrate, topupRepo.Migrate, bookingRepo.Migrate} {
		if err := migrate(migrateCtx); err != nil {
			log.Fatal().Err(err).Msg("Schema migration failed")
		}
	}
	migrateCancel()

	codec := topup.NewCodec(cfg.TransferCodePrefix)
	topupService := topup.NewService(topupRepo, ledgerService, codec, hub,
		cfg.TopupTTL, cfg.BankAccountNumber, cfg.BankAccountName)

	bookingService := booking.NewService(bookingRepo, ledgerStore, hub,
		cfg.PlatformFeeRate, booking.DefaultNoShowPolicy,
		cfg.PendingBookingTTL, cfg.CompletedPendingTTL)

	var archiver *ledger.Archiver
	if cfg.ArchiveEnabled {
		store, err := storage.NewS3Store(storage.S3Config{
			AccountID:       cfg.ArchiveAccountID,
			AccessKeyID:     cfg.ArchiveAccessKeyID,
			AccessKeySecret: cfg.ArchiveAccessKeySecret,
			BucketName:      cfg.ArchiveBucketName,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create archive storage client")
		}
		archiver = ledger.NewArchiver(db, store, cfg.ArchiveAfter)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received")
		cancel()
	}()

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	var lastArchive time.Time

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sweep-worker stopped")
			return
		case <-ticker.C:
		}

		runCtx, done := context.WithTimeout(ctx, cfg.SweepTimeout)

		runSweep(runCtx, "auto_reject", bookingService.SweepAutoReject)
		runSweep(runCtx, "auto_complete", bookingService.SweepAutoComplete)
		runSweep(runCtx, "topup_expire", topupService.SweepExpire)
		runSweep(runCtx, "topup_recover", topupService.SweepRecover)

		if archiver != nil && time.Since(lastArchive) >= cfg.ArchiveInterval {
			if days, err := archiver.ArchiveAgedDays(runCtx); err != nil {
				log.Error().Err(err).Msg("Ledger archive run failed")
			} else if days > 0 {
				log.Info().Int("days", days).Msg("Ledger archive run done")
			}
			lastArchive = time.Now()
		}

		done()
	}
}

func runSweep(ctx context.Context, name string, sweep func(ctx context.Context) (int64, error)) {
	affected, err := sweep(ctx)
	if err != nil {
		log.Error().Err(err).Str("sweep", name).Msg("Sweep failed")
		return
	}
	log.Debug().Str("sweep", name).Int64("affected", affected).Msg("Sweep done")
}
