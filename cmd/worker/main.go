package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tonlotto/backend/internal/config"
	"github.com/tonlotto/backend/internal/db"
	"github.com/tonlotto/backend/internal/events"
	"github.com/tonlotto/backend/internal/keys"
	"github.com/tonlotto/backend/internal/repositories"
	"github.com/tonlotto/backend/internal/services"
	"github.com/tonlotto/backend/internal/swap"
	"github.com/tonlotto/backend/internal/ton"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	chain, err := ton.Connect(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to connect to TON network", zap.Error(err))
	}

	// Repos
	roundRepo := repositories.NewRoundRepo(pool)
	entryRepo := repositories.NewEntryRepo(pool)
	payoutRepo := repositories.NewPayoutRepo(pool)
	jackpotRepo := repositories.NewJackpotRepo(pool)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	resolver := keys.NewResolver(jackpotRepo, cfg.KeyEncryptionSecret, cfg.PlatformWalletSeed, log)
	swapper := swap.NewClient(cfg.SwapAPIBaseURL, cfg.SwapTimeout, cfg.SwapMaxRetries, cfg.SwapRetryDelay, log)

	roundService := services.NewRoundService(roundRepo, entryRepo, publisher, cfg, log)
	payoutService := services.NewPayoutService(payoutRepo, roundRepo, jackpotRepo, resolver, chain, publisher, cfg, log)
	buybackService := services.NewBuybackService(roundRepo, swapper, chain, resolver, publisher, cfg, log)

	go serveHealth(cfg.WorkerPort, log)

	log.Info("settlement worker started",
		zap.Duration("scheduler_interval", cfg.SchedulerInterval),
		zap.Duration("disburser_interval", cfg.DisburserInterval),
		zap.Duration("buyback_interval", cfg.BuybackInterval),
	)

	// The three jobs are independent: a slow tick of one never delays
	// the others. Safety between them comes from the one-way status
	// fields, not from any shared lock.
	schedulerTicker := time.NewTicker(cfg.SchedulerInterval)
	disburserTicker := time.NewTicker(cfg.DisburserInterval)
	buybackTicker := time.NewTicker(cfg.BuybackInterval)
	defer schedulerTicker.Stop()
	defer disburserTicker.Stop()
	defer buybackTicker.Stop()

	go runOnTick(ctx, schedulerTicker, roundService.SettleDueRounds)
	go runOnTick(ctx, disburserTicker, payoutService.DisbursePending)
	go runOnTick(ctx, buybackTicker, buybackService.ProcessPending)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutting down settlement worker")
		cancel()
	case <-ctx.Done():
	}
}

func runOnTick(ctx context.Context, ticker *time.Ticker, job func(context.Context)) {
	for {
		select {
		case <-ticker.C:
			job(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// serveHealth exposes liveness for the deployment; the workers have no
// other network surface.
func serveHealth(port string, log *zap.Logger) {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if err := app.Listen(":" + port); err != nil {
		log.Error("health server stopped", zap.Error(err))
	}
}
