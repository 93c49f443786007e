package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tanda_circle_engine/internal/app"
	"tanda_circle_engine/internal/domain/circle"
	"tanda_circle_engine/internal/domain/contribution"
	"tanda_circle_engine/internal/domain/notify"
	"tanda_circle_engine/internal/domain/payout"
	"tanda_circle_engine/internal/domain/trust"
	"tanda_circle_engine/internal/domain/wallet"
	"tanda_circle_engine/internal/infra/config"
	idb "tanda_circle_engine/internal/infra/database"
	"tanda_circle_engine/internal/infra/httpapi"
	"tanda_circle_engine/internal/infra/inmemory"
	"tanda_circle_engine/internal/infra/logger"
	"tanda_circle_engine/internal/infra/payoutrail"
	"tanda_circle_engine/internal/infra/scheduler"
	"tanda_circle_engine/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("FATAL: Could not load application configuration: %v", err)
	}
	logger.Init(cfg)
	log := logger.Get()
	log.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"storage":     cfg.Storage,
	}).Info("circle engine starting")

	// Storage
	var (
		circleRepo  circle.Repository
		contribRepo contribution.Repository
		scoreRepo   trust.Repository
	)
	switch cfg.Storage {
	case "memory":
		circleRepo = inmemory.NewCircleRepository()
		contribRepo = inmemory.NewContributionRepository()
		scoreRepo = inmemory.NewScoreRepository()
		log.Warn("using in-memory storage; state is lost on restart")
	default:
		db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("FATAL: Could not connect to database: %v", err)
		}
		defer db.Close()
		circleRepo = idb.NewPostgresCircleRepository(db)
		contribRepo = idb.NewPostgresContributionRepository(db)
		scoreRepo = idb.NewPostgresScoreRepository(db)
		log.Info("database connection established")
	}

	trustLedger := trust.NewLedger(scoreRepo)

	// Outbound dependencies
	var notifier notify.Notifier
	if cfg.TelegramToken != "" {
		bot, err := telebot.NewBot(telebot.Settings{
			Token:  cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		})
		if err != nil {
			log.Fatalf("FATAL: Could not create Telegram bot: %v", err)
		}
		notifier = telegram.NewNotifier(bot, circleRepo, log)
		log.Info("telegram notifier initialized")
	} else {
		notifier = telegram.NewLogNotifier(log)
		log.Info("no telegram token configured, notifications go to the log")
	}

	var rail payout.Rail
	if cfg.PayoutRailURL != "" {
		rail = payoutrail.NewHTTPRail(cfg.PayoutRailURL, log)
	} else {
		rail = payoutrail.NewLogRail(log)
		log.Warn("no payout rail configured, payouts go to the log")
	}

	// Services
	locks := app.NewCycleLocks()
	contribService := app.NewContributionService(
		circleRepo, contribRepo, trustLedger, rail, notifier,
		wallet.AllowAll{}, locks, log, cfg.PayoutMaxRetries,
	)
	circleService := app.NewCircleService(
		circleRepo, contribRepo, trustLedger, notifier, contribService, locks, log,
	)

	// Grace-period sweep
	sweep := scheduler.NewSweepScheduler(circleService, log, cfg.CronSpecSweep)
	if err := sweep.Start(); err != nil {
		log.Fatalf("FATAL: Could not start sweep scheduler: %v", err)
	}

	// HTTP API
	server := httpapi.NewServer(cfg.HTTPAddr, circleService, contribService, log)
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("http api listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("FATAL: HTTP server failed: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")
	sweep.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("http server shutdown failed")
	}
	log.Info("circle engine stopped")
}
