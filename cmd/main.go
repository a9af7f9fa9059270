// Command mocktrader runs the mock brokerage backend: a rotating CSV price
// feed, a FIFO-lot trade engine and a JSON API with JWT-protected accounts.
//
// Usage:
//
//	mocktrader --config config.yaml
//	mocktrader --setup   (interactive configuration wizard)
//
// The MOCKTRADER_JWT_SECRET environment variable overrides the token
// signing secret from the config file.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"mocktrader/config"
	"mocktrader/internal/services/auth"
	"mocktrader/internal/services/ledger"
	"mocktrader/internal/services/pricefeed"
	"mocktrader/internal/services/trade"
	"mocktrader/internal/setup"
	"mocktrader/internal/storage"
	"mocktrader/internal/storage/portfolios"
	"mocktrader/internal/storage/tradelog"
	"mocktrader/internal/storage/users"
	"mocktrader/internal/web"
	"mocktrader/pkg/retrier"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	if cfg.RunSetup {
		if err := setup.RunTUI(); err != nil {
			log.Fatal(err)
		}
		return
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := retrier.New()
	db, err := retrier.DoWithData(r, ctx, func(ctx context.Context) (*gorm.DB, error) {
		return storage.Open(cfg.DBPath)
	})
	if err != nil {
		logger.Fatal("failed to open database", zap.String("path", cfg.DBPath), zap.Error(err))
	}

	portfolioStore, err := portfolios.New(db)
	if err != nil {
		logger.Fatal("failed to init portfolio store", zap.Error(err))
	}
	userStore, err := users.New(db)
	if err != nil {
		logger.Fatal("failed to init user store", zap.Error(err))
	}

	tradeLog, err := tradelog.NewWALStore(cfg.WALDir)
	if err != nil {
		logger.Fatal("failed to init trade journal", zap.String("dir", cfg.WALDir), zap.Error(err))
	}
	defer tradeLog.Close()

	feed := pricefeed.New(pricefeed.NewCSVSource(cfg.PricesFile), cfg.RotationInterval, logger)
	if err := feed.Prime(); err != nil {
		// the feed serves empty quotes until the file appears
		logger.Warn("initial price load failed", zap.String("file", cfg.PricesFile), zap.Error(err))
	}

	ledgerSvc := ledger.New(portfolioStore, logger)
	engine := trade.New(feed, ledgerSvc, tradeLog, logger)
	authSvc := auth.New(userStore, ledgerSvc, cfg.JWTSecret, cfg.TokenTTL, cfg.StartingCash, logger)
	server := web.NewServer(cfg.ListenAddr, engine, ledgerSvc, authSvc, tradeLog, logger)

	logger.Info("starting",
		zap.String("listen", cfg.ListenAddr),
		zap.String("prices", cfg.PricesFile),
		zap.Duration("rotation", cfg.RotationInterval))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return feed.Run(gctx)
	})
	g.Go(func() error {
		return server.Start(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("shutting down with error", zap.Error(err))
	}
	logger.Info("stopped")
}
