package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-paywatch/app"
	"go-paywatch/config"
	"go-paywatch/payment/db"
	"go-paywatch/service"

	"github.com/gin-gonic/gin"
)

func main() {
	logger := app.NewLogger()

	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	gin.SetMode(gin.ReleaseMode)
	a, err := app.Build(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}
	if err := db.Sync(a.DB); err != nil {
		logger.Error("migrate failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := a.Engine.Restore(ctx); err != nil {
		logger.Error("restore amount slots", "err", err)
		os.Exit(1)
	}
	a.Limiter.StartCleanup(ctx, 10*time.Minute, 30*time.Minute)

	if cfg.PollInterval > 0 {
		go pollLoop(ctx, a, cfg.PollInterval)
	}

	done, err := service.Start(ctx, cfg.ListenAddr, a.Router(), logger)
	if err != nil {
		logger.Error("listen", "addr", cfg.ListenAddr, "err", err)
		os.Exit(1)
	}
	<-done.Done()
}

// pollLoop catches payments whose webhooks never arrived.
func pollLoop(ctx context.Context, a *app.App, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.Engine.PollActive(ctx)
			if err != nil {
				a.Log.Warn("poll sweep", "err", err)
				continue
			}
			if n > 0 {
				a.Log.Info("poll sweep updated payments", "count", n)
			}
		}
	}
}
