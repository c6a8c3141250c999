// Package app assembles the service from its configuration.
package app

import (
	"fmt"
	"log/slog"
	"os"

	"go-paywatch/config"
	"go-paywatch/payment/db"
	"go-paywatch/payment/engine"
	"go-paywatch/payment/monitor"
	"go-paywatch/payment/order"
	"go-paywatch/payment/rates"
	"go-paywatch/payment/signature"
	"go-paywatch/web"
	"go-paywatch/web/controllers"
	"go-paywatch/web/middleware"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type App struct {
	Config  config.Config
	DB      *gorm.DB
	Store   *order.Store
	Engine  *engine.Engine
	Monitor *monitor.Client
	Auth    *middleware.Auth
	Limiter *middleware.RateLimiter
	Log     *slog.Logger
}

func NewLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// Build connects the database and constructs the engine. It does not migrate.
func Build(cfg config.Config, logger *slog.Logger) (*App, error) {
	conn, err := db.Connect(cfg.DBDriver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	store := order.NewStore(conn)
	mon := monitor.NewClient(cfg.MonitorURL, cfg.MonitorAPIKey, cfg.PollTimeout)
	eng := engine.New(
		cfg.Engine(),
		store,
		signature.NewVerifier(cfg.WebhookSecret, cfg.SignatureTolerance),
		mon,
		rates.NewConverter(cfg.RatesURL),
		logger,
	)
	return &App{
		Config:  cfg,
		DB:      conn,
		Store:   store,
		Engine:  eng,
		Monitor: mon,
		Auth:    middleware.NewAuth(cfg.JWTSecret, middleware.DefaultTokenTTL),
		Limiter: middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		Log:     logger,
	}, nil
}

func (a *App) Router() *gin.Engine {
	h := controllers.NewHandler(a.Engine, controllers.AdminCredentials{
		User:         a.Config.AdminUser,
		PasswordHash: a.Config.AdminPasswordHash,
	}, a.Auth, a.Log)
	return web.NewRouter(h, a.Auth, a.Limiter)
}
