package main

import (
	"context"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harshitk-cp/botdesk"
	"github.com/Harshitk-cp/botdesk/internal/api"
	"github.com/Harshitk-cp/botdesk/internal/buildconfig"
	"github.com/Harshitk-cp/botdesk/internal/channel/telegram"
	"github.com/Harshitk-cp/botdesk/internal/channel/whatsapp"
	"github.com/Harshitk-cp/botdesk/internal/config"
	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/Harshitk-cp/botdesk/internal/session"
	"github.com/Harshitk-cp/botdesk/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger() *zap.Logger {
	level, err := zapcore.ParseLevel(config.LogLevel())
	if err != nil {
		level = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	if level == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func main() {
	if err := config.Load(); err != nil {
		zap.L().Fatal("failed to load config", zap.Error(err))
	}

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	dbURL := config.DatabaseURL()
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()

	migrations, err := fs.Sub(botdesk.MigrationsFS, "migrations")
	if err != nil {
		logger.Fatal("failed to open migrations", zap.Error(err))
	}
	if err := store.RunMigrations(dbURL, migrations, logger); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	pool, err := store.NewPool(ctx, dbURL, config.DatabaseMaxConns())
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()
	logger.Info("connected to database")

	var channels []session.Option
	if config.WhatsAppEnabled() {
		container, err := whatsapp.NewContainer(ctx, dbURL, logger)
		if err != nil {
			logger.Fatal("failed to open whatsapp device store", zap.Error(err))
		}
		channels = append(channels, session.WithAdapter(domain.ChannelWhatsApp, whatsapp.NewFactory(container, logger)))
	}
	if config.TelegramEnabled() {
		var opts []telegram.Option
		if u := config.TelegramAPIURL(); u != "" {
			opts = append(opts, telegram.WithServerURL(u))
		}
		channels = append(channels, session.WithAdapter(domain.ChannelTelegram, telegram.NewFactory(logger, opts...)))
	}

	app := api.NewApp(pool, logger, channels...)

	if name, pw := config.AdminName(), config.AdminPassword(); name != "" && pw != "" {
		if err := app.Tenants.EnsureAdmin(ctx, name, pw); err != nil {
			logger.Fatal("failed to ensure admin tenant", zap.Error(err))
		}
	}

	// Start background services
	app.Rollover.Start()
	if config.SessionResumeOnStart() {
		go func() {
			if err := app.Sessions.Resume(ctx); err != nil {
				logger.Error("session resume failed", zap.Error(err))
			}
		}()
	}

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting",
			zap.String("addr", addr),
			zap.String("version", buildconfig.Version()),
			zap.String("commit", buildconfig.Commit()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	// Stop background services
	app.Rollover.Stop()
	if err := app.Sessions.Shutdown(shutdownCtx); err != nil {
		logger.Error("session shutdown incomplete", zap.Error(err))
	}

	logger.Info("server stopped")
}
