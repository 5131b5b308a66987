package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/beyondbound/api/admin"
	"github.com/beyondbound/api/auth"
	"github.com/beyondbound/api/config"
	"github.com/beyondbound/api/rest"
	"github.com/beyondbound/api/users"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/goliatone/go-print"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

const (
	envDevelopment = "development"
	envStaging     = "staging"
	envProduction  = "production"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to yaml config, env-only when empty")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	logger := setupLogger(cfg.Env)
	logger.Info("starting api server", "env", cfg.Env, "address", cfg.HTTPServer.Address)
	if cfg.Debug {
		logger.Debug("configuration loaded", "config", print.MaybePrettyJSON(cfg))
	}

	db, err := openDB(cfg)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := users.InitSchema(ctx, db); err != nil {
		logger.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	authLogger := &slogAdapter{logger: logger}

	repo := users.NewRepository(db)
	tokens := auth.NewTokenService(
		[]byte(cfg.Auth.SigningKey),
		cfg.Auth.AccessTTL(),
		cfg.Auth.RefreshTTL(),
		authLogger,
	)
	auther := auth.NewAuthenticator(repo, tokens).WithLogger(authLogger)

	app := fiber.New(fiber.Config{
		AppName:      "Beyond Boundaries API",
		Views:        admin.Engine(),
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		ErrorHandler: rest.NewErrorHandler(authLogger),
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.Origins,
		AllowCredentials: true,
	}))

	rest.Register(app, rest.Config{
		Auther:     auther,
		Tokens:     tokens,
		Users:      repo,
		RefreshTTL: cfg.Auth.RefreshTTL(),
		Logger:     authLogger,
	})

	admin.Register(app, admin.Config{
		Auther:     auther,
		Tokens:     tokens,
		Users:      repo,
		SessionTTL: cfg.Auth.AccessTTL(),
		Logger:     authLogger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(cfg.HTTPServer.Address)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("server stopped unexpectedly", "error", err)
		os.Exit(1)
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func openDB(cfg *config.Config) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DB.DSN)
	if err != nil {
		return nil, err
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	return db, db.Ping()
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envStaging:
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProduction:
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	case envDevelopment:
		fallthrough
	default:
		return slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}
}

// slogAdapter bridges the printf-style auth.Logger onto slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Debug(format string, args ...any) {
	a.logger.Debug(fmt.Sprintf(format, args...))
}

func (a *slogAdapter) Info(format string, args ...any) {
	a.logger.Info(fmt.Sprintf(format, args...))
}

func (a *slogAdapter) Error(format string, args ...any) {
	a.logger.Error(fmt.Sprintf(format, args...))
}
