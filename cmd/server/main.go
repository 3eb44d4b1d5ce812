// Package main is the entry point for the campus auth server. It loads
// configuration, connects the credential store and OTP cache, wires the
// plugins together, and starts the HTTP server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/keyxmakerx/campus/internal/app"
	"github.com/keyxmakerx/campus/internal/config"
	"github.com/keyxmakerx/campus/internal/database"
	"github.com/keyxmakerx/campus/internal/plugins/audit"
	"github.com/keyxmakerx/campus/internal/plugins/auth"
	"github.com/keyxmakerx/campus/internal/plugins/smtp"
)

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	// Configure structured logging based on environment.
	setupLogging(cfg)

	slog.Info("starting campus",
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Port),
		slog.String("db_driver", cfg.Database.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to the credential store ---
	var (
		db  *sql.DB
		mdb *mongo.Database
	)
	switch cfg.Database.Driver {
	case config.DriverMongo:
		client, mongoDB, err := database.NewMongo(ctx, cfg.Database)
		if err != nil {
			fatal("failed to connect to MongoDB", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		mdb = mongoDB

		if err := auth.EnsureUserIndexes(ctx, mdb); err != nil {
			fatal("failed to create user indexes", err)
		}
		if err := audit.EnsureAuditIndexes(ctx, mdb); err != nil {
			fatal("failed to create audit indexes", err)
		}
		slog.Info("connected to MongoDB", slog.String("database", cfg.Database.MongoDatabase))

	default:
		db, err = database.NewMariaDB(ctx, cfg.Database)
		if err != nil {
			fatal("failed to connect to MariaDB", err)
		}
		defer db.Close()

		if err := database.RunMigrations(db, cfg.Database.MigrationsPath); err != nil {
			fatal("failed to run migrations", err)
		}
		slog.Info("connected to MariaDB")
	}

	// --- Connect to Redis (optional) ---
	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		rdb, err = database.NewRedis(ctx, cfg.Redis)
		if err != nil {
			fatal("failed to connect to Redis", err)
		}
		defer rdb.Close()
		slog.Info("connected to Redis, verification codes are shared")
	} else {
		slog.Warn("REDIS_URL not set, verification codes are kept in process memory")
	}

	// --- Create Application ---
	application := app.New(cfg, db, mdb, rdb)
	if err := application.RegisterRoutes(); err != nil {
		fatal("failed to register routes", err)
	}

	checkMail(ctx, application.Mail, cfg.SMTP.Host)

	// --- Bootstrap admin ---
	if err := application.Auth.EnsureAdmin(ctx,
		cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword, cfg.Bootstrap.AdminName,
	); err != nil {
		fatal("failed to create bootstrap admin", err)
	}

	// --- Graceful Shutdown ---
	// Wait for SIGINT/SIGTERM, then give in-flight requests 10 seconds.
	go func() {
		<-ctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := application.Echo.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced shutdown", slog.Any("error", err))
		}
	}()

	// --- Start Server ---
	if err := application.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fatal("server failed", err)
	}
	slog.Info("server stopped")
}

// checkMail logs whether the SMTP server accepts a handshake. A failure is
// a warning only: codes can't be delivered, but the rest of the API works.
func checkMail(ctx context.Context, mail smtp.SMTPService, host string) {
	if !mail.IsConfigured(ctx) {
		slog.Warn("SMTP not configured, verification codes will only be logged in development")
		return
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := mail.TestConnection(checkCtx); err != nil {
		slog.Warn("SMTP connection check failed", slog.Any("error", err))
		return
	}
	slog.Info("SMTP connection verified", slog.String("host", host))
}

// fatal logs err and exits. Deferred cleanups do not run.
func fatal(msg string, err error) {
	slog.Error(msg, slog.Any("error", err))
	os.Exit(1)
}

// setupLogging configures the global slog logger based on the environment.
// Development uses text format for readability. Production uses JSON for
// structured log aggregation.
func setupLogging(cfg *config.Config) {
	var handler slog.Handler

	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}

	slog.SetDefault(slog.New(handler))
}
