// Package app is the application bootstrap and dependency injection root.
// It holds the shared infrastructure (credential store, OTP cache backend,
// Echo instance, metrics registry) and wires the plugins together.
package app

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/keyxmakerx/campus/internal/apperror"
	"github.com/keyxmakerx/campus/internal/config"
	"github.com/keyxmakerx/campus/internal/metrics"
	"github.com/keyxmakerx/campus/internal/middleware"
	"github.com/keyxmakerx/campus/internal/plugins/auth"
	"github.com/keyxmakerx/campus/internal/plugins/smtp"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the MariaDB pool. Nil when the Mongo driver is selected.
	DB *sql.DB

	// Mongo is the Mongo database. Nil when the MariaDB driver is selected.
	Mongo *mongo.Database

	// Redis backs the OTP cache. Nil selects the in-process cache.
	Redis *redis.Client

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	// Metrics holds the Prometheus collectors served on /metrics.
	Metrics *metrics.Metrics

	// Auth is the auth service, available after RegisterRoutes. main uses
	// it to create the bootstrap admin.
	Auth auth.AuthService

	// Mail is the outbound mail service, available after RegisterRoutes.
	Mail smtp.SMTPService
}

// New creates a new App with the given stores and configures the Echo
// server with global middleware and error handling. Exactly one of db and
// mdb is expected to be non-nil; rdb may be nil.
func New(cfg *config.Config, db *sql.DB, mdb *mongo.Database, rdb *redis.Client) *App {
	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	// Without trusted proxies c.RealIP() is the peer address, which is what
	// rate limiting and audit entries should see when nothing sits in front.
	middleware.TrustedProxies(e, cfg.TrustedProxies)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app := &App{
		Config:  cfg,
		DB:      db,
		Mongo:   mdb,
		Redis:   rdb,
		Echo:    e,
		Metrics: metrics.New(reg),
	}

	app.setupMiddleware()

	// Register the custom error handler that maps AppErrors to HTTP responses.
	e.HTTPErrorHandler = app.errorHandler

	return app
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first.
func (a *App) setupMiddleware() {
	// Panic recovery -- must be outermost to catch panics from all other middleware.
	a.Echo.Use(middleware.Recovery())

	a.Echo.Use(middleware.RequestLogger())

	// Metrics sit inside the logger so both see the final status.
	a.Echo.Use(a.Metrics.Middleware())

	a.Echo.Use(middleware.SecurityHeaders())

	// CORS -- only browser clients need it; mobile apps send no Origin.
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: a.Config.AllowedOrigins,
	}))
}

// errorResponse is the JSON body of every error.
type errorResponse struct {
	Error   string `json:"error"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// errorHandler is the custom Echo error handler. Every error becomes a JSON
// body; AppErrors carry their own status and type, Echo's router errors
// keep their status, and anything else is a 500 with a generic message.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	typ := apperror.TypeInternal
	message := apperror.SafeMessage(err)

	var appErr *apperror.AppError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		code = appErr.Code
		typ = appErr.Type

		// Log internal errors with the underlying cause.
		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}
	case errors.As(err, &echoErr):
		code = echoErr.Code
		typ = echoErrorType(code)
		if msg, ok := echoErr.Message.(string); ok {
			message = msg
		} else {
			message = http.StatusText(code)
		}
	default:
		// Truly unexpected error -- log it.
		slog.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Request().URL.Path),
		)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, errorResponse{
		Error:   http.StatusText(code),
		Type:    typ,
		Message: message,
	})
}

// echoErrorType maps the router's own errors onto the error taxonomy.
func echoErrorType(code int) string {
	switch code {
	case http.StatusNotFound:
		return apperror.TypeNotFound
	case http.StatusUnauthorized:
		return apperror.TypeUnauthenticated
	case http.StatusForbidden:
		return apperror.TypeForbidden
	case http.StatusTooManyRequests:
		return apperror.TypeTooManyRequests
	}
	if code < http.StatusInternalServerError {
		return apperror.TypeInvalidInput
	}
	return apperror.TypeInternal
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting campus server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
	)
	return a.Echo.Start(addr)
}
