package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/campus/internal/cache"
	"github.com/keyxmakerx/campus/internal/config"
	"github.com/keyxmakerx/campus/internal/plugins/audit"
	"github.com/keyxmakerx/campus/internal/plugins/auth"
	"github.com/keyxmakerx/campus/internal/plugins/smtp"
)

// otpKeyPrefix namespaces verification codes in a shared Redis.
const otpKeyPrefix = "otp:"

// RegisterRoutes builds the plugins on top of the shared stores and mounts
// their routes. This is the single place where all routes are aggregated.
func (a *App) RegisterRoutes() error {
	e := a.Echo
	cfg := a.Config

	// --- Infrastructure Routes ---

	e.GET("/healthz", a.healthz)
	e.GET("/metrics", echo.WrapHandler(a.Metrics.Handler()))

	// --- Plugin wiring ---

	users, auditRepo, err := a.repositories()
	if err != nil {
		return err
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth.AccessSecret, cfg.Auth.RefreshSecret, auth.TokenTTLs{
		Access:        cfg.Auth.AccessTokenTTL,
		Refresh:       cfg.Auth.RefreshTokenTTL,
		VerifiedEmail: cfg.Auth.VerifiedEmailTokenTTL,
	})
	if err != nil {
		return err
	}

	mail := smtp.NewSMTPService(smtpSettings(cfg.SMTP))
	auditService := audit.NewAuditService(auditRepo)

	authService := auth.NewAuthService(users, a.otpCache(), tokens, mail, auditService, a.Metrics, auth.ServiceConfig{
		OTPTTL:              cfg.Auth.OTPTTL,
		LogCodesWithoutMail: cfg.IsDevelopment(),
	})
	a.Auth = authService
	a.Mail = mail

	// --- Plugin Routes ---

	auth.RegisterRoutes(e, auth.NewHandler(authService), tokens)
	audit.RegisterRoutes(e, audit.NewHandler(auditService), auth.RequireAuth(tokens), auth.IsAdmin())

	return nil
}

// repositories returns the user and audit stores for the configured driver.
func (a *App) repositories() (auth.UserRepository, audit.AuditRepository, error) {
	switch a.Config.Database.Driver {
	case config.DriverMongo:
		if a.Mongo == nil {
			return nil, nil, errors.New("mongo driver selected but no mongo database connected")
		}
		return auth.NewMongoUserRepository(a.Mongo), audit.NewMongoAuditRepository(a.Mongo), nil
	case config.DriverMariaDB:
		if a.DB == nil {
			return nil, nil, errors.New("mariadb driver selected but no mariadb pool connected")
		}
		return auth.NewUserRepository(a.DB), audit.NewAuditRepository(a.DB), nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", a.Config.Database.Driver)
	}
}

// otpCache returns a Redis-backed cache when Redis is connected, else an
// in-process one. Codes in the in-process cache do not survive a restart
// and are not shared between replicas.
func (a *App) otpCache() cache.Cache {
	if a.Redis != nil {
		return cache.NewRedis(a.Redis, otpKeyPrefix)
	}
	return cache.NewMemory(0)
}

func smtpSettings(c config.SMTPConfig) smtp.Settings {
	return smtp.Settings{
		Host:        c.Host,
		Port:        c.Port,
		Username:    c.Username,
		Password:    c.Password,
		FromAddress: c.FromAddress,
		FromName:    c.FromName,
		Encryption:  c.Encryption,
	}
}

// healthz reports whether the connected stores answer a ping. It returns
// 503 when any of them doesn't.
func (a *App) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true
	record := func(name string, err error) {
		if err != nil {
			checks[name] = "down"
			healthy = false
			return
		}
		checks[name] = "ok"
	}

	if a.DB != nil {
		record("mariadb", a.DB.PingContext(ctx))
	}
	if a.Mongo != nil {
		record("mongo", a.Mongo.Client().Ping(ctx, nil))
	}
	if a.Redis != nil {
		record("redis", a.Redis.Ping(ctx).Err())
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	return c.JSON(code, map[string]any{"status": status, "checks": checks})
}
