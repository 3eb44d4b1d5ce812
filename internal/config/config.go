// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. A .env file in the working directory is loaded first when
// present; real environment variables always win.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
)

// Supported credential store drivers.
const (
	DriverMariaDB = "mariadb"
	DriverMongo   = "mongo"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// AllowedOrigins lists the origins permitted for CORS requests.
	AllowedOrigins []string

	// TrustedProxies lists CIDRs whose X-Forwarded-For and X-Real-IP
	// headers are believed. Empty means the peer address is always used.
	TrustedProxies []string

	// Database holds credential store connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings. An empty URL selects the
	// in-process OTP cache.
	Redis RedisConfig

	// Auth holds token and OTP settings.
	Auth AuthConfig

	// SMTP holds outbound email settings used for OTP delivery.
	SMTP SMTPConfig

	// Bootstrap holds the optional first-admin account.
	Bootstrap BootstrapConfig
}

// DatabaseConfig holds credential store connection parameters. Driver
// selects between MariaDB (default) and MongoDB.
type DatabaseConfig struct {
	// Driver is "mariadb" or "mongo".
	Driver string

	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	Host string

	User     string
	Password string
	Name     string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// MigrationsPath is the directory holding golang-migrate SQL files.
	MigrationsPath string

	// MongoURI and MongoDatabase are used when Driver is "mongo".
	MongoURI      string
	MongoDatabase string
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// fields using the driver's Config.FormatDSN() so special characters in
// passwords are escaped.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	cfg.MultiStatements = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// AccessSecret signs access tokens and verified-email assertions.
	AccessSecret string

	// RefreshSecret signs refresh tokens. Must differ from AccessSecret.
	RefreshSecret string

	AccessTokenTTL        time.Duration
	RefreshTokenTTL       time.Duration
	VerifiedEmailTokenTTL time.Duration

	// OTPTTL is how long an emailed code stays valid on the server.
	OTPTTL time.Duration
}

// SMTPConfig holds outbound mail settings. Host empty means mail delivery
// is not configured.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string

	// Encryption is "starttls", "ssl", or "none".
	Encryption string
}

// BootstrapConfig describes an admin account created at startup when no
// account with that email exists yet.
type BootstrapConfig struct {
	AdminEmail    string
	AdminPassword string
	AdminName     string
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if required variables are missing. Callers treat any
// error as fatal.
func Load() (*Config, error) {
	// Missing .env is the normal case in containers.
	_ = godotenv.Load()

	cfg := &Config{
		Env:            getEnv("ENV", "development"),
		Port:           getEnvInt("PORT", 8080),
		AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", nil),
		TrustedProxies: getEnvList("TRUSTED_PROXIES", nil),

		Database: DatabaseConfig{
			Driver:          strings.ToLower(getEnv("DB_DRIVER", DriverMariaDB)),
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "campus"),
			Password:        getEnv("DB_PASSWORD", "campus"),
			Name:            getEnv("DB_NAME", "campus"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsPath:  getEnv("MIGRATIONS_PATH", "db/migrations"),
			MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
			MongoDatabase:   getEnv("MONGO_DATABASE", "campus"),
		},

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},

		Auth: AuthConfig{
			AccessSecret:          getEnv("ACCESS_TOKEN_SECRET", ""),
			RefreshSecret:         getEnv("REFRESH_TOKEN_SECRET", ""),
			AccessTokenTTL:        getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTokenTTL:       getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
			VerifiedEmailTokenTTL: getEnvDuration("VERIFIED_EMAIL_TOKEN_TTL", 15*time.Minute),
			OTPTTL:                getEnvDuration("OTP_TTL", 10*time.Minute),
		},

		SMTP: SMTPConfig{
			Host:        getEnv("SMTP_HOST", ""),
			Port:        getEnvInt("SMTP_PORT", 587),
			Username:    getEnv("SMTP_USERNAME", ""),
			Password:    getEnv("SMTP_PASSWORD", ""),
			FromAddress: getEnv("SMTP_FROM_ADDRESS", ""),
			FromName:    getEnv("SMTP_FROM_NAME", "Campus"),
			Encryption:  strings.ToLower(getEnv("SMTP_ENCRYPTION", "starttls")),
		},

		Bootstrap: BootstrapConfig{
			AdminEmail:    getEnv("BOOTSTRAP_ADMIN_EMAIL", ""),
			AdminPassword: getEnv("BOOTSTRAP_ADMIN_PASSWORD", ""),
			AdminName:     getEnv("BOOTSTRAP_ADMIN_NAME", "Administrator"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate enforces the settings the process cannot start without.
func (c *Config) validate() error {
	var errs []error

	if c.Auth.AccessSecret == "" {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET is required"))
	}
	if c.Auth.RefreshSecret == "" {
		errs = append(errs, errors.New("REFRESH_TOKEN_SECRET is required"))
	}
	if c.Auth.AccessSecret != "" && c.Auth.AccessSecret == c.Auth.RefreshSecret {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ"))
	}

	switch c.Database.Driver {
	case DriverMariaDB, DriverMongo:
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverMariaDB, DriverMongo, c.Database.Driver))
	}

	switch c.SMTP.Encryption {
	case "starttls", "ssl", "none":
	default:
		errs = append(errs, fmt.Errorf("SMTP_ENCRYPTION must be starttls, ssl or none, got %q", c.SMTP.Encryption))
	}

	if !c.IsDevelopment() {
		if len(c.Auth.AccessSecret) < 32 || len(c.Auth.RefreshSecret) < 32 {
			errs = append(errs, errors.New("token secrets must be at least 32 characters in production"))
		}
		if c.SMTP.Host == "" {
			errs = append(errs, errors.New("SMTP_HOST is required in production"))
		}
	}

	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "15m") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvList reads a comma-separated env var, dropping blank items.
func getEnvList(key string, defaultVal []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
