package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	MailProviderLog      = "log"
	MailProviderSendGrid = "sendgrid"

	minSecretBytes = 32
)

// Config holds the settings of the auth API.
type Config struct {
	Port     string
	Env      string
	LogLevel slog.Level

	DatabaseDriver string
	DatabaseDSN    string

	JWTSecret     string
	TokenTTL      time.Duration
	ResetTokenTTL time.Duration
	ResetURL      string

	MailProvider   string
	MailFrom       string
	MailFromName   string
	SendGridAPIKey string
	MailTimeout    time.Duration

	RateLimitRPS   float64
	RateLimitBurst int
}

// IsDevelopment reports whether internal error details may be returned to clients.
func (c Config) IsDevelopment() bool { return c.Env == EnvDevelopment }

// IsDevelopment reports whether internal error details may be returned to clients.
func (c WebConfig) IsDevelopment() bool { return c.Env == EnvDevelopment }

// WebConfig holds the settings of the web client.
type WebConfig struct {
	Port     string
	Env      string
	LogLevel slog.Level

	JWTSecret     string
	APIBaseURL    string
	ProductAPIURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SessionTTL   time.Duration
	CookieSecure bool
}

// Load reads the API configuration from the environment. Every problem is
// reported, not just the first one.
func Load() (Config, error) {
	var e env

	cfg := Config{
		Port:           e.str("PORT", "8080"),
		Env:            e.mode(),
		LogLevel:       e.level("LOG_LEVEL", slog.LevelInfo),
		DatabaseDriver: e.str("DATABASE_DRIVER", "mysql"),
		DatabaseDSN:    e.str("DATABASE_DSN", ""),
		JWTSecret:      e.secret("JWT_SECRET"),
		TokenTTL:       e.duration("TOKEN_TTL", 24*time.Hour),
		ResetTokenTTL:  e.duration("RESET_TOKEN_TTL", time.Hour),
		ResetURL:       e.absURL("RESET_URL", "http://localhost:3000/reset-password"),
		MailProvider:   e.str("MAIL_PROVIDER", MailProviderLog),
		MailFrom:       e.str("MAIL_FROM", "no-reply@pawpantry.local"),
		MailFromName:   e.str("MAIL_FROM_NAME", "Paw Pantry"),
		SendGridAPIKey: e.str("SENDGRID_API_KEY", ""),
		MailTimeout:    e.duration("MAIL_TIMEOUT", 10*time.Second),
		RateLimitRPS:   e.number("RATE_LIMIT_RPS", 5),
		RateLimitBurst: e.integer("RATE_LIMIT_BURST", 10),
	}

	switch cfg.DatabaseDriver {
	case "mysql", "postgres":
		if cfg.DatabaseDSN == "" {
			e.fail("DATABASE_DSN is required when DATABASE_DRIVER is %s", cfg.DatabaseDriver)
		}
	case "memory":
	default:
		e.fail("DATABASE_DRIVER must be one of mysql, postgres, memory")
	}

	switch cfg.MailProvider {
	case MailProviderLog:
	case MailProviderSendGrid:
		if cfg.SendGridAPIKey == "" {
			e.fail("SENDGRID_API_KEY is required when MAIL_PROVIDER is sendgrid")
		}
	default:
		e.fail("MAIL_PROVIDER must be one of log, sendgrid")
	}

	if cfg.TokenTTL <= 0 || cfg.ResetTokenTTL <= 0 {
		e.fail("TOKEN_TTL and RESET_TOKEN_TTL must be positive")
	}
	if cfg.RateLimitRPS <= 0 || cfg.RateLimitBurst <= 0 {
		e.fail("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}

	if err := e.err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadWeb reads the web client configuration from the environment.
func LoadWeb() (WebConfig, error) {
	var e env

	cfg := WebConfig{
		Port:          e.str("WEB_PORT", "3000"),
		Env:           e.mode(),
		LogLevel:      e.level("LOG_LEVEL", slog.LevelInfo),
		JWTSecret:     e.secret("JWT_SECRET"),
		APIBaseURL:    e.absURL("API_BASE_URL", "http://localhost:8080"),
		ProductAPIURL: e.absURL("PRODUCT_API_URL", "http://localhost:3001"),
		RedisAddr:     e.str("REDIS_ADDR", ""),
		RedisPassword: e.str("REDIS_PASSWORD", ""),
		RedisDB:       e.integer("REDIS_DB", 0),
		SessionTTL:    e.duration("SESSION_TTL", 24*time.Hour),
	}
	cfg.CookieSecure = e.boolean("COOKIE_SECURE", cfg.Env == EnvProduction)

	if cfg.RedisAddr == "" {
		e.fail("REDIS_ADDR is required")
	}
	if cfg.SessionTTL <= 0 {
		e.fail("SESSION_TTL must be positive")
	}

	if err := e.err(); err != nil {
		return WebConfig{}, err
	}
	return cfg, nil
}

// env reads typed values from the environment and collects parse errors.
type env struct {
	errs []error
}

func (e *env) fail(format string, args ...any) {
	e.errs = append(e.errs, fmt.Errorf(format, args...))
}

func (e *env) err() error {
	if len(e.errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %w", errors.Join(e.errs...))
}

func (e *env) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

// mode reads ENV. Development mode exposes error details, so it must be
// asked for explicitly.
func (e *env) mode() string {
	v := e.str("ENV", EnvProduction)
	if v != EnvDevelopment && v != EnvProduction {
		e.fail("ENV must be one of development, production")
	}
	return v
}

func (e *env) secret(key string) string {
	v := os.Getenv(key)
	switch {
	case v == "":
		e.fail("%s is required", key)
	case len(v) < minSecretBytes:
		e.fail("%s must be at least %d bytes", key, minSecretBytes)
	}
	return v
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail("%s must be a duration like 1h or 30m: %w", key, err)
		return def
	}
	return d
}

func (e *env) integer(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail("%s must be an integer", key)
		return def
	}
	return n
}

func (e *env) number(key string, def float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail("%s must be a number", key)
		return def
	}
	return f
}

func (e *env) boolean(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail("%s must be true or false", key)
		return def
	}
	return b
}

func (e *env) level(key string, def slog.Level) slog.Level {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		e.fail("%s must be one of debug, info, warn, error", key)
		return def
	}
	return l
}

func (e *env) absURL(key, def string) string {
	v := e.str(key, def)
	u, err := url.Parse(v)
	if err != nil || u.Scheme == "" || u.Host == "" {
		e.fail("%s must be an absolute URL", key)
	}
	return v
}
