package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pawpantry/pawpantry-go/internal/config"
	"github.com/pawpantry/pawpantry-go/internal/crypto"
	"github.com/pawpantry/pawpantry-go/internal/handler"
	"github.com/pawpantry/pawpantry-go/internal/mail"
	"github.com/pawpantry/pawpantry-go/internal/repository"
	"github.com/pawpantry/pawpantry-go/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Env, cfg.LogLevel))

	tokens, err := crypto.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		slog.Error("failed to create token manager", "error", err)
		os.Exit(1)
	}

	users, closeStore, err := newUserStore(cfg)
	if err != nil {
		slog.Error("failed to open user store", "driver", cfg.DatabaseDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	authService := service.NewAuthService(users, tokens, newMailer(cfg), service.AuthConfig{
		ResetTokenTTL: cfg.ResetTokenTTL,
		ResetURL:      cfg.ResetURL,
		MailTimeout:   cfg.MailTimeout,
	})

	r := handler.NewRouter(handler.RouterConfig{
		Auth:           handler.NewAuthHandler(authService, cfg.IsDevelopment()),
		Verifier:       tokens,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		DevMode:        cfg.IsDevelopment(),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port, "env", cfg.Env, "driver", cfg.DatabaseDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}

func newLogger(env string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if env == config.EnvProduction {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func newMailer(cfg config.Config) mail.Sender {
	if cfg.MailProvider == config.MailProviderSendGrid {
		return mail.NewSendGridSender(cfg.SendGridAPIKey, cfg.MailFrom, cfg.MailFromName)
	}
	slog.Warn("emails are logged, not delivered", "provider", cfg.MailProvider)
	return mail.NewLogSender(nil)
}

// newUserStore opens the configured store and applies pending migrations.
func newUserStore(cfg config.Config) (service.UserStore, func(), error) {
	if cfg.DatabaseDriver == repository.DriverMemory {
		slog.Warn("using in-memory user store, data is lost on restart")
		return repository.NewMemoryUserRepository(), func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := repository.NewDB(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := repository.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}

	closeDB := func() {
		if err := db.Close(); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}
	return repository.NewUserRepository(db), closeDB, nil
}
