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
	"github.com/pawpantry/pawpantry-go/internal/web"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	cfg, err := config.LoadWeb()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Env, cfg.LogLevel))

	redisClient, err := newRedisClient(cfg)
	if err != nil {
		slog.Error("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// Only used to verify tokens, so the TTL does not matter here.
	tokens, err := crypto.NewTokenManager(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		slog.Error("failed to create token manager", "error", err)
		os.Exit(1)
	}

	products, err := web.NewProductsProxy(cfg.ProductAPIURL)
	if err != nil {
		slog.Error("failed to create product proxy", "error", err)
		os.Exit(1)
	}

	sessions := web.NewRedisSessionStore(redisClient, cfg.SessionTTL)
	api := web.NewAPIClient(cfg.APIBaseURL, nil)

	r := web.NewRouter(web.RouterConfig{
		Gate:     web.NewGate(sessions, tokens, cfg.CookieSecure),
		Pages:    web.NewPageHandler(api, sessions, cfg.SessionTTL, cfg.CookieSecure),
		Products: products,
		DevMode:  cfg.IsDevelopment(),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("web client starting", "port", cfg.Port, "env", cfg.Env, "api", cfg.APIBaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down web client")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("web client stopped")
}

func newLogger(env string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if env == config.EnvProduction {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func newRedisClient(cfg config.WebConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
