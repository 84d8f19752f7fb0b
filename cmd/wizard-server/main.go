// cmd/wizard-server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"advance-wizard/internal/common/config"
	"advance-wizard/internal/common/logger"
	"advance-wizard/internal/gateway"
	"advance-wizard/internal/notify"
	"advance-wizard/internal/server"
	"advance-wizard/internal/wizard"
	"advance-wizard/internal/wizard/session"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting wizard server...",
		zap.String("environment", cfg.App.Environment),
		zap.Int("port", cfg.Server.Port),
	)

	ctx := context.Background()
	ttl := time.Duration(cfg.Session.TTLMinutes) * time.Minute

	// --- Session repository (memory or Redis) ---
	var repo session.Repository
	if cfg.Session.Backend == "redis" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		err = retryWithBackoff(func() error {
			return client.Ping(ctx).Err()
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer client.Close()
		zapLog.Info("Redis connected successfully")
		repo = session.NewRedisRepository(client, ttl, log)
	} else {
		repo = session.NewMemoryRepository(ttl)
		zapLog.Info("Using in-memory session repository")
	}
	store := session.NewStore(repo, log)

	// --- Remote gateway and notification sink ---
	gw := gateway.NewClient(cfg.SOAP, log)
	notifier := notify.NewWebhookNotifier(cfg.Webhook, log)
	if cfg.Webhook.URL == "" {
		zapLog.Info("Webhook sink disabled (no URL configured)")
	}

	if cfg.Bypass.Enabled {
		zapLog.Warn("Test bypass ENABLED", zap.String("phone", cfg.Bypass.Phone))
	}

	orch := wizard.NewOrchestrator(gw, notifier, cfg.Bypass, log)
	router := server.NewRouter(cfg, store, orch, log)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining connections...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error during shutdown", zap.Error(err))
	}

	zapLog.Info("Wizard server stopped gracefully")
}
