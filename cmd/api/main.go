package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rgdevment/sms-firewall/internal/app"
	"github.com/rgdevment/sms-firewall/internal/config"
	httpHandler "github.com/rgdevment/sms-firewall/internal/platform/http"
	middleware "github.com/rgdevment/sms-firewall/internal/platform/http/middleware"
	"github.com/rgdevment/sms-firewall/internal/platform/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	logger, err := app.NewLogger(cfg)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.App.MasterKey == "" {
		logger.Fatal("❌ API_MASTER_KEY is required")
	}
	if !cfg.DotEnvLoaded {
		logger.Info("no .env file found, using system environment variables")
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("sms-firewall exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("🛡️  starting SMS scam firewall", zap.String("env", cfg.App.Env))

	repo, err := app.OpenRepository(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer repo.Close()

	stores, err := app.NewSecurityStores(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("security stores: %w", err)
	}
	defer stores.Close()

	sc, err := app.NewScorer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("scorer: %w", err)
	}
	sender, err := app.NewSender(cfg, logger)
	if err != nil {
		return fmt.Errorf("sms sender: %w", err)
	}
	notifiers, _, err := app.NewNotifiers(cfg, repo, sender, logger)
	if err != nil {
		return fmt.Errorf("notifiers: %w", err)
	}

	intake := app.NewIntake(cfg, repo, sc, sender, notifiers, logger)
	gate := app.NewGate(cfg, stores, logger)
	handler := httpHandler.NewHandler(gate, intake, repo, cfg.App.MasterKey, logger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	if cfg.App.TrustProxyHeaders {
		r.Use(chiMiddleware.RealIP)
	}
	r.Use(middleware.RequestLogger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(metrics.Middleware)

	handler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              cfg.App.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("🚀 listening", zap.String("addr", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", zap.Error(err))
	}

	// Let in-flight alerts finish before storage closes.
	intake.Wait()
	logger.Info("✅ stopped")
	return nil
}
