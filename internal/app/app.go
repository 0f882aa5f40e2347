// Package app builds the runtime components shared by the api and worker
// binaries from a loaded config.
package app

import (
	"context"
	"fmt"

	"github.com/rgdevment/sms-firewall/internal/config"
	"github.com/rgdevment/sms-firewall/internal/platform/notify"
	"github.com/rgdevment/sms-firewall/internal/platform/scorer"
	"github.com/rgdevment/sms-firewall/internal/platform/sms"
	"github.com/rgdevment/sms-firewall/internal/platform/storage/postgres"
	"github.com/rgdevment/sms-firewall/internal/platform/storage/scylla"
	"github.com/rgdevment/sms-firewall/internal/platform/storage/sqlite"
	"github.com/rgdevment/sms-firewall/internal/security"
	"github.com/rgdevment/sms-firewall/internal/service"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a production JSON logger in production and a console
// logger otherwise, at LOG_LEVEL.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("app: LOG_LEVEL: %w", err)
	}
	zc := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// OpenRepository connects to the configured backend and makes sure its
// schema exists.
func OpenRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (service.Repository, error) {
	switch cfg.Storage.Backend {
	case config.StoragePostgres:
		pool, err := postgres.Connect(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("storage ready", zap.String("backend", "postgres"))
		return postgres.NewPostgresRepository(pool), nil

	case config.StorageScylla:
		session, err := scylla.Connect(cfg.Storage.ScyllaKeyspace, cfg.Storage.ScyllaHost)
		if err != nil {
			return nil, err
		}
		if err := scylla.Migrate(ctx, session); err != nil {
			session.Close()
			return nil, err
		}
		logger.Info("storage ready",
			zap.String("backend", "scylla"),
			zap.String("keyspace", cfg.Storage.ScyllaKeyspace),
		)
		return scylla.NewScyllaRepository(session), nil

	default:
		repo, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("storage ready", zap.String("backend", "sqlite"), zap.String("path", cfg.Storage.SQLitePath))
		return repo, nil
	}
}

// SecurityStores holds the replay and rate-limit state. Close releases the
// Redis connection when one is used.
type SecurityStores struct {
	Nonces security.NonceStore
	Rates  security.RateStore
	Close  func() error
}

// NewSecurityStores uses Redis when REDIS_ADDR is set so several instances
// share state, and process memory otherwise.
func NewSecurityStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*SecurityStores, error) {
	if cfg.Redis.Addr == "" {
		logger.Info("security state in memory", zap.Int("replay_cache_size", cfg.Security.ReplayCacheSize))
		return &SecurityStores{
			Nonces: security.NewMemoryNonceStore(cfg.Security.ReplayCacheSize, cfg.Security.ReplayTTL),
			Rates:  security.NewMemoryRateStore(),
			Close:  func() error { return nil },
		}, nil
	}

	rdb, err := security.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	logger.Info("security state in redis", zap.String("addr", cfg.Redis.Addr))
	return &SecurityStores{
		Nonces: security.NewRedisNonceStore(rdb, "", cfg.Security.ReplayTTL),
		Rates:  security.NewRedisRateStore(rdb, ""),
		Close:  rdb.Close,
	}, nil
}

// NewGate assembles the webhook admission checks.
func NewGate(cfg *config.Config, stores *SecurityStores, logger *zap.Logger) *security.Gate {
	if cfg.Security.SignatureEnabled && cfg.Security.WebhookSecret == "" {
		logger.Warn("webhook signature check enabled but AT_WEBHOOK_SECRET is empty; signatures are not verified")
	}
	if cfg.Security.IPAllowListEnabled && len(cfg.Security.AllowList) == 0 {
		logger.Warn("IP allow-list enabled but AT_WEBHOOK_IP_WHITELIST is empty; all sources allowed")
	}
	return security.NewGate(security.GateConfig{
		Secret:                cfg.Security.WebhookSecret,
		SignatureEnabled:      cfg.Security.SignatureEnabled,
		ReplayEnabled:         cfg.Security.ReplayEnabled,
		TimestampCheckEnabled: cfg.Security.TimestampCheckEnabled,
		MaxRequestAge:         cfg.Security.ReplayMaxAge,
		IPAllowListEnabled:    cfg.Security.IPAllowListEnabled,
		AllowList:             cfg.Security.AllowList,
		RateLimitEnabled:      cfg.RateLimit.Enabled,
	},
		security.NewReplayGuard(stores.Nonces),
		security.NewRateLimiter(stores.Rates, cfg.RateLimit.PerMinute),
		logger,
	)
}

// NewSender picks Africa's Talking when an API key is configured and the
// logging no-op sender otherwise.
func NewSender(cfg *config.Config, logger *zap.Logger) (service.MessageSender, error) {
	if cfg.SMS.APIKey == "" {
		logger.Warn("AT_API_KEY not set, outbound SMS disabled")
		return sms.NewNoop(logger), nil
	}
	at, err := sms.NewAfricasTalking(sms.Config{
		Username:  cfg.SMS.Username,
		APIKey:    cfg.SMS.APIKey,
		Shortcode: cfg.SMS.Shortcode,
		SendRPS:   cfg.SMS.SendRPS,
	}, nil, logger)
	if err != nil {
		return nil, err
	}
	return at, nil
}

func NewScorer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (service.Scorer, error) {
	return scorer.New(ctx, scorer.Options{
		Backend:         cfg.Scorer.Backend,
		GeminiAPIKey:    cfg.Scorer.GeminiAPIKey,
		Model:           cfg.Scorer.Model,
		ModelCandidates: cfg.Scorer.ModelCandidates,
		GCPProject:      cfg.Scorer.GCPProject,
		GCPLocation:     cfg.Scorer.GCPLocation,
	}, logger)
}

// NewNotifiers returns the enabled alert channels. The subscriber alerter is
// returned on its own too, for campaign alerts; it is nil when bulk alerts
// are off.
func NewNotifiers(cfg *config.Config, repo service.Repository, sender service.MessageSender, logger *zap.Logger) ([]service.Notifier, *notify.SubscriberAlerter, error) {
	var notifiers []service.Notifier
	var alerter *notify.SubscriberAlerter

	if cfg.Alerts.BulkAlertsEnabled {
		alerter = notify.NewSubscriberAlerter(repo, sender, logger)
		notifiers = append(notifiers, alerter)
	}
	if cfg.Alerts.SocialEnabled {
		poster, err := notify.NewSocialPoster(notify.SocialConfig{WebhookURL: cfg.Alerts.SocialWebhookURL}, logger)
		if err != nil {
			return nil, nil, err
		}
		notifiers = append(notifiers, poster)
	}
	return notifiers, alerter, nil
}

// NewIntake wires the pipeline.
func NewIntake(cfg *config.Config, repo service.Repository, sc service.Scorer, sender service.MessageSender, notifiers []service.Notifier, logger *zap.Logger) service.Intake {
	engine := service.NewBlacklistEngine(repo, cfg.Pipeline.PhoneBlockThreshold, cfg.Pipeline.URLBlockThreshold, logger)
	return service.NewIntakeService(service.IntakeConfig{
		AlertThreshold:   cfg.Pipeline.AlertThreshold,
		AutoBlockEnabled: cfg.Pipeline.BlacklistEnabled,
		ScorerTimeout:    cfg.Scorer.Timeout,
		StoreTimeout:     cfg.Pipeline.StoreTimeout,
	}, repo, engine, sc, sender, notifiers, logger)
}
