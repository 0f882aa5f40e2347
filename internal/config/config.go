// Package config loads runtime settings from .env and the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends.
const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageScylla   = "scylla"
)

type Config struct {
	App       AppConfig
	Storage   StorageConfig
	Redis     RedisConfig
	SMS       SMSConfig
	Scorer    ScorerConfig
	Pipeline  PipelineConfig
	Alerts    AlertsConfig
	Security  SecurityConfig
	RateLimit RateLimitConfig

	// DotEnvLoaded reports whether a .env file was found.
	DotEnvLoaded bool
}

type AppConfig struct {
	Env               string
	Port              string
	LogLevel          string
	MasterKey         string
	TrustProxyHeaders bool
}

type StorageConfig struct {
	Backend        string
	SQLitePath     string
	DatabaseURL    string
	ScyllaHost     string
	ScyllaKeyspace string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SMSConfig struct {
	Username  string
	APIKey    string
	Shortcode string
	SendRPS   float64
}

type ScorerConfig struct {
	Backend         string
	GeminiAPIKey    string
	Model           string
	ModelCandidates []string
	GCPProject      string
	GCPLocation     string
	Timeout         time.Duration
}

type PipelineConfig struct {
	StoreTimeout        time.Duration
	PhoneBlockThreshold int
	URLBlockThreshold   int
	AlertThreshold      int
	BlacklistEnabled    bool
	CampaignDetection   bool
	CampaignMinReports  int
	CampaignLookback    time.Duration
}

type AlertsConfig struct {
	BulkAlertsEnabled bool
	SocialEnabled     bool
	SocialWebhookURL  string
}

type SecurityConfig struct {
	WebhookSecret         string
	SignatureEnabled      bool
	IPAllowListEnabled    bool
	AllowList             []string
	ReplayEnabled         bool
	ReplayCacheSize       int
	ReplayTTL             time.Duration
	TimestampCheckEnabled bool
	ReplayMaxAge          time.Duration
}

type RateLimitConfig struct {
	Enabled   bool
	PerMinute int
}

// Load reads .env (if present) without overriding variables that are
// already set, then resolves every key through viper with its default.
func Load() (*Config, error) {
	loaded := godotenv.Load() == nil

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Env:               v.GetString("APP_ENV"),
			Port:              v.GetString("HTTP_PORT"),
			LogLevel:          v.GetString("LOG_LEVEL"),
			MasterKey:         v.GetString("API_MASTER_KEY"),
			TrustProxyHeaders: v.GetBool("TRUST_PROXY_HEADERS"),
		},
		Storage: StorageConfig{
			Backend:        strings.ToLower(v.GetString("STORAGE_BACKEND")),
			SQLitePath:     v.GetString("SQLITE_PATH"),
			DatabaseURL:    v.GetString("DATABASE_URL"),
			ScyllaHost:     v.GetString("SCYLLA_HOST"),
			ScyllaKeyspace: v.GetString("SCYLLA_KEYSPACE"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		SMS: SMSConfig{
			Username:  v.GetString("AT_USERNAME"),
			APIKey:    v.GetString("AT_API_KEY"),
			Shortcode: v.GetString("AT_SHORTCODE"),
			SendRPS:   v.GetFloat64("AT_SEND_RPS"),
		},
		Scorer: ScorerConfig{
			Backend:         strings.ToLower(v.GetString("SCORER_BACKEND")),
			GeminiAPIKey:    v.GetString("GEMINI_API_KEY"),
			Model:           v.GetString("GEMINI_MODEL"),
			ModelCandidates: splitList(v.GetString("GEMINI_MODEL_CANDIDATES")),
			GCPProject:      v.GetString("GCP_PROJECT_ID"),
			GCPLocation:     v.GetString("GCP_LOCATION"),
			Timeout:         v.GetDuration("SCORER_TIMEOUT"),
		},
		Pipeline: PipelineConfig{
			StoreTimeout:        v.GetDuration("STORE_TIMEOUT"),
			PhoneBlockThreshold: v.GetInt("BLACKLIST_SCORE_THRESHOLD"),
			URLBlockThreshold:   v.GetInt("URL_BLACKLIST_SCORE_THRESHOLD"),
			AlertThreshold:      v.GetInt("ALERT_SCORE_THRESHOLD"),
			BlacklistEnabled:    v.GetBool("ENABLE_BLACKLIST"),
			CampaignDetection:   v.GetBool("ENABLE_CAMPAIGN_DETECTION"),
			CampaignMinReports:  v.GetInt("CAMPAIGN_MIN_REPORTS"),
			CampaignLookback:    v.GetDuration("CAMPAIGN_LOOKBACK"),
		},
		Alerts: AlertsConfig{
			BulkAlertsEnabled: v.GetBool("ENABLE_BULK_ALERTS"),
			SocialEnabled:     v.GetBool("ENABLE_SOCIAL_MEDIA"),
			SocialWebhookURL:  v.GetString("SOCIAL_WEBHOOK_URL"),
		},
		Security: SecurityConfig{
			WebhookSecret:         v.GetString("AT_WEBHOOK_SECRET"),
			SignatureEnabled:      v.GetBool("ENABLE_WEBHOOK_SIGNATURE"),
			IPAllowListEnabled:    v.GetBool("ENABLE_IP_WHITELIST"),
			AllowList:             splitList(v.GetString("AT_WEBHOOK_IP_WHITELIST")),
			ReplayEnabled:         v.GetBool("ENABLE_REPLAY_PROTECTION"),
			ReplayCacheSize:       v.GetInt("REPLAY_CACHE_SIZE"),
			ReplayTTL:             v.GetDuration("REPLAY_TTL"),
			TimestampCheckEnabled: v.GetBool("ENABLE_TIMESTAMP_CHECK"),
			ReplayMaxAge:          v.GetDuration("REPLAY_MAX_AGE"),
		},
		RateLimit: RateLimitConfig{
			Enabled:   v.GetBool("RATE_LIMIT_ENABLED"),
			PerMinute: v.GetInt("RATE_LIMIT_PER_MINUTE"),
		},
		DotEnvLoaded: loaded,
	}

	if !strings.HasPrefix(cfg.App.Port, ":") {
		cfg.App.Port = ":" + cfg.App.Port
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_PORT", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("TRUST_PROXY_HEADERS", false)

	v.SetDefault("STORAGE_BACKEND", StorageSQLite)
	v.SetDefault("SQLITE_PATH", "sms_firewall.db")
	v.SetDefault("SCYLLA_HOST", "localhost")
	v.SetDefault("SCYLLA_KEYSPACE", "sms_firewall")

	v.SetDefault("AT_USERNAME", "sandbox")
	v.SetDefault("AT_SEND_RPS", 5)

	v.SetDefault("SCORER_BACKEND", "gemini")
	v.SetDefault("GEMINI_MODEL", "gemini-2.0-flash")
	v.SetDefault("GCP_LOCATION", "us-central1")
	v.SetDefault("SCORER_TIMEOUT", 20*time.Second)

	v.SetDefault("STORE_TIMEOUT", 5*time.Second)
	v.SetDefault("BLACKLIST_SCORE_THRESHOLD", 8)
	v.SetDefault("URL_BLACKLIST_SCORE_THRESHOLD", 9)
	v.SetDefault("ALERT_SCORE_THRESHOLD", 8)
	v.SetDefault("ENABLE_BLACKLIST", true)
	v.SetDefault("ENABLE_CAMPAIGN_DETECTION", true)
	v.SetDefault("CAMPAIGN_MIN_REPORTS", 5)
	v.SetDefault("CAMPAIGN_LOOKBACK", 24*time.Hour)

	v.SetDefault("ENABLE_BULK_ALERTS", true)
	v.SetDefault("ENABLE_SOCIAL_MEDIA", false)

	v.SetDefault("ENABLE_WEBHOOK_SIGNATURE", true)
	v.SetDefault("ENABLE_IP_WHITELIST", true)
	v.SetDefault("ENABLE_REPLAY_PROTECTION", true)
	v.SetDefault("REPLAY_CACHE_SIZE", 10000)
	v.SetDefault("REPLAY_TTL", 24*time.Hour)
	v.SetDefault("ENABLE_TIMESTAMP_CHECK", false)
	v.SetDefault("REPLAY_MAX_AGE", 5*time.Minute)

	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 10)
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case StorageSQLite, StorageScylla:
	case StoragePostgres:
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	if c.Alerts.SocialEnabled && c.Alerts.SocialWebhookURL == "" {
		return fmt.Errorf("config: SOCIAL_WEBHOOK_URL is required when ENABLE_SOCIAL_MEDIA is set")
	}
	if c.RateLimit.PerMinute <= 0 {
		return fmt.Errorf("config: RATE_LIMIT_PER_MINUTE must be positive")
	}
	return nil
}

// IsProduction reports whether APP_ENV selects production behaviour.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, "production")
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
