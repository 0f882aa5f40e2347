package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rgdevment/sms-firewall/internal/domain"
	"github.com/rgdevment/sms-firewall/internal/platform/storage"
	"github.com/rgdevment/sms-firewall/internal/service"
)

// Schema is applied by Migrate. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS blacklist (
  id           BIGSERIAL PRIMARY KEY,
  entity_type  TEXT        NOT NULL CHECK (entity_type IN ('phone','url')),
  entity_value TEXT        NOT NULL,
  hit_count    INTEGER     NOT NULL DEFAULT 1,
  first_seen   TIMESTAMPTZ NOT NULL,
  last_seen    TIMESTAMPTZ NOT NULL,
  auto_blocked BOOLEAN     NOT NULL DEFAULT FALSE,
  reason       TEXT,
  UNIQUE (entity_type, entity_value)
);
CREATE TABLE IF NOT EXISTS scam_reports (
  id              UUID        PRIMARY KEY,
  reporter_phone  TEXT        NOT NULL,
  original_sender TEXT,
  message_text    TEXT        NOT NULL,
  score           INTEGER     NOT NULL,
  analysis_json   JSONB,
  detected_urls   TEXT[]      NOT NULL DEFAULT '{}',
  is_campaign     BOOLEAN     NOT NULL DEFAULT FALSE,
  created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_created ON scam_reports (created_at DESC);
CREATE TABLE IF NOT EXISTS subscribers (
  phone_number  TEXT        PRIMARY KEY,
  region        TEXT,
  is_active     BOOLEAN     NOT NULL DEFAULT TRUE,
  subscribed_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS campaigns (
  id                  UUID        PRIMARY KEY,
  campaign_name       TEXT        NOT NULL,
  pattern_description TEXT,
  affected_count      INTEGER     NOT NULL DEFAULT 0,
  related_urls        TEXT[]      NOT NULL DEFAULT '{}',
  related_phones      TEXT[]      NOT NULL DEFAULT '{}',
  detected_at         TIMESTAMPTZ NOT NULL
);
`

type postgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository wraps an open pool.
func NewPostgresRepository(db *pgxpool.Pool) service.Repository {
	return &postgresRepository{db: db}
}

// Connect opens a pool and pings it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// Migrate applies Schema.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (r *postgresRepository) Close() error {
	r.db.Close()
	return nil
}

func (r *postgresRepository) UpsertBlacklist(ctx context.Context, t domain.EntityType, value string, autoBlocked bool, reason string) (*domain.BlacklistEntry, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO blacklist (entity_type, entity_value, hit_count, first_seen, last_seen, auto_blocked, reason)
		VALUES ($1, $2, 1, $3, $3, $4, NULLIF($5, ''))
		ON CONFLICT (entity_type, entity_value) DO UPDATE SET
			hit_count    = blacklist.hit_count + 1,
			last_seen    = EXCLUDED.last_seen,
			auto_blocked = blacklist.auto_blocked OR EXCLUDED.auto_blocked,
			reason       = COALESCE(EXCLUDED.reason, blacklist.reason)
		RETURNING entity_type, entity_value, hit_count, first_seen, last_seen, auto_blocked, reason`

	e, err := scanEntry(r.db.QueryRow(ctx, query, string(t), value, now, autoBlocked, reason))
	if err != nil {
		return nil, fmt.Errorf("postgres: upsert blacklist: %w", err)
	}
	return e, nil
}

func (r *postgresRepository) GetBlacklistEntry(ctx context.Context, t domain.EntityType, value string) (*domain.BlacklistEntry, error) {
	query := `SELECT entity_type, entity_value, hit_count, first_seen, last_seen, auto_blocked, reason
	          FROM blacklist WHERE entity_type = $1 AND entity_value = $2`

	e, err := scanEntry(r.db.QueryRow(ctx, query, string(t), value))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get blacklist entry: %w", err)
	}
	return e, nil
}

func (r *postgresRepository) IsBlacklisted(ctx context.Context, t domain.EntityType, value string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM blacklist WHERE entity_type = $1 AND entity_value = $2)`,
		string(t), value,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: is blacklisted: %w", err)
	}
	return exists, nil
}

func (r *postgresRepository) SaveReport(ctx context.Context, rep *domain.ScamReport) error {
	analysis, err := storage.EncodeAnalysis(rep.Analysis)
	if err != nil {
		return fmt.Errorf("postgres: save report: %w", err)
	}
	urls := rep.DetectedURLs
	if urls == nil {
		urls = []string{}
	}

	query := `
		INSERT INTO scam_reports (id, reporter_phone, original_sender, message_text, score, analysis_json, detected_urls, is_campaign, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, '')::jsonb, $7, $8, $9)`

	_, err = r.db.Exec(ctx, query,
		rep.ID, rep.ReporterPhone.String(), rep.OriginalSender.String(), rep.MessageText,
		rep.Score, analysis, urls, rep.IsCampaign, rep.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: save report: %w", err)
	}
	return nil
}

func (r *postgresRepository) ListRecentReports(ctx context.Context, since time.Time, limit int) ([]*domain.ScamReport, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, reporter_phone, COALESCE(original_sender, ''), message_text, score,
	                 COALESCE(analysis_json::text, ''), detected_urls, is_campaign, created_at
	          FROM scam_reports
	          WHERE created_at >= $1
	          ORDER BY created_at DESC
	          LIMIT $2`

	rows, err := r.db.Query(ctx, query, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list reports: %w", err)
	}
	defer rows.Close()

	var out []*domain.ScamReport
	for rows.Next() {
		var (
			rep              domain.ScamReport
			reporter, sender string
			analysis         string
		)
		if err := rows.Scan(&rep.ID, &reporter, &sender, &rep.MessageText, &rep.Score,
			&analysis, &rep.DetectedURLs, &rep.IsCampaign, &rep.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan report: %w", err)
		}
		rep.ReporterPhone = domain.Phone(reporter)
		rep.OriginalSender = domain.Phone(sender)
		if rep.Analysis, err = storage.DecodeAnalysis(analysis); err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		out = append(out, &rep)
	}
	return out, rows.Err()
}

func (r *postgresRepository) AddSubscriber(ctx context.Context, s *domain.Subscriber) error {
	if s.SubscribedAt.IsZero() {
		s.SubscribedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO subscribers (phone_number, region, is_active, subscribed_at)
		VALUES ($1, NULLIF($2, ''), TRUE, $3)
		ON CONFLICT (phone_number) DO UPDATE SET
			is_active = TRUE,
			region    = COALESCE(EXCLUDED.region, subscribers.region)`

	if _, err := r.db.Exec(ctx, query, s.Phone.String(), s.Region, s.SubscribedAt); err != nil {
		return fmt.Errorf("postgres: add subscriber: %w", err)
	}
	s.Active = true
	return nil
}

func (r *postgresRepository) ListSubscribers(ctx context.Context, region string) ([]*domain.Subscriber, error) {
	query := `SELECT phone_number, COALESCE(region, ''), subscribed_at
	          FROM subscribers
	          WHERE is_active AND ($1 = '' OR region = $1)
	          ORDER BY subscribed_at`

	rows, err := r.db.Query(ctx, query, region)
	if err != nil {
		return nil, fmt.Errorf("postgres: list subscribers: %w", err)
	}
	defer rows.Close()

	var out []*domain.Subscriber
	for rows.Next() {
		var (
			s     domain.Subscriber
			phone string
		)
		if err := rows.Scan(&phone, &s.Region, &s.SubscribedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan subscriber: %w", err)
		}
		s.Phone = domain.Phone(phone)
		s.Active = true
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (r *postgresRepository) SaveCampaign(ctx context.Context, c *domain.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.DetectedAt.IsZero() {
		c.DetectedAt = time.Now().UTC()
	}
	urls := c.RelatedURLs
	if urls == nil {
		urls = []string{}
	}
	query := `
		INSERT INTO campaigns (id, campaign_name, pattern_description, affected_count, related_urls, related_phones, detected_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			affected_count = EXCLUDED.affected_count,
			related_urls   = EXCLUDED.related_urls,
			related_phones = EXCLUDED.related_phones,
			detected_at    = EXCLUDED.detected_at`

	_, err := r.db.Exec(ctx, query,
		c.ID, c.Name, c.Pattern, c.AffectedCount, urls, storage.PhoneStrings(c.RelatedPhones), c.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save campaign: %w", err)
	}
	return nil
}

func scanEntry(row pgx.Row) (*domain.BlacklistEntry, error) {
	var (
		e      domain.BlacklistEntry
		t      string
		reason *string
	)
	if err := row.Scan(&t, &e.EntityValue, &e.HitCount, &e.FirstSeen, &e.LastSeen, &e.AutoBlocked, &reason); err != nil {
		return nil, err
	}
	e.EntityType = domain.EntityType(t)
	if reason != nil {
		e.Reason = *reason
	}
	e.FirstSeen = e.FirstSeen.UTC()
	e.LastSeen = e.LastSeen.UTC()
	return &e, nil
}
