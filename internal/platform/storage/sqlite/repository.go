package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rgdevment/sms-firewall/internal/domain"
	"github.com/rgdevment/sms-firewall/internal/platform/storage"
	"github.com/rgdevment/sms-firewall/internal/service"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS blacklist (
  id           INTEGER PRIMARY KEY,
  entity_type  TEXT    NOT NULL CHECK (entity_type IN ('phone','url')),
  entity_value TEXT    NOT NULL,
  hit_count    INTEGER NOT NULL DEFAULT 1,
  first_seen   INTEGER NOT NULL,
  last_seen    INTEGER NOT NULL,
  auto_blocked INTEGER NOT NULL DEFAULT 0 CHECK (auto_blocked IN (0,1)),
  reason       TEXT,
  UNIQUE(entity_type, entity_value)
);
CREATE TABLE IF NOT EXISTS scam_reports (
  id              TEXT    PRIMARY KEY,
  reporter_phone  TEXT    NOT NULL,
  original_sender TEXT,
  message_text    TEXT    NOT NULL,
  score           INTEGER NOT NULL,
  analysis_json   TEXT,
  detected_urls   TEXT    NOT NULL DEFAULT '[]',
  is_campaign     INTEGER NOT NULL DEFAULT 0,
  created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_created ON scam_reports(created_at);
CREATE INDEX IF NOT EXISTS idx_reports_sender ON scam_reports(original_sender);
CREATE TABLE IF NOT EXISTS subscribers (
  phone_number  TEXT    PRIMARY KEY,
  region        TEXT,
  is_active     INTEGER NOT NULL DEFAULT 1,
  subscribed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_subscribers_active ON subscribers(is_active);
CREATE TABLE IF NOT EXISTS campaigns (
  id                  TEXT    PRIMARY KEY,
  campaign_name       TEXT    NOT NULL,
  pattern_description TEXT,
  affected_count      INTEGER NOT NULL DEFAULT 0,
  related_urls        TEXT    NOT NULL DEFAULT '[]',
  related_phones      TEXT    NOT NULL DEFAULT '[]',
  detected_at         INTEGER NOT NULL
);
`

type sqliteRepository struct {
	db *sql.DB
}

// Open creates (or reuses) the database file at path and applies the schema.
func Open(ctx context.Context, path string) (service.Repository, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// One writer connection serializes upserts.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &sqliteRepository{db: db}, nil
}

func (r *sqliteRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *sqliteRepository) UpsertBlacklist(ctx context.Context, t domain.EntityType, value string, autoBlocked bool, reason string) (*domain.BlacklistEntry, error) {
	now := time.Now().UTC().UnixMilli()
	query := `
INSERT INTO blacklist (entity_type, entity_value, hit_count, first_seen, last_seen, auto_blocked, reason)
VALUES (?, ?, 1, ?, ?, ?, ?)
ON CONFLICT(entity_type, entity_value) DO UPDATE SET
  hit_count    = blacklist.hit_count + 1,
  last_seen    = excluded.last_seen,
  auto_blocked = MAX(blacklist.auto_blocked, excluded.auto_blocked),
  reason       = COALESCE(NULLIF(excluded.reason, ''), blacklist.reason)
RETURNING entity_type, entity_value, hit_count, first_seen, last_seen, auto_blocked, reason`

	row := r.db.QueryRowContext(ctx, query, string(t), value, now, now, boolToInt(autoBlocked), nullIfEmpty(reason))
	e, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("sqlite: upsert blacklist: %w", err)
	}
	return e, nil
}

func (r *sqliteRepository) GetBlacklistEntry(ctx context.Context, t domain.EntityType, value string) (*domain.BlacklistEntry, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT entity_type, entity_value, hit_count, first_seen, last_seen, auto_blocked, reason
FROM blacklist WHERE entity_type = ? AND entity_value = ?`, string(t), value)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get blacklist entry: %w", err)
	}
	return e, nil
}

func (r *sqliteRepository) IsBlacklisted(ctx context.Context, t domain.EntityType, value string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM blacklist WHERE entity_type = ? AND entity_value = ? LIMIT 1`,
		string(t), value,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: is blacklisted: %w", err)
	}
	return true, nil
}

func (r *sqliteRepository) SaveReport(ctx context.Context, rep *domain.ScamReport) error {
	analysis, err := storage.EncodeAnalysis(rep.Analysis)
	if err != nil {
		return fmt.Errorf("sqlite: save report: %w", err)
	}
	urls, err := storage.EncodeStrings(rep.DetectedURLs)
	if err != nil {
		return fmt.Errorf("sqlite: save report: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO scam_reports (id, reporter_phone, original_sender, message_text, score, analysis_json, detected_urls, is_campaign, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.ID.String(),
		rep.ReporterPhone.String(),
		nullIfEmpty(rep.OriginalSender.String()),
		rep.MessageText,
		rep.Score,
		nullIfEmpty(analysis),
		urls,
		boolToInt(rep.IsCampaign),
		rep.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save report: %w", err)
	}
	return nil
}

func (r *sqliteRepository) ListRecentReports(ctx context.Context, since time.Time, limit int) ([]*domain.ScamReport, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, reporter_phone, original_sender, message_text, score, analysis_json, detected_urls, is_campaign, created_at
FROM scam_reports WHERE created_at >= ?
ORDER BY created_at DESC LIMIT ?`, since.UTC().UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list reports: %w", err)
	}
	defer rows.Close()

	var out []*domain.ScamReport
	for rows.Next() {
		var (
			id, reporter, text, urls string
			sender, analysis         sql.NullString
			score, campaign          int
			created                  int64
		)
		if err := rows.Scan(&id, &reporter, &sender, &text, &score, &analysis, &urls, &campaign, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan report: %w", err)
		}
		rep, err := buildReport(id, reporter, sender.String, text, score, analysis.String, urls, campaign == 1, created)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		out = append(out, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate reports: %w", err)
	}
	return out, nil
}

func (r *sqliteRepository) AddSubscriber(ctx context.Context, s *domain.Subscriber) error {
	if s.SubscribedAt.IsZero() {
		s.SubscribedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO subscribers (phone_number, region, is_active, subscribed_at)
VALUES (?, ?, 1, ?)
ON CONFLICT(phone_number) DO UPDATE SET
  is_active = 1,
  region    = COALESCE(NULLIF(excluded.region, ''), subscribers.region)`,
		s.Phone.String(), nullIfEmpty(s.Region), s.SubscribedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: add subscriber: %w", err)
	}
	s.Active = true
	return nil
}

func (r *sqliteRepository) ListSubscribers(ctx context.Context, region string) ([]*domain.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT phone_number, region, subscribed_at FROM subscribers
WHERE is_active = 1 AND (? = '' OR region = ?)
ORDER BY subscribed_at`, region, region)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list subscribers: %w", err)
	}
	defer rows.Close()

	var out []*domain.Subscriber
	for rows.Next() {
		var (
			phone string
			reg   sql.NullString
			at    int64
		)
		if err := rows.Scan(&phone, &reg, &at); err != nil {
			return nil, fmt.Errorf("sqlite: scan subscriber: %w", err)
		}
		out = append(out, &domain.Subscriber{
			Phone:        domain.Phone(phone),
			Region:       reg.String,
			Active:       true,
			SubscribedAt: time.UnixMilli(at).UTC(),
		})
	}
	return out, rows.Err()
}

func (r *sqliteRepository) SaveCampaign(ctx context.Context, c *domain.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.DetectedAt.IsZero() {
		c.DetectedAt = time.Now().UTC()
	}
	urls, err := storage.EncodeStrings(c.RelatedURLs)
	if err != nil {
		return fmt.Errorf("sqlite: save campaign: %w", err)
	}
	phones, err := storage.EncodeStrings(storage.PhoneStrings(c.RelatedPhones))
	if err != nil {
		return fmt.Errorf("sqlite: save campaign: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO campaigns (id, campaign_name, pattern_description, affected_count, related_urls, related_phones, detected_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  affected_count = excluded.affected_count,
  related_urls   = excluded.related_urls,
  related_phones = excluded.related_phones,
  detected_at    = excluded.detected_at`,
		c.ID, c.Name, nullIfEmpty(c.Pattern), c.AffectedCount, urls, phones, c.DetectedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save campaign: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*domain.BlacklistEntry, error) {
	var (
		e           domain.BlacklistEntry
		t           string
		first, last int64
		auto        int
		reason      sql.NullString
	)
	if err := row.Scan(&t, &e.EntityValue, &e.HitCount, &first, &last, &auto, &reason); err != nil {
		return nil, err
	}
	e.EntityType = domain.EntityType(t)
	e.FirstSeen = time.UnixMilli(first).UTC()
	e.LastSeen = time.UnixMilli(last).UTC()
	e.AutoBlocked = auto == 1
	e.Reason = reason.String
	return &e, nil
}

func buildReport(id, reporter, sender, text string, score int, analysis, urls string, campaign bool, created int64) (*domain.ScamReport, error) {
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("report id %q: %w", id, err)
	}
	a, err := storage.DecodeAnalysis(analysis)
	if err != nil {
		return nil, err
	}
	u, err := storage.DecodeStrings(urls)
	if err != nil {
		return nil, err
	}
	return &domain.ScamReport{
		ID:             parsedID,
		ReporterPhone:  domain.Phone(reporter),
		OriginalSender: domain.Phone(sender),
		MessageText:    text,
		Score:          score,
		Analysis:       a,
		DetectedURLs:   u,
		IsCampaign:     campaign,
		CreatedAt:      time.UnixMilli(created).UTC(),
	}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
