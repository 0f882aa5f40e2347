package scylla

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"github.com/rgdevment/sms-firewall/internal/domain"
	"github.com/rgdevment/sms-firewall/internal/platform/storage"
	"github.com/rgdevment/sms-firewall/internal/service"
)

// maxCASAttempts bounds the compare-and-set loop on a contended blacklist row.
const maxCASAttempts = 16

// reportTTL keeps raw reports for 18 months.
const reportTTL = 47304000

const dayLayout = "2006-01-02"

// Schema lists the table definitions Migrate applies, in order.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS blacklist (
		entity_type  text,
		entity_value text,
		hit_count    int,
		first_seen   timestamp,
		last_seen    timestamp,
		auto_blocked boolean,
		reason       text,
		PRIMARY KEY ((entity_type, entity_value))
	)`,
	`CREATE TABLE IF NOT EXISTS reports_by_day (
		day             text,
		created_at      timestamp,
		id              uuid,
		reporter_phone  text,
		original_sender text,
		message_text    text,
		score           int,
		analysis_json   text,
		detected_urls   list<text>,
		is_campaign     boolean,
		PRIMARY KEY ((day), created_at, id)
	) WITH CLUSTERING ORDER BY (created_at DESC, id ASC)`,
	`CREATE TABLE IF NOT EXISTS subscribers (
		phone_number  text PRIMARY KEY,
		region        text,
		is_active     boolean,
		subscribed_at timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS campaigns (
		id                  uuid PRIMARY KEY,
		campaign_name       text,
		pattern_description text,
		affected_count      int,
		related_urls        list<text>,
		related_phones      list<text>,
		detected_at         timestamp
	)`,
}

// ErrContention is returned when a blacklist row kept changing under us.
var ErrContention = errors.New("scylla: blacklist upsert lost too many CAS races")

type scyllaRepository struct {
	session *gocql.Session
}

func NewScyllaRepository(session *gocql.Session) service.Repository {
	return &scyllaRepository{
		session: session,
	}
}

func Connect(keyspace string, hosts ...string) (*gocql.Session, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.ProtoVersion = 4
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to scylla: %w", err)
	}
	return session, nil
}

// Migrate creates the tables in the session's keyspace.
func Migrate(ctx context.Context, session *gocql.Session) error {
	for _, stmt := range Schema {
		if err := session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("scylla: migrate: %w", err)
		}
	}
	return nil
}

func (r *scyllaRepository) Close() error {
	r.session.Close()
	return nil
}

// UpsertBlacklist uses lightweight transactions: insert-if-absent for a new
// entity, then update-if-unchanged on hit_count, retrying on lost races.
func (r *scyllaRepository) UpsertBlacklist(ctx context.Context, t domain.EntityType, value string, autoBlocked bool, reason string) (*domain.BlacklistEntry, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		cur, err := r.GetBlacklistEntry(ctx, t, value)
		if err != nil {
			return nil, err
		}
		now := time.Now().UTC().Truncate(time.Millisecond)

		if cur == nil {
			e := domain.NewBlacklistEntry(t, value, autoBlocked, reason, now)
			applied, err := r.session.Query(`
				INSERT INTO blacklist (entity_type, entity_value, hit_count, first_seen, last_seen, auto_blocked, reason)
				VALUES (?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`,
				string(t), value, e.HitCount, e.FirstSeen, e.LastSeen, e.AutoBlocked, e.Reason,
			).WithContext(ctx).MapScanCAS(map[string]interface{}{})
			if err != nil {
				return nil, fmt.Errorf("scylla: failed to insert blacklist entry: %w", err)
			}
			if applied {
				return e, nil
			}
			continue
		}

		next := *cur
		next.Merge(autoBlocked, reason, now)
		applied, err := r.session.Query(`
			UPDATE blacklist SET hit_count = ?, last_seen = ?, auto_blocked = ?, reason = ?
			WHERE entity_type = ? AND entity_value = ? IF hit_count = ?`,
			next.HitCount, next.LastSeen, next.AutoBlocked, next.Reason,
			string(t), value, cur.HitCount,
		).WithContext(ctx).MapScanCAS(map[string]interface{}{})
		if err != nil {
			return nil, fmt.Errorf("scylla: failed to update blacklist entry: %w", err)
		}
		if applied {
			return &next, nil
		}
	}
	return nil, ErrContention
}

func (r *scyllaRepository) GetBlacklistEntry(ctx context.Context, t domain.EntityType, value string) (*domain.BlacklistEntry, error) {
	query := `
        SELECT hit_count, first_seen, last_seen, auto_blocked, reason
        FROM blacklist WHERE entity_type = ? AND entity_value = ?`

	e := domain.BlacklistEntry{EntityType: t, EntityValue: value}
	err := r.session.Query(query, string(t), value).
		WithContext(ctx).
		Consistency(gocql.Consistency(gocql.LocalSerial)).
		Scan(&e.HitCount, &e.FirstSeen, &e.LastSeen, &e.AutoBlocked, &e.Reason)

	if err == gocql.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scylla: failed to get blacklist entry: %w", err)
	}
	return &e, nil
}

func (r *scyllaRepository) IsBlacklisted(ctx context.Context, t domain.EntityType, value string) (bool, error) {
	var hits int
	err := r.session.Query(`SELECT hit_count FROM blacklist WHERE entity_type = ? AND entity_value = ?`,
		string(t), value,
	).WithContext(ctx).Scan(&hits)

	if err == gocql.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("scylla: failed to check blacklist: %w", err)
	}
	return true, nil
}

func (r *scyllaRepository) SaveReport(ctx context.Context, rep *domain.ScamReport) error {
	analysis, err := storage.EncodeAnalysis(rep.Analysis)
	if err != nil {
		return fmt.Errorf("scylla: failed to save report: %w", err)
	}

	query := `
        INSERT INTO reports_by_day (day, created_at, id, reporter_phone, original_sender, message_text, score, analysis_json, detected_urls, is_campaign)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) USING TTL ?`

	err = r.session.Query(query,
		rep.CreatedAt.UTC().Format(dayLayout),
		rep.CreatedAt,
		rep.ID.String(),
		rep.ReporterPhone.String(),
		rep.OriginalSender.String(),
		rep.MessageText,
		rep.Score,
		analysis,
		rep.DetectedURLs,
		rep.IsCampaign,
		reportTTL,
	).WithContext(ctx).Exec()

	if err != nil {
		return fmt.Errorf("scylla: failed to save report: %w", err)
	}
	return nil
}

// ListRecentReports reads one partition per day between since and now.
func (r *scyllaRepository) ListRecentReports(ctx context.Context, since time.Time, limit int) ([]*domain.ScamReport, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, created_at, reporter_phone, original_sender, message_text, score, analysis_json, detected_urls, is_campaign
	          FROM reports_by_day WHERE day = ? AND created_at >= ?`

	since = since.UTC()
	var reports []*domain.ScamReport
	for day := since.Truncate(24 * time.Hour); !day.After(time.Now().UTC()); day = day.Add(24 * time.Hour) {
		iter := r.session.Query(query, day.Format(dayLayout), since).WithContext(ctx).Iter()

		var (
			id                               gocql.UUID
			createdAt                        time.Time
			reporter, sender, text, analysis string
			score                            int
			urls                             []string
			campaign                         bool
		)
		for iter.Scan(&id, &createdAt, &reporter, &sender, &text, &score, &analysis, &urls, &campaign) {
			parsedID, _ := uuid.Parse(id.String())
			a, err := storage.DecodeAnalysis(analysis)
			if err != nil {
				iter.Close()
				return nil, fmt.Errorf("scylla: %w", err)
			}
			reports = append(reports, &domain.ScamReport{
				ID:             parsedID,
				ReporterPhone:  domain.Phone(reporter),
				OriginalSender: domain.Phone(sender),
				MessageText:    text,
				Score:          score,
				Analysis:       a,
				DetectedURLs:   append([]string{}, urls...),
				IsCampaign:     campaign,
				CreatedAt:      createdAt.UTC(),
			})
		}
		if err := iter.Close(); err != nil {
			return nil, fmt.Errorf("scylla: failed to iterate reports: %w", err)
		}
	}

	sort.Slice(reports, func(i, j int) bool { return reports[i].CreatedAt.After(reports[j].CreatedAt) })
	if len(reports) > limit {
		reports = reports[:limit]
	}
	return reports, nil
}

// AddSubscriber creates the row once and then (re)activates it, so a
// returning subscriber keeps the original subscription date.
func (r *scyllaRepository) AddSubscriber(ctx context.Context, s *domain.Subscriber) error {
	if s.SubscribedAt.IsZero() {
		s.SubscribedAt = time.Now().UTC()
	}

	if _, err := r.session.Query(`INSERT INTO subscribers (phone_number, subscribed_at, is_active) VALUES (?, ?, true) IF NOT EXISTS`,
		s.Phone.String(), s.SubscribedAt,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{}); err != nil {
		return fmt.Errorf("scylla: failed to add subscriber: %w", err)
	}

	query := `UPDATE subscribers SET is_active = true WHERE phone_number = ?`
	args := []interface{}{s.Phone.String()}
	if s.Region != "" {
		query = `UPDATE subscribers SET is_active = true, region = ? WHERE phone_number = ?`
		args = []interface{}{s.Region, s.Phone.String()}
	}
	if err := r.session.Query(query, args...).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("scylla: failed to activate subscriber: %w", err)
	}
	s.Active = true
	return nil
}

// ListSubscribers scans the table; the subscriber list is small and filtered here.
func (r *scyllaRepository) ListSubscribers(ctx context.Context, region string) ([]*domain.Subscriber, error) {
	iter := r.session.Query(`SELECT phone_number, region, is_active, subscribed_at FROM subscribers`).
		WithContext(ctx).Iter()

	var (
		out    []*domain.Subscriber
		phone  string
		reg    string
		active bool
		at     time.Time
	)
	for iter.Scan(&phone, &reg, &active, &at) {
		if !active || (region != "" && reg != region) {
			continue
		}
		out = append(out, &domain.Subscriber{
			Phone:        domain.Phone(phone),
			Region:       reg,
			Active:       true,
			SubscribedAt: at.UTC(),
		})
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("scylla: failed to iterate subscribers: %w", err)
	}
	return out, nil
}

func (r *scyllaRepository) SaveCampaign(ctx context.Context, c *domain.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.DetectedAt.IsZero() {
		c.DetectedAt = time.Now().UTC()
	}

	query := `
        INSERT INTO campaigns (id, campaign_name, pattern_description, affected_count, related_urls, related_phones, detected_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`

	err := r.session.Query(query,
		c.ID, c.Name, c.Pattern, c.AffectedCount, c.RelatedURLs, storage.PhoneStrings(c.RelatedPhones), c.DetectedAt,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("scylla: failed to save campaign: %w", err)
	}
	return nil
}
