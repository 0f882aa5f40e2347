// Package campaign finds clusters of reports that point at the same sender
// or the same registrable domain.
package campaign

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rgdevment/sms-firewall/internal/domain"
	"github.com/weppos/publicsuffix-go/publicsuffix"
	"go.uber.org/zap"
)

const (
	DefaultMinReports = 5
	DefaultLookback   = 24 * time.Hour

	// scanLimit caps how many recent reports one sweep reads.
	scanLimit = 1000
)

// Store is the slice of the repository the detector needs.
type Store interface {
	ListRecentReports(ctx context.Context, since time.Time, limit int) ([]*domain.ScamReport, error)
	SaveCampaign(ctx context.Context, c *domain.Campaign) error
}

// Alerter is told about each saved campaign.
type Alerter interface {
	SendCampaignAlert(ctx context.Context, name string, affected int) error
}

type Config struct {
	MinReports int
	Lookback   time.Duration
	// MinScore drops low-risk reports from clustering. Zero means 5.
	MinScore int
}

type Detector struct {
	cfg     Config
	store   Store
	alerter Alerter
	logger  *zap.Logger
	now     func() time.Time
}

// NewDetector builds a detector. alerter may be nil.
func NewDetector(cfg Config, store Store, alerter Alerter, logger *zap.Logger) *Detector {
	if cfg.MinReports <= 0 {
		cfg.MinReports = DefaultMinReports
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultLookback
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = domain.NeutralScore
	}
	return &Detector{cfg: cfg, store: store, alerter: alerter, logger: logger, now: time.Now}
}

// WithClock swaps the time source. Tests only.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

type cluster struct {
	kind    string
	key     string
	reports []*domain.ScamReport
}

// Run clusters recent reports, saves every cluster that reaches MinReports,
// and alerts subscribers when alert is set. Clusters are keyed by kind, key
// and day, so running twice on the same day refreshes instead of duplicating.
func (d *Detector) Run(ctx context.Context, alert bool) ([]*domain.Campaign, error) {
	now := d.now().UTC()
	reports, err := d.store.ListRecentReports(ctx, now.Add(-d.cfg.Lookback), scanLimit)
	if err != nil {
		return nil, fmt.Errorf("campaign: list reports: %w", err)
	}

	var found []*domain.Campaign
	for _, c := range d.group(reports) {
		if len(c.reports) < d.cfg.MinReports {
			continue
		}
		camp := d.build(c, now)
		if err := d.store.SaveCampaign(ctx, camp); err != nil {
			return found, fmt.Errorf("campaign: save %s: %w", camp.ID, err)
		}
		found = append(found, camp)
		d.logger.Info("campaign detected",
			zap.String("id", camp.ID),
			zap.Int("reports", camp.AffectedCount),
		)

		if alert && d.alerter != nil {
			if err := d.alerter.SendCampaignAlert(ctx, camp.Name, camp.AffectedCount); err != nil {
				d.logger.Warn("campaign alert failed", zap.String("id", camp.ID), zap.Error(err))
			}
		}
	}

	d.logger.Info("campaign sweep finished",
		zap.Int("reports_scanned", len(reports)),
		zap.Int("campaigns", len(found)),
	)
	return found, nil
}

func (d *Detector) group(reports []*domain.ScamReport) []*cluster {
	byKey := make(map[string]*cluster)
	var order []string
	add := func(kind, key string, r *domain.ScamReport) {
		id := kind + ":" + key
		c, ok := byKey[id]
		if !ok {
			c = &cluster{kind: kind, key: key}
			byKey[id] = c
			order = append(order, id)
		}
		c.reports = append(c.reports, r)
	}

	for _, r := range reports {
		if r.Score < d.cfg.MinScore {
			continue
		}
		if r.OriginalSender.Valid() {
			add("sender", r.OriginalSender.String(), r)
		}
		seen := make(map[string]bool)
		for _, u := range r.DetectedURLs {
			dom := RegistrableDomain(u)
			if dom == "" || seen[dom] {
				continue
			}
			seen[dom] = true
			add("domain", dom, r)
		}
	}

	out := make([]*cluster, 0, len(order))
	for _, id := range order {
		out = append(out, byKey[id])
	}
	return out
}

func (d *Detector) build(c *cluster, now time.Time) *domain.Campaign {
	urls := make(map[string]bool)
	phones := make(map[domain.Phone]bool)
	techniques := make(map[string]int)
	for _, r := range c.reports {
		for _, u := range r.DetectedURLs {
			urls[u] = true
		}
		if r.OriginalSender.Valid() {
			phones[r.OriginalSender] = true
		}
		if r.Analysis != nil {
			for _, t := range r.Analysis.Techniques {
				techniques[t]++
			}
		}
	}

	name := "Scam campaign from " + domain.Phone(c.key).Masked()
	if c.kind == "domain" {
		name = "Scam campaign via " + c.key
	}

	return &domain.Campaign{
		ID:            fmt.Sprintf("%s:%s:%s", c.kind, c.key, now.Format("2006-01-02")),
		Name:          name,
		Pattern:       describe(c, techniques),
		AffectedCount: len(c.reports),
		RelatedURLs:   sortedKeys(urls),
		RelatedPhones: sortedPhones(phones),
		DetectedAt:    now,
	}
}

func describe(c *cluster, techniques map[string]int) string {
	desc := fmt.Sprintf("%d reports sharing %s %s", len(c.reports), c.kind, c.key)
	if len(techniques) == 0 {
		return desc
	}
	names := make([]string, 0, len(techniques))
	for t := range techniques {
		names = append(names, t)
	}
	sort.Slice(names, func(i, j int) bool {
		if techniques[names[i]] != techniques[names[j]] {
			return techniques[names[i]] > techniques[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > 3 {
		names = names[:3]
	}
	return desc + "; techniques: " + strings.Join(names, ", ")
}

// RegistrableDomain returns the eTLD+1 of a URL's host, or "" when the URL
// has no usable host.
func RegistrableDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	dom, err := publicsuffix.Domain(host)
	if err != nil {
		return host
	}
	return dom
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedPhones(m map[domain.Phone]bool) []domain.Phone {
	out := make([]domain.Phone, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
