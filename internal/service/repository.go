package service

import (
	"context"
	"time"

	"github.com/rgdevment/sms-firewall/internal/domain"
)

// Repository is the persistence port. Every implementation must make
// UpsertBlacklist a single atomic operation per (type, value): concurrent
// hits on the same entity are all counted.
type Repository interface {
	// UpsertBlacklist creates the entry with hit_count 1 or merges one more
	// hit into it (see domain.BlacklistEntry.Merge) and returns the result.
	UpsertBlacklist(ctx context.Context, t domain.EntityType, value string, autoBlocked bool, reason string) (*domain.BlacklistEntry, error)

	// GetBlacklistEntry returns nil, nil when the entity is not listed.
	GetBlacklistEntry(ctx context.Context, t domain.EntityType, value string) (*domain.BlacklistEntry, error)

	IsBlacklisted(ctx context.Context, t domain.EntityType, value string) (bool, error)

	SaveReport(ctx context.Context, r *domain.ScamReport) error

	// ListRecentReports returns reports created at or after since, newest first.
	ListRecentReports(ctx context.Context, since time.Time, limit int) ([]*domain.ScamReport, error)

	// AddSubscriber creates or reactivates a subscriber.
	AddSubscriber(ctx context.Context, s *domain.Subscriber) error

	// ListSubscribers returns active subscribers, optionally filtered by region.
	ListSubscribers(ctx context.Context, region string) ([]*domain.Subscriber, error)

	// SaveCampaign inserts a campaign, or refreshes its counts when the ID exists.
	SaveCampaign(ctx context.Context, c *domain.Campaign) error

	Close() error
}
