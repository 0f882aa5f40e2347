package service_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rgdevment/sms-firewall/internal/domain"
	"github.com/rgdevment/sms-firewall/internal/service"
	"github.com/stretchr/testify/mock"
)

type entityKey struct {
	t domain.EntityType
	v string
}

// MockRepo is an in-memory Repository. The mutex makes UpsertBlacklist
// atomic the same way a transactional store does.
type MockRepo struct {
	mu          sync.Mutex
	entries     map[entityKey]*domain.BlacklistEntry
	reports     []*domain.ScamReport
	subscribers map[domain.Phone]*domain.Subscriber
	campaigns   []*domain.Campaign

	lookupErr error
	upsertErr error
	saveErr   error
	lookups   int
}

func NewMockRepo() *MockRepo {
	return &MockRepo{
		entries:     make(map[entityKey]*domain.BlacklistEntry),
		subscribers: make(map[domain.Phone]*domain.Subscriber),
	}
}

func (m *MockRepo) UpsertBlacklist(ctx context.Context, t domain.EntityType, value string, autoBlocked bool, reason string) (*domain.BlacklistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}
	now := time.Now().UTC()
	k := entityKey{t, value}
	e, ok := m.entries[k]
	if !ok {
		e = domain.NewBlacklistEntry(t, value, autoBlocked, reason, now)
		m.entries[k] = e
	} else {
		e.Merge(autoBlocked, reason, now)
	}
	cp := *e
	return &cp, nil
}

func (m *MockRepo) GetBlacklistEntry(ctx context.Context, t domain.EntityType, value string) (*domain.BlacklistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[entityKey{t, value}]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *MockRepo) IsBlacklisted(ctx context.Context, t domain.EntityType, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.lookupErr != nil {
		return false, m.lookupErr
	}
	_, ok := m.entries[entityKey{t, value}]
	return ok, nil
}

func (m *MockRepo) SaveReport(ctx context.Context, r *domain.ScamReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.reports = append(m.reports, r)
	return nil
}

func (m *MockRepo) ListRecentReports(ctx context.Context, since time.Time, limit int) ([]*domain.ScamReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ScamReport
	for _, r := range m.reports {
		if !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockRepo) AddSubscriber(ctx context.Context, s *domain.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[s.Phone] = s
	return nil
}

func (m *MockRepo) ListSubscribers(ctx context.Context, region string) ([]*domain.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Subscriber
	for _, s := range m.subscribers {
		if s.Active && (region == "" || s.Region == region) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MockRepo) SaveCampaign(ctx context.Context, c *domain.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaigns = append(m.campaigns, c)
	return nil
}

func (m *MockRepo) Close() error { return nil }

func (m *MockRepo) Entry(t domain.EntityType, v string) *domain.BlacklistEntry {
	e, _ := m.GetBlacklistEntry(context.Background(), t, v)
	return e
}

func (m *MockRepo) Reports() []*domain.ScamReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.ScamReport(nil), m.reports...)
}

func (m *MockRepo) EntryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

type MockScorer struct {
	mock.Mock
}

func (m *MockScorer) Score(ctx context.Context, req service.ScoreRequest) (*domain.Analysis, error) {
	args := m.Called(ctx, req)
	a, _ := args.Get(0).(*domain.Analysis)
	return a, args.Error(1)
}

type sentMessage struct {
	Text       string
	Recipients []domain.Phone
}

type RecordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (s *RecordingSender) Send(ctx context.Context, message string, recipients []domain.Phone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{Text: message, Recipients: recipients})
	return s.err
}

func (s *RecordingSender) Messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

type RecordingNotifier struct {
	mu     sync.Mutex
	alerts []service.Alert
	fail   bool
}

func (n *RecordingNotifier) Notify(ctx context.Context, a service.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	if n.fail {
		return errors.New("webhook unreachable")
	}
	return nil
}

func (n *RecordingNotifier) Alerts() []service.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]service.Alert(nil), n.alerts...)
}
