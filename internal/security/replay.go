package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// NonceStore remembers nonce hashes. Record must check and insert in one
// atomic step.
type NonceStore interface {
	// Record stores hash and reports whether it had not been seen before.
	Record(ctx context.Context, hash string) (bool, error)
}

// ReplayVerdict is the outcome of a replay check.
type ReplayVerdict int

const (
	// ReplayNotApplicable means the request carried no identifier.
	ReplayNotApplicable ReplayVerdict = iota
	ReplayFresh
	ReplayDuplicate
)

func (v ReplayVerdict) String() string {
	switch v {
	case ReplayFresh:
		return "fresh"
	case ReplayDuplicate:
		return "duplicate"
	default:
		return "not_applicable"
	}
}

// ReplayGuard rejects request identifiers it has already seen.
type ReplayGuard struct {
	store NonceStore
}

func NewReplayGuard(store NonceStore) *ReplayGuard {
	return &ReplayGuard{store: store}
}

// CheckAndRecord hashes source and records it. An empty source is not
// protected.
func (g *ReplayGuard) CheckAndRecord(ctx context.Context, source string) (ReplayVerdict, error) {
	if source == "" {
		return ReplayNotApplicable, nil
	}
	fresh, err := g.store.Record(ctx, HashNonce(source))
	if err != nil {
		return ReplayNotApplicable, fmt.Errorf("record nonce: %w", err)
	}
	if !fresh {
		return ReplayDuplicate, nil
	}
	return ReplayFresh, nil
}

// NonceSource picks the webhook identifier: 'id', falling back to 'linkId'.
func NonceSource(form url.Values) string {
	if id := strings.TrimSpace(form.Get("id")); id != "" {
		return id
	}
	return strings.TrimSpace(form.Get("linkId"))
}

// HashNonce is the stored identity of a nonce.
func HashNonce(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// MemoryNonceStore is a single-process NonceStore. It keeps at most capacity
// hashes, evicting the least recently recorded first, and forgets hashes after
// ttl.
type MemoryNonceStore struct {
	mu   sync.Mutex
	seen *expirable.LRU[string, struct{}]
}

func NewMemoryNonceStore(capacity int, ttl time.Duration) *MemoryNonceStore {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryNonceStore{
		seen: expirable.NewLRU[string, struct{}](capacity, nil, ttl),
	}
}

// Record implements NonceStore.
func (s *MemoryNonceStore) Record(_ context.Context, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen.Contains(hash) {
		return false, nil
	}
	s.seen.Add(hash, struct{}{})
	return true, nil
}

// Len returns the number of remembered hashes.
func (s *MemoryNonceStore) Len() int {
	return s.seen.Len()
}

// Timestamp layouts the aggregator has been seen to use.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999",
}

// ParseTimestamp parses a webhook 'date' field. Values without a zone are
// read as UTC.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
