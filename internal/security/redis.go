package security

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisNonceStore shares replay state between processes. SET NX gives the
// atomic check-and-insert; the key TTL bounds memory.
type RedisNonceStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisNonceStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisNonceStore {
	if prefix == "" {
		prefix = "smsfw:nonce:"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisNonceStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Record implements NonceStore.
func (s *RedisNonceStore) Record(ctx context.Context, hash string) (bool, error) {
	fresh, err := s.rdb.SetNX(ctx, s.prefix+hash, 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SETNX nonce: %w", err)
	}
	return fresh, nil
}

// slidingWindow prunes, counts and appends inside Redis so concurrent
// requests for the same client cannot both slip under the cap.
var slidingWindow = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= limit then
  return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// RedisRateStore is a RateStore backed by one sorted set per client.
type RedisRateStore struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisRateStore(rdb *redis.Client, prefix string) *RedisRateStore {
	if prefix == "" {
		prefix = "smsfw:rate:"
	}
	return &RedisRateStore{rdb: rdb, prefix: prefix, now: time.Now}
}

// WithClock swaps the time source. Tests only.
func (s *RedisRateStore) WithClock(now func() time.Time) *RedisRateStore {
	s.now = now
	return s
}

// Allow implements RateStore.
func (s *RedisRateStore) Allow(ctx context.Context, clientID string, limit int, window time.Duration) (bool, error) {
	res, err := slidingWindow.Run(ctx, s.rdb,
		[]string{s.prefix + clientID},
		s.now().UnixMilli(),
		window.Milliseconds(),
		limit,
		uuid.NewString(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis sliding window: %w", err)
	}
	return res == 1, nil
}

// ConnectRedis opens a client and pings it.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", addr, err)
	}
	return rdb, nil
}
