package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "tokengate:revoked:"

// minTTL keeps already expired tokens marked briefly so a racing request
// still sees the revocation.
const minTTL = time.Second

var _ Store = (*RedisStore)(nil)

// markScript sets the revocation marker with a TTL in milliseconds, never
// shortening an entry that already outlives it. PTTL is -2 for a missing key
// and -1 for a key without expiry.
var markScript = redis.NewScript(`
local ttl = tonumber(ARGV[1])
local cur = redis.call("PTTL", KEYS[1])
if cur == -1 or cur >= ttl then
	return 0
end
redis.call("SET", KEYS[1], "revoked", "PX", ttl)
return 1
`)

// RedisStore keeps one key per revoked token id with a TTL equal to the
// token's remaining lifetime.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

type RedisOption func(*RedisStore)

func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

func WithClock(now func() time.Time) RedisOption {
	return func(s *RedisStore) { s.now = now }
}

func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: DefaultKeyPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenRedis connects to a redis:// or rediss:// URL and checks it answers.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return client, nil
}

func (s *RedisStore) key(tokenID string) string {
	return s.prefix + tokenID
}

// MarkRevoked records tokenID as revoked until expiresAt. An existing entry
// with a later expiry is left alone, so repeated calls only ever extend it.
func (s *RedisStore) MarkRevoked(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return ErrEmptyTokenID
	}

	ttl := max(expiresAt.Sub(s.now()), minTTL)
	err := markScript.Run(ctx, s.client, []string{s.key(tokenID)}, ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, ErrEmptyTokenID
	}

	n, err := s.client.Exists(ctx, s.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
