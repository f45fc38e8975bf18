package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/botdiril/botdiril-game-backend/internal/platform/metrics"
	"github.com/botdiril/botdiril-game-backend/pkg/domain"
	"github.com/botdiril/botdiril-game-backend/pkg/platform/sentinel"
)

// DefaultSubjectPrefix is the key space the login service writes subject
// mappings under.
const DefaultSubjectPrefix = "baryonic:jwt:"

// Getter is the subset of the Redis client the resolver reads with.
type Getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisResolver maps token subjects to live identities. Logging out deletes
// the mapping, which revokes every token that carries the subject.
type RedisResolver struct {
	client  Getter
	prefix  string
	metrics *metrics.Metrics
}

// Option configures a RedisResolver.
type Option func(*RedisResolver)

// WithPrefix overrides the Redis key prefix.
func WithPrefix(prefix string) Option {
	return func(r *RedisResolver) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithMetrics records lookup latency on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *RedisResolver) { r.metrics = m }
}

// NewRedis constructs a Redis-backed identity resolver.
func NewRedis(client Getter, opts ...Option) *RedisResolver {
	r := &RedisResolver{
		client: client,
		prefix: DefaultSubjectPrefix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Resolve returns the identity mapped to subject.
//
// Errors: sentinel.ErrNotFound when no mapping exists (never issued or
// revoked), sentinel.ErrUnavailable when Redis cannot be read, and a plain
// error when the stored value is not an identity.
func (r *RedisResolver) Resolve(ctx context.Context, subject domain.SubjectKey) (domain.Identity, error) {
	start := time.Now()
	defer r.metrics.ObserveLookup("identity", start)

	raw, err := r.client.Get(ctx, r.prefix+subject.String()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, sentinel.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get identity for subject %s: %w: %w", subject, sentinel.ErrUnavailable, err)
	}

	id, err := domain.ParseIdentity(raw)
	if err != nil {
		return 0, fmt.Errorf("decode identity for subject %s: %w", subject, err)
	}
	return id, nil
}
