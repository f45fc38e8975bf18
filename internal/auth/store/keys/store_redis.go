package keys

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/botdiril/botdiril-game-backend/internal/platform/metrics"
	"github.com/botdiril/botdiril-game-backend/pkg/platform/sentinel"
)

// DefaultKeyPrefix is the key space the token issuer publishes keys under.
const DefaultKeyPrefix = "baryonic:public_keys:"

// ErrInvalidKey means a stored key could not be used for verification. It is
// an infrastructure fault, not a credential failure.
var ErrInvalidKey = errors.New("stored verification key is invalid")

// Getter is the subset of the Redis client the cache reads with.
type Getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisKeyCache resolves key ids to ES384 verification keys published in
// Redis by the token issuer. It never writes; expired key ids simply vanish.
type RedisKeyCache struct {
	client  Getter
	prefix  string
	metrics *metrics.Metrics
}

// Option configures a RedisKeyCache.
type Option func(*RedisKeyCache)

// WithPrefix overrides the Redis key prefix.
func WithPrefix(prefix string) Option {
	return func(c *RedisKeyCache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithMetrics records lookup latency on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *RedisKeyCache) { c.metrics = m }
}

// NewRedis constructs a Redis-backed key cache.
func NewRedis(client Getter, opts ...Option) *RedisKeyCache {
	c := &RedisKeyCache{
		client: client,
		prefix: DefaultKeyPrefix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// GetPublicKey returns the P-384 public key for keyID.
//
// Errors: sentinel.ErrNotFound for an unknown or expired key id,
// sentinel.ErrUnavailable when Redis cannot be read, ErrInvalidKey when the
// stored PEM is not a P-384 ECDSA public key.
func (c *RedisKeyCache) GetPublicKey(ctx context.Context, keyID string) (*ecdsa.PublicKey, error) {
	start := time.Now()
	defer c.metrics.ObserveLookup("key", start)

	pem, err := c.client.Get(ctx, c.prefix+keyID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get public key %q: %w: %w", keyID, sentinel.ErrUnavailable, err)
	}

	key, err := jwt.ParseECPublicKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parse public key %q: %w: %w", keyID, ErrInvalidKey, err)
	}
	if key.Curve != elliptic.P384() {
		return nil, fmt.Errorf("public key %q uses curve %s: %w", keyID, key.Curve.Params().Name, ErrInvalidKey)
	}
	return key, nil
}
