package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/iliyamo/auth-core/internal/observability"
)

// BlacklistPrefix namespaces denylist keys in the cache.
const BlacklistPrefix = "blacklist:"

const blacklistValue = "true"

// TokenBlacklist is the cache-backed access token denylist.  Reads fail
// open: a cache outage must not reject every request.  Writes fail closed:
// a logout whose denylist write failed reports an error.
type TokenBlacklist struct {
	client  redis.UniversalClient
	ttl     time.Duration
	log     *slog.Logger
	metrics *observability.Metrics
}

// NewTokenBlacklist returns a denylist writing entries with ttl.  The ttl
// is the configured access token lifetime, not the remainder of the token
// being denied.  client may be nil when no cache is configured.
func NewTokenBlacklist(client redis.UniversalClient, ttl time.Duration, log *slog.Logger, metrics *observability.Metrics) *TokenBlacklist {
	return &TokenBlacklist{client: client, ttl: ttl, log: log, metrics: metrics}
}

func blacklistKey(token string) string { return BlacklistPrefix + token }

// Add denies token for the configured ttl.
func (b *TokenBlacklist) Add(ctx context.Context, token string) error {
	if b.client == nil {
		return oops.Code(CodeStorageUnavailable).
			With("operation", "blacklist add").
			Wrap(ErrStorageUnavailable)
	}
	if err := b.client.Set(ctx, blacklistKey(token), blacklistValue, b.ttl).Err(); err != nil {
		return oops.Code(CodeStorageUnavailable).
			With("operation", "blacklist add").
			Wrap(fmt.Errorf("%w: %w", ErrStorageUnavailable, err))
	}
	return nil
}

// IsBlacklisted reports whether token is denied.  Only a stored "true"
// counts; misses and cache errors report false.
func (b *TokenBlacklist) IsBlacklisted(ctx context.Context, token string) bool {
	if b.client == nil {
		b.metrics.BlacklistCheck(observability.ResultUnavailable)
		return false
	}
	v, err := b.client.Get(ctx, blacklistKey(token)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		b.metrics.BlacklistCheck(observability.ResultAllowed)
		return false
	case err != nil:
		b.log.Warn("blacklist lookup failed, allowing token", "error", err)
		b.metrics.BlacklistCheck(observability.ResultUnavailable)
		return false
	case v != blacklistValue:
		b.metrics.BlacklistCheck(observability.ResultAllowed)
		return false
	}
	b.metrics.BlacklistCheck(observability.ResultDenied)
	return true
}

// AddMany denies every token of userID in one pipeline.  Empty input is a
// no-op.
func (b *TokenBlacklist) AddMany(ctx context.Context, userID string, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	if b.client == nil {
		return oops.Code(CodeStorageUnavailable).
			With("operation", "blacklist add many").
			With("user_id", userID).
			Wrap(ErrStorageUnavailable)
	}
	_, err := b.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, t := range tokens {
			p.Set(ctx, blacklistKey(t), blacklistValue, b.ttl)
		}
		return nil
	})
	if err != nil {
		return oops.Code(CodeStorageUnavailable).
			With("operation", "blacklist add many").
			With("user_id", userID).
			With("count", len(tokens)).
			Wrap(fmt.Errorf("%w: %w", ErrStorageUnavailable, err))
	}
	return nil
}
