package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Revoker records, per user, the moment before which issued tokens stop
// being accepted.
type Revoker interface {
	Revoke(ctx context.Context, userID string, at time.Time) error
	// RevokedAt returns the cutoff for userID, or ok=false if none is set.
	RevokedAt(ctx context.Context, userID string) (at time.Time, ok bool, err error)
}

// noopRevoker keeps verification stateless.
type noopRevoker struct{}

func (noopRevoker) Revoke(context.Context, string, time.Time) error { return nil }

func (noopRevoker) RevokedAt(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

// RedisRevoker stores revocation cutoffs in Redis. Entries expire after the
// token lifetime since every older token has expired by then.
type RedisRevoker struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	group  singleflight.Group
}

// NewRedisRevoker creates a RedisRevoker.
func NewRedisRevoker(client *redis.Client, tokenTTL time.Duration) *RedisRevoker {
	return &RedisRevoker{
		client: client,
		ttl:    tokenTTL,
		prefix: "auth:revoked:",
	}
}

func (r *RedisRevoker) key(userID string) string {
	return r.prefix + userID
}

// Revoke invalidates every token issued for userID before at.
func (r *RedisRevoker) Revoke(ctx context.Context, userID string, at time.Time) error {
	if err := r.client.Set(ctx, r.key(userID), at.Unix(), r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store revocation: %w", err)
	}
	return nil
}

// RevokedAt looks up the cutoff for userID. Concurrent lookups for the same
// user share one Redis round trip.
func (r *RedisRevoker) RevokedAt(ctx context.Context, userID string) (time.Time, bool, error) {
	key := r.key(userID)
	v, err, _ := r.group.Do(key, func() (any, error) {
		secs, err := r.client.Get(ctx, key).Int64()
		if errors.Is(err, redis.Nil) {
			return int64(0), nil
		}
		return secs, err
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read revocation: %w", err)
	}

	secs := v.(int64)
	if secs == 0 {
		return time.Time{}, false, nil
	}
	return time.Unix(secs, 0), true, nil
}

// Close closes the Redis client.
func (r *RedisRevoker) Close() error {
	return r.client.Close()
}
