package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Requires Redis running on localhost:6379.
const testRedisAddr = "localhost:6379"

func setupTestRevoker(t *testing.T) *RedisRevoker {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}

	revoker := NewRedisRevoker(client, time.Minute)
	t.Cleanup(func() { revoker.Close() })
	return revoker
}

func TestRedisRevoker_RevokeAndLookup(t *testing.T) {
	revoker := setupTestRevoker(t)
	ctx := context.Background()
	userID := "test-" + uuid.NewString()
	t.Cleanup(func() { revoker.client.Del(context.Background(), revoker.key(userID)) })

	if _, ok, err := revoker.RevokedAt(ctx, userID); err != nil || ok {
		t.Fatalf("RevokedAt() = ok %v, err %v; want no cutoff", ok, err)
	}

	at := time.Now().Truncate(time.Second)
	if err := revoker.Revoke(ctx, userID, at); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	got, ok, err := revoker.RevokedAt(ctx, userID)
	if err != nil {
		t.Fatalf("RevokedAt() error = %v", err)
	}
	if !ok {
		t.Fatal("RevokedAt() found no cutoff after Revoke")
	}
	if !got.Equal(at) {
		t.Errorf("RevokedAt() = %v, want %v", got, at)
	}

	ttl, err := revoker.client.TTL(ctx, revoker.key(userID)).Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want within (0, 1m]", ttl)
	}
}

func TestNoopRevoker(t *testing.T) {
	var r Revoker = noopRevoker{}
	if err := r.Revoke(context.Background(), "u1", time.Now()); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if _, ok, err := r.RevokedAt(context.Background(), "u1"); err != nil || ok {
		t.Errorf("RevokedAt() = ok %v, err %v; want no cutoff", ok, err)
	}
}
