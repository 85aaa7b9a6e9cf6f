package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const loginAttemptsKeyFmt = "login:attempts:"

// NewClient connects to Redis. On failure it returns nil so callers
// degrade to running without Redis.
func NewClient(host, port, password string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     host + ":" + port,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("[Redis] Not available (%v), login throttling disabled", err)
		client.Close()
		return nil
	}
	log.Printf("[Redis] Connected to %s:%s", host, port)
	return client
}

// LoginLimiter counts failed logins per key in a fixed window. A nil
// client allows everything.
type LoginLimiter struct {
	client      *redis.Client
	maxAttempts int64
	window      time.Duration
}

func NewLoginLimiter(client *redis.Client, maxAttempts int, window time.Duration) *LoginLimiter {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &LoginLimiter{client: client, maxAttempts: int64(maxAttempts), window: window}
}

// hashKey keeps usernames and addresses out of Redis keys.
func hashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return loginAttemptsKeyFmt + hex.EncodeToString(h[:])[:32]
}

func (l *LoginLimiter) Blocked(ctx context.Context, key string) bool {
	if l == nil || l.client == nil {
		return false
	}
	n, err := l.client.Get(ctx, hashKey(key)).Int64()
	if err != nil {
		return false
	}
	return n >= l.maxAttempts
}

func (l *LoginLimiter) RecordFailure(ctx context.Context, key string) {
	if l == nil || l.client == nil {
		return
	}
	k := hashKey(key)
	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		log.Printf("[Redis] Failed to record login attempt: %v", err)
		return
	}
	if n == 1 {
		l.client.Expire(ctx, k, l.window)
	}
}

func (l *LoginLimiter) Reset(ctx context.Context, key string) {
	if l == nil || l.client == nil {
		return
	}
	l.client.Del(ctx, hashKey(key))
}
