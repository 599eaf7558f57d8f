package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginAttemptTracker counts failed logins per email within a sliding window
// measured from the most recent failure.
type LoginAttemptTracker interface {
	// Locked reports whether email is locked out and for how much longer.
	Locked(ctx context.Context, email string) (time.Duration, bool, error)
	RecordFailure(ctx context.Context, email string) error
	Reset(ctx context.Context, email string) error
}

type redisLoginAttempts struct {
	client      redis.Cmdable
	maxAttempts int
	window      time.Duration
	keyPrefix   string
}

// NewRedisLoginAttemptTracker stores counters under keyPrefix with a TTL of
// window, so idle entries disappear on their own.
func NewRedisLoginAttemptTracker(client redis.Cmdable, maxAttempts int, window time.Duration) LoginAttemptTracker {
	return &redisLoginAttempts{
		client:      client,
		maxAttempts: maxAttempts,
		window:      window,
		keyPrefix:   "login_attempts",
	}
}

func (t *redisLoginAttempts) key(email string) string {
	return fmt.Sprintf("%s:%s", t.keyPrefix, strings.ToLower(strings.TrimSpace(email)))
}

func (t *redisLoginAttempts) Locked(ctx context.Context, email string) (time.Duration, bool, error) {
	key := t.key(email)

	count, err := t.client.Get(ctx, key).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read login attempts: %w", err)
	}
	if count < t.maxAttempts {
		return 0, false, nil
	}

	ttl, err := t.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read login attempt ttl: %w", err)
	}
	if ttl <= 0 {
		return 0, false, nil
	}
	return ttl, true, nil
}

func (t *redisLoginAttempts) RecordFailure(ctx context.Context, email string) error {
	key := t.key(email)

	pipe := t.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, t.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}

func (t *redisLoginAttempts) Reset(ctx context.Context, email string) error {
	if err := t.client.Del(ctx, t.key(email)).Err(); err != nil {
		return fmt.Errorf("failed to reset login attempts: %w", err)
	}
	return nil
}
