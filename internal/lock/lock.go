// Package lock provides best-effort per-key locks backed by redis.
//
// A lock that cannot be obtained is logged and the caller proceeds; row
// locks in Postgres remain the authoritative serialization.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultTTL bounds how long a crashed holder can keep a key.
const DefaultTTL = 30 * time.Second

// Locker obtains a named lock and returns its release func. The release
// func is never nil.
type Locker interface {
	Obtain(ctx context.Context, key string) (release func())
}

// RedisLocker implements Locker with bsm/redislock. A nil client makes every
// Obtain a no-op.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	logger logrus.FieldLogger
}

// NewRedisLocker wraps rdb. rdb may be nil when redis is not configured.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration, logger logrus.FieldLogger) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	l := &RedisLocker{ttl: ttl, logger: logger}
	if rdb != nil {
		l.client = redislock.New(rdb)
	}
	return l
}

func (l *RedisLocker) Obtain(ctx context.Context, key string) func() {
	if l == nil || l.client == nil {
		l.warn(key, "redis lock not ready; proceeding without redis lock")
		return func() {}
	}

	lk, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		l.warn(key, "could not obtain redis lock; proceeding without redis lock")
		return func() {}
	} else if err != nil {
		l.warn(key, "error obtaining redis lock; proceeding without redis lock: "+err.Error())
		return func() {}
	}

	return func() {
		// Release with a fresh context: the caller's may already be done.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lk.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.warn(key, "failed to release redis lock: "+err.Error())
		}
	}
}

func (l *RedisLocker) warn(key, msg string) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.WithFields(logrus.Fields{"field": "lock", "key": key}).Warn(msg)
}

// Noop never blocks. Used in tests and when locking is disabled.
type Noop struct{}

func (Noop) Obtain(context.Context, string) func() { return func() {} }

// RouteKey is the lock name for operations serialized per route.
func RouteKey(routeID string) string {
	return "lock:route:" + routeID
}
