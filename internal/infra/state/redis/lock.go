package redisstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"turn-coordinator/internal/lock"
)

// Only the holder of the token may extend or delete the key.
var (
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

const (
	defaultLockTTL = 10 * time.Second
	minLockBackoff = 5 * time.Millisecond
	maxLockBackoff = 200 * time.Millisecond
)

// RedisLocker implements lock.Coordinator with a SET NX PX key per lock. While
// fn runs a watchdog keeps pushing the expiry forward, so the TTL only matters
// when the holding process dies. If the key is gone anyway, fn's ctx is
// cancelled with lock.ErrLost.
type RedisLocker struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	log       *logrus.Entry
}

var _ lock.Coordinator = (*RedisLocker)(nil)

func NewRedisLocker(client *redis.Client, keyPrefix string, ttl time.Duration, logger *logrus.Logger) *RedisLocker {
	if client == nil {
		panic("redis client cannot be nil for RedisLocker")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{
		client:    client,
		keyPrefix: normalizePrefix(keyPrefix),
		ttl:       ttl,
		log:       logger.WithField("component", "redis_lock"),
	}
}

func (l *RedisLocker) key(ns lock.Namespace, gameID uint) string {
	return l.keyPrefix + lock.Name(ns, gameID)
}

func (l *RedisLocker) WithLock(ctx context.Context, ns lock.Namespace, gameID uint, fn func(ctx context.Context) error) error {
	key := l.key(ns, gameID)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	fnCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	stop := make(chan struct{})
	watchdogDone := make(chan struct{})
	go l.watchdog(key, token, cancel, stop, watchdogDone)

	defer func() {
		close(stop)
		<-watchdogDone
		// Release with a fresh context so a cancelled request still frees the key.
		relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(relCtx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			l.log.WithError(err).WithField("lock", key).Error("Failed to release redis lock")
		}
	}()

	err := fn(fnCtx)
	if errors.Is(context.Cause(fnCtx), lock.ErrLost) {
		return errors.Join(fmt.Errorf("redis: %s: %w", key, lock.ErrLost), err)
	}
	return err
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string) error {
	backoff := minLockBackoff
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("redis: acquire %s: %w", key, err)
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if backoff *= 2; backoff > maxLockBackoff {
			backoff = maxLockBackoff
		}
	}
}

func (l *RedisLocker) watchdog(key, token string, lost context.CancelCauseFunc, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			n, err := extendScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				l.log.WithError(err).WithField("lock", key).Warn("Failed to extend redis lock")
			} else if n == 0 {
				l.log.WithField("lock", key).Error("Redis lock was lost while held")
				lost(lock.ErrLost)
				return
			}
		}
	}
}
