// Package lock provides per-document mutual exclusion across processes.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/creditreport-extractor/internal/common"
)

// Release gives the lock back. It is safe to call after the TTL expired.
type Release func(ctx context.Context) error

// Locker hands out exclusive leases keyed by document.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

const keyPrefix = "creditreport:lock:"

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisFromURL connects to url and verifies it with a ping. An empty url
// returns nil so callers can fall back to a local locker.
func NewRedisFromURL(ctx context.Context, url string, ttl time.Duration, logger *slog.Logger) (*RedisLocker, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisLocker(client, ttl, logger), nil
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLocker{client: client, ttl: ttl, logger: logger}
}

// Acquire sets the key with NX and a TTL. A held key yields ErrExtractionInProgress.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (Release, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, keyPrefix+key, token, l.ttl).Result()
	if err != nil {
		l.logger.Error("lock.acquire.failed", "key", key, "error", err)
		return nil, common.NewAppError("LOCK_ERROR", "acquire document lock", err)
	}
	if !ok {
		return nil, common.NewAppError("EXTRACTION_IN_PROGRESS",
			fmt.Sprintf("document %s is locked by another worker", key), common.ErrExtractionInProgress)
	}
	l.logger.Debug("lock.acquired", "key", key, "ttl_ms", l.ttl.Milliseconds())
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{keyPrefix + key}, token).Err(); err != nil {
			l.logger.Warn("lock.release.failed", "key", key, "error", err)
			return err
		}
		return nil
	}, nil
}

func (l *RedisLocker) Health(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}

// Local is an in-process Locker for single-instance deployments and tests.
type Local struct {
	mu   sync.Mutex
	held map[string]string
}

func NewLocal() *Local {
	return &Local{held: map[string]string{}}
}

func (l *Local) Acquire(_ context.Context, key string) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, common.NewAppError("EXTRACTION_IN_PROGRESS",
			fmt.Sprintf("document %s is locked", key), common.ErrExtractionInProgress)
	}
	token := uuid.NewString()
	l.held[key] = token
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key] == token {
			delete(l.held, key)
		}
		return nil
	}, nil
}
