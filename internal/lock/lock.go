// Package lock serializes attendance jobs per machine across processes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrBusy means another holder owns the key.
var ErrBusy = errors.New("lock is held by another job")

// Locker hands out exclusive, expiring leases on string keys.
type Locker interface {
	// Acquire returns a release func, or ErrBusy without waiting.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

func MachineKey(id uuid.UUID) string {
	return "attendance:machine:" + id.String()
}

const ProcessKey = "attendance:process"

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client *redis.Client
	prefix string
}

func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix}
}

// NewRedisLockerFromURL accepts redis://host:port/db style URLs.
func NewRedisLockerFromURL(url, prefix string) (*RedisLocker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisLocker(redis.NewClient(opts), prefix), nil
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	full := l.prefix + key
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrBusy
	}
	return func() {
		// Use a fresh context so a cancelled request still releases.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{full}, token).Err()
	}, nil
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}

type held struct {
	token   uint64
	expires time.Time
}

// LocalLocker is the single-process fallback used when redis is not configured.
type LocalLocker struct {
	mu    sync.Mutex
	keys  map[string]held
	seq   uint64
	clock func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{keys: make(map[string]held), clock: time.Now}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if h, ok := l.keys[key]; ok && now.Before(h.expires) {
		return nil, ErrBusy
	}
	l.seq++
	token := l.seq
	l.keys[key] = held{token: token, expires: now.Add(ttl)}

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if h, ok := l.keys[key]; ok && h.token == token {
			delete(l.keys, key)
		}
	}, nil
}
