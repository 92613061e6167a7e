package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FeatureScope/pkg/errors"
)

var (
	ErrLockNotAcquired = errors.New(errors.ErrCodeConflict, "lock held by another owner")
	ErrLockNotHeld     = errors.New(errors.ErrCodeConflict, "lock not held by this owner")
)

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	end
	return 0
`)

// LockOption configures a Locker.
type LockOption func(*Locker)

// WithLockTTL sets how long a lease lives unless released or extended.
func WithLockTTL(ttl time.Duration) LockOption {
	return func(l *Locker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithRetryDelay sets the polling interval of Acquire.
func WithRetryDelay(d time.Duration) LockOption {
	return func(l *Locker) {
		if d > 0 {
			l.retryDelay = d
		}
	}
}

// WithLockPrefix namespaces lock keys.
func WithLockPrefix(prefix string) LockOption {
	return func(l *Locker) { l.prefix = prefix }
}

// Locker hands out single-owner leases on Redis keys.
type Locker struct {
	client     *Client
	logger     logging.Logger
	prefix     string
	ttl        time.Duration
	retryDelay time.Duration
}

// NewLocker builds a Locker over client.
func NewLocker(client *Client, log logging.Logger, opts ...LockOption) *Locker {
	if log == nil {
		log = logging.NewNopLogger()
	}
	l := &Locker{
		client:     client,
		logger:     log.Named("lock"),
		prefix:     "featurescope:",
		ttl:        30 * time.Second,
		retryDelay: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock is a held lease.
type Lock struct {
	client *Client
	key    string
	token  string
}

func (l *Locker) key(name string) string { return l.prefix + "lock:" + name }

// TryAcquire takes the lease on name if it is free.
func (l *Locker) TryAcquire(ctx context.Context, name string) (*Lock, error) {
	if l.client.isClosed() {
		return nil, ErrClientClosed
	}
	key, token := l.key(name), uuid.NewString()
	ok, err := l.client.Underlying().SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "lock acquire failed").WithDetail(key)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return &Lock{client: l.client, key: key, token: token}, nil
}

// Acquire polls until the lease on name is free or ctx is done.
func (l *Locker) Acquire(ctx context.Context, name string) (*Lock, error) {
	ticker := time.NewTicker(l.retryDelay)
	defer ticker.Stop()
	for {
		lock, err := l.TryAcquire(ctx, name)
		if err == nil || !errors.Is(err, ErrLockNotAcquired) {
			return lock, err
		}
		select {
		case <-ctx.Done():
			l.logger.Debug("lock wait abandoned", logging.String("name", name), logging.Err(ctx.Err()))
			return nil, ErrLockNotAcquired.WithCause(ctx.Err())
		case <-ticker.C:
		}
	}
}

// Key returns the Redis key of the lease.
func (k *Lock) Key() string { return k.key }

// Release frees the lease. It fails with ErrLockNotHeld once the lease has
// expired or passed to another owner.
func (k *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, k.client.Underlying(), []string{k.key}, k.token).Int64()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "lock release failed").WithDetail(k.key)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend pushes the expiry of a still-held lease to ttl from now.
func (k *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, k.client.Underlying(), []string{k.key}, k.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "lock extend failed").WithDetail(k.key)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
