// Package lock provides a cluster-wide lease on Redis so that only one vigil
// process runs a given periodic job at a time.
//
// A lease is a key set with SET NX PX holding a random token. It expires on its
// own if the holder dies, and Release deletes it only while the token matches.
//
// Example usage:
//
//	client, err := lock.NewRedisClient(ctx, cfg.Redis)
//	locker := lock.NewRedisLocker(client, cfg.Backup.Lease.Key, cfg.Backup.Lease.TTL)
//
//	lease, ok, err := locker.TryAcquire(ctx)
//	if err != nil || !ok {
//	    return
//	}
//	defer lease.Release(context.Background())
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/Combine-Capital/vigil/pkg/config"
	"github.com/Combine-Capital/vigil/pkg/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lease is a held lock.
type Lease interface {
	// Token identifies this holder.
	Token() string

	// Release gives the lease up. Releasing a lease that expired or was taken
	// over by another holder does nothing.
	Release(ctx context.Context) error
}

// Locker hands out leases.
type Locker interface {
	// TryAcquire takes the lease if it is free. ok is false if another holder has it.
	TryAcquire(ctx context.Context) (lease Lease, ok bool, err error)
}

// releaseScript deletes the key only if it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.NewUnavailable("redis", err)
	}
	return client, nil
}

// RedisLocker is a Locker over one Redis key.
type RedisLocker struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a locker for key. Leases expire after ttl unless released.
func NewRedisLocker(client redis.Cmdable, key string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

// TryAcquire sets the key if absent.
func (l *RedisLocker) TryAcquire(ctx context.Context) (Lease, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		if errors.IsCancelled(err) {
			return nil, false, errors.NewCancelled("acquire lease", err)
		}
		return nil, false, errors.NewUnavailable("redis", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLease{client: l.client, key: l.key, token: token}, true, nil
}

// Holder returns the token of the current holder, or "" if the lease is free.
func (l *RedisLocker) Holder(ctx context.Context) (string, error) {
	token, err := l.client.Get(ctx, l.key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", errors.NewUnavailable("redis", err)
	}
	return token, nil
}

type redisLease struct {
	client redis.Cmdable
	key    string
	token  string
}

func (l *redisLease) Token() string {
	return l.token
}

func (l *redisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return errors.NewUnavailable("redis", err)
	}
	return nil
}
