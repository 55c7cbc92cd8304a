package bots

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker hands out a single-flight lock. ok is false when someone else holds it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// LocalLocker 进程内锁，单实例部署使用
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, true, nil
}

// releaseScript deletes the key only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript pushes the expiry out only while we still own the key.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// keepAlive calls refresh every interval until ctx is done or the lock is
// reported lost. It returns when it stops.
func keepAlive(ctx context.Context, interval time.Duration, key string, refresh func(context.Context) (bool, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			held, err := refresh(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				zap.L().Warn("refresh redis lock failed", zap.String("key", key), zap.Error(err))
				continue
			}
			if !held {
				zap.L().Error("redis lock lost before release", zap.String("key", key))
				return
			}
		}
	}
}

// RedisLocker 多实例部署时用 Redis SET NX PX 保证同一时刻只有一个 tick。
// 持有期间每 ttl/3 续期一次，tick 再长也不会被另一实例抢到锁。
type RedisLocker struct {
	client *redis.Client
	prefix string
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, prefix: "yoforex:lock:"}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	fullKey := l.prefix + key

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	renewCtx, stopRenew := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if ttl <= 0 {
			// 无过期时间，不需要续期
			return
		}
		keepAlive(renewCtx, ttl/3, fullKey, func(ctx context.Context) (bool, error) {
			n, err := refreshScript.Run(ctx, l.client, []string{fullKey}, token, ttl.Milliseconds()).Int64()
			return n == 1, err
		})
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			stopRenew()
			<-done
			// the caller's ctx may already be cancelled at this point
			releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{fullKey}, token).Err(); err != nil {
				zap.L().Warn("release redis lock failed", zap.String("key", fullKey), zap.Error(err))
			}
		})
	}, true, nil
}
