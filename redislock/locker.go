package redislock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xiaoxuxiansheng/redis_lock"
)

// 回查锁 key，同一 broker 组的主节点在切换期间只允许一个回查轮次
func BuildCheckLockKey(cluster string) string {
	return fmt.Sprintf("gotxstate:check:lock:%s", cluster)
}

type Locker struct {
	key    string
	client *redis_lock.Client

	mux  sync.Mutex
	lock *redis_lock.RedisLock
}

func NewRedisClient(network, address, password string) *redis_lock.Client {
	return redis_lock.NewClient(network, address, password)
}

func NewLocker(client *redis_lock.Client, cluster string) *Locker {
	return &Locker{
		key:    BuildCheckLockKey(cluster),
		client: client,
	}
}

func (l *Locker) Lock(ctx context.Context, expireDuration time.Duration) error {
	expireSeconds := int64(expireDuration.Seconds())
	if expireSeconds <= 0 {
		expireSeconds = 1
	}
	lock := redis_lock.NewRedisLock(l.key, l.client, redis_lock.WithExpireSeconds(expireSeconds))
	if err := lock.Lock(ctx); err != nil {
		return err
	}

	l.mux.Lock()
	l.lock = lock
	l.mux.Unlock()
	return nil
}

// 使用加锁时的实例解锁，保证 token 一致
func (l *Locker) Unlock(ctx context.Context) error {
	l.mux.Lock()
	lock := l.lock
	l.lock = nil
	l.mux.Unlock()

	if lock == nil {
		return nil
	}
	return lock.Unlock(ctx)
}
