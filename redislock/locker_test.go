package redislock

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/agiledragon/gomonkey/v2"
	"github.com/stretchr/testify/assert"

	"github.com/xiaoxuxiansheng/gotxstate"
	"github.com/xiaoxuxiansheng/redis_lock"
)

func Test_BuildKey(t *testing.T) {
	assert.Equal(t, "gotxstate:check:lock:broker-a", BuildCheckLockKey("broker-a"))
}

func Test_Locker_Lock(t *testing.T) {
	lockErr := "lockErr"
	lockErrCtxKey := &lockErr
	var unlocked int
	patch := gomonkey.ApplyMethod(reflect.TypeOf(&redis_lock.RedisLock{}), "Lock", func(_ *redis_lock.RedisLock, ctx context.Context) error {
		lockErr, _ := ctx.Value(lockErrCtxKey).(bool)
		if lockErr {
			return errors.New("lock err")
		}
		return nil
	})
	patch = patch.ApplyMethod(reflect.TypeOf(&redis_lock.RedisLock{}), "Unlock", func(_ *redis_lock.RedisLock, ctx context.Context) error {
		unlocked++
		return nil
	})
	defer patch.Reset()

	var locker gotxstate.TickLocker = NewLocker(&redis_lock.Client{}, "broker-a")

	ctx := context.Background()
	err := locker.Lock(ctx, time.Second)
	assert.Equal(t, nil, err)
	err = locker.Unlock(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, unlocked)

	// 未持有锁时解锁直接返回
	err = locker.Unlock(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, unlocked)

	err = locker.Lock(context.WithValue(ctx, lockErrCtxKey, true), 500*time.Millisecond)
	assert.Equal(t, true, err != nil)
	err = locker.Unlock(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, unlocked)
}

func Test_NewRedisClient(t *testing.T) {
	assert.Equal(t, reflect.TypeOf(&redis_lock.Client{}), reflect.TypeOf(NewRedisClient("tcp", "", "")))
}
