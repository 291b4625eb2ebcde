// Package lock 按 key 串行化的互斥锁，用于重命名时关闭 update/insert 之间的竞争窗口
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"chatrelay/internal/pkg/cache"
)

// ErrLockTimeout 在 ctx 结束前没有拿到锁
var ErrLockTimeout = errors.New("lock: timed out waiting for key")

// Locker 按 key 加锁，返回的 unlock 必须调用且只调用一次
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Local 进程内按 key 加锁
type Local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

// NewLocal 创建进程内锁
func NewLocal() *Local {
	return &Local{locks: make(map[string]*entry)}
}

// Lock 实现 Locker
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, errors.Join(ErrLockTimeout, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
	}, nil
}

func (l *Local) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// Redis 基于 SET NX PX 的分布式锁，多实例部署时使用
type Redis struct {
	cache *cache.RedisCache
	ttl   time.Duration
	retry time.Duration
}

// NewRedis 创建分布式锁，ttl 为锁的最长持有时间
func NewRedis(c *cache.RedisCache, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Redis{cache: c, ttl: ttl, retry: 50 * time.Millisecond}
}

// Lock 实现 Locker，轮询直到拿到锁或 ctx 结束
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	key = cache.ConversationLockKey(key)
	token := uuid.NewString()

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()
	for {
		ok, err := r.cache.SetNX(ctx, key, token, r.ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrLockTimeout, ctx.Err())
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if err := r.cache.Release(releaseCtx, key, token); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("failed to release lock")
			}
		})
	}, nil
}
