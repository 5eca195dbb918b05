// cache хранит отметки об использованных одноразовых ссылках.
// Redis — при наличии redis.redis_url, иначе in-process карта.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// UsedLinks — минимальный контракт «погашенных» ссылок.
type UsedLinks interface {
	// MarkUsed атомарно помечает ключ использованным на ttl (0 — бессрочно).
	// Возвращает false, если ключ уже был помечен.
	MarkUsed(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release снимает отметку, если операцию по ссылке не удалось завершить.
	Release(ctx context.Context, key string) error
	// Close освобождает ресурсы.
	Close() error
}

type redisUsedLinks struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisUsedLinks создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой — используется "auth:link:".
func NewRedisUsedLinks(ctx context.Context, redisURL, prefix string) (UsedLinks, error) {
	const op = "cache.NewRedisUsedLinks"

	if prefix == "" {
		prefix = "auth:link:"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &redisUsedLinks{rdb: rdb, prefix: prefix}, nil
}

func (c *redisUsedLinks) MarkUsed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	const op = "cache.redis.MarkUsed"

	ok, err := c.rdb.SetNX(ctx, c.prefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return ok, nil
}

func (c *redisUsedLinks) Release(ctx context.Context, key string) error {
	const op = "cache.redis.Release"

	if err := c.rdb.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *redisUsedLinks) Close() error { return c.rdb.Close() }

type memoryUsedLinks struct {
	mu   sync.Mutex
	keys map[string]time.Time // нулевое время — бессрочно
	now  func() time.Time
}

// NewMemoryUsedLinks создаёт in-process реализацию UsedLinks.
// Отметки не переживают рестарт и не разделяются между репликами.
func NewMemoryUsedLinks() UsedLinks {
	return &memoryUsedLinks{keys: make(map[string]time.Time), now: time.Now}
}

func (c *memoryUsedLinks) MarkUsed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("cache.memory.MarkUsed: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if exp, ok := c.keys[key]; ok && (exp.IsZero() || now.Before(exp)) {
		return false, nil
	}

	var exp time.Time
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	c.keys[key] = exp

	// Чистим протухшие ключи, чтобы карта не росла бесконечно.
	for k, e := range c.keys {
		if !e.IsZero() && !now.Before(e) {
			delete(c.keys, k)
		}
	}

	return true, nil
}

func (c *memoryUsedLinks) Release(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cache.memory.Release: %w", err)
	}

	c.mu.Lock()
	delete(c.keys, key)
	c.mu.Unlock()

	return nil
}

func (c *memoryUsedLinks) Close() error { return nil }
