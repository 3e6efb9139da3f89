package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const DefaultLedgerPrefix = "rmq:attempts:"

// RedisLedger shares attempt counts between all workers through Redis.
type RedisLedger struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisLedger(client redis.Cmdable, prefix string, ttl time.Duration) *RedisLedger {
	if prefix == "" {
		prefix = DefaultLedgerPrefix
	}
	return &RedisLedger{client: client, prefix: prefix, ttl: ttl}
}

func (l *RedisLedger) Incr(ctx context.Context, id string) (int, error) {
	key := l.prefix + id

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	if l.ttl > 0 {
		pipe.Expire(ctx, key, l.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incr attempts %s: %w", id, err)
	}
	return int(incr.Val()), nil
}

func (l *RedisLedger) Forget(ctx context.Context, id string) error {
	if err := l.client.Del(ctx, l.prefix+id).Err(); err != nil {
		return fmt.Errorf("forget attempts %s: %w", id, err)
	}
	return nil
}
