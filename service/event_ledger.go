package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventLedger records processed webhook event ids so re-deliveries are
// acknowledged without re-applying their effects.
type EventLedger interface {
	// MarkProcessed returns true the first time an event id is seen.
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
	// Forget drops a mark so a failed delivery can be retried.
	Forget(ctx context.Context, provider, eventID string) error
}

// MemoryEventLedger keeps marks in a MemoryKV.
type MemoryEventLedger struct {
	kv        *MemoryKV
	keys      Keyspace
	retention time.Duration
}

func NewMemoryEventLedger(kv *MemoryKV, keys Keyspace, retention time.Duration) *MemoryEventLedger {
	return &MemoryEventLedger{kv: kv, keys: keys, retention: retention}
}

func (l *MemoryEventLedger) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	return l.kv.SetIfAbsent(ctx, l.keys.Key("webhook", provider, eventID), []byte(time.Now().UTC().Format(time.RFC3339)), l.retention)
}

func (l *MemoryEventLedger) Forget(ctx context.Context, provider, eventID string) error {
	return l.kv.Delete(ctx, l.keys.Key("webhook", provider, eventID))
}

// RedisEventLedger uses SETNX with a retention TTL.
type RedisEventLedger struct {
	client    *redis.Client
	keys      Keyspace
	retention time.Duration
}

func NewRedisEventLedger(client *redis.Client, keys Keyspace, retention time.Duration) *RedisEventLedger {
	return &RedisEventLedger{client: client, keys: keys, retention: retention}
}

func (l *RedisEventLedger) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.keys.Key("webhook", provider, eventID), time.Now().UTC().Format(time.RFC3339), l.retention).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (l *RedisEventLedger) Forget(ctx context.Context, provider, eventID string) error {
	if err := l.client.Del(ctx, l.keys.Key("webhook", provider, eventID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
