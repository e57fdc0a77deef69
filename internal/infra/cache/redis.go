package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"tg-broadcast-bot/internal/infra/metrics"
)

// NewClient создаёт клиент Redis и проверяет соединение.
func NewClient(addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// RedisCache реализует domain.Cache через Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedis создаёт кэш.
func NewRedis(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set задаёт значение.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := c.client.Set(ctx, key, value, ttl).Err()
	metrics.ObserveNetworkRequest("redis", "set", key, start, err)
	return err
}

// Get возвращает значение.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	data, err := c.client.Get(ctx, key).Bytes()
	metrics.ObserveNetworkRequest("redis", "get", key, start, err)
	return data, err
}

// RunLease реализует аренду на время рассылки через SetNX.
// Пока аренда жива, второй экземпляр бота не начнёт свою рассылку.
type RunLease struct {
	client *redis.Client
	key    string
}

// NewRunLease создаёт аренду по указанному ключу.
func NewRunLease(client *redis.Client, key string) *RunLease {
	return &RunLease{client: client, key: key}
}

// Acquire пытается захватить аренду. false означает, что аренда занята.
func (l *RunLease) Acquire(ctx context.Context, value string, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := l.client.SetNX(ctx, l.key, value, ttl).Result()
	metrics.ObserveNetworkRequest("redis", "lease_acquire", l.key, start, err)
	return ok, err
}

// Release освобождает аренду, только если она принадлежит value.
func (l *RunLease) Release(ctx context.Context, value string) error {
	current, err := l.client.Get(ctx, l.key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return err
	}
	if current != value {
		return nil
	}
	start := time.Now()
	err = l.client.Del(ctx, l.key).Err()
	metrics.ObserveNetworkRequest("redis", "lease_release", l.key, start, err)
	return err
}

// AuditTrail хранит итоги рассылок в ограниченном списке Redis.
type AuditTrail struct {
	client *redis.Client
	key    string
	max    int64
}

// NewAuditTrail создаёт журнал по указанному ключу, не длиннее max записей.
func NewAuditTrail(client *redis.Client, key string, max int64) *AuditTrail {
	if max <= 0 {
		max = 1000
	}
	return &AuditTrail{client: client, key: key, max: max}
}

// Append добавляет запись в начало списка и обрезает хвост.
func (t *AuditTrail) Append(ctx context.Context, entry []byte) error {
	start := time.Now()
	err := t.client.LPush(ctx, t.key, entry).Err()
	metrics.ObserveNetworkRequest("redis", "audit_append", t.key, start, err)
	if err != nil {
		return err
	}
	return t.client.LTrim(ctx, t.key, 0, t.max-1).Err()
}
