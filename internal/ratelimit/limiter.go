// Package ratelimit реализует ограничение частоты запросов поверх Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter ограничивает число запросов по ключу в фиксированном окне.
// Счётчики хранятся в Redis и общие для всех экземпляров сервиса.
type Limiter struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

// NewLimiter создаёт ограничитель на limit запросов за window.
func NewLimiter(client *redis.Client, prefix string, limit int64, window time.Duration) (*Limiter, error) {
	if client == nil {
		return nil, errors.New("redis client not configured")
	}
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	if window <= 0 {
		return nil, errors.New("window must be positive")
	}
	return &Limiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
	}, nil
}

// Allow учитывает запрос по ключу и сообщает, разрешён ли он. При отказе
// возвращается время до сброса окна.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := l.prefix + ":" + key

	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("incr %s: %w", k, err)
	}

	if n == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("expire %s: %w", k, err)
		}
	}

	if n <= l.limit {
		return true, 0, nil
	}

	ttl, err := l.client.TTL(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("ttl %s: %w", k, err)
	}
	if ttl < 0 {
		// Ключ без срока жизни остался после сбоя между INCR и EXPIRE.
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("expire %s: %w", k, err)
		}
		ttl = l.window
	}

	return false, ttl, nil
}
