// Package bus wraps the redis-backed queue, pubsub and cache operations
// shared by services, handlers and workers.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/examguard/examguard-backend/internal/config"
	"github.com/redis/go-redis/v9"
)

// Bus is the concrete redis implementation.
type Bus struct {
	rdb *redis.Client
}

// New creates a Bus over a redis client.
func New(rdb *redis.Client) *Bus {
	return &Bus{rdb: rdb}
}

// Enqueue marshals v and pushes it onto the named worker queue.
func (b *Bus) Enqueue(ctx context.Context, queue string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal queue payload: %w", err)
	}
	return b.rdb.RPush(ctx, queue, raw).Err()
}

// Publish marshals v and publishes it on the named pubsub channel.
func (b *Bus) Publish(ctx context.Context, channel string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal pubsub payload: %w", err)
	}
	return b.rdb.Publish(ctx, channel, raw).Err()
}

// Subscribe opens a pubsub subscription on the named channel.
func (b *Bus) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return b.rdb.Subscribe(ctx, channel)
}

// CacheStart stores an attempt's start time so roster polls avoid the DB.
func (b *Bus) CacheStart(ctx context.Context, attemptID string, t time.Time) error {
	return b.rdb.Set(ctx, config.CacheKey.AttemptStartKey(attemptID), t.Unix(), 0).Err()
}

// LookupStart returns the cached start time, with ok=false on a miss.
func (b *Bus) LookupStart(ctx context.Context, attemptID string) (time.Time, bool, error) {
	val, err := b.rdb.Get(ctx, config.CacheKey.AttemptStartKey(attemptID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid start time in cache: %w", err)
	}
	return time.Unix(unix, 0), true, nil
}

// CacheAnswer records one autosaved answer for progress counting.
func (b *Bus) CacheAnswer(ctx context.Context, attemptID, questionID, value string) error {
	return b.rdb.HSet(ctx, config.CacheKey.AttemptAnswersKey(attemptID), questionID, value).Err()
}

// AnsweredCount returns the number of autosaved answers for an attempt.
func (b *Bus) AnsweredCount(ctx context.Context, attemptID string) (int64, error) {
	return b.rdb.HLen(ctx, config.CacheKey.AttemptAnswersKey(attemptID)).Result()
}

// ClearAnswers drops the autosave buffer once an attempt reaches a
// terminal state.
func (b *Bus) ClearAnswers(ctx context.Context, attemptID string) error {
	return b.rdb.Del(ctx, config.CacheKey.AttemptAnswersKey(attemptID)).Err()
}
