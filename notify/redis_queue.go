package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueueConfig names the Redis lists backing the queue.
type RedisQueueConfig struct {
	Key string
	// DeadLetterKey receives messages whose retries were exhausted.
	DeadLetterKey string
	PollTimeout   time.Duration
	Retry         RetryConfig
}

// RedisQueue persists best-effort messages in a Redis list so they survive
// a process restart. Producers call Enqueue; one or more processes call Run.
type RedisQueue struct {
	redis    redis.UniversalClient
	cfg      RedisQueueConfig
	notifier Notifier
	logger   *slog.Logger
	dropped  atomic.Uint64
}

// NewRedisQueue returns a queue. notifier may be nil for producer-only use.
func NewRedisQueue(client redis.UniversalClient, cfg RedisQueueConfig, notifier Notifier, logger *slog.Logger) (*RedisQueue, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if cfg.Key == "" {
		cfg.Key = "rbacauth:notify"
	}
	if cfg.DeadLetterKey == "" {
		cfg.DeadLetterKey = cfg.Key + ":dead"
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RedisQueue{redis: client, cfg: cfg, notifier: notifier, logger: logger}, nil
}

// Push appends msg to the queue.
func (q *RedisQueue) Push(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := q.redis.LPush(ctx, q.cfg.Key, payload).Err(); err != nil {
		return fmt.Errorf("notify queue push: %w", err)
	}
	return nil
}

// Enqueue is Push without an error result; failures are logged and counted.
func (q *RedisQueue) Enqueue(ctx context.Context, msg Message) {
	if err := q.Push(ctx, msg); err != nil {
		q.dropped.Add(1)
		q.logger.Warn("notify: enqueue failed", "kind", string(msg.Kind), "error", err)
	}
}

func (q *RedisQueue) Dropped() uint64 { return q.dropped.Load() }

// Len reports the number of pending messages.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.redis.LLen(ctx, q.cfg.Key).Result()
}

// DeadLetters reports the number of messages that exhausted their retries.
func (q *RedisQueue) DeadLetters(ctx context.Context) (int64, error) {
	return q.redis.LLen(ctx, q.cfg.DeadLetterKey).Result()
}

// Run consumes messages until ctx is cancelled.
func (q *RedisQueue) Run(ctx context.Context) error {
	if q.notifier == nil {
		return errors.New("notify queue has no notifier")
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if _, err := q.ProcessOne(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			q.logger.Warn("notify: queue poll failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(q.cfg.PollTimeout):
			}
		}
	}
}

// ProcessOne waits up to PollTimeout for a message and delivers it.
// It reports false when no message arrived.
func (q *RedisQueue) ProcessOne(ctx context.Context) (bool, error) {
	res, err := q.redis.BRPop(ctx, q.cfg.PollTimeout, q.cfg.Key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if len(res) != 2 {
		return false, nil
	}

	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		q.logger.Warn("notify: discarding undecodable message", "error", err)
		return true, nil
	}

	attempts, err := sendWithRetry(ctx, q.notifier, q.cfg.Retry, msg)
	if err != nil {
		q.logger.Warn("notify: queued delivery failed",
			"kind", string(msg.Kind),
			"attempts", attempts,
			"error", err,
		)
		if dlErr := q.redis.LPush(context.WithoutCancel(ctx), q.cfg.DeadLetterKey, res[1]).Err(); dlErr != nil {
			q.logger.Warn("notify: dead-letter push failed", "error", dlErr)
		}
	}
	return true, nil
}
