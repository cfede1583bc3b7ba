// Package redisbus implements the rmi.MessageBus transport on Redis
// lists: RPUSH to publish, BLPOP to consume, one list per queue.
package redisbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quarryproj/quarry/internal/rmi"
)

// popTimeout bounds each BLPOP so the consumer loop can observe context
// cancellation between blocks.
const popTimeout = 5 * time.Second

// Bus is a Redis-backed message bus.
type Bus struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// Connect parses the Redis URL, opens a client, and verifies the
// connection with a PING before returning the bus.
func Connect(ctx context.Context, url string, logger *slog.Logger) (*Bus, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &Bus{
		rdb:    rdb,
		logger: logger.With("component", "redis_bus"),
	}, nil
}

// NewBus wraps an existing Redis client.
func NewBus(rdb *redis.Client, logger *slog.Logger) *Bus {
	return &Bus{rdb: rdb, logger: logger.With("component", "redis_bus")}
}

// Close releases the underlying Redis client.
func (b *Bus) Close() error {
	return b.rdb.Close()
}

// key namespaces a logical queue name in Redis.
func key(queue string) string {
	return "quarry:bus:" + queue
}

// Publish appends the envelope to the queue's list; RPUSH preserves
// FIFO order against the consumer's BLPOP.
func (b *Bus) Publish(ctx context.Context, queue string, env rmi.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	if err := b.rdb.RPush(ctx, key(queue), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}
	return nil
}

// Consume returns a channel of envelopes popped from the queue's list.
// The channel is closed when ctx is canceled. Envelopes that fail to
// decode are logged and skipped; transport errors back off briefly
// instead of spinning.
func (b *Bus) Consume(ctx context.Context, queue string) (<-chan rmi.Envelope, error) {
	out := make(chan rmi.Envelope)
	go func() {
		defer close(out)
		for {
			if ctx.Err() != nil {
				return
			}

			vals, err := b.rdb.BLPop(ctx, popTimeout, key(queue)).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				b.logger.Error("failed to pop from bus queue",
					"queue", queue, "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}
			if len(vals) < 2 {
				continue
			}

			var env rmi.Envelope
			if err := json.Unmarshal([]byte(vals[1]), &env); err != nil {
				b.logger.Error("discarding undecodable bus message",
					"queue", queue, "error", err)
				continue
			}

			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

var _ rmi.MessageBus = (*Bus)(nil)
