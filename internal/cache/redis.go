// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/beezo-bot/beezo/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list (queue) name for session action records.
const DefaultQueueName = "beezo_actions"

// Connect opens a Redis client and pings it.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Pusher is the slice of the Redis API the publisher needs; *redis.Client satisfies it.
type Pusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// Publisher pushes session action records onto the historian queue. A nil Publisher, or one
// without a client, drops records silently so sessions run without Redis.
type Publisher struct {
	client Pusher
	queue  string
}

func NewPublisher(client Pusher, queue string) *Publisher {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &Publisher{client: client, queue: queue}
}

// RecordAction serializes the record to JSON, then pushes it to the Redis queue.
func (p *Publisher) RecordAction(ctx context.Context, rec models.SessionActionRecord) error {
	if p == nil || p.client == nil {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal SessionActionRecord: %w", err)
	}
	if err := p.client.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.queue, err)
	}
	return nil
}

// Queue returns the list records are pushed to.
func (p *Publisher) Queue() string { return p.queue }
