// Package cache provides the Redis-backed short-lived key/value cache
// and the durable FIFO job queue. Both share one bounded connection
// pool; acquire failures surface as ErrPoolTimeout.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// JobQueue is the pending-ingest list. Uploads RPUSH client ids,
	// workers BLPOP them.
	JobQueue = "syncx_queue"
	// DeadLetterQueue receives job ids whose retries are exhausted.
	DeadLetterQueue = "syncx_queue_dead"
)

// ErrPoolTimeout is returned when no connection could be acquired
// within the configured timeout.
var ErrPoolTimeout = errors.New("cache: connection pool timeout")

// Cache is the lookup capability used by the stores and services.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Queue is the durable FIFO capability. BlockingPop blocks until a
// value is available or the context is cancelled.
type Queue interface {
	Push(ctx context.Context, queue, value string) error
	BlockingPop(ctx context.Context, queue string) (string, error)
}

// Config bounds the shared pool.
type Config struct {
	URL            string
	MaxOpen        int
	MinIdle        int
	IdleTTL        time.Duration
	AcquireTimeout time.Duration
}

// DefaultConfig returns the production pool bounds.
func DefaultConfig(url string) Config {
	return Config{
		URL:            url,
		MaxOpen:        16,
		MinIdle:        8,
		IdleTTL:        60 * time.Second,
		AcquireTimeout: time.Second,
	}
}

// Client implements Cache and Queue on a single go-redis client.
type Client struct {
	rdb *redis.Client
}

// New connects to Redis at cfg.URL with the configured pool bounds.
func New(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opts.PoolSize = cfg.MaxOpen
	opts.MinIdleConns = cfg.MinIdle
	opts.ConnMaxIdleTime = cfg.IdleTTL
	opts.PoolTimeout = cfg.AcquireTimeout

	return &Client{rdb: redis.NewClient(opts)}, nil
}

// Get returns the value for key; the second return is false on a miss.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapPoolErr("get %s", key, err)
	}
	return value, true, nil
}

// Set stores value under key.
func (c *Client) Set(ctx context.Context, key, value string) error {
	if err := c.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return wrapPoolErr("set %s", key, err)
	}
	return nil
}

// Push appends value to the right of queue.
func (c *Client) Push(ctx context.Context, queue, value string) error {
	if err := c.rdb.RPush(ctx, queue, value).Err(); err != nil {
		return wrapPoolErr("rpush %s", queue, err)
	}
	return nil
}

// BlockingPop pops from the left of queue, blocking indefinitely.
// Exactly one consumer receives each pushed value.
func (c *Client) BlockingPop(ctx context.Context, queue string) (string, error) {
	res, err := c.rdb.BLPop(ctx, 0, queue).Result()
	if err != nil {
		return "", wrapPoolErr("blpop %s", queue, err)
	}
	// BLPOP returns [key, value].
	if len(res) != 2 {
		return "", fmt.Errorf("blpop %s: unexpected reply of %d elements", queue, len(res))
	}
	return res[1], nil
}

// Ping verifies connectivity, used at startup.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func wrapPoolErr(format, arg string, err error) error {
	if errors.Is(err, redis.ErrPoolTimeout) {
		return fmt.Errorf(format+": %w", arg, ErrPoolTimeout)
	}
	return fmt.Errorf(format+": %w", arg, err)
}
