// Package redis is a thin wrapper around go-redis providing exactly the
// primitives pkg/bridge/redisbridge needs to mirror sensor streaming
// state outward and pull host commands inward: field writes that also
// publish a change notification, plus a blocking list pop for the
// command queue.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps a go-redis client with hash-write-and-publish helpers and a
// blocking list pop; it does not subscribe to channels.
type Client struct {
	client *redis.Client
	ctx    context.Context
}

// New creates a new Redis client and verifies connectivity with a Ping.
func New(addr string, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{client: client, ctx: ctx}, nil
}

// WriteAndPublishString writes a string value to Redis and publishes it.
func (c *Client) WriteAndPublishString(key, field, value string) error {
	pipe := c.client.Pipeline()
	pipe.HSet(c.ctx, key, field, value)
	pipe.Publish(c.ctx, key, fmt.Sprintf("%s:%s", field, value))
	_, err := pipe.Exec(c.ctx)
	return err
}

// WriteAndPublishInt writes an integer value to Redis and publishes it.
func (c *Client) WriteAndPublishInt(key, field string, value int) error {
	pipe := c.client.Pipeline()
	pipe.HSet(c.ctx, key, field, value)
	pipe.Publish(c.ctx, key, fmt.Sprintf("%s:%d", field, value))
	_, err := pipe.Exec(c.ctx)
	return err
}

// BRPop performs a blocking right pop (BRPOP) on a Redis list, waiting up
// to timeout (0 blocks indefinitely). Returns (nil, nil) on timeout.
func (c *Client) BRPop(timeout time.Duration, key string) ([]string, error) {
	result, err := c.client.BRPop(c.ctx, timeout, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		log.Printf("Error during BRPOP on key %s: %v", key, err)
		return nil, err
	}
	if len(result) != 2 {
		log.Printf("Unexpected result length from BRPOP on key %s: %d", key, len(result))
		return nil, fmt.Errorf("unexpected result from BRPOP: %v", result)
	}
	return result, nil
}

// Close closes the Redis client connection.
func (c *Client) Close() error {
	return c.client.Close()
}
