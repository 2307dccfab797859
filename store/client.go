// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds the connection parameters for the shared store.
type Config struct {
	// Addr is the host:port of the Redis server. Required.
	Addr string

	// Password authenticates the connection. Empty means none.
	Password string

	// DB selects the logical database. Zero is the default database.
	DB int

	// DialTimeout bounds connection establishment. Zero or negative
	// defaults to 5 seconds.
	DialTimeout time.Duration
}

// Client is a thin wrapper over a Redis connection exposing the
// primitives the reconciliation queue is built on. Methods wrap
// errors with the operation and key; nil replies normalize to a
// found=false return instead of an error.
//
// All methods are safe for concurrent use.
type Client struct {
	rdb *redis.Client
}

// New constructs a client. It does not dial; the first command (or an
// explicit Ping) establishes the connection.
func New(cfg Config) (*Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("store: Addr is required")
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	})
	return &Client{rdb: rdb}, nil
}

// Ping verifies the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// --- lists ---

// RPush appends values to the tail of the list at key.
func (c *Client) RPush(ctx context.Context, key string, values ...string) error {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	if err := c.rdb.RPush(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", key, err)
	}
	return nil
}

// LPop removes and returns the head of the list at key. An empty or
// missing list returns found=false.
func (c *Client) LPop(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.LPop(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lpop %s: %w", key, err)
	}
	return v, true, nil
}

// LRange returns the elements of the list at key between start and
// stop, inclusive. Negative indexes count from the tail.
func (c *Client) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vs, err := c.rdb.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}
	return vs, nil
}

// LLen returns the length of the list at key; missing keys count 0.
func (c *Client) LLen(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", key, err)
	}
	return n, nil
}

// LTrim trims the list at key to the window [start, stop].
func (c *Client) LTrim(ctx context.Context, key string, start, stop int64) error {
	if err := c.rdb.LTrim(ctx, key, start, stop).Err(); err != nil {
		return fmt.Errorf("ltrim %s: %w", key, err)
	}
	return nil
}

// --- sorted sets ---

// ZAdd inserts member at score, replacing any previous score.
func (c *Client) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if err := c.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("zadd %s: %w", key, err)
	}
	return nil
}

// ZPopMax removes and returns the highest-scored member. An empty set
// returns found=false.
func (c *Client) ZPopMax(ctx context.Context, key string) (string, float64, bool, error) {
	zs, err := c.rdb.ZPopMax(ctx, key).Result()
	if err != nil {
		return "", 0, false, fmt.Errorf("zpopmax %s: %w", key, err)
	}
	if len(zs) == 0 {
		return "", 0, false, nil
	}
	member, _ := zs[0].Member.(string)
	return member, zs[0].Score, true, nil
}

// ZRangeByScoreLimit returns up to count members with min <= score <=
// max, lowest score first.
func (c *Client) ZRangeByScoreLimit(ctx context.Context, key string, min, max float64, count int64) ([]string, error) {
	vs, err := c.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   strconv.FormatFloat(min, 'f', -1, 64),
		Max:   strconv.FormatFloat(max, 'f', -1, 64),
		Count: count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore %s: %w", key, err)
	}
	return vs, nil
}

// ZRange returns members between rank start and stop, lowest score
// first; ties order lexicographically. Negative ranks count from the
// highest score.
func (c *Client) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vs, err := c.rdb.ZRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange %s: %w", key, err)
	}
	return vs, nil
}

// ZRem removes members and reports how many were present. The count
// is the claim guard for competing dequeuers: removing an id that a
// concurrent poller already claimed reports 0.
func (c *Client) ZRem(ctx context.Context, key string, members ...string) (int64, error) {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	n, err := c.rdb.ZRem(ctx, key, args...).Result()
	if err != nil {
		return 0, fmt.Errorf("zrem %s: %w", key, err)
	}
	return n, nil
}

// ZCard returns the cardinality of the sorted set at key.
func (c *Client) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard %s: %w", key, err)
	}
	return n, nil
}

// --- hashes ---

// HSet writes the given fields into the hash at key.
func (c *Client) HSet(ctx context.Context, key string, fields map[string]string) error {
	args := make([]any, 0, len(fields)*2)
	for f, v := range fields {
		args = append(args, f, v)
	}
	if err := c.rdb.HSet(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// HGetAll reads every field of the hash at key; a missing key returns
// an empty map.
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", key, err)
	}
	return m, nil
}

// HIncrBy adds incr to an integer field, creating it at zero first if
// absent, and returns the new value.
func (c *Client) HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error) {
	n, err := c.rdb.HIncrBy(ctx, key, field, incr).Result()
	if err != nil {
		return 0, fmt.Errorf("hincrby %s %s: %w", key, field, err)
	}
	return n, nil
}

// --- sets ---

// SAdd inserts members into the set at key.
func (c *Client) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := c.rdb.SAdd(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("sadd %s: %w", key, err)
	}
	return nil
}

// SRem removes members from the set at key and reports how many were
// present.
func (c *Client) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	n, err := c.rdb.SRem(ctx, key, args...).Result()
	if err != nil {
		return 0, fmt.Errorf("srem %s: %w", key, err)
	}
	return n, nil
}

// SCard returns the cardinality of the set at key.
func (c *Client) SCard(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.SCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("scard %s: %w", key, err)
	}
	return n, nil
}

// SMembers returns every member of the set at key.
func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	ms, err := c.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", key, err)
	}
	return ms, nil
}

// --- strings ---

// Get reads the value at key. A missing key returns found=false.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return b, true, nil
}

// SetWithTTL writes value at key with the given expiry. A zero ttl
// stores the key without expiry.
func (c *Client) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Del removes keys and reports how many existed.
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("del: %w", err)
	}
	return n, nil
}

// Expire sets the expiry of an existing key.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("expire %s: %w", key, err)
	}
	return nil
}
