package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "fusion:"

// RedisDurable persists cache entries in Redis. Values are JSON so foreign
// readers can inspect them; an unreadable value is removed and reported as
// not-found.
type RedisDurable struct {
	client *redis.Client
}

// NewRedisDurable connects and pings Redis.
func NewRedisDurable(addr, password string) (*RedisDurable, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisDurable{client: client}, nil
}

func redisKey(key, category string) string {
	return redisKeyPrefix + category + ":" + key
}

func (d *RedisDurable) Get(ctx context.Context, key, category string) (Entry, bool, error) {
	data, err := d.client.Get(ctx, redisKey(key, category)).Bytes()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		// Corrupted value: drop it and treat as absent.
		_ = d.client.Del(ctx, redisKey(key, category)).Err()
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (d *RedisDurable) Put(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	// No Redis-side TTL: expiry policy lives in the Store, per category.
	return d.client.Set(ctx, redisKey(e.Key, e.Category), data, 0).Err()
}

func (d *RedisDurable) Delete(ctx context.Context, key, category string) error {
	return d.client.Del(ctx, redisKey(key, category)).Err()
}

func (d *RedisDurable) Clear(ctx context.Context, categories ...string) error {
	patterns := []string{redisKeyPrefix + "*"}
	if len(categories) > 0 {
		patterns = patterns[:0]
		for _, c := range categories {
			patterns = append(patterns, redisKeyPrefix+c+":*")
		}
	}

	for _, pattern := range patterns {
		iter := d.client.Scan(ctx, 0, pattern, 0).Iterator()
		pipe := d.client.Pipeline()
		count := 0
		for iter.Next(ctx) {
			pipe.Del(ctx, iter.Val())
			count++
		}
		if err := iter.Err(); err != nil {
			return err
		}
		if count > 0 {
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *RedisDurable) CountByCategory(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	iter := d.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		rest := strings.TrimPrefix(iter.Val(), redisKeyPrefix)
		if idx := strings.IndexByte(rest, ':'); idx > 0 {
			counts[rest[:idx]]++
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func (d *RedisDurable) Close() error {
	return d.client.Close()
}
