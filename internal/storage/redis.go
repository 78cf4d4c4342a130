// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jeranaias/rigchat/internal/metrics"
)

// redisKeyPrefix namespaces rigchat keys in a shared Redis.
const redisKeyPrefix = "rigchat:"

// RedisStore keeps blobs as plain Redis strings with no expiry.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Get implements BlobStore.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	defer metrics.ObserveStorage(BackendRedis, "get", time.Now())
	value, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	return value, nil
}

// Put implements BlobStore.
func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	defer metrics.ObserveStorage(BackendRedis, "put", time.Now())
	return s.client.Set(ctx, redisKeyPrefix+key, value, 0).Err()
}

// Close implements BlobStore.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
