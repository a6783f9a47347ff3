// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cacheindex is the optional external backing store for the
// prefix/cache-aware routing policy: a prompt-prefix hash maps to the URL
// of the engine last known to hold that prefix warm in its KV cache. It is
// a hint store, not a source of truth — a miss or a backend error simply
// falls back to the in-process heuristic in the routing package.
package cacheindex

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Store records and looks up which engine most recently served a given
// prompt-prefix hash.
type Store interface {
	Lookup(ctx context.Context, prefixHash string) (url string, ok bool, err error)
	Record(ctx context.Context, prefixHash, url string, ttl time.Duration) error
	Close() error
}

// RedisStore is a Store backed by a shared Redis instance, letting multiple
// router replicas converge on the same prefix hints even though workflow
// pins themselves remain single-replica.
type RedisStore struct {
	client *redis.Client
}

// Config describes how to reach the backing Redis instance.
type Config struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisStore(cfg Config) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     100,
		MinIdleConns: 10,
	})
	return &RedisStore{client: client}
}

// NewRedisStoreWithClient wraps an already-constructed client; used by
// tests to point at a miniredis instance.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Lookup(ctx context.Context, prefixHash string) (string, bool, error) {
	url, err := s.client.Get(ctx, key(prefixHash)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cacheindex lookup: %w", err)
	}
	return url, true, nil
}

func (s *RedisStore) Record(ctx context.Context, prefixHash, url string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key(prefixHash), url, ttl).Err(); err != nil {
		return fmt.Errorf("cacheindex record: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func key(prefixHash string) string {
	return "axonrouter:prefix:" + prefixHash
}
