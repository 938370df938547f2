// Package store 提供每个浏览器客户端独占的持久化键值存储，
// 相当于网关这一侧的 window.localStorage。
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
)

// KV 是字符串键值存储。键不存在时 Get 返回 ok=false。
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

type redisKV struct {
	rdb    *redis.Client
	prefix string
}

// NewRedis 返回一个以 Redis 为后端的 KV，所有键带有 prefix 前缀。
// 条目不设过期时间，与浏览器本地存储一致。
func NewRedis(rdb *redis.Client, prefix string) KV {
	return &redisKV{rdb: rdb, prefix: prefix}
}

func (r *redisKV) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

func (r *redisKV) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.rdb.Get(ctx, r.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (r *redisKV) Set(ctx context.Context, key, value string) error {
	if err := r.rdb.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *redisKV) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Memory 是进程内的 KV，仅供测试使用；服务进程始终使用 Redis。
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory 返回一个空的内存 KV。
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Len 返回已存储的键数量。
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

type scoped struct {
	kv     KV
	prefix string
}

// Scoped 把 kv 的每个键放到 "client:<clientID>:" 命名空间下，
// 多个浏览器的存储可以共用一个 Redis 键空间而不会冲突。
func Scoped(kv KV, clientID string) KV {
	return &scoped{kv: kv, prefix: fmt.Sprintf("client:%s:", clientID)}
}

func (s *scoped) Get(ctx context.Context, key string) (string, bool, error) {
	return s.kv.Get(ctx, s.prefix+key)
}

func (s *scoped) Set(ctx context.Context, key, value string) error {
	return s.kv.Set(ctx, s.prefix+key, value)
}

func (s *scoped) Delete(ctx context.Context, key string) error {
	return s.kv.Delete(ctx, s.prefix+key)
}
