// Package database 管理网关用到的外部存储连接。
package database

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"medifusion-go/internal/config"
	"medifusion-go/pkg/log"
)

// RDB 是全局 Redis 客户端，保存每个浏览器的本地键值数据。
var RDB *redis.Client

// InitRedis 初始化 Redis 客户端连接，连接失败时直接退出。
func InitRedis(cfg config.RedisConfig) {
	RDB = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := RDB.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect to redis", err)
	}

	log.Infof("Redis client connected successfully: %s", cfg.Addr)
}

// CloseRedis 关闭 Redis 连接。
func CloseRedis() {
	if RDB == nil {
		return
	}
	if err := RDB.Close(); err != nil {
		log.Error("关闭 Redis 连接失败", err)
	}
}
