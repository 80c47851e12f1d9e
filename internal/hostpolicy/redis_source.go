// Copyright (c) 2025 wangke <464829928@qq.com>
//
// This software is released under the AGPL-3.0 license.
// For more details, see the LICENSE file in the root directory.

package hostpolicy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey 是保存主机策略的 Redis 哈希键。
const DefaultRedisKey = "edgeguard:hosts"

// RedisSourceConfig 定义了 RedisSource 的配置。
type RedisSourceConfig struct {
	Addr     string
	Password string
	DB       int    // 数据库索引
	Key      string // 哈希键，字段为主机名，值为分类名称
	Fallback Table  // 配置文件中的主机列表，Redis 中的条目会覆盖它
}

// hashClient 是 RedisSource 用到的 Redis 命令子集，*redis.Client 实现了它。
type hashClient interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Close() error
}

// RedisSource 从 Redis 哈希读取主机策略表。
type RedisSource struct {
	client   hashClient
	key      string
	fallback Table
}

// NewRedisSource 创建并返回一个新的 RedisSource 实例。
func NewRedisSource(cfg RedisSourceConfig) (*RedisSource, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 尝试 Ping Redis 服务器以验证连接。
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("无法连接到 Redis: %w", err)
	}

	key := cfg.Key
	if key == "" {
		key = DefaultRedisKey
	}
	slog.Info("RedisSource 初始化成功", "addr", cfg.Addr, "db", cfg.DB, "key", key)

	return &RedisSource{client: client, key: key, fallback: cfg.Fallback}, nil
}

// Load 读取整个哈希并与配置文件中的主机列表合并。
func (rs *RedisSource) Load(ctx context.Context) (Table, error) {
	fields, err := rs.client.HGetAll(ctx, rs.key).Result()
	if err != nil {
		return nil, fmt.Errorf("读取 Redis 主机策略失败: %w", err)
	}

	remote, err := parseFields(fields)
	if err != nil {
		return nil, err
	}
	slog.Info("已从 Redis 加载主机策略", "key", rs.key, "entries", len(remote))
	return rs.fallback.Merge(remote), nil
}

// Close 关闭 Redis 客户端连接。
func (rs *RedisSource) Close() error {
	if err := rs.client.Close(); err != nil {
		slog.Error("RedisSource: 关闭 Redis 连接失败", "error", err)
		return err
	}
	slog.Info("RedisSource: Redis 连接已关闭")
	return nil
}

func parseFields(fields map[string]string) (Table, error) {
	t := make(Table, len(fields))
	for host, name := range fields {
		class, err := ParseClass(name)
		if err != nil {
			return nil, fmt.Errorf("主机 %s: %w", host, err)
		}
		t.Add(class, host)
	}
	return t, nil
}
