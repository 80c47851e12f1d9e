// Copyright (c) 2025 wangke <464829928@qq.com>
//
// This software is released under the AGPL-3.0 license.
// For more details, see the LICENSE file in the root directory.

package hostpolicy

import (
	"context"
	"fmt"
	"log/slog"

	"edgeguard/configs"
)

// Source 在启动时提供主机策略表。
type Source interface {
	// Load 返回完整的策略表。只在进程启动时调用一次。
	Load(ctx context.Context) (Table, error)

	// Close 释放 Source 持有的资源（例如 Redis 连接池）。
	Close() error
}

// StaticSource 直接使用配置文件中的主机列表。
type StaticSource struct {
	table Table
}

// NewStaticSource 根据配置构建静态策略表。
func NewStaticSource(cfg configs.HostsConfig) *StaticSource {
	return &StaticSource{table: TableFromConfig(cfg)}
}

// TableFromConfig 将配置中的主机列表转换为 Table。
func TableFromConfig(cfg configs.HostsConfig) Table {
	t := make(Table)
	t.Add(ClassRedirect, cfg.Redirect...)
	t.Add(ClassEmbeddable, cfg.Embeddable...)
	t.Add(ClassCSP, cfg.CSP...)
	return t
}

// Load 实现 Source 接口。
func (s *StaticSource) Load(ctx context.Context) (Table, error) {
	return s.table.Merge(nil), nil
}

// Close 实现 Source 接口。
func (s *StaticSource) Close() error { return nil }

// NewSourceFactory 根据配置创建并返回一个 Source 实例。
func NewSourceFactory(cfg configs.HostsConfig) (Source, error) {
	switch cfg.Source {
	case "static", "":
		slog.Info("正在使用静态主机策略表")
		return NewStaticSource(cfg), nil
	case "redis":
		slog.Info("正在初始化 Redis 主机策略表")
		return NewRedisSource(RedisSourceConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
			Fallback: TableFromConfig(cfg),
		})
	default:
		return nil, fmt.Errorf("不支持的 hosts.source 类型: %s", cfg.Source)
	}
}
