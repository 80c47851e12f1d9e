// Copyright (c) 2025 wangke <464829928@qq.com>
//
// This software is released under the AGPL-3.0 license.
// For more details, see the LICENSE file in the root directory.

package middleware

import (
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"
)

// PipelineMetrics 记录响应改写管道的计数指标。所有字段都通过原子操作更新。
type PipelineMetrics struct {
	// 请求计数
	TotalRequests int64 // 进入管道的请求数
	Redirects     int64 // 直接返回 301 的请求数

	// 响应处理结果
	Rewritten   int64 // 带 nonce 改写的 HTML 响应数
	StaticCSP   int64 // 使用无 nonce 策略的响应数
	PassThrough int64 // 不受 CSP 管控的响应数
	Decoded     int64 // 源站忽略压缩协商、由网关解压的响应数

	// 错误统计
	UpstreamErrors int64 // 源站请求失败
	NonceErrors    int64 // nonce 生成失败

	// 时间戳
	StartTime time.Time
}

var (
	// 全局指标实例
	GlobalPipelineMetrics = NewPipelineMetrics()
)

// NewPipelineMetrics 创建新的指标实例
func NewPipelineMetrics() *PipelineMetrics {
	return &PipelineMetrics{StartTime: time.Now()}
}

// RecordRequest 记录请求
func (pm *PipelineMetrics) RecordRequest() { atomic.AddInt64(&pm.TotalRequests, 1) }

// RecordRedirect 记录跳转
func (pm *PipelineMetrics) RecordRedirect() { atomic.AddInt64(&pm.Redirects, 1) }

// RecordRewritten 记录 HTML 改写
func (pm *PipelineMetrics) RecordRewritten() { atomic.AddInt64(&pm.Rewritten, 1) }

// RecordStaticCSP 记录无 nonce 策略
func (pm *PipelineMetrics) RecordStaticCSP() { atomic.AddInt64(&pm.StaticCSP, 1) }

// RecordPassThrough 记录不受管控的响应
func (pm *PipelineMetrics) RecordPassThrough() { atomic.AddInt64(&pm.PassThrough, 1) }

// RecordDecoded 记录网关解压
func (pm *PipelineMetrics) RecordDecoded() { atomic.AddInt64(&pm.Decoded, 1) }

// RecordUpstreamError 记录源站失败
func (pm *PipelineMetrics) RecordUpstreamError() { atomic.AddInt64(&pm.UpstreamErrors, 1) }

// RecordNonceError 记录 nonce 生成失败
func (pm *PipelineMetrics) RecordNonceError() { atomic.AddInt64(&pm.NonceErrors, 1) }

// GetSnapshot 获取指标快照
func (pm *PipelineMetrics) GetSnapshot() PipelineMetricsSnapshot {
	return PipelineMetricsSnapshot{
		TotalRequests:  atomic.LoadInt64(&pm.TotalRequests),
		Redirects:      atomic.LoadInt64(&pm.Redirects),
		Rewritten:      atomic.LoadInt64(&pm.Rewritten),
		StaticCSP:      atomic.LoadInt64(&pm.StaticCSP),
		PassThrough:    atomic.LoadInt64(&pm.PassThrough),
		Decoded:        atomic.LoadInt64(&pm.Decoded),
		UpstreamErrors: atomic.LoadInt64(&pm.UpstreamErrors),
		NonceErrors:    atomic.LoadInt64(&pm.NonceErrors),
		StartTime:      pm.StartTime,
	}
}

// PipelineMetricsSnapshot 指标快照
type PipelineMetricsSnapshot struct {
	TotalRequests  int64
	Redirects      int64
	Rewritten      int64
	StaticCSP      int64
	PassThrough    int64
	Decoded        int64
	UpstreamErrors int64
	NonceErrors    int64
	StartTime      time.Time
}

// GetErrorRate 获取失败请求比例
func (s PipelineMetricsSnapshot) GetErrorRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.UpstreamErrors+s.NonceErrors) / float64(s.TotalRequests) * 100
}

// LogMetrics 记录指标到日志
func (s PipelineMetricsSnapshot) LogMetrics() {
	slog.Info("响应改写管道指标",
		"总请求数", s.TotalRequests,
		"跳转数", s.Redirects,
		"HTML改写数", s.Rewritten,
		"静态策略数", s.StaticCSP,
		"透传数", s.PassThrough,
		"网关解压数", s.Decoded,
		"源站错误", s.UpstreamErrors,
		"nonce错误", s.NonceErrors,
		"错误比例", s.GetErrorRate(),
		"运行时长", time.Since(s.StartTime),
	)
}

// LogSystemMetrics 记录系统内存指标
func LogSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	slog.Debug("系统内存指标",
		"当前内存使用", m.Alloc,
		"累计内存分配", m.TotalAlloc,
		"协程数", runtime.NumGoroutine(),
	)
}
