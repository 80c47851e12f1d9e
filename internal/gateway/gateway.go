// Copyright (c) 2025 wangke <464829928@qq.com>
//
// This software is released under the AGPL-3.0 license.
// For more details, see the LICENSE file in the root directory.

package gateway

import (
	"net/http"

	"edgeguard/configs"
	"edgeguard/internal/csp"
	"edgeguard/internal/hostpolicy"
	"edgeguard/internal/middleware"
)

// Router 封装了网关的路由逻辑和依赖项。
type Router struct {
	handler http.Handler
}

// NewRouter 组装完整的请求管道：跳转 → 源站 → 头部转换 → CSP 策略与改写。
// fetcher 为 nil 时使用 HTTPFetcher，metrics 为 nil 时使用全局指标。
func NewRouter(cfg *configs.Config, table hostpolicy.Table, fetcher Fetcher, metrics *middleware.PipelineMetrics) (*Router, error) {
	if fetcher == nil {
		fetcher = NewHTTPFetcher(nil)
	}
	if metrics == nil {
		metrics = middleware.GlobalPipelineMetrics
	}

	proxy, err := NewProxy(cfg, table, fetcher, csp.NewEngine(csp.RandomNonce), metrics)
	if err != nil {
		return nil, err
	}

	return &Router{
		handler: Redirector(table, cfg.Hosts.CanonicalURL, metrics, proxy),
	}, nil
}

// ServeHTTP 使 Router 实现 http.Handler 接口。
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}
