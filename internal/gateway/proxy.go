// Copyright (c) 2025 wangke <464829928@qq.com>
//
// This software is released under the AGPL-3.0 license.
// For more details, see the LICENSE file in the root directory.

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"edgeguard/configs"
	"edgeguard/internal/csp"
	"edgeguard/internal/headers"
	"edgeguard/internal/hostpolicy"
	"edgeguard/internal/middleware"
)

// peekSize 是 404 调试日志中预读的响应体字节数
const peekSize = 128

type classKey struct{}

// Proxy 把请求转发给源站，并对响应依次执行头部转换和 CSP 策略。
type Proxy struct {
	table   hostpolicy.Table
	engine  *csp.Engine
	metrics *middleware.PipelineMetrics
	rp      *httputil.ReverseProxy
}

// NewProxy 创建并返回一个配置好的反向代理处理器
func NewProxy(config *configs.Config, table hostpolicy.Table, fetcher Fetcher, engine *csp.Engine, metrics *middleware.PipelineMetrics) (*Proxy, error) {
	target, err := url.Parse(config.BackendURL)
	if err != nil {
		return nil, fmt.Errorf("无法解析目标 URL: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("目标 URL 缺少 scheme 或 host: %q", config.BackendURL)
	}

	p := &Proxy{
		table:   table,
		engine:  engine,
		metrics: metrics,
	}
	preserveHost := config.Backend.PreserveHost
	p.rp = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			// 改写步骤只能处理未压缩的响应体
			pr.Out.Header.Del("Accept-Encoding")
			if preserveHost {
				pr.Out.Host = pr.In.Host
			}
		},
		Transport:      fetcherTransport{fetcher: fetcher},
		ModifyResponse: p.modifyResponse,
		ErrorHandler:   p.errorHandler,
		// 改写后的数据立即推给客户端，不等源站发送完毕
		FlushInterval: -1,
		ErrorLog:      slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}
	return p, nil
}

// ServeHTTP 实现 http.Handler 接口。
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	class := p.table.Lookup(requestHostname(r))
	ctx := context.WithValue(r.Context(), classKey{}, class)
	p.rp.ServeHTTP(w, r.WithContext(ctx))
}

func classFromContext(ctx context.Context) hostpolicy.Class {
	c, _ := ctx.Value(classKey{}).(hostpolicy.Class)
	return c
}

// modifyResponse 对源站响应执行：解压（如源站忽略了压缩协商）→ 头部转换 → CSP 与响应体改写。
func (p *Proxy) modifyResponse(resp *http.Response) error {
	ctx := resp.Request.Context()
	class := classFromContext(ctx)

	if err := p.decode(resp); err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNotFound {
		p.logNotFound(ctx, resp)
	}

	h := headers.Transform(resp.Header, headers.Options{
		AllowFraming: class == hostpolicy.ClassEmbeddable,
	})

	body, result, err := p.engine.Apply(class == hostpolicy.ClassCSP, h.Get("Content-Type"), h, resp.Body)
	if err != nil {
		return err
	}

	resp.Header = h
	resp.Body = body
	middleware.AddLogFields(ctx, "csp", result.String())
	switch result {
	case csp.ResultRewritten:
		resp.ContentLength = -1
		p.metrics.RecordRewritten()
	case csp.ResultStatic:
		p.metrics.RecordStaticCSP()
	default:
		p.metrics.RecordPassThrough()
	}
	return nil
}

// decode 在源站仍然返回压缩内容时把响应体换成流式解压器。
// Content-Encoding 随后会被头部转换删除，所以这里必须保证响应体已是明文。
func (p *Proxy) decode(resp *http.Response) error {
	encoding := resp.Header.Get("Content-Encoding")
	if encoding == "" || encoding == "identity" || !hasBody(resp) {
		return nil
	}

	decoded, err := getDecompressionReader(encoding, resp.Body)
	if err != nil {
		return fmt.Errorf("%w: 无法解压 %s 响应体: %w", ErrUpstreamUnavailable, encoding, err)
	}
	if decoded == nil {
		slog.Warn("源站返回了不支持的 Content-Encoding，响应体原样透传", "encoding", encoding, "path", resp.Request.URL.Path)
		return nil
	}

	slog.Debug("源站忽略了压缩协商，网关解压响应体", "encoding", encoding)
	p.metrics.RecordDecoded()
	middleware.AddLogFields(resp.Request.Context(), "decoded", encoding)
	resp.Body = decoded
	resp.ContentLength = -1
	resp.Header.Del("Content-Length")
	return nil
}

// logNotFound 记录源站的 404。debug 级别下预读响应体开头用于排查，不影响后续消费。
func (p *Proxy) logNotFound(ctx context.Context, resp *http.Response) {
	slog.Warn("404 Not Found", "host", resp.Request.Host, "uri", resp.Request.URL.RequestURI())

	if !slog.Default().Enabled(ctx, slog.LevelDebug) || !hasBody(resp) {
		return
	}
	pr := newPeekReader(resp.Body)
	preview, err := pr.Peek(peekSize)
	if err != nil {
		slog.Debug("预读 404 响应体失败", "error", err)
	}
	slog.Debug("404 响应体预览", "body", string(preview))
	resp.Body = pr
}

// errorHandler 处理源站失败和 nonce 生成失败，两者都不重试。
func (p *Proxy) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, context.Canceled):
		// 客户端已断开，源站请求随 context 一并取消，无需写响应
		slog.Debug("客户端取消了请求", "path", r.URL.Path, "request_id", middleware.GetRequestID(r))
		w.WriteHeader(499)
	case errors.Is(err, csp.ErrNonceGeneration):
		p.metrics.RecordNonceError()
		middleware.LogError(r, "nonce 生成失败，拒绝输出响应", "error", err)
		middleware.WriteJSONError(w, r, http.StatusInternalServerError, "NONCE_UNAVAILABLE", "无法生成安全策略")
	default:
		p.metrics.RecordUpstreamError()
		middleware.LogError(r, "源站请求失败", "error", err)
		middleware.WriteJSONError(w, r, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "源站不可用")
	}
}
