// Copyright (c) 2025 wangke <464829928@qq.com>
//
// This software is released under the AGPL-3.0 license.
// For more details, see the LICENSE file in the root directory.

package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUpstreamUnavailable 表示源站请求失败，不做重试，由上层返回通用错误响应。
var ErrUpstreamUnavailable = errors.New("源站不可用")

// Fetcher 是访问源站的能力。返回的响应体以流的方式读取且只能读取一次。
type Fetcher interface {
	Fetch(req *http.Request) (*http.Response, error)
}

// FetcherFunc 让普通函数实现 Fetcher 接口，主要用于测试中的模拟源站。
type FetcherFunc func(req *http.Request) (*http.Response, error)

// Fetch 实现 Fetcher 接口。
func (f FetcherFunc) Fetch(req *http.Request) (*http.Response, error) {
	return f(req)
}

// HTTPFetcher 通过 http.Transport 访问源站，并关闭内容压缩协商，
// 保证响应体是可以直接改写的未压缩形式。
type HTTPFetcher struct {
	transport http.RoundTripper
}

// NewHTTPFetcher 创建一个 HTTPFetcher。transport 为 nil 时使用默认 Transport 的副本。
func NewHTTPFetcher(transport *http.Transport) *HTTPFetcher {
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	// 禁止 Transport 自动添加 Accept-Encoding: gzip
	transport.DisableCompression = true
	return &HTTPFetcher{transport: transport}
}

// Fetch 派生一个不带 Accept-Encoding 的请求并发往源站，原请求不会被修改。
// 使用 RoundTrip 而非 Client.Do，源站的 3xx 响应原样返回给客户端。
func (f *HTTPFetcher) Fetch(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.Header.Del("Accept-Encoding")

	resp, err := f.transport.RoundTrip(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	return resp, nil
}

// fetcherTransport 把 Fetcher 适配为 httputil.ReverseProxy 使用的 http.RoundTripper。
type fetcherTransport struct {
	fetcher Fetcher
}

func (t fetcherTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.fetcher.Fetch(req)
	if err != nil {
		if !errors.Is(err, ErrUpstreamUnavailable) {
			err = fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
		}
		return nil, err
	}
	if resp.Request == nil {
		resp.Request = req
	}
	return resp, nil
}
