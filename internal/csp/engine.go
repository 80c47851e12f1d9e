// Copyright (c) 2025 wangke <464829928@qq.com>
//
// This software is released under the AGPL-3.0 license.
// For more details, see the LICENSE file in the root directory.

package csp

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Result 描述 Apply 对响应所做的处理，供日志和指标使用。
type Result int

const (
	ResultNone      Result = iota // 非受管主机，没有 CSP
	ResultStatic                  // 非 HTML，无 nonce 策略，响应体透传
	ResultRewritten               // HTML，nonce 策略并改写响应体
)

func (r Result) String() string {
	switch r {
	case ResultStatic:
		return "static"
	case ResultRewritten:
		return "rewritten"
	default:
		return "none"
	}
}

// Engine 根据主机和内容类型选择 CSP，并在需要时改写 HTML 响应体。
// Engine 没有可变状态，可以被并发使用。
type Engine struct {
	nonces NonceSource
}

// NewEngine 创建一个 Engine。nonces 为 nil 时使用 RandomNonce。
func NewEngine(nonces NonceSource) *Engine {
	if nonces == nil {
		nonces = RandomNonce
	}
	return &Engine{nonces: nonces}
}

// IsHTML 判断 Content-Type 是否声明为 HTML。缺失的 Content-Type 视为非 HTML。
func IsHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/html")
}

// Apply 为 h 设置策略头部，并返回应当发送给客户端的响应体。
// governed 表示目标主机受 CSP 管控。h 会被原地修改，调用方应传入已复制的头部。
// nonce 不可用时返回 ErrNonceGeneration，此时调用方必须让整个响应失败。
func (e *Engine) Apply(governed bool, contentType string, h http.Header, body io.ReadCloser) (io.ReadCloser, Result, error) {
	if !governed {
		setFeaturePolicy(h)
		return body, ResultNone, nil
	}

	if !IsHTML(contentType) {
		setPolicy(h, StaticPolicy())
		setFeaturePolicy(h)
		return body, ResultStatic, nil
	}

	nonce, err := e.nonces()
	if err != nil {
		if !errors.Is(err, ErrNonceGeneration) {
			err = fmt.Errorf("%w: %v", ErrNonceGeneration, err)
		}
		return nil, ResultNone, err
	}
	if nonce == "" {
		return nil, ResultNone, fmt.Errorf("%w: 空值", ErrNonceGeneration)
	}

	setPolicy(h, HTMLPolicy(nonce))
	setFeaturePolicy(h)
	// 改写后长度会变化
	h.Del("Content-Length")

	if body == nil || body == http.NoBody {
		return body, ResultRewritten, nil
	}
	return NewNonceRewriter(body, nonce), ResultRewritten, nil
}

func setPolicy(h http.Header, policy string) {
	h.Set(HeaderCSP, policy)
	h.Set(HeaderLegacyCSP, policy)
}

func setFeaturePolicy(h http.Header) {
	h.Set(HeaderFeaturePolicy, FeaturePolicy())
	h.Set(HeaderPermissionsPolicy, PermissionsPolicy())
}
