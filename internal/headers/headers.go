// Copyright (c) 2025 wangke <464829928@qq.com>
//
// This software is released under the AGPL-3.0 license.
// For more details, see the LICENSE file in the root directory.

package headers

import (
	"net/http"
)

// Header 是一个固定的头部名/值对。
type Header struct {
	Name  string
	Value string
}

// FrameOptions 是防点击劫持头部，可嵌入的主机会跳过它。
const FrameOptions = "X-Frame-Options"

// 以下三张表是进程级的只读配置，任何请求都不能修改它们。
var (
	securityHeaders = []Header{
		{"X-Xss-Protection", "1; mode=block"},
		{FrameOptions, "DENY"},
		{"X-Content-Type-Options", "nosniff"},
		{"Referrer-Policy", "strict-origin-when-cross-origin"},
		{"X-DNS-Prefetch-Control", "on"},
	}

	sanitiseHeaders = []Header{
		{"Vary", "*"},
	}

	removeHeaders = []string{
		"Public-Key-Pins",
		"X-Powered-By",
		"X-AspNet-Version",
		"Accept-Encoding",
		"Content-Encoding",
	}
)

// Options 控制单次转换中随主机变化的部分。
type Options struct {
	// AllowFraming 为 true 时不输出 X-Frame-Options，用于需要被第三方 iframe 嵌入的主机。
	AllowFraming bool
}

// Transform 返回 src 的副本，并依次应用安全头部、清理头部和删除列表。
// src 本身不会被修改。对自身输出再次调用 Transform 结果不变。
func Transform(src http.Header, opts Options) http.Header {
	h := src.Clone()
	if h == nil {
		h = make(http.Header)
	}

	for _, sh := range securityHeaders {
		if opts.AllowFraming && sh.Name == FrameOptions {
			// 源站自带的值也要去掉，否则页面仍然无法被嵌入
			h.Del(FrameOptions)
			continue
		}
		h.Set(sh.Name, sh.Value)
	}

	for _, sh := range sanitiseHeaders {
		h.Set(sh.Name, sh.Value)
	}

	for _, name := range removeHeaders {
		h.Del(name)
	}

	return h
}

// SecurityHeaders 返回安全头部表的副本。
func SecurityHeaders() []Header {
	return append([]Header(nil), securityHeaders...)
}

// SanitiseHeaders 返回清理头部表的副本。
func SanitiseHeaders() []Header {
	return append([]Header(nil), sanitiseHeaders...)
}

// RemoveHeaders 返回删除列表的副本。
func RemoveHeaders() []string {
	return append([]string(nil), removeHeaders...)
}
