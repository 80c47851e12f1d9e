// Copyright (c) 2025 wangke <464829928@qq.com>
//
// This software is released under the AGPL-3.0 license.
// For more details, see the LICENSE file in the root directory.

package gateway

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"edgeguard/internal/hostpolicy"
	"edgeguard/internal/middleware"
)

// requestHostname 返回请求的主机名：去掉端口并转为小写，与浏览器 URL 解析的结果一致。
func requestHostname(r *http.Request) string {
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	return strings.ToLower((&url.URL{Host: host}).Hostname())
}

// Redirector 在访问源站之前处理旧域名和别名：命中跳转表的主机直接返回 301，
// 响应体为空，Location 指向规范地址。其他请求交给 next。
func Redirector(table hostpolicy.Table, canonicalURL string, metrics *middleware.PipelineMetrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := requestHostname(r)
		if host == "" {
			middleware.WriteJSONError(w, r, http.StatusBadRequest, "MALFORMED_URL", "无法解析请求的主机名")
			return
		}

		metrics.RecordRequest()
		class := table.Lookup(host)
		middleware.AddLogFields(r.Context(), "host_class", class.String())
		if class != hostpolicy.ClassRedirect {
			next.ServeHTTP(w, r)
			return
		}

		metrics.RecordRedirect()
		slog.Debug("旧域名跳转", "host", host, "location", canonicalURL)
		w.Header().Set("Location", canonicalURL)
		w.WriteHeader(http.StatusMovedPermanently)
	})
}
