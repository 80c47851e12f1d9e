// Copyright (c) 2025 wangke <464829928@qq.com>
//
// This software is released under the AGPL-3.0 license.
// For more details, see the LICENSE file in the root directory.

package csp

import (
	"strings"
)

// 头部名称
const (
	HeaderCSP               = "Content-Security-Policy"
	HeaderLegacyCSP         = "X-Content-Security-Policy"
	HeaderFeaturePolicy     = "Feature-Policy"
	HeaderPermissionsPolicy = "Permissions-Policy"
)

// baseDirectives 与内容类型无关，所有受 CSP 管控的主机共用。
var baseDirectives = []string{
	"default-src 'self'",
	"img-src 'self' data:",
	"font-src 'self' cdn.jsdelivr.net",
	"object-src 'none'",
	"frame-src www.youtube.com giscus.app",
	"worker-src 'self' blob:",
	"frame-ancestors 'none'",
	"sandbox allow-forms allow-same-origin allow-scripts allow-top-navigation-by-user-activation allow-popups",
	"base-uri 'self'",
}

// 允许加载静态资源的可信主机
var (
	scriptHosts = []string{"static.cloudflareinsights.com", "giscus.app", "cdn.jsdelivr.net"}
	styleHosts  = []string{"cdn.jsdelivr.net"}
)

// deniedFeatures 是在 Feature-Policy 和 Permissions-Policy 中一律禁止的浏览器能力。
var deniedFeatures = []string{
	"accelerometer",
	"camera",
	"geolocation",
	"gyroscope",
	"magnetometer",
	"microphone",
	"payment",
	"usb",
}

var (
	staticPolicy      = build(directive("script-src", "'self'", scriptHosts), directive("style-src", "'self'", styleHosts))
	featurePolicy     = joinFeatures(" 'none'", "; ")
	permissionsPolicy = joinFeatures("=()", ", ")
)

// HTMLPolicy 返回绑定到 nonce 的策略。调用方保证 nonce 非空。
func HTMLPolicy(nonce string) string {
	n := "'nonce-" + nonce + "'"
	return build(
		directive("script-src", n+" 'strict-dynamic' 'self'", scriptHosts),
		directive("style-src", n+" 'self'", styleHosts),
	)
}

// StaticPolicy 返回非 HTML 响应使用的策略，不含 nonce 也不允许内联。
func StaticPolicy() string {
	return staticPolicy
}

// FeaturePolicy 返回旧版 Feature-Policy 头部的值。
func FeaturePolicy() string {
	return featurePolicy
}

// PermissionsPolicy 返回 Permissions-Policy 头部的值，与 FeaturePolicy 禁止同一组能力。
func PermissionsPolicy() string {
	return permissionsPolicy
}

func directive(name, sources string, hosts []string) string {
	return name + " " + sources + " " + strings.Join(hosts, " ")
}

func build(scriptSrc, styleSrc string) string {
	d := make([]string, 0, len(baseDirectives)+2)
	d = append(d, baseDirectives...)
	d = append(d, scriptSrc, styleSrc)
	return strings.Join(d, "; ")
}

func joinFeatures(suffix, sep string) string {
	parts := make([]string, len(deniedFeatures))
	for i, f := range deniedFeatures {
		parts[i] = f + suffix
	}
	return strings.Join(parts, sep)
}
