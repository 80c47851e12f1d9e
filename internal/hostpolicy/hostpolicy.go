// Copyright (c) 2025 wangke <464829928@qq.com>
//
// This software is released under the AGPL-3.0 license.
// For more details, see the LICENSE file in the root directory.

package hostpolicy

import (
	"fmt"
	"strings"
)

// Class 是主机在策略表中的分类。
type Class int

const (
	ClassDefault    Class = iota // 转换头部，不加 CSP
	ClassRedirect                // 301 跳转到规范主机
	ClassEmbeddable              // 允许被 iframe 嵌入，不输出 X-Frame-Options
	ClassCSP                     // 完整的 CSP 与 nonce 逻辑
)

// String 返回配置中使用的分类名称。
func (c Class) String() string {
	switch c {
	case ClassRedirect:
		return "redirect"
	case ClassEmbeddable:
		return "embeddable"
	case ClassCSP:
		return "csp"
	default:
		return "default"
	}
}

// ParseClass 将配置中的分类名称解析为 Class。
func ParseClass(s string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "redirect":
		return ClassRedirect, nil
	case "embeddable":
		return ClassEmbeddable, nil
	case "csp":
		return ClassCSP, nil
	case "default", "":
		return ClassDefault, nil
	default:
		return ClassDefault, fmt.Errorf("未知的主机分类: %q", s)
	}
}

// Table 是主机名到分类的映射。主机名统一按小写存储和匹配。
// 加载完成后 Table 只读，可以被并发读取。
type Table map[string]Class

// Lookup 返回主机的分类，未知主机返回 ClassDefault。
func (t Table) Lookup(host string) Class {
	return t[strings.ToLower(host)]
}

// Add 将一组主机登记为同一分类，后登记的分类会覆盖先前的。
func (t Table) Add(class Class, hosts ...string) {
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			t[h] = class
		}
	}
}

// Merge 返回 t 与 other 合并后的新表，other 中的条目优先。
func (t Table) Merge(other Table) Table {
	out := make(Table, len(t)+len(other))
	for h, c := range t {
		out[strings.ToLower(h)] = c
	}
	for h, c := range other {
		out[strings.ToLower(h)] = c
	}
	return out
}
