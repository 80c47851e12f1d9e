// Copyright (c) 2025 wangke <464829928@qq.com>
//
// This software is released under the AGPL-3.0 license.
// For more details, see the LICENSE file in the root directory.

package csp

import (
	"bytes"
	"io"
	"sync"

	"golang.org/x/net/html"
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 8192))
	},
}

// nonceRewriter 是一个 io.ReadCloser，它以流式方式为每个 <script> 和 <style> 开始标签
// 加上 nonce 属性。除这两个标签外，所有字节原样输出。
// 内存占用只取决于单个 token 的大小，而不是整个文档。
type nonceRewriter struct {
	upstream io.ReadCloser
	z        *html.Tokenizer
	nonce    string
	out      *bytes.Buffer // 待输出的数据，来自池
	err      error         // 上游的终止错误（含 io.EOF），在 out 读空后返回
}

// NewNonceRewriter 创建一个新的 nonceRewriter 实例。
func NewNonceRewriter(upstream io.ReadCloser, nonce string) io.ReadCloser {
	return &nonceRewriter{
		upstream: upstream,
		z:        html.NewTokenizer(upstream),
		nonce:    nonce,
		out:      bufferPool.Get().(*bytes.Buffer),
	}
}

// Read 实现 io.Reader 接口。
func (nr *nonceRewriter) Read(p []byte) (int, error) {
	if nr.out == nil {
		return 0, io.ErrClosedPipe
	}
	for nr.out.Len() == 0 {
		if nr.err != nil {
			return 0, nr.err
		}
		nr.next()
	}
	return nr.out.Read(p)
}

// next 读取一个 token，并把（可能改写过的）原始字节追加到 out。
func (nr *nonceRewriter) next() {
	tt := nr.z.Next()
	switch tt {
	case html.ErrorToken:
		nr.out.Write(nr.z.Raw())
		nr.err = nr.z.Err()
	case html.StartTagToken, html.SelfClosingTagToken:
		// TagName 会原地把 tokenizer 缓冲区中的标签名转为小写，
		// 所以必须在调用它之前拷贝原始字节。
		start := nr.out.Len()
		nr.out.Write(nr.z.Raw())
		name, _ := nr.z.TagName()
		if !isNonceTarget(name) {
			return
		}
		tag := nr.stamp(nr.out.Bytes()[start:], len(name))
		nr.out.Truncate(start)
		nr.out.Write(tag)
	default:
		nr.out.Write(nr.z.Raw())
	}
}

// stamp 返回带 nonce 的标签。没有 nonce 属性时直接在标签名后插入；
// 已有 nonce 属性时只替换它的值。两种情况下其余字节都保持不变。
func (nr *nonceRewriter) stamp(raw []byte, nameLen int) []byte {
	var b bytes.Buffer
	b.Grow(len(raw) + len(nr.nonce) + 9)

	last, stamped := 0, false
	for _, a := range scanAttrs(raw, 1+nameLen) {
		if !bytes.EqualFold(a.key, nonceAttr) {
			continue
		}
		stamped = true
		switch {
		case !a.hasEq:
			b.Write(raw[last:a.keyEnd])
			b.WriteString(`="` + nr.nonce + `"`)
			last = a.keyEnd
		case a.quote != 0:
			b.Write(raw[last:a.valStart])
			b.WriteString(nr.nonce)
			last = a.valEnd
		default:
			b.Write(raw[last:a.valStart])
			b.WriteString(`"` + nr.nonce + `"`)
			last = a.valEnd
		}
	}
	if stamped {
		b.Write(raw[last:])
		return b.Bytes()
	}

	b.Write(raw[:1+nameLen])
	b.WriteString(` nonce="`)
	b.WriteString(nr.nonce)
	b.WriteByte('"')
	b.Write(raw[1+nameLen:])
	return b.Bytes()
}

func isNonceTarget(name []byte) bool {
	return string(name) == "script" || string(name) == "style"
}

// Close 实现 io.Closer 接口。
func (nr *nonceRewriter) Close() error {
	if nr.out != nil {
		nr.out.Reset()
		bufferPool.Put(nr.out)
		nr.out = nil
	}
	return nr.upstream.Close()
}
