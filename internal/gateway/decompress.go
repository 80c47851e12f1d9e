// Copyright (c) 2025 wangke <464829928@qq.com>
//
// This software is released under the AGPL-3.0 license.
// For more details, see the LICENSE file in the root directory.

package gateway

import (
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// decodedBody 是解压后的响应体，关闭时同时关闭解压器和原始响应体。
type decodedBody struct {
	io.Reader
	closers []io.Closer
}

func (d *decodedBody) Close() error {
	var first error
	for _, c := range d.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// getDecompressionReader 为源站响应体创建流式解压器。
// 不支持的编码返回 nil, nil。
func getDecompressionReader(encoding string, upstream io.ReadCloser) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip", "x-gzip":
		r, err := gzip.NewReader(upstream)
		if err != nil {
			return nil, err
		}
		return &decodedBody{Reader: r, closers: []io.Closer{r, upstream}}, nil
	case "br":
		return &decodedBody{Reader: brotli.NewReader(upstream), closers: []io.Closer{upstream}}, nil
	case "zstd":
		r, err := zstd.NewReader(upstream)
		if err != nil {
			return nil, err
		}
		rc := r.IOReadCloser()
		return &decodedBody{Reader: rc, closers: []io.Closer{rc, upstream}}, nil
	case "lz4":
		return &decodedBody{Reader: lz4.NewReader(upstream), closers: []io.Closer{upstream}}, nil
	case "deflate":
		r := flate.NewReader(upstream)
		return &decodedBody{Reader: r, closers: []io.Closer{r, upstream}}, nil
	default:
		return nil, nil
	}
}

// hasBody 判断响应是否可能带有需要解压的响应体。
func hasBody(resp *http.Response) bool {
	if resp.Body == nil || resp.Body == http.NoBody || resp.ContentLength == 0 {
		return false
	}
	if resp.Request != nil && resp.Request.Method == http.MethodHead {
		return false
	}
	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusNotModified:
		return false
	}
	return resp.StatusCode >= 200
}
