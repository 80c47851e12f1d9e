// Copyright (c) 2025 wangke <464829928@qq.com>
//
// This software is released under the AGPL-3.0 license.
// For more details, see the LICENSE file in the root directory.

package gateway

import (
	"io"
)

// peekReader 用于预读取响应体的前几个字节，用于调试日志。
// 后续的 Read 调用会重新返回这些数据，所以不影响响应体的正常消费。
type peekReader struct {
	source  io.ReadCloser // 原始数据源
	peekBuf []byte        // 预读取缓冲区
	peekPos int           // 当前预读取位置
}

// newPeekReader 创建一个新的 peekReader
func newPeekReader(source io.ReadCloser) *peekReader {
	return &peekReader{source: source}
}

// Peek 读取最多 n 个字节但不消费这些数据。
// 源数据不足 n 字节时返回实际读到的数据。
func (pr *peekReader) Peek(n int) ([]byte, error) {
	if len(pr.peekBuf) >= n {
		return pr.peekBuf[:n], nil
	}

	buf := make([]byte, n)
	copy(buf, pr.peekBuf)
	nRead, err := io.ReadAtLeast(pr.source, buf[len(pr.peekBuf):], n-len(pr.peekBuf))
	pr.peekBuf = buf[:len(pr.peekBuf)+nRead]
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return pr.peekBuf, err
	}
	return pr.peekBuf, nil
}

// Read 实现 io.Reader 接口，先返回预读取的数据。
func (pr *peekReader) Read(p []byte) (int, error) {
	if pr.peekPos < len(pr.peekBuf) {
		n := copy(p, pr.peekBuf[pr.peekPos:])
		pr.peekPos += n
		return n, nil
	}
	return pr.source.Read(p)
}

// Close 关闭原始数据源
func (pr *peekReader) Close() error {
	return pr.source.Close()
}
