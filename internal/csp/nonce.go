// Copyright (c) 2025 wangke <464829928@qq.com>
//
// This software is released under the AGPL-3.0 license.
// For more details, see the LICENSE file in the root directory.

package csp

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// NonceSize 是 nonce 的随机字节数（128 位）。
const NonceSize = 16

// ErrNonceGeneration 表示无法获得安全随机数，此时整个 HTML 响应必须失败。
var ErrNonceGeneration = errors.New("无法生成 CSP nonce")

// NonceSource 为每个响应生成一个新的 nonce。
type NonceSource func() (string, error)

// NewRandomNonceSource 返回一个从 r 读取随机字节并做 base64 编码的 NonceSource。
func NewRandomNonceSource(r io.Reader) NonceSource {
	return func() (string, error) {
		b := make([]byte, NonceSize)
		if _, err := io.ReadFull(r, b); err != nil {
			return "", fmt.Errorf("%w: %v", ErrNonceGeneration, err)
		}
		return base64.StdEncoding.EncodeToString(b), nil
	}
}

// RandomNonce 使用 crypto/rand 生成 nonce。
var RandomNonce = NewRandomNonceSource(rand.Reader)
