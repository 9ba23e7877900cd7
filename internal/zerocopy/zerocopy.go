// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package zerocopy

import (
	"io"
)

// Reader 零拷贝读取 返回的切片直接引用底层内存 调用方不允许修改
type Reader interface {
	Read(n int) ([]byte, error)
}

// Writer 零拷贝写入 仅替换底层引用
type Writer interface {
	Write(p []byte)
}

// Closer 将 Reader 置为 io.EOF 状态
type Closer interface {
	Close()
}

// Buffer 同时支持 Write/Read/Close
type Buffer interface {
	Writer
	Reader
	Closer
}

type buffer struct {
	r int
	b []byte
}

// NewBuffer 创建 Buffer
//
// 每次 Write 都会替换掉之前的内容 未读完的数据将被丢弃
func NewBuffer(p []byte) Buffer {
	return &buffer{b: p}
}

// Read 读取至多 n 字节 数据耗尽时返回 io.EOF
func (buf *buffer) Read(n int) ([]byte, error) {
	if buf.r >= len(buf.b) {
		return nil, io.EOF
	}

	end := min(buf.r+n, len(buf.b))
	b := buf.b[buf.r:end]
	buf.r = end
	return b, nil
}

func (buf *buffer) Write(p []byte) {
	buf.b = p
	buf.r = 0
}

func (buf *buffer) Close() {
	buf.r = len(buf.b)
}
