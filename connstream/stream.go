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

package connstream

import (
	"time"

	"github.com/pkg/errors"

	"github.com/packetd/diamscope/common"
	"github.com/packetd/diamscope/common/socket"
	"github.com/packetd/diamscope/internal/zerocopy"
)

func newError(format string, args ...any) error {
	format = "connstream: " + format
	return errors.Errorf(format, args...)
}

var (
	// ErrSocketNotMatch 数据包不属于该连接
	ErrSocketNotMatch = newError("socket not match")

	// ErrNotConfirm Stream 未能正确创建
	ErrNotConfirm = newError("stream not confirm")

	// ErrClosed Stream 已经关闭
	ErrClosed = newError("closed")
)

// Stats 单方向 Stream 的统计数据
type Stats struct {
	Packets uint64
	Bytes   uint64

	// Skipped 重传或者乱序导致被丢弃的数据包
	Skipped uint64
}

// DecodeFunc 字节流解析回调
//
// 回调中读取到的字节均为只读 如需保留请自行拷贝
type DecodeFunc func(r zerocopy.Reader)

// Stream 连接中的单方向字节流
//
// 同一条 Stream 的写入必须串行
type Stream interface {
	// SocketTuple 返回 Stream 的四元组
	SocketTuple() socket.Tuple

	// ActiveAt 返回最后一次写入的时间
	ActiveAt() time.Time

	// IsClosed 返回 Stream 是否已经结束
	IsClosed() bool

	// Stats 返回并重置统计数据
	Stats() Stats

	// Write 写入数据包并调用 decodeFunc 流式解析
	//
	// Write 不做完整的 TCP 重组 乱序到达的旧数据会被直接丢弃
	Write(seg socket.L4Packet, decodeFunc DecodeFunc) error
}

// CreateStreamFunc 创建 Stream
type CreateStreamFunc func(st socket.Tuple) Stream

// pipe 持有一条连接的两个方向 l/r 仅代表创建顺序
type pipe struct {
	createStream CreateStreamFunc
	l, r         Stream
}

func (p *pipe) confirm(st socket.Tuple) Stream {
	if p.l != nil && p.l.SocketTuple() == st {
		return p.l
	}
	if p.r != nil && p.r.SocketTuple() == st {
		return p.r
	}

	if p.l == nil {
		p.l = p.createStream(st)
		return p.l
	}
	if p.r == nil {
		p.r = p.createStream(st)
		return p.r
	}
	return nil
}

// isClosed 两个方向均关闭时连接才算关闭
func (p *pipe) isClosed() bool {
	if p.l != nil && !p.l.IsClosed() {
		return false
	}
	if p.r != nil && !p.r.IsClosed() {
		return false
	}
	return true
}

// Conn 一条传输层连接
//
//	 peer A                                   peer B
//	   |  ---------- Stream(st) ---------->    |
//	   |  <-------- Stream(st.Mirror) -----    |
//
// 每个方向的数据各自写入对应的 Stream 并触发解析
type Conn struct {
	pipe *pipe
	l, r socket.Tuple
}

// NewConn 创建连接 st 与 st.Mirror() 均属于该连接
func NewConn(st socket.Tuple, f CreateStreamFunc) *Conn {
	return &Conn{
		pipe: &pipe{createStream: f},
		l:    st,
		r:    st.Mirror(),
	}
}

// Stream 返回 st 对应方向的 Stream
func (c *Conn) Stream(st socket.Tuple) Stream {
	return c.pipe.confirm(st)
}

// TupleStats 携带四元组的统计数据
type TupleStats struct {
	Tuple socket.Tuple
	Stats Stats
}

// Stats 返回两个方向的统计数据
func (c *Conn) Stats() []TupleStats {
	ts := make([]TupleStats, 0, 2)
	for _, stream := range []Stream{c.pipe.l, c.pipe.r} {
		if stream == nil {
			continue
		}
		ts = append(ts, TupleStats{
			Tuple: stream.SocketTuple(),
			Stats: stream.Stats(),
		})
	}
	return ts
}

// Write 将数据包写入对应方向的 Stream
func (c *Conn) Write(seg socket.L4Packet, decodeFunc DecodeFunc) error {
	if c.l != seg.SocketTuple() && c.r != seg.SocketTuple() {
		return ErrSocketNotMatch
	}

	stream := c.pipe.confirm(seg.SocketTuple())
	if stream == nil {
		return ErrNotConfirm
	}
	return stream.Write(seg, decodeFunc)
}

// ActiveAt 返回两个方向中最近的活跃时间
func (c *Conn) ActiveAt() time.Time {
	var t time.Time
	for _, stream := range []Stream{c.pipe.l, c.pipe.r} {
		if stream != nil && stream.ActiveAt().After(t) {
			t = stream.ActiveAt()
		}
	}
	return t
}

// IsClosed 返回连接是否已经结束
func (c *Conn) IsClosed() bool {
	return c.pipe.isClosed()
}

// chunkWriter 将 payload 切割为不超过 ReadWriteBlockSize 的 chunk 依次解析
//
// Diameter 为长度前缀协议 chunk 边界可以任意 消息拼接由解析器负责
type chunkWriter struct {
	zb zerocopy.Buffer
}

func newChunkWriter() *chunkWriter {
	return &chunkWriter{
		zb: zerocopy.NewBuffer(nil),
	}
}

func (cw *chunkWriter) Write(payload []byte, f DecodeFunc) {
	for len(payload) > 0 {
		n := min(len(payload), common.ReadWriteBlockSize)
		cw.zb.Write(payload[:n])
		if f != nil {
			f(cw.zb)
		}
		payload = payload[n:]
	}
}

func (cw *chunkWriter) Close() {
	cw.zb.Close()
}
