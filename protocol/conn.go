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

package protocol

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/packetd/diamscope/common/socket"
	"github.com/packetd/diamscope/connstream"
	"github.com/packetd/diamscope/internal/zerocopy"
	"github.com/packetd/diamscope/protocol/role"
)

// ErrConnClosed 连接已经关闭 调用方应将其从连接池中移除
var ErrConnClosed = errors.New("connection closed")

// Conn 应用层连接
type Conn interface {
	// OnL4Packet 处理传输层数据包 配对成功的 RoundTrip 写入 ch
	OnL4Packet(pkt socket.L4Packet, ch chan<- socket.RoundTrip) error

	// Stats 返回并重置统计数据
	Stats() []connstream.TupleStats

	// Free 释放连接相关资源
	Free()

	// IsClosed 返回连接是否关闭
	IsClosed() bool

	// ActiveAt 返回连接最后活跃时间
	ActiveAt() time.Time
}

type socketDecoder struct {
	st socket.Tuple
	d  Decoder
}

// L7TCPConn 基于 TCP 的应用层连接
//
// 两个方向各自持有一个 Decoder 共享同一个 role.Matcher
type L7TCPConn struct {
	mut        sync.Mutex
	conn       *connstream.Conn
	serverPort socket.Port
	matcher    role.Matcher

	l, r *socketDecoder
	once sync.Once

	createRoundTrip CreateRoundTripFunc
	createDecoder   CreateDecoderFunc
}

// NewL7Conn 创建应用层连接
func NewL7Conn(conn *connstream.Conn, serverPort socket.Port, matcher role.Matcher, createRoundTrip CreateRoundTripFunc, createDecoder CreateDecoderFunc) *L7TCPConn {
	return &L7TCPConn{
		conn:            conn,
		serverPort:      serverPort,
		matcher:         matcher,
		createDecoder:   createDecoder,
		createRoundTrip: createRoundTrip,
	}
}

func (c *L7TCPConn) IsClosed() bool {
	return c.conn.IsClosed()
}

// Free 释放 Decoder 以及 Matcher 持有的资源 仅执行一次
func (c *L7TCPConn) Free() {
	c.once.Do(func() {
		c.mut.Lock()
		defer c.mut.Unlock()

		for _, sd := range []*socketDecoder{c.l, c.r} {
			if sd != nil && sd.d != nil {
				sd.d.Free()
			}
		}
		if r, ok := c.matcher.(role.Resetter); ok {
			r.Reset()
		}
	})
}

func (c *L7TCPConn) ActiveAt() time.Time {
	return c.conn.ActiveAt()
}

func (c *L7TCPConn) Stats() []connstream.TupleStats {
	return c.conn.Stats()
}

// OnL4Packet 写入数据包 解析出的对象交由 Matcher 配对
func (c *L7TCPConn) OnL4Packet(pkt socket.L4Packet, ch chan<- socket.RoundTrip) error {
	c.mut.Lock()
	defer c.mut.Unlock()

	d := c.getDecoder(pkt.SocketTuple())
	if d == nil {
		return connstream.ErrNotConfirm
	}

	err := c.conn.Write(pkt, func(r zerocopy.Reader) {
		objs, err := d.Decode(r, pkt.ArrivedTime())
		if err != nil {
			return
		}

		for _, obj := range objs {
			if obj == nil {
				continue
			}

			pair := c.matcher.Match(obj)
			if pair == nil {
				continue
			}

			rt := c.createRoundTrip(pair)
			if !rt.Validate() {
				continue
			}
			ch <- rt
		}
	})

	if errors.Is(err, connstream.ErrClosed) {
		return ErrConnClosed
	}
	return err
}

func (c *L7TCPConn) getDecoder(st socket.Tuple) Decoder {
	if c.l != nil && c.l.st == st {
		return c.l.d
	}
	if c.r != nil && c.r.st == st {
		return c.r.d
	}

	if c.l == nil {
		c.l = &socketDecoder{st: st, d: c.createDecoder(st, c.serverPort)}
		return c.l.d
	}
	if c.r == nil {
		c.r = &socketDecoder{st: st, d: c.createDecoder(st, c.serverPort)}
		return c.r.d
	}
	return nil
}
