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

	"github.com/packetd/diamscope/common"
	"github.com/packetd/diamscope/common/socket"
	"github.com/packetd/diamscope/connstream"
	"github.com/packetd/diamscope/protocol/role"
)

// CreateConnPool 根据协议参数创建连接池
type CreateConnPool func(opts common.Options) (ConnPool, error)

var poolFactory = map[socket.L7Proto]CreateConnPool{}

// Register 注册协议连接池工厂 需在 init 阶段完成
func Register(name socket.L7Proto, f CreateConnPool) {
	poolFactory[name] = f
}

// Get 获取协议连接池工厂
func Get(name socket.L7Proto) (CreateConnPool, error) {
	f, ok := poolFactory[name]
	if !ok {
		return nil, errors.Errorf("connpool factory (%s) not found", name)
	}
	return f, nil
}

// CreateConnFunc 创建连接
type CreateConnFunc func(st socket.Tuple, serverPort socket.Port) Conn

// ConnPool 连接池 以四元组（双向）索引连接
type ConnPool interface {
	// L4Proto 返回传输层协议
	L4Proto() socket.L4Proto

	// Delete 删除并释放连接
	Delete(st socket.Tuple)

	// GetOrCreate 获取或创建连接
	GetOrCreate(st socket.Tuple, serverPort socket.Port) Conn

	// OnStats 遍历所有连接的统计数据 读取即重置
	OnStats(f func(connstream.TupleStats))

	// ActiveConns 返回活跃连接数量
	ActiveConns() int

	// RemoveExpired 清理截至 now 已超过 duration 未活跃的连接
	//
	// 活跃时间取自数据包的捕获时间 回放时 now 应为当前回放进度
	RemoveExpired(now time.Time, duration time.Duration) int

	// Clean 释放所有连接
	Clean()
}

type connPool struct {
	l4Proto    socket.L4Proto
	createConn CreateConnFunc
	mut        sync.RWMutex
	conns      map[socket.Tuple]Conn
}

// NewConnPool 创建连接池
func NewConnPool(l4Proto socket.L4Proto, createConn CreateConnFunc) ConnPool {
	return &connPool{
		l4Proto:    l4Proto,
		createConn: createConn,
		conns:      make(map[socket.Tuple]Conn),
	}
}

func (cp *connPool) L4Proto() socket.L4Proto {
	return cp.l4Proto
}

func (cp *connPool) Delete(st socket.Tuple) {
	cp.mut.Lock()
	defer cp.mut.Unlock()

	conn := cp.getConnLocked(st)
	if conn == nil {
		return
	}
	conn.Free()
	delete(cp.conns, st)
	delete(cp.conns, st.Mirror())
}

func (cp *connPool) GetOrCreate(st socket.Tuple, serverPort socket.Port) Conn {
	cp.mut.RLock()
	conn := cp.getConnLocked(st)
	cp.mut.RUnlock()
	if conn != nil {
		return conn
	}

	cp.mut.Lock()
	defer cp.mut.Unlock()

	if conn := cp.getConnLocked(st); conn != nil {
		return conn
	}

	conn = cp.createConn(st, serverPort)
	cp.conns[st] = conn
	return conn
}

func (cp *connPool) OnStats(f func(connstream.TupleStats)) {
	cp.mut.RLock()
	defer cp.mut.RUnlock()

	for _, conn := range cp.conns {
		for _, stats := range conn.Stats() {
			f(stats)
		}
	}
}

func (cp *connPool) Clean() {
	cp.mut.Lock()
	defer cp.mut.Unlock()

	for st, conn := range cp.conns {
		conn.Free()
		delete(cp.conns, st)
	}
}

func (cp *connPool) ActiveConns() int {
	cp.mut.RLock()
	defer cp.mut.RUnlock()

	return len(cp.conns)
}

func (cp *connPool) RemoveExpired(now time.Time, duration time.Duration) int {
	cp.mut.Lock()
	defer cp.mut.Unlock()

	var n int
	for st, conn := range cp.conns {
		if conn.IsClosed() || conn.ActiveAt().Add(duration).Before(now) {
			conn.Free()
			delete(cp.conns, st)
			n++
		}
	}
	return n
}

func (cp *connPool) getConnLocked(st socket.Tuple) Conn {
	if conn, ok := cp.conns[st]; ok {
		return conn
	}
	if conn, ok := cp.conns[st.Mirror()]; ok {
		return conn
	}
	return nil
}

type (
	// CreateRoundTripFunc 根据配对结果创建 RoundTrip
	CreateRoundTripFunc func(pair *role.Pair) socket.RoundTrip

	// CreateDecoderFunc 为连接的单个方向创建 Decoder
	CreateDecoderFunc func(st socket.Tuple, serverPort socket.Port) Decoder

	// CreateMatcherFunc 为连接创建 role.Matcher
	CreateMatcherFunc func() role.Matcher
)

// NewL7TCPConnPool 创建基于 TCP 的应用层连接池
func NewL7TCPConnPool(createMatcher CreateMatcherFunc, createRoundTrip CreateRoundTripFunc, createDecoder CreateDecoderFunc) ConnPool {
	return NewConnPool(
		socket.L4ProtoTCP,
		func(st socket.Tuple, serverPort socket.Port) Conn {
			return NewL7Conn(
				connstream.NewConn(st, connstream.NewTCPStream),
				serverPort,
				createMatcher(),
				createRoundTrip,
				createDecoder,
			)
		},
	)
}
