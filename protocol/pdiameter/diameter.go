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

package pdiameter

import (
	"time"

	"github.com/packetd/diamscope/common"
	"github.com/packetd/diamscope/common/socket"
	"github.com/packetd/diamscope/protocol"
	"github.com/packetd/diamscope/protocol/role"
)

const (
	PROTO = "Diameter"
)

// Base Protocol 中用于提取应答结果的 AVP
const (
	avpResultCode             = 268
	avpExperimentalResultCode = 298
)

func init() {
	protocol.Register(socket.L7ProtoDiameter, NewConnPool)
}

var defaultSubDissectors = NewSubDissectors()

// RegisterSubDissector 向默认注册表注册 (vendor, code) 对应的子解析器
//
// 需在 init 阶段完成 连接池创建后注册的子解析器不保证生效
func RegisterSubDissector(vendor, code uint32, d SubDissector) {
	defaultSubDissectors.Register(vendor, code, d)
}

// RegisterSubDissectorName 向默认注册表注册名称对应的子解析器
func RegisterSubDissectorName(name string, d SubDissector) {
	defaultSubDissectors.RegisterName(name, d)
}

// NewConnPool 根据协议参数创建 Diameter 连接池
func NewConnPool(opts common.Options) (protocol.ConnPool, error) {
	cfg, err := ConfigFromOptions(opts)
	if err != nil {
		return nil, err
	}

	var subs *SubDissectors
	if cfg.SubDissectors {
		subs = defaultSubDissectors
	}
	return NewConnPoolWith(NewMessageDecoder(cfg.LoadDictionary(), subs), cfg), nil
}

// NewConnPoolWith 使用指定的 MessageDecoder 创建连接池
//
// 所有连接共享同一个 MessageDecoder 每个连接持有独立的事务索引
func NewConnPoolWith(md *MessageDecoder, cfg Config) protocol.ConnPool {
	return protocol.NewL7TCPConnPool(
		func() role.Matcher {
			return newTransactionMatcher(cfg)
		},
		func(pair *role.Pair) socket.RoundTrip {
			rsp := pair.Response.Obj.(*Response)
			return &RoundTrip{
				request:  pair.Request.Obj.(*Request),
				response: rsp,
				tx:       rsp.Transaction,
			}
		},
		func(st socket.Tuple, serverPort socket.Port) protocol.Decoder {
			return NewDecoder(st, serverPort, md, cfg.maxMessageSize())
		},
	)
}

// Request Diameter 请求
type Request struct {
	Host    string
	Port    uint16
	Proto   string
	Command string
	Frame   uint64
	Message *Message
	Size    int
	Time    time.Time
}

// Response Diameter 应答
type Response struct {
	Host       string
	Port       uint16
	Proto      string
	Command    string
	ResultCode uint32 `json:",omitempty"`
	ResultName string `json:",omitempty"`
	Frame      uint64
	Message    *Message
	Size       int
	Time       time.Time

	// Transaction 配对成功后关联的事务
	Transaction *Transaction `json:"-"`
}

var _ socket.RoundTrip = (*RoundTrip)(nil)

// RoundTrip Diameter 单次请求来回
type RoundTrip struct {
	request  *Request
	response *Response
	tx       *Transaction
}

func (rt RoundTrip) Proto() socket.L7Proto {
	return socket.L7ProtoDiameter
}

func (rt RoundTrip) Request() any {
	return rt.request
}

func (rt RoundTrip) Response() any {
	return rt.response
}

// Transaction 返回该来回对应的事务
func (rt RoundTrip) Transaction() *Transaction {
	return rt.tx
}

func (rt RoundTrip) Duration() time.Duration {
	return rt.response.Time.Sub(rt.request.Time)
}

func (rt RoundTrip) Validate() bool {
	return !rt.response.Time.Before(rt.request.Time)
}

// transactionMatcher 基于 Conversation 实现的 role.Matcher
//
// 帧序号按对象到达顺序在连接内递增 从 1 开始
type transactionMatcher struct {
	conv     *Conversation
	frame    uint64
	requests map[uint64]*role.Object
}

func newTransactionMatcher(cfg Config) *transactionMatcher {
	m := &transactionMatcher{
		conv:     NewConversation(cfg),
		requests: make(map[uint64]*role.Object),
	}
	m.conv.OnEvict(func(tx *Transaction) {
		delete(m.requests, tx.RequestFrame)
	})
	return m
}

func (m *transactionMatcher) Match(o *role.Object) *role.Pair {
	m.frame++

	switch o.Role {
	case role.Request:
		req := o.Obj.(*Request)
		req.Frame = m.frame
		tx := m.conv.Process(req.Message.Header, m.frame, req.Time)
		m.requests[tx.RequestFrame] = o
		return nil

	case role.Response:
		rsp := o.Obj.(*Response)
		rsp.Frame = m.frame
		tx := m.conv.Process(rsp.Message.Header, m.frame, rsp.Time)
		if tx == nil || tx.AnswerFrame != m.frame {
			return nil
		}

		req, ok := m.requests[tx.RequestFrame]
		if !ok {
			return nil
		}
		delete(m.requests, tx.RequestFrame)
		rsp.Transaction = tx
		return &role.Pair{Request: req, Response: o}
	}
	return nil
}

// Reset 释放连接上的所有事务
func (m *transactionMatcher) Reset() {
	m.conv.Reset()
	m.requests = make(map[uint64]*role.Object)
	m.frame = 0
}
