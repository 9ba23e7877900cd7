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
	"encoding/binary"
	"time"

	"github.com/packetd/diamscope/common"
	"github.com/packetd/diamscope/common/socket"
	"github.com/packetd/diamscope/internal/zerocopy"
	"github.com/packetd/diamscope/logger"
	"github.com/packetd/diamscope/protocol"
	"github.com/packetd/diamscope/protocol/pdiameter/dictionary"
	"github.com/packetd/diamscope/protocol/role"
)

type decoder struct {
	st      socket.TupleRaw
	md      *MessageDecoder
	maxSize int

	// buf 尚未组成完整消息的数据 持有的是拷贝
	buf []byte
	t0  time.Time

	// synced 上一条消息是否成功切分
	// 失去同步时需要更严格的头部校验来寻找下一条消息的起点
	synced bool
}

// NewDecoder 创建 Diameter 流解析器
//
// 每个 TCP 方向持有一个 decoder maxSize 为单条消息的长度上限
func NewDecoder(st socket.Tuple, _ socket.Port, md *MessageDecoder, maxSize int) protocol.Decoder {
	return &decoder{
		st:      st.ToRaw(),
		md:      md,
		maxSize: maxSize,
	}
}

// Free 释放缓存的数据
func (d *decoder) Free() {
	d.buf = nil
}

// Decode 持续从 zerocopy.Reader 读取数据并切分出完整的 Diameter 消息
//
// Diameter 消息以 20 字节头部开头 头部中的 24 位长度覆盖整条消息
// 一条消息可能跨越多个 TCP Segment 一个 Segment 也可能携带多条消息
// 不完整的尾部数据会被拷贝保留 等待后续数据拼接
//
// 抓包可能从连接中途开始 此时数据流起点并不是消息边界
// 解析器逐字节向后寻找合法的头部 被跳过的字节计入 dropped_bytes_total
//
// Request.Time 为消息首个数据块到达的时间
// Response.Time 为消息最后一个数据块到达的时间
func (d *decoder) Decode(r zerocopy.Reader, t time.Time) ([]*role.Object, error) {
	var objs []*role.Object
	for {
		b, err := r.Read(common.ReadWriteBlockSize)
		if err != nil {
			break
		}
		if len(b) == 0 {
			continue
		}

		if len(d.buf) == 0 {
			d.t0 = t
		}
		d.buf = append(d.buf, b...)
		objs = d.drain(objs, t)
	}
	return objs, nil
}

func (d *decoder) drain(objs []*role.Object, t time.Time) []*role.Object {
	var dropped int
loop:
	for len(d.buf) >= HeaderLength {
		n, verdict := d.frame(d.buf)
		switch verdict {
		case frameMore:
			break loop
		case frameBad:
			d.synced = false
			d.buf = d.buf[1:]
			dropped++
			continue
		}
		if len(d.buf) < n {
			break
		}

		raw := d.buf[:n:n]
		d.buf = d.buf[n:]
		d.synced = true

		if obj := d.archive(raw, t); obj != nil {
			objs = append(objs, obj)
		}
		d.t0 = t
	}

	if dropped > 0 {
		droppedBytesTotal.Add(float64(dropped))
		logger.Debugf("diameter: (%s) resync dropped %d bytes", d.st, dropped)
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return objs
}

type frameVerdict uint8

const (
	frameOK frameVerdict = iota
	frameBad
	frameMore
)

// frame 判断 b 是否以一个合理的 Diameter 头部开始 并返回消息长度
//
// 已同步时仅校验长度 失去同步时还需要校验 Version / 保留位 / 4 字节对齐
// 以及首个 AVP 头部 数据不足以做出判断时返回 frameMore
func (d *decoder) frame(b []byte) (int, frameVerdict) {
	n := int(readUint24(b[1:4]))
	if n < HeaderLength || n > d.maxSize {
		return 0, frameBad
	}
	if d.synced {
		return n, frameOK
	}

	switch b[0] {
	case VersionCurrent, VersionLegacy:
	default:
		return 0, frameBad
	}
	if Flags(b[4]).Reserved() != 0 || n%4 != 0 {
		return 0, frameBad
	}
	if n == HeaderLength {
		return n, frameOK
	}

	const avpEnd = HeaderLength + avpHeaderLength
	if len(b) < avpEnd {
		return 0, frameMore
	}
	avpLen := int(readUint24(b[HeaderLength+5 : avpEnd]))
	if AVPFlags(b[HeaderLength+4])&avpFlagReserved != 0 || avpLen < avpHeaderLength || avpLen > n-HeaderLength {
		return 0, frameBad
	}
	return n, frameOK
}

// archive 归档消息
func (d *decoder) archive(raw []byte, t time.Time) *role.Object {
	msg, err := d.md.Decode(raw)
	if err != nil {
		return nil
	}

	h := msg.Header
	if h.Flags.Request() {
		return role.NewRequestObject(&Request{
			Host:    d.st.SrcIP,
			Port:    d.st.SrcPort,
			Proto:   PROTO,
			Command: h.Command(),
			Message: msg,
			Size:    len(raw),
			Time:    d.t0,
		})
	}

	code, name := resultCode(msg)
	return role.NewResponseObject(&Response{
		Host:       d.st.SrcIP,
		Port:       d.st.SrcPort,
		Proto:      PROTO,
		Command:    h.Command(),
		ResultCode: code,
		ResultName: name,
		Message:    msg,
		Size:       len(raw),
		Time:       t,
	})
}

// resultCode 提取应答的 Result-Code 不存在时尝试 Experimental-Result 中的 Experimental-Result-Code
//
// 字典缺失时 AVP 按 OctetString 解码 此时直接读取 4 字节载荷
func resultCode(msg *Message) (uint32, string) {
	var avp *AVP
	for _, a := range msg.AVPs {
		if a.Code == avpResultCode && a.VendorID == dictionary.VendorNone {
			avp = a
			break
		}
	}
	if avp == nil {
		avp = msg.Find(avpExperimentalResultCode, dictionary.VendorNone)
	}
	if avp == nil {
		return 0, ""
	}

	if n, ok := avp.Value.Numeric(); ok {
		return uint32(n), avp.Value.Name
	}
	if b := avp.Payload(); len(b) == 4 {
		return binary.BigEndian.Uint32(b), ""
	}
	return 0, ""
}
