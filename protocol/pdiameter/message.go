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
	"github.com/packetd/diamscope/protocol/pdiameter/dictionary"
)

// Message 解码完成的 Diameter 消息
type Message struct {
	Header *Header
	AVPs   []*AVP `json:",omitempty"`

	// Size 实际参与解码的字节数
	Size int
}

// MessageDecoder 基于同一个字典以及子解析器注册表解码消息
//
// MessageDecoder 不持有任何可变状态 可以被多个连接并发使用
type MessageDecoder struct {
	dict *dictionary.Dictionary
	subs *SubDissectors
}

// NewMessageDecoder 创建 MessageDecoder dict 为空时使用空字典
func NewMessageDecoder(dict *dictionary.Dictionary, subs *SubDissectors) *MessageDecoder {
	if dict == nil {
		dict = dictionary.Empty()
	}
	return &MessageDecoder{dict: dict, subs: subs}
}

// Dictionary 返回解码使用的字典
func (md *MessageDecoder) Dictionary() *dictionary.Dictionary {
	return md.dict
}

// Decode 解码一条完整的 Diameter 消息
//
// 仅当 b 不足 20 字节时返回 error 其余所有异常均以 Diagnostic 的形式附着在对应结构上
// AVP 的解码范围为 min(Header.Length, len(b))
func (md *MessageDecoder) Decode(b []byte) (*Message, error) {
	h, err := ParseHeader(md.dict, b)
	if err != nil {
		return nil, err
	}

	end := min(int(h.Length), len(b))
	if end < HeaderLength {
		end = HeaderLength
	}

	ctx := decodeContext{dict: md.dict, mode: h.Mode, subs: md.subs}
	msg := &Message{
		Header: h,
		AVPs:   decodeAVPs(ctx, b[HeaderLength:end], HeaderLength),
		Size:   end,
	}

	decodedMessagesTotal.WithLabelValues(h.Mode.String()).Inc()
	for _, diag := range msg.Diagnostics() {
		decodeDiagnosticsTotal.WithLabelValues(diag.Kind.String()).Inc()
	}
	return msg, nil
}

// DecodeMessage 使用 dict 解码单条消息 不启用子解析器
func DecodeMessage(dict *dictionary.Dictionary, b []byte) (*Message, error) {
	return NewMessageDecoder(dict, nil).Decode(b)
}

// Find 深度优先查找第一个匹配 (code, vendor) 的 AVP
func (m *Message) Find(code, vendor uint32) *AVP {
	return findAVP(m.AVPs, code, vendor)
}

func findAVP(avps []*AVP, code, vendor uint32) *AVP {
	for _, avp := range avps {
		if avp.Code == code && avp.VendorID == vendor {
			return avp
		}
		if found := findAVP(avp.Children, code, vendor); found != nil {
			return found
		}
	}
	return nil
}

// FindAll 深度优先查找所有匹配 (code, vendor) 的 AVP
func (m *Message) FindAll(code, vendor uint32) []*AVP {
	var found []*AVP
	var walk func([]*AVP)
	walk = func(avps []*AVP) {
		for _, avp := range avps {
			if avp.Code == code && avp.VendorID == vendor {
				found = append(found, avp)
			}
			walk(avp.Children)
		}
	}
	walk(m.AVPs)
	return found
}

// Diagnostics 返回 Header 以及所有 AVP 上的诊断信息
func (m *Message) Diagnostics() []*dictionary.Diagnostic {
	diags := append([]*dictionary.Diagnostic(nil), m.Header.Diagnostics...)
	var walk func([]*AVP)
	walk = func(avps []*AVP) {
		for _, avp := range avps {
			diags = append(diags, avp.Diagnostics...)
			walk(avp.Children)
		}
	}
	walk(m.AVPs)
	return diags
}

// Field 解码输出的最小单元
//
// 每个 Header 字段以及 AVP 都会产出一个 Field 其上的每条诊断再各自产出一个 Field
type Field struct {
	Path       string
	Offset     int
	Length     int
	Value      any                    `json:",omitempty"`
	Diagnostic *dictionary.Diagnostic `json:",omitempty"`
}

// FieldSink 接收 Field 的输出通道
type FieldSink interface {
	OnField(f Field)
}

// FieldSinkFunc 函数形式的 FieldSink
type FieldSinkFunc func(f Field)

func (fn FieldSinkFunc) OnField(f Field) {
	fn(f)
}

// Walk 按照字节顺序向 sink 输出所有 Field
func (m *Message) Walk(sink FieldSink) {
	h := m.Header
	appField, appValue := fieldApplicationID, any(h.ApplicationID)
	if h.Mode == dictionary.ModeLegacy {
		appField, appValue = fieldVendorID, any(h.VendorID)
	}

	for _, f := range []Field{
		{Path: fieldVersion, Offset: 0, Length: 1, Value: h.Version},
		{Path: fieldLength, Offset: 1, Length: 3, Value: h.Length},
		{Path: fieldFlags, Offset: 4, Length: 1, Value: h.Flags},
		{Path: fieldCommandCode, Offset: 5, Length: 3, Value: h.CommandCode},
		{Path: appField, Offset: 8, Length: 4, Value: appValue},
		{Path: fieldHopByHopID, Offset: 12, Length: 4, Value: h.HopByHopID},
		{Path: fieldEndToEndID, Offset: 16, Length: 4, Value: h.EndToEndID},
	} {
		f.Path = "header." + f.Path
		sink.OnField(f)
		for _, diag := range h.Diagnostics {
			if "header."+diag.Field == f.Path {
				sink.OnField(Field{Path: f.Path, Offset: f.Offset, Length: f.Length, Diagnostic: diag})
			}
		}
	}
	walkAVPs(sink, "avp", m.AVPs)
}

func walkAVPs(sink FieldSink, prefix string, avps []*AVP) {
	for _, avp := range avps {
		name := avp.Name
		if avp.Descriptor != nil && avp.Value.Kind == dictionary.KindAddress {
			name = avp.Descriptor.AddressField(avp.Value)
		}

		f := Field{
			Path:   prefix + "." + name,
			Offset: avp.Offset,
			Length: avp.consumed,
			Value:  avp.Value,
		}
		sink.OnField(f)
		for _, diag := range avp.Diagnostics {
			sink.OnField(Field{Path: f.Path, Offset: f.Offset, Length: f.Length, Diagnostic: diag})
		}
		walkAVPs(sink, prefix+"."+avp.Name, avp.Children)
	}
}
