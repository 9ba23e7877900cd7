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

	"github.com/packetd/diamscope/logger"
	"github.com/packetd/diamscope/protocol/pdiameter/dictionary"
)

// AVPFlags AVP Flags 字段
type AVPFlags uint8

const (
	AVPFlagVendor    AVPFlags = 0x80
	AVPFlagMandatory AVPFlags = 0x40
	AVPFlagProtected AVPFlags = 0x20

	avpFlagReserved AVPFlags = 0x1F
)

func (f AVPFlags) Vendor() bool {
	return f&AVPFlagVendor != 0
}

func (f AVPFlags) Mandatory() bool {
	return f&AVPFlagMandatory != 0
}

func (f AVPFlags) Protected() bool {
	return f&AVPFlagProtected != 0
}

const (
	// avpHeaderLength 不携带 Vendor-ID 的 AVP 头部长度
	avpHeaderLength = 8

	// avpVendorHeaderLength 携带 Vendor-ID 的 AVP 头部长度
	avpVendorHeaderLength = 12

	// maxDepth Grouped AVP 最大嵌套层数
	maxDepth = 64
)

// AVP 解码后的 Attribute-Value Pair
//
// Offset 为 AVP 在整个消息中的绝对偏移
// Length 为协议中声明的长度（不含 Padding）
type AVP struct {
	Code     uint32
	Flags    AVPFlags
	VendorID uint32 `json:",omitempty"`
	Vendor   string `json:",omitempty"`
	Name     string
	Offset   int
	Length   uint32
	Padding  int `json:",omitempty"`

	Value    dictionary.Value
	Children []*AVP `json:",omitempty"`

	// Dissected 子解析器输出
	Dissected any `json:",omitempty"`

	Diagnostics []*dictionary.Diagnostic `json:",omitempty"`
	Descriptor  *dictionary.AttributeDescriptor `json:"-"`
	Unknown     bool                            `json:",omitempty"`

	consumed int
}

// Consumed 返回该 AVP 在所属缓冲区中占用的字节数
//
// 正常情况下等于 Length + Padding
func (a *AVP) Consumed() int {
	return a.consumed
}

// Payload 返回 AVP 的值部分原始字节
func (a *AVP) Payload() []byte {
	return a.Value.Raw
}

func (a *AVP) diag(kind dictionary.DiagKind, format string, args ...any) {
	a.Diagnostics = append(a.Diagnostics, dictionary.NewDiagnostic(kind, a.Name, format, args...))
}

// decodeContext 单条消息的解码上下文
//
// 每一层递归都会获得独立的 context 副本 解码过程中不存在共享的可变状态
type decodeContext struct {
	dict  *dictionary.Dictionary
	mode  dictionary.Mode
	subs  *SubDissectors
	depth int
}

func (ctx decodeContext) nested() decodeContext {
	ctx.depth++
	return ctx
}

// DecodeAVPs 从 b 中连续解码 AVP 直到缓冲区耗尽
//
// base 为 b 在整个消息中的起始偏移 仅用于记录 AVP.Offset
func DecodeAVPs(dict *dictionary.Dictionary, mode dictionary.Mode, b []byte, base int) []*AVP {
	if dict == nil {
		dict = dictionary.Empty()
	}
	return decodeAVPs(decodeContext{dict: dict, mode: mode}, b, base)
}

func decodeAVPs(ctx decodeContext, b []byte, base int) []*AVP {
	var avps []*AVP
	for offset := 0; offset < len(b); {
		avp := decodeAVP(ctx, b[offset:], base+offset)
		avps = append(avps, avp)
		offset += avp.consumed
	}
	return avps
}

// decodeAVP 解码单个 AVP 数据布局如下
//
// ┌──────────────────────────── AVP ──────────────────────────────────┐
// │ 0                   1                   2                   3     │
// │ 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1   │
// ├───────────────────────────────────────────────────────────────────┤
// │                           AVP Code                                │
// ├───────────────┬───────────────────────────────────────────────────┤
// │V M P r r r r r│                  AVP Length                       │
// ├───────────────┴───────────────────────────────────────────────────┤
// │                   Vendor-ID (opt, V=1)                            │
// ├───────────────────────────────────────────────────────────────────┤
// │    Data ...                                                       │
// └───────────────────────────────────────────────────────────────────┘
//
// 返回的 AVP.consumed 即调用方需要前进的字节数 且不会超过 len(b)
// 声明长度小于 AVP 头部时仅终止当前 AVP 的解析
func decodeAVP(ctx decodeContext, b []byte, offset int) *AVP {
	avp := &AVP{Offset: offset}
	if len(b) < avpHeaderLength {
		avp.Name = ctx.dict.UnknownAttribute().Name
		avp.Unknown = true
		avp.diag(dictionary.DiagStructural, "truncated AVP header: %d bytes remain", len(b))
		avp.consumed = len(b)
		return avp
	}

	avp.Code = binary.BigEndian.Uint32(b[0:4])
	avp.Flags = AVPFlags(b[4])
	avp.Length = readUint24(b[5:8])

	hdrLen := avpHeaderLength
	if avp.Flags.Vendor() {
		hdrLen = avpVendorHeaderLength
		if len(b) < avpVendorHeaderLength {
			ctx.resolve(avp)
			avp.diag(dictionary.DiagStructural, "truncated vendor header: %d bytes remain", len(b))
			avp.consumed = len(b)
			return avp
		}
		avp.VendorID = binary.BigEndian.Uint32(b[8:12])
	}
	ctx.resolve(avp)

	if r := avp.Flags & avpFlagReserved; r != 0 {
		avp.diag(dictionary.DiagMalformed, "reserved flag bits 0x%x set", uint8(r))
	}

	declared := int(avp.Length)
	avp.Padding = (4 - declared%4) % 4

	switch {
	case declared < avpHeaderLength:
		// 无法确定 AVP 边界 放弃当前缓冲区的剩余部分
		avp.diag(dictionary.DiagStructural, "declared length %d shorter than %d-byte header", declared, avpHeaderLength)
		avp.consumed = len(b)
		return avp

	case declared < hdrLen:
		avp.diag(dictionary.DiagStructural, "declared length %d shorter than %d-byte vendor header", declared, hdrLen)
		avp.consumed = min(declared+avp.Padding, len(b))
		return avp

	case declared > len(b):
		avp.Value = dictionary.Value{Kind: avp.Descriptor.Type.Kind(), Raw: b[hdrLen:]}
		avp.diag(dictionary.DiagStructural, "declared length %d exceeds %d remaining bytes", declared, len(b))
		avp.consumed = len(b)
		return avp
	}

	end := declared + avp.Padding
	if end > len(b) {
		avp.diag(dictionary.DiagMalformed, "missing %d padding bytes", end-len(b))
		end = len(b)
	}
	for _, c := range b[declared:end] {
		if c != 0 {
			avp.diag(dictionary.DiagMalformed, "non-zero padding")
			break
		}
	}
	avp.consumed = end

	payload := b[hdrLen:declared]
	if len(payload) == 0 {
		avp.Value = dictionary.Value{Kind: avp.Descriptor.Type.Kind(), Raw: payload}
		avp.diag(dictionary.DiagLength, "empty value")
		return avp
	}

	ctx.decodeValue(avp, payload, offset+hdrLen)
	return avp
}

// resolve 根据 (code, vendor) 精确查找描述符
//
// 未命中时 Vendor 独立解析 并回退到 Unknown-AVP 描述符
func (ctx decodeContext) resolve(avp *AVP) {
	desc, ok := ctx.dict.LookupAttribute(avp.Code, avp.VendorID)
	if ok {
		avp.Descriptor = desc
		avp.Name = desc.Name
		avp.Vendor = desc.Vendor.Name
		return
	}

	avp.Descriptor = ctx.dict.UnknownAttribute()
	avp.Name = avp.Descriptor.Name
	avp.Unknown = true

	vendor, ok := ctx.dict.Vendor(avp.VendorID)
	if !ok {
		vendor = ctx.dict.VendorOrUnknown(avp.VendorID)
		avp.diag(dictionary.DiagIdentity, "unknown vendor %d", avp.VendorID)
	}
	avp.Vendor = vendor.Name
	avp.diag(dictionary.DiagIdentity, "unknown AVP code %d (vendor %d)", avp.Code, avp.VendorID)
	logger.Debugf("diameter: unknown AVP code=%d, vendor=%d", avp.Code, avp.VendorID)
}

func (ctx decodeContext) decodeValue(avp *AVP, payload []byte, offset int) {
	desc := avp.Descriptor
	value, diag := desc.Decode(ctx.mode, payload)
	if diag != nil {
		diag.Field = avp.Name
		avp.Diagnostics = append(avp.Diagnostics, diag)
	}

	if value.Valid && value.Name == "" {
		switch value.Kind {
		case dictionary.KindAppID:
			value.Name, _ = ctx.dict.Application(uint32(value.Uint))
		case dictionary.KindVendorID:
			if v, ok := ctx.dict.Vendor(uint32(value.Uint)); ok {
				value.Name = v.Name
			}
		}
	}
	avp.Value = value

	if value.Kind == dictionary.KindGrouped {
		if ctx.depth >= maxDepth {
			avp.diag(dictionary.DiagStructural, "grouped AVP nested deeper than %d", maxDepth)
		} else {
			avp.Children = decodeAVPs(ctx.nested(), payload, offset)
		}
	}

	if ctx.subs != nil {
		ctx.subs.dispatch(avp)
	}
}
