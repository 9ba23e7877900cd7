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

package dictionary

import (
	"encoding/binary"
	"math"
	"net"
	"time"
	"unicode/utf8"
)

// TypeTag AVP 值编码类型
//
// 每个 TypeTag 同时提供两种能力
// * Decode 根据解析模式对 payload 进行解码
// * Build 根据字典元数据构建 AttributeDescriptor
//
// TypeTag 在字典构建时即完成解析 解码阶段不再做任何名称查找
type TypeTag interface {
	// Name 类型名称 别名类型返回别名
	Name() string

	// Kind 返回基础编码类型
	Kind() Kind

	// Decode 解码 payload 不允许修改 b
	//
	// 返回的 *Diagnostic 不为空时代表解码存在问题 但调用方仍需按声明长度推进
	Decode(mode Mode, b []byte) (Value, *Diagnostic)

	// Build 构建 AttributeDescriptor
	Build(code uint32, vendor *Vendor, name string, enums map[int64]string) *AttributeDescriptor
}

type baseType struct {
	name string
	kind Kind
}

func (t baseType) Name() string {
	return t.name
}

func (t baseType) Kind() Kind {
	return t.kind
}

func (t baseType) build(tag TypeTag, code uint32, vendor *Vendor, name string, enums map[int64]string) *AttributeDescriptor {
	return &AttributeDescriptor{
		Code:   code,
		Vendor: vendor,
		Name:   name,
		Type:   tag,
		Enums:  enums,
	}
}

// fixedType 定长数值类型
//
// 长度不匹配时 fail closed 即不输出值
type fixedType struct {
	baseType
	width int
}

func (t fixedType) Build(code uint32, vendor *Vendor, name string, enums map[int64]string) *AttributeDescriptor {
	return t.build(t, code, vendor, name, enums)
}

func (t fixedType) Decode(_ Mode, b []byte) (Value, *Diagnostic) {
	v := Value{Kind: t.kind, Raw: b}
	if len(b) != t.width {
		return v, NewDiagnostic(DiagLength, "", "%s requires %d bytes, got %d", t.name, t.width, len(b))
	}

	v.Valid = true
	switch t.kind {
	case KindInteger32:
		v.Int = int64(int32(binary.BigEndian.Uint32(b)))
	case KindInteger64:
		v.Int = int64(binary.BigEndian.Uint64(b))
	case KindUnsigned32, KindAppID, KindVendorID:
		v.Uint = uint64(binary.BigEndian.Uint32(b))
	case KindUnsigned64:
		v.Uint = binary.BigEndian.Uint64(b)
	case KindFloat32:
		v.Float = float64(math.Float32frombits(binary.BigEndian.Uint32(b)))
	case KindFloat64:
		v.Float = math.Float64frombits(binary.BigEndian.Uint64(b))
	}
	return v, nil
}

// stringType 字节串以及文本类型 无长度约束
type stringType struct {
	baseType
	text bool
}

func (t stringType) Build(code uint32, vendor *Vendor, name string, enums map[int64]string) *AttributeDescriptor {
	return t.build(t, code, vendor, name, enums)
}

func (t stringType) Decode(_ Mode, b []byte) (Value, *Diagnostic) {
	v := Value{Kind: t.kind, Raw: b, Valid: true}
	if !t.text {
		return v, nil
	}

	v.Text = string(b)
	if t.kind == KindUTF8String && !utf8.Valid(b) {
		return v, NewDiagnostic(DiagMalformed, "", "invalid UTF-8 sequence")
	}
	return v, nil
}

// addressType 地址类型
//
// 当前模式下 payload 前 2 字节为 Address Family
// +--------+--------+--------+--------+
// |  Address Family |     Address     |
// +--------+--------+                 +
// |              ...                  |
// +--------+--------+--------+--------+
//
// 旧模式下不存在 Family 字段 仅能通过长度推断
type addressType struct {
	baseType
}

func (t addressType) Build(code uint32, vendor *Vendor, name string, enums map[int64]string) *AttributeDescriptor {
	desc := t.build(t, code, vendor, name, enums)
	desc.Sub = &AddressFields{
		Family: name + ".addr_family",
		IPv4:   name + ".ipv4",
		IPv6:   name + ".ipv6",
		Bytes:  name + ".bytes",
	}
	return desc
}

func (t addressType) Decode(mode Mode, b []byte) (Value, *Diagnostic) {
	if mode == ModeLegacy {
		return t.decodeLegacy(b)
	}

	v := Value{Kind: KindAddress, Raw: b, Valid: true}
	if len(b) < 2 {
		return v, NewDiagnostic(DiagMalformed, "", "address too short for family: %d bytes", len(b))
	}

	v.Family = binary.BigEndian.Uint16(b[:2])
	addr := b[2:]
	switch v.Family {
	case AddressFamilyIPv4:
		if len(addr) != net.IPv4len {
			return v, NewDiagnostic(DiagLength, "", "IPv4 address requires %d bytes, got %d", net.IPv4len, len(addr))
		}
		v.IP = net.IP(append([]byte(nil), addr...))
	case AddressFamilyIPv6:
		if len(addr) != net.IPv6len {
			return v, NewDiagnostic(DiagLength, "", "IPv6 address requires %d bytes, got %d", net.IPv6len, len(addr))
		}
		v.IP = net.IP(append([]byte(nil), addr...))
	default:
		return v, NewDiagnostic(DiagMalformed, "", "unsupported address family %d", v.Family)
	}
	return v, nil
}

func (t addressType) decodeLegacy(b []byte) (Value, *Diagnostic) {
	v := Value{Kind: KindAddress, Raw: b, Valid: true}
	switch len(b) {
	case net.IPv4len:
		v.Family = AddressFamilyIPv4
		v.IP = net.IP(append([]byte(nil), b...))
	case net.IPv6len:
		v.Family = AddressFamilyIPv6
		v.IP = net.IP(append([]byte(nil), b...))
	}
	return v, nil
}

const (
	// ntpEpochOffset 1900-01-01 到 1970-01-01 的秒数
	ntpEpochOffset = 2208988800

	// ntpEra1Offset 最高位为 0 时视为 2036-02-07 之后的 NTP Era 1 (RFC2030)
	ntpEra1Offset = 1<<32 - ntpEpochOffset
)

// timeType NTP 时间戳 固定 4 字节
type timeType struct {
	baseType
}

func (t timeType) Build(code uint32, vendor *Vendor, name string, enums map[int64]string) *AttributeDescriptor {
	return t.build(t, code, vendor, name, enums)
}

func (t timeType) Decode(_ Mode, b []byte) (Value, *Diagnostic) {
	v := Value{Kind: KindTime, Raw: b}
	if len(b) != 4 {
		return v, NewDiagnostic(DiagLength, "", "Time requires 4 bytes, got %d", len(b))
	}

	secs := int64(binary.BigEndian.Uint32(b))
	if b[0]>>7 == 0 {
		secs += ntpEra1Offset
	} else {
		secs -= ntpEpochOffset
	}
	v.Valid = true
	v.Time = time.Unix(secs, 0).UTC()
	return v, nil
}

// groupedType 嵌套类型
//
// 值的解析完全交给 AVP 解码器递归处理 此处仅保留原始字节
type groupedType struct {
	baseType
}

func (t groupedType) Build(code uint32, vendor *Vendor, name string, enums map[int64]string) *AttributeDescriptor {
	return t.build(t, code, vendor, name, enums)
}

func (t groupedType) Decode(_ Mode, b []byte) (Value, *Diagnostic) {
	return Value{Kind: KindGrouped, Raw: b, Valid: true}, nil
}

// aliasType 字典中定义的类型别名 行为与父类型一致
type aliasType struct {
	TypeTag
	name string
}

func (t aliasType) Name() string {
	return t.name
}

func (t aliasType) Build(code uint32, vendor *Vendor, name string, enums map[int64]string) *AttributeDescriptor {
	desc := t.TypeTag.Build(code, vendor, name, enums)
	desc.Type = t
	return desc
}

// NewAlias 基于 parent 创建别名类型
func NewAlias(name string, parent TypeTag) TypeTag {
	return aliasType{TypeTag: parent, name: name}
}

var (
	typeOctetString = stringType{baseType: baseType{name: "OctetString", kind: KindOctetString}}
	typeUTF8String  = stringType{baseType: baseType{name: "UTF8String", kind: KindUTF8String}, text: true}
	typeGrouped     = groupedType{baseType{name: "Grouped", kind: KindGrouped}}
	typeInteger32   = fixedType{baseType: baseType{name: "Integer32", kind: KindInteger32}, width: 4}
	typeInteger64   = fixedType{baseType: baseType{name: "Integer64", kind: KindInteger64}, width: 8}
	typeUnsigned32  = fixedType{baseType: baseType{name: "Unsigned32", kind: KindUnsigned32}, width: 4}
	typeUnsigned64  = fixedType{baseType: baseType{name: "Unsigned64", kind: KindUnsigned64}, width: 8}
	typeFloat32     = fixedType{baseType: baseType{name: "Float32", kind: KindFloat32}, width: 4}
	typeFloat64     = fixedType{baseType: baseType{name: "Float64", kind: KindFloat64}, width: 8}
	typeAddress     = addressType{baseType{name: "IPAddress", kind: KindAddress}}
	typeIdentity    = stringType{baseType: baseType{name: "DiameterIdentity", kind: KindDiameterIdentity}, text: true}
	typeURI         = stringType{baseType: baseType{name: "DiameterURI", kind: KindDiameterURI}, text: true}
	typeIPFilter    = stringType{baseType: baseType{name: "IPFilterRule", kind: KindIPFilterRule}, text: true}
	typeQoSFilter   = stringType{baseType: baseType{name: "QoSFilterRule", kind: KindQoSFilterRule}, text: true}
	typeTime        = timeType{baseType{name: "Time", kind: KindTime}}
	typeAppID       = fixedType{baseType: baseType{name: "AppId", kind: KindAppID}, width: 4}
	typeVendorID    = fixedType{baseType: baseType{name: "VendorId", kind: KindVendorID}, width: 4}
)

// BasicTypes 返回基础类型表 每次调用均返回新的 map
//
// 字典加载时以此为种子构建别名表 Address/Enumerated 为常见的内置别名
func BasicTypes() map[string]TypeTag {
	types := map[string]TypeTag{}
	for _, t := range []TypeTag{
		typeOctetString,
		typeUTF8String,
		typeGrouped,
		typeInteger32,
		typeInteger64,
		typeUnsigned32,
		typeUnsigned64,
		typeFloat32,
		typeFloat64,
		typeAddress,
		typeIdentity,
		typeURI,
		typeIPFilter,
		typeQoSFilter,
		typeTime,
		typeAppID,
		typeVendorID,
	} {
		types[t.Name()] = t
	}
	types["Address"] = NewAlias("Address", typeAddress)
	types["Enumerated"] = NewAlias("Enumerated", typeInteger32)
	types["OctetStringOrUTF8"] = NewAlias("OctetStringOrUTF8", typeOctetString)
	return types
}

// LookupBasic 查找基础类型
func LookupBasic(name string) (TypeTag, bool) {
	t, ok := BasicTypes()[name]
	return t, ok
}

// OctetString 返回字节串类型 用于未知类型以及未知 AVP 的兜底
func OctetString() TypeTag {
	return typeOctetString
}
