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

// AttributeKey AVP 唯一标识
type AttributeKey struct {
	Code   uint32
	Vendor uint32
}

// AddressFields Address 类型的子字段
//
// 解码时由 Family 决定最终使用哪一个字段渲染
type AddressFields struct {
	Family string
	IPv4   string
	IPv6   string
	Bytes  string
}

// AttributeDescriptor AVP 描述符 由 TypeTag.Build 构建
type AttributeDescriptor struct {
	Code   uint32
	Vendor *Vendor
	Name   string
	Type   TypeTag
	Enums  map[int64]string

	// SubDissector 子协议解析器名称提示 为空代表无需进一步解析
	SubDissector string

	// Sub 仅 Address 类型存在
	Sub *AddressFields
}

// Key 返回描述符的唯一标识
func (d *AttributeDescriptor) Key() AttributeKey {
	return AttributeKey{Code: d.Code, Vendor: d.Vendor.Code}
}

// Decode 使用描述符的类型策略解码 payload 并补充枚举名称
func (d *AttributeDescriptor) Decode(mode Mode, b []byte) (Value, *Diagnostic) {
	v, diag := d.Type.Decode(mode, b)
	if len(d.Enums) == 0 {
		return v, diag
	}

	if n, ok := v.Numeric(); ok {
		v.Name = d.Enums[n]
	}
	return v, diag
}

// AddressField 根据解码结果选择 Address 的渲染字段
func (d *AttributeDescriptor) AddressField(v Value) string {
	if d.Sub == nil {
		return d.Name
	}
	switch {
	case v.IP != nil && v.Family == AddressFamilyIPv4:
		return d.Sub.IPv4
	case v.IP != nil && v.Family == AddressFamilyIPv6:
		return d.Sub.IPv6
	}
	return d.Sub.Bytes
}
