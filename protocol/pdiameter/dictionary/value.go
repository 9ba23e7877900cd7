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
	"fmt"
	"net"
	"strconv"
	"time"
)

// Mode 协议头解析模式
//
// 由 Header 中的 Version 字段决定 两种模式在 Application/Vendor 的解析以及 Address 的渲染上存在差异
type Mode uint8

const (
	// ModeCurrent RFC3588/RFC6733 Version=1
	ModeCurrent Mode = iota

	// ModeLegacy draft v16 Header 的第 8 字节起为 VendorID 且 Address 不携带 Family
	ModeLegacy
)

func (m Mode) String() string {
	if m == ModeLegacy {
		return "legacy"
	}
	return "current"
}

// Kind 基础编码类型
type Kind uint8

const (
	KindOctetString Kind = iota
	KindUTF8String
	KindGrouped
	KindInteger32
	KindInteger64
	KindUnsigned32
	KindUnsigned64
	KindFloat32
	KindFloat64
	KindAddress
	KindDiameterIdentity
	KindDiameterURI
	KindIPFilterRule
	KindQoSFilterRule
	KindTime
	KindAppID
	KindVendorID
)

var kindNames = map[Kind]string{
	KindOctetString:      "OctetString",
	KindUTF8String:       "UTF8String",
	KindGrouped:          "Grouped",
	KindInteger32:        "Integer32",
	KindInteger64:        "Integer64",
	KindUnsigned32:       "Unsigned32",
	KindUnsigned64:       "Unsigned64",
	KindFloat32:          "Float32",
	KindFloat64:          "Float64",
	KindAddress:          "IPAddress",
	KindDiameterIdentity: "DiameterIdentity",
	KindDiameterURI:      "DiameterURI",
	KindIPFilterRule:     "IPFilterRule",
	KindQoSFilterRule:    "QoSFilterRule",
	KindTime:             "Time",
	KindAppID:            "AppId",
	KindVendorID:         "VendorId",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// IsIntegral 返回该类型是否为整型 仅整型允许携带枚举表
func (k Kind) IsIntegral() bool {
	switch k {
	case KindInteger32, KindInteger64, KindUnsigned32, KindUnsigned64, KindAppID, KindVendorID:
		return true
	}
	return false
}

// Address Family 取值
//
// https://www.iana.org/assignments/address-family-numbers
const (
	AddressFamilyIPv4 uint16 = 1
	AddressFamilyIPv6 uint16 = 2
)

// Value AVP 解码后的值
//
// Valid 为 false 时代表值渲染被抑制（如定长类型长度不匹配）此时仅 Raw 可用
type Value struct {
	Kind   Kind
	Valid  bool
	Raw    []byte    `json:"-"`
	Int    int64     `json:",omitempty"`
	Uint   uint64    `json:",omitempty"`
	Float  float64   `json:",omitempty"`
	Text   string    `json:",omitempty"`
	IP     net.IP    `json:",omitempty"`
	Family uint16    `json:",omitempty"`
	Time   time.Time `json:",omitempty"`

	// Name 枚举值 / Application / Vendor 的名称渲染
	Name string `json:",omitempty"`
}

// Numeric 返回整型值的 int64 表示 用于枚举表查找
func (v Value) Numeric() (int64, bool) {
	if !v.Valid {
		return 0, false
	}
	switch v.Kind {
	case KindInteger32, KindInteger64:
		return v.Int, true
	case KindUnsigned32, KindUnsigned64, KindAppID, KindVendorID:
		return int64(v.Uint), true
	}
	return 0, false
}

func (v Value) String() string {
	if !v.Valid {
		return fmt.Sprintf("<invalid %s %x>", v.Kind, v.Raw)
	}

	var s string
	switch v.Kind {
	case KindInteger32, KindInteger64:
		s = strconv.FormatInt(v.Int, 10)
	case KindUnsigned32, KindUnsigned64, KindAppID, KindVendorID:
		s = strconv.FormatUint(v.Uint, 10)
	case KindFloat32, KindFloat64:
		s = strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindAddress:
		if v.IP != nil {
			s = v.IP.String()
		} else {
			s = fmt.Sprintf("%x", v.Raw)
		}
	case KindTime:
		s = v.Time.UTC().Format(time.RFC3339)
	case KindUTF8String, KindDiameterIdentity, KindDiameterURI, KindIPFilterRule, KindQoSFilterRule:
		s = v.Text
	case KindGrouped:
		s = fmt.Sprintf("<grouped %d bytes>", len(v.Raw))
	default:
		s = fmt.Sprintf("%x", v.Raw)
	}

	if v.Name != "" {
		return v.Name + "(" + s + ")"
	}
	return s
}

// DiagKind 诊断信息分类
type DiagKind uint8

const (
	// DiagSchema 字典条目错误
	DiagSchema DiagKind = iota + 1

	// DiagIdentity 未知的 code/vendor/application/command
	DiagIdentity

	// DiagLength 定长类型长度不匹配 / 空值
	DiagLength

	// DiagStructural 声明长度小于最小头部 仅终止当前 AVP
	DiagStructural

	// DiagMalformed 保留位 / 非零填充 / 非法的 Address Family
	DiagMalformed

	// DiagSubDissector 子解析器失败
	DiagSubDissector
)

var diagKindNames = map[DiagKind]string{
	DiagSchema:       "schema",
	DiagIdentity:     "identity",
	DiagLength:       "length",
	DiagStructural:   "structural",
	DiagMalformed:    "malformed",
	DiagSubDissector: "subdissector",
}

func (k DiagKind) String() string {
	if s, ok := diagKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Diagnostic 附着在最小结构（某个 Header 字段或者某个 AVP）上的诊断信息
//
// Diagnostic 并不会中断解析 仅作为结果的一部分输出
type Diagnostic struct {
	Kind    DiagKind
	Field   string `json:",omitempty"`
	Message string
}

// NewDiagnostic 创建 Diagnostic
func NewDiagnostic(kind DiagKind, field string, format string, args ...any) *Diagnostic {
	return &Diagnostic{
		Kind:    kind,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

func (d *Diagnostic) Error() string {
	if d.Field == "" {
		return d.Kind.String() + ": " + d.Message
	}
	return d.Kind.String() + ": " + d.Field + ": " + d.Message
}
