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
	"fmt"

	"github.com/pkg/errors"

	"github.com/packetd/diamscope/protocol/pdiameter/dictionary"
)

const (
	// HeaderLength Diameter Header 固定长度
	HeaderLength = 20

	// VersionCurrent RFC6733 协议版本
	VersionCurrent uint8 = 1

	// VersionLegacy draft v16 协议版本
	VersionLegacy uint8 = 16
)

// ErrShortHeader 缓冲区不足以容纳 Header 这是唯一会导致解析失败的情况
var ErrShortHeader = errors.New("diameter/header: buffer shorter than 20 bytes")

// Header 字段名称 同时作为 Diagnostic.Field 以及 Field.Path 使用
const (
	fieldVersion       = "version"
	fieldLength        = "length"
	fieldFlags         = "flags"
	fieldCommandCode   = "commandCode"
	fieldApplicationID = "applicationId"
	fieldVendorID      = "vendorId"
	fieldHopByHopID    = "hopByHopId"
	fieldEndToEndID    = "endToEndId"
)

// Flags Header Flags 字段
type Flags uint8

const (
	FlagRequest    Flags = 0x80
	FlagProxiable  Flags = 0x40
	FlagError      Flags = 0x20
	FlagRetransmit Flags = 0x10

	flagReserved Flags = 0x0F
)

func (f Flags) Request() bool {
	return f&FlagRequest != 0
}

func (f Flags) Proxiable() bool {
	return f&FlagProxiable != 0
}

func (f Flags) Error() bool {
	return f&FlagError != 0
}

func (f Flags) Retransmit() bool {
	return f&FlagRetransmit != 0
}

// Reserved 返回被置位的保留位 合法报文应为 0
func (f Flags) Reserved() uint8 {
	return uint8(f & flagReserved)
}

func (f Flags) String() string {
	b := []byte("----")
	for i, c := range []struct {
		flag Flags
		ch   byte
	}{
		{FlagRequest, 'R'},
		{FlagProxiable, 'P'},
		{FlagError, 'E'},
		{FlagRetransmit, 'T'},
	} {
		if f&c.flag != 0 {
			b[i] = c.ch
		}
	}
	return string(b)
}

// Header Diameter 协议头
//
// Diagnostics 记录各个字段上的问题 均不会阻断解析
type Header struct {
	Version       uint8
	Length        uint32
	Flags         Flags
	CommandCode   uint32
	ApplicationID uint32 `json:",omitempty"`
	VendorID      uint32 `json:",omitempty"`
	HopByHopID    uint32
	EndToEndID    uint32

	Mode            dictionary.Mode
	CommandName     string `json:",omitempty"`
	ApplicationName string `json:",omitempty"`

	// Vendor 仅旧模式下存在
	Vendor *dictionary.Vendor `json:"-"`

	Diagnostics []*dictionary.Diagnostic `json:",omitempty"`
}

// Command 返回可读的命令名称 形如 Credit-Control-Request
func (h *Header) Command() string {
	name := h.CommandName
	if name == "" {
		name = fmt.Sprintf("Unknown-Command(%d)", h.CommandCode)
	}
	if h.Flags.Request() {
		return name + "-Request"
	}
	return name + "-Answer"
}

func (h *Header) diag(kind dictionary.DiagKind, field string, format string, args ...any) {
	h.Diagnostics = append(h.Diagnostics, dictionary.NewDiagnostic(kind, field, format, args...))
}

func readUint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// ParseHeader 解析 Diameter Header 数据布局如下
//
// ┌───────────────────────── 20 Bytes Header ─────────────────────────┐
// │ 0                   1                   2                   3     │
// │ 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1   │
// ├───────────────┬───────────────────────────────────────────────────┤
// │    Version    │                 Message Length                    │
// ├───────────────┼───────────────────────────────────────────────────┤
// │ Command Flags │                  Command Code                     │
// ├───────────────┴───────────────────────────────────────────────────┤
// │               Application-ID (current) / Vendor-ID (legacy)       │
// ├───────────────────────────────────────────────────────────────────┤
// │                      Hop-by-Hop Identifier                        │
// ├───────────────────────────────────────────────────────────────────┤
// │                      End-to-End Identifier                        │
// └───────────────────────────────────────────────────────────────────┘
//
// Version 决定第 8 字节起的字段语义以及 Command 名称表的来源
// 未知 Version 按照当前模式解析
func ParseHeader(dict *dictionary.Dictionary, b []byte) (*Header, error) {
	if len(b) < HeaderLength {
		return nil, ErrShortHeader
	}
	if dict == nil {
		dict = dictionary.Empty()
	}

	h := &Header{
		Version:     b[0],
		Length:      readUint24(b[1:4]),
		Flags:       Flags(b[4]),
		CommandCode: readUint24(b[5:8]),
		HopByHopID:  binary.BigEndian.Uint32(b[12:16]),
		EndToEndID:  binary.BigEndian.Uint32(b[16:20]),
	}
	word := binary.BigEndian.Uint32(b[8:12])

	switch h.Version {
	case VersionLegacy:
		h.Mode = dictionary.ModeLegacy
	case VersionCurrent:
		h.Mode = dictionary.ModeCurrent
	default:
		h.Mode = dictionary.ModeCurrent
		h.diag(dictionary.DiagMalformed, fieldVersion, "unsupported version %d, decoded as current mode", h.Version)
	}

	if r := h.Flags.Reserved(); r != 0 {
		h.diag(dictionary.DiagMalformed, fieldFlags, "reserved bits 0x%x set", r)
	}

	switch {
	case h.Length < HeaderLength:
		h.diag(dictionary.DiagStructural, fieldLength, "declared length %d shorter than header", h.Length)
	case int(h.Length) != len(b):
		h.diag(dictionary.DiagLength, fieldLength, "declared length %d, buffer holds %d bytes", h.Length, len(b))
	}

	var cmd string
	var ok bool
	if h.Mode == dictionary.ModeLegacy {
		h.VendorID = word
		h.Vendor, ok = dict.Vendor(word)
		if !ok {
			h.Vendor = dict.VendorOrUnknown(word)
			h.diag(dictionary.DiagIdentity, fieldVendorID, "unknown vendor %d", word)
		}
		cmd, ok = h.Vendor.CommandName(h.CommandCode)
	} else {
		h.ApplicationID = word
		h.ApplicationName, ok = dict.Application(word)
		if !ok {
			h.diag(dictionary.DiagIdentity, fieldApplicationID, "unknown application %d", word)
		}
		cmd, ok = dict.CommandName(h.CommandCode)
	}

	if !ok {
		h.diag(dictionary.DiagIdentity, fieldCommandCode, "unknown command %d", h.CommandCode)
	}
	h.CommandName = cmd
	return h, nil
}
