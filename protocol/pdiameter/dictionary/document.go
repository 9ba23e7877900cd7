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

// Document 已经解析完成的抽象字典文档
//
// 文档格式解析（XML 等）不在此处实现 Document 由外部解析器产出
// 字段携带 json tag 以便直接从 JSON 文件加载
type Document struct {
	Vendors        []VendorEntry      `json:"vendors"`
	Types          []TypeEntry        `json:"types"`
	Commands       []CommandEntry     `json:"commands"`
	Applications   []ApplicationEntry `json:"applications"`
	Attributes     []AttributeEntry   `json:"attributes"`
	ProtoOverrides []ProtoOverride    `json:"protoOverrides"`
}

type VendorEntry struct {
	Name string `json:"name"`
	Code uint32 `json:"code"`
}

// TypeEntry 类型别名 Parent 未知时回退为 OctetString
type TypeEntry struct {
	Name   string `json:"name"`
	Parent string `json:"parent"`
}

// CommandEntry Vendor 为空代表基础协议
type CommandEntry struct {
	Name   string `json:"name"`
	Code   uint32 `json:"code"`
	Vendor string `json:"vendor"`
}

type ApplicationEntry struct {
	Name string `json:"name"`
	ID   uint32 `json:"id"`
}

type EnumEntry struct {
	Name string `json:"name"`
	Code int64  `json:"code"`
}

type AttributeEntry struct {
	Name   string      `json:"name"`
	Code   uint32      `json:"code"`
	Vendor string      `json:"vendor"`
	Type   string      `json:"type"`
	Enums  []EnumEntry `json:"enums"`
}

// ProtoOverride 指定 AVP 的 payload 为内嵌子协议
//
// Proto 为子解析器名称 Type 非空时覆盖 AVP 声明的类型
type ProtoOverride struct {
	Attribute string `json:"attribute"`
	Vendor    string `json:"vendor"`
	Proto     string `json:"proto"`
	Type      string `json:"type"`
}
