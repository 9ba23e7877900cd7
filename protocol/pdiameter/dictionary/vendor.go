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
	"sort"
	"sync"
)

const (
	// VendorNone 基础协议（IETF）Vendor
	VendorNone uint32 = 0

	// VendorUnknown 无法解析的 Vendor 哨兵
	VendorUnknown uint32 = 0xFFFFFFFF
)

type codeName struct {
	code uint32
	name string
}

// nameTable code -> name 映射表
//
// 写入时不排序 排序推迟到第一次查找 仅用于渲染名称
// 解码时的身份解析始终使用 (code, vendor) 精确索引
type nameTable struct {
	mut     sync.RWMutex
	entries []codeName
	sorted  bool
}

func (nt *nameTable) add(code uint32, name string) {
	nt.mut.Lock()
	defer nt.mut.Unlock()

	nt.entries = append(nt.entries, codeName{code: code, name: name})
	nt.sorted = false
}

func (nt *nameTable) lookup(code uint32) (string, bool) {
	nt.mut.RLock()
	if nt.sorted {
		defer nt.mut.RUnlock()
		return nt.search(code)
	}
	nt.mut.RUnlock()

	nt.mut.Lock()
	defer nt.mut.Unlock()
	if !nt.sorted {
		// 稳定排序保证重复 code 时先写入者优先
		sort.SliceStable(nt.entries, func(i, j int) bool {
			return nt.entries[i].code < nt.entries[j].code
		})
		nt.sorted = true
	}
	return nt.search(code)
}

func (nt *nameTable) search(code uint32) (string, bool) {
	i := sort.Search(len(nt.entries), func(i int) bool {
		return nt.entries[i].code >= code
	})
	if i < len(nt.entries) && nt.entries[i].code == code {
		return nt.entries[i].name, true
	}
	return "", false
}

func (nt *nameTable) len() int {
	nt.mut.RLock()
	defer nt.mut.RUnlock()
	return len(nt.entries)
}

// Vendor 厂商记录 持有该厂商下的 Command 以及 AVP 名称表
type Vendor struct {
	Code uint32
	Name string

	commands   nameTable
	attributes nameTable
}

func newVendor(code uint32, name string) *Vendor {
	return &Vendor{Code: code, Name: name}
}

// CommandName 返回该厂商下 code 对应的 Command 名称（旧模式使用）
func (v *Vendor) CommandName(code uint32) (string, bool) {
	return v.commands.lookup(code)
}

// AttributeName 返回该厂商下 code 对应的 AVP 名称
func (v *Vendor) AttributeName(code uint32) (string, bool) {
	return v.attributes.lookup(code)
}

// Commands 返回 Command 数量
func (v *Vendor) Commands() int {
	return v.commands.len()
}

// Attributes 返回 AVP 数量
func (v *Vendor) Attributes() int {
	return v.attributes.len()
}
