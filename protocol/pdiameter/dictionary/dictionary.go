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

// Dictionary 运行时字典
//
// 构建完成后只读 允许多个连接并发解码时共享同一个实例
type Dictionary struct {
	vendors       map[uint32]*Vendor
	vendorsByName map[string]*Vendor
	attributes    map[AttributeKey]*AttributeDescriptor
	byName        map[string]*AttributeDescriptor
	applications  map[uint32]string
	commands      *nameTable
	types         map[string]TypeTag
	unknownAVP    *AttributeDescriptor
}

func newDictionary() *Dictionary {
	none := newVendor(VendorNone, "None")
	unknown := newVendor(VendorUnknown, "Unknown")

	d := &Dictionary{
		vendors: map[uint32]*Vendor{
			VendorNone:    none,
			VendorUnknown: unknown,
		},
		vendorsByName: map[string]*Vendor{
			none.Name:    none,
			unknown.Name: unknown,
		},
		attributes:   make(map[AttributeKey]*AttributeDescriptor),
		byName:       make(map[string]*AttributeDescriptor),
		applications: make(map[uint32]string),
		commands:     &nameTable{},
		types:        BasicTypes(),
	}
	d.unknownAVP = OctetString().Build(0, unknown, "Unknown-AVP", nil)
	return d
}

// Empty 返回不包含任何定义的字典
//
// 当字典资源无法定位时使用 所有 AVP 均按 Unknown-AVP 渲染
func Empty() *Dictionary {
	return newDictionary()
}

// Vendor 根据 code 查找 Vendor
func (d *Dictionary) Vendor(code uint32) (*Vendor, bool) {
	v, ok := d.vendors[code]
	return v, ok
}

// VendorOrUnknown 查找 Vendor 未命中时返回 Unknown 哨兵
func (d *Dictionary) VendorOrUnknown(code uint32) *Vendor {
	if v, ok := d.vendors[code]; ok {
		return v
	}
	return d.vendors[VendorUnknown]
}

// VendorByName 根据名称查找 Vendor
func (d *Dictionary) VendorByName(name string) (*Vendor, bool) {
	v, ok := d.vendorsByName[name]
	return v, ok
}

// LookupAttribute 精确查找 (code, vendor)
func (d *Dictionary) LookupAttribute(code, vendor uint32) (*AttributeDescriptor, bool) {
	desc, ok := d.attributes[AttributeKey{Code: code, Vendor: vendor}]
	return desc, ok
}

// Attribute 查找 (code, vendor) 未命中时返回共享的 Unknown-AVP 描述符 永不返回 nil
func (d *Dictionary) Attribute(code, vendor uint32) *AttributeDescriptor {
	if desc, ok := d.LookupAttribute(code, vendor); ok {
		return desc
	}
	return d.unknownAVP
}

// AttributeByName 根据名称查找 AVP 描述符
func (d *Dictionary) AttributeByName(name string) (*AttributeDescriptor, bool) {
	desc, ok := d.byName[name]
	return desc, ok
}

// UnknownAttribute 返回 Unknown-AVP 描述符
func (d *Dictionary) UnknownAttribute() *AttributeDescriptor {
	return d.unknownAVP
}

// Application 根据 ID 查找 Application 名称
func (d *Dictionary) Application(id uint32) (string, bool) {
	name, ok := d.applications[id]
	return name, ok
}

// CommandName 全局 Command 名称表（当前模式使用）
func (d *Dictionary) CommandName(code uint32) (string, bool) {
	return d.commands.lookup(code)
}

// Type 根据名称查找类型（包含别名）
func (d *Dictionary) Type(name string) (TypeTag, bool) {
	t, ok := d.types[name]
	return t, ok
}

// Stats 字典规模统计
type Stats struct {
	Vendors      int
	Applications int
	Commands     int
	Attributes   int
	Types        int
}

func (d *Dictionary) Stats() Stats {
	return Stats{
		Vendors:      len(d.vendors),
		Applications: len(d.applications),
		Commands:     d.commands.len(),
		Attributes:   len(d.attributes),
		Types:        len(d.types),
	}
}
