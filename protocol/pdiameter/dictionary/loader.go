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
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/packetd/diamscope/logger"
)

func newError(format string, args ...any) error {
	format = "diameter/dictionary: " + format
	return errors.Errorf(format, args...)
}

// Load 根据 Document 构建 Dictionary
//
// 加载顺序为 Types -> Vendors -> Commands -> Applications -> Attributes
// 任何非法条目均会被单独记录并跳过 加载过程本身不会整体失败
//
// 返回的 error 为所有被跳过条目的聚合（*multierror.Error）此时 Dictionary 依旧可用
func Load(doc *Document) (*Dictionary, error) {
	d := newDictionary()
	if doc == nil {
		return d, nil
	}

	l := &loader{d: d}
	l.loadTypes(doc.Types)
	l.loadVendors(doc.Vendors)
	l.loadCommands(doc.Commands)
	l.loadApplications(doc.Applications)
	l.loadAttributes(doc.Attributes, doc.ProtoOverrides)

	stats := d.Stats()
	logger.Debugf("dictionary loaded: vendors=%d, applications=%d, commands=%d, attributes=%d, types=%d",
		stats.Vendors, stats.Applications, stats.Commands, stats.Attributes, stats.Types)
	return d, l.errs.ErrorOrNil()
}

type loader struct {
	d    *Dictionary
	errs *multierror.Error
}

func (l *loader) reject(format string, args ...any) {
	err := newError(format, args...)
	logger.Warnf("skip dictionary entry: %v", err)
	l.errs = multierror.Append(l.errs, err)
}

// loadTypes 构建类型别名表 以基础类型为种子
//
// 父类型未知时静默回退为 OctetString
func (l *loader) loadTypes(entries []TypeEntry) {
	for _, entry := range entries {
		if entry.Name == "" {
			l.reject("type alias (parent=%q) missing name", entry.Parent)
			continue
		}
		if _, ok := l.d.types[entry.Name]; ok {
			continue
		}

		parent, ok := l.d.types[entry.Parent]
		if !ok {
			logger.Debugf("type %s has unknown parent %q, fallback to OctetString", entry.Name, entry.Parent)
			parent = OctetString()
		}
		l.d.types[entry.Name] = NewAlias(entry.Name, parent)
	}
}

// loadVendors 注册 Vendor 重名或重复 code 时先到先得
func (l *loader) loadVendors(entries []VendorEntry) {
	for _, entry := range entries {
		if entry.Name == "" {
			l.reject("vendor (code=%d) missing name", entry.Code)
			continue
		}
		if _, ok := l.d.vendorsByName[entry.Name]; ok {
			continue
		}
		if _, ok := l.d.vendors[entry.Code]; ok {
			logger.Debugf("vendor %s duplicates code %d, ignored", entry.Name, entry.Code)
			continue
		}

		v := newVendor(entry.Code, entry.Name)
		l.d.vendors[v.Code] = v
		l.d.vendorsByName[v.Name] = v
	}
}

func (l *loader) vendorByName(name string) (*Vendor, bool) {
	if name == "" {
		return l.d.vendors[VendorNone], true
	}
	return l.d.VendorByName(name)
}

// loadCommands 注册 Command
//
// Command 必须引用已知的 Vendor 否则丢弃
// 同时写入全局表（当前模式）以及 Vendor 表（旧模式）
func (l *loader) loadCommands(entries []CommandEntry) {
	for _, entry := range entries {
		if entry.Name == "" {
			l.reject("command (code=%d) missing name", entry.Code)
			continue
		}

		v, ok := l.vendorByName(entry.Vendor)
		if !ok {
			l.reject("command %s references unknown vendor %q", entry.Name, entry.Vendor)
			continue
		}
		l.d.commands.add(entry.Code, entry.Name)
		v.commands.add(entry.Code, entry.Name)
	}
}

func (l *loader) loadApplications(entries []ApplicationEntry) {
	for _, entry := range entries {
		if entry.Name == "" {
			l.reject("application (id=%d) missing name", entry.ID)
			continue
		}
		if _, ok := l.d.applications[entry.ID]; ok {
			continue
		}
		l.d.applications[entry.ID] = entry.Name
	}
}

type overrideKey struct {
	attribute string
	vendor    string
}

func normalizeVendorName(name string) string {
	if name == "" {
		return "None"
	}
	return name
}

// loadAttributes 构建 AVP 描述符
//
// 类型解析时 ProtoOverride 优先于 AVP 声明的类型
// 未知 Vendor 归属到 Unknown 哨兵 仅记录日志不跳过
func (l *loader) loadAttributes(entries []AttributeEntry, overrides []ProtoOverride) {
	ovs := make(map[overrideKey]ProtoOverride, len(overrides))
	for _, ov := range overrides {
		k := overrideKey{attribute: ov.Attribute, vendor: normalizeVendorName(ov.Vendor)}
		if _, ok := ovs[k]; !ok {
			ovs[k] = ov
		}
	}

	for _, entry := range entries {
		if entry.Name == "" {
			l.reject("attribute (code=%d, vendor=%q) missing name", entry.Code, entry.Vendor)
			continue
		}

		v, ok := l.vendorByName(entry.Vendor)
		if !ok {
			logger.Warnf("attribute %s references unknown vendor %q, use Unknown vendor", entry.Name, entry.Vendor)
			v = l.d.vendors[VendorUnknown]
		}

		typeName := entry.Type
		var hint string
		if ov, ok := ovs[overrideKey{attribute: entry.Name, vendor: normalizeVendorName(entry.Vendor)}]; ok {
			hint = ov.Proto
			if ov.Type != "" {
				typeName = ov.Type
			}
		}
		if typeName == "" {
			l.reject("attribute %s missing type", entry.Name)
			continue
		}

		t, ok := l.d.types[typeName]
		if !ok {
			logger.Warnf("attribute %s has unknown type %q, fallback to OctetString", entry.Name, typeName)
			t = OctetString()
		}

		var enums map[int64]string
		if len(entry.Enums) > 0 {
			if !t.Kind().IsIntegral() {
				l.reject("attribute %s: non-integral type %s given an enumeration", entry.Name, t.Name())
				continue
			}
			enums = make(map[int64]string, len(entry.Enums))
			for _, e := range entry.Enums {
				if e.Name == "" {
					continue
				}
				if _, ok := enums[e.Code]; !ok {
					enums[e.Code] = e.Name
				}
			}
		}

		desc := t.Build(entry.Code, v, entry.Name, enums)
		desc.SubDissector = hint

		key := desc.Key()
		if _, ok := l.d.attributes[key]; ok {
			logger.Debugf("attribute %s duplicates (code=%d, vendor=%d), ignored", entry.Name, key.Code, key.Vendor)
			continue
		}
		l.d.attributes[key] = desc
		if _, ok := l.d.byName[desc.Name]; !ok {
			l.d.byName[desc.Name] = desc
		}
		v.attributes.add(desc.Code, desc.Name)
	}
}
