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
	"github.com/packetd/diamscope/internal/rescue"
	"github.com/packetd/diamscope/protocol/pdiameter/dictionary"
)

// SubDissector 对 AVP 的原始字节做进一步解析的扩展
//
// 在 AVP 自身的类型解码完成之后调用 返回值写入 AVP.Dissected
type SubDissector interface {
	Dissect(avp *AVP) (any, error)
}

// SubDissectorFunc 函数形式的 SubDissector
type SubDissectorFunc func(avp *AVP) (any, error)

func (f SubDissectorFunc) Dissect(avp *AVP) (any, error) {
	return f(avp)
}

// SubDissectors 子解析器注册表
//
// 优先按 (vendor, code) 精确匹配 其次按字典中的 ProtoOverride 名称匹配
// 注册需要在解码开始前完成 解码阶段只读
type SubDissectors struct {
	byKey  map[dictionary.AttributeKey]SubDissector
	byName map[string]SubDissector
}

func NewSubDissectors() *SubDissectors {
	return &SubDissectors{
		byKey:  make(map[dictionary.AttributeKey]SubDissector),
		byName: make(map[string]SubDissector),
	}
}

// Register 注册 (vendor, code) 对应的子解析器
func (s *SubDissectors) Register(vendor, code uint32, d SubDissector) {
	s.byKey[dictionary.AttributeKey{Code: code, Vendor: vendor}] = d
}

// RegisterName 注册名称对应的子解析器 名称与 AttributeDescriptor.SubDissector 对应
func (s *SubDissectors) RegisterName(name string, d SubDissector) {
	s.byName[name] = d
}

// Len 返回已注册的子解析器数量
func (s *SubDissectors) Len() int {
	return len(s.byKey) + len(s.byName)
}

func (s *SubDissectors) lookup(avp *AVP) (SubDissector, bool) {
	if d, ok := s.byKey[dictionary.AttributeKey{Code: avp.Code, Vendor: avp.VendorID}]; ok {
		return d, true
	}
	if avp.Descriptor == nil || avp.Descriptor.SubDissector == "" {
		return nil, false
	}
	d, ok := s.byName[avp.Descriptor.SubDissector]
	return d, ok
}

// dispatch 调用子解析器
//
// 子解析器的错误以及 panic 均转换为该 AVP 上的 Diagnostic
func (s *SubDissectors) dispatch(avp *AVP) {
	d, ok := s.lookup(avp)
	if !ok {
		return
	}

	var out any
	err := rescue.Call("diameter/subdissector", func() error {
		var err error
		out, err = d.Dissect(avp)
		return err
	})
	if err != nil {
		avp.diag(dictionary.DiagSubDissector, "%v", err)
		return
	}
	avp.Dissected = out
}
