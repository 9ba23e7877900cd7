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

package sniffer

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/packetd/diamscope/common/socket"
)

// Config 离线抓包回放配置
type Config struct {
	File      string    `config:"file"`
	IPv4Only  bool      `config:"ipv4Only"`
	Protocols Protocols `config:"protocols"`
}

type ProtoRule struct {
	Name     string   `config:"name"`
	Protocol string   `config:"protocol"`
	Ports    []uint16 `config:"ports"`
}

type Protocols struct {
	Rules []ProtoRule `config:"rules"`
}

// Validate 校验协议规则 所有错误一并返回
func (ps Protocols) Validate() error {
	var errs error
	for _, r := range ps.Rules {
		if _, ok := socket.L7ProtoBased(socket.L7Proto(r.Protocol)); !ok {
			errs = multierror.Append(errs, errors.Errorf("rule (%s): unsupported protocol (%s)", r.Name, r.Protocol))
			continue
		}
		if len(r.Ports) == 0 {
			errs = multierror.Append(errs, errors.Errorf("rule (%s): no ports specified", r.Name))
		}
	}
	return errs
}

// L7Ports 将协议规则转换为端口列表
func (ps Protocols) L7Ports() []socket.L7Ports {
	var ports []socket.L7Ports
	for _, rule := range ps.Rules {
		dst := make([]socket.Port, 0, len(rule.Ports))
		for _, p := range rule.Ports {
			dst = append(dst, socket.Port(p))
		}
		ports = append(ports, socket.L7Ports{
			Proto: socket.L7Proto(rule.Protocol),
			Ports: dst,
		})
	}
	return ports
}
