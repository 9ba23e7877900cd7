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

package socket

import (
	"fmt"
	"net"
)

const (
	// MaxIPPacketSize IP 数据包理论最大长度
	MaxIPPacketSize = 65535

	// MaxIPV4PacketSize 常见 MTU 下的 IPv4 数据包长度
	MaxIPV4PacketSize = 1500
)

// Version IP 版本
type Version uint8

const (
	V4 Version = iota
	V6
)

// IPV 定长的 IP 表示 可以直接作为 map key 使用
type IPV struct {
	IP      [net.IPv6len]byte
	Version Version
}

// ToIPV4 将 net.IP 转换为 IPV4 版本
func ToIPV4(ip net.IP) IPV {
	var dst [net.IPv6len]byte
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	copy(dst[:], ip)
	return IPV{IP: dst, Version: V4}
}

// ToIPV6 将 net.IP 转换为 IPV6 版本
func ToIPV6(ip net.IP) IPV {
	var dst [net.IPv6len]byte
	copy(dst[:], ip.To16())
	return IPV{IP: dst, Version: V6}
}

// NetIP 将 IPV 转换为 net.IP
func (ipv IPV) NetIP() net.IP {
	if ipv.Version == V4 {
		return ipv.IP[:net.IPv4len]
	}
	return ipv.IP[:]
}

func (ipv IPV) String() string {
	return ipv.NetIP().String()
}

type Port uint16

// Tuple 四元组标识
//
// Tuple 是有方向的 同一条连接的两个方向互为 Mirror
type Tuple struct {
	SrcIP   IPV
	DstIP   IPV
	SrcPort Port
	DstPort Port
}

func (t Tuple) ToRaw() TupleRaw {
	return TupleRaw{
		SrcIP:   t.SrcIP.String(),
		DstIP:   t.DstIP.String(),
		SrcPort: uint16(t.SrcPort),
		DstPort: uint16(t.DstPort),
	}
}

func (t Tuple) String() string {
	return fmt.Sprintf("%s:%d > %s:%d", t.SrcIP, t.SrcPort, t.DstIP, t.DstPort)
}

// Mirror 返回连接的另一个方向
func (t Tuple) Mirror() Tuple {
	return Tuple{
		SrcIP:   t.DstIP,
		DstIP:   t.SrcIP,
		SrcPort: t.DstPort,
		DstPort: t.SrcPort,
	}
}

// TupleRaw 可读形式的四元组 用于输出
type TupleRaw struct {
	SrcIP   string
	DstIP   string
	SrcPort uint16
	DstPort uint16
}

func (t TupleRaw) String() string {
	return fmt.Sprintf("%s:%d > %s:%d", t.SrcIP, t.SrcPort, t.DstIP, t.DstPort)
}

// L4Proto 传输层协议
type L4Proto string

const (
	L4ProtoTCP L4Proto = "tcp"
)

// L7Proto 应用层协议
type L7Proto string

const (
	L7ProtoDiameter L7Proto = "diameter"
)

// L7ProtoBased 返回应用层协议所基于的传输层协议
func L7ProtoBased(l7 L7Proto) (L4Proto, bool) {
	switch l7 {
	case L7ProtoDiameter:
		return L4ProtoTCP, true
	}
	return "", false
}

// L7Ports 应用层协议及其监听端口
type L7Ports struct {
	Proto L7Proto
	Ports []Port
}
