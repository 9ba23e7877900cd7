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
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"os"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
	"github.com/pkg/errors"

	"github.com/packetd/diamscope/common/socket"
)

func newError(format string, args ...any) error {
	format = "sniffer: " + format
	return errors.Errorf(format, args...)
}

// OnL4Packet 触发 L4Packet 的解析回调
type OnL4Packet func(pkt socket.L4Packet)

// ParseTCPPacket 将 IP 层以及 TCP 层转换为 socket.TCPSegment
//
// 缺少 IP 层或者 TCP 层时返回 nil
func ParseTCPPacket(ts time.Time, lyrs ...gopacket.Layer) *socket.TCPSegment {
	var srcIP, dstIP socket.IPV
	var hasIP bool
	var tcp *layers.TCP

	for _, layer := range lyrs {
		switch lyr := layer.(type) {
		case *layers.IPv4:
			srcIP = socket.ToIPV4(lyr.SrcIP)
			dstIP = socket.ToIPV4(lyr.DstIP)
			hasIP = true

		case *layers.IPv6:
			srcIP = socket.ToIPV6(lyr.SrcIP)
			dstIP = socket.ToIPV6(lyr.DstIP)
			hasIP = true

		case *layers.TCP:
			tcp = lyr
		}
	}

	if !hasIP || tcp == nil {
		return nil
	}
	return &socket.TCPSegment{
		Time:    ts,
		Seq:     tcp.Seq,
		FIN:     tcp.FIN,
		Payload: tcp.Payload,
		Tuple: socket.Tuple{
			SrcIP:   srcIP,
			SrcPort: socket.Port(tcp.SrcPort),
			DstIP:   dstIP,
			DstPort: socket.Port(tcp.DstPort),
		},
	}
}

// DecodeIPLayer 从链路层数据中解析 IP 层
//
// 返回 IP 层 Payload 以及所处 Layer 非 TCP 的数据包返回 nil Layer
func DecodeIPLayer(linkType layers.LinkType, b []byte, ipv4Only bool) ([]byte, gopacket.Layer, error) {
	content, err := decodeLinkLayer(linkType, b)
	if err != nil {
		return nil, nil, err
	}
	if len(content) == 0 {
		return nil, nil, nil
	}

	switch content[0] >> 4 {
	case 4:
		var ipv4 layers.IPv4
		if err := ipv4.DecodeFromBytes(content, gopacket.NilDecodeFeedback); err != nil {
			return nil, nil, err
		}
		if ipv4.Protocol != layers.IPProtocolTCP {
			return nil, nil, nil
		}
		return ipv4.Payload, &ipv4, nil

	case 6:
		if ipv4Only {
			return nil, nil, nil
		}
		var ipv6 layers.IPv6
		if err := ipv6.DecodeFromBytes(content, gopacket.NilDecodeFeedback); err != nil {
			return nil, nil, err
		}
		if ipv6.NextHeader != layers.IPProtocolTCP {
			return nil, nil, nil
		}
		return ipv6.Payload, &ipv6, nil
	}
	return nil, nil, nil
}

// decodeLinkLayer 剥离链路层 返回 IP 层数据
func decodeLinkLayer(linkType layers.LinkType, b []byte) ([]byte, error) {
	switch linkType {
	case layers.LinkTypeEthernet:
		var ether layers.Ethernet
		if err := ether.DecodeFromBytes(b, gopacket.NilDecodeFeedback); err != nil {
			return nil, err
		}
		switch ether.EthernetType {
		case layers.EthernetTypeIPv4, layers.EthernetTypeIPv6:
			return ether.Payload, nil
		case layers.EthernetTypeDot1Q:
			var vlan layers.Dot1Q
			if err := vlan.DecodeFromBytes(ether.Payload, gopacket.NilDecodeFeedback); err != nil {
				return nil, err
			}
			return vlan.Payload, nil
		}
		return nil, nil

	case layers.LinkTypeLinuxSLL:
		var sll layers.LinuxSLL
		if err := sll.DecodeFromBytes(b, gopacket.NilDecodeFeedback); err != nil {
			return nil, err
		}
		return sll.Payload, nil

	case layers.LinkTypeNull, layers.LinkTypeLoop:
		var lb layers.Loopback
		if err := lb.DecodeFromBytes(b, gopacket.NilDecodeFeedback); err != nil {
			return nil, err
		}
		return lb.Payload, nil

	case layers.LinkTypeRaw, layers.LinkTypeIPv4, layers.LinkTypeIPv6:
		return b, nil
	}
	return nil, newError("unsupported link type (%s)", linkType)
}

// Stats 回放统计
type Stats struct {
	Packets  int
	Segments int
	Ignored  int
	Errors   int
}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// pcapngMagic pcapng Section Header Block 类型
const pcapngMagic = 0x0A0D0D0A

func newPacketReader(r io.Reader) (packetReader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, newError("read file magic: %v", err)
	}

	if binary.BigEndian.Uint32(magic) == pcapngMagic {
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(br)
}

// Replay 按顺序回放 pcap/pcapng 数据 每个 TCP 数据包触发一次 f
//
// 单个数据包的解析错误仅计入 Stats.Errors 不会中断回放
func Replay(ctx context.Context, r io.Reader, ipv4Only bool, f OnL4Packet) (Stats, error) {
	var stats Stats
	pr, err := newPacketReader(r)
	if err != nil {
		return stats, err
	}
	linkType := pr.LinkType()

	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		data, ci, err := pr.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, newError("read packet: %v", err)
		}
		stats.Packets++

		payload, lyr, err := DecodeIPLayer(linkType, data, ipv4Only)
		if err != nil {
			stats.Errors++
			continue
		}
		if lyr == nil {
			stats.Ignored++
			continue
		}

		var tcp layers.TCP
		if err := tcp.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
			stats.Errors++
			continue
		}

		seg := ParseTCPPacket(ci.Timestamp, lyr, &tcp)
		if seg == nil {
			stats.Ignored++
			continue
		}
		stats.Segments++
		if f != nil {
			f(seg)
		}
	}
}

// ReplayFile 回放指定的抓包文件
func ReplayFile(ctx context.Context, path string, ipv4Only bool, f OnL4Packet) (Stats, error) {
	file, err := os.Open(path)
	if err != nil {
		return Stats{}, errors.Wrapf(err, "sniffer: open %s", path)
	}
	defer file.Close()

	return Replay(ctx, file, ipv4Only, f)
}
