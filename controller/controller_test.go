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

package controller

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/diamscope/common/socket"
	"github.com/packetd/diamscope/confengine"
	"github.com/packetd/diamscope/protocol/pdiameter"
)

func encodeAVP(code uint32, payload []byte) []byte {
	n := 8 + len(payload)
	b := make([]byte, n+(4-n%4)%4)
	binary.BigEndian.PutUint32(b[0:4], code)
	binary.BigEndian.PutUint32(b[4:8], uint32(n))
	b[4] = 0x40
	copy(b[8:], payload)
	return b
}

func encodeMessage(request bool, hopByHop, endToEnd uint32, avps ...[]byte) []byte {
	b := make([]byte, 20)
	for _, avp := range avps {
		b = append(b, avp...)
	}
	binary.BigEndian.PutUint32(b[0:4], uint32(len(b)))
	b[0] = 1
	binary.BigEndian.PutUint32(b[4:8], 272)
	if request {
		b[4] = 0x80
	}
	binary.BigEndian.PutUint32(b[8:12], 4)
	binary.BigEndian.PutUint32(b[12:16], hopByHop)
	binary.BigEndian.PutUint32(b[16:20], endToEnd)
	return b
}

func resultCode(code uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, code)
	return encodeAVP(268, b)
}

func serializeTCP(t *testing.T, src, dst string, sport, dport uint16, seq uint32, payload []byte) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 6},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(sport),
		DstPort: layers.TCPPort(dport),
		Seq:     seq,
		ACK:     true,
		PSH:     true,
		Window:  65535,
	}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)))
	return buf.Bytes()
}

// writeCapture 生成一次 CCR/CCA 交互 以及一个非 Diameter 端口的数据包
func writeCapture(t *testing.T) []byte {
	t0 := time.Unix(1700000000, 0)
	packets := [][]byte{
		serializeTCP(t, "10.0.0.1", "10.0.0.2", 40000, 3868, 100,
			encodeMessage(true, 0x11, 0x22, encodeAVP(264, []byte("client.example.com")))),
		serializeTCP(t, "10.0.0.1", "10.0.0.3", 40001, 80, 1, []byte("GET / HTTP/1.1\r\n\r\n")),
		serializeTCP(t, "10.0.0.2", "10.0.0.1", 3868, 40000, 500,
			encodeMessage(false, 0x11, 0x22, encodeAVP(264, []byte("server.example.com")), resultCode(2001))),
	}

	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))
	for i, pkt := range packets {
		ci := gopacket.CaptureInfo{
			Timestamp:     t0.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(pkt),
			Length:        len(pkt),
		}
		require.NoError(t, w.WritePacket(ci, pkt))
	}
	return buf.Bytes()
}

func newTestController(t *testing.T, file string) *Controller {
	content := fmt.Sprintf(`
logger:
  stdout: true
  level: info
sniffer:
  file: %q
controller:
  workers: 2
  decoder:
    diameter:
      maxTransactions: 16
      subDissectors: false
`, file)

	conf, err := confengine.LoadContent([]byte(content))
	require.NoError(t, err)

	c, err := New(conf)
	require.NoError(t, err)
	return c
}

func TestControllerReplay(t *testing.T) {
	c := newTestController(t, "")
	assert.Equal(t, 2, c.cfg.GetWorkers())
	assert.Equal(t, []uint16{3868, 5868}, c.snifCfg.Protocols.Rules[0].Ports)

	var mut sync.Mutex
	var rts []socket.RoundTrip
	summary, err := c.Replay(context.Background(), bytes.NewReader(writeCapture(t)), func(rt socket.RoundTrip) {
		mut.Lock()
		defer mut.Unlock()
		rts = append(rts, rt)
	})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Sniffer.Packets)
	assert.Equal(t, 3, summary.Sniffer.Segments)
	assert.Equal(t, 1, summary.RoundTrips)
	assert.Equal(t, 1, summary.Conns[socket.L7ProtoDiameter])
	assert.Len(t, summary.Streams, 2)
	assert.NotContains(t, summary.String(), "Streams")

	require.Len(t, rts, 1)
	rt := rts[0]
	assert.Equal(t, socket.L7ProtoDiameter, rt.Proto())
	assert.Equal(t, 2*time.Millisecond, rt.Duration())
	assert.Equal(t, uint32(2001), rt.Response().(*pdiameter.Response).ResultCode)
	assert.Equal(t, uint32(0x11), rt.Request().(*pdiameter.Request).Message.Header.HopByHopID)
}

func TestControllerReplayFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.pcap")
	require.NoError(t, os.WriteFile(path, writeCapture(t), 0o644))

	var buf bytes.Buffer
	c := newTestController(t, path)
	summary, err := c.ReplayFile(context.Background(), NewJSONHandler(&buf))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.RoundTrips)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"Proto":"diameter"`)

	_, err = newTestController(t, "").ReplayFile(context.Background(), nil)
	assert.Error(t, err)

	_, err = newTestController(t, filepath.Join(t.TempDir(), "missing.pcap")).ReplayFile(context.Background(), nil)
	assert.Error(t, err)
}

func TestNewInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "UnsupportedProtocol",
			content: `
sniffer:
  protocols:
    rules:
      - name: web
        protocol: http
        ports: [80]
`,
		},
		{
			name: "InvalidOptions",
			content: `
controller:
  decoder:
    diameter:
      maxTransactions: many
`,
		},
		{
			name: "InvalidWorkers",
			content: `
controller:
  workers: two
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf, err := confengine.LoadContent([]byte(tt.content))
			require.NoError(t, err)
			_, err = New(conf)
			assert.Error(t, err)
		})
	}
}

func TestDecoderConfigGet(t *testing.T) {
	cfg := DecoderConfig{Diameter: map[string]any{"maxAnswerDistance": 10}}
	opts := cfg.Get(socket.L7ProtoDiameter)
	v, err := opts.GetUint64("maxAnswerDistance")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), v)

	assert.Empty(t, cfg.Get(socket.L7Proto("http")))
}

func TestControllerConnExpired(t *testing.T) {
	conf, err := confengine.LoadContent([]byte("controller:\n  connExpired: 1ms\n"))
	require.NoError(t, err)
	c, err := New(conf)
	require.NoError(t, err)
	assert.Equal(t, time.Millisecond, c.cfg.ConnExpired)

	summary, err := c.Replay(context.Background(), bytes.NewReader(writeCapture(t)), nil)
	require.NoError(t, err)

	// 请求所在连接在第三个数据包到达时已空闲 2ms 应答无法配对
	assert.Equal(t, 0, summary.RoundTrips)
	assert.Equal(t, 1, summary.Conns[socket.L7ProtoDiameter])
}
