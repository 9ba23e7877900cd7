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

package connstream

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/packetd/diamscope/common/socket"
)

type tcpStream struct {
	st       socket.Tuple
	nextSeq  uint64 // 已经写入的字节流的下一个序号
	cw       *chunkWriter
	closed   atomic.Bool
	activeAt time.Time
	stats    Stats
}

// NewTCPStream 创建 TCP Stream
func NewTCPStream(st socket.Tuple) Stream {
	return &tcpStream{
		st: st,
		cw: newChunkWriter(),
	}
}

func (s *tcpStream) SocketTuple() socket.Tuple {
	return s.st
}

func (s *tcpStream) ActiveAt() time.Time {
	return s.activeAt
}

func (s *tcpStream) IsClosed() bool {
	return s.closed.Load()
}

func (s *tcpStream) Stats() Stats {
	stats := s.stats
	s.stats = Stats{}
	return stats
}

// Write 按序号写入 TCP Segment
//
// 首个 Segment 直接作为流的起点（抓包可能从连接中途开始）
// 序号落后的重传包直接丢弃 部分重叠的包仅写入新数据
// 收到 FIN 之后 Stream 进入关闭态 但该 Segment 自身携带的数据仍会被处理
func (s *tcpStream) Write(pkt socket.L4Packet, decodeFunc DecodeFunc) error {
	seg, ok := pkt.(*socket.TCPSegment)
	if !ok {
		return ErrSocketNotMatch
	}
	if s.closed.Load() {
		return ErrClosed
	}

	s.activeAt = seg.Time
	s.stats.Packets++
	if seg.FIN {
		s.closed.Store(true)
		defer s.cw.Close()
	}
	if len(seg.Payload) == 0 {
		return nil
	}

	seq := uint64(seg.Seq)
	end := seq + uint64(len(seg.Payload))
	s.stats.Bytes += uint64(len(seg.Payload))

	// 序号回绕
	if end >= math.MaxUint32 {
		s.nextSeq = 0
		end -= math.MaxUint32
	}

	payload := seg.Payload
	switch {
	case s.nextSeq >= end && s.nextSeq != 0:
		s.stats.Skipped++
		return nil
	case s.nextSeq > seq:
		payload = payload[s.nextSeq-seq:]
	}

	s.cw.Write(payload, decodeFunc)
	s.nextSeq = end
	return nil
}
