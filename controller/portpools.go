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
	"time"

	"github.com/packetd/diamscope/common/socket"
	"github.com/packetd/diamscope/connstream"
	"github.com/packetd/diamscope/protocol"
)

// portPools 记录了端口与协议池的映射关系
type portPools struct {
	ports map[socket.Port]socket.L7Proto
	pools map[socket.L7Proto]protocol.ConnPool
}

func newPortPools(l7ports []socket.L7Ports, decoders DecoderConfig) (*portPools, error) {
	ports := make(map[socket.Port]socket.L7Proto)
	pools := make(map[socket.L7Proto]protocol.ConnPool)

	for _, pp := range l7ports {
		for _, port := range pp.Ports {
			ports[port] = pp.Proto
			if _, ok := pools[pp.Proto]; ok {
				continue
			}

			f, err := protocol.Get(pp.Proto)
			if err != nil {
				return nil, err
			}
			pool, err := f(decoders.Get(pp.Proto))
			if err != nil {
				return nil, err
			}
			pools[pp.Proto] = pool
		}
	}

	return &portPools{
		ports: ports,
		pools: pools,
	}, nil
}

// DecideProto 根据端口决定数据包所属的协议池 返回服务端端口
func (pps *portPools) DecideProto(st socket.Tuple) (socket.Port, socket.L7Proto, protocol.ConnPool) {
	if p, ok := pps.ports[st.SrcPort]; ok {
		return st.SrcPort, p, pps.pools[p]
	}
	if p, ok := pps.ports[st.DstPort]; ok {
		return st.DstPort, p, pps.pools[p]
	}
	return 0, "", nil
}

func (pps *portPools) RangePoolStats(f func(stats connstream.TupleStats)) {
	for _, pool := range pps.pools {
		pool.OnStats(f)
	}
}

func (pps *portPools) ActivePoolConns() map[socket.L7Proto]int {
	count := make(map[socket.L7Proto]int)
	for proto, pool := range pps.pools {
		count[proto] = pool.ActiveConns()
	}
	return count
}

// RemoveExpired 清理所有协议池中的过期连接 返回清理数量
func (pps *portPools) RemoveExpired(now time.Time, duration time.Duration) int {
	var n int
	for _, pool := range pps.pools {
		n += pool.RemoveExpired(now, duration)
	}
	return n
}

// Clean 释放所有协议池中的连接
func (pps *portPools) Clean() {
	for _, pool := range pps.pools {
		pool.Clean()
	}
}
