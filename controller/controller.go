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
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/packetd/diamscope/common"
	"github.com/packetd/diamscope/common/socket"
	"github.com/packetd/diamscope/confengine"
	"github.com/packetd/diamscope/connstream"
	"github.com/packetd/diamscope/internal/json"
	"github.com/packetd/diamscope/logger"
	"github.com/packetd/diamscope/protocol"
	"github.com/packetd/diamscope/sniffer"

	_ "github.com/packetd/diamscope/protocol/pdiameter" // register diameter connpool
)

// Handler 处理配对完成的 RoundTrip 会被多个协程并发调用
type Handler func(rt socket.RoundTrip)

// NewJSONHandler 返回将 RoundTrip 按行写入 w 的 Handler
func NewJSONHandler(w io.Writer) Handler {
	var mut sync.Mutex
	return func(rt socket.RoundTrip) {
		b, err := socket.JSONMarshalRoundTrip(rt)
		if err != nil {
			logger.Warnf("failed to marshal %s roundtrip: %v", rt.Proto(), err)
			return
		}

		mut.Lock()
		defer mut.Unlock()
		w.Write(append(b, '\n'))
	}
}

// Summary 单次回放的统计结果
type Summary struct {
	Sniffer    sniffer.Stats
	RoundTrips int
	Conns      map[socket.L7Proto]int
	Streams    []connstream.TupleStats `json:"-"`
}

func (s Summary) String() string {
	b, _ := json.Marshal(s)
	return string(b)
}

type Controller struct {
	cfg     Config
	snifCfg sniffer.Config
	pps     *portPools
}

func setupLogger(conf *confengine.Config) error {
	var opts logger.Options
	if err := conf.UnpackChildIfExist("logger", &opts); err != nil {
		return err
	}

	logger.SetOptions(opts)
	return nil
}

func defaultSnifferConfig() sniffer.Config {
	return sniffer.Config{
		Protocols: sniffer.Protocols{
			Rules: []sniffer.ProtoRule{
				{
					Name:     "diameter",
					Protocol: string(socket.L7ProtoDiameter),
					Ports:    []uint16{common.DiameterPort, common.DiameterTLSPort},
				},
			},
		},
	}
}

// New 根据配置创建 Controller
//
// sniffer 未配置协议规则时默认在 3868/5868 端口上解析 Diameter
func New(conf *confengine.Config) (*Controller, error) {
	if err := setupLogger(conf); err != nil {
		return nil, err
	}

	var snifCfg sniffer.Config
	if err := conf.UnpackChildIfExist("sniffer", &snifCfg); err != nil {
		return nil, err
	}
	if len(snifCfg.Protocols.Rules) == 0 {
		snifCfg.Protocols = defaultSnifferConfig().Protocols
	}
	if err := snifCfg.Protocols.Validate(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := conf.UnpackChildIfExist("controller", &cfg); err != nil {
		return nil, err
	}

	pps, err := newPortPools(snifCfg.Protocols.L7Ports(), cfg.Decoder)
	if err != nil {
		return nil, err
	}

	return &Controller{
		cfg:     cfg,
		snifCfg: snifCfg,
		pps:     pps,
	}, nil
}

func (c *Controller) onL4Packet(pkt socket.L4Packet, ch chan<- socket.RoundTrip) {
	st := pkt.SocketTuple()
	port, proto, pool := c.pps.DecideProto(st)
	if pool == nil {
		handledPackets.WithLabelValues("", "unmatched").Inc()
		return
	}

	conn := pool.GetOrCreate(st, port)
	err := conn.OnL4Packet(pkt, ch)
	switch {
	case err == nil:
		handledPackets.WithLabelValues(string(proto), "ok").Inc()
	case errors.Is(err, protocol.ErrConnClosed):
		handledPackets.WithLabelValues(string(proto), "closed").Inc()
		pool.Delete(st)
	default:
		handledPackets.WithLabelValues(string(proto), "error").Inc()
		logger.Debugf("failed to handle %s packet: %v", st, err)
	}
}

// Replay 回放 r 中的抓包数据 配对完成的 RoundTrip 交由 h 处理
//
// 回放结束后所有连接都会被释放 未配对的请求随之丢弃
func (c *Controller) Replay(ctx context.Context, r io.Reader, h Handler) (Summary, error) {
	roundtrips := make(chan socket.RoundTrip, common.Concurrency())

	var mut sync.Mutex
	var summary Summary
	var wg sync.WaitGroup
	for i := 0; i < c.cfg.GetWorkers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rt := range roundtrips {
				handledRoundtrips.WithLabelValues(string(rt.Proto())).Inc()
				if h != nil {
					h(rt)
				}
				mut.Lock()
				summary.RoundTrips++
				mut.Unlock()
			}
		}()
	}

	var lastSweep time.Time
	stats, err := sniffer.Replay(ctx, r, c.snifCfg.IPv4Only, func(pkt socket.L4Packet) {
		if c.cfg.ConnExpired > 0 {
			now := pkt.ArrivedTime()
			if lastSweep.IsZero() {
				lastSweep = now
			}
			if now.Sub(lastSweep) >= c.cfg.ConnExpired {
				expiredConns.Add(float64(c.pps.RemoveExpired(now, c.cfg.ConnExpired)))
				lastSweep = now
			}
		}
		c.onL4Packet(pkt, roundtrips)
	})
	close(roundtrips)
	wg.Wait()

	replayedPackets.WithLabelValues("segment").Add(float64(stats.Segments))
	replayedPackets.WithLabelValues("ignored").Add(float64(stats.Ignored))
	replayedPackets.WithLabelValues("error").Add(float64(stats.Errors))

	summary.Sniffer = stats
	summary.Conns = c.pps.ActivePoolConns()
	c.pps.RangePoolStats(func(ts connstream.TupleStats) {
		summary.Streams = append(summary.Streams, ts)
	})
	c.pps.Clean()

	logger.Infof("replay finished: %s", summary)
	return summary, err
}

// ReplayFile 回放 sniffer.file 指定的抓包文件
func (c *Controller) ReplayFile(ctx context.Context, h Handler) (Summary, error) {
	if c.snifCfg.File == "" {
		return Summary{}, errors.New("sniffer.file not specified")
	}

	f, err := os.Open(c.snifCfg.File)
	if err != nil {
		return Summary{}, errors.Wrap(err, "open capture file")
	}
	defer f.Close()

	return c.Replay(ctx, f, h)
}
