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

	"github.com/packetd/diamscope/common"
	"github.com/packetd/diamscope/common/socket"
)

type Config struct {
	// Workers RoundTrip 消费协程数量
	Workers int `config:"workers"`

	// ConnExpired 连接空闲超过该时长后被清理 以抓包时间计算 0 代表回放结束前不清理
	ConnExpired time.Duration `config:"connExpired"`

	// Decoder 指定每种 decoder 解析特性
	Decoder DecoderConfig `config:"decoder"`
}

func (c Config) GetWorkers() int {
	if c.Workers <= 0 {
		return common.Concurrency()
	}
	return c.Workers
}

type DecoderConfig struct {
	Diameter map[string]any `config:"diameter"`
}

// Get 返回协议对应的解析参数 未配置时返回空参数
func (c DecoderConfig) Get(proto socket.L7Proto) common.Options {
	opts := common.NewOptions()
	switch proto {
	case socket.L7ProtoDiameter:
		for k, v := range c.Diameter {
			opts.Merge(k, v)
		}
	}
	return opts
}
