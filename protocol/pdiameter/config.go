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
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/packetd/diamscope/common"
	"github.com/packetd/diamscope/confengine"
	"github.com/packetd/diamscope/logger"
	"github.com/packetd/diamscope/protocol/pdiameter/dictionary"
)

const (
	defaultMaxTransactions = 1024
	defaultMaxMessageSize  = 1 << 20
)

// Config Diameter 解析配置
//
// 通过 confengine 从 diameter 配置段加载 或者由 common.Options 解码
type Config struct {
	// Dictionary JSON 字典文件路径 为空时不使用字典
	Dictionary string `config:"dictionary" mapstructure:"dictionary"`

	// MaxTransactions 单连接保留的最大事务数量 0 代表不限制
	MaxTransactions int `config:"maxTransactions" mapstructure:"maxTransactions"`

	// MaxAnswerDistance 应答与请求之间允许的最大帧距离 0 代表不限制
	MaxAnswerDistance uint64 `config:"maxAnswerDistance" mapstructure:"maxAnswerDistance"`

	// MaxMessageSize 单条消息的最大长度 超过则视为失去同步
	MaxMessageSize int `config:"maxMessageSize" mapstructure:"maxMessageSize"`

	// SubDissectors 是否启用子解析器
	SubDissectors bool `config:"subDissectors" mapstructure:"subDissectors"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxTransactions: defaultMaxTransactions,
		MaxMessageSize:  defaultMaxMessageSize,
		SubDissectors:   true,
	}
}

func (c Config) maxMessageSize() int {
	if c.MaxMessageSize < HeaderLength {
		return defaultMaxMessageSize
	}
	return c.MaxMessageSize
}

// LoadConfig 从 diameter 配置段加载配置 未配置的字段使用默认值
func LoadConfig(conf *confengine.Config) (Config, error) {
	cfg := DefaultConfig()
	if conf == nil {
		return cfg, nil
	}
	if err := conf.UnpackChildIfExist("diameter", &cfg); err != nil {
		return cfg, errors.Wrap(err, "diameter: unpack config")
	}
	return cfg, nil
}

// ConfigFromOptions 从协议参数中解码配置 未指定的字段使用默认值
func ConfigFromOptions(opts common.Options) (Config, error) {
	cfg := DefaultConfig()
	if len(opts) == 0 {
		return cfg, nil
	}
	if err := opts.Decode(&cfg); err != nil {
		return cfg, errors.Wrap(err, "diameter: decode options")
	}
	return cfg, nil
}

// LoadDictionary 加载配置中指定的字典
//
// 字典无法读取时退化为空字典 所有 AVP 按 Unknown-AVP 渲染
// 条目级别的错误仅记录日志 返回部分可用的字典
func (c Config) LoadDictionary() *dictionary.Dictionary {
	if c.Dictionary == "" {
		logger.Warnf("diameter: no dictionary configured, decode without dictionary")
		return dictionary.Empty()
	}

	dict, err := dictionary.LoadFile(c.Dictionary)
	if dict == nil {
		logger.Errorf("diameter: failed to load dictionary, decode without dictionary: %v", err)
		return dictionary.Empty()
	}

	var merr *multierror.Error
	if errors.As(err, &merr) {
		logger.Warnf("diameter: dictionary (%s) loaded with %d entries skipped", c.Dictionary, len(merr.Errors))
	}
	return dict
}
