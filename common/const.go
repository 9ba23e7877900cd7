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

package common

const (
	// App 应用程序名称 同时作为指标的 Namespace
	App = "diamscope"

	// Version 应用程序版本
	Version = "v0.0.1"

	// ReadWriteBlockSize 单次写入解析器的最大字节数
	//
	// TCP Segment 会被切割成若干个不超过该长度的 chunk 依次交给解析器
	// 解析器需要自行处理跨 chunk 的消息拼接
	ReadWriteBlockSize = 4096

	// DiameterPort IANA 分配的 Diameter 端口（TCP/SCTP）
	DiameterPort = 3868

	// DiameterTLSPort Diameter over TLS/DTLS 端口
	DiameterTLSPort = 5868
)
