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

package protocol

import (
	"time"

	"github.com/packetd/diamscope/internal/zerocopy"
	"github.com/packetd/diamscope/protocol/role"
)

// Decoder 单方向字节流的应用层解析器
type Decoder interface {
	// Decode 解析 r 中的数据 不允许修改读取到的任何字节 如需保留请先拷贝
	//
	// t 为数据包被捕获的时间 一次调用可能产出多个 *role.Object
	Decode(r zerocopy.Reader, t time.Time) ([]*role.Object, error)

	// Free 释放持有的资源
	Free()
}
