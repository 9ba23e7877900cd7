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

package role

// Role 消息在一次来回中的角色
type Role string

const (
	Request  Role = "Request"
	Response Role = "Response"
)

// Object 解析器产出的应用层对象
type Object struct {
	Role Role
	Obj  any
}

func NewRequestObject(obj any) *Object {
	return &Object{
		Role: Request,
		Obj:  obj,
	}
}

func NewResponseObject(obj any) *Object {
	return &Object{
		Role: Response,
		Obj:  obj,
	}
}

// Pair 配对成功的请求以及应答
type Pair struct {
	Request  *Object
	Response *Object
}

// Matcher 请求/应答配对器 同一连接上的对象按到达顺序依次传入
type Matcher interface {
	Match(o *Object) *Pair
}

// Resetter Matcher 可选实现 连接释放时调用以清理状态
type Resetter interface {
	Reset()
}
