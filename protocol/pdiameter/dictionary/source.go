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

package dictionary

import (
	"os"

	"github.com/pkg/errors"

	"github.com/packetd/diamscope/internal/json"
)

// ParseDocument 从 JSON 内容中解析 Document
func ParseDocument(b []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, errors.Wrap(err, "diameter/dictionary: unmarshal document")
	}
	return &doc, nil
}

// LoadFile 从 JSON 文件中加载字典
//
// 文件无法读取或者内容非法时返回 nil Dictionary
// 条目级别的错误与 Load 一致 此时返回可用的部分字典以及聚合错误
func LoadFile(path string) (*Dictionary, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "diameter/dictionary: read %s", path)
	}

	doc, err := ParseDocument(b)
	if err != nil {
		return nil, err
	}
	return Load(doc)
}
