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

package json

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	type obj struct {
		Name string `json:"name"`
		Code uint32 `json:"code"`
	}

	b, err := Marshal(obj{Name: "Origin-Host", Code: 264})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Origin-Host","code":264}`, string(b))
	assert.True(t, Valid(b))

	var o obj
	require.NoError(t, Unmarshal(b, &o))
	assert.Equal(t, uint32(264), o.Code)

	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(o))
	assert.Equal(t, string(b)+"\n", buf.String())
}
