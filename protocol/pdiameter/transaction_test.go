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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTxHeader(request bool, hopByHop, endToEnd uint32) *Header {
	h := &Header{CommandCode: 272, HopByHopID: hopByHop, EndToEndID: endToEnd}
	if request {
		h.Flags = FlagRequest
	}
	return h
}

func TestConversationMatch(t *testing.T) {
	c := NewConversation(Config{})
	t0 := time.Unix(1700000000, 0)

	req := c.Process(testTxHeader(true, 0xAA, 0x01), 5, t0)
	require.NotNil(t, req)
	assert.False(t, req.Answered())

	// End-to-End ID 不一致
	assert.Nil(t, c.Process(testTxHeader(false, 0xAA, 0x02), 7, t0.Add(time.Millisecond)))
	assert.False(t, req.Answered())

	ans := c.Process(testTxHeader(false, 0xAA, 0x01), 9, t0.Add(5*time.Millisecond))
	require.Same(t, req, ans)
	assert.Equal(t, uint64(9), ans.AnswerFrame)
	assert.Equal(t, 5*time.Millisecond, ans.Latency())
	assert.Empty(t, c.Pending())
}

func TestConversationAnswerBeforeRequest(t *testing.T) {
	c := NewConversation(Config{})
	assert.Nil(t, c.Process(testTxHeader(false, 1, 1), 1, time.Now()))

	c.Process(testTxHeader(true, 1, 1), 5, time.Now())
	assert.Nil(t, c.Process(testTxHeader(false, 1, 1), 3, time.Now()))
}

func TestConversationReusedHopByHop(t *testing.T) {
	c := NewConversation(Config{})
	t0 := time.Unix(1700000000, 0)

	first := c.Process(testTxHeader(true, 0xAA, 1), 1, t0)
	c.Process(testTxHeader(false, 0xAA, 1), 2, t0)
	second := c.Process(testTxHeader(true, 0xAA, 2), 3, t0)

	ans := c.Process(testTxHeader(false, 0xAA, 2), 4, t0)
	require.Same(t, second, ans)
	assert.Equal(t, uint64(2), first.AnswerFrame)
	assert.Equal(t, uint64(4), second.AnswerFrame)

	// 最近的请求 End-to-End ID 不一致时不会回退到更早的请求
	assert.Nil(t, c.Process(testTxHeader(false, 0xAA, 1), 5, t0))
}

func TestConversationIdempotent(t *testing.T) {
	c := NewConversation(Config{})
	t0 := time.Unix(1700000000, 0)

	req := c.Process(testTxHeader(true, 7, 7), 1, t0)
	ans := c.Process(testTxHeader(false, 7, 7), 2, t0.Add(time.Second))

	// 重复分析相同的帧 结果保持一致
	assert.Same(t, req, c.Process(testTxHeader(true, 7, 7), 1, t0))
	assert.Same(t, ans, c.Process(testTxHeader(false, 7, 7), 2, t0.Add(time.Second)))
	assert.Equal(t, 1, c.Len())
	assert.False(t, req.DuplicateAnswer)
	assert.Equal(t, time.Second, req.Latency())
}

func TestConversationDuplicateAnswer(t *testing.T) {
	c := NewConversation(Config{})
	t0 := time.Unix(1700000000, 0)

	req := c.Process(testTxHeader(true, 7, 7), 1, t0)
	c.Process(testTxHeader(false, 7, 7), 2, t0.Add(time.Second))
	dup := c.Process(testTxHeader(false, 7, 7), 3, t0.Add(2*time.Second))

	require.Same(t, req, dup)
	assert.True(t, req.DuplicateAnswer)
	assert.Equal(t, uint64(2), req.AnswerFrame)
	assert.Equal(t, time.Second, req.Latency())
}

func TestConversationMaxAnswerDistance(t *testing.T) {
	tests := []struct {
		name     string
		distance uint64
		matched  bool
	}{
		{name: "unbounded", distance: 0, matched: true},
		{name: "within window", distance: 100, matched: true},
		{name: "beyond window", distance: 10, matched: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConversation(Config{MaxAnswerDistance: tt.distance})
			c.Process(testTxHeader(true, 1, 1), 1, time.Now())
			tx := c.Process(testTxHeader(false, 1, 1), 50, time.Now())
			assert.Equal(t, tt.matched, tx != nil)
		})
	}
}

func TestConversationEviction(t *testing.T) {
	c := NewConversation(Config{MaxTransactions: 2})

	var evicted []uint64
	c.OnEvict(func(tx *Transaction) {
		evicted = append(evicted, tx.RequestFrame)
	})

	c.Process(testTxHeader(true, 1, 1), 1, time.Now())
	c.Process(testTxHeader(true, 2, 2), 2, time.Now())
	c.Process(testTxHeader(true, 3, 3), 3, time.Now())

	assert.Equal(t, []uint64{1}, evicted)
	assert.Equal(t, 2, c.Len())
	assert.Nil(t, c.Process(testTxHeader(false, 1, 1), 4, time.Now()))
	assert.NotNil(t, c.Process(testTxHeader(false, 2, 2), 5, time.Now()))

	var frames []uint64
	for _, tx := range c.Transactions() {
		frames = append(frames, tx.RequestFrame)
	}
	assert.Equal(t, []uint64{2, 3}, frames)
}

func TestConversationPendingAndReset(t *testing.T) {
	c := NewConversation(Config{})
	assert.NotEmpty(t, c.ID)

	c.Process(testTxHeader(true, 1, 1), 1, time.Now())
	c.Process(testTxHeader(true, 2, 2), 2, time.Now())
	c.Process(testTxHeader(false, 1, 1), 3, time.Now())

	pending := c.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, uint32(2), pending[0].HopByHopID)

	c.Reset()
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Pending())
	assert.Nil(t, c.Process(testTxHeader(false, 2, 2), 4, time.Now()))
}
