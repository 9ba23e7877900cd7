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
	"time"

	"github.com/google/btree"
	"github.com/google/uuid"
)

// Transaction 一次请求/应答事务
//
// AnswerFrame 为 0 代表尚未收到应答 帧序号从 1 开始
type Transaction struct {
	HopByHopID   uint32
	EndToEndID   uint32
	CommandCode  uint32
	RequestFrame uint64
	RequestTime  time.Time
	AnswerFrame  uint64    `json:",omitempty"`
	AnswerTime   time.Time `json:",omitempty"`

	// DuplicateAnswer 在首个应答之后又出现了其他匹配的应答帧
	DuplicateAnswer bool `json:",omitempty"`

	// frames 所有关联到该事务的帧序号
	frames []uint64
}

// Answered 是否已经完成配对
func (tx *Transaction) Answered() bool {
	return tx.AnswerFrame != 0
}

// Latency 请求到应答的耗时 未完成配对时为 0
func (tx *Transaction) Latency() time.Duration {
	if !tx.Answered() {
		return 0
	}
	return tx.AnswerTime.Sub(tx.RequestTime)
}

func lessByFrame(a, b *Transaction) bool {
	return a.RequestFrame < b.RequestFrame
}

// btreeDegree 每个节点的分支数 事务数量通常不大 取较小值即可
const btreeDegree = 8

// Conversation 单条连接上的事务索引
//
// Hop-by-Hop ID 在同一连接上可能被复用 因此每个 ID 下的事务按请求帧序号有序存放
// 应答选择帧序号不大于自身的最近一条请求 并且要求 End-to-End ID 一致
//
// Conversation 不是并发安全的 要求同一连接上的帧按序号非递减的顺序处理
type Conversation struct {
	ID string

	maxTransactions   int
	maxAnswerDistance uint64

	slots   map[uint32]*btree.BTreeG[*Transaction]
	byFrame *btree.BTreeG[*Transaction]
	frames  map[uint64]*Transaction
	onEvict func(*Transaction)
}

// NewConversation 创建 Conversation
//
// Config.MaxTransactions 限制保留的事务数量 超限时淘汰最早的请求
// Config.MaxAnswerDistance 限制应答与请求之间的最大帧距离 0 代表不限制
func NewConversation(cfg Config) *Conversation {
	return &Conversation{
		ID:                uuid.NewString(),
		maxTransactions:   cfg.MaxTransactions,
		maxAnswerDistance: cfg.MaxAnswerDistance,
		slots:             make(map[uint32]*btree.BTreeG[*Transaction]),
		byFrame:           btree.NewG(btreeDegree, lessByFrame),
		frames:            make(map[uint64]*Transaction),
	}
}

// OnEvict 设置事务被淘汰时的回调
func (c *Conversation) OnEvict(f func(*Transaction)) {
	c.onEvict = f
}

// Process 处理一帧消息并返回其关联的事务
//
// 请求总是创建新的事务 应答返回配对成功的事务 无法配对时返回 nil
// 对已经处理过的帧重复调用将直接返回之前的结果 保证多次分析的结果一致
func (c *Conversation) Process(h *Header, frame uint64, ts time.Time) *Transaction {
	if tx, ok := c.frames[frame]; ok {
		return tx
	}

	if h.Flags.Request() {
		return c.onRequest(h, frame, ts)
	}
	return c.onAnswer(h, frame, ts)
}

func (c *Conversation) onRequest(h *Header, frame uint64, ts time.Time) *Transaction {
	tx := &Transaction{
		HopByHopID:   h.HopByHopID,
		EndToEndID:   h.EndToEndID,
		CommandCode:  h.CommandCode,
		RequestFrame: frame,
		RequestTime:  ts,
	}

	slot, ok := c.slots[h.HopByHopID]
	if !ok {
		slot = btree.NewG(btreeDegree, lessByFrame)
		c.slots[h.HopByHopID] = slot
	}
	slot.ReplaceOrInsert(tx)
	c.byFrame.ReplaceOrInsert(tx)
	c.track(frame, tx)

	c.evict()
	return tx
}

func (c *Conversation) onAnswer(h *Header, frame uint64, ts time.Time) *Transaction {
	slot, ok := c.slots[h.HopByHopID]
	if !ok {
		return nil
	}

	var tx *Transaction
	slot.DescendLessOrEqual(&Transaction{RequestFrame: frame}, func(item *Transaction) bool {
		tx = item
		return false
	})
	if tx == nil || tx.EndToEndID != h.EndToEndID {
		return nil
	}
	if c.maxAnswerDistance > 0 && frame-tx.RequestFrame > c.maxAnswerDistance {
		return nil
	}

	switch {
	case !tx.Answered():
		tx.AnswerFrame = frame
		tx.AnswerTime = ts
	case tx.AnswerFrame != frame:
		tx.DuplicateAnswer = true
	}
	c.track(frame, tx)
	return tx
}

func (c *Conversation) track(frame uint64, tx *Transaction) {
	c.frames[frame] = tx
	tx.frames = append(tx.frames, frame)
}

func (c *Conversation) evict() {
	if c.maxTransactions <= 0 {
		return
	}

	for c.byFrame.Len() > c.maxTransactions {
		tx, ok := c.byFrame.DeleteMin()
		if !ok {
			return
		}
		c.remove(tx)
	}
}

func (c *Conversation) remove(tx *Transaction) {
	if slot, ok := c.slots[tx.HopByHopID]; ok {
		slot.Delete(tx)
		if slot.Len() == 0 {
			delete(c.slots, tx.HopByHopID)
		}
	}
	for _, frame := range tx.frames {
		delete(c.frames, frame)
	}
	if c.onEvict != nil {
		c.onEvict(tx)
	}
}

// Pending 按请求帧序号返回所有未完成配对的事务
func (c *Conversation) Pending() []*Transaction {
	var pending []*Transaction
	c.byFrame.Ascend(func(tx *Transaction) bool {
		if !tx.Answered() {
			pending = append(pending, tx)
		}
		return true
	})
	return pending
}

// Transactions 按请求帧序号返回所有事务
func (c *Conversation) Transactions() []*Transaction {
	txs := make([]*Transaction, 0, c.byFrame.Len())
	c.byFrame.Ascend(func(tx *Transaction) bool {
		txs = append(txs, tx)
		return true
	})
	return txs
}

// Len 返回事务数量
func (c *Conversation) Len() int {
	return c.byFrame.Len()
}

// Reset 清空所有事务 连接生命周期结束时调用
func (c *Conversation) Reset() {
	c.slots = make(map[uint32]*btree.BTreeG[*Transaction])
	c.byFrame.Clear(false)
	c.frames = make(map[uint64]*Transaction)
}
