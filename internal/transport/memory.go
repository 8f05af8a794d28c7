// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"stagewrap/pkg/utils"
)

// InvokeFunc 内存调用目标的处理函数
type InvokeFunc func(ctx context.Context, payload []byte)

type memMessage struct {
	id           string
	body         []byte
	receipt      string
	visibleAt    time.Time
	receiveCount int
}

// Memory 进程内实现：同时实现 Queue 与 Invoker。
// 未删除的消息在可见性超时后重新可见；Invoke 在新 goroutine 中执行目标。
type Memory struct {
	mu         sync.Mutex
	queues     map[string][]*memMessage
	targets    map[string]InvokeFunc
	visibility time.Duration
	now        func() time.Time
	wg         sync.WaitGroup
}

// NewMemory 创建内存传输；visibility<=0 时使用 30s
func NewMemory(visibility time.Duration) *Memory {
	return &Memory{
		queues:     make(map[string][]*memMessage),
		targets:    make(map[string]InvokeFunc),
		visibility: utils.PositiveOr(visibility, 30*time.Second),
		now:        time.Now,
	}
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Enqueue 实现 Queue
func (m *Memory) Enqueue(ctx context.Context, queue string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return opError("enqueue", queue, err)
	}
	msg := &memMessage{id: uuid.New().String(), body: copyBytes(payload)}
	m.mu.Lock()
	m.queues[queue] = append(m.queues[queue], msg)
	m.mu.Unlock()
	return nil
}

// Dequeue 实现 Queue；取最早的可见消息并设置新的回执
func (m *Memory) Dequeue(ctx context.Context, queue string) (*InboundMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, opError("dequeue", queue, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for _, msg := range m.queues[queue] {
		if msg.visibleAt.After(now) {
			continue
		}
		msg.receipt = uuid.New().String()
		msg.visibleAt = now.Add(m.visibility)
		msg.receiveCount++
		return &InboundMessage{Body: copyBytes(msg.body), ReceiptHandle: msg.receipt}, nil
	}
	return nil, nil
}

// Delete 实现 Queue；只接受最近一次 Dequeue 返回的回执
func (m *Memory) Delete(ctx context.Context, queue, receipt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.queues[queue]
	for i, msg := range msgs {
		if msg.receipt != "" && msg.receipt == receipt {
			m.queues[queue] = append(msgs[:i:i], msgs[i+1:]...)
			return nil
		}
	}
	return opError("delete", queue, ErrReceiptNotFound)
}

// Len 队列中的消息数（含不可见的）
func (m *Memory) Len(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[queue])
}

// Register 注册调用目标，重复注册覆盖
func (m *Memory) Register(target string, fn InvokeFunc) {
	m.mu.Lock()
	m.targets[target] = fn
	m.mu.Unlock()
}

// Invoke 实现 Invoker；目标在后台执行，不等待结果
func (m *Memory) Invoke(ctx context.Context, target string, payload []byte) error {
	m.mu.Lock()
	fn, ok := m.targets[target]
	m.mu.Unlock()
	if !ok {
		return opError("invoke", target, ErrTargetNotFound)
	}
	body := copyBytes(payload)
	bg := context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn(bg, body)
	}()
	return nil
}

// Wait 等待所有后台调用结束
func (m *Memory) Wait() {
	m.wg.Wait()
}
