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

// Package transport 队列与直接调用的传输层：内存、PostgreSQL、Redis Streams 与 HTTP
package transport

import (
	"context"
	stderrors "errors"
	"io"
)

var (
	// ErrReceiptNotFound 回执不存在或已过期（消息已被重新投递）
	ErrReceiptNotFound = stderrors.New("receipt handle not found")
	// ErrTargetNotFound 调用目标未注册
	ErrTargetNotFound = stderrors.New("invocation target not found")
)

// InboundMessage 从 stage 输入队列取出的一条消息
type InboundMessage struct {
	Body          []byte // JSON
	ReceiptHandle string // 用于 Delete 的回执
}

// Queue 消息队列；Dequeue 在队列为空时返回 nil, nil
type Queue interface {
	Enqueue(ctx context.Context, queue string, payload []byte) error
	Dequeue(ctx context.Context, queue string) (*InboundMessage, error)
	Delete(ctx context.Context, queue, receipt string) error
}

// Invoker 异步（Event）调用另一个 stage
type Invoker interface {
	Invoke(ctx context.Context, target string, payload []byte) error
}

// Client wrapper 依赖的完整传输能力
type Client interface {
	Queue
	Invoker
}

// Error 传输操作失败；Op 为 enqueue | dequeue | delete | invoke
type Error struct {
	Op     string
	Target string
	Err    error
}

func (e *Error) Error() string {
	return "transport " + e.Op + " " + e.Target + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func opError(op, target string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Target: target, Err: err}
}

// Transport 组合一个 Queue 与一个 Invoker
type Transport struct {
	Queue
	Invoker

	// Memory 使用内存后端时非 nil，宿主在其上注册本进程的调用目标
	Memory  *Memory
	closers []io.Closer
}

// Compose 组合队列与调用后端
func Compose(q Queue, inv Invoker) *Transport {
	t := &Transport{Queue: q, Invoker: inv}
	for _, v := range []interface{}{q, inv} {
		if c, ok := v.(io.Closer); ok {
			t.closers = append(t.closers, c)
		}
	}
	return t
}

// Close 关闭底层连接
func (t *Transport) Close() error {
	var errs []error
	for _, c := range t.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
