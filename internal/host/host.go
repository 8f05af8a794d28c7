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

// Package host 本地平台宿主：提供平台上下文、HTTP 调用入口与队列型 stage 的定时触发
package host

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"time"

	"stagewrap/internal/wrapper"
	"stagewrap/pkg/log"
	"stagewrap/pkg/metrics"
	"stagewrap/pkg/utils"
)

// ErrTimeout 截止时间内未收到完成信号
var ErrTimeout = stderrors.New("invocation timed out")

// Outcome 平台收到的完成信号
type Outcome struct {
	Signal string // succeed | done | fail
	Err    error
	Result any
}

// Failed 信号为 fail，或 done 携带错误
func (o Outcome) Failed() bool {
	return o.Signal == "fail" || o.Err != nil
}

// nativeContext 实现 wrapper.NativeContext；只接受第一个信号
type nativeContext struct {
	deadline time.Time
	once     sync.Once
	outcome  chan Outcome
}

func newNativeContext(deadline time.Time) *nativeContext {
	return &nativeContext{deadline: deadline, outcome: make(chan Outcome, 1)}
}

func (n *nativeContext) signal(o Outcome) {
	n.once.Do(func() { n.outcome <- o })
}

func (n *nativeContext) Succeed(result any) { n.signal(Outcome{Signal: "succeed", Result: result}) }

func (n *nativeContext) Fail(err error) { n.signal(Outcome{Signal: "fail", Err: err}) }

func (n *nativeContext) Done(err error, result any) {
	n.signal(Outcome{Signal: "done", Err: err, Result: result})
}

func (n *nativeContext) RemainingTime() time.Duration {
	if d := time.Until(n.deadline); d > 0 {
		return d
	}
	return 0
}

// Host 为一个 stage 扮演平台：每次调用设定截止时间并等待完成信号
type Host struct {
	dispatcher *wrapper.Dispatcher
	logger     *log.Logger
	timeout    time.Duration
	wg         sync.WaitGroup
}

// New 创建 Host；timeout<=0 时使用 30s
func New(dispatcher *wrapper.Dispatcher, logger *log.Logger, timeout time.Duration) *Host {
	if logger == nil {
		logger = log.Discard()
	}
	return &Host{dispatcher: dispatcher, logger: logger, timeout: utils.PositiveOr(timeout, 30*time.Second)}
}

// StageName 承载的 stage
func (h *Host) StageName() string {
	return h.dispatcher.Stage().Name
}

// Invoke 执行一次调用并等待完成信号；超时返回 ErrTimeout
func (h *Host) Invoke(ctx context.Context, event json.RawMessage) (Outcome, error) {
	name := h.StageName()
	metrics.InvocationsInflight.WithLabelValues(name).Inc()
	defer metrics.InvocationsInflight.WithLabelValues(name).Dec()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	deadline, _ := ctx.Deadline()
	native := newNativeContext(deadline)

	go h.dispatcher.Handle(ctx, event, native)

	select {
	case o := <-native.outcome:
		return o, nil
	case <-ctx.Done():
		if !stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Outcome{}, ctx.Err()
		}
		h.logger.Warn("调用超时", "stage", name, "timeout", h.timeout)
		return Outcome{}, ErrTimeout
	}
}

// InvokeAsync 在后台执行一次调用（Event 调用方式），结果只记录日志
func (h *Host) InvokeAsync(event json.RawMessage) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		o, err := h.Invoke(context.Background(), event)
		switch {
		case err != nil:
			h.logger.Error("异步调用失败", "stage", h.StageName(), "error", err)
		case o.Failed():
			h.logger.Error("异步调用失败", "stage", h.StageName(), "signal", o.Signal, "error", o.Err)
		default:
			h.logger.Debug("异步调用完成", "stage", h.StageName(), "signal", o.Signal)
		}
	}()
}

// Wait 等待所有后台调用结束
func (h *Host) Wait() {
	h.wg.Wait()
}
