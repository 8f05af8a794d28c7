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

package wrapper

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"stagewrap/internal/resource"
	"stagewrap/internal/stage"
	"stagewrap/pkg/log"
	"stagewrap/pkg/metrics"
	"stagewrap/pkg/tracing"
)

// NativeContext 平台提供的完成信号；每次调用恰好触发其中一个
type NativeContext interface {
	Succeed(result any)
	Fail(err error)
	Done(err error, result any)
	RemainingTime() time.Duration
}

// Completer handler 看到的完成上下文
type Completer interface {
	Succeed(result any)
	Fail(err error)
	Done(err error, result any)
	RemainingTime() time.Duration
	// Context 本次调用的 context，携带平台截止时间
	Context() context.Context
}

// 完成状态
const (
	statePending int32 = iota
	stateRouting
	stateAcknowledging
	stateSignaled
)

type signal int

const (
	signalSucceed signal = iota
	signalDone
	signalFail
	// signalIdle 空轮询，不路由、不确认，平台收到 Succeed(nil)
	signalIdle
)

func (s signal) String() string {
	switch s {
	case signalSucceed:
		return "succeed"
	case signalDone:
		return "done"
	case signalIdle:
		return "idle"
	default:
		return "fail"
	}
}

// Context 包装平台上下文：拦截三个完成信号，先路由（队列型 stage 再确认输入），
// 再把结果转发给平台。第一个完成信号生效，之后的调用被忽略。
type Context struct {
	ctx       context.Context
	native    NativeContext
	stage     stage.Stage
	resources resource.Map
	router    *Router
	acker     *Acknowledger
	logger    *log.Logger
	span      trace.Span
	start     time.Time

	state   atomic.Int32
	mu      sync.Mutex
	receipt string
	settled chan struct{}
}

func newContext(ctx context.Context, native NativeContext, st stage.Stage, resources resource.Map,
	router *Router, acker *Acknowledger, logger *log.Logger) *Context {
	return &Context{
		ctx:       ctx,
		span:      trace.SpanFromContext(ctx),
		native:    native,
		stage:     st,
		resources: resources,
		router:    router,
		acker:     acker,
		logger:    logger,
		start:     time.Now(),
		settled:   make(chan struct{}),
	}
}

// Context 实现 Completer
func (c *Context) Context() context.Context { return c.ctx }

// RemainingTime 直接转发给平台
func (c *Context) RemainingTime() time.Duration { return c.native.RemainingTime() }

// SetReceiptHandle 记录本次消费的消息回执（仅队列触发）
func (c *Context) SetReceiptHandle(receipt string) {
	c.mu.Lock()
	c.receipt = receipt
	c.mu.Unlock()
}

// ReceiptHandle 当前回执，未设置时为空
func (c *Context) ReceiptHandle() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receipt
}

// Settled 平台信号发出后关闭
func (c *Context) Settled() <-chan struct{} { return c.settled }

// Succeed 路由 result；成功则 platform Succeed，任一失败改为 platform Fail
func (c *Context) Succeed(result any) {
	c.complete(signalSucceed, nil, result)
}

// Done 路由 result（err 为空时）；platform Done 收到有效错误
func (c *Context) Done(err error, result any) {
	c.complete(signalDone, err, result)
}

// Fail 不投递、不确认，原始错误转发给平台
func (c *Context) Fail(err error) {
	if err == nil {
		err = ErrUnspecifiedFailure
	}
	c.complete(signalFail, err, nil)
}

// succeedIdle 队列为空时结束本次调用
func (c *Context) succeedIdle() {
	c.complete(signalIdle, nil, nil)
}

func (c *Context) complete(sig signal, err error, result any) {
	if !c.state.CompareAndSwap(statePending, stateRouting) {
		metrics.CompletionTotal.WithLabelValues("duplicate", "ignored").Inc()
		c.logger.Warn("忽略重复的完成信号", "stage", c.stage.Name, "signal", sig.String(), "error", ErrAlreadyCompleted)
		return
	}
	go c.settle(sig, err, result)
}

func (c *Context) settle(sig signal, err error, result any) {
	if sig == signalFail {
		c.logger.Error("stage 执行失败", "stage", c.stage.Name, "error", err)
	}

	effective := err
	if sig != signalIdle {
		if rerr := c.router.Route(c.ctx, err, result, c.stage, c.resources); rerr != nil {
			c.logger.Error("路由失败", "stage", c.stage.Name, "error", rerr)
			effective = rerr
		}
	}

	if sig != signalFail && sig != signalIdle && effective == nil && c.stage.QueueTriggered() {
		if receipt := c.ReceiptHandle(); receipt != "" {
			c.state.Store(stateAcknowledging)
			if aerr := c.acker.Acknowledge(c.ctx, receipt, c.stage, c.resources); aerr != nil {
				c.logger.Error("确认输入消息失败", "stage", c.stage.Name, "error", aerr)
				effective = aerr
			}
		}
	}

	switch sig {
	case signalFail:
		c.native.Fail(err)
	case signalDone:
		c.native.Done(effective, result)
	default:
		if effective != nil {
			c.native.Fail(effective)
		} else {
			c.native.Succeed(result)
		}
	}
	c.state.Store(stateSignaled)

	metrics.CompletionTotal.WithLabelValues(sig.String(), metrics.StatusLabel(effective)).Inc()
	metrics.InvocationDuration.WithLabelValues(c.stage.Name, string(c.stage.Trigger)).Observe(time.Since(c.start).Seconds())
	tracing.End(c.span, effective)
	close(c.settled)
}
