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
	"encoding/json"
	"fmt"

	"stagewrap/internal/resource"
	"stagewrap/internal/stage"
	"stagewrap/internal/transport"
	"stagewrap/pkg/errors"
	"stagewrap/pkg/log"
	"stagewrap/pkg/metrics"
	"stagewrap/pkg/tracing"
)

// Config Dispatcher 依赖
type Config struct {
	Stage     stage.Stage
	Registry  *stage.Registry
	Handler   Handler
	Resources *resource.Cache
	Transport transport.Client
	Logger    *log.Logger
	MaxFanout int
}

// Dispatcher 单个 stage 的入口：每次平台调用执行一次 Handle
type Dispatcher struct {
	stage     stage.Stage
	handler   Handler
	resources *resource.Cache
	queue     transport.Queue
	router    *Router
	acker     *Acknowledger
	logger    *log.Logger
}

// NewDispatcher 创建 Dispatcher
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Handler == nil {
		return nil, errors.InvalidArgf("stage %q: handler 不能为空", cfg.Stage.Name)
	}
	if cfg.Registry == nil || cfg.Resources == nil || cfg.Transport == nil {
		return nil, errors.InvalidArgf("stage %q: registry、resources 与 transport 必须提供", cfg.Stage.Name)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.With("stage", cfg.Stage.Name)
	return &Dispatcher{
		stage:     cfg.Stage,
		handler:   cfg.Handler,
		resources: cfg.Resources,
		queue:     cfg.Transport,
		router:    NewRouter(cfg.Transport, cfg.Registry, logger, cfg.MaxFanout),
		acker:     NewAcknowledger(cfg.Transport),
		logger:    logger,
	}, nil
}

// Stage 本 dispatcher 承载的 stage
func (d *Dispatcher) Stage() stage.Stage { return d.stage }

// Router 本 dispatcher 使用的 Router
func (d *Dispatcher) Router() *Router { return d.router }

// Handle 处理一次平台调用。resource map 加载失败时直接 native.Fail，
// 否则构建包装后的上下文并按触发方式分发。
func (d *Dispatcher) Handle(ctx context.Context, event json.RawMessage, native NativeContext) {
	ctx, span := tracing.StartInvocationSpan(ctx, d.stage.Name, string(d.stage.Trigger))

	resources, err := d.resources.Get(ctx)
	if err != nil {
		d.logger.Error("获取 resource map 失败", "error", err)
		metrics.CompletionTotal.WithLabelValues(signalFail.String(), "error").Inc()
		tracing.End(span, err)
		native.Fail(err)
		return
	}

	cc := newContext(ctx, native, d.stage, resources, d.router, d.acker, d.logger)
	switch d.stage.Trigger {
	case stage.TriggerInvocation:
		d.handleInvocation(event, cc)
	case stage.TriggerQueue:
		d.handleQueue(ctx, cc, resources)
	default:
		cc.Fail(fmt.Errorf("%w: %q", ErrUnsupportedComponentType, d.stage.Trigger))
	}
}

func (d *Dispatcher) handleInvocation(event json.RawMessage, cc *Context) {
	d.invoke(event, cc)
}

// handleQueue 从本 stage 的输入队列取一条消息；队列为空时不调用 handler，也不向下游转发
func (d *Dispatcher) handleQueue(ctx context.Context, cc *Context, resources resource.Map) {
	queue, err := resources.QueueEndpointFor(d.stage.Name)
	if err != nil {
		cc.Fail(err)
		return
	}
	msg, err := d.queue.Dequeue(ctx, queue)
	if err != nil {
		cc.Fail(err)
		return
	}
	if msg == nil {
		metrics.PollIdleTotal.WithLabelValues(d.stage.Name).Inc()
		cc.succeedIdle()
		return
	}
	if !json.Valid(msg.Body) {
		d.logger.Warn("队列消息不是合法 JSON，留待重新投递", "queue", queue)
		cc.Fail(fmt.Errorf("%w: queue %s", ErrMalformedMessage, queue))
		return
	}
	cc.SetReceiptHandle(msg.ReceiptHandle)
	d.invoke(json.RawMessage(msg.Body), cc)
}

// invoke 调用 handler；panic 转为 Fail
func (d *Dispatcher) invoke(event json.RawMessage, cc *Context) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panic", "panic", r)
			cc.Fail(fmt.Errorf("handler panic: %v", r))
		}
	}()
	d.handler.Handle(event, cc)
}
