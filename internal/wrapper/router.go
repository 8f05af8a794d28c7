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
	"time"

	"golang.org/x/sync/errgroup"

	"stagewrap/internal/resource"
	"stagewrap/internal/stage"
	"stagewrap/internal/transport"
	"stagewrap/pkg/log"
	"stagewrap/pkg/metrics"
	"stagewrap/pkg/tracing"
)

// Router 将结果投递到下游 stage
type Router struct {
	client    transport.Client
	registry  *stage.Registry
	logger    *log.Logger
	maxFanout int
}

// NewRouter 创建 Router；maxFanout<=0 表示不限制并发投递数
func NewRouter(client transport.Client, registry *stage.Registry, logger *log.Logger, maxFanout int) *Router {
	if logger == nil {
		logger = log.Discard()
	}
	return &Router{client: client, registry: registry, logger: logger, maxFanout: maxFanout}
}

// DeliverTo 将 data 以 JSON 投递给名为 destination 的 stage：
// 队列型 stage 入队，调用型 stage 直接调用。传输层错误原样返回。
func (r *Router) DeliverTo(ctx context.Context, data any, destination string, resources resource.Map) (err error) {
	target, ok := r.registry.Get(destination)
	if !ok {
		metrics.DeliveryTotal.WithLabelValues("invalid", "error").Inc()
		return fmt.Errorf("%w: %q", ErrInvalidDestination, destination)
	}
	kind := string(target.Trigger)
	if !target.Trigger.Known() {
		metrics.DeliveryTotal.WithLabelValues("invalid", "error").Inc()
		return fmt.Errorf("%w: stage %q trigger %q", ErrInvalidComponentType, destination, target.Trigger)
	}

	ctx, span := tracing.StartDeliverySpan(ctx, destination, kind)
	start := time.Now()
	defer func() {
		metrics.DeliveryTotal.WithLabelValues(kind, metrics.StatusLabel(err)).Inc()
		metrics.DeliveryDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		tracing.End(span, err)
	}()

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("编码投递到 %q 的数据: %w", destination, err)
	}

	switch target.Trigger {
	case stage.TriggerQueue:
		queue, err := resources.QueueEndpointFor(destination)
		if err != nil {
			return err
		}
		return r.client.Enqueue(ctx, queue, payload)
	default:
		id, err := resources.InvocationIDFor(destination)
		if err != nil {
			return err
		}
		return r.client.Invoke(ctx, id, payload)
	}
}

// destinations 计算目标；路由函数 panic 转为错误
func destinations(routing stage.Routing, result any) (dests []stage.Destination, err error) {
	defer func() {
		if p := recover(); p != nil {
			name := ""
			if c, ok := routing.(stage.Computed); ok {
				name = c.Name
			}
			dests, err = nil, fmt.Errorf("%w: %q: %v", ErrRoutingPanic, name, p)
		}
	}()
	return stage.Destinations(routing, result), nil
}

// Route 按 st 的路由配置投递 result。err 非空时不投递并返回 nil。
// 所有投递并发进行并全部等待；任一失败返回 *DeliveryError。
func (r *Router) Route(ctx context.Context, err error, result any, st stage.Stage, resources resource.Map) error {
	if err != nil {
		return nil
	}
	dests, err := destinations(st.Routing, result)
	if err != nil {
		r.logger.Error("路由函数 panic", "stage", st.Name, "error", err)
		return err
	}
	if len(dests) == 0 {
		return nil
	}

	errs := make([]error, len(dests))
	var g errgroup.Group
	if r.maxFanout > 0 {
		g.SetLimit(r.maxFanout)
	}
	for i, d := range dests {
		g.Go(func() error {
			errs[i] = r.DeliverTo(ctx, d.Data, d.Name, resources)
			return nil
		})
	}
	_ = g.Wait()

	derr := &DeliveryError{Attempted: len(dests)}
	for i, e := range errs {
		if e == nil {
			continue
		}
		r.logger.Error("投递失败", "stage", st.Name, "destination", dests[i].Name, "error", e)
		derr.Failures = append(derr.Failures, DestinationFailure{Destination: dests[i].Name, Err: e})
	}
	if len(derr.Failures) > 0 {
		return derr
	}
	r.logger.Debug("投递完成", "stage", st.Name, "destinations", len(dests))
	return nil
}
