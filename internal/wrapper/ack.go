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

	"stagewrap/internal/resource"
	"stagewrap/internal/stage"
	"stagewrap/internal/transport"
	"stagewrap/pkg/metrics"
	"stagewrap/pkg/tracing"
)

// Acknowledger 删除已消费的输入消息
type Acknowledger struct {
	queue transport.Queue
}

// NewAcknowledger 创建 Acknowledger
func NewAcknowledger(queue transport.Queue) *Acknowledger {
	return &Acknowledger{queue: queue}
}

// Acknowledge 从 st 的输入队列删除 receipt 对应的消息；失败原样返回，不重试
func (a *Acknowledger) Acknowledge(ctx context.Context, receipt string, st stage.Stage, resources resource.Map) (err error) {
	ctx, span := tracing.StartAckSpan(ctx, st.Name)
	defer func() {
		metrics.AckTotal.WithLabelValues(metrics.StatusLabel(err)).Inc()
		tracing.End(span, err)
	}()

	queue, err := resources.QueueEndpointFor(st.Name)
	if err != nil {
		return err
	}
	return a.queue.Delete(ctx, queue, receipt)
}
