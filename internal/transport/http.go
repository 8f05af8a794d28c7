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
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"stagewrap/pkg/utils"
)

const (
	// InvocationTypeHeader 调用方式请求头
	InvocationTypeHeader = "X-Invocation-Type"
	// InvocationTypeEvent 异步调用：宿主接受后立即返回 202
	InvocationTypeEvent = "Event"
	// InvocationTypeRequestResponse 同步调用：宿主等待完成信号后返回结果
	InvocationTypeRequestResponse = "RequestResponse"
)

// HTTPInvoker 以 HTTP POST 调用下游 stage 的 /invoke；target 为完整 URL
type HTTPInvoker struct {
	client *resty.Client
}

// NewHTTPInvoker 创建 HTTP 调用器
func NewHTTPInvoker(timeout time.Duration) *HTTPInvoker {
	return &HTTPInvoker{
		client: resty.New().
			SetTimeout(utils.PositiveOr(timeout, 10*time.Second)).
			SetHeader("Content-Type", "application/json").
			SetHeader(InvocationTypeHeader, InvocationTypeEvent),
	}
}

// Invoke 实现 Invoker；非 2xx 视为失败
func (h *HTTPInvoker) Invoke(ctx context.Context, target string, payload []byte) error {
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(target)
	if err != nil {
		return opError("invoke", target, err)
	}
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return opError("invoke", target, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}
	return nil
}
