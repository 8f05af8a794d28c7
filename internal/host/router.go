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

package host

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"stagewrap/internal/transport"
	"stagewrap/pkg/metrics"
)

// Register 在 hertz 上注册宿主路由：
//
//	POST /invoke   调用本 stage；X-Invocation-Type: Event 时立即返回 202
//	GET  /health   健康检查
//	GET  /metrics  Prometheus 指标（exposeMetrics 为 true 时）
func (h *Host) Register(s *server.Hertz, exposeMetrics bool) {
	s.POST("/invoke", h.handleInvoke)
	s.GET("/health", h.handleHealth)
	if exposeMetrics {
		s.GET("/metrics", handleMetrics)
	}
}

func (h *Host) handleInvoke(ctx context.Context, c *app.RequestContext) {
	body := bytes.TrimSpace(c.Request.Body())
	var event json.RawMessage
	if len(body) > 0 {
		if !json.Valid(body) {
			c.JSON(consts.StatusBadRequest, utils.H{"error": "请求体不是合法 JSON"})
			return
		}
		event = append(json.RawMessage(nil), body...)
	}

	if string(c.GetHeader(transport.InvocationTypeHeader)) == transport.InvocationTypeEvent {
		h.InvokeAsync(event)
		c.JSON(consts.StatusAccepted, utils.H{"status": "accepted", "stage": h.StageName()})
		return
	}

	o, err := h.Invoke(ctx, event)
	if err != nil {
		status := consts.StatusInternalServerError
		if stderrors.Is(err, ErrTimeout) {
			status = consts.StatusGatewayTimeout
		}
		c.JSON(status, utils.H{"error": err.Error()})
		return
	}
	if o.Failed() {
		resp := utils.H{"signal": o.Signal}
		if o.Err != nil {
			resp["error"] = o.Err.Error()
		}
		c.JSON(consts.StatusInternalServerError, resp)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"signal": o.Signal, "result": o.Result})
}

func (h *Host) handleHealth(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{
		"status":    "ok",
		"stage":     h.StageName(),
		"timestamp": time.Now().Unix(),
	})
}

func handleMetrics(ctx context.Context, c *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		c.String(consts.StatusInternalServerError, err.Error())
		return
	}
	c.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}
