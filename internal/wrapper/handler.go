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

// Package wrapper 包装 stage 的 domain handler：解析端点、向下游 fan-out、
// 投递成功后确认输入消息，并拦截完成信号以保证以上步骤先于平台完成。
package wrapper

import "encoding/json"

// Handler domain handler。event 为调用 payload 或队列消息体（JSON）；
// 必须恰好调用一次 cc 的 Succeed / Done / Fail。
type Handler interface {
	Handle(event json.RawMessage, cc Completer)
}

// HandlerFunc 函数适配为 Handler
type HandlerFunc func(event json.RawMessage, cc Completer)

// Handle 实现 Handler
func (f HandlerFunc) Handle(event json.RawMessage, cc Completer) {
	f(event, cc)
}
