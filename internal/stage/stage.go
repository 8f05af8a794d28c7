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

// Package stage 定义 pipeline 中的 stage、触发方式与路由配置
package stage

// TriggerKind stage 接收输入的方式
type TriggerKind string

const (
	// TriggerInvocation 调用方直接携带 payload 调用
	TriggerInvocation TriggerKind = "invocation"
	// TriggerQueue 轮询本 stage 专属的输入队列
	TriggerQueue TriggerKind = "queue"
)

// Known 是否为受支持的触发方式；注册表允许加载未知值，由分发与投递时拒绝
func (k TriggerKind) Known() bool {
	return k == TriggerInvocation || k == TriggerQueue
}

// Stage pipeline 中的一个计算单元，名称即身份，部署后不可变
type Stage struct {
	Name    string
	Trigger TriggerKind
	Routing Routing
}

// QueueTriggered 是否为队列触发
func (s Stage) QueueTriggered() bool {
	return s.Trigger == TriggerQueue
}
