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

// Package resource 将逻辑 stage 名解析为物理端点（队列地址、调用 ID）
package resource

import (
	stderrors "errors"
	"fmt"
)

var (
	// ErrNoResource resource map 中没有该 stage 或对应字段为空
	ErrNoResource = stderrors.New("resource not found")
	// ErrEmptyMap 加载器返回了空的 resource map
	ErrEmptyMap = stderrors.New("resource map is empty")
)

// Endpoints 单个 stage 的物理端点
type Endpoints struct {
	Queue      string `json:"queue,omitempty" yaml:"queue,omitempty"`
	Invocation string `json:"invocation,omitempty" yaml:"invocation,omitempty"`
}

// Map stage 名到端点的映射；部署时生成，运行期只读
type Map map[string]Endpoints

// QueueEndpointFor 返回 stage 输入队列的地址
func (m Map) QueueEndpointFor(name string) (string, error) {
	ep, ok := m[name]
	if !ok || ep.Queue == "" {
		return "", fmt.Errorf("stage %q 没有队列端点: %w", name, ErrNoResource)
	}
	return ep.Queue, nil
}

// InvocationIDFor 返回 stage 的调用 ID
func (m Map) InvocationIDFor(name string) (string, error) {
	ep, ok := m[name]
	if !ok || ep.Invocation == "" {
		return "", fmt.Errorf("stage %q 没有调用端点: %w", name, ErrNoResource)
	}
	return ep.Invocation, nil
}
