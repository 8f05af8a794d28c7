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

package stage

import "strings"

// Destination 计算型路由产生的一个下游目标
type Destination struct {
	Name string `json:"name"`
	Data any    `json:"data"`
}

// RoutingFunc 根据结果计算下游目标；返回 nil 表示不路由
type RoutingFunc func(result any) []Destination

// Routing 路由配置：NoRouting | Single | Multiple | Computed，仅本包内的类型可实现
type Routing interface {
	isRouting()
}

// NoRouting 不向下游发送
type NoRouting struct{}

// Single 发送到一个 stage
type Single struct {
	Name string
}

// Multiple 按顺序发送到多个 stage，每个都携带完整结果
type Multiple struct {
	Names []string
}

// Computed 由函数根据结果决定目标；Name 仅用于日志与注册表文件
type Computed struct {
	Name string
	Fn   RoutingFunc
}

func (NoRouting) isRouting() {}
func (Single) isRouting()    {}
func (Multiple) isRouting()  {}
func (Computed) isRouting()  {}

// Destinations 计算 result 的下游目标集合；静态路由总是携带完整 result，包括 nil
func Destinations(r Routing, result any) []Destination {
	switch r := r.(type) {
	case Single:
		if r.Name == "" {
			return nil
		}
		return []Destination{{Name: r.Name, Data: result}}
	case Multiple:
		out := make([]Destination, 0, len(r.Names))
		for _, name := range r.Names {
			out = append(out, Destination{Name: name, Data: result})
		}
		return out
	case Computed:
		if r.Fn == nil {
			return nil
		}
		var out []Destination
		for _, d := range r.Fn(result) {
			// 无名目标静默丢弃
			if d.Name == "" {
				continue
			}
			out = append(out, d)
		}
		return out
	default:
		return nil
	}
}

// Describe 返回路由配置的可读描述，用于日志与 stagectl
func Describe(r Routing) string {
	switch r := r.(type) {
	case nil, NoRouting:
		return "-"
	case Single:
		return r.Name
	case Multiple:
		return "[" + strings.Join(r.Names, ", ") + "]"
	case Computed:
		return "func:" + r.Name
	default:
		return "-"
	}
}
