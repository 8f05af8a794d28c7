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

// Package handlers 内置的 domain handler 与路由函数
package handlers

import (
	"encoding/json"

	"stagewrap/internal/stage"
	"stagewrap/internal/wrapper"
	"stagewrap/pkg/errors"
)

// Passthrough 以解码后的 event 作为结果
var Passthrough = wrapper.HandlerFunc(func(event json.RawMessage, cc wrapper.Completer) {
	if len(event) == 0 {
		cc.Succeed(nil)
		return
	}
	var v any
	if err := json.Unmarshal(event, &v); err != nil {
		cc.Fail(errors.Wrap(err, "解码 event"))
		return
	}
	cc.Succeed(v)
})

// Discard 以 nil 结果完成；静态路由仍会把 null 发往下游
var Discard = wrapper.HandlerFunc(func(event json.RawMessage, cc wrapper.Completer) {
	cc.Succeed(nil)
})

var registry = map[string]wrapper.Handler{
	"passthrough": Passthrough,
	"discard":     Discard,
}

// Lookup 按名称查找内置 handler
func Lookup(name string) (wrapper.Handler, error) {
	h, ok := registry[name]
	if !ok {
		return nil, errors.NotFoundf("handler %q", name)
	}
	return h, nil
}

// RoutingFuncs 注册表文件中 {func: name} 可引用的路由函数
func RoutingFuncs() map[string]stage.RoutingFunc {
	return map[string]stage.RoutingFunc{
		"by_target": ByTarget,
	}
}

// ByTarget 结果为 {"target": name, "data": ...} 或其列表时，投递 data 到 target；
// 其他形状不路由
func ByTarget(result any) []stage.Destination {
	switch v := result.(type) {
	case map[string]any:
		if d, ok := targetOf(v); ok {
			return []stage.Destination{d}
		}
		return nil
	case []any:
		var out []stage.Destination
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if d, ok := targetOf(m); ok {
				out = append(out, d)
			}
		}
		return out
	default:
		return nil
	}
}

func targetOf(m map[string]any) (stage.Destination, bool) {
	name, ok := m["target"].(string)
	if !ok {
		return stage.Destination{}, false
	}
	return stage.Destination{Name: name, Data: m["data"]}, true
}
