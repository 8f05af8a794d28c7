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

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"stagewrap/pkg/errors"
)

// File 注册表文件的根结构
//
//	stages:
//	  - name: ingest
//	    trigger: invocation
//	    routing: parse
//	  - name: parse
//	    trigger: queue
//	    routing: [index, notify]
//	  - name: index
//	    trigger: queue
//	    routing:
//	      func: by_target
type File struct {
	Stages []StageSpec `yaml:"stages"`
}

// StageSpec 文件中的单个 stage
type StageSpec struct {
	Name    string      `yaml:"name"`
	Trigger string      `yaml:"trigger"`
	Routing RoutingSpec `yaml:"routing"`
}

// RoutingSpec routing 字段：字符串、字符串列表或 {func: name}
type RoutingSpec struct {
	Names []string
	Func  string
	set   bool
	list  bool
}

// UnmarshalYAML 支持三种写法
func (r *RoutingSpec) UnmarshalYAML(value *yaml.Node) error {
	r.set = true
	switch value.Kind {
	case yaml.ScalarNode:
		var name string
		if err := value.Decode(&name); err != nil {
			return err
		}
		if name != "" {
			r.Names = []string{name}
		}
		return nil
	case yaml.SequenceNode:
		r.list = true
		return value.Decode(&r.Names)
	case yaml.MappingNode:
		var fn struct {
			Func string `yaml:"func"`
		}
		if err := value.Decode(&fn); err != nil {
			return err
		}
		if fn.Func == "" {
			return fmt.Errorf("line %d: routing 映射需要 func 字段", value.Line)
		}
		r.Func = fn.Func
		return nil
	default:
		return fmt.Errorf("line %d: 无法解析 routing", value.Line)
	}
}

// ParseFile 解析注册表 YAML
func ParseFile(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "解析 stage 注册表失败")
	}
	return &f, nil
}

// Build 构建注册表；{func: name} 形式的路由从 funcs 中查找
func (f *File) Build(funcs map[string]RoutingFunc) (*Registry, error) {
	stages := make([]Stage, 0, len(f.Stages))
	for _, def := range f.Stages {
		routing, err := def.Routing.resolve(funcs)
		if err != nil {
			return nil, errors.Wrapf(err, "stage %q", def.Name)
		}
		stages = append(stages, Stage{
			Name:    def.Name,
			Trigger: TriggerKind(def.Trigger),
			Routing: routing,
		})
	}
	return NewRegistry(stages...)
}

func (r RoutingSpec) resolve(funcs map[string]RoutingFunc) (Routing, error) {
	switch {
	case !r.set:
		return NoRouting{}, nil
	case r.Func != "":
		fn, ok := funcs[r.Func]
		if !ok {
			return nil, errors.NotFoundf("routing 函数 %q", r.Func)
		}
		return Computed{Name: r.Func, Fn: fn}, nil
	case r.list:
		return Multiple{Names: r.Names}, nil
	case len(r.Names) == 1:
		return Single{Name: r.Names[0]}, nil
	default:
		return NoRouting{}, nil
	}
}

// LoadRegistry 读取并构建注册表文件
func LoadRegistry(path string, funcs map[string]RoutingFunc) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "读取 stage 注册表 %s", path)
	}
	f, err := ParseFile(data)
	if err != nil {
		return nil, err
	}
	return f.Build(funcs)
}
