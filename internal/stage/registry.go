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
	"sort"

	"stagewrap/pkg/errors"
)

// Registry stage 名到 Stage 的映射；部署时构建，运行期只读
type Registry struct {
	stages map[string]Stage
}

// NewRegistry 由 stage 列表构建注册表；名称为空或重复时返回错误
func NewRegistry(stages ...Stage) (*Registry, error) {
	m := make(map[string]Stage, len(stages))
	for i, s := range stages {
		if s.Name == "" {
			return nil, errors.InvalidArgf("stage %d: name 不能为空", i)
		}
		if _, dup := m[s.Name]; dup {
			return nil, errors.InvalidArgf("stage %q 重复定义", s.Name)
		}
		if s.Routing == nil {
			s.Routing = NoRouting{}
		}
		if err := validateRouting(s); err != nil {
			return nil, err
		}
		m[s.Name] = s
	}
	return &Registry{stages: m}, nil
}

func validateRouting(s Stage) error {
	switch r := s.Routing.(type) {
	case Single:
		if r.Name == "" {
			return errors.InvalidArgf("stage %q: routing 目标名为空", s.Name)
		}
	case Multiple:
		for i, n := range r.Names {
			if n == "" {
				return errors.InvalidArgf("stage %q: routing[%d] 目标名为空", s.Name, i)
			}
		}
	case Computed:
		if r.Fn == nil {
			return errors.InvalidArgf("stage %q: routing 函数 %q 未提供", s.Name, r.Name)
		}
	}
	return nil
}

// Get 按名称查找 stage
func (r *Registry) Get(name string) (Stage, bool) {
	s, ok := r.stages[name]
	return s, ok
}

// Names 返回所有 stage 名（已排序）
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.stages))
	for n := range r.stages {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len stage 数量
func (r *Registry) Len() int {
	return len(r.stages)
}
