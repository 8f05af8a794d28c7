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

package resource

import (
	"context"
	"os"

	"github.com/hashicorp/vault/api"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"stagewrap/pkg/config"
	"stagewrap/pkg/errors"
)

// Loader 加载完整的 resource map
type Loader interface {
	Load(ctx context.Context) (Map, error)
}

// LoaderFunc 函数适配为 Loader
type LoaderFunc func(ctx context.Context) (Map, error)

// Load 实现 Loader
func (f LoaderFunc) Load(ctx context.Context) (Map, error) {
	return f(ctx)
}

// NewLoader 按 resources.source 创建加载器
func NewLoader(cfg config.ResourcesConfig) (Loader, error) {
	switch cfg.Source {
	case "file":
		return &FileLoader{Path: cfg.Path}, nil
	case "static":
		return NewStaticLoader(cfg.Static), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return NewRedisLoader(client, cfg.Redis.Key), nil
	case "vault":
		vc := api.DefaultConfig()
		if cfg.Vault.Address != "" {
			vc.Address = cfg.Vault.Address
		}
		client, err := api.NewClient(vc)
		if err != nil {
			return nil, errors.Wrap(err, "创建 vault client 失败")
		}
		if cfg.Vault.Token != "" {
			client.SetToken(cfg.Vault.Token)
		}
		return NewVaultLoader(client, cfg.Vault.Path), nil
	default:
		return nil, errors.InvalidArgf("不支持的 resources.source: %q", cfg.Source)
	}
}

// FileLoader 从 YAML（或 JSON）文件读取，顶层为 stage 名到端点的映射
type FileLoader struct {
	Path string
}

// Load 实现 Loader
func (l *FileLoader) Load(ctx context.Context) (Map, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "读取 resource map %s", l.Path)
	}
	return ParseMap(data)
}

// ParseMap 解析 YAML/JSON 形式的 resource map
func ParseMap(data []byte) (Map, error) {
	var m Map
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "解析 resource map 失败")
	}
	if len(m) == 0 {
		return nil, ErrEmptyMap
	}
	return m, nil
}

// StaticLoader 直接使用配置中的端点
type StaticLoader struct {
	m Map
}

// NewStaticLoader 由配置构造
func NewStaticLoader(static map[string]config.EndpointConfig) *StaticLoader {
	m := make(Map, len(static))
	for name, ep := range static {
		m[name] = Endpoints{Queue: ep.Queue, Invocation: ep.Invocation}
	}
	return &StaticLoader{m: m}
}

// Load 实现 Loader；返回副本
func (l *StaticLoader) Load(ctx context.Context) (Map, error) {
	if len(l.m) == 0 {
		return nil, ErrEmptyMap
	}
	out := make(Map, len(l.m))
	for k, v := range l.m {
		out[k] = v
	}
	return out, nil
}
