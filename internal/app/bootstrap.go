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

package app

import (
	"context"
	"fmt"

	"stagewrap/internal/handlers"
	"stagewrap/internal/resource"
	"stagewrap/internal/stage"
	"stagewrap/internal/transport"
	"stagewrap/pkg/config"
	"stagewrap/pkg/log"
)

// Bootstrap 统一初始化：供 stage 进程与 stagectl 复用
type Bootstrap struct {
	Config    *config.Config
	Logger    *log.Logger
	Registry  *stage.Registry
	Resources *resource.Cache
	Transport *transport.Transport
}

// NewBootstrap 根据配置创建日志、stage 注册表、resource map 缓存与传输层
func NewBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, error) {
	logger, err := log.NewLogger(&log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	registry, err := stage.LoadRegistry(cfg.Stage.Registry, handlers.RoutingFuncs())
	if err != nil {
		return nil, fmt.Errorf("加载 stage 注册表失败: %w", err)
	}

	loader, err := resource.NewLoader(cfg.Resources)
	if err != nil {
		return nil, fmt.Errorf("初始化 resource 加载器失败: %w", err)
	}

	tr, err := transport.NewClient(ctx, cfg.Transport)
	if err != nil {
		return nil, fmt.Errorf("初始化传输层失败: %w", err)
	}

	logger.Info("bootstrap 完成",
		"stages", registry.Len(),
		"resources", cfg.Resources.Source,
		"queue", cfg.Transport.Queue,
		"invoker", cfg.Transport.Invoker,
	)
	return &Bootstrap{
		Config:    cfg,
		Logger:    logger,
		Registry:  registry,
		Resources: resource.NewCache(loader, logger),
		Transport: tr,
	}, nil
}

// Close 释放传输层连接与日志文件
func (b *Bootstrap) Close() error {
	err := b.Transport.Close()
	if cerr := b.Logger.Close(); err == nil {
		err = cerr
	}
	return err
}
