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
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"stagewrap/pkg/log"
	"stagewrap/pkg/metrics"
)

// loadTimeout 共享加载的超时，不随任何单个调用方取消
const loadTimeout = 30 * time.Second

// Cache 进程级 resource map 缓存。
// 首次 Get 时加载，并发的冷启动调用共享同一次加载；
// 加载失败不缓存，下一次 Get 重新加载。成功后在进程生命周期内不再刷新。
type Cache struct {
	loader Loader
	logger *log.Logger

	group singleflight.Group
	mu    sync.RWMutex
	m     Map
}

// NewCache 创建缓存；logger 可为 nil
func NewCache(loader Loader, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.Discard()
	}
	return &Cache{loader: loader, logger: logger}
}

// Get 返回缓存的 resource map，未加载时同步加载
func (c *Cache) Get(ctx context.Context) (Map, error) {
	if m := c.Peek(); m != nil {
		return m, nil
	}
	ch := c.group.DoChan("resources", func() (interface{}, error) {
		if m := c.Peek(); m != nil {
			return m, nil
		}
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		m, err := c.loader.Load(loadCtx)
		if err == nil && m == nil {
			err = ErrEmptyMap
		}
		if err != nil {
			metrics.ResourceLoadTotal.WithLabelValues("error").Inc()
			c.logger.Error("加载 resource map 失败", "error", err)
			return nil, err
		}
		c.mu.Lock()
		c.m = m
		c.mu.Unlock()
		metrics.ResourceLoadTotal.WithLabelValues("ok").Inc()
		c.logger.Info("resource map 已加载", "stages", len(m))
		return m, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Map), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Peek 返回已缓存的 map，未加载时为 nil
func (c *Cache) Peek() Map {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.m
}
