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

package transport

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"stagewrap/pkg/config"
	"stagewrap/pkg/errors"
)

// NewClient 按 transport 配置创建队列与调用后端
func NewClient(ctx context.Context, cfg config.TransportConfig) (*Transport, error) {
	var mem *Memory
	memory := func() *Memory {
		if mem == nil {
			mem = NewMemory(config.ParseDuration(cfg.Memory.VisibilityTimeout, 30*time.Second))
		}
		return mem
	}

	var q Queue
	switch cfg.Queue {
	case "memory", "":
		q = memory()
	case "postgres":
		pq, err := OpenPostgresQueue(ctx, cfg.Postgres.DSN, config.ParseDuration(cfg.Postgres.VisibilityTimeout, 30*time.Second))
		if err != nil {
			return nil, err
		}
		q = pq
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, opError("connect", "redis", err)
		}
		q = NewRedisQueue(client, cfg.Redis.Group, consumerName(cfg.Redis.Consumer), config.ParseDuration(cfg.Redis.VisibilityTimeout, 30*time.Second))
	default:
		return nil, errors.InvalidArgf("不支持的 transport.queue: %q", cfg.Queue)
	}

	var inv Invoker
	switch cfg.Invoker {
	case "http", "":
		inv = NewHTTPInvoker(config.ParseDuration(cfg.HTTP.Timeout, 10*time.Second))
	case "memory":
		inv = memory()
	default:
		if c, ok := q.(interface{ Close() error }); ok {
			_ = c.Close()
		}
		return nil, errors.InvalidArgf("不支持的 transport.invoker: %q", cfg.Invoker)
	}

	t := Compose(q, inv)
	t.Memory = mem
	return t, nil
}

// consumerName 未配置时使用 hostname，否则退回随机 ID
func consumerName(name string) string {
	if name != "" {
		return name
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "consumer-" + uuid.New().String()
}
