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
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"stagewrap/pkg/errors"
)

// RedisLoader 从 Redis hash 读取：field 为 stage 名，value 为端点 JSON
//
//	HSET stagewrap:resources parse '{"queue":"stage-parse","invocation":"http://parse:8080/invoke"}'
type RedisLoader struct {
	client redis.Cmdable
	key    string
}

// NewRedisLoader 创建 Redis 加载器
func NewRedisLoader(client redis.Cmdable, key string) *RedisLoader {
	return &RedisLoader{client: client, key: key}
}

// Load 实现 Loader；hash 不存在或为空视为加载失败
func (l *RedisLoader) Load(ctx context.Context) (Map, error) {
	fields, err := l.client.HGetAll(ctx, l.key).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "读取 redis hash %s", l.key)
	}
	if len(fields) == 0 {
		return nil, errors.Wrapf(ErrEmptyMap, "redis hash %s", l.key)
	}
	m := make(Map, len(fields))
	for name, raw := range fields {
		var ep Endpoints
		if err := json.Unmarshal([]byte(raw), &ep); err != nil {
			return nil, errors.Wrapf(err, "解析 stage %q 的端点", name)
		}
		m[name] = ep
	}
	return m, nil
}
