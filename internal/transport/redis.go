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
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"stagewrap/pkg/utils"
)

const bodyField = "body"

// RedisQueue 基于 Redis Streams 的队列：每个队列一个 stream，所有消费者共用一个 group。
// Dequeue 先用 XAUTOCLAIM 接管超过可见性超时仍未确认的消息，再读取新消息；
// 回执即消息 ID，Delete 执行 XACK + XDEL。
type RedisQueue struct {
	client     *redis.Client
	group      string
	consumer   string
	visibility time.Duration

	groups sync.Map // stream -> struct{}
}

// NewRedisQueue 创建 Redis Streams 队列
func NewRedisQueue(client *redis.Client, group, consumer string, visibility time.Duration) *RedisQueue {
	return &RedisQueue{
		client:     client,
		group:      utils.CoalesceString(group, "stagewrap"),
		consumer:   consumer,
		visibility: utils.PositiveOr(visibility, 30*time.Second),
	}
}

func (q *RedisQueue) ensureGroup(ctx context.Context, stream string) error {
	if _, ok := q.groups.Load(stream); ok {
		return nil
	}
	err := q.client.XGroupCreateMkStream(ctx, stream, q.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	q.groups.Store(stream, struct{}{})
	return nil
}

// Enqueue 实现 Queue
func (q *RedisQueue) Enqueue(ctx context.Context, queue string, payload []byte) error {
	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: queue,
		Values: map[string]interface{}{bodyField: payload},
	}).Err()
	return opError("enqueue", queue, err)
}

// Dequeue 实现 Queue；不阻塞
func (q *RedisQueue) Dequeue(ctx context.Context, queue string) (*InboundMessage, error) {
	if err := q.ensureGroup(ctx, queue); err != nil {
		return nil, opError("dequeue", queue, err)
	}

	claimed, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   queue,
		Group:    q.group,
		Consumer: q.consumer,
		MinIdle:  q.visibility,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, opError("dequeue", queue, err)
	}
	if len(claimed) > 0 {
		return toInbound(claimed[0]), nil
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{queue, ">"},
		Count:    1,
		Block:    -1,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, opError("dequeue", queue, err)
	}
	for _, s := range streams {
		if len(s.Messages) > 0 {
			return toInbound(s.Messages[0]), nil
		}
	}
	return nil, nil
}

func toInbound(msg redis.XMessage) *InboundMessage {
	var body []byte
	switch v := msg.Values[bodyField].(type) {
	case string:
		body = []byte(v)
	case []byte:
		body = v
	}
	return &InboundMessage{Body: body, ReceiptHandle: msg.ID}
}

// Delete 实现 Queue
func (q *RedisQueue) Delete(ctx context.Context, queue, receipt string) error {
	n, err := q.client.XAck(ctx, queue, q.group, receipt).Result()
	if err != nil {
		return opError("delete", queue, err)
	}
	if n == 0 {
		return opError("delete", queue, ErrReceiptNotFound)
	}
	if err := q.client.XDel(ctx, queue, receipt).Err(); err != nil {
		return opError("delete", queue, err)
	}
	return nil
}

// Close 关闭 redis 连接
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
