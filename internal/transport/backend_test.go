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
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 需要真实后端：TEST_STAGE_PG_DSN / TEST_STAGE_REDIS_ADDR 未设置时跳过

func exerciseQueue(t *testing.T, q Queue, queue string) {
	t.Helper()
	ctx := context.Background()

	msg, err := q.Dequeue(ctx, queue)
	require.NoError(t, err)
	assert.Nil(t, msg)

	require.NoError(t, q.Enqueue(ctx, queue, []byte(`{"id":"a"}`)))
	msg, err = q.Dequeue(ctx, queue)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.JSONEq(t, `{"id":"a"}`, string(msg.Body))

	again, err := q.Dequeue(ctx, queue)
	require.NoError(t, err)
	assert.Nil(t, again)

	require.NoError(t, q.Delete(ctx, queue, msg.ReceiptHandle))
	assert.ErrorIs(t, q.Delete(ctx, queue, msg.ReceiptHandle), ErrReceiptNotFound)
}

func TestPostgresQueue(t *testing.T) {
	dsn := os.Getenv("TEST_STAGE_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_STAGE_PG_DSN not set, skipping postgres queue test")
	}
	q, err := OpenPostgresQueue(context.Background(), dsn, time.Minute)
	require.NoError(t, err)
	defer q.Close()

	exerciseQueue(t, q, "test-"+uuid.New().String())
}

func TestRedisQueue(t *testing.T) {
	addr := os.Getenv("TEST_STAGE_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_STAGE_REDIS_ADDR not set, skipping redis queue test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	q := NewRedisQueue(client, "stagewrap-test", "c1", time.Minute)
	defer q.Close()

	stream := "stagewrap:test:" + uuid.New().String()
	defer client.Del(context.Background(), stream)
	exerciseQueue(t, q, stream)
}
