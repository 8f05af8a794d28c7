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
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stagewrap/pkg/utils"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS stage_messages (
  id            UUID PRIMARY KEY,
  queue         TEXT NOT NULL,
  body          BYTEA NOT NULL,
  receipt       TEXT,
  receive_count INT NOT NULL DEFAULT 0,
  visible_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_stage_messages_queue_visible ON stage_messages (queue, visible_at, created_at);
`

// PostgresQueue 基于 stage_messages 表的队列；Dequeue 用 SKIP LOCKED 认领，
// 认领后 visible_at 推后一个可见性超时，未删除的消息到期后重新可见
type PostgresQueue struct {
	pool       *pgxpool.Pool
	visibility time.Duration
	ownsPool   bool
}

// NewPostgresQueue 使用已有连接池
func NewPostgresQueue(pool *pgxpool.Pool, visibility time.Duration) *PostgresQueue {
	return &PostgresQueue{pool: pool, visibility: utils.PositiveOr(visibility, 30*time.Second)}
}

// OpenPostgresQueue 按 DSN 建立连接池并确保表存在
func OpenPostgresQueue(ctx context.Context, dsn string, visibility time.Duration) (*PostgresQueue, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, opError("connect", "postgres", err)
	}
	q := NewPostgresQueue(pool, visibility)
	q.ownsPool = true
	if err := q.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return q, nil
}

// EnsureSchema 建表（幂等）
func (q *PostgresQueue) EnsureSchema(ctx context.Context) error {
	_, err := q.pool.Exec(ctx, schemaSQL)
	return opError("schema", "stage_messages", err)
}

// Enqueue 实现 Queue
func (q *PostgresQueue) Enqueue(ctx context.Context, queue string, payload []byte) error {
	_, err := q.pool.Exec(ctx,
		`INSERT INTO stage_messages (id, queue, body) VALUES ($1, $2, $3)`,
		uuid.New(), queue, payload,
	)
	return opError("enqueue", queue, err)
}

// Dequeue 实现 Queue；原子认领一条可见消息
func (q *PostgresQueue) Dequeue(ctx context.Context, queue string) (*InboundMessage, error) {
	receipt := uuid.New().String()
	var body []byte
	err := q.pool.QueryRow(ctx,
		`WITH sel AS (
  SELECT id FROM stage_messages WHERE queue = $1 AND visible_at <= now() ORDER BY created_at LIMIT 1 FOR UPDATE SKIP LOCKED
)
UPDATE stage_messages SET receipt = $2, receive_count = receive_count + 1, visible_at = now() + make_interval(secs => $3)
FROM sel WHERE stage_messages.id = sel.id
RETURNING stage_messages.body`,
		queue, receipt, q.visibility.Seconds(),
	).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, opError("dequeue", queue, err)
	}
	return &InboundMessage{Body: body, ReceiptHandle: receipt}, nil
}

// Delete 实现 Queue；回执过期（消息已被重新认领）时返回 ErrReceiptNotFound
func (q *PostgresQueue) Delete(ctx context.Context, queue, receipt string) error {
	tag, err := q.pool.Exec(ctx,
		`DELETE FROM stage_messages WHERE queue = $1 AND receipt = $2`,
		queue, receipt,
	)
	if err != nil {
		return opError("delete", queue, err)
	}
	if tag.RowsAffected() == 0 {
		return opError("delete", queue, ErrReceiptNotFound)
	}
	return nil
}

// Close 关闭自建的连接池
func (q *PostgresQueue) Close() error {
	if q.ownsPool {
		q.pool.Close()
	}
	return nil
}
