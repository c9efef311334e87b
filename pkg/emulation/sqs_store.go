package emulation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afterdarksys/mockfactory/internal/dbpool"
)

type sqsQueueRow struct {
	Name              string
	EnvironmentID     string
	FIFO              bool
	VisibilityTimeout time.Duration
	CreatedAt         time.Time
}

type sqsMessageRow struct {
	ID            string
	Body          string
	ReceiptHandle string
	VisibleAt     time.Time
}

type sqsStore struct {
	pool *pgxpool.Pool
}

func newSQSStore(pool *pgxpool.Pool) *sqsStore {
	return &sqsStore{pool: pool}
}

func (s *sqsStore) createQueue(ctx context.Context, q sqsQueueRow) (sqsQueueRow, error) {
	query := `INSERT INTO emulated_sqs_queues (name, environment_id, fifo, visibility_timeout_secs, created_at)
		VALUES ($1, $2, $3, $4, now()) RETURNING created_at`
	err := s.pool.QueryRow(ctx, query, q.Name, q.EnvironmentID, q.FIFO, int64(q.VisibilityTimeout.Seconds())).Scan(&q.CreatedAt)
	if err != nil {
		return sqsQueueRow{}, fmt.Errorf("creating queue: %w", err)
	}
	return q, nil
}

func (s *sqsStore) getQueue(ctx context.Context, environmentID, name string) (sqsQueueRow, error) {
	var q sqsQueueRow
	var visibilitySecs int64
	query := `SELECT name, environment_id, fifo, visibility_timeout_secs, created_at
		FROM emulated_sqs_queues WHERE environment_id = $1 AND name = $2`
	err := s.pool.QueryRow(ctx, query, environmentID, name).Scan(&q.Name, &q.EnvironmentID, &q.FIFO, &visibilitySecs, &q.CreatedAt)
	if err != nil {
		return sqsQueueRow{}, fmt.Errorf("getting queue: %w", err)
	}
	q.VisibilityTimeout = time.Duration(visibilitySecs) * time.Second
	return q, nil
}

func randomReceiptHandle() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func (s *sqsStore) sendMessage(ctx context.Context, environmentID, queueName, body string) (string, error) {
	id := randomReceiptHandle()
	query := `INSERT INTO emulated_sqs_messages (id, environment_id, queue_name, body, visible_at, created_at)
		VALUES ($1, $2, $3, $4, now(), now())`
	if _, err := s.pool.Exec(ctx, query, id, environmentID, queueName, body); err != nil {
		return "", fmt.Errorf("sending message: %w", err)
	}
	return id, nil
}

// receiveMessages atomically selects up to maxMessages visible messages and
// sets their visible-at to now+visibilityTimeout, matching SQS's
// visibility-timeout semantics (spec §4.6, S6).
func (s *sqsStore) receiveMessages(ctx context.Context, environmentID, queueName string, visibilityTimeout time.Duration, maxMessages int) ([]sqsMessageRow, error) {
	var messages []sqsMessageRow
	err := dbpool.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		selectQuery := `SELECT id, body FROM emulated_sqs_messages
			WHERE environment_id = $1 AND queue_name = $2 AND visible_at <= now()
			ORDER BY created_at ASC LIMIT $3 FOR UPDATE SKIP LOCKED`
		rows, err := tx.Query(ctx, selectQuery, environmentID, queueName, maxMessages)
		if err != nil {
			return fmt.Errorf("selecting visible messages: %w", err)
		}
		type picked struct{ id, body string }
		var ids []picked
		for rows.Next() {
			var p picked
			if err := rows.Scan(&p.id, &p.body); err != nil {
				rows.Close()
				return fmt.Errorf("scanning message: %w", err)
			}
			ids = append(ids, p)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterating messages: %w", err)
		}

		for _, p := range ids {
			handle := randomReceiptHandle()
			updateQuery := `UPDATE emulated_sqs_messages
				SET visible_at = now() + make_interval(secs => $3), receipt_handle = $2
				WHERE id = $1`
			if _, err := tx.Exec(ctx, updateQuery, p.id, handle, visibilityTimeout.Seconds()); err != nil {
				return fmt.Errorf("extending visibility: %w", err)
			}
			messages = append(messages, sqsMessageRow{ID: p.id, Body: p.body, ReceiptHandle: handle})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// deleteMessage removes a message by receipt handle. A handle that no
// longer matches any row (already deleted, or its visibility expired and
// was reissued a new handle) is treated as success, per spec §4.6/S6's
// "idempotent or NotFound acceptable".
func (s *sqsStore) deleteMessage(ctx context.Context, environmentID, queueName, receiptHandle string) error {
	query := `DELETE FROM emulated_sqs_messages
		WHERE environment_id = $1 AND queue_name = $2 AND receipt_handle = $3`
	if _, err := s.pool.Exec(ctx, query, environmentID, queueName, receiptHandle); err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	return nil
}

func (s *sqsStore) changeVisibility(ctx context.Context, environmentID, queueName, receiptHandle string, timeout time.Duration) error {
	query := `UPDATE emulated_sqs_messages SET visible_at = now() + make_interval(secs => $4)
		WHERE environment_id = $1 AND queue_name = $2 AND receipt_handle = $3`
	if _, err := s.pool.Exec(ctx, query, environmentID, queueName, receiptHandle, timeout.Seconds()); err != nil {
		return fmt.Errorf("changing message visibility: %w", err)
	}
	return nil
}
