package emulation

import (
	"context"
	"time"

	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/afterdarksys/mockfactory/internal/apperr"
)

const defaultVisibilityTimeout = 30 * time.Second

// sqsTranslator implements the SQS family (spec §4.6): at-least-once
// delivery via a visible-at timestamp per message, redelivery on handle
// expiry (S6).
type sqsTranslator struct {
	store *sqsStore
}

func (t *sqsTranslator) CreateQueue(ctx context.Context, environmentID, name string, fifo bool) (sqsQueueRow, error) {
	row, err := t.store.createQueue(ctx, sqsQueueRow{
		Name: name, EnvironmentID: environmentID, FIFO: fifo, VisibilityTimeout: defaultVisibilityTimeout,
	})
	if err != nil {
		return sqsQueueRow{}, apperr.Wrap(apperr.InternalError, "creating queue", err)
	}
	return row, nil
}

func (t *sqsTranslator) SendMessage(ctx context.Context, environmentID, queueName, body string) (string, error) {
	if _, err := t.store.getQueue(ctx, environmentID, queueName); err != nil {
		return "", apperr.New(apperr.NotFound, "queue not found")
	}
	id, err := t.store.sendMessage(ctx, environmentID, queueName, body)
	if err != nil {
		return "", apperr.Wrap(apperr.InternalError, "sending message", err)
	}
	return id, nil
}

func (t *sqsTranslator) ReceiveMessage(ctx context.Context, environmentID, queueName string, maxMessages int) ([]sqstypes.Message, error) {
	queue, err := t.store.getQueue(ctx, environmentID, queueName)
	if err != nil {
		return nil, apperr.New(apperr.NotFound, "queue not found")
	}
	if maxMessages <= 0 || maxMessages > 10 {
		maxMessages = 10
	}
	rows, err := t.store.receiveMessages(ctx, environmentID, queueName, queue.VisibilityTimeout, maxMessages)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, "receiving messages", err)
	}
	messages := make([]sqstypes.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, sqstypes.Message{
			MessageId:     &row.ID,
			ReceiptHandle: &row.ReceiptHandle,
			Body:          &row.Body,
		})
	}
	return messages, nil
}

func (t *sqsTranslator) DeleteMessage(ctx context.Context, environmentID, queueName, receiptHandle string) error {
	if err := t.store.deleteMessage(ctx, environmentID, queueName, receiptHandle); err != nil {
		return apperr.Wrap(apperr.InternalError, "deleting message", err)
	}
	return nil
}

func (t *sqsTranslator) ChangeMessageVisibility(ctx context.Context, environmentID, queueName, receiptHandle string, timeout time.Duration) error {
	if err := t.store.changeVisibility(ctx, environmentID, queueName, receiptHandle, timeout); err != nil {
		return apperr.Wrap(apperr.InternalError, "changing message visibility", err)
	}
	return nil
}
