package storage

import (
	"context"
	"encoding/json"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"github.com/LucasAro/JuscashCase/domain"
)

// StatusChangedEvent is the message type published for committed moves.
const StatusChangedEvent = "publication.status_changed"

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// EventQueue publishes status changes for downstream consumers.
type EventQueue struct {
	queue queueClient
}

// NewEventQueue connects to the named queue.
func NewEventQueue(connStr, queue string) (*EventQueue, error) {
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queue, queueClientOptions())
	if err != nil {
		return nil, err
	}
	return &EventQueue{queue: q}, nil
}

type eventEnvelope struct {
	Type string              `json:"type"`
	Data domain.StatusChange `json:"data"`
}

// Record enqueues one change.
func (q *EventQueue) Record(ctx context.Context, ch domain.StatusChange) error {
	data, err := json.Marshal(eventEnvelope{Type: StatusChangedEvent, Data: ch})
	if err != nil {
		return err
	}
	_, err = q.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}
