package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"prism-todo/domain"
)

type messageQueue interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// EventQueue publishes todo change events to an Azure storage queue.
type EventQueue struct {
	queue messageQueue
}

// NewEventQueue connects to the named queue.
func NewEventQueue(connStr, queueName string) (*EventQueue, error) {
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &EventQueue{queue: q}, nil
}

// PublishEvents sends the events in order, stopping at the first failure.
func (q *EventQueue) PublishEvents(ctx context.Context, events []domain.TodoEvent) error {
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := q.queue.EnqueueMessage(ctx, string(data), nil); err != nil {
			return err
		}
	}
	return nil
}
