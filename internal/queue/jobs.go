package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// IndexDocumentTask is scheduled each time a document's searchable text changes.
	IndexDocumentTask = "document:index"
)

// IndexPayload is serialized into the task payload so the index worker knows
// which row to refresh.
type IndexPayload struct {
	DocumentID int `json:"document_id"`
}

// Enqueuer is the subset of *asynq.Client used to schedule tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewIndexTask builds the asynq task for a document.
func NewIndexTask(documentID int) (*asynq.Task, error) {
	data, err := json.Marshal(IndexPayload{DocumentID: documentID})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(IndexDocumentTask, data), nil
}

// DecodeIndexPayload reads the payload of an index task.
func DecodeIndexPayload(task *asynq.Task) (IndexPayload, error) {
	var payload IndexPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return IndexPayload{}, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}

// IndexEnqueuer schedules search index refreshes through asynq.
type IndexEnqueuer struct {
	client Enqueuer
}

// NewIndexEnqueuer wraps an asynq client.
func NewIndexEnqueuer(client Enqueuer) *IndexEnqueuer {
	return &IndexEnqueuer{client: client}
}

// Index enqueues an index refresh for the document.
func (e *IndexEnqueuer) Index(ctx context.Context, documentID int) error {
	task, err := NewIndexTask(documentID)
	if err != nil {
		return err
	}
	if _, err := e.client.EnqueueContext(ctx, task, asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue index task: %w", err)
	}
	return nil
}
