package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/docvault/internal/model"
	"github.com/dharsanguruparan/docvault/internal/queue"
)

type fakeReindexer struct {
	ids []int
	err error
}

func (f *fakeReindexer) Reindex(_ context.Context, id int) error {
	f.ids = append(f.ids, id)
	return f.err
}

func TestHandleIndex(t *testing.T) {
	repo := &fakeReindexer{}
	p := NewProcessor(repo, nil)
	task, err := queue.NewIndexTask(17)
	require.NoError(t, err)

	require.NoError(t, p.Handler().ProcessTask(context.Background(), task))
	assert.Equal(t, []int{17}, repo.ids)
}

func TestHandleIndexMissingDocumentSkipsRetry(t *testing.T) {
	repo := &fakeReindexer{err: fmt.Errorf("reindex document 3: %w", model.ErrNotFound)}
	task, err := queue.NewIndexTask(3)
	require.NoError(t, err)

	err = NewProcessor(repo, nil).HandleIndex(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleIndexTransientErrorRetries(t *testing.T) {
	boom := errors.New("connection reset")
	task, err := queue.NewIndexTask(3)
	require.NoError(t, err)

	err = NewProcessor(&fakeReindexer{err: boom}, nil).HandleIndex(context.Background(), task)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleIndexBadPayload(t *testing.T) {
	repo := &fakeReindexer{}
	err := NewProcessor(repo, nil).HandleIndex(context.Background(), asynq.NewTask(queue.IndexDocumentTask, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, repo.ids)
}
