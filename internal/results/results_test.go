package results_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/docvault/internal/broker"
	"github.com/dharsanguruparan/docvault/internal/broker/brokertest"
	"github.com/dharsanguruparan/docvault/internal/config"
	"github.com/dharsanguruparan/docvault/internal/docstore"
	"github.com/dharsanguruparan/docvault/internal/model"
	"github.com/dharsanguruparan/docvault/internal/queue"
	"github.com/dharsanguruparan/docvault/internal/results"
)

type fakeStore struct {
	mu         sync.Mutex
	docs       map[int]*model.Document
	fetches    int
	persists   int
	persistErr error
	transient  int
	appearOn   int
}

func (s *fakeStore) Fetch(_ context.Context, id int) docstore.FetchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.fetches <= s.transient {
		return docstore.FetchResult{Status: docstore.Transient, Err: errors.New("connection refused")}
	}
	doc, ok := s.docs[id]
	if !ok || s.fetches < s.appearOn {
		return docstore.FetchResult{Status: docstore.NotFound}
	}
	cp := *doc
	return docstore.FetchResult{Status: docstore.Found, Document: &cp}
}

func (s *fakeStore) Persist(_ context.Context, doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persists++
	if s.persistErr != nil {
		return s.persistErr
	}
	cp := *doc
	s.docs[doc.ID] = &cp
	return nil
}

func (s *fakeStore) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches, s.persists
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

var fixedNow = time.Date(2024, 11, 18, 23, 32, 56, 0, time.UTC)

func newReconciler(store results.Store, sleeps *sleepRecorder) *results.Reconciler {
	return results.NewReconciler(store, config.Default().Reconcile,
		results.WithSleep(sleeps.Sleep),
		results.WithClock(func() time.Time { return fixedNow }),
	)
}

func TestReconcileFoundFirstAttempt(t *testing.T) {
	store := &fakeStore{docs: map[int]*model.Document{5: {ID: 5, Title: "Tax return"}}}
	sleeps := &sleepRecorder{}

	err := newReconciler(store, sleeps).Reconcile(context.Background(), 5, "Total | 1200")
	require.NoError(t, err)

	fetches, persists := store.counts()
	assert.Equal(t, 1, fetches)
	assert.Equal(t, 1, persists)
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, sleeps.recorded())
	require.NotNil(t, store.docs[5].OcrText)
	assert.Equal(t, "Total | 1200", *store.docs[5].OcrText)
	assert.Equal(t, fixedNow, *store.docs[5].UpdatedAt)
}

func TestReconcileNotFoundExhausts(t *testing.T) {
	store := &fakeStore{docs: map[int]*model.Document{}}
	sleeps := &sleepRecorder{}

	err := newReconciler(store, sleeps).Reconcile(context.Background(), 404, "text")
	assert.ErrorIs(t, err, results.ErrReconcileExhausted)
	assert.ErrorIs(t, err, model.ErrNotFound)

	fetches, persists := store.counts()
	assert.Equal(t, 3, fetches)
	assert.Zero(t, persists)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second, time.Second}, sleeps.recorded())
}

func TestReconcileRecordAppearsLate(t *testing.T) {
	store := &fakeStore{docs: map[int]*model.Document{8: {ID: 8, Title: "Late record"}}, appearOn: 3}
	sleeps := &sleepRecorder{}

	require.NoError(t, newReconciler(store, sleeps).Reconcile(context.Background(), 8, "found"))
	fetches, persists := store.counts()
	assert.Equal(t, 3, fetches)
	assert.Equal(t, 1, persists)
}

func TestReconcileRetriesTransientAndPersistErrors(t *testing.T) {
	store := &fakeStore{docs: map[int]*model.Document{2: {ID: 2, Title: "Flaky store"}}, transient: 1}
	sleeps := &sleepRecorder{}
	require.NoError(t, newReconciler(store, sleeps).Reconcile(context.Background(), 2, "ok"))
	fetches, _ := store.counts()
	assert.Equal(t, 2, fetches)

	failing := &fakeStore{docs: map[int]*model.Document{2: {ID: 2, Title: "Flaky store"}}, persistErr: errors.New("500")}
	err := newReconciler(failing, &sleepRecorder{}).Reconcile(context.Background(), 2, "ok")
	assert.ErrorIs(t, err, results.ErrReconcileExhausted)
	_, persists := failing.counts()
	assert.Equal(t, 3, persists)
}

func TestReconcileCancelled(t *testing.T) {
	store := &fakeStore{docs: map[int]*model.Document{}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newReconciler(store, &sleepRecorder{}).Reconcile(ctx, 1, "text")
	assert.ErrorIs(t, err, context.Canceled)
	fetches, _ := store.counts()
	assert.Zero(t, fetches)
}

func TestListenerOverAutoAckConsumer(t *testing.T) {
	store := &fakeStore{docs: map[int]*model.Document{
		1: {ID: 1, Title: "Pipe document"},
	}}
	listener := results.NewListener(newReconciler(store, &sleepRecorder{}), nil)

	ch := brokertest.NewChannel()
	consumer, err := broker.NewConsumer(brokertest.Provider{Ch: ch}, broker.ConsumerConfig{Queue: queue.ResultQueue, AutoAck: true}, listener, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	acks := []*brokertest.Acknowledger{
		ch.Deliver("garbage"),
		ch.Deliver("1|   "),
		ch.Deliver("77|nobody home"),
		ch.Deliver("1|a|b|c"),
	}
	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		doc := store.docs[1]
		return doc.OcrText != nil
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, "a|b|c", *store.docs[1].OcrText)
	for _, a := range acks {
		assert.Zero(t, a.Calls())
	}
	// 3 fetches for the missing document, 1 for the found one.
	fetches, persists := store.counts()
	assert.Equal(t, 4, fetches)
	assert.Equal(t, 1, persists)
}

func TestListenerDecisions(t *testing.T) {
	store := &fakeStore{docs: map[int]*model.Document{3: {ID: 3, Title: "Decision doc"}}}
	listener := results.NewListener(newReconciler(store, &sleepRecorder{}), nil)
	ctx := context.Background()

	assert.Equal(t, broker.Drop, listener.Handle(ctx, []byte("x")))
	assert.Equal(t, broker.Drop, listener.Handle(ctx, []byte("3|")))
	assert.Equal(t, broker.Drop, listener.Handle(ctx, []byte("4|missing")))
	assert.Equal(t, broker.Ack, listener.Handle(ctx, []byte("3|text")))
}
