package docstore_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/docvault/internal/config"
	"github.com/dharsanguruparan/docvault/internal/docstore"
	"github.com/dharsanguruparan/docvault/internal/model"
)

func newClient(t *testing.T, h http.Handler, threshold int) *docstore.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return docstore.New(config.DocumentStoreConfig{
		BaseURL:          srv.URL + "/api/",
		Timeout:          time.Second,
		BreakerThreshold: threshold,
		BreakerReset:     time.Minute,
	}, srv.Client(), nil)
}

func TestFetchFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/document/12", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(model.Document{ID: 12, Title: "Quarterly report"})
	})
	c := newClient(t, mux, 5)

	res := c.Fetch(context.Background(), 12)
	require.Equal(t, docstore.Found, res.Status)
	assert.Equal(t, "Quarterly report", res.Document.Title)
	assert.Nil(t, res.Document.OcrText)
}

func TestFetchNotFoundNeverTripsBreaker(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}), 2)

	for i := 0; i < 5; i++ {
		res := c.Fetch(context.Background(), 99)
		assert.Equal(t, docstore.NotFound, res.Status)
		assert.NoError(t, res.Err)
	}
	assert.EqualValues(t, 5, calls.Load())
}

func TestFetchServerErrorIsTransientAndTripsBreaker(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "database down", http.StatusInternalServerError)
	}), 2)

	for i := 0; i < 2; i++ {
		res := c.Fetch(context.Background(), 1)
		assert.Equal(t, docstore.Transient, res.Status)
		assert.ErrorIs(t, res.Err, docstore.ErrUnexpectedStatus)
	}
	res := c.Fetch(context.Background(), 1)
	assert.Equal(t, docstore.Transient, res.Status)
	assert.ErrorIs(t, res.Err, gobreaker.ErrOpenState)
	assert.EqualValues(t, 2, calls.Load())
}

func TestWithoutBreakerKeepsSending(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "database down", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	c := docstore.New(config.DocumentStoreConfig{
		BaseURL:          srv.URL + "/api",
		Timeout:          time.Second,
		BreakerThreshold: 2,
		BreakerReset:     time.Minute,
	}, srv.Client(), nil, docstore.WithoutBreaker())

	for i := 0; i < 6; i++ {
		res := c.Fetch(context.Background(), 1)
		assert.Equal(t, docstore.Transient, res.Status)
		assert.ErrorIs(t, res.Err, docstore.ErrUnexpectedStatus)
		assert.NotErrorIs(t, res.Err, gobreaker.ErrOpenState)
	}
	assert.EqualValues(t, 6, calls.Load())
}

func TestPersistSendsDocument(t *testing.T) {
	var got model.Document
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/document/7", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	})
	c := newClient(t, mux, 5)

	doc := &model.Document{ID: 7, Title: "Scanned letter"}
	doc.SetOcrText("Dear Sir | Madam", time.Date(2024, 11, 18, 10, 0, 0, 0, time.UTC))
	require.NoError(t, c.Persist(context.Background(), doc))
	require.NotNil(t, got.OcrText)
	assert.Equal(t, "Dear Sir | Madam", *got.OcrText)
	assert.NotNil(t, got.UpdatedAt)
}

func TestPersistNotFound(t *testing.T) {
	c := newClient(t, http.NotFoundHandler(), 5)
	err := c.Persist(context.Background(), &model.Document{ID: 3})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCreateListSearchDelete(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/document", func(w http.ResponseWriter, r *http.Request) {
		var doc model.Document
		require.NoError(t, json.NewDecoder(r.Body).Decode(&doc))
		doc.ID = 41
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(doc)
	})
	mux.HandleFunc("GET /api/document", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]model.Document{{ID: 1, Title: "First doc"}, {ID: 2, Title: "Second doc"}})
	})
	mux.HandleFunc("GET /api/document/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tax return", r.URL.Query().Get("q"))
		_ = json.NewEncoder(w).Encode([]model.Document{{ID: 2, Title: "Second doc"}})
	})
	mux.HandleFunc("DELETE /api/document/2", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	c := newClient(t, mux, 5)
	ctx := context.Background()

	created, err := c.Create(ctx, &model.Document{Title: "New upload", FilePath: "abc/new.pdf"})
	require.NoError(t, err)
	assert.Equal(t, 41, created.ID)
	assert.Equal(t, "abc/new.pdf", created.FilePath)

	docs, err := c.List(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	found, err := c.Search(ctx, "tax return")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, 2, found[0].ID)

	require.NoError(t, c.Delete(ctx, 2))
}

func TestFetchStatusString(t *testing.T) {
	assert.Equal(t, "found", docstore.Found.String())
	assert.Equal(t, "not_found", docstore.NotFound.String())
	assert.Equal(t, "transient", docstore.Transient.String())
}
