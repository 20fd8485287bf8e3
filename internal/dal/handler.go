// Package dal is the document store service: JSON CRUD and search over the
// documents table, with search indexing handed off to a background queue.
package dal

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dharsanguruparan/docvault/internal/logging"
	"github.com/dharsanguruparan/docvault/internal/model"
	"github.com/dharsanguruparan/docvault/internal/server"
)

const maxBodyBytes = 1 << 20

// Repository persists documents. Missing documents are reported with an
// error wrapping model.ErrNotFound.
type Repository interface {
	Create(ctx context.Context, doc *model.Document) error
	Get(ctx context.Context, id int) (*model.Document, error)
	List(ctx context.Context) ([]model.Document, error)
	Update(ctx context.Context, doc *model.Document) error
	Delete(ctx context.Context, id int) error
	Search(ctx context.Context, query string) ([]model.Document, error)
}

// Indexer schedules a search index refresh for a document.
type Indexer interface {
	Index(ctx context.Context, documentID int) error
}

// NopIndexer is used with stores that search without an index.
type NopIndexer struct{}

func (NopIndexer) Index(context.Context, int) error { return nil }

// Handler serves the /api/document routes.
type Handler struct {
	repo    Repository
	indexer Indexer
	logger  *slog.Logger
}

// NewHandler builds a Handler. A nil indexer disables indexing.
func NewHandler(repo Repository, indexer Indexer, logger *slog.Logger) *Handler {
	if indexer == nil {
		indexer = NopIndexer{}
	}
	return &Handler{repo: repo, indexer: indexer, logger: logging.Component(logger, "dal")}
}

// Routes returns the service's HTTP handler.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", server.Health)
	mux.HandleFunc("GET /api/document", h.handleList)
	mux.HandleFunc("POST /api/document", h.handleCreate)
	mux.HandleFunc("GET /api/document/search", h.handleSearch)
	mux.HandleFunc("GET /api/document/{id}", h.handleGet)
	mux.HandleFunc("PUT /api/document/{id}", h.handleUpdate)
	mux.HandleFunc("DELETE /api/document/{id}", h.handleDelete)
	return server.Logging(h.logger, mux)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	docs, err := h.repo.List(r.Context())
	if err != nil {
		h.fail(w, "list documents", err)
		return
	}
	server.RespondJSON(w, http.StatusOK, docs)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := server.PathID(r)
	if !ok {
		server.RespondError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	doc, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get document", err)
		return
	}
	server.RespondJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var doc model.Document
	if !decode(w, r, &doc) {
		return
	}
	if err := doc.Validate(); err != nil {
		server.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	doc.ID = 0
	if err := h.repo.Create(r.Context(), &doc); err != nil {
		h.fail(w, "create document", err)
		return
	}
	h.index(r.Context(), doc.ID)
	server.RespondJSON(w, http.StatusCreated, doc)
}

// handleUpdate copies title, OCR text and the update time onto the stored
// record. Other fields keep their stored values.
func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := server.PathID(r)
	if !ok {
		server.RespondError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	var in model.Document
	if !decode(w, r, &in) {
		return
	}
	existing, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get document", err)
		return
	}
	if strings.TrimSpace(in.Title) != "" {
		existing.Title = in.Title
	}
	existing.OcrText = in.OcrText
	existing.UpdatedAt = in.UpdatedAt
	if err := h.repo.Update(r.Context(), existing); err != nil {
		h.fail(w, "update document", err)
		return
	}
	h.index(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := server.PathID(r)
	if !ok {
		server.RespondError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	if err := h.repo.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete document", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		server.RespondError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	docs, err := h.repo.Search(r.Context(), q)
	if err != nil {
		h.fail(w, "search documents", err)
		return
	}
	server.RespondJSON(w, http.StatusOK, docs)
}

// index failures are logged only; the record itself is already stored.
func (h *Handler) index(ctx context.Context, id int) {
	if err := h.indexer.Index(ctx, id); err != nil {
		h.logger.Warn("schedule index", slog.Int("document_id", id), slog.Any("error", err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, model.ErrNotFound) {
		server.RespondError(w, http.StatusNotFound, "document not found")
		return
	}
	h.logger.Error(op, slog.Any("error", err))
	server.RespondError(w, http.StatusInternalServerError, "internal error")
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		server.RespondError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
