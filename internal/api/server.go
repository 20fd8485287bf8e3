// Package api is the public HTTP surface: uploads are stored, recorded in the
// document store and handed to the OCR worker over the file queue.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dharsanguruparan/docvault/internal/config"
	"github.com/dharsanguruparan/docvault/internal/logging"
	"github.com/dharsanguruparan/docvault/internal/model"
	"github.com/dharsanguruparan/docvault/internal/server"
	"github.com/dharsanguruparan/docvault/internal/signing"
)

// DocumentStore is the subset of the document store client the API uses.
type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)
	Get(ctx context.Context, id int) (*model.Document, error)
	List(ctx context.Context) ([]model.Document, error)
	Search(ctx context.Context, query string) ([]model.Document, error)
	Delete(ctx context.Context, id int) error
}

// Dispatcher hands a stored file to the OCR worker.
type Dispatcher interface {
	PublishFileForProcessing(ctx context.Context, documentID int, fileRef string) error
}

// signedFiles is implemented by file stores whose downloads are served by
// the API behind signed links.
type signedFiles interface {
	Verify(documentID int, expires, signature string) error
	Path(ref string) (string, error)
}

// Server exposes HTTP endpoints for uploads and document visibility.
type Server struct {
	cfg        *config.Config
	docs       DocumentStore
	files      FileStore
	dispatcher Dispatcher
	logger     *slog.Logger
}

// New constructs a Server.
func New(cfg *config.Config, docs DocumentStore, files FileStore, dispatcher Dispatcher, logger *slog.Logger) *Server {
	return &Server{
		cfg:        cfg,
		docs:       docs,
		files:      files,
		dispatcher: dispatcher,
		logger:     logging.Component(logger, "api"),
	}
}

// Routes returns the API handler with CORS and request logging applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", server.Health)
	mux.HandleFunc("GET /documents", s.handleList)
	mux.HandleFunc("POST /documents", s.handleUpload)
	mux.HandleFunc("GET /documents/search", s.handleSearch)
	mux.HandleFunc("GET /documents/{id}", s.handleDocument)
	mux.HandleFunc("DELETE /documents/{id}", s.handleDelete)
	mux.HandleFunc("GET /documents/{id}/text", s.handleDocumentText)
	mux.HandleFunc("GET /documents/{id}/download-url", s.handleDownloadURL)
	mux.HandleFunc("GET /documents/{id}/download", s.handleDownload)
	return server.CORS(server.Logging(s.logger, mux))
}

// Run serves the API until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return server.Run(ctx, s.cfg.Address, s.Routes(), s.logger)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	docs, err := s.docs.List(r.Context())
	if err != nil {
		s.storeError(w, "list documents", err)
		return
	}
	server.RespondJSON(w, http.StatusOK, docs)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		server.RespondError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	docs, err := s.docs.Search(r.Context(), q)
	if err != nil {
		s.storeError(w, "search documents", err)
		return
	}
	server.RespondJSON(w, http.StatusOK, docs)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	server.RespondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := s.docs.Delete(r.Context(), doc.ID); err != nil {
		s.storeError(w, "delete document", err)
		return
	}
	if doc.FilePath != "" {
		if err := s.files.Remove(r.Context(), doc.FilePath); err != nil {
			s.logger.Warn("remove stored file", slog.Int("document_id", doc.ID), slog.Any("error", err))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDocumentText(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if !doc.HasOcrText() {
		server.RespondJSON(w, http.StatusAccepted, map[string]any{"id": doc.ID, "status": "processing"})
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, *doc.OcrText)
}

func (s *Server) handleDownloadURL(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if doc.FilePath == "" {
		server.RespondError(w, http.StatusNotFound, "document has no stored file")
		return
	}
	url, err := s.files.DownloadURL(r.Context(), doc)
	if err != nil {
		s.logger.Error("download url", slog.Int("document_id", doc.ID), slog.Any("error", err))
		server.RespondError(w, http.StatusInternalServerError, "failed to generate url")
		return
	}
	server.RespondJSON(w, http.StatusOK, map[string]string{"url": url})
}

// handleDownload serves files from the shared upload directory behind a
// signed link. Object storage downloads go straight to the presigned URL.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	files, ok := s.files.(signedFiles)
	if !ok {
		http.NotFound(w, r)
		return
	}
	id, ok := server.PathID(r)
	if !ok {
		server.RespondError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	q := r.URL.Query()
	if err := files.Verify(id, q.Get("expires"), q.Get("signature")); err != nil {
		status := http.StatusForbidden
		if errors.Is(err, signing.ErrExpired) {
			status = http.StatusGone
		}
		server.RespondError(w, status, err.Error())
		return
	}
	doc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	p, err := files.Path(doc.FilePath)
	if err != nil {
		server.RespondError(w, http.StatusNotFound, "document has no stored file")
		return
	}
	http.ServeFile(w, r, p)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileSize+1<<20)
	form, err := s.readForm(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.Is(err, errTooLarge) || errors.As(err, &maxErr) {
			server.RespondError(w, http.StatusRequestEntityTooLarge, "file exceeds size limit")
			return
		}
		server.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	tmp := form.file
	defer tmp.cleanup()

	doc := &model.Document{Title: form.title}
	if err := doc.Validate(); err != nil {
		server.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.allowed(tmp.contentType) {
		server.RespondError(w, http.StatusUnsupportedMediaType, "unsupported file type "+tmp.contentType)
		return
	}

	ref, err := s.files.Save(ctx, tmp.filename, tmp.f, tmp.size, tmp.contentType)
	if err != nil {
		s.logger.Error("store upload", slog.String("filename", tmp.filename), slog.Any("error", err))
		server.RespondError(w, http.StatusInternalServerError, "failed to store file")
		return
	}
	doc.FilePath = ref
	created, err := s.docs.Create(ctx, doc)
	if err != nil {
		if rmErr := s.files.Remove(ctx, ref); rmErr != nil {
			s.logger.Warn("remove orphaned upload", slog.String("ref", ref), slog.Any("error", rmErr))
		}
		s.storeError(w, "create document", err)
		return
	}
	logger := s.logger.With(slog.Int("document_id", created.ID))
	if err := s.dispatcher.PublishFileForProcessing(ctx, created.ID, ref); err != nil {
		logger.Error("dispatch for ocr", slog.Any("error", err))
		server.RespondJSON(w, http.StatusBadGateway, map[string]any{
			"id":    created.ID,
			"error": "document stored but could not be queued for processing",
		})
		return
	}
	logger.Info("document queued", slog.Int64("bytes", tmp.size), slog.String("content_type", tmp.contentType))
	server.RespondJSON(w, http.StatusAccepted, map[string]any{
		"id":     created.ID,
		"status": "queued",
	})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*model.Document, bool) {
	id, ok := server.PathID(r)
	if !ok {
		server.RespondError(w, http.StatusBadRequest, "invalid document id")
		return nil, false
	}
	doc, err := s.docs.Get(r.Context(), id)
	if err != nil {
		s.storeError(w, "get document", err)
		return nil, false
	}
	return doc, true
}

func (s *Server) storeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, model.ErrNotFound) {
		server.RespondError(w, http.StatusNotFound, "document not found")
		return
	}
	s.logger.Error(op, slog.Any("error", err))
	server.RespondError(w, http.StatusBadGateway, "document store unavailable")
}
