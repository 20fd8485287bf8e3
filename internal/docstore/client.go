// Package docstore is the HTTP client for the document store service.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dharsanguruparan/docvault/internal/config"
	"github.com/dharsanguruparan/docvault/internal/logging"
	"github.com/dharsanguruparan/docvault/internal/model"
)

// ErrUnexpectedStatus wraps non-2xx responses other than 404.
var ErrUnexpectedStatus = errors.New("unexpected document store status")

// FetchStatus classifies the outcome of a fetch.
type FetchStatus int

const (
	Found FetchStatus = iota
	NotFound
	Transient
)

func (s FetchStatus) String() string {
	switch s {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	default:
		return "transient"
	}
}

// FetchResult is the outcome of Fetch. Document is set only when Status is
// Found; Err only when Status is Transient.
type FetchResult struct {
	Status   FetchStatus
	Document *model.Document
	Err      error
}

// Client talks to the document store over HTTP, by default through a circuit
// breaker. A 404 is an answer, not a failure, and never trips the breaker.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*options)

type options struct {
	noBreaker bool
}

// WithoutBreaker sends every call straight to the store. Callers that bound
// their own retries, like the result reconciler, use it so another caller's
// failures never spend their attempts.
func WithoutBreaker() Option {
	return func(o *options) { o.noBreaker = true }
}

// New builds a Client from the document store config. httpClient may be nil.
func New(cfg config.DocumentStoreConfig, httpClient *http.Client, logger *slog.Logger, opts ...Option) *Client {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	logger = logging.Component(logger, "docstore")
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
	if !o.noBreaker {
		c.breaker = newBreaker(cfg, logger)
	}
	return c
}

func newBreaker(cfg config.DocumentStoreConfig, logger *slog.Logger) *gobreaker.CircuitBreaker {
	threshold := cfg.BreakerThreshold
	if threshold <= 0 {
		threshold = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "document-store",
		MaxRequests: 1,
		Timeout:     cfg.BreakerReset,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, model.ErrNotFound)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("document store circuit breaker state changed",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
}

// Fetch loads a document and classifies the outcome.
func (c *Client) Fetch(ctx context.Context, id int) FetchResult {
	doc, err := c.Get(ctx, id)
	switch {
	case err == nil:
		return FetchResult{Status: Found, Document: doc}
	case errors.Is(err, model.ErrNotFound):
		return FetchResult{Status: NotFound}
	default:
		return FetchResult{Status: Transient, Err: err}
	}
}

// Get returns the document or an error wrapping model.ErrNotFound.
func (c *Client) Get(ctx context.Context, id int) (*model.Document, error) {
	var doc model.Document
	if err := c.do(ctx, http.MethodGet, c.documentURL(id), nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Persist writes doc back with PUT.
func (c *Client) Persist(ctx context.Context, doc *model.Document) error {
	return c.do(ctx, http.MethodPut, c.documentURL(doc.ID), doc, nil)
}

// Create stores a new document and returns it with its assigned id.
func (c *Client) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	var created model.Document
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/document", doc, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// List returns every document.
func (c *Client) List(ctx context.Context) ([]model.Document, error) {
	var docs []model.Document
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/document", nil, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// Search runs a full-text query over titles and OCR text.
func (c *Client) Search(ctx context.Context, query string) ([]model.Document, error) {
	var docs []model.Document
	u := c.baseURL + "/document/search?q=" + url.QueryEscape(query)
	if err := c.do(ctx, http.MethodGet, u, nil, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// Delete removes a document.
func (c *Client) Delete(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, c.documentURL(id), nil, nil)
}

func (c *Client) documentURL(id int) string {
	return c.baseURL + "/document/" + strconv.Itoa(id)
}

func (c *Client) do(ctx context.Context, method, u string, in, out any) error {
	if c.breaker == nil {
		return c.roundTrip(ctx, method, u, in, out)
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, u, in, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s %s: %w", method, u, err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, u string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, u, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("document store request",
		slog.String("method", method),
		slog.String("url", u),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(started)))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, u, model.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: %w %d: %s", method, u, ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
