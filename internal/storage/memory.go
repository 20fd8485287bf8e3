// Package storage contains the in-memory document store used when no
// database is configured.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dharsanguruparan/docvault/internal/model"
)

// MemoryStore keeps documents in a map guarded by an RWMutex. Ids are
// assigned sequentially from 1.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[int]*model.Document
	nextID int
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[int]*model.Document),
		nextID: 1,
	}
}

// Create inserts doc and assigns its id.
func (m *MemoryStore) Create(_ context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	doc.ID = m.nextID
	m.nextID++
	m.docs[doc.ID] = clone(doc)
	return nil
}

// Get returns a copy of the document.
func (m *MemoryStore) Get(_ context.Context, id int) (*model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %d: %w", id, model.ErrNotFound)
	}
	return clone(doc), nil
}

// List returns every document, newest first.
func (m *MemoryStore) List(_ context.Context) ([]model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sorted(func(*model.Document) bool { return true }), nil
}

// Update replaces the stored document.
func (m *MemoryStore) Update(_ context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.docs[doc.ID]
	if !ok {
		return fmt.Errorf("document %d: %w", doc.ID, model.ErrNotFound)
	}
	updated := clone(doc)
	updated.CreatedAt = existing.CreatedAt
	m.docs[doc.ID] = updated
	return nil
}

// Delete removes a document.
func (m *MemoryStore) Delete(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return fmt.Errorf("document %d: %w", id, model.ErrNotFound)
	}
	delete(m.docs, id)
	return nil
}

// Search matches every query word, case-insensitively, against the title and
// OCR text.
func (m *MemoryStore) Search(_ context.Context, query string) ([]model.Document, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return []model.Document{}, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sorted(func(doc *model.Document) bool {
		haystack := strings.ToLower(doc.Title)
		if doc.OcrText != nil {
			haystack += " " + strings.ToLower(*doc.OcrText)
		}
		for _, term := range terms {
			if !strings.Contains(haystack, term) {
				return false
			}
		}
		return true
	}), nil
}

func (m *MemoryStore) sorted(keep func(*model.Document) bool) []model.Document {
	out := []model.Document{}
	for _, doc := range m.docs {
		if keep(doc) {
			out = append(out, *clone(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func clone(doc *model.Document) *model.Document {
	cp := *doc
	if doc.OcrText != nil {
		text := *doc.OcrText
		cp.OcrText = &text
	}
	if doc.UpdatedAt != nil {
		ts := *doc.UpdatedAt
		cp.UpdatedAt = &ts
	}
	return &cp
}
