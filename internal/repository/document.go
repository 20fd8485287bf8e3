package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/docvault/internal/model"
)

// DocumentRepository wraps all SQL used by the document store.
type DocumentRepository struct {
	pool *pgxpool.Pool
}

// NewDocumentRepository constructs a repository.
func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

const documentColumns = `id, title, COALESCE(content,''), COALESCE(file_path,''), ocr_text, created_at, updated_at`

// Create inserts a document and fills in its id and creation time.
func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO documents (title, content, file_path, ocr_text, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, doc.Title, doc.Content, doc.FilePath, doc.OcrText, doc.CreatedAt, doc.UpdatedAt)
	if err := row.Scan(&doc.ID); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// Get returns a document by id.
func (r *DocumentRepository) Get(ctx context.Context, id int) (*model.Document, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document %d: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("select document: %w", err)
	}
	return doc, nil
}

// List returns every document, newest first.
func (r *DocumentRepository) List(ctx context.Context) ([]model.Document, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return collect(rows)
}

// Update overwrites the mutable fields. The last writer wins.
func (r *DocumentRepository) Update(ctx context.Context, doc *model.Document) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET title=$1,
			content=$2,
			file_path=$3,
			ocr_text=$4,
			updated_at=$5
		WHERE id=$6
	`, doc.Title, doc.Content, doc.FilePath, doc.OcrText, doc.UpdatedAt, doc.ID)
	return affected(tag, err, "update", doc.ID)
}

// Delete removes a document.
func (r *DocumentRepository) Delete(ctx context.Context, id int) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id=$1`, id)
	return affected(tag, err, "delete", id)
}

// Search ranks documents whose title or OCR text match query.
func (r *DocumentRepository) Search(ctx context.Context, query string) ([]model.Document, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE search_vector @@ plainto_tsquery('english', $1)
		ORDER BY ts_rank(search_vector, plainto_tsquery('english', $1)) DESC, id DESC
		LIMIT 100
	`, query)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	return collect(rows)
}

// Reindex recomputes the search vector from the title and OCR text.
func (r *DocumentRepository) Reindex(ctx context.Context, id int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET search_vector = to_tsvector('english', title || ' ' || COALESCE(ocr_text,''))
		WHERE id=$1
	`, id)
	return affected(tag, err, "reindex", id)
}

func affected(tag pgconn.CommandTag, err error, op string, id int) error {
	if err != nil {
		return fmt.Errorf("%s document: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %d: %w", id, model.ErrNotFound)
	}
	return nil
}

func scanDocument(row pgx.Row) (*model.Document, error) {
	var doc model.Document
	if err := row.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.FilePath, &doc.OcrText, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	return &doc, nil
}

func collect(rows pgx.Rows) ([]model.Document, error) {
	defer rows.Close()
	docs := []model.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}
