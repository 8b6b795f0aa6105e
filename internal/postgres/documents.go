package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"ragserver/internal/document"
)

const documentColumns = `id, title, content, description, category, active, processed, chunk_count, created_at, updated_at`

func scanDocument(row pgx.Row) (document.Document, error) {
	var d document.Document
	err := row.Scan(&d.ID, &d.Title, &d.Content, &d.Description, &d.Category, &d.Active, &d.Processed, &d.ChunkCount, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

// InsertDocument implements document.Querier.
func (q *Queries) InsertDocument(ctx context.Context, arg document.InsertDocumentParams) (document.Document, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO chat_documents (title, content, description, category, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+documentColumns,
		arg.Title, arg.Content, arg.Description, arg.Category, arg.Active)
	return scanDocument(row)
}

// GetDocument implements document.Querier.
func (q *Queries) GetDocument(ctx context.Context, id uuid.UUID) (document.Document, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM chat_documents WHERE id = $1`, id)

	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return document.Document{}, fmt.Errorf("%w: %s", document.ErrNotFound, id)
	}
	return doc, err
}

func (q *Queries) listDocuments(ctx context.Context, query string, args ...any) ([]document.Document, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []document.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ListDocuments implements document.Querier.
func (q *Queries) ListDocuments(ctx context.Context) ([]document.Document, error) {
	return q.listDocuments(ctx,
		`SELECT `+documentColumns+` FROM chat_documents ORDER BY created_at, id`)
}

// ListActiveDocuments implements document.Querier.
func (q *Queries) ListActiveDocuments(ctx context.Context) ([]document.Document, error) {
	return q.listDocuments(ctx,
		`SELECT `+documentColumns+` FROM chat_documents WHERE active ORDER BY created_at, id`)
}

// UpdateDocument implements document.Querier.
func (q *Queries) UpdateDocument(ctx context.Context, arg document.UpdateDocumentParams) (document.Document, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE chat_documents
		SET title = $2, content = $3, description = $4, category = $5, active = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING `+documentColumns,
		arg.ID, arg.Title, arg.Content, arg.Description, arg.Category, arg.Active)

	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return document.Document{}, fmt.Errorf("%w: %s", document.ErrNotFound, arg.ID)
	}
	return doc, err
}

// DeleteDocument implements document.Querier.
func (q *Queries) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM chat_documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", document.ErrNotFound, id)
	}
	return nil
}

// SetDocumentActive implements document.Querier.
func (q *Queries) SetDocumentActive(ctx context.Context, id uuid.UUID, active bool) (document.Document, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE chat_documents SET active = $2, updated_at = NOW() WHERE id = $1
		RETURNING `+documentColumns,
		id, active)

	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return document.Document{}, fmt.Errorf("%w: %s", document.ErrNotFound, id)
	}
	return doc, err
}

// SetDocumentProcessed implements document.Querier.
func (q *Queries) SetDocumentProcessed(ctx context.Context, id uuid.UUID, processed bool, chunkCount int) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE chat_documents SET processed = $2, chunk_count = $3, updated_at = NOW() WHERE id = $1`,
		id, processed, chunkCount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", document.ErrNotFound, id)
	}
	return nil
}

const chunkColumns = `id, document_id, chunk_index, content, token_count, vector_point_id, created_at`

// InsertChunk implements document.Querier.
func (q *Queries) InsertChunk(ctx context.Context, arg document.InsertChunkParams) (document.Chunk, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO chat_document_chunks (document_id, chunk_index, content, token_count, vector_point_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+chunkColumns,
		arg.DocumentID, arg.ChunkIndex, arg.Content, arg.TokenCount, arg.VectorPointID)

	var c document.Chunk
	err := row.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.TokenCount, &c.VectorPointID, &c.CreatedAt)
	return c, err
}

// ListChunks implements document.Querier.
func (q *Queries) ListChunks(ctx context.Context, documentID uuid.UUID) ([]document.Chunk, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+chunkColumns+`
		FROM chat_document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index`,
		documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []document.Chunk
	for rows.Next() {
		var c document.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.TokenCount, &c.VectorPointID, &c.CreatedAt); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// DeleteChunks implements document.Querier.
func (q *Queries) DeleteChunks(ctx context.Context, documentID uuid.UUID) error {
	_, err := q.db.Exec(ctx,
		`DELETE FROM chat_document_chunks WHERE document_id = $1`, documentID)
	return err
}

// WithTx implements document.Querier.
func (q *Queries) WithTx(tx pgx.Tx) document.Querier {
	return q.withTx(tx)
}
