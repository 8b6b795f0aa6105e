package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Postgres is a Store backed by the pgvector extension. Collections are rows
// in vector_collections; points live in vector_points with an ON DELETE
// CASCADE foreign key, so dropping a collection removes its points.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres creates a pgvector-backed store on top of an existing pool.
func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, logger: logger}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// CreateCollectionIfNotExists implements Store.
func (p *Postgres) CreateCollectionIfNotExists(ctx context.Context, collection string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrDimensionMismatch, dimension)
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO vector_collections (name, dimension)
		VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING`,
		collection, dimension)
	if err != nil {
		return storeErr("create collection", err)
	}
	return nil
}

// CollectionExists implements Store.
func (p *Postgres) CollectionExists(ctx context.Context, collection string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM vector_collections WHERE name = $1)`,
		collection).Scan(&exists)
	if err != nil {
		return false, storeErr("collection exists", err)
	}
	return exists, nil
}

// DeleteCollection implements Store.
func (p *Postgres) DeleteCollection(ctx context.Context, collection string) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM vector_collections WHERE name = $1`, collection)
	if err != nil {
		return storeErr("delete collection", err)
	}
	return nil
}

func (p *Postgres) collectionDimension(ctx context.Context, collection string) (int, error) {
	var dimension int
	err := p.pool.QueryRow(ctx,
		`SELECT dimension FROM vector_collections WHERE name = $1`,
		collection).Scan(&dimension)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	if err != nil {
		return 0, storeErr("lookup collection", err)
	}
	return dimension, nil
}

// UpsertPoints implements Store.
func (p *Postgres) UpsertPoints(ctx context.Context, collection string, ids []uuid.UUID, vectors [][]float32, contents []string, metadata []map[string]string) error {
	if len(ids) != len(vectors) || len(ids) != len(contents) || (metadata != nil && len(ids) != len(metadata)) {
		return fmt.Errorf("%w: ids=%d vectors=%d contents=%d metadata=%d",
			ErrLengthMismatch, len(ids), len(vectors), len(contents), len(metadata))
	}
	if len(ids) == 0 {
		return nil
	}

	dimension, err := p.collectionDimension(ctx, collection)
	if err != nil {
		return err
	}
	for i, vec := range vectors {
		if len(vec) != dimension {
			return fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrDimensionMismatch, i, len(vec), dimension)
		}
	}

	batch := &pgx.Batch{}
	for i, id := range ids {
		var meta map[string]string
		if metadata != nil {
			meta = metadata[i]
		}
		batch.Queue(`
			INSERT INTO vector_points (id, collection_name, embedding, content, metadata)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				embedding = EXCLUDED.embedding,
				content = EXCLUDED.content,
				metadata = EXCLUDED.metadata`,
			id, collection, pgvector.NewVector(vectors[i]), contents[i], meta)
	}

	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range ids {
		if _, err := results.Exec(); err != nil {
			return storeErr("upsert points", err)
		}
	}

	p.logger.Debug("upserted points", "collection", collection, "count", len(ids))
	return nil
}

// Search implements Store. Cosine similarity is computed as 1 minus the
// <=> cosine distance operator.
func (p *Postgres) Search(ctx context.Context, collection string, vector []float32, topK int, minScore float32) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}

	dimension, err := p.collectionDimension(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, want %d", ErrDimensionMismatch, len(vector), dimension)
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, 1 - (embedding <=> $1) AS score, content, metadata
		FROM vector_points
		WHERE collection_name = $2
		  AND 1 - (embedding <=> $1) >= $3
		ORDER BY score DESC
		LIMIT $4`,
		pgvector.NewVector(vector), collection, minScore, topK)
	if err != nil {
		return nil, storeErr("search", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.PointID, &r.Score, &r.Content, &r.Metadata); err != nil {
			return nil, storeErr("scan search result", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("search rows", err)
	}
	return results, nil
}

// DeletePoints implements Store.
func (p *Postgres) DeletePoints(ctx context.Context, collection string, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := p.pool.Exec(ctx, `
		DELETE FROM vector_points
		WHERE collection_name = $1 AND id = ANY($2)`,
		collection, ids)
	if err != nil {
		return storeErr("delete points", err)
	}
	return nil
}

// CountPoints implements Store.
func (p *Postgres) CountPoints(ctx context.Context, collection string) (int64, error) {
	var count int64
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM vector_points WHERE collection_name = $1`,
		collection).Scan(&count)
	if err != nil {
		return 0, storeErr("count points", err)
	}
	return count, nil
}
