package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type memoryPoint struct {
	vector   []float32
	content  string
	metadata map[string]string
}

type memoryCollection struct {
	dimension int
	points    map[uuid.UUID]memoryPoint
}

// Memory is an in-process Store used for development and tests. All data is
// lost on shutdown.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memoryCollection)}
}

// CreateCollectionIfNotExists implements Store.
func (m *Memory) CreateCollectionIfNotExists(_ context.Context, collection string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrDimensionMismatch, dimension)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[collection]; ok {
		return nil
	}
	m.collections[collection] = &memoryCollection{
		dimension: dimension,
		points:    make(map[uuid.UUID]memoryPoint),
	}
	return nil
}

// CollectionExists implements Store.
func (m *Memory) CollectionExists(_ context.Context, collection string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.collections[collection]
	return ok, nil
}

// DeleteCollection implements Store.
func (m *Memory) DeleteCollection(_ context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.collections, collection)
	return nil
}

// UpsertPoints implements Store.
func (m *Memory) UpsertPoints(_ context.Context, collection string, ids []uuid.UUID, vectors [][]float32, contents []string, metadata []map[string]string) error {
	if len(ids) != len(vectors) || len(ids) != len(contents) || (metadata != nil && len(ids) != len(metadata)) {
		return fmt.Errorf("%w: ids=%d vectors=%d contents=%d metadata=%d",
			ErrLengthMismatch, len(ids), len(vectors), len(contents), len(metadata))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	col, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	for i, vec := range vectors {
		if len(vec) != col.dimension {
			return fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrDimensionMismatch, i, len(vec), col.dimension)
		}
	}

	for i, id := range ids {
		var meta map[string]string
		if metadata != nil {
			meta = metadata[i]
		}
		col.points[id] = memoryPoint{
			vector:   vectors[i],
			content:  contents[i],
			metadata: meta,
		}
	}
	return nil
}

// Search implements Store.
func (m *Memory) Search(_ context.Context, collection string, vector []float32, topK int, minScore float32) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	col, ok := m.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	if len(vector) != col.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, want %d", ErrDimensionMismatch, len(vector), col.dimension)
	}

	results := make([]SearchResult, 0, len(col.points))
	for id, point := range col.points {
		score := cosineSimilarity(vector, point.vector)
		if score < minScore {
			continue
		}
		results = append(results, SearchResult{
			PointID:  id,
			Score:    score,
			Content:  point.content,
			Metadata: point.metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		// Stable order for equal scores.
		return results[i].PointID.String() < results[j].PointID.String()
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// DeletePoints implements Store.
func (m *Memory) DeletePoints(_ context.Context, collection string, ids []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	col, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	for _, id := range ids {
		delete(col.points, id)
	}
	return nil
}

// CountPoints implements Store.
func (m *Memory) CountPoints(_ context.Context, collection string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	col, ok := m.collections[collection]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	return int64(len(col.points)), nil
}

// cosineSimilarity returns the cosine of the angle between a and b. For the
// unit vectors produced by the embedding providers this lands in [0, 1].
func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
