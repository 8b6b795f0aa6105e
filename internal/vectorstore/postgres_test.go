package vectorstore_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"

	"ragserver/internal/testutil"
	"ragserver/internal/vectorstore"
)

func pgUnitVector(cos float64) []float32 {
	return []float32{float32(cos), float32(math.Sqrt(1 - cos*cos))}
}

func TestPostgresStore(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := vectorstore.NewPostgres(db.Pool, testutil.Logger())

	t.Run("collection lifecycle", func(t *testing.T) {
		if err := store.CreateCollectionIfNotExists(ctx, "lifecycle", 2); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := store.CreateCollectionIfNotExists(ctx, "lifecycle", 2); err != nil {
			t.Fatalf("idempotent create: %v", err)
		}

		exists, err := store.CollectionExists(ctx, "lifecycle")
		if err != nil {
			t.Fatal(err)
		}
		if !exists {
			t.Fatal("collection missing after creation")
		}

		if err := store.DeleteCollection(ctx, "lifecycle"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		exists, err = store.CollectionExists(ctx, "lifecycle")
		if err != nil {
			t.Fatal(err)
		}
		if exists {
			t.Fatal("collection still exists after deletion")
		}
	})

	t.Run("upsert and search", func(t *testing.T) {
		if err := store.CreateCollectionIfNotExists(ctx, "search", 2); err != nil {
			t.Fatal(err)
		}

		high := uuid.New()
		low := uuid.New()
		err := store.UpsertPoints(ctx, "search",
			[]uuid.UUID{high, low},
			[][]float32{pgUnitVector(0.82), pgUnitVector(0.40)},
			[]string{"relevant", "unrelated"},
			[]map[string]string{{"documentId": "d1"}, {"documentId": "d2"}})
		if err != nil {
			t.Fatalf("UpsertPoints() error: %v", err)
		}

		results, err := store.Search(ctx, "search", pgUnitVector(1), 5, 0.5)
		if err != nil {
			t.Fatalf("Search() error: %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("Search() returned %d results, want 1", len(results))
		}
		if results[0].PointID != high {
			t.Errorf("PointID = %s, want %s", results[0].PointID, high)
		}
		if math.Abs(float64(results[0].Score)-0.82) > 1e-3 {
			t.Errorf("score = %f, want ~0.82", results[0].Score)
		}
		if results[0].Metadata["documentId"] != "d1" {
			t.Errorf("Metadata[documentId] = %q, want d1", results[0].Metadata["documentId"])
		}
	})

	t.Run("upsert replaces existing point", func(t *testing.T) {
		if err := store.CreateCollectionIfNotExists(ctx, "replace", 2); err != nil {
			t.Fatal(err)
		}

		id := uuid.New()
		for _, content := range []string{"first", "second"} {
			err := store.UpsertPoints(ctx, "replace",
				[]uuid.UUID{id}, [][]float32{pgUnitVector(1)}, []string{content}, nil)
			if err != nil {
				t.Fatalf("UpsertPoints(%q) error: %v", content, err)
			}
		}

		count, err := store.CountPoints(ctx, "replace")
		if err != nil {
			t.Fatal(err)
		}
		if count != 1 {
			t.Fatalf("CountPoints() = %d, want 1", count)
		}

		results, err := store.Search(ctx, "replace", pgUnitVector(1), 1, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 1 || results[0].Content != "second" {
			t.Errorf("search after replace = %+v, want content %q", results, "second")
		}
	})

	t.Run("delete points tolerates unknown ids", func(t *testing.T) {
		if err := store.CreateCollectionIfNotExists(ctx, "deletes", 2); err != nil {
			t.Fatal(err)
		}

		id := uuid.New()
		err := store.UpsertPoints(ctx, "deletes",
			[]uuid.UUID{id}, [][]float32{pgUnitVector(0.6)}, []string{"chunk"}, nil)
		if err != nil {
			t.Fatal(err)
		}

		if err := store.DeletePoints(ctx, "deletes", []uuid.UUID{id, uuid.New()}); err != nil {
			t.Fatalf("DeletePoints() error: %v", err)
		}

		count, err := store.CountPoints(ctx, "deletes")
		if err != nil {
			t.Fatal(err)
		}
		if count != 0 {
			t.Errorf("CountPoints() = %d, want 0", count)
		}
	})

	t.Run("errors", func(t *testing.T) {
		if _, err := store.Search(ctx, "no-such", pgUnitVector(1), 3, 0); !errors.Is(err, vectorstore.ErrCollectionNotFound) {
			t.Errorf("Search() error = %v, want ErrCollectionNotFound", err)
		}

		if err := store.CreateCollectionIfNotExists(ctx, "dims", 4); err != nil {
			t.Fatal(err)
		}
		err := store.UpsertPoints(ctx, "dims",
			[]uuid.UUID{uuid.New()}, [][]float32{pgUnitVector(1)}, []string{"x"}, nil)
		if !errors.Is(err, vectorstore.ErrDimensionMismatch) {
			t.Errorf("UpsertPoints() error = %v, want ErrDimensionMismatch", err)
		}

		err = store.UpsertPoints(ctx, "dims",
			[]uuid.UUID{uuid.New(), uuid.New()}, [][]float32{{1, 0, 0, 0}}, []string{"x"}, nil)
		if !errors.Is(err, vectorstore.ErrLengthMismatch) {
			t.Errorf("UpsertPoints() error = %v, want ErrLengthMismatch", err)
		}
	})
}
