package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"ragserver/internal/chat"
	"ragserver/internal/document"
	"ragserver/internal/postgres"
	"ragserver/internal/testutil"
)

func TestQueries(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	queries := postgres.New(db.Pool)

	t.Run("documents", func(t *testing.T) {
		doc, err := queries.InsertDocument(ctx, document.InsertDocumentParams{
			Title: "Docker Guide", Content: "Containers share the host kernel.", Category: "ops", Active: true,
		})
		if err != nil {
			t.Fatalf("InsertDocument() error: %v", err)
		}
		if doc.ID == uuid.Nil {
			t.Fatal("InsertDocument() returned nil id")
		}
		if doc.Processed {
			t.Error("new document already marked processed")
		}

		got, err := queries.GetDocument(ctx, doc.ID)
		if err != nil {
			t.Fatalf("GetDocument() error: %v", err)
		}
		if got.Title != "Docker Guide" || got.Category != "ops" {
			t.Errorf("GetDocument() = %+v", got)
		}

		inactive, err := queries.InsertDocument(ctx, document.InsertDocumentParams{
			Title: "Archived", Content: "old", Active: false,
		})
		if err != nil {
			t.Fatal(err)
		}

		active, err := queries.ListActiveDocuments(ctx)
		if err != nil {
			t.Fatal(err)
		}
		for _, d := range active {
			if d.ID == inactive.ID {
				t.Error("inactive document returned by ListActiveDocuments")
			}
		}

		flipped, err := queries.SetDocumentActive(ctx, inactive.ID, true)
		if err != nil {
			t.Fatalf("SetDocumentActive() error: %v", err)
		}
		if !flipped.Active {
			t.Error("document not active after SetDocumentActive")
		}

		if err := queries.SetDocumentProcessed(ctx, doc.ID, true, 3); err != nil {
			t.Fatalf("SetDocumentProcessed() error: %v", err)
		}
		got, err = queries.GetDocument(ctx, doc.ID)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Processed {
			t.Error("document not processed after SetDocumentProcessed")
		}
		if got.ChunkCount != 3 {
			t.Errorf("ChunkCount = %d, want 3", got.ChunkCount)
		}

		if _, err := queries.GetDocument(ctx, uuid.New()); !errors.Is(err, document.ErrNotFound) {
			t.Errorf("GetDocument(unknown) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("chunks cascade with document", func(t *testing.T) {
		doc, err := queries.InsertDocument(ctx, document.InsertDocumentParams{
			Title: "Chunked", Content: "one two", Active: true,
		})
		if err != nil {
			t.Fatal(err)
		}

		for i, content := range []string{"one", "two"} {
			_, err := queries.InsertChunk(ctx, document.InsertChunkParams{
				DocumentID: doc.ID, ChunkIndex: i, Content: content, TokenCount: 1, VectorPointID: uuid.New(),
			})
			if err != nil {
				t.Fatalf("InsertChunk(%d) error: %v", i, err)
			}
		}

		chunks, err := queries.ListChunks(ctx, doc.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(chunks) != 2 || chunks[0].ChunkIndex != 0 || chunks[1].ChunkIndex != 1 {
			t.Fatalf("ListChunks() = %+v, want 2 ordered chunks", chunks)
		}

		if err := queries.DeleteDocument(ctx, doc.ID); err != nil {
			t.Fatal(err)
		}
		chunks, err = queries.ListChunks(ctx, doc.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(chunks) != 0 {
			t.Errorf("chunks survived document deletion: %+v", chunks)
		}
	})

	t.Run("sessions and messages", func(t *testing.T) {
		session, err := queries.CreateSession(ctx, chat.CreateSessionParams{
			SessionToken: uuid.NewString(), UserIdentifier: "tester",
		})
		if err != nil {
			t.Fatalf("CreateSession() error: %v", err)
		}
		if !session.Active || session.EndedAt != nil {
			t.Errorf("new session = %+v, want active without end time", session)
		}

		got, err := queries.GetSessionByToken(ctx, session.SessionToken)
		if err != nil {
			t.Fatal(err)
		}
		if got.ID != session.ID {
			t.Errorf("GetSessionByToken() id = %s, want %s", got.ID, session.ID)
		}

		if err := queries.TouchSession(ctx, session.ID); err != nil {
			t.Fatalf("TouchSession() error: %v", err)
		}

		user, err := queries.InsertMessage(ctx, chat.InsertMessageParams{
			SessionID: session.ID, Role: chat.RoleUser, Content: "hello", MessageIndex: 0,
		})
		if err != nil {
			t.Fatalf("InsertMessage() error: %v", err)
		}

		refs := []chat.Reference{{DocumentID: "d1", Title: "Guide", Snippet: "snippet", Score: 0.8}}
		assistant, err := queries.InsertMessage(ctx, chat.InsertMessageParams{
			SessionID: session.ID, Role: chat.RoleAssistant, Content: "hi", MessageIndex: 1,
			References: refs, ResponseTimeMs: 42,
		})
		if err != nil {
			t.Fatalf("InsertMessage(assistant) error: %v", err)
		}

		count, err := queries.CountMessages(ctx, session.ID)
		if err != nil {
			t.Fatal(err)
		}
		if count != 2 {
			t.Errorf("CountMessages() = %d, want 2", count)
		}

		byID, err := queries.GetSession(ctx, session.ID)
		if err != nil {
			t.Fatalf("GetSession() error: %v", err)
		}
		if byID.MessageCount != 2 {
			t.Errorf("MessageCount = %d, want 2", byID.MessageCount)
		}
		if _, err := queries.GetSession(ctx, uuid.New()); !errors.Is(err, chat.ErrSessionNotFound) {
			t.Errorf("GetSession(unknown) error = %v, want ErrSessionNotFound", err)
		}

		messages, err := queries.ListMessages(ctx, session.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(messages) != 2 {
			t.Fatalf("ListMessages() returned %d messages", len(messages))
		}
		if messages[0].ID != user.ID || messages[1].ID != assistant.ID {
			t.Error("messages out of order")
		}
		if len(messages[1].References) != 1 || messages[1].References[0].DocumentID != "d1" {
			t.Errorf("references did not round-trip: %+v", messages[1].References)
		}
		if messages[1].ResponseTimeMs != 42 {
			t.Errorf("ResponseTimeMs = %d, want 42", messages[1].ResponseTimeMs)
		}

		if err := queries.SetMessageHelpful(ctx, assistant.ID, true); err != nil {
			t.Fatalf("SetMessageHelpful() error: %v", err)
		}
		messages, err = queries.ListMessages(ctx, session.ID)
		if err != nil {
			t.Fatal(err)
		}
		if messages[1].Helpful == nil || !*messages[1].Helpful {
			t.Errorf("Helpful = %v, want true", messages[1].Helpful)
		}
		if err := queries.SetMessageHelpful(ctx, uuid.New(), true); !errors.Is(err, chat.ErrMessageNotFound) {
			t.Errorf("SetMessageHelpful(unknown) error = %v, want ErrMessageNotFound", err)
		}

		if err := queries.EndSession(ctx, session.ID); err != nil {
			t.Fatalf("EndSession() error: %v", err)
		}
		// Repeat end is tolerated.
		if err := queries.EndSession(ctx, session.ID); err != nil {
			t.Fatalf("repeat EndSession() error: %v", err)
		}
		got, err = queries.GetSessionByToken(ctx, session.SessionToken)
		if err != nil {
			t.Fatal(err)
		}
		if got.Active || got.EndedAt == nil {
			t.Errorf("session after EndSession = %+v", got)
		}

		if err := queries.EndSession(ctx, uuid.New()); !errors.Is(err, chat.ErrSessionNotFound) {
			t.Errorf("EndSession(unknown) error = %v, want ErrSessionNotFound", err)
		}
	})

	t.Run("end inactive sessions", func(t *testing.T) {
		session, err := queries.CreateSession(ctx, chat.CreateSessionParams{SessionToken: uuid.NewString()})
		if err != nil {
			t.Fatal(err)
		}

		closed, err := queries.EndInactiveSessions(ctx, time.Now().Add(-time.Minute))
		if err != nil {
			t.Fatal(err)
		}
		if closed != 0 {
			t.Errorf("EndInactiveSessions() closed %d fresh sessions", closed)
		}

		closed, err = queries.EndInactiveSessions(ctx, time.Now().Add(time.Minute))
		if err != nil {
			t.Fatal(err)
		}
		if closed < 1 {
			t.Errorf("EndInactiveSessions() closed %d sessions, want at least 1", closed)
		}

		got, err := queries.GetSessionByToken(ctx, session.SessionToken)
		if err != nil {
			t.Fatal(err)
		}
		if got.Active {
			t.Error("session still active after cleanup")
		}
	})

	t.Run("settings", func(t *testing.T) {
		_, found, err := queries.GetSetting(ctx, "system_prompt")
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Error("unexpected stored value before upsert")
		}

		if err := queries.UpsertSetting(ctx, "system_prompt", "first"); err != nil {
			t.Fatalf("UpsertSetting() error: %v", err)
		}
		if err := queries.UpsertSetting(ctx, "system_prompt", "second"); err != nil {
			t.Fatalf("UpsertSetting(update) error: %v", err)
		}

		value, found, err := queries.GetSetting(ctx, "system_prompt")
		if err != nil {
			t.Fatal(err)
		}
		if !found || value != "second" {
			t.Errorf("GetSetting() = %q/%v, want second/true", value, found)
		}
	})
}
