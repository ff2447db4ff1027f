package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Deirdris/react-chat/internal/models"
)

func testConversation(t *testing.T, database *DB) *models.Conversation {
	t.Helper()
	conv, err := NewConversationRepository(database).UpsertByParticipants(context.Background(), "alice", "bob")
	if err != nil {
		t.Fatalf("failed to upsert conversation: %v", err)
	}
	return conv
}

func TestInsertTxAssignsServerIDAndTimestamp(t *testing.T) {
	database := setupTestDB(t)
	conv := testConversation(t, database)
	ctx := context.Background()

	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	repo := NewMessageRepository(database, WithNow(func() time.Time { return at }))

	msg := models.Message{
		ID:             "client-supplied",
		ConversationID: conv.ID,
		AuthorID:       "alice",
		Text:           "hello",
		CreatedAt:      models.PendingTimestamp(),
	}
	err := database.Transaction(ctx, func(tx *sql.Tx) error {
		return repo.InsertTx(ctx, tx, &msg)
	})
	if err != nil {
		t.Fatalf("failed to insert message: %v", err)
	}

	if msg.ID == "client-supplied" {
		t.Error("expected server-assigned id to replace the client value")
	}
	got, ok := msg.CreatedAt.Time()
	if !ok || !got.Equal(at) {
		t.Errorf("expected committed timestamp %v, got %v committed=%v", at, got, ok)
	}

	stored, err := repo.Get(ctx, msg.ID)
	if err != nil {
		t.Fatalf("failed to fetch message: %v", err)
	}
	if stored.Text != "hello" || stored.AuthorID != "alice" {
		t.Errorf("unexpected stored message: %+v", stored)
	}
}

func TestInsertTxRejectsInvalidMessage(t *testing.T) {
	database := setupTestDB(t)
	conv := testConversation(t, database)
	ctx := context.Background()
	repo := NewMessageRepository(database)

	msg := models.Message{ConversationID: conv.ID, AuthorID: "alice", Text: "   "}
	err := database.Transaction(ctx, func(tx *sql.Tx) error {
		return repo.InsertTx(ctx, tx, &msg)
	})
	if err == nil {
		t.Fatal("expected validation error for blank text")
	}
}

func TestInsertTxRetriesOnIDCollision(t *testing.T) {
	database := setupTestDB(t)
	conv := testConversation(t, database)
	ctx := context.Background()

	ids := []string{"dup", "dup", "fresh"}
	next := 0
	repo := NewMessageRepository(database, WithIDGenerator(func(time.Time) string {
		id := ids[next%len(ids)]
		next++
		return id
	}))

	first := models.Message{ConversationID: conv.ID, AuthorID: "alice", Text: "one"}
	err := database.Transaction(ctx, func(tx *sql.Tx) error {
		return repo.InsertTx(ctx, tx, &first)
	})
	if err != nil {
		t.Fatalf("failed to insert first message: %v", err)
	}
	if first.ID != "dup" {
		t.Fatalf("expected first insert to take id dup, got %s", first.ID)
	}

	second := models.Message{ConversationID: conv.ID, AuthorID: "bob", Text: "two"}
	err = database.Transaction(ctx, func(tx *sql.Tx) error {
		return repo.InsertTx(ctx, tx, &second)
	})
	if err != nil {
		t.Fatalf("failed to insert second message: %v", err)
	}
	if second.ID != "fresh" {
		t.Errorf("expected retry to land on fresh id, got %s", second.ID)
	}
}

func TestLatestAndBeforePaginate(t *testing.T) {
	database := setupTestDB(t)
	conv := testConversation(t, database)
	ctx := context.Background()
	repo := NewMessageRepository(database)

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	var all []models.Message
	for i := 0; i < 5; i++ {
		all = append(all, insertTestMessage(t, database, conv.ID, "alice", fmt.Sprintf("msg %d", i), base.Add(time.Duration(i)*time.Minute)))
	}

	page, err := repo.Latest(ctx, conv.ID, 3)
	if err != nil {
		t.Fatalf("failed to fetch latest page: %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(page))
	}
	if page[0].ID != all[4].ID || page[2].ID != all[2].ID {
		t.Errorf("unexpected page order: %s .. %s", page[0].ID, page[2].ID)
	}

	oldest, _ := page[2].CreatedAt.Time()
	older, err := repo.Before(ctx, conv.ID, oldest, 10)
	if err != nil {
		t.Fatalf("failed to fetch older page: %v", err)
	}
	if len(older) != 2 {
		t.Fatalf("expected 2 older messages, got %d", len(older))
	}
	if older[0].ID != all[1].ID || older[1].ID != all[0].ID {
		t.Errorf("unexpected older page order: %s, %s", older[0].ID, older[1].ID)
	}

	boundary, _ := older[1].CreatedAt.Time()
	done, err := repo.Before(ctx, conv.ID, boundary, 10)
	if err != nil {
		t.Fatalf("failed to fetch final page: %v", err)
	}
	if len(done) != 0 {
		t.Errorf("expected end of history, got %d messages", len(done))
	}
}

func TestBeforeIsStableAcrossRepeatedFetches(t *testing.T) {
	database := setupTestDB(t)
	conv := testConversation(t, database)
	ctx := context.Background()
	repo := NewMessageRepository(database)

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		insertTestMessage(t, database, conv.ID, "alice", fmt.Sprintf("msg %d", i), base.Add(time.Duration(i)*time.Second))
	}

	first, err := repo.Before(ctx, conv.ID, base.Add(3*time.Second), 2)
	if err != nil {
		t.Fatalf("failed to fetch page: %v", err)
	}
	second, err := repo.Before(ctx, conv.ID, base.Add(3*time.Second), 2)
	if err != nil {
		t.Fatalf("failed to refetch page: %v", err)
	}
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("expected 2 messages per page, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("page differed at index %d: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestSinceReturnsBoundaryInclusive(t *testing.T) {
	database := setupTestDB(t)
	conv := testConversation(t, database)
	ctx := context.Background()
	repo := NewMessageRepository(database)

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	insertTestMessage(t, database, conv.ID, "alice", "old", base.Add(-time.Minute))
	boundary := insertTestMessage(t, database, conv.ID, "alice", "boundary", base)
	newer := insertTestMessage(t, database, conv.ID, "bob", "new", base.Add(time.Minute))

	rows, err := repo.Since(ctx, conv.ID, base)
	if err != nil {
		t.Fatalf("failed to fetch since watermark: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(rows))
	}
	if rows[0].ID != newer.ID || rows[1].ID != boundary.ID {
		t.Errorf("unexpected rows: %s, %s", rows[0].ID, rows[1].ID)
	}
}

func TestGetMissingMessage(t *testing.T) {
	database := setupTestDB(t)
	repo := NewMessageRepository(database)

	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("expected ErrMessageNotFound, got %v", err)
	}
}
