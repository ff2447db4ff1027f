package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Deirdris/react-chat/internal/models"
)

func TestUpsertUserUpdatesProfile(t *testing.T) {
	database := setupTestDB(t)
	repo := NewUserRepository(database)
	ctx := context.Background()

	user := &models.User{ID: "alice", DisplayName: "Alice", CreatedAt: time.Now().UTC()}
	if err := repo.Upsert(ctx, user); err != nil {
		t.Fatalf("failed to upsert user: %v", err)
	}

	user.DisplayName = "Alice L."
	user.PhotoURL = "https://example.test/alice.png"
	if err := repo.Upsert(ctx, user); err != nil {
		t.Fatalf("failed to re-upsert user: %v", err)
	}

	stored, err := repo.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("failed to fetch user: %v", err)
	}
	if stored.DisplayName != "Alice L." {
		t.Errorf("expected updated display name, got %s", stored.DisplayName)
	}
	if stored.PhotoURL != "https://example.test/alice.png" {
		t.Errorf("expected updated photo url, got %s", stored.PhotoURL)
	}
}

func TestGetMissingUser(t *testing.T) {
	database := setupTestDB(t)
	repo := NewUserRepository(database)

	if _, err := repo.Get(context.Background(), "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestSearchByNameMatchesCaseInsensitive(t *testing.T) {
	database := setupTestDB(t)
	repo := NewUserRepository(database)
	ctx := context.Background()

	users := []models.User{
		{ID: "alice", DisplayName: "Alice Liddell"},
		{ID: "malice", DisplayName: "MALICE"},
		{ID: "bob", DisplayName: "Bob"},
	}
	for i := range users {
		users[i].CreatedAt = time.Now().UTC()
		if err := repo.Upsert(ctx, &users[i]); err != nil {
			t.Fatalf("failed to upsert %s: %v", users[i].ID, err)
		}
	}

	found, err := repo.SearchByName(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("failed to search: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(found))
	}
}

func TestSearchByNameEscapesWildcards(t *testing.T) {
	database := setupTestDB(t)
	repo := NewUserRepository(database)
	ctx := context.Background()

	users := []models.User{
		{ID: "percent", DisplayName: "100% real"},
		{ID: "plain", DisplayName: "100 proof"},
	}
	for i := range users {
		users[i].CreatedAt = time.Now().UTC()
		if err := repo.Upsert(ctx, &users[i]); err != nil {
			t.Fatalf("failed to upsert %s: %v", users[i].ID, err)
		}
	}

	found, err := repo.SearchByName(ctx, "100%", 10)
	if err != nil {
		t.Fatalf("failed to search: %v", err)
	}
	if len(found) != 1 || found[0].ID != "percent" {
		t.Errorf("expected only the literal match, got %d results", len(found))
	}
}
