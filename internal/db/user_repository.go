package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Deirdris/react-chat/internal/models"
)

// ErrUserNotFound is returned when a profile lookup misses.
var ErrUserNotFound = errors.New("user not found")

// UserRepository handles user profile persistence.
type UserRepository struct {
	db  *DB
	now func() time.Time
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Upsert mirrors an identity-provider profile into the store, refreshing the
// display name and photo on repeat sign-ins.
func (r *UserRepository) Upsert(ctx context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("invalid user: %w", err)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, photo_url, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE
		SET display_name = excluded.display_name, photo_url = excluded.photo_url
	`,
		user.ID,
		user.DisplayName,
		nullable(user.PhotoURL),
		r.now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// Get retrieves a profile by ID with fetch-once semantics.
func (r *UserRepository) Get(ctx context.Context, id string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, display_name, photo_url, created_at
		FROM users WHERE id = ?
	`, id)
	return scanUser(row)
}

// SearchByName finds users whose display name contains query,
// case-insensitively, ordered by name.
func (r *UserRepository) SearchByName(ctx context.Context, query string, limit int) ([]*models.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	pattern := "%" + escapeLike(query) + "%"
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, display_name, photo_url, created_at
		FROM users
		WHERE display_name LIKE ? ESCAPE '\' COLLATE NOCASE
		ORDER BY display_name
		LIMIT ?
	`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	var photoURL sql.NullString
	var createdAt string

	err := row.Scan(&user.ID, &user.DisplayName, &photoURL, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	user.PhotoURL = photoURL.String
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		user.CreatedAt = t
	}
	return &user, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
