package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Deirdris/react-chat/internal/models"
)

const maxIDRetries = 10

// ErrIDCollision is returned when a fresh message ID could not be found.
var ErrIDCollision = errors.New("message id collision")

// MessageRepository handles message persistence.
type MessageRepository struct {
	db          *DB
	now         func() time.Time
	idGenerator func(time.Time) string
}

// MessageRepositoryOption configures a MessageRepository.
type MessageRepositoryOption func(*MessageRepository)

// WithNow overrides the server clock, used by tests.
func WithNow(now func() time.Time) MessageRepositoryOption {
	return func(r *MessageRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator overrides the message ID generator, used by tests.
func WithIDGenerator(gen func(time.Time) string) MessageRepositoryOption {
	return func(r *MessageRepository) {
		if gen != nil {
			r.idGenerator = gen
		}
	}
}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(db *DB, opts ...MessageRepositoryOption) *MessageRepository {
	r := &MessageRepository{
		db:          db,
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: models.NewMessageID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// InsertTx appends a message inside an existing transaction. The repository
// assigns the ID and the creation timestamp; client-supplied values for
// either are ignored. On an ID collision a fresh ID is generated and the
// insert retried.
func (r *MessageRepository) InsertTx(ctx context.Context, tx *sql.Tx, message *models.Message) error {
	now := r.now()
	message.CreatedAt = models.CommittedAt(now)
	if err := message.Validate(); err != nil {
		return err
	}

	for attempt := 0; attempt < maxIDRetries; attempt++ {
		message.ID = r.idGenerator(now)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, author_id, text, created_at)
			VALUES (?, ?, ?, ?, ?)
		`,
			message.ID,
			message.ConversationID,
			message.AuthorID,
			message.Text,
			formatTime(now),
		)
		if err == nil {
			return nil
		}
		if isUniqueConstraintError(err) {
			continue
		}
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return ErrIDCollision
}

// Get retrieves a message by ID.
func (r *MessageRepository) Get(ctx context.Context, id string) (*models.Message, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, author_id, text, created_at
		FROM messages WHERE id = ?
	`, id)

	var msg models.Message
	if err := scanMessage(row, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Latest retrieves the newest limit messages of a conversation, descending.
func (r *MessageRepository) Latest(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.list(ctx, `
		SELECT id, conversation_id, author_id, text, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, conversationID, limit)
}

// Before retrieves up to limit messages strictly older than before,
// descending. The boundary is a server timestamp, so a repeated fetch is
// gap-free.
func (r *MessageRepository) Before(ctx context.Context, conversationID string, before time.Time, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 10
	}
	return r.list(ctx, `
		SELECT id, conversation_id, author_id, text, created_at
		FROM messages
		WHERE conversation_id = ? AND created_at IS NOT NULL AND created_at < ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, conversationID, formatTime(before), limit)
}

// Since retrieves messages at or after the watermark, descending. Used by
// the change feed; callers dedupe boundary redeliveries by ID.
func (r *MessageRepository) Since(ctx context.Context, conversationID string, watermark time.Time) ([]models.Message, error) {
	return r.list(ctx, `
		SELECT id, conversation_id, author_id, text, created_at
		FROM messages
		WHERE conversation_id = ? AND created_at IS NOT NULL AND created_at >= ?
		ORDER BY created_at DESC, id DESC
	`, conversationID, formatTime(watermark))
}

// All retrieves every message of a conversation, descending. Used when no
// watermark exists yet.
func (r *MessageRepository) All(ctx context.Context, conversationID string) ([]models.Message, error) {
	return r.list(ctx, `
		SELECT id, conversation_id, author_id, text, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
	`, conversationID)
}

// CountByConversation returns the number of messages in a conversation.
func (r *MessageRepository) CountByConversation(ctx context.Context, conversationID string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE conversation_id = ?
	`, conversationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func (r *MessageRepository) list(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		if err := scanMessage(rows, &msg); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

func scanMessage(row rowScanner, msg *models.Message) error {
	var createdAt sql.NullString

	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.AuthorID,
		&msg.Text,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("failed to scan message: %w", err)
	}

	// A NULL timestamp stays pending; grouping treats it as on no day.
	msg.CreatedAt = models.PendingTimestamp()
	if createdAt.Valid {
		if t, err := parseTime(createdAt.String); err == nil {
			msg.CreatedAt = models.CommittedAt(t)
		}
	}
	return nil
}
