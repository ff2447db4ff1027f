package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Deirdris/react-chat/internal/models"
)

// Conversation repository errors.
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
)

// ConversationRepository handles conversation persistence.
type ConversationRepository struct {
	db  *DB
	now func() time.Time
}

// NewConversationRepository creates a new ConversationRepository.
func NewConversationRepository(db *DB) *ConversationRepository {
	return &ConversationRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// UpsertByParticipants returns the conversation between two users, creating
// it lazily on first contact. The upsert key is the canonical sorted pair, so
// concurrent first sends still converge on one conversation.
func (r *ConversationRepository) UpsertByParticipants(ctx context.Context, a, b string) (*models.Conversation, error) {
	pairKey, err := models.PairKey(a, b)
	if err != nil {
		return nil, err
	}
	pair := models.SortParticipants(a, b)
	now := r.now()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO conversations (id, pair_key, participant_a, participant_b, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(pair_key) DO NOTHING
	`,
		uuid.New().String(),
		pairKey,
		pair[0],
		pair[1],
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert conversation: %w", err)
	}

	return r.getWhere(ctx, `pair_key = ?`, pairKey)
}

// Get retrieves a conversation by ID, including its read markers.
func (r *ConversationRepository) Get(ctx context.Context, id string) (*models.Conversation, error) {
	return r.getWhere(ctx, `id = ?`, id)
}

// GetByParticipants retrieves the conversation between two users without
// creating it.
func (r *ConversationRepository) GetByParticipants(ctx context.Context, a, b string) (*models.Conversation, error) {
	pairKey, err := models.PairKey(a, b)
	if err != nil {
		return nil, err
	}
	return r.getWhere(ctx, `pair_key = ?`, pairKey)
}

func (r *ConversationRepository) getWhere(ctx context.Context, where string, args ...any) (*models.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, participant_a, participant_b,
		       last_message_text, last_message_author, last_message_at,
		       created_at, updated_at
		FROM conversations WHERE `+where,
		args...,
	)

	conv, err := scanConversation(row)
	if err != nil {
		return nil, err
	}

	markers, err := r.LastRead(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	conv.LastRead = markers
	return conv, nil
}

// ListByParticipant retrieves a user's conversations ordered by last-message
// recency, newest first. Conversations without any message yet sort last.
func (r *ConversationRepository) ListByParticipant(ctx context.Context, userID string, limit int) ([]*models.Conversation, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, participant_a, participant_b,
		       last_message_text, last_message_author, last_message_at,
		       created_at, updated_at
		FROM conversations
		WHERE participant_a = ? OR participant_b = ?
		ORDER BY last_message_at IS NULL, last_message_at DESC
		LIMIT ?
	`, userID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}

	for _, conv := range conversations {
		markers, err := r.LastRead(ctx, conv.ID)
		if err != nil {
			return nil, err
		}
		conv.LastRead = markers
	}
	return conversations, nil
}

// UpdateLastMessageTx overwrites the conversation's last-message summary
// inside an existing transaction.
func (r *ConversationRepository) UpdateLastMessageTx(ctx context.Context, tx *sql.Tx, conversationID string, summary models.MessageSummary) error {
	var lastAt any
	if t, ok := summary.CreatedAt.Time(); ok {
		lastAt = formatTime(t)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_text = ?, last_message_author = ?, last_message_at = ?, updated_at = ?
		WHERE id = ?
	`,
		summary.Text,
		summary.AuthorID,
		lastAt,
		r.now().Format(time.RFC3339),
		conversationID,
	)
	if err != nil {
		return fmt.Errorf("failed to update last message: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// SetLastRead advances one participant's read marker as a partial update
// against the conversation. The guard keeps the marker forward-only: message
// IDs are time-sortable, so a replayed older ID never wins the upsert.
func (r *ConversationRepository) SetLastRead(ctx context.Context, conversationID, userID, messageID string) error {
	var belongs int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE id = ? AND conversation_id = ?
	`, messageID, conversationID).Scan(&belongs)
	if err != nil {
		return fmt.Errorf("failed to verify read marker target: %w", err)
	}
	if belongs == 0 {
		return ErrMessageNotFound
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO read_markers (conversation_id, user_id, message_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(conversation_id, user_id) DO UPDATE
		SET message_id = excluded.message_id, updated_at = excluded.updated_at
		WHERE excluded.message_id > read_markers.message_id
	`,
		conversationID,
		userID,
		messageID,
		r.now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to set read marker: %w", err)
	}
	return nil
}

// LastRead returns the conversation's read-marker map.
func (r *ConversationRepository) LastRead(ctx context.Context, conversationID string) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, message_id FROM read_markers WHERE conversation_id = ?
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query read markers: %w", err)
	}
	defer rows.Close()

	markers := make(map[string]string)
	for rows.Next() {
		var userID, messageID string
		if err := rows.Scan(&userID, &messageID); err != nil {
			return nil, fmt.Errorf("failed to scan read marker: %w", err)
		}
		markers[userID] = messageID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating read markers: %w", err)
	}
	return markers, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var conv models.Conversation
	var lastText, lastAuthor, lastAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&conv.ID,
		&conv.Participants[0],
		&conv.Participants[1],
		&lastText,
		&lastAuthor,
		&lastAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}

	if lastText.Valid || lastAuthor.Valid {
		summary := &models.MessageSummary{
			Text:     lastText.String,
			AuthorID: lastAuthor.String,
		}
		if lastAt.Valid {
			if t, err := parseTime(lastAt.String); err == nil {
				summary.CreatedAt = models.CommittedAt(t)
			}
		}
		conv.LastMessage = summary
	}

	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		conv.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		conv.UpdatedAt = t
	}
	return &conv, nil
}
