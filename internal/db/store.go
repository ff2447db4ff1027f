package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Deirdris/react-chat/internal/chat"
	"github.com/Deirdris/react-chat/internal/logging"
	"github.com/Deirdris/react-chat/internal/models"
)

const (
	defaultPollInterval    = 250 * time.Millisecond
	defaultSubscribeBuffer = 16
)

// Store adapts the SQLite repositories to the chat engine's store contract:
// ordered range queries, an atomic send transaction, partial read-marker
// updates, and a change feed. Reconnect behavior for the feed lives here;
// the engine treats subscriptions as long-lived.
type Store struct {
	db            *DB
	conversations *ConversationRepository
	messages      *MessageRepository
	logger        zerolog.Logger

	pollInterval    time.Duration
	subscribeBuffer int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithPollInterval overrides the change-feed poll cadence.
func WithPollInterval(interval time.Duration) StoreOption {
	return func(s *Store) {
		if interval > 0 {
			s.pollInterval = interval
		}
	}
}

// WithSubscribeBuffer overrides the feed channel capacity.
func WithSubscribeBuffer(size int) StoreOption {
	return func(s *Store) {
		if size > 0 {
			s.subscribeBuffer = size
		}
	}
}

// WithMessageRepository overrides the message repository, used by tests to
// inject clocks and ID generators.
func WithMessageRepository(repo *MessageRepository) StoreOption {
	return func(s *Store) {
		if repo != nil {
			s.messages = repo
		}
	}
}

// NewStore creates the store adapter over an open database.
func NewStore(database *DB, opts ...StoreOption) *Store {
	s := &Store{
		db:              database,
		conversations:   NewConversationRepository(database),
		messages:        NewMessageRepository(database),
		logger:          logging.Component("store"),
		pollInterval:    defaultPollInterval,
		subscribeBuffer: defaultSubscribeBuffer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Conversations exposes the conversation repository for the roster layer.
func (s *Store) Conversations() *ConversationRepository {
	return s.conversations
}

// Conversation fetches a single conversation document.
func (s *Store) Conversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv, err := s.conversations.Get(ctx, id)
	if errors.Is(err, ErrConversationNotFound) {
		return nil, chat.ErrConversationNotFound
	}
	return conv, err
}

// LatestMessages returns the newest limit messages, descending.
func (s *Store) LatestMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	return s.messages.Latest(ctx, conversationID, limit)
}

// MessagesBefore returns up to limit messages strictly older than before,
// descending.
func (s *Store) MessagesBefore(ctx context.Context, conversationID string, before models.Timestamp, limit int) ([]models.Message, error) {
	boundary, ok := before.Time()
	if !ok {
		return nil, chat.ErrUncommittedBoundary
	}
	return s.messages.Before(ctx, conversationID, boundary, limit)
}

// Append commits a new message and the conversation's last-message summary
// in one transaction; neither write lands without the other.
func (s *Store) Append(ctx context.Context, conversationID, authorID, text string) (models.Message, error) {
	message := models.Message{
		ConversationID: conversationID,
		AuthorID:       authorID,
		Text:           text,
	}

	err := s.db.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		if err := s.messages.InsertTx(ctx, tx, &message); err != nil {
			return err
		}
		return s.conversations.UpdateLastMessageTx(ctx, tx, conversationID, models.MessageSummary{
			Text:      message.Text,
			AuthorID:  message.AuthorID,
			CreatedAt: message.CreatedAt,
		})
	})
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return models.Message{}, chat.ErrConversationNotFound
		}
		return models.Message{}, fmt.Errorf("send transaction failed: %w", err)
	}
	return message, nil
}

// SetLastRead advances a participant's read marker; the repository guard
// keeps it forward-only.
func (s *Store) SetLastRead(ctx context.Context, conversationID, userID, messageID string) error {
	err := s.conversations.SetLastRead(ctx, conversationID, userID, messageID)
	if errors.Is(err, ErrMessageNotFound) {
		return chat.ErrMessageNotFound
	}
	return err
}

// LastRead returns the conversation's read-marker map.
func (s *Store) LastRead(ctx context.Context, conversationID string) (map[string]string, error) {
	return s.conversations.LastRead(ctx, conversationID)
}

// Subscribe opens a change feed for messages newer than the watermark. One
// poll tick yields at most one batch, mirroring a reconnect replay that
// carries several adds at once.
func (s *Store) Subscribe(conversationID string, watermark models.Timestamp) (<-chan []chat.Change, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan []chat.Change, s.subscribeBuffer)

	feed := &changeFeed{
		messages:       s.messages,
		conversationID: conversationID,
		interval:       s.pollInterval,
		logger:         s.logger.With().Str("conversation_id", conversationID).Logger(),
	}
	feed.init(watermark)

	go feed.run(ctx, out)
	return out, cancel
}
