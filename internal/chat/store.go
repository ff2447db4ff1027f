// Package chat implements the conversation view engine: pagination over
// message history, live update merging, read-marker tracking, and the
// deterministic render model consumed by the UI layer.
package chat

import (
	"context"
	"errors"

	"github.com/Deirdris/react-chat/internal/models"
)

// ChangeType tags a change record from the store's subscription feed.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Change is one entry of a subscription delta batch.
type Change struct {
	Type    ChangeType
	Message models.Message
}

// Store errors shared across implementations.
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrUncommittedBoundary  = errors.New("pagination boundary requires a committed timestamp")
)

// Store is the conversation store adapter the engine consumes. Implementations
// wrap a remote append-oriented document collection; reconnect and retry for
// the subscription feed live behind this interface, not in the engine.
type Store interface {
	// Conversation fetches a single conversation document by ID.
	Conversation(ctx context.Context, id string) (*models.Conversation, error)

	// LatestMessages returns the newest limit messages of a conversation in
	// descending timestamp order.
	LatestMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)

	// MessagesBefore returns up to limit messages strictly older than before,
	// descending. The boundary is a server timestamp, so repeating the call
	// yields the same or a superset-compatible result.
	MessagesBefore(ctx context.Context, conversationID string, before models.Timestamp, limit int) ([]models.Message, error)

	// Subscribe opens a feed of delta batches for messages newer than the
	// watermark, in delivery order. The cancel function tears the producer
	// down and closes the channel.
	Subscribe(conversationID string, watermark models.Timestamp) (<-chan []Change, func())

	// Append commits a new message and the conversation's last-message
	// summary in a single all-or-nothing transaction. The store assigns the
	// message ID and creation timestamp.
	Append(ctx context.Context, conversationID, authorID, text string) (models.Message, error)

	// SetLastRead advances a participant's read marker to messageID as a
	// partial update. The marker never regresses to an older message.
	SetLastRead(ctx context.Context, conversationID, userID, messageID string) error

	// LastRead returns the conversation's read-marker snapshot.
	LastRead(ctx context.Context, conversationID string) (map[string]string, error)
}
