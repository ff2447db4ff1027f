package models

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// MaxMessageLength caps the text body of a single message.
const MaxMessageLength = 4096

// Message is an immutable entry in a conversation. The ID and creation
// timestamp are assigned by the store at commit time; client clocks are
// never trusted.
type Message struct {
	// ID is the store-assigned identifier (sortable, used for tie-breaking).
	ID string `json:"id"`

	// ConversationID is the conversation this message belongs to.
	ConversationID string `json:"conversation_id"`

	// AuthorID identifies the sender.
	AuthorID string `json:"author_id"`

	// Text is the message body, non-empty after trimming.
	Text string `json:"text"`

	// CreatedAt is the server-assigned creation time, pending until the
	// store has resolved it.
	CreatedAt Timestamp `json:"created_at"`
}

// Validate checks message fields.
func (m *Message) Validate() error {
	var errs ValidationErrors
	if strings.TrimSpace(m.ConversationID) == "" {
		errs.AddMessage("conversation_id", "conversation id is required")
	}
	if strings.TrimSpace(m.AuthorID) == "" {
		errs.AddMessage("author_id", "author id is required")
	}
	if strings.TrimSpace(m.Text) == "" {
		errs.AddMessage("text", "text must be non-empty after trimming")
	}
	if len(m.Text) > MaxMessageLength {
		errs.AddMessage("text", fmt.Sprintf("text exceeds %d bytes", MaxMessageLength))
	}
	return errs.Err()
}

// MessageLess orders messages chronologically ascending: committed
// timestamps first by time, ties and pending timestamps by ID. IDs are
// time-prefixed, so ID order tracks commit order closely enough for
// deterministic tie-breaking.
func MessageLess(a, b Message) bool {
	at, aok := a.CreatedAt.Time()
	bt, bok := b.CreatedAt.Time()
	if aok && bok && !at.Equal(bt) {
		return at.Before(bt)
	}
	return a.ID < b.ID
}

var messageIDCounter atomic.Uint64

// NewMessageID generates a sortable message identifier of the form
// YYYYMMDD-HHMMSS-NNNN. Uniqueness is enforced by the store; callers retry
// with a fresh ID on collision.
func NewMessageID(t time.Time) string {
	n := messageIDCounter.Add(1) % 10000
	return fmt.Sprintf("%s-%04d", t.UTC().Format("20060102-150405"), n)
}
