package models

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidPair is returned for a degenerate participant pair.
var ErrInvalidPair = errors.New("conversation requires two distinct participants")

// MessageSummary is the denormalized last-message preview stored on a
// conversation, used by the conversation list.
type MessageSummary struct {
	Text      string    `json:"text"`
	AuthorID  string    `json:"author_id"`
	CreatedAt Timestamp `json:"created_at"`
}

// Conversation is a two-party thread with aggregate metadata. It is created
// lazily on first contact between two users and never deleted.
type Conversation struct {
	// ID is the unique conversation identifier.
	ID string `json:"id"`

	// Participants holds exactly two distinct user IDs, sorted.
	Participants [2]string `json:"participants"`

	// LastMessage mirrors the most recent message, nil while empty.
	LastMessage *MessageSummary `json:"last_message,omitempty"`

	// LastRead maps participant ID to the ID of the most recent message
	// that participant has observed.
	LastRead map[string]string `json:"last_read,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PairKey derives the canonical upsert key for a two-party conversation:
// the sorted participant IDs joined with '|'.
func PairKey(a, b string) (string, error) {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" || a == b {
		return "", ErrInvalidPair
	}
	if b < a {
		a, b = b, a
	}
	return a + "|" + b, nil
}

// SortParticipants returns the pair in canonical order.
func SortParticipants(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

// HasParticipant reports whether id is one of the two participants.
func (c *Conversation) HasParticipant(id string) bool {
	return id != "" && (c.Participants[0] == id || c.Participants[1] == id)
}

// Peer returns the other participant from the viewer's perspective.
func (c *Conversation) Peer(viewer string) (string, bool) {
	switch viewer {
	case c.Participants[0]:
		return c.Participants[1], true
	case c.Participants[1]:
		return c.Participants[0], true
	default:
		return "", false
	}
}

// PeerLastRead returns the ID of the newest message the other participant
// has observed, empty if they have read nothing.
func (c *Conversation) PeerLastRead(viewer string) string {
	peer, ok := c.Peer(viewer)
	if !ok {
		return ""
	}
	return c.LastRead[peer]
}

// Validate checks conversation fields.
func (c *Conversation) Validate() error {
	var errs ValidationErrors
	if strings.TrimSpace(c.ID) == "" {
		errs.AddMessage("id", "conversation id is required")
	}
	if _, err := PairKey(c.Participants[0], c.Participants[1]); err != nil {
		errs.Add("participants", err)
	}
	for user := range c.LastRead {
		if !c.HasParticipant(user) {
			errs.AddMessage("last_read", "marker for non-participant "+user)
		}
	}
	return errs.Err()
}
