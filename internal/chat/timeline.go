package chat

import (
	"sort"

	"github.com/Deirdris/react-chat/internal/models"
)

// Timeline is the in-memory message sequence for one open conversation view:
// strictly descending by creation timestamp (ties broken by ID), deduplicated
// by ID. It is owned exclusively by one view controller and is not safe for
// concurrent use.
type Timeline struct {
	messages []models.Message
	ids      map[string]struct{}
	hasMore  bool
}

// NewTimeline returns an empty timeline with no known history.
func NewTimeline() *Timeline {
	return &Timeline{ids: make(map[string]struct{})}
}

// Len returns the number of messages held.
func (t *Timeline) Len() int {
	return len(t.messages)
}

// Messages returns a copy of the sequence, newest first.
func (t *Timeline) Messages() []models.Message {
	out := make([]models.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Newest returns the most recent message.
func (t *Timeline) Newest() (models.Message, bool) {
	if len(t.messages) == 0 {
		return models.Message{}, false
	}
	return t.messages[0], true
}

// HasMoreHistory reports whether older pages may remain in the store.
func (t *Timeline) HasMoreHistory() bool {
	return t.hasMore
}

// SetHasMoreHistory records pagination evidence.
func (t *Timeline) SetHasMoreHistory(hasMore bool) {
	t.hasMore = hasMore
}

// Watermark returns the newest committed timestamp known locally, the
// boundary for the live subscription. False while nothing committed is held.
func (t *Timeline) Watermark() (models.Timestamp, bool) {
	for _, m := range t.messages {
		if m.CreatedAt.Committed() {
			return m.CreatedAt, true
		}
	}
	return models.Timestamp{}, false
}

// OldestCommitted returns the oldest committed timestamp held, the boundary
// for backward pagination.
func (t *Timeline) OldestCommitted() (models.Timestamp, bool) {
	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].CreatedAt.Committed() {
			return t.messages[i].CreatedAt, true
		}
	}
	return models.Timestamp{}, false
}

// Contains reports whether a message ID is already held.
func (t *Timeline) Contains(id string) bool {
	_, ok := t.ids[id]
	return ok
}

// Merge folds a batch of messages into the timeline: append, re-sort by
// descending timestamp with ID tie-break, dedupe by ID. Batches may arrive
// out of order or redelivered; merging the same batch twice is a no-op.
// Returns the number of messages actually inserted.
func (t *Timeline) Merge(batch []models.Message) int {
	inserted := 0
	for _, m := range batch {
		if m.ID == "" {
			continue
		}
		if _, ok := t.ids[m.ID]; ok {
			continue
		}
		t.ids[m.ID] = struct{}{}
		t.messages = append(t.messages, m)
		inserted++
	}
	if inserted > 0 {
		sort.SliceStable(t.messages, func(i, j int) bool {
			return models.MessageLess(t.messages[j], t.messages[i])
		})
	}
	return inserted
}

// Reset drops all state, returning the timeline to its initial condition.
func (t *Timeline) Reset() {
	t.messages = nil
	t.ids = make(map[string]struct{})
	t.hasMore = false
}
