package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Deirdris/react-chat/internal/models"
)

// Default page sizes, matching the store's query limits.
const (
	DefaultInitialPageSize = 20
	DefaultOlderPageSize   = 10
)

// ErrLoadInFlight is returned when a backward-pagination request is issued
// while another one is still running for the same view.
var ErrLoadInFlight = errors.New("older page load already in flight")

// Paginator fetches message pages for one conversation. Backward fetches are
// serialized: a second LoadOlder call fails fast while one is in flight.
type Paginator struct {
	store          Store
	conversationID string
	initialSize    int
	olderSize      int

	mu       sync.Mutex
	inFlight bool
}

// NewPaginator creates a Paginator for a conversation. Non-positive sizes
// fall back to the defaults.
func NewPaginator(store Store, conversationID string, initialSize, olderSize int) *Paginator {
	if initialSize <= 0 {
		initialSize = DefaultInitialPageSize
	}
	if olderSize <= 0 {
		olderSize = DefaultOlderPageSize
	}
	return &Paginator{
		store:          store,
		conversationID: conversationID,
		initialSize:    initialSize,
		olderSize:      olderSize,
	}
}

// LoadInitial fetches the newest page in descending order. hasMore is seeded
// true pending further evidence; an empty conversation yields an empty page
// with hasMore false, not an error.
func (p *Paginator) LoadInitial(ctx context.Context) (page []models.Message, hasMore bool, err error) {
	page, err = p.store.LatestMessages(ctx, p.conversationID, p.initialSize)
	if err != nil {
		return nil, false, fmt.Errorf("load initial page: %w", err)
	}
	return page, len(page) > 0, nil
}

// LoadOlder fetches up to a page of messages strictly older than before.
// hasMore is true exactly when a full page came back; fewer than requested
// means history is exhausted. On fetch failure the caller's hasMore state
// must stay unchanged so a retry can be attempted.
func (p *Paginator) LoadOlder(ctx context.Context, before models.Timestamp) (page []models.Message, hasMore bool, err error) {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return nil, false, ErrLoadInFlight
	}
	p.inFlight = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inFlight = false
		p.mu.Unlock()
	}()

	page, err = p.store.MessagesBefore(ctx, p.conversationID, before, p.olderSize)
	if err != nil {
		return nil, false, fmt.Errorf("load older page: %w", err)
	}
	return page, len(page) == p.olderSize, nil
}
