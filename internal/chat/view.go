package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Deirdris/react-chat/internal/logging"
	"github.com/Deirdris/react-chat/internal/models"
)

// View errors.
var (
	ErrNotLoaded         = errors.New("initial page not loaded")
	ErrAlreadySubscribed = errors.New("live subscription already active")
	ErrViewClosed        = errors.New("view is closed")
)

// ViewConfig configures a conversation view controller. Identity is always
// explicit; there is no ambient current user.
type ViewConfig struct {
	Store          Store
	ConversationID string
	ViewerID       string

	// InitialPageSize and OlderPageSize bound the paginated fetches.
	InitialPageSize int
	OlderPageSize   int

	// Location is used for calendar-date grouping (defaults to time.Local).
	Location *time.Location

	// OnScrollToLatest fires exactly once per live batch that inserted at
	// least one new message.
	OnScrollToLatest func()

	// OnUpdate fires after every timeline mutation, once the rendered item
	// list has been recomputed.
	OnUpdate func()

	Logger *zerolog.Logger
}

// View owns the per-conversation timeline, read-marker snapshot, and rendered
// item list. All state is private to one view instance; a slow response for a
// previous conversation can never corrupt another view.
type View struct {
	store    Store
	viewerID string
	convID   string
	loc      *time.Location
	logger   zerolog.Logger

	onScrollToLatest func()
	onUpdate         func()

	mu        sync.Mutex
	gen       int
	loaded    bool
	timeline  *Timeline
	paginator *Paginator
	lastRead  map[string]string
	peerID    string
	items     []RenderItem

	unsubscribe func()
	consumerEnd chan struct{}
}

// NewView creates a view controller for one conversation.
func NewView(cfg ViewConfig) (*View, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if strings.TrimSpace(cfg.ConversationID) == "" {
		return nil, errors.New("conversation id is required")
	}
	if strings.TrimSpace(cfg.ViewerID) == "" {
		return nil, errors.New("viewer id is required")
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	logger := logging.WithConversation(cfg.ConversationID).With().Str("component", "chat-view").Logger()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("conversation_id", cfg.ConversationID).Logger()
	}

	return &View{
		store:            cfg.Store,
		viewerID:         cfg.ViewerID,
		convID:           cfg.ConversationID,
		loc:              loc,
		logger:           logger,
		onScrollToLatest: cfg.OnScrollToLatest,
		onUpdate:         cfg.OnUpdate,
		timeline:         NewTimeline(),
		paginator:        NewPaginator(cfg.Store, cfg.ConversationID, cfg.InitialPageSize, cfg.OlderPageSize),
		lastRead:         make(map[string]string),
	}, nil
}

// InitialLoad fetches the conversation document and the newest message page,
// seeds the timeline and watermark, and advances the viewer's read marker.
// It must complete before SubscribeLive; the live watermark is never derived
// from a partial fetch.
func (v *View) InitialLoad(ctx context.Context) error {
	conv, err := v.store.Conversation(ctx, v.convID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(v.viewerID) {
		return errors.New("viewer is not a participant")
	}

	gen := v.generation()
	page, hasMore, err := v.paginator.LoadInitial(ctx)
	if err != nil {
		return err
	}

	v.mu.Lock()
	if v.gen != gen {
		v.mu.Unlock()
		return ErrViewClosed
	}
	v.timeline.Reset()
	v.timeline.Merge(page)
	v.timeline.SetHasMoreHistory(hasMore)
	v.lastRead = make(map[string]string, len(conv.LastRead))
	for user, id := range conv.LastRead {
		v.lastRead[user] = id
	}
	peer, _ := conv.Peer(v.viewerID)
	v.peerID = peer
	v.loaded = true
	newest, hasNewest := v.timeline.Newest()
	v.recomputeLocked()
	v.mu.Unlock()

	if hasNewest {
		v.markRead(ctx, newest.ID)
	}
	return nil
}

// LoadOlder fetches the next older page and appends it to the timeline tail.
// Requests are serialized per view; a call while one is in flight returns
// ErrLoadInFlight. Results are discarded if the view was closed meanwhile.
// On fetch failure hasMoreHistory is left unchanged so the UI can retry.
func (v *View) LoadOlder(ctx context.Context) error {
	v.mu.Lock()
	if !v.loaded {
		v.mu.Unlock()
		return ErrNotLoaded
	}
	if !v.timeline.HasMoreHistory() {
		v.mu.Unlock()
		return nil
	}
	before, ok := v.timeline.OldestCommitted()
	gen := v.gen
	v.mu.Unlock()
	if !ok {
		return nil
	}

	page, hasMore, err := v.paginator.LoadOlder(ctx, before)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gen != gen {
		v.logger.Debug().Msg("discarding stale older page")
		return nil
	}
	v.timeline.Merge(page)
	v.timeline.SetHasMoreHistory(hasMore)
	v.recomputeLocked()
	return nil
}

// SubscribeLive opens the live update feed scoped to the current watermark.
// The initial load must have completed first. At most one subscription is
// ever active for a view.
func (v *View) SubscribeLive() error {
	v.mu.Lock()
	if !v.loaded {
		v.mu.Unlock()
		return ErrNotLoaded
	}
	if v.unsubscribe != nil {
		v.mu.Unlock()
		return ErrAlreadySubscribed
	}
	watermark, _ := v.timeline.Watermark()
	gen := v.gen

	batches, cancel := v.store.Subscribe(v.convID, watermark)
	done := make(chan struct{})
	v.unsubscribe = cancel
	v.consumerEnd = done
	v.mu.Unlock()

	go v.consume(batches, done, gen)
	return nil
}

// Unsubscribe tears down the live subscription and waits for the consumer to
// drain. Any in-flight results for this view are discarded afterwards. Safe
// to call when no subscription is active.
func (v *View) Unsubscribe() {
	v.mu.Lock()
	cancel := v.unsubscribe
	done := v.consumerEnd
	v.unsubscribe = nil
	v.consumerEnd = nil
	v.gen++
	v.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Close shuts the view down; further results are discarded.
func (v *View) Close() {
	v.Unsubscribe()
}

// Send validates and commits a new message. Whitespace-only text is silently
// dropped without touching the store. The message is not inserted locally; it
// arrives back through the live feed. On failure the caller keeps the input.
func (v *View) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	_, err := v.store.Append(ctx, v.convID, v.viewerID, text)
	return err
}

// Items returns the current rendered item list, oldest first.
func (v *View) Items() []RenderItem {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]RenderItem, len(v.items))
	copy(out, v.items)
	return out
}

// HasMoreHistory reports whether older pages may remain.
func (v *View) HasMoreHistory() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.timeline.HasMoreHistory()
}

// consume is the merge loop: it applies delta batches in delivery order until
// the producer channel closes.
func (v *View) consume(batches <-chan []Change, done chan struct{}, gen int) {
	defer close(done)

	for batch := range batches {
		added := make([]models.Message, 0, len(batch))
		for _, change := range batch {
			// Edits and deletions are out of scope; only appends matter.
			if change.Type != ChangeAdded {
				continue
			}
			added = append(added, change.Message)
		}
		if len(added) == 0 {
			continue
		}

		v.mu.Lock()
		if v.gen != gen {
			v.mu.Unlock()
			return
		}
		inserted := v.timeline.Merge(added)
		var newestID string
		if inserted > 0 {
			if newest, ok := v.timeline.Newest(); ok {
				newestID = newest.ID
			}
			v.recomputeLocked()
		}
		v.mu.Unlock()

		if inserted > 0 {
			v.markRead(context.Background(), newestID)
			if v.onScrollToLatest != nil {
				v.onScrollToLatest()
			}
		}
	}
}

// markRead advances the viewer's read marker, forward-only and
// fire-and-forget: a redelivered older batch never regresses the marker, and
// a write failure only costs a cosmetic receipt.
func (v *View) markRead(ctx context.Context, messageID string) {
	if messageID == "" {
		return
	}

	v.mu.Lock()
	current := v.lastRead[v.viewerID]
	if current != "" && messageID <= current {
		v.mu.Unlock()
		return
	}
	v.lastRead[v.viewerID] = messageID
	v.mu.Unlock()

	if err := v.store.SetLastRead(ctx, v.convID, v.viewerID, messageID); err != nil {
		v.logger.Warn().Err(err).Str("message_id", messageID).Msg("read marker write failed")
	}
}

// ReloadMarkers refetches the read-marker snapshot from the store, picking up
// peer marker movement, and recomputes the item list.
func (v *View) ReloadMarkers(ctx context.Context) error {
	markers, err := v.store.LastRead(ctx, v.convID)
	if err != nil {
		return err
	}
	v.RefreshMarkers(markers)
	return nil
}

// RefreshMarkers replaces the read-marker snapshot, e.g. after the store
// reports the peer's marker moved, and recomputes the item list.
func (v *View) RefreshMarkers(lastRead map[string]string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastRead = make(map[string]string, len(lastRead))
	for user, id := range lastRead {
		v.lastRead[user] = id
	}
	if v.loaded {
		v.recomputeLocked()
	}
}

func (v *View) generation() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.gen
}

// recomputeLocked rebuilds the rendered item list; callers hold v.mu.
func (v *View) recomputeLocked() {
	v.items = Render(v.timeline.Messages(), v.viewerID, v.lastRead[v.peerID], v.loc)
	if v.onUpdate != nil {
		go v.onUpdate()
	}
}
