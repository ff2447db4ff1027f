package chat

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Deirdris/react-chat/internal/models"
)

// fakeStore is an in-memory Store with a hand-pumped subscription feed.
type fakeStore struct {
	mu       sync.Mutex
	conv     *models.Conversation
	messages []models.Message

	appended    []string
	markers     []string
	appendErr   error
	markReadErr error

	subCh        chan []Change
	subWatermark models.Timestamp
	subCancelled bool

	beforeGate    chan struct{}
	beforeEntered chan struct{}
}

func newFakeStore(conv *models.Conversation, msgs ...models.Message) *fakeStore {
	return &fakeStore{conv: conv, messages: msgs}
}

func (f *fakeStore) sortedDescending() []models.Message {
	out := make([]models.Message, len(f.messages))
	copy(out, f.messages)
	sort.SliceStable(out, func(i, j int) bool {
		return models.MessageLess(out[j], out[i])
	})
	return out
}

func (f *fakeStore) Conversation(_ context.Context, id string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conv == nil || f.conv.ID != id {
		return nil, ErrConversationNotFound
	}
	conv := *f.conv
	return &conv, nil
}

func (f *fakeStore) LatestMessages(_ context.Context, _ string, limit int) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.sortedDescending()
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) MessagesBefore(_ context.Context, _ string, before models.Timestamp, limit int) ([]models.Message, error) {
	f.mu.Lock()
	gate := f.beforeGate
	entered := f.beforeEntered
	f.mu.Unlock()
	if gate != nil {
		if entered != nil {
			select {
			case entered <- struct{}{}:
			default:
			}
		}
		<-gate
	}

	boundary, ok := before.Time()
	if !ok {
		return nil, ErrUncommittedBoundary
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Message
	for _, m := range f.sortedDescending() {
		t, committed := m.CreatedAt.Time()
		if !committed || !t.Before(boundary) {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) Subscribe(_ string, watermark models.Timestamp) (<-chan []Change, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subCh = make(chan []Change, 8)
	f.subWatermark = watermark
	f.subCancelled = false
	ch := f.subCh
	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if !f.subCancelled {
			f.subCancelled = true
			close(ch)
		}
	}
}

func (f *fakeStore) Append(_ context.Context, conversationID, authorID, text string) (models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return models.Message{}, f.appendErr
	}
	f.appended = append(f.appended, text)
	return models.Message{
		ID:             models.NewMessageID(time.Now()),
		ConversationID: conversationID,
		AuthorID:       authorID,
		Text:           text,
		CreatedAt:      models.CommittedAt(time.Now().UTC()),
	}, nil
}

func (f *fakeStore) SetLastRead(_ context.Context, _, userID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markReadErr != nil {
		return f.markReadErr
	}
	f.markers = append(f.markers, messageID)
	if f.conv != nil {
		if f.conv.LastRead == nil {
			f.conv.LastRead = map[string]string{}
		}
		f.conv.LastRead[userID] = messageID
	}
	return nil
}

func (f *fakeStore) LastRead(_ context.Context, _ string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string)
	if f.conv != nil {
		for user, id := range f.conv.LastRead {
			out[user] = id
		}
	}
	return out, nil
}

func (f *fakeStore) push(batch []Change) {
	f.mu.Lock()
	ch := f.subCh
	f.mu.Unlock()
	ch <- batch
}

func (f *fakeStore) recordedMarkers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.markers))
	copy(out, f.markers)
	return out
}

func testConversation() *models.Conversation {
	return &models.Conversation{
		ID:           "conv-1",
		Participants: [2]string{"alice", "bob"},
		LastRead:     map[string]string{},
	}
}

func newTestView(t *testing.T, store Store, opts ...func(*ViewConfig)) *View {
	t.Helper()
	cfg := ViewConfig{
		Store:          store,
		ConversationID: "conv-1",
		ViewerID:       "alice",
		Location:       time.UTC,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	view, err := NewView(cfg)
	require.NoError(t, err)
	return view
}

func TestViewInitialLoadSeedsTimelineAndMarker(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newFakeStore(testConversation(),
		committedMsg("m1", "bob", "hello", base),
		committedMsg("m2", "alice", "hi", base.Add(time.Minute)),
	)
	view := newTestView(t, store)

	require.NoError(t, view.InitialLoad(context.Background()))

	items := view.Items()
	require.Len(t, items, 3)
	require.Equal(t, ItemDaySeparator, items[0].Kind)
	require.Equal(t, "m1", items[1].Message.ID)
	require.Equal(t, "m2", items[2].Message.ID)

	require.Equal(t, []string{"m2"}, store.recordedMarkers(), "newest visible message becomes the read marker")
	require.True(t, view.HasMoreHistory())
}

func TestViewInitialLoadEmptyConversation(t *testing.T) {
	store := newFakeStore(testConversation())
	view := newTestView(t, store)

	require.NoError(t, view.InitialLoad(context.Background()))
	require.Empty(t, view.Items())
	require.Empty(t, store.recordedMarkers())
	require.False(t, view.HasMoreHistory())
}

func TestViewRejectsNonParticipant(t *testing.T) {
	store := newFakeStore(testConversation())
	view := newTestView(t, store, func(cfg *ViewConfig) { cfg.ViewerID = "mallory" })

	require.Error(t, view.InitialLoad(context.Background()))
}

func TestViewSubscribeLiveMergesBatches(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newFakeStore(testConversation(),
		committedMsg("m1", "bob", "hello", base),
	)

	var scrolls int32
	var mu sync.Mutex
	view := newTestView(t, store, func(cfg *ViewConfig) {
		cfg.OnScrollToLatest = func() {
			mu.Lock()
			scrolls++
			mu.Unlock()
		}
	})

	require.NoError(t, view.InitialLoad(context.Background()))
	require.NoError(t, view.SubscribeLive())
	defer view.Close()

	got, ok := store.subWatermark.Time()
	require.True(t, ok)
	require.True(t, got.Equal(base), "subscription is scoped to the newest loaded timestamp")

	batch := []Change{
		{Type: ChangeAdded, Message: committedMsg("m2", "bob", "are you there", base.Add(time.Minute))},
		{Type: ChangeModified, Message: committedMsg("m1", "bob", "edited", base)},
	}
	store.push(batch)

	require.Eventually(t, func() bool {
		items := view.Items()
		for _, item := range items {
			if item.Kind == ItemMessage && item.Message.ID == "m2" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	for _, item := range view.Items() {
		if item.Kind == ItemMessage {
			require.NotEqual(t, "edited", item.Message.Text, "non-added changes are ignored")
		}
	}

	require.Eventually(t, func() bool {
		markers := store.recordedMarkers()
		return len(markers) == 2 && markers[1] == "m2"
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	require.EqualValues(t, 1, scrolls, "one scroll per batch with insertions")
	mu.Unlock()
}

func TestViewRedeliveredBatchIsANoOp(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newFakeStore(testConversation(),
		committedMsg("m1", "bob", "hello", base),
	)

	var mu sync.Mutex
	scrolls := 0
	view := newTestView(t, store, func(cfg *ViewConfig) {
		cfg.OnScrollToLatest = func() {
			mu.Lock()
			scrolls++
			mu.Unlock()
		}
	})

	require.NoError(t, view.InitialLoad(context.Background()))
	require.NoError(t, view.SubscribeLive())
	defer view.Close()

	batch := []Change{
		{Type: ChangeAdded, Message: committedMsg("m2", "bob", "new", base.Add(time.Minute))},
	}
	store.push(batch)
	store.push(batch)

	require.Eventually(t, func() bool {
		for _, item := range view.Items() {
			if item.Kind == ItemMessage && item.Message.ID == "m2" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	// Drain: a third distinct batch proves both replays were consumed.
	store.push([]Change{
		{Type: ChangeAdded, Message: committedMsg("m3", "bob", "done", base.Add(2*time.Minute))},
	})
	require.Eventually(t, func() bool {
		for _, item := range view.Items() {
			if item.Kind == ItemMessage && item.Message.ID == "m3" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	require.Equal(t, 2, scrolls, "replayed batch inserted nothing, so no scroll")
	mu.Unlock()

	count := 0
	for _, item := range view.Items() {
		if item.Kind == ItemMessage && item.Message.ID == "m2" {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestViewMarkerNeverMovesBackward(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newFakeStore(testConversation(),
		committedMsg("m5", "bob", "newest", base.Add(5*time.Minute)),
	)
	view := newTestView(t, store)

	require.NoError(t, view.InitialLoad(context.Background()))
	require.NoError(t, view.SubscribeLive())
	defer view.Close()

	// A late-arriving older message inserts below the newest; the marker
	// (already at m5) must not regress to m2.
	store.push([]Change{
		{Type: ChangeAdded, Message: committedMsg("m2", "bob", "straggler", base.Add(2*time.Minute))},
	})

	require.Eventually(t, func() bool {
		for _, item := range view.Items() {
			if item.Kind == ItemMessage && item.Message.ID == "m2" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, []string{"m5"}, store.recordedMarkers())
}

func TestViewUnsubscribeStopsConsuming(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newFakeStore(testConversation(),
		committedMsg("m1", "bob", "hello", base),
	)
	view := newTestView(t, store)

	require.NoError(t, view.InitialLoad(context.Background()))
	require.NoError(t, view.SubscribeLive())
	require.ErrorIs(t, view.SubscribeLive(), ErrAlreadySubscribed)

	view.Unsubscribe()
	require.True(t, store.subCancelled)

	// A second subscription is allowed after teardown.
	require.NoError(t, view.SubscribeLive())
	view.Close()
}

func TestViewSubscribeRequiresInitialLoad(t *testing.T) {
	store := newFakeStore(testConversation())
	view := newTestView(t, store)
	require.ErrorIs(t, view.SubscribeLive(), ErrNotLoaded)
	require.ErrorIs(t, view.LoadOlder(context.Background()), ErrNotLoaded)
}

func TestViewSendDropsWhitespaceOnlyText(t *testing.T) {
	store := newFakeStore(testConversation())
	view := newTestView(t, store)

	require.NoError(t, view.Send(context.Background(), "   \n\t "))
	require.Empty(t, store.appended)

	require.NoError(t, view.Send(context.Background(), "  hello  "))
	require.Equal(t, []string{"  hello  "}, store.appended, "interior whitespace is preserved")
}

func TestViewSendSurfacesStoreFailure(t *testing.T) {
	store := newFakeStore(testConversation())
	store.appendErr = ErrConversationNotFound
	view := newTestView(t, store)

	require.ErrorIs(t, view.Send(context.Background(), "hello"), ErrConversationNotFound)
}

func TestViewReloadMarkersPicksUpPeerReceipt(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newFakeStore(testConversation(),
		committedMsg("m1", "alice", "anyone home", base),
	)
	view := newTestView(t, store)
	require.NoError(t, view.InitialLoad(context.Background()))

	for _, item := range view.Items() {
		require.False(t, item.ShowRead)
	}

	// The peer reads the conversation on their device.
	store.mu.Lock()
	store.conv.LastRead["bob"] = "m1"
	store.mu.Unlock()

	require.NoError(t, view.ReloadMarkers(context.Background()))
	var seen bool
	for _, item := range view.Items() {
		if item.Kind == ItemMessage && item.Message.ID == "m1" {
			seen = item.ShowRead
		}
	}
	require.True(t, seen, "receipt appears after the marker snapshot refresh")
}

func TestViewStaleOlderPageDiscardedAfterClose(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newFakeStore(testConversation(),
		committedMsg("m1", "bob", "old", base),
		committedMsg("m2", "bob", "new", base.Add(time.Minute)),
	)
	store.beforeGate = make(chan struct{})
	store.beforeEntered = make(chan struct{}, 1)
	view := newTestView(t, store, func(cfg *ViewConfig) {
		cfg.InitialPageSize = 1
		cfg.OlderPageSize = 1
	})

	require.NoError(t, view.InitialLoad(context.Background()))
	require.Len(t, view.Items(), 2, "separator plus the newest message")

	done := make(chan error, 1)
	go func() { done <- view.LoadOlder(context.Background()) }()
	<-store.beforeEntered

	// Navigating away while the fetch is in flight.
	view.Close()
	close(store.beforeGate)
	require.NoError(t, <-done)

	for _, item := range view.Items() {
		if item.Kind == ItemMessage {
			require.NotEqual(t, "m1", item.Message.ID, "stale page must be discarded")
		}
	}
}

func TestViewLoadOlderExtendsTimeline(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	var msgs []models.Message
	for i := 0; i < 25; i++ {
		msgs = append(msgs, committedMsg(
			models.NewMessageID(base.Add(time.Duration(i)*time.Minute)),
			"bob", "history", base.Add(time.Duration(i)*time.Minute)))
	}
	store := newFakeStore(testConversation(), msgs...)
	view := newTestView(t, store, func(cfg *ViewConfig) {
		cfg.InitialPageSize = 20
		cfg.OlderPageSize = 10
	})

	require.NoError(t, view.InitialLoad(context.Background()))
	require.True(t, view.HasMoreHistory())

	require.NoError(t, view.LoadOlder(context.Background()))
	messageCount := 0
	for _, item := range view.Items() {
		if item.Kind == ItemMessage {
			messageCount++
		}
	}
	require.Equal(t, 25, messageCount)
	require.False(t, view.HasMoreHistory(), "a short page ends pagination")

	// At the end of history LoadOlder is a no-op.
	require.NoError(t, view.LoadOlder(context.Background()))
}
