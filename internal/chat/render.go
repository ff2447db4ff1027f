package chat

import (
	"time"

	"github.com/Deirdris/react-chat/internal/models"
)

// timestampGap is the minimum spacing between visible timestamp labels
// within a day; rapid-fire messages coalesce under one label.
const timestampGap = 5 * time.Minute

// ItemKind discriminates rendered items.
type ItemKind int

const (
	ItemDaySeparator ItemKind = iota
	ItemMessage
)

// RenderItem is one entry of the computed display list, oldest first.
type RenderItem struct {
	Kind ItemKind

	// Separator fields. HasDate is false for a boundary forced by a message
	// whose timestamp is still pending.
	Date    time.Time
	HasDate bool

	// Message fields.
	Message       models.Message
	ShowTimestamp bool
	ShowRead      bool
	Outgoing      bool
}

// Render computes the display list from a timeline snapshot (descending) and
// a read-marker snapshot. It is deterministic and side-effect-free.
//
// Walking from oldest to newest: a day separator is inserted whenever the
// calendar date changes, with a pending timestamp counting as a different day
// from any neighbor. A timestamp label is attached to the oldest and newest
// messages and to any message committed five minutes or more after the
// next-older one. The read indicator is attached to a message only when it
// was authored by the viewer and its ID equals the peer's stored marker
// exactly, so at most one message carries it.
func Render(messages []models.Message, viewerID, peerLastRead string, loc *time.Location) []RenderItem {
	if loc == nil {
		loc = time.Local
	}

	items := make([]RenderItem, 0, len(messages)*2)
	for i := len(messages) - 1; i >= 0; i-- {
		cur := messages[i]

		var older *models.Message
		if i < len(messages)-1 {
			older = &messages[i+1]
		}

		if older == nil || !cur.CreatedAt.SameDay(older.CreatedAt, loc) {
			sep := RenderItem{Kind: ItemDaySeparator}
			if t, ok := cur.CreatedAt.Time(); ok {
				sep.Date = t.In(loc)
				sep.HasDate = true
			}
			items = append(items, sep)
		}

		items = append(items, RenderItem{
			Kind:          ItemMessage,
			Message:       cur,
			ShowTimestamp: showTimestamp(cur, older) || (i == 0 && cur.CreatedAt.Committed()),
			ShowRead:      cur.AuthorID == viewerID && peerLastRead != "" && cur.ID == peerLastRead,
			Outgoing:      cur.AuthorID == viewerID,
		})
	}
	return items
}

func showTimestamp(cur models.Message, older *models.Message) bool {
	curTime, ok := cur.CreatedAt.Time()
	if !ok {
		// Nothing to label until the store resolves the timestamp.
		return false
	}
	if older == nil {
		return true
	}
	olderTime, ok := older.CreatedAt.Time()
	if !ok {
		// A pending neighbor breaks the grouping run.
		return true
	}
	return curTime.Sub(olderTime) >= timestampGap
}
