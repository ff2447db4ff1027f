package db

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Deirdris/react-chat/internal/chat"
	"github.com/Deirdris/react-chat/internal/models"
)

// changeFeed polls a conversation for new messages and emits them as added
// batches. The watermark query is inclusive at the boundary so commits that
// share an instant with the newest delivered message are not skipped; the
// seen set filters out the ones already delivered.
type changeFeed struct {
	messages       *MessageRepository
	conversationID string
	interval       time.Duration
	logger         zerolog.Logger

	hasWatermark bool
	watermark    time.Time
	seen         map[string]struct{}
}

func (f *changeFeed) init(watermark models.Timestamp) {
	f.seen = make(map[string]struct{})
	if t, ok := watermark.Time(); ok {
		f.hasWatermark = true
		f.watermark = t
	}
}

func (f *changeFeed) run(ctx context.Context, out chan<- []chat.Change) {
	defer close(out)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		batch, err := f.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.logger.Warn().Err(err).Msg("Change feed poll failed")
			continue
		}
		if len(batch) == 0 {
			continue
		}

		select {
		case out <- batch:
		case <-ctx.Done():
			return
		}
	}
}

func (f *changeFeed) poll(ctx context.Context) ([]chat.Change, error) {
	var (
		rows []models.Message
		err  error
	)
	if f.hasWatermark {
		rows, err = f.messages.Since(ctx, f.conversationID, f.watermark)
	} else {
		rows, err = f.messages.All(ctx, f.conversationID)
	}
	if err != nil {
		return nil, err
	}

	var batch []chat.Change
	for _, message := range rows {
		if _, ok := f.seen[message.ID]; ok {
			continue
		}
		batch = append(batch, chat.Change{Type: chat.ChangeAdded, Message: message})
	}
	if len(batch) == 0 {
		return nil, nil
	}

	f.advance(batch)
	return batch, nil
}

// advance moves the watermark to the newest committed timestamp of the
// delivered batch and resets the seen set to the messages sharing that
// boundary instant.
func (f *changeFeed) advance(batch []chat.Change) {
	var (
		boundary time.Time
		found    bool
	)
	for _, change := range batch {
		if t, ok := change.Message.CreatedAt.Time(); ok {
			if !found || t.After(boundary) {
				boundary = t
				found = true
			}
		}
	}
	if !found {
		return
	}

	if !f.hasWatermark || boundary.After(f.watermark) {
		f.hasWatermark = true
		f.watermark = boundary
		f.seen = make(map[string]struct{})
	}
	for _, change := range batch {
		if t, ok := change.Message.CreatedAt.Time(); ok && t.Equal(f.watermark) {
			f.seen[change.Message.ID] = struct{}{}
		}
	}
}
