// Package roster manages the user directory and the conversation list: who
// you can talk to and which conversations you already have, ranked by recent
// activity.
package roster

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Deirdris/react-chat/internal/db"
	"github.com/Deirdris/react-chat/internal/logging"
	"github.com/Deirdris/react-chat/internal/models"
)

// DefaultListLimit bounds the conversation list when the caller passes no
// limit.
const DefaultListLimit = 50

// ErrUnknownPeer is returned when opening a conversation with a user that is
// not in the directory.
var ErrUnknownPeer = errors.New("peer is not a known user")

// Entry pairs a conversation with the other participant's profile for list
// display. Peer is nil when the profile is missing from the directory.
type Entry struct {
	Conversation *models.Conversation
	Peer         *models.User
}

// Service exposes directory and conversation-list operations. All operations
// take the acting user explicitly.
type Service struct {
	users         *db.UserRepository
	conversations *db.ConversationRepository
	logger        zerolog.Logger
	now           func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithNow overrides the clock, used by tests.
func WithNow(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a roster service over the given repositories.
func NewService(users *db.UserRepository, conversations *db.ConversationRepository, opts ...ServiceOption) *Service {
	s := &Service{
		users:         users,
		conversations: conversations,
		logger:        logging.Component("roster"),
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignIn registers or refreshes a user profile. Signing in twice updates the
// display name and photo in place.
func (s *Service) SignIn(ctx context.Context, id, displayName, photoURL string) (*models.User, error) {
	user := &models.User{
		ID:          strings.TrimSpace(id),
		DisplayName: strings.TrimSpace(displayName),
		PhotoURL:    strings.TrimSpace(photoURL),
		CreatedAt:   s.now(),
	}
	if user.DisplayName == "" {
		user.DisplayName = user.ID
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to sign in %s: %w", user.ID, err)
	}
	s.logger.Info().Str("user_id", user.ID).Msg("User signed in")
	return user, nil
}

// Profile fetches a user profile by ID.
func (s *Service) Profile(ctx context.Context, id string) (*models.User, error) {
	return s.users.Get(ctx, id)
}

// Search finds users whose display name contains the query,
// case-insensitively.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]*models.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	return s.users.SearchByName(ctx, query, limit)
}

// Conversations lists the viewer's conversations ranked by last activity,
// each paired with the peer's profile.
func (s *Service) Conversations(ctx context.Context, viewerID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	convs, err := s.conversations.ListByParticipant(ctx, viewerID, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(convs))
	for _, conv := range convs {
		entry := Entry{Conversation: conv}
		if peerID, ok := conv.Peer(viewerID); ok {
			peer, err := s.users.Get(ctx, peerID)
			switch {
			case err == nil:
				entry.Peer = peer
			case errors.Is(err, db.ErrUserNotFound):
				s.logger.Warn().Str("user_id", peerID).Msg("Conversation peer missing from directory")
			default:
				return nil, err
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Open returns the conversation between the viewer and peer, creating it
// lazily on first contact. Opening is idempotent and symmetric: both sides
// land on the same conversation regardless of who opened first.
func (s *Service) Open(ctx context.Context, viewerID, peerID string) (*models.Conversation, error) {
	if _, err := s.users.Get(ctx, peerID); err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, peerID)
		}
		return nil, err
	}

	conv, err := s.conversations.UpsertByParticipants(ctx, viewerID, peerID)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().
		Str("conversation_id", conv.ID).
		Str("user_id", viewerID).
		Str("peer_id", peerID).
		Msg("Conversation opened")
	return conv, nil
}
