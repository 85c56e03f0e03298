package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/markb/chatlite/internal/log"
	"github.com/markb/chatlite/internal/protocol"
	"github.com/markb/chatlite/internal/store"
)

// ConversationRepo persists conversation operations. *store.Store
// satisfies it.
type ConversationRepo interface {
	MarkSeen(ctx context.Context, conversationID, userID uuid.UUID) (*store.Message, bool, error)
	CreateGroupConversation(ctx context.Context, name string, memberIDs []uuid.UUID, createdBy uuid.UUID) (*store.ConversationDetail, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID, before *time.Time, limit int) ([]store.Message, error)
}

// ProfileSource resolves user profiles for event payloads.
type ProfileSource interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*store.Profile, error)
}

// ConversationService handles read receipts and group creation.
type ConversationService struct {
	repo     ConversationRepo
	profiles ProfileSource
	hub      Broadcaster
}

// NewConversationService creates a conversation service.
func NewConversationService(repo ConversationRepo, profiles ProfileSource, hub Broadcaster) *ConversationService {
	return &ConversationService{repo: repo, profiles: profiles, hub: hub}
}

// History page sizes.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// History returns one page of the conversation's messages in ascending
// creation order. A non-nil before bounds the page to messages created
// strictly earlier. The returned cursor is the creation time of the
// oldest message on the page when more history remains, nil otherwise.
func (s *ConversationService) History(ctx context.Context, conversationID uuid.UUID, before *time.Time, limit int) ([]store.Message, *time.Time, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	// Fetch one extra row to learn whether another page exists.
	msgs, err := s.repo.ListMessages(ctx, conversationID, before, limit+1)
	if err != nil {
		return nil, nil, err
	}

	var next *time.Time
	if len(msgs) > limit {
		msgs = msgs[:limit]
		oldest := msgs[len(msgs)-1].CreatedAt
		next = &oldest
	}

	// Rows arrive newest first; clients render oldest first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, next, nil
}

// conversationUpdate is the conversation snapshot carried by readMessage
// events.
type conversationUpdate struct {
	ID           uuid.UUID      `json:"_id"`
	UnreadCounts map[string]int `json:"unreadCounts"`
	SeenBy       []uuid.UUID    `json:"seenBy"`
}

// MarkSeen records that the user has read the conversation up to its
// newest message and notifies the room. Nothing happens when the
// conversation is empty or the newest message is the user's own.
func (s *ConversationService) MarkSeen(ctx context.Context, conversationID, userID uuid.UUID) error {
	last, marked, err := s.repo.MarkSeen(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !marked {
		return nil
	}

	sender := protocol.SenderInfo{ID: last.SenderID}
	if profile, err := s.profiles.GetProfile(ctx, last.SenderID); err == nil {
		sender.DisplayName = profile.DisplayName
		if profile.AvatarURL != nil {
			sender.AvatarURL = *profile.AvatarURL
		}
	} else {
		log.Warn("read receipt sender profile lookup failed", "user_id", last.SenderID, "error", err)
	}

	content := ""
	if last.Content != nil {
		content = *last.Content
	}
	info := protocol.LastMessageInfo{
		ID:        last.ID,
		Content:   content,
		CreatedAt: last.CreatedAt.UTC().Format(time.RFC3339),
		Sender:    sender,
	}

	update, err := json.Marshal(conversationUpdate{
		ID:           conversationID,
		UnreadCounts: map[string]int{},
		SeenBy:       []uuid.UUID{userID},
	})
	if err != nil {
		return fmt.Errorf("encode conversation update: %w", err)
	}

	s.hub.BroadcastToRoom(conversationID, protocol.NewReadMessage(update, info), uuid.Nil)
	return nil
}

// CreateGroup creates a group conversation and notifies every member
// except the creator, who already has the HTTP response.
func (s *ConversationService) CreateGroup(ctx context.Context, name string, memberIDs []uuid.UUID, createdBy uuid.UUID) (*store.ConversationDetail, error) {
	detail, err := s.repo.CreateGroupConversation(ctx, name, memberIDs, createdBy)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(detail)
	if err != nil {
		return nil, fmt.Errorf("encode conversation: %w", err)
	}

	var recipients []uuid.UUID
	for _, p := range detail.Participants {
		if p.UserID != createdBy {
			recipients = append(recipients, p.UserID)
		}
	}
	s.hub.SendToUsers(recipients, protocol.NewGroupEvent(payload))

	return detail, nil
}
