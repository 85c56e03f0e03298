package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Conversation kinds.
const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"
)

// Conversation is one row of the conversations table.
type Conversation struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Type      string    `json:"type" db:"type"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// GroupInfo describes the group attributes of a group conversation.
type GroupInfo struct {
	Name      string    `json:"name"`
	AvatarURL *string   `json:"avatarUrl,omitempty"`
	CreatedBy uuid.UUID `json:"createdBy"`
}

// LastMessageRow is the denormalized newest message of a conversation.
type LastMessageRow struct {
	Content   *string   `json:"content"`
	SenderID  uuid.UUID `json:"senderId"`
	CreatedAt time.Time `json:"createdAt"`
}

// ParticipantDetail is one member of a conversation joined with their
// profile.
type ParticipantDetail struct {
	UserID      uuid.UUID `json:"userId" db:"user_id"`
	DisplayName string    `json:"displayName" db:"display_name"`
	AvatarURL   *string   `json:"avatarUrl,omitempty" db:"avatar_url"`
	UnreadCount int       `json:"unreadCount" db:"unread_count"`
	JoinedAt    time.Time `json:"joinedAt" db:"joined_at"`
}

// ConversationDetail is a conversation with its group info, last message,
// and participant list. It is the payload of newGroup events and
// conversation listings.
type ConversationDetail struct {
	ConversationID uuid.UUID           `json:"conversationId"`
	Type           string              `json:"type"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
	GroupInfo      *GroupInfo          `json:"groupInfo,omitempty"`
	LastMessage    *LastMessageRow     `json:"lastMessage,omitempty"`
	Participants   []ParticipantDetail `json:"participants"`
}

// ConversationStore reads and writes conversations and their participants.
type ConversationStore struct {
	pool Querier
}

// FindByID returns a conversation, or ErrNotFound.
func (s *ConversationStore) FindByID(ctx context.Context, q Querier, id uuid.UUID) (*Conversation, error) {
	rows, err := q.Query(ctx, `
		SELECT id, type, created_at, updated_at
		FROM conversations
		WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	c, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[Conversation])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return &c, nil
}

// FindDirectBetween returns the direct conversation both users participate
// in, or ErrNotFound.
func (s *ConversationStore) FindDirectBetween(ctx context.Context, q Querier, userA, userB uuid.UUID) (*Conversation, error) {
	rows, err := q.Query(ctx, `
		SELECT c.id, c.type, c.created_at, c.updated_at
		FROM conversations c
		WHERE c.type = 'direct'
		AND EXISTS (
			SELECT 1 FROM participants p1
			WHERE p1.conversation_id = c.id AND p1.user_id = $1 AND p1.deleted_at IS NULL
		)
		AND EXISTS (
			SELECT 1 FROM participants p2
			WHERE p2.conversation_id = c.id AND p2.user_id = $2 AND p2.deleted_at IS NULL
		)
		LIMIT 1`, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("find direct conversation: %w", err)
	}
	c, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[Conversation])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find direct conversation: %w", err)
	}
	return &c, nil
}

// CreateDirect creates a direct conversation with both users as
// participants.
func (s *ConversationStore) CreateDirect(ctx context.Context, q Querier, userA, userB uuid.UUID) (*Conversation, error) {
	c, err := s.create(ctx, q, ConversationDirect)
	if err != nil {
		return nil, err
	}
	for _, userID := range []uuid.UUID{userA, userB} {
		if _, err := q.Exec(ctx, `
			INSERT INTO participants (conversation_id, user_id, unread_count)
			VALUES ($1, $2, 0)`, c.ID, userID); err != nil {
			return nil, fmt.Errorf("add participant: %w", err)
		}
	}
	return c, nil
}

// CreateGroup creates a group conversation with the given members. The
// creator must be included in memberIDs.
func (s *ConversationStore) CreateGroup(ctx context.Context, q Querier, name string, memberIDs []uuid.UUID, createdBy uuid.UUID) (*Conversation, error) {
	c, err := s.create(ctx, q, ConversationGroup)
	if err != nil {
		return nil, err
	}

	if _, err := q.Exec(ctx, `
		INSERT INTO group_conversations (conversation_id, name, created_by)
		VALUES ($1, $2, $3)`, c.ID, name, createdBy); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}

	if _, err := q.Exec(ctx, `
		INSERT INTO participants (conversation_id, user_id, unread_count, joined_at)
		SELECT $1, unnest($2::uuid[]), 0, NOW()`, c.ID, memberIDs); err != nil {
		return nil, fmt.Errorf("add group participants: %w", err)
	}
	return c, nil
}

func (s *ConversationStore) create(ctx context.Context, q Querier, typ string) (*Conversation, error) {
	rows, err := q.Query(ctx, `
		INSERT INTO conversations (id, type)
		VALUES ($1, $2)
		RETURNING id, type, created_at, updated_at`, uuid.New(), typ)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	c, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[Conversation])
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &c, nil
}

// IsMember reports whether the user is a live participant of the
// conversation.
func (s *ConversationStore) IsMember(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	var isMember bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM participants
			WHERE conversation_id = $1 AND user_id = $2 AND deleted_at IS NULL
		)`, conversationID, userID).Scan(&isMember)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return isMember, nil
}

// Touch bumps the conversation's updated_at so listings sort it first.
func (s *ConversationStore) Touch(ctx context.Context, q Querier, conversationID uuid.UUID) error {
	if _, err := q.Exec(ctx, `
		UPDATE conversations SET updated_at = NOW() WHERE id = $1`, conversationID); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

// IncrementUnread bumps one participant's unread counter.
func (s *ConversationStore) IncrementUnread(ctx context.Context, q Querier, conversationID, userID uuid.UUID) error {
	if _, err := q.Exec(ctx, `
		UPDATE participants
		SET unread_count = unread_count + 1
		WHERE conversation_id = $1 AND user_id = $2 AND deleted_at IS NULL`,
		conversationID, userID); err != nil {
		return fmt.Errorf("increment unread: %w", err)
	}
	return nil
}

// IncrementUnreadForOthers bumps the unread counter of every participant
// except the sender.
func (s *ConversationStore) IncrementUnreadForOthers(ctx context.Context, q Querier, conversationID, senderID uuid.UUID) error {
	if _, err := q.Exec(ctx, `
		UPDATE participants
		SET unread_count = unread_count + 1
		WHERE conversation_id = $1 AND user_id != $2 AND deleted_at IS NULL`,
		conversationID, senderID); err != nil {
		return fmt.Errorf("increment unread for others: %w", err)
	}
	return nil
}

// MarkSeen zeroes the participant's unread counter and records the last
// message they have seen.
func (s *ConversationStore) MarkSeen(ctx context.Context, q Querier, conversationID, userID, lastMessageID uuid.UUID) error {
	if _, err := q.Exec(ctx, `
		UPDATE participants
		SET unread_count = 0, last_seen_message_id = $3
		WHERE conversation_id = $1 AND user_id = $2 AND deleted_at IS NULL`,
		conversationID, userID, lastMessageID); err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// Detail loads a conversation with group info, last message, and
// participants.
func (s *ConversationStore) Detail(ctx context.Context, conversationID uuid.UUID) (*ConversationDetail, error) {
	var (
		d              ConversationDetail
		groupName      *string
		groupAvatarURL *string
		groupCreatedBy *uuid.UUID
		lastContent    *string
		lastSenderID   *uuid.UUID
		lastCreatedAt  *time.Time
	)

	err := s.pool.QueryRow(ctx, `
		SELECT
			c.id, c.type, c.created_at, c.updated_at,
			g.name, g.avatar_url, g.created_by,
			m.content, m.sender_id, m.created_at
		FROM conversations c
		LEFT JOIN group_conversations g ON g.conversation_id = c.id
		LEFT JOIN LATERAL (
			SELECT content, sender_id, created_at
			FROM messages
			WHERE conversation_id = c.id AND deleted_at IS NULL
			ORDER BY created_at DESC
			LIMIT 1
		) m ON TRUE
		WHERE c.id = $1`, conversationID).Scan(
		&d.ConversationID, &d.Type, &d.CreatedAt, &d.UpdatedAt,
		&groupName, &groupAvatarURL, &groupCreatedBy,
		&lastContent, &lastSenderID, &lastCreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("conversation detail: %w", err)
	}

	if groupName != nil && groupCreatedBy != nil {
		d.GroupInfo = &GroupInfo{Name: *groupName, AvatarURL: groupAvatarURL, CreatedBy: *groupCreatedBy}
	}
	if lastSenderID != nil && lastCreatedAt != nil {
		d.LastMessage = &LastMessageRow{Content: lastContent, SenderID: *lastSenderID, CreatedAt: *lastCreatedAt}
	}

	rows, err := s.pool.Query(ctx, `
		SELECT p.user_id, u.display_name, u.avatar_url, p.unread_count, p.joined_at
		FROM participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.conversation_id = $1 AND p.deleted_at IS NULL`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation participants: %w", err)
	}
	d.Participants, err = pgx.CollectRows(rows, pgx.RowToStructByName[ParticipantDetail])
	if err != nil {
		return nil, fmt.Errorf("conversation participants: %w", err)
	}

	return &d, nil
}

// MemberIDs returns the user IDs of all live participants.
func (s *ConversationStore) MemberIDs(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id FROM participants
		WHERE conversation_id = $1 AND deleted_at IS NULL`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("member ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("member ids: %w", err)
	}
	return ids, nil
}
