package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a row does not exist or is soft-deleted.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when a user acts on a row they do not own.
var ErrForbidden = errors.New("forbidden")

// Message is one row of the messages table.
type Message struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	ConversationID uuid.UUID  `json:"conversationId" db:"conversation_id"`
	SenderID       uuid.UUID  `json:"senderId" db:"sender_id"`
	ReplyToID      *uuid.UUID `json:"replyToId,omitempty" db:"reply_to_id"`
	Type           string     `json:"type" db:"type"`
	Content        *string    `json:"content" db:"content"`
	FileURL        *string    `json:"fileUrl,omitempty" db:"file_url"`
	IsEdited       bool       `json:"isEdited" db:"is_edited"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty" db:"deleted_at"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time  `json:"updatedAt" db:"updated_at"`
}

// InsertMessage is the writable subset of a message.
type InsertMessage struct {
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	ReplyToID      *uuid.UUID
	Type           string // defaults to "text"
	Content        *string
	FileURL        *string
}

// MessageStore reads and writes messages.
type MessageStore struct {
	pool Querier
}

const messageColumns = `id, conversation_id, sender_id, reply_to_id, type, content, file_url, is_edited, deleted_at, created_at, updated_at`

// Create inserts a message and returns the stored row.
func (s *MessageStore) Create(ctx context.Context, q Querier, msg *InsertMessage) (*Message, error) {
	typ := msg.Type
	if typ == "" {
		typ = "text"
	}

	rows, err := q.Query(ctx, `
		INSERT INTO messages (conversation_id, sender_id, reply_to_id, type, content, file_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+messageColumns,
		msg.ConversationID, msg.SenderID, msg.ReplyToID, typ, msg.Content, msg.FileURL)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	m, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[Message])
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &m, nil
}

// FindByID returns a message that has not been soft-deleted.
func (s *MessageStore) FindByID(ctx context.Context, q Querier, id uuid.UUID) (*Message, error) {
	rows, err := q.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return nil, fmt.Errorf("find message: %w", err)
	}
	m, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[Message])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find message: %w", err)
	}
	return &m, nil
}

// Edit replaces the content of a message the user sent. It returns the
// updated row, or ErrNotFound when no live row matched.
func (s *MessageStore) Edit(ctx context.Context, q Querier, id, senderID uuid.UUID, content string) (*Message, error) {
	rows, err := q.Query(ctx, `
		UPDATE messages
		SET content = $3, is_edited = TRUE, updated_at = NOW()
		WHERE id = $1 AND sender_id = $2 AND deleted_at IS NULL
		RETURNING `+messageColumns,
		id, senderID, content)
	if err != nil {
		return nil, fmt.Errorf("edit message: %w", err)
	}
	m, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[Message])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("edit message: %w", err)
	}
	return &m, nil
}

// SoftDelete tombstones a message the user sent. It reports whether a live
// row was deleted.
func (s *MessageStore) SoftDelete(ctx context.Context, q Querier, id, senderID uuid.UUID) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE messages
		SET deleted_at = NOW()
		WHERE id = $1 AND sender_id = $2 AND deleted_at IS NULL`,
		id, senderID)
	if err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// LastInConversation returns the newest live message of a conversation, or
// ErrNotFound when the conversation has none.
func (s *MessageStore) LastInConversation(ctx context.Context, q Querier, conversationID uuid.UUID) (*Message, error) {
	rows, err := q.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("last message: %w", err)
	}
	m, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[Message])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("last message: %w", err)
	}
	return &m, nil
}

// ListByConversation returns up to limit live messages older than before
// (all when before is nil), newest first. The query leans on the partial
// index over (conversation_id, created_at DESC) where deleted_at IS NULL.
func (s *MessageStore) ListByConversation(ctx context.Context, conversationID uuid.UUID, before *time.Time, limit int) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		  AND deleted_at IS NULL
		  AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC
		LIMIT $3`,
		conversationID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	msgs, err := pgx.CollectRows(rows, pgx.RowToStructByName[Message])
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// UpsertLastMessage maintains the per-conversation last-message denorm row.
func (s *MessageStore) UpsertLastMessage(ctx context.Context, q Querier, conversationID, senderID uuid.UUID, content *string, createdAt time.Time) error {
	_, err := q.Exec(ctx, `
		INSERT INTO last_messages (id, conversation_id, sender_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (conversation_id) DO UPDATE
		SET content = EXCLUDED.content,
		    sender_id = EXCLUDED.sender_id,
		    created_at = EXCLUDED.created_at`,
		uuid.New(), conversationID, senderID, content, createdAt)
	if err != nil {
		return fmt.Errorf("upsert last message: %w", err)
	}
	return nil
}
