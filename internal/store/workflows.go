package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Transactional workflows. Each groups the row changes of one chat
// operation so partial writes never become visible.

// SendDirectMessage persists a direct message, resolving or creating the
// conversation between sender and recipient when conversationID is nil.
func (s *Store) SendDirectMessage(ctx context.Context, senderID, recipientID uuid.UUID, content string, conversationID *uuid.UUID) (*Message, error) {
	var msg *Message
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		var conv *Conversation
		var err error

		if conversationID != nil {
			conv, err = s.Conversations.FindByID(ctx, tx, *conversationID)
			if err != nil {
				return err
			}
		} else {
			conv, err = s.Conversations.FindDirectBetween(ctx, tx, senderID, recipientID)
			if errors.Is(err, ErrNotFound) {
				conv, err = s.Conversations.CreateDirect(ctx, tx, senderID, recipientID)
			}
			if err != nil {
				return err
			}
		}

		msg, err = s.Messages.Create(ctx, tx, &InsertMessage{
			ConversationID: conv.ID,
			SenderID:       senderID,
			Content:        &content,
		})
		if err != nil {
			return err
		}

		if err := s.Conversations.IncrementUnread(ctx, tx, conv.ID, recipientID); err != nil {
			return err
		}
		if err := s.Messages.UpsertLastMessage(ctx, tx, conv.ID, senderID, &content, msg.CreatedAt); err != nil {
			return err
		}
		return s.Conversations.Touch(ctx, tx, conv.ID)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// SendConversationMessage persists a message to an existing conversation,
// bumping every other participant's unread counter. Used for group sends
// and for messages arriving over a socket.
func (s *Store) SendConversationMessage(ctx context.Context, senderID, conversationID uuid.UUID, content string) (*Message, error) {
	var msg *Message
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		msg, err = s.Messages.Create(ctx, tx, &InsertMessage{
			ConversationID: conversationID,
			SenderID:       senderID,
			Content:        &content,
		})
		if err != nil {
			return err
		}

		if err := s.Conversations.IncrementUnreadForOthers(ctx, tx, conversationID, senderID); err != nil {
			return err
		}
		if err := s.Messages.UpsertLastMessage(ctx, tx, conversationID, senderID, &content, msg.CreatedAt); err != nil {
			return err
		}
		return s.Conversations.Touch(ctx, tx, conversationID)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// EditMessage updates a message's content after verifying ownership.
func (s *Store) EditMessage(ctx context.Context, messageID, userID uuid.UUID, content string) (*Message, error) {
	var edited *Message
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		msg, err := s.Messages.FindByID(ctx, tx, messageID)
		if err != nil {
			return err
		}
		if msg.SenderID != userID {
			return fmt.Errorf("edit message %s: %w", messageID, ErrForbidden)
		}
		edited, err = s.Messages.Edit(ctx, tx, messageID, userID, content)
		return err
	})
	if err != nil {
		return nil, err
	}
	return edited, nil
}

// DeleteMessage soft-deletes a message after verifying ownership. It
// returns the deleted message so callers know its conversation.
func (s *Store) DeleteMessage(ctx context.Context, messageID, userID uuid.UUID) (*Message, error) {
	var msg *Message
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		msg, err = s.Messages.FindByID(ctx, tx, messageID)
		if err != nil {
			return err
		}
		if msg.SenderID != userID {
			return fmt.Errorf("delete message %s: %w", messageID, ErrForbidden)
		}
		deleted, err := s.Messages.SoftDelete(ctx, tx, messageID, userID)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// MarkSeen zeroes the caller's unread counter against the conversation's
// newest message. It returns that message and whether anything was marked:
// nothing is marked when the conversation is empty or the caller sent the
// newest message themselves.
func (s *Store) MarkSeen(ctx context.Context, conversationID, userID uuid.UUID) (*Message, bool, error) {
	var (
		last   *Message
		marked bool
	)
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		isMember, err := s.Conversations.IsMember(ctx, conversationID, userID)
		if err != nil {
			return err
		}
		if !isMember {
			return fmt.Errorf("conversation %s: %w", conversationID, ErrForbidden)
		}

		last, err = s.Messages.LastInConversation(ctx, tx, conversationID)
		if errors.Is(err, ErrNotFound) {
			last = nil
			return nil
		}
		if err != nil {
			return err
		}
		if last.SenderID == userID {
			return nil
		}

		if err := s.Conversations.MarkSeen(ctx, tx, conversationID, userID, last.ID); err != nil {
			return err
		}
		marked = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return last, marked, nil
}

// ListMessages returns a page of a conversation's live messages, newest
// first. A non-nil before bounds the page to messages created strictly
// earlier.
func (s *Store) ListMessages(ctx context.Context, conversationID uuid.UUID, before *time.Time, limit int) ([]Message, error) {
	return s.Messages.ListByConversation(ctx, conversationID, before, limit)
}

// Befriend records a friendship between the two users. It reports whether
// a new friendship was created; false means they were already friends.
func (s *Store) Befriend(ctx context.Context, a, b uuid.UUID) (bool, error) {
	already, err := s.Friends.AreFriends(ctx, a, b)
	if err != nil {
		return false, err
	}
	if already {
		return false, nil
	}
	if err := s.Friends.Add(ctx, a, b); err != nil {
		return false, err
	}
	return true, nil
}

// CreateGroupConversation creates a group with the given members and
// returns its full detail. The creator is added to the member list if
// missing, and duplicates are dropped.
func (s *Store) CreateGroupConversation(ctx context.Context, name string, memberIDs []uuid.UUID, createdBy uuid.UUID) (*ConversationDetail, error) {
	members := dedupeWith(memberIDs, createdBy)

	var convID uuid.UUID
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		conv, err := s.Conversations.CreateGroup(ctx, tx, name, members, createdBy)
		if err != nil {
			return err
		}
		convID = conv.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Conversations.Detail(ctx, convID)
}

// dedupeWith returns ids with duplicates removed and required included.
func dedupeWith(ids []uuid.UUID, required uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids)+1)
	out := make([]uuid.UUID, 0, len(ids)+1)
	for _, id := range append([]uuid.UUID{required}, ids...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
