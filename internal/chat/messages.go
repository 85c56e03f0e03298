// Package chat implements the messaging services: persisting chat
// operations and fanning the resulting events out to connected sessions.
package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/markb/chatlite/internal/log"
	"github.com/markb/chatlite/internal/protocol"
	"github.com/markb/chatlite/internal/store"
)

// MessageRepo persists message operations. *store.Store satisfies it.
type MessageRepo interface {
	SendDirectMessage(ctx context.Context, senderID, recipientID uuid.UUID, content string, conversationID *uuid.UUID) (*store.Message, error)
	SendConversationMessage(ctx context.Context, senderID, conversationID uuid.UUID, content string) (*store.Message, error)
	EditMessage(ctx context.Context, messageID, userID uuid.UUID, content string) (*store.Message, error)
	DeleteMessage(ctx context.Context, messageID, userID uuid.UUID) (*store.Message, error)
}

// Broadcaster fans events out to connected sessions. *hub.Hub satisfies it.
type Broadcaster interface {
	BroadcastToRoom(conversationID uuid.UUID, msg protocol.ServerMessage, skipUserID uuid.UUID)
	SendToUsers(userIDs []uuid.UUID, msg protocol.ServerMessage)
}

// MemberSource lists a conversation's participants.
// *store.ConversationStore satisfies it.
type MemberSource interface {
	MemberIDs(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error)
}

// MessageService persists messages and broadcasts the matching events.
type MessageService struct {
	repo    MessageRepo
	members MemberSource
	hub     Broadcaster
}

// NewMessageService creates a message service.
func NewMessageService(repo MessageRepo, members MemberSource, hub Broadcaster) *MessageService {
	return &MessageService{repo: repo, members: members, hub: hub}
}

// SendFromSocket persists a message arriving over a WebSocket session and
// broadcasts it to the whole room. The sender receives the broadcast too;
// it doubles as their delivery acknowledgment.
func (s *MessageService) SendFromSocket(ctx context.Context, senderID, conversationID uuid.UUID, content string) (*store.Message, error) {
	msg, err := s.repo.SendConversationMessage(ctx, senderID, conversationID, content)
	if err != nil {
		return nil, err
	}
	if err := s.broadcastNew(msg, uuid.Nil); err != nil {
		return nil, err
	}
	return msg, nil
}

// SendDirect persists a direct message sent over the REST API and
// broadcasts it to the recipient's room, skipping the sender: the HTTP
// response already confirms delivery to them.
func (s *MessageService) SendDirect(ctx context.Context, senderID, recipientID uuid.UUID, content string, conversationID *uuid.UUID) (*store.Message, error) {
	msg, err := s.repo.SendDirectMessage(ctx, senderID, recipientID, content, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.broadcastNew(msg, senderID); err != nil {
		return nil, err
	}
	return msg, nil
}

// SendGroup persists a group message sent over the REST API and delivers
// it to every connected member except the sender. Delivery goes by the
// persisted member list, not the room: members who have not joined the
// room still receive the event on their sessions.
func (s *MessageService) SendGroup(ctx context.Context, senderID, conversationID uuid.UUID, content string) (*store.Message, error) {
	msg, err := s.repo.SendConversationMessage(ctx, senderID, conversationID, content)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	event := protocol.NewMessageEvent(msg.ConversationID, payload)

	members, err := s.members.MemberIDs(ctx, conversationID)
	if err != nil {
		log.Warn("chat: member list load failed, falling back to room broadcast",
			"conversation_id", conversationID, "error", err)
		s.hub.BroadcastToRoom(msg.ConversationID, event, senderID)
		return msg, nil
	}

	recipients := make([]uuid.UUID, 0, len(members))
	for _, id := range members {
		if id != senderID {
			recipients = append(recipients, id)
		}
	}
	s.hub.SendToUsers(recipients, event)
	return msg, nil
}

// Edit updates a message the user sent and notifies the whole room,
// including the editor.
func (s *MessageService) Edit(ctx context.Context, messageID, userID uuid.UUID, content string) (*store.Message, error) {
	msg, err := s.repo.EditMessage(ctx, messageID, userID, content)
	if err != nil {
		return nil, err
	}
	s.hub.BroadcastToRoom(msg.ConversationID, protocol.NewMessageEdited(msg.ConversationID, msg.ID, content), uuid.Nil)
	return msg, nil
}

// Delete soft-deletes a message the user sent and notifies the whole room.
func (s *MessageService) Delete(ctx context.Context, messageID, userID uuid.UUID) error {
	msg, err := s.repo.DeleteMessage(ctx, messageID, userID)
	if err != nil {
		return err
	}
	s.hub.BroadcastToRoom(msg.ConversationID, protocol.NewMessageDeleted(msg.ConversationID, msg.ID), uuid.Nil)
	return nil
}

func (s *MessageService) broadcastNew(msg *store.Message, skipUserID uuid.UUID) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	s.hub.BroadcastToRoom(msg.ConversationID, protocol.NewMessageEvent(msg.ConversationID, payload), skipUserID)
	return nil
}
