// internal/protocol/server.go
package protocol

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Server message types
const (
	ServerAuthSuccess       = "authSuccess"
	ServerAuthFailed        = "authFailed"
	ServerNewMessage        = "newMessage"
	ServerMessageEdited     = "messageEdited"
	ServerMessageDeleted    = "messageDeleted"
	ServerMessagesRead      = "messagesRead"
	ServerReadMessage       = "readMessage"
	ServerOnlineUsers       = "onlineUsers"
	ServerUserOnline        = "userOnline"
	ServerUserOffline       = "userOffline"
	ServerNewGroup          = "newGroup"
	ServerUserTyping        = "userTyping"
	ServerUserStoppedTyping = "userStoppedTyping"
	ServerPong              = "pong"
	ServerError             = "error"
)

// ServerMessage is a server-to-client frame. Each variant is its own struct
// carrying its "type" tag; Encode marshals whichever variant it is handed.
type ServerMessage interface {
	serverMessage()
}

// Encode serializes a server message to its JSON wire form.
func Encode(msg ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

type AuthSuccess struct {
	Type   string    `json:"type"`
	UserID uuid.UUID `json:"userId"`
}

type AuthFailed struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type NewMessage struct {
	Type           string          `json:"type"`
	ConversationID uuid.UUID       `json:"conversationId"`
	Message        json.RawMessage `json:"message"`
}

type MessageEdited struct {
	Type           string    `json:"type"`
	ConversationID uuid.UUID `json:"conversationId"`
	MessageID      uuid.UUID `json:"messageId"`
	NewContent     string    `json:"newContent"`
}

type MessageDeleted struct {
	Type           string    `json:"type"`
	ConversationID uuid.UUID `json:"conversationId"`
	MessageID      uuid.UUID `json:"messageId"`
}

type MessagesRead struct {
	Type              string    `json:"type"`
	ConversationID    uuid.UUID `json:"conversationId"`
	UserID            uuid.UUID `json:"userId"`
	LastReadMessageID uuid.UUID `json:"lastReadMessageId"`
}

// ReadMessage is the richer read-receipt event carrying a conversation
// update plus a snapshot of the last message.
type ReadMessage struct {
	Type         string          `json:"type"`
	Conversation json.RawMessage `json:"conversation"`
	LastMessage  LastMessageInfo `json:"lastMessage"`
}

// LastMessageInfo is the last-message snapshot embedded in ReadMessage.
type LastMessageInfo struct {
	ID        uuid.UUID  `json:"_id"`
	Content   string     `json:"content"`
	CreatedAt string     `json:"createdAt"`
	Sender    SenderInfo `json:"sender"`
}

// SenderInfo identifies the last message's sender.
type SenderInfo struct {
	ID          uuid.UUID `json:"_id"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
}

type OnlineUsers struct {
	Type    string      `json:"type"`
	UserIDs []uuid.UUID `json:"userIds"`
}

type UserOnline struct {
	Type   string    `json:"type"`
	UserID uuid.UUID `json:"userId"`
}

type UserOffline struct {
	Type     string    `json:"type"`
	UserID   uuid.UUID `json:"userId"`
	LastSeen string    `json:"lastSeen,omitempty"`
}

type NewGroup struct {
	Type         string          `json:"type"`
	Conversation json.RawMessage `json:"conversation"`
}

type UserTyping struct {
	Type           string    `json:"type"`
	ConversationID uuid.UUID `json:"conversationId"`
	UserID         uuid.UUID `json:"userId"`
}

type UserStoppedTyping struct {
	Type           string    `json:"type"`
	ConversationID uuid.UUID `json:"conversationId"`
	UserID         uuid.UUID `json:"userId"`
}

type Pong struct {
	Type string `json:"type"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (AuthSuccess) serverMessage()       {}
func (AuthFailed) serverMessage()        {}
func (NewMessage) serverMessage()        {}
func (MessageEdited) serverMessage()     {}
func (MessageDeleted) serverMessage()    {}
func (MessagesRead) serverMessage()      {}
func (ReadMessage) serverMessage()       {}
func (OnlineUsers) serverMessage()       {}
func (UserOnline) serverMessage()        {}
func (UserOffline) serverMessage()       {}
func (NewGroup) serverMessage()          {}
func (UserTyping) serverMessage()        {}
func (UserStoppedTyping) serverMessage() {}
func (Pong) serverMessage()              {}
func (Error) serverMessage()             {}

// NewAuthSuccess creates an authSuccess message.
func NewAuthSuccess(userID uuid.UUID) ServerMessage {
	return AuthSuccess{Type: ServerAuthSuccess, UserID: userID}
}

// NewAuthFailed creates an authFailed message.
func NewAuthFailed(reason string) ServerMessage {
	return AuthFailed{Type: ServerAuthFailed, Reason: reason}
}

// NewMessageEvent creates a newMessage event carrying the persisted message
// record as an opaque JSON object.
func NewMessageEvent(conversationID uuid.UUID, message json.RawMessage) ServerMessage {
	return NewMessage{Type: ServerNewMessage, ConversationID: conversationID, Message: message}
}

// NewMessageEdited creates a messageEdited event.
func NewMessageEdited(conversationID, messageID uuid.UUID, newContent string) ServerMessage {
	return MessageEdited{Type: ServerMessageEdited, ConversationID: conversationID, MessageID: messageID, NewContent: newContent}
}

// NewMessageDeleted creates a messageDeleted event.
func NewMessageDeleted(conversationID, messageID uuid.UUID) ServerMessage {
	return MessageDeleted{Type: ServerMessageDeleted, ConversationID: conversationID, MessageID: messageID}
}

// NewMessagesRead creates a messagesRead read-receipt event.
func NewMessagesRead(conversationID, userID, lastReadMessageID uuid.UUID) ServerMessage {
	return MessagesRead{Type: ServerMessagesRead, ConversationID: conversationID, UserID: userID, LastReadMessageID: lastReadMessageID}
}

// NewReadMessage creates a readMessage event with a conversation update and
// last-message snapshot.
func NewReadMessage(conversation json.RawMessage, lastMessage LastMessageInfo) ServerMessage {
	return ReadMessage{Type: ServerReadMessage, Conversation: conversation, LastMessage: lastMessage}
}

// NewOnlineUsers creates an onlineUsers event.
func NewOnlineUsers(userIDs []uuid.UUID) ServerMessage {
	if userIDs == nil {
		userIDs = []uuid.UUID{}
	}
	return OnlineUsers{Type: ServerOnlineUsers, UserIDs: userIDs}
}

// NewUserOnline creates a userOnline presence event.
func NewUserOnline(userID uuid.UUID) ServerMessage {
	return UserOnline{Type: ServerUserOnline, UserID: userID}
}

// NewUserOffline creates a userOffline presence event. lastSeen may be empty
// if the user has never been seen offline before.
func NewUserOffline(userID uuid.UUID, lastSeen string) ServerMessage {
	return UserOffline{Type: ServerUserOffline, UserID: userID, LastSeen: lastSeen}
}

// NewGroupEvent creates a newGroup event carrying the conversation detail as
// an opaque JSON object.
func NewGroupEvent(conversation json.RawMessage) ServerMessage {
	return NewGroup{Type: ServerNewGroup, Conversation: conversation}
}

// NewUserTyping creates a userTyping event.
func NewUserTyping(conversationID, userID uuid.UUID) ServerMessage {
	return UserTyping{Type: ServerUserTyping, ConversationID: conversationID, UserID: userID}
}

// NewUserStoppedTyping creates a userStoppedTyping event.
func NewUserStoppedTyping(conversationID, userID uuid.UUID) ServerMessage {
	return UserStoppedTyping{Type: ServerUserStoppedTyping, ConversationID: conversationID, UserID: userID}
}

// NewPong creates a pong reply.
func NewPong() ServerMessage {
	return Pong{Type: ServerPong}
}

// NewError creates an error message.
func NewError(message string) ServerMessage {
	return Error{Type: ServerError, Message: message}
}
