// Package protocol defines the WebSocket wire messages exchanged between
// chat clients and the server. Messages are JSON objects tagged with a
// camelCase "type" field; client and server messages form two separate
// tagged unions.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Client message types
const (
	ClientAuth              = "auth"
	ClientSendMessage       = "sendMessage"
	ClientJoinConversation  = "joinConversation"
	ClientLeaveConversation = "leaveConversation"
	ClientTypingStart       = "typingStart"
	ClientTypingStop        = "typingStop"
	ClientPing              = "ping"
)

// ClientMessage is a decoded client frame. Only the fields required by the
// frame's Type are populated.
type ClientMessage struct {
	Type           string
	Token          string
	ConversationID uuid.UUID
	Content        string
}

// clientEnvelope mirrors the wire shape with pointer fields so required-field
// presence can be checked per variant after unmarshalling.
type clientEnvelope struct {
	Type           string     `json:"type"`
	Token          *string    `json:"token"`
	ConversationID *uuid.UUID `json:"conversationId"`
	Content        *string    `json:"content"`
}

// DecodeClientMessage parses a client frame, rejecting unknown types and
// frames missing a required field. An empty content string is valid as long
// as the field is present.
func DecodeClientMessage(data []byte) (*ClientMessage, error) {
	var env clientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid message format: %w", err)
	}

	msg := &ClientMessage{Type: env.Type}

	switch env.Type {
	case ClientAuth:
		if env.Token == nil {
			return nil, fmt.Errorf("auth: missing token")
		}
		msg.Token = *env.Token

	case ClientSendMessage:
		if env.ConversationID == nil {
			return nil, fmt.Errorf("sendMessage: missing conversationId")
		}
		if env.Content == nil {
			return nil, fmt.Errorf("sendMessage: missing content")
		}
		msg.ConversationID = *env.ConversationID
		msg.Content = *env.Content

	case ClientJoinConversation, ClientLeaveConversation, ClientTypingStart, ClientTypingStop:
		if env.ConversationID == nil {
			return nil, fmt.Errorf("%s: missing conversationId", env.Type)
		}
		msg.ConversationID = *env.ConversationID

	case ClientPing:
		// No payload.

	case "":
		return nil, fmt.Errorf("missing message type")

	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}

	return msg, nil
}
