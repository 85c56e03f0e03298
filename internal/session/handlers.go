package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/markb/chatlite/internal/log"
	"github.com/markb/chatlite/internal/protocol"
	"github.com/markb/chatlite/internal/store"
)

// opTimeout bounds the database and Redis work behind a single frame.
const opTimeout = 10 * time.Second

// handleMessage routes one decoded client frame.
func (s *Session) handleMessage(msg *protocol.ClientMessage) {
	switch msg.Type {
	case protocol.ClientAuth:
		s.handleAuth(msg.Token)
	case protocol.ClientPing:
		s.Send(protocol.NewPong())
	case protocol.ClientSendMessage:
		s.handleSendMessage(msg.ConversationID, msg.Content)
	case protocol.ClientJoinConversation:
		s.handleJoin(msg.ConversationID)
	case protocol.ClientLeaveConversation:
		s.handleLeave(msg.ConversationID)
	case protocol.ClientTypingStart:
		s.handleTyping(msg.ConversationID, true)
	case protocol.ClientTypingStop:
		s.handleTyping(msg.ConversationID, false)
	}
}

// handleAuth validates the token and promotes the session. A failed
// attempt leaves the connection open so the client can retry with a
// fresh token; a second auth frame on an authenticated session is
// rejected.
func (s *Session) handleAuth(token string) {
	s.mu.Lock()
	already := s.authenticated
	s.mu.Unlock()
	if already {
		s.Send(protocol.NewAuthFailed("already authenticated"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	claims, err := s.deps.Verifier.VerifyAccess(ctx, token)
	if err != nil {
		log.Debug("session: auth failed", "session_id", s.id, "error", err.Error())
		s.Send(protocol.NewAuthFailed("invalid token"))
		return
	}

	s.mu.Lock()
	s.userID = claims.UserID
	s.authenticated = true
	s.mu.Unlock()

	userID, firstSession := s.deps.Hub.Authenticate(s.id, claims.UserID)
	s.Send(protocol.NewAuthSuccess(userID))

	log.Debug("session: authenticated", "session_id", s.id, "user_id", userID, "first_session", firstSession)

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		s.fanOutOnline(userID, firstSession)
	}()
}

// fanOutOnline marks the user online, sends them their friends' presence
// snapshot, and, when this is their first device, tells online friends.
func (s *Session) fanOutOnline(userID uuid.UUID, firstSession bool) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := s.deps.Presence.SetOnline(ctx, userID); err != nil {
		log.Error("session: set online failed", "user_id", userID, "error", err)
	}

	friendIDs := s.friendIDs(ctx, userID)
	s.mu.Lock()
	s.cachedFriendIDs = friendIDs
	s.mu.Unlock()

	s.deps.Hub.SendInitialPresence(userID, friendIDs)

	if firstSession {
		s.deps.Hub.UserPresenceChanged(userID, true, friendIDs, "")
	}
}

// fanOutOffline records the offline timestamp and tells online friends.
// The friend list cached at auth time is used so the offline event still
// reaches friends when the database is unavailable during teardown.
func (s *Session) fanOutOffline(userID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	lastSeen, err := s.deps.Presence.SetOffline(ctx, userID)
	if err != nil {
		log.Error("session: set offline failed", "user_id", userID, "error", err)
	}

	s.mu.Lock()
	friendIDs := s.cachedFriendIDs
	s.mu.Unlock()

	s.deps.Hub.UserPresenceChanged(userID, false, friendIDs, lastSeen)
}

// friendIDs loads the user's friend list, degrading to empty on error so
// presence fan-out never blocks a session.
func (s *Session) friendIDs(ctx context.Context, userID uuid.UUID) []uuid.UUID {
	friendIDs, err := s.deps.Friends.ListFriendIDs(ctx, userID)
	if err != nil {
		log.Warn("session: friend list load failed", "user_id", userID, "error", err)
		return nil
	}
	return friendIDs
}

// requireAuth returns the user ID, or sends an error frame and reports
// false.
func (s *Session) requireAuth() (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authenticated {
		s.Send(protocol.NewError("not authenticated"))
		return uuid.Nil, false
	}
	return s.userID, true
}

func (s *Session) handleSendMessage(conversationID uuid.UUID, content string) {
	userID, ok := s.requireAuth()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := s.deps.Messages.SendFromSocket(ctx, userID, conversationID, content); err != nil {
		log.Warn("session: send failed", "session_id", s.id, "conversation_id", conversationID, "error", err)
		s.Send(protocol.NewError("failed to send message"))
	}
}

func (s *Session) handleJoin(conversationID uuid.UUID) {
	userID, ok := s.requireAuth()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	isMember, err := s.deps.Membership.IsMember(ctx, conversationID, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Warn("session: membership check failed", "conversation_id", conversationID, "error", err)
		s.Send(protocol.NewError("failed to join conversation"))
		return
	}
	if !isMember {
		s.Send(protocol.NewError("not a participant of this conversation"))
		return
	}

	s.deps.Hub.JoinRoom(userID, conversationID)
}

func (s *Session) handleLeave(conversationID uuid.UUID) {
	userID, ok := s.requireAuth()
	if !ok {
		return
	}
	s.deps.Hub.LeaveRoom(userID, conversationID)
}

func (s *Session) handleTyping(conversationID uuid.UUID, started bool) {
	userID, ok := s.requireAuth()
	if !ok {
		return
	}

	var event protocol.ServerMessage
	if started {
		event = protocol.NewUserTyping(conversationID, userID)
	} else {
		event = protocol.NewUserStoppedTyping(conversationID, userID)
	}
	s.deps.Hub.BroadcastToRoom(conversationID, event, userID)
}
