// Package hub implements the connection registry for the realtime core: the
// single owner of the session, user and room maps, and the routing of
// broadcasts to live connections. All mutation is serialized behind one
// lock; delivery to connections is best-effort and never blocks the hub.
package hub

import (
	"sync"

	"github.com/google/uuid"
	"github.com/markb/chatlite/internal/log"
	"github.com/markb/chatlite/internal/protocol"
)

// Conn is the transport-level handle for one live session. Send must be
// non-blocking: implementations queue into a bounded buffer and drop on
// overflow rather than stalling the caller.
type Conn interface {
	ID() uuid.UUID
	Send(msg protocol.ServerMessage)
}

// Hub tracks live sessions, authenticated users (multi-device) and joined
// conversation rooms.
type Hub struct {
	mu sync.RWMutex

	// sessions holds every live connection, authenticated or not.
	sessions map[uuid.UUID]Conn

	// users maps an authenticated user to their live session set. An entry
	// exists iff its set is non-empty.
	users map[uuid.UUID]map[uuid.UUID]struct{}

	// rooms maps a conversation to the users currently joined for live
	// fan-out. An entry exists iff its set is non-empty. This is not durable
	// conversation membership, which is owned by the conversation store.
	rooms map[uuid.UUID]map[uuid.UUID]struct{}
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{
		sessions: make(map[uuid.UUID]Conn),
		users:    make(map[uuid.UUID]map[uuid.UUID]struct{}),
		rooms:    make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

// Connect registers a new live connection. No authentication required.
func (h *Hub) Connect(conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[conn.ID()] = conn
	log.Debug("hub: session connected", "session_id", conn.ID())
}

// Disconnect removes a session. If it was the last session of an
// authenticated user, the user is removed from the registry and from every
// room, and empty rooms are dropped. Disconnecting an unknown session is a
// no-op. Returns the owning user and whether this was their last session.
func (h *Hub) Disconnect(sessionID uuid.UUID) (userID uuid.UUID, lastSession bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.sessions, sessionID)

	for uid, sessions := range h.users {
		if _, ok := sessions[sessionID]; !ok {
			continue
		}
		delete(sessions, sessionID)
		userID = uid
		if len(sessions) > 0 {
			break
		}

		lastSession = true
		delete(h.users, uid)
		for convID, members := range h.rooms {
			delete(members, uid)
			if len(members) == 0 {
				delete(h.rooms, convID)
			}
		}
		log.Debug("hub: user fully disconnected", "user_id", uid)
		break
	}
	return userID, lastSession
}

// Authenticate binds a session to a user, creating the session set if
// needed. A user may hold several sessions at once (multi-device). The user
// id is returned as an acknowledgment, along with whether this was the
// user's first live session.
func (h *Hub) Authenticate(sessionID, userID uuid.UUID) (uuid.UUID, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessions := h.users[userID]
	if sessions == nil {
		sessions = make(map[uuid.UUID]struct{})
		h.users[userID] = sessions
	}
	first := len(sessions) == 0
	sessions[sessionID] = struct{}{}

	log.Debug("hub: user authenticated", "user_id", userID, "session_id", sessionID, "sessions", len(sessions))
	return userID, first
}

// JoinRoom adds a user to a conversation's live room, creating the room if
// absent. Durable membership is checked upstream before this is called.
func (h *Hub) JoinRoom(userID, conversationID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.rooms[conversationID]
	if members == nil {
		members = make(map[uuid.UUID]struct{})
		h.rooms[conversationID] = members
	}
	members[userID] = struct{}{}
	log.Debug("hub: user joined room", "user_id", userID, "conversation_id", conversationID, "members", len(members))
}

// LeaveRoom removes a user from a conversation's live room and drops the
// room if it becomes empty.
func (h *Hub) LeaveRoom(userID, conversationID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[conversationID]
	if !ok {
		return
	}
	delete(members, userID)
	if len(members) == 0 {
		delete(h.rooms, conversationID)
	}
}

// BroadcastToRoom delivers a message to every session of every user joined
// to the conversation. skipUserID (uuid.Nil for none) excludes one user,
// typically the sender. Broadcasting to an absent or empty room is a silent
// no-op.
func (h *Hub) BroadcastToRoom(conversationID uuid.UUID, msg protocol.ServerMessage, skipUserID uuid.UUID) {
	targets := h.roomConns(conversationID, skipUserID)
	for _, conn := range targets {
		conn.Send(msg)
	}
	log.Debug("hub: room broadcast", "conversation_id", conversationID, "sessions", len(targets))
}

// SendToUser delivers a message to every session of one user (all devices).
// No-op if the user is not connected.
func (h *Hub) SendToUser(userID uuid.UUID, msg protocol.ServerMessage) {
	for _, conn := range h.userConns(userID) {
		conn.Send(msg)
	}
}

// SendToUsers delivers a message to every session of each listed user. Used
// for events with no live room yet, such as announcing a new group to its
// members.
func (h *Hub) SendToUsers(userIDs []uuid.UUID, msg protocol.ServerMessage) {
	for _, uid := range userIDs {
		h.SendToUser(uid, msg)
	}
}

// OnlineUsers returns a snapshot of all currently authenticated users.
func (h *Hub) OnlineUsers() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]uuid.UUID, 0, len(h.users))
	for uid := range h.users {
		out = append(out, uid)
	}
	return out
}

// UserPresenceChanged notifies the user's currently connected friends of an
// online/offline transition. Friends not connected are skipped; nothing is
// queued for later delivery.
func (h *Hub) UserPresenceChanged(userID uuid.UUID, online bool, friendIDs []uuid.UUID, lastSeen string) {
	var msg protocol.ServerMessage
	if online {
		msg = protocol.NewUserOnline(userID)
	} else {
		msg = protocol.NewUserOffline(userID, lastSeen)
	}

	for _, fid := range h.connectedOf(friendIDs) {
		h.SendToUser(fid, msg)
	}
}

// SendInitialPresence sends a newly authenticated user the subset of their
// friends that are currently connected, as an onlineUsers event to all of
// the user's sessions.
func (h *Hub) SendInitialPresence(userID uuid.UUID, friendIDs []uuid.UUID) {
	online := h.connectedOf(friendIDs)
	h.SendToUser(userID, protocol.NewOnlineUsers(online))
}

// connectedOf filters ids down to those present in the users map.
func (h *Hub) connectedOf(ids []uuid.UUID) []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := h.users[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// userConns snapshots the live connections of one user.
func (h *Hub) userConns(userID uuid.UUID) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sessions := h.users[userID]
	out := make([]Conn, 0, len(sessions))
	for sid := range sessions {
		if conn, ok := h.sessions[sid]; ok {
			out = append(out, conn)
		}
	}
	return out
}

// roomConns snapshots the live connections of a room's members, excluding
// skipUserID if set.
func (h *Hub) roomConns(conversationID, skipUserID uuid.UUID) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members, ok := h.rooms[conversationID]
	if !ok {
		return nil
	}

	var out []Conn
	for uid := range members {
		if skipUserID != uuid.Nil && uid == skipUserID {
			continue
		}
		for sid := range h.users[uid] {
			if conn, ok := h.sessions[sid]; ok {
				out = append(out, conn)
			}
		}
	}
	return out
}
