// Package session manages one WebSocket connection: read/write pumps,
// authentication state, and routing of client frames to the chat services.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/markb/chatlite/internal/auth"
	"github.com/markb/chatlite/internal/hub"
	"github.com/markb/chatlite/internal/log"
	"github.com/markb/chatlite/internal/protocol"
	"github.com/markb/chatlite/internal/store"
)

const (
	// Send buffer size for outbound messages
	sendBufferSize = 256

	// Time allowed to write a message
	writeWait = 10 * time.Second

	// A connection is dead after this long without a pong, a protocol
	// ping, or any other frame
	liveWindow = 30 * time.Second

	// Send pings and refresh presence with this period (must be less
	// than liveWindow)
	heartbeatPeriod = 15 * time.Second

	// Maximum message size
	maxMessageSize = 512 * 1024 // 512KB
)

// TokenVerifier validates access tokens presented in auth frames.
type TokenVerifier interface {
	VerifyAccess(ctx context.Context, token string) (*auth.Claims, error)
}

// FriendLister returns the IDs of a user's friends.
type FriendLister interface {
	ListFriendIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// MessageSender persists and fans out a message sent over the socket.
type MessageSender interface {
	SendFromSocket(ctx context.Context, senderID, conversationID uuid.UUID, content string) (*store.Message, error)
}

// MembershipChecker verifies conversation membership before a room join.
type MembershipChecker interface {
	IsMember(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
}

// PresenceMarker maintains the user's presence keys.
type PresenceMarker interface {
	SetOnline(ctx context.Context, userID uuid.UUID) error
	SetOffline(ctx context.Context, userID uuid.UUID) (string, error)
	Refresh(ctx context.Context, userID uuid.UUID) error
}

// Deps are the collaborators a session routes frames to.
type Deps struct {
	Hub        *hub.Hub
	Verifier   TokenVerifier
	Friends    FriendLister
	Messages   MessageSender
	Membership MembershipChecker
	Presence   PresenceMarker
}

// Session is one WebSocket connection. It starts unauthenticated; every
// frame except auth and ping is rejected until an auth frame passes.
type Session struct {
	id   uuid.UUID
	ws   *websocket.Conn
	deps Deps

	mu            sync.Mutex
	userID        uuid.UUID
	authenticated bool

	// cachedFriendIDs is the friend list loaded at auth time. The
	// offline fan-out reads it instead of the database, which may be
	// unreachable while the connection is torn down.
	cachedFriendIDs []uuid.UUID

	send chan []byte
	done chan struct{}

	closeOnce sync.Once

	// bg tracks the post-auth and post-disconnect fan-out goroutines.
	bg sync.WaitGroup
}

// New creates a session over the given WebSocket connection and registers
// it with the hub. The caller must start ReadPump and WritePump.
func New(ws *websocket.Conn, deps Deps) *Session {
	s := &Session{
		id:   uuid.New(),
		ws:   ws,
		deps: deps,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
	deps.Hub.Connect(s)
	return s
}

// ID returns the session ID.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Send queues a message for delivery. It never blocks: the frame is
// dropped when the buffer is full or the session is closed.
func (s *Session) Send(msg protocol.ServerMessage) {
	data, err := protocol.Encode(msg)
	if err != nil {
		log.Error("session: encode failed", "session_id", s.id, "error", err)
		return
	}
	select {
	case <-s.done:
	case s.send <- data:
	default:
		log.Warn("session: send buffer full, dropping message", "session_id", s.id)
	}
}

// Close tears the session down and runs the offline fan-out when this was
// the user's last device. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.ws != nil {
			s.ws.Close()
		}

		userID, lastSession := s.deps.Hub.Disconnect(s.id)
		if userID == uuid.Nil || !lastSession {
			return
		}

		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			s.fanOutOffline(userID)
		}()
	})
}

// ReadPump reads client frames until the connection dies.
func (s *Session) ReadPump() {
	defer s.Close()

	s.ws.SetReadLimit(maxMessageSize)
	s.ws.SetReadDeadline(time.Now().Add(liveWindow))
	s.ws.SetPongHandler(func(string) error {
		s.ws.SetReadDeadline(time.Now().Add(liveWindow))
		return nil
	})

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug("session: read error", "session_id", s.id, "error", err.Error())
			}
			return
		}
		s.ws.SetReadDeadline(time.Now().Add(liveWindow))

		msg, err := protocol.DecodeClientMessage(data)
		if err != nil {
			log.Debug("session: invalid frame", "session_id", s.id, "error", err.Error())
			s.Send(protocol.NewError(err.Error()))
			continue
		}

		s.handleMessage(msg)
	}
}

// WritePump writes queued frames, pings the peer, and refreshes presence.
func (s *Session) WritePump() {
	ticker := time.NewTicker(heartbeatPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case data := <-s.send:
			s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			s.refreshPresence()

		case <-s.done:
			return
		}
	}
}

func (s *Session) refreshPresence() {
	s.mu.Lock()
	authed, userID := s.authenticated, s.userID
	s.mu.Unlock()
	if !authed {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := s.deps.Presence.Refresh(ctx, userID); err != nil {
		log.Warn("session: presence refresh failed", "session_id", s.id, "user_id", userID, "error", err)
	}
}

// WaitBackground blocks until in-flight fan-out goroutines finish.
func (s *Session) WaitBackground() {
	s.bg.Wait()
}
