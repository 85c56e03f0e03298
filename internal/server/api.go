// internal/server/api.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/markb/chatlite/internal/log"
	"github.com/markb/chatlite/internal/store"
)

type contextKey string

const userIDKey contextKey = "userID"

// authMiddleware validates the bearer token and stores the user ID in the
// request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := s.verifier.VerifyAccess(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFrom(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(userIDKey).(uuid.UUID)
	return id
}

func urlUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

// writeStoreError maps persistence errors to HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	default:
		log.Error("server: request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type sendDirectRequest struct {
	RecipientID    uuid.UUID  `json:"recipientId"`
	Content        string     `json:"content"`
	ConversationID *uuid.UUID `json:"conversationId,omitempty"`
}

func (s *Server) handleSendDirect(w http.ResponseWriter, r *http.Request) {
	var req sendDirectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RecipientID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "missing recipientId")
		return
	}

	msg, err := s.messages.SendDirect(r.Context(), userIDFrom(r), req.RecipientID, req.Content, req.ConversationID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(msg)
}

type sendGroupRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleSendGroup(w http.ResponseWriter, r *http.Request) {
	conversationID, err := urlUUID(r, "conversationID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	var req sendGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := s.messages.SendGroup(r.Context(), userIDFrom(r), conversationID, req.Content)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(msg)
}

type historyResponse struct {
	Messages   []store.Message `json:"messages"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

// handleHistory returns a page of a conversation's messages, oldest
// first. The cursor query parameter is an RFC 3339 timestamp; passing the
// nextCursor of one response fetches the preceding page.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	conversationID, err := urlUUID(r, "conversationID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	var before *time.Time
	if v := r.URL.Query().Get("cursor"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid cursor")
			return
		}
		before = &t
	}

	msgs, next, err := s.conversations.History(r.Context(), conversationID, before, limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	resp := historyResponse{Messages: msgs}
	if resp.Messages == nil {
		resp.Messages = []store.Message{}
	}
	if next != nil {
		resp.NextCursor = next.UTC().Format(time.RFC3339Nano)
	}
	json.NewEncoder(w).Encode(resp)
}

type editMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	messageID, err := urlUUID(r, "messageID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}
	var req editMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := s.messages.Edit(r.Context(), messageID, userIDFrom(r), req.Content)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	json.NewEncoder(w).Encode(msg)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	messageID, err := urlUUID(r, "messageID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}

	if err := s.messages.Delete(r.Context(), messageID, userIDFrom(r)); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkSeen(w http.ResponseWriter, r *http.Request) {
	conversationID, err := urlUUID(r, "conversationID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	if err := s.conversations.MarkSeen(r.Context(), conversationID, userIDFrom(r)); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createGroupRequest struct {
	Name      string      `json:"name"`
	MemberIDs []uuid.UUID `json:"memberIds"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing group name")
		return
	}

	detail, err := s.conversations.CreateGroup(r.Context(), req.Name, req.MemberIDs, userIDFrom(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(detail)
}

type addFriendRequest struct {
	UserID uuid.UUID `json:"userId"`
}

// handleAddFriend records a friendship between the caller and the given
// user. Adding an existing friend answers 200 instead of 201.
func (s *Server) handleAddFriend(w http.ResponseWriter, r *http.Request) {
	var req addFriendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	userID := userIDFrom(r)
	if req.UserID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "missing userId")
		return
	}
	if req.UserID == userID {
		writeError(w, http.StatusBadRequest, "cannot befriend yourself")
		return
	}

	created, err := s.friends.Befriend(r.Context(), userID, req.UserID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if created {
		w.WriteHeader(http.StatusCreated)
	}
	json.NewEncoder(w).Encode(map[string]bool{"created": created})
}
