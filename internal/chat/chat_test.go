// internal/chat/chat_test.go
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markb/chatlite/internal/protocol"
	"github.com/markb/chatlite/internal/store"
)

type roomBroadcast struct {
	conversationID uuid.UUID
	msg            protocol.ServerMessage
	skipUserID     uuid.UUID
}

type userSend struct {
	userIDs []uuid.UUID
	msg     protocol.ServerMessage
}

type fakeBroadcaster struct {
	rooms []roomBroadcast
	users []userSend
}

func (f *fakeBroadcaster) BroadcastToRoom(conversationID uuid.UUID, msg protocol.ServerMessage, skipUserID uuid.UUID) {
	f.rooms = append(f.rooms, roomBroadcast{conversationID, msg, skipUserID})
}

func (f *fakeBroadcaster) SendToUsers(userIDs []uuid.UUID, msg protocol.ServerMessage) {
	f.users = append(f.users, userSend{userIDs, msg})
}

type fakeMessageRepo struct {
	msg *store.Message
	err error
}

type fakeMembers struct {
	members map[uuid.UUID][]uuid.UUID
	err     error
}

func (f *fakeMembers) MemberIDs(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.members[conversationID], nil
}

func testMessage(convID, senderID uuid.UUID, content string) *store.Message {
	return &store.Message{
		ID:             uuid.New(),
		ConversationID: convID,
		SenderID:       senderID,
		Type:           "text",
		Content:        &content,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
}

func (f *fakeMessageRepo) SendDirectMessage(ctx context.Context, senderID, recipientID uuid.UUID, content string, conversationID *uuid.UUID) (*store.Message, error) {
	return f.msg, f.err
}

func (f *fakeMessageRepo) SendConversationMessage(ctx context.Context, senderID, conversationID uuid.UUID, content string) (*store.Message, error) {
	return f.msg, f.err
}

func (f *fakeMessageRepo) EditMessage(ctx context.Context, messageID, userID uuid.UUID, content string) (*store.Message, error) {
	return f.msg, f.err
}

func (f *fakeMessageRepo) DeleteMessage(ctx context.Context, messageID, userID uuid.UUID) (*store.Message, error) {
	return f.msg, f.err
}

func TestSendFromSocket_BroadcastsToEveryone(t *testing.T) {
	convID := uuid.New()
	senderID := uuid.New()
	hub := &fakeBroadcaster{}
	repo := &fakeMessageRepo{msg: testMessage(convID, senderID, "hi")}
	svc := NewMessageService(repo, &fakeMembers{}, hub)

	msg, err := svc.SendFromSocket(context.Background(), senderID, convID, "hi")
	require.NoError(t, err)
	assert.Equal(t, repo.msg, msg)

	require.Len(t, hub.rooms, 1)
	assert.Equal(t, convID, hub.rooms[0].conversationID)
	// The sender gets the broadcast back as their delivery ack.
	assert.Equal(t, uuid.Nil, hub.rooms[0].skipUserID)

	nm, ok := hub.rooms[0].msg.(protocol.NewMessage)
	require.True(t, ok)
	var echoed store.Message
	require.NoError(t, json.Unmarshal(nm.Message, &echoed))
	assert.Equal(t, repo.msg.ID, echoed.ID)
}

func TestSendDirect_SkipsSender(t *testing.T) {
	convID := uuid.New()
	senderID := uuid.New()
	hub := &fakeBroadcaster{}
	repo := &fakeMessageRepo{msg: testMessage(convID, senderID, "hello")}
	svc := NewMessageService(repo, &fakeMembers{}, hub)

	_, err := svc.SendDirect(context.Background(), senderID, uuid.New(), "hello", nil)
	require.NoError(t, err)

	require.Len(t, hub.rooms, 1)
	assert.Equal(t, senderID, hub.rooms[0].skipUserID)
}

func TestSendGroup_DeliversToMembersExceptSender(t *testing.T) {
	convID := uuid.New()
	senderID := uuid.New()
	memberA := uuid.New()
	memberB := uuid.New()
	hub := &fakeBroadcaster{}
	repo := &fakeMessageRepo{msg: testMessage(convID, senderID, "hello")}
	members := &fakeMembers{members: map[uuid.UUID][]uuid.UUID{
		convID: {senderID, memberA, memberB},
	}}
	svc := NewMessageService(repo, members, hub)

	_, err := svc.SendGroup(context.Background(), senderID, convID, "hello")
	require.NoError(t, err)

	require.Len(t, hub.users, 1)
	assert.ElementsMatch(t, []uuid.UUID{memberA, memberB}, hub.users[0].userIDs)
	assert.Empty(t, hub.rooms)

	nm, ok := hub.users[0].msg.(protocol.NewMessage)
	require.True(t, ok)
	assert.Equal(t, convID, nm.ConversationID)
}

func TestSendGroup_MemberLoadFailureFallsBackToRoom(t *testing.T) {
	convID := uuid.New()
	senderID := uuid.New()
	hub := &fakeBroadcaster{}
	repo := &fakeMessageRepo{msg: testMessage(convID, senderID, "hello")}
	members := &fakeMembers{err: errors.New("db down")}
	svc := NewMessageService(repo, members, hub)

	_, err := svc.SendGroup(context.Background(), senderID, convID, "hello")
	require.NoError(t, err)

	require.Len(t, hub.rooms, 1)
	assert.Equal(t, senderID, hub.rooms[0].skipUserID)
	assert.Empty(t, hub.users)
}

func TestSend_RepoErrorSuppressesBroadcast(t *testing.T) {
	hub := &fakeBroadcaster{}
	repo := &fakeMessageRepo{err: errors.New("boom")}
	svc := NewMessageService(repo, &fakeMembers{}, hub)

	_, err := svc.SendFromSocket(context.Background(), uuid.New(), uuid.New(), "hi")
	require.Error(t, err)
	assert.Empty(t, hub.rooms)
}

func TestEdit_BroadcastsToEveryone(t *testing.T) {
	convID := uuid.New()
	senderID := uuid.New()
	hub := &fakeBroadcaster{}
	repo := &fakeMessageRepo{msg: testMessage(convID, senderID, "edited")}
	svc := NewMessageService(repo, &fakeMembers{}, hub)

	_, err := svc.Edit(context.Background(), repo.msg.ID, senderID, "edited")
	require.NoError(t, err)

	require.Len(t, hub.rooms, 1)
	assert.Equal(t, uuid.Nil, hub.rooms[0].skipUserID)

	me, ok := hub.rooms[0].msg.(protocol.MessageEdited)
	require.True(t, ok)
	assert.Equal(t, "edited", me.NewContent)
	assert.Equal(t, repo.msg.ID, me.MessageID)
}

func TestDelete_BroadcastsToEveryone(t *testing.T) {
	convID := uuid.New()
	senderID := uuid.New()
	hub := &fakeBroadcaster{}
	repo := &fakeMessageRepo{msg: testMessage(convID, senderID, "bye")}
	svc := NewMessageService(repo, &fakeMembers{}, hub)

	require.NoError(t, svc.Delete(context.Background(), repo.msg.ID, senderID))

	require.Len(t, hub.rooms, 1)
	md, ok := hub.rooms[0].msg.(protocol.MessageDeleted)
	require.True(t, ok)
	assert.Equal(t, repo.msg.ID, md.MessageID)
	assert.Equal(t, convID, md.ConversationID)
}

type fakeConversationRepo struct {
	lastMsg *store.Message
	marked  bool
	detail  *store.ConversationDetail
	history []store.Message
	err     error

	listLimit  int
	listBefore *time.Time
}

func (f *fakeConversationRepo) MarkSeen(ctx context.Context, conversationID, userID uuid.UUID) (*store.Message, bool, error) {
	return f.lastMsg, f.marked, f.err
}

func (f *fakeConversationRepo) CreateGroupConversation(ctx context.Context, name string, memberIDs []uuid.UUID, createdBy uuid.UUID) (*store.ConversationDetail, error) {
	return f.detail, f.err
}

func (f *fakeConversationRepo) ListMessages(ctx context.Context, conversationID uuid.UUID, before *time.Time, limit int) ([]store.Message, error) {
	f.listLimit = limit
	f.listBefore = before
	if f.err != nil {
		return nil, f.err
	}
	if limit > len(f.history) {
		limit = len(f.history)
	}
	return f.history[:limit], nil
}

type fakeProfiles struct {
	profiles map[uuid.UUID]*store.Profile
}

func (f *fakeProfiles) GetProfile(ctx context.Context, userID uuid.UUID) (*store.Profile, error) {
	if p, ok := f.profiles[userID]; ok {
		return p, nil
	}
	return nil, store.ErrNotFound
}

func TestMarkSeen_BroadcastsReadReceipt(t *testing.T) {
	convID := uuid.New()
	senderID := uuid.New()
	readerID := uuid.New()
	hub := &fakeBroadcaster{}
	repo := &fakeConversationRepo{lastMsg: testMessage(convID, senderID, "latest"), marked: true}
	profiles := &fakeProfiles{profiles: map[uuid.UUID]*store.Profile{
		senderID: {ID: senderID, Username: "ana", DisplayName: "Ana"},
	}}
	svc := NewConversationService(repo, profiles, hub)

	require.NoError(t, svc.MarkSeen(context.Background(), convID, readerID))

	require.Len(t, hub.rooms, 1)
	rm, ok := hub.rooms[0].msg.(protocol.ReadMessage)
	require.True(t, ok)
	assert.Equal(t, "Ana", rm.LastMessage.Sender.DisplayName)
	assert.Equal(t, repo.lastMsg.ID, rm.LastMessage.ID)
	assert.Equal(t, "latest", rm.LastMessage.Content)

	var update map[string]any
	require.NoError(t, json.Unmarshal(rm.Conversation, &update))
	assert.Equal(t, convID.String(), update["_id"])
	assert.Equal(t, []any{readerID.String()}, update["seenBy"])
}

func TestMarkSeen_NothingMarkedNoBroadcast(t *testing.T) {
	hub := &fakeBroadcaster{}
	repo := &fakeConversationRepo{marked: false}
	svc := NewConversationService(repo, &fakeProfiles{}, hub)

	require.NoError(t, svc.MarkSeen(context.Background(), uuid.New(), uuid.New()))
	assert.Empty(t, hub.rooms)
}

func TestMarkSeen_ProfileLookupFailureStillBroadcasts(t *testing.T) {
	convID := uuid.New()
	senderID := uuid.New()
	hub := &fakeBroadcaster{}
	repo := &fakeConversationRepo{lastMsg: testMessage(convID, senderID, "x"), marked: true}
	svc := NewConversationService(repo, &fakeProfiles{}, hub)

	require.NoError(t, svc.MarkSeen(context.Background(), convID, uuid.New()))

	require.Len(t, hub.rooms, 1)
	rm := hub.rooms[0].msg.(protocol.ReadMessage)
	assert.Equal(t, senderID, rm.LastMessage.Sender.ID)
	assert.Empty(t, rm.LastMessage.Sender.DisplayName)
}

func TestCreateGroup_NotifiesMembersExceptCreator(t *testing.T) {
	creator := uuid.New()
	memberA := uuid.New()
	memberB := uuid.New()
	convID := uuid.New()

	detail := &store.ConversationDetail{
		ConversationID: convID,
		Type:           store.ConversationGroup,
		GroupInfo:      &store.GroupInfo{Name: "trip", CreatedBy: creator},
		Participants: []store.ParticipantDetail{
			{UserID: creator}, {UserID: memberA}, {UserID: memberB},
		},
	}

	hub := &fakeBroadcaster{}
	repo := &fakeConversationRepo{detail: detail}
	svc := NewConversationService(repo, &fakeProfiles{}, hub)

	got, err := svc.CreateGroup(context.Background(), "trip", []uuid.UUID{memberA, memberB}, creator)
	require.NoError(t, err)
	assert.Equal(t, detail, got)

	require.Len(t, hub.users, 1)
	assert.ElementsMatch(t, []uuid.UUID{memberA, memberB}, hub.users[0].userIDs)

	ng, ok := hub.users[0].msg.(protocol.NewGroup)
	require.True(t, ok)
	var payload store.ConversationDetail
	require.NoError(t, json.Unmarshal(ng.Conversation, &payload))
	assert.Equal(t, convID, payload.ConversationID)
}

func TestCreateGroup_RepoError(t *testing.T) {
	hub := &fakeBroadcaster{}
	repo := &fakeConversationRepo{err: errors.New("boom")}
	svc := NewConversationService(repo, &fakeProfiles{}, hub)

	_, err := svc.CreateGroup(context.Background(), "x", nil, uuid.New())
	require.Error(t, err)
	assert.Empty(t, hub.users)
}

// historyFixture builds n messages with descending creation times, the
// order rows come back from the store.
func historyFixture(convID uuid.UUID, n int) []store.Message {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := make([]store.Message, n)
	for i := range msgs {
		content := "m"
		msgs[i] = store.Message{
			ID:             uuid.New(),
			ConversationID: convID,
			SenderID:       uuid.New(),
			Content:        &content,
			CreatedAt:      base.Add(-time.Duration(i) * time.Minute),
		}
	}
	return msgs
}

func TestHistory_ReturnsAscendingPage(t *testing.T) {
	convID := uuid.New()
	repo := &fakeConversationRepo{history: historyFixture(convID, 3)}
	svc := NewConversationService(repo, &fakeProfiles{}, &fakeBroadcaster{})

	msgs, next, err := svc.History(context.Background(), convID, nil, 10)
	require.NoError(t, err)
	assert.Nil(t, next)

	require.Len(t, msgs, 3)
	for i := 1; i < len(msgs); i++ {
		assert.True(t, msgs[i-1].CreatedAt.Before(msgs[i].CreatedAt))
	}
	// One extra row is requested to detect a further page.
	assert.Equal(t, 11, repo.listLimit)
}

func TestHistory_FullPageYieldsCursor(t *testing.T) {
	convID := uuid.New()
	repo := &fakeConversationRepo{history: historyFixture(convID, 5)}
	svc := NewConversationService(repo, &fakeProfiles{}, &fakeBroadcaster{})

	msgs, next, err := svc.History(context.Background(), convID, nil, 4)
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	// The cursor points at the oldest returned message, so the next page
	// starts strictly before it.
	require.NotNil(t, next)
	assert.Equal(t, msgs[0].CreatedAt, *next)

	_, _, err = svc.History(context.Background(), convID, next, 4)
	require.NoError(t, err)
	require.NotNil(t, repo.listBefore)
	assert.Equal(t, *next, *repo.listBefore)
}

func TestHistory_LimitClamped(t *testing.T) {
	convID := uuid.New()
	repo := &fakeConversationRepo{}
	svc := NewConversationService(repo, &fakeProfiles{}, &fakeBroadcaster{})

	_, _, err := svc.History(context.Background(), convID, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, defaultHistoryLimit+1, repo.listLimit)

	_, _, err = svc.History(context.Background(), convID, nil, 10_000)
	require.NoError(t, err)
	assert.Equal(t, maxHistoryLimit+1, repo.listLimit)
}

func TestHistory_RepoError(t *testing.T) {
	repo := &fakeConversationRepo{err: errors.New("boom")}
	svc := NewConversationService(repo, &fakeProfiles{}, &fakeBroadcaster{})

	_, _, err := svc.History(context.Background(), uuid.New(), nil, 10)
	require.Error(t, err)
}
