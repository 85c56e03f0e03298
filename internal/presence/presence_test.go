// internal/presence/presence_test.go
package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStore(rdb), mr
}

func TestSetOnline(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, store.SetOnline(ctx, userID))

	online, err := store.IsOnline(ctx, userID)
	require.NoError(t, err)
	assert.True(t, online)

	ttl := mr.TTL("presence:" + userID.String())
	assert.Equal(t, OnlineTTL, ttl)
}

func TestSetOnline_ExpiresWithoutRefresh(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, store.SetOnline(ctx, userID))
	mr.FastForward(OnlineTTL + time.Second)

	online, err := store.IsOnline(ctx, userID)
	require.NoError(t, err)
	assert.False(t, online)
}

func TestSetOffline(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, store.SetOnline(ctx, userID))

	lastSeen, err := store.SetOffline(ctx, userID)
	require.NoError(t, err)

	_, parseErr := time.Parse(time.RFC3339, lastSeen)
	assert.NoError(t, parseErr)

	online, err := store.IsOnline(ctx, userID)
	require.NoError(t, err)
	assert.False(t, online)

	got, err := store.LastSeen(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, lastSeen, got)

	// last_seen persists with no TTL
	assert.Equal(t, time.Duration(0), mr.TTL("last_seen:"+userID.String()))
}

func TestRefresh_ExtendsTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, store.SetOnline(ctx, userID))
	mr.FastForward(40 * time.Second)

	require.NoError(t, store.Refresh(ctx, userID))
	mr.FastForward(40 * time.Second)

	online, err := store.IsOnline(ctx, userID)
	require.NoError(t, err)
	assert.True(t, online, "refreshed key should outlive the original TTL")
}

func TestRefresh_DoesNotResurrect(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, store.SetOnline(ctx, userID))
	mr.FastForward(OnlineTTL + time.Second)

	require.NoError(t, store.Refresh(ctx, userID))

	online, err := store.IsOnline(ctx, userID)
	require.NoError(t, err)
	assert.False(t, online)
}

func TestLastSeen_NeverRecorded(t *testing.T) {
	store, _ := newTestStore(t)

	got, err := store.LastSeen(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetBatch(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	online := uuid.New()
	offlineSeen := uuid.New()
	offlineNever := uuid.New()

	require.NoError(t, store.SetOnline(ctx, online))
	require.NoError(t, store.SetOnline(ctx, offlineSeen))
	lastSeen, err := store.SetOffline(ctx, offlineSeen)
	require.NoError(t, err)

	infos, err := store.GetBatch(ctx, []uuid.UUID{online, offlineSeen, offlineNever})
	require.NoError(t, err)
	require.Len(t, infos, 3)

	assert.Equal(t, online, infos[0].UserID)
	assert.True(t, infos[0].IsOnline)
	assert.Empty(t, infos[0].LastSeen)

	assert.False(t, infos[1].IsOnline)
	assert.Equal(t, lastSeen, infos[1].LastSeen)

	assert.False(t, infos[2].IsOnline)
	assert.Empty(t, infos[2].LastSeen)
}

func TestGetBatch_Empty(t *testing.T) {
	store, _ := newTestStore(t)

	infos, err := store.GetBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, infos)
}
