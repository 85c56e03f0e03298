// Package presence tracks user online state in Redis.
//
// A user is online while the key presence:{userID} exists; the key carries a
// TTL and is refreshed by connected sessions, so a crashed process expires
// naturally. The last time a user went offline is kept in last_seen:{userID}
// without a TTL.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// OnlineTTL is how long a presence key lives without a refresh.
const OnlineTTL = 60 * time.Second

// Info is one user's presence snapshot.
type Info struct {
	UserID   uuid.UUID `json:"userId"`
	IsOnline bool      `json:"isOnline"`
	LastSeen string    `json:"lastSeen,omitempty"`
}

// Store reads and writes presence state in Redis.
type Store struct {
	rdb *redis.Client
}

// NewStore creates a presence store backed by the given Redis client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func presenceKey(userID uuid.UUID) string {
	return "presence:" + userID.String()
}

func lastSeenKey(userID uuid.UUID) string {
	return "last_seen:" + userID.String()
}

// SetOnline marks the user online for OnlineTTL.
func (s *Store) SetOnline(ctx context.Context, userID uuid.UUID) error {
	if err := s.rdb.Set(ctx, presenceKey(userID), "1", OnlineTTL).Err(); err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	return nil
}

// SetOffline removes the presence key and records the offline timestamp.
// It returns the recorded last-seen time in RFC3339 format.
func (s *Store) SetOffline(ctx context.Context, userID uuid.UUID) (string, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, presenceKey(userID))
	pipe.Set(ctx, lastSeenKey(userID), now, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("set offline: %w", err)
	}
	return now, nil
}

// Refresh extends the TTL of an existing presence key. It does not create
// the key: a user that already expired stays offline until SetOnline.
func (s *Store) Refresh(ctx context.Context, userID uuid.UUID) error {
	if err := s.rdb.Expire(ctx, presenceKey(userID), OnlineTTL).Err(); err != nil {
		return fmt.Errorf("refresh presence: %w", err)
	}
	return nil
}

// IsOnline reports whether the user's presence key exists.
func (s *Store) IsOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	n, err := s.rdb.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("check presence: %w", err)
	}
	return n > 0, nil
}

// LastSeen returns the user's recorded offline timestamp, or "" if none.
func (s *Store) LastSeen(ctx context.Context, userID uuid.UUID) (string, error) {
	v, err := s.rdb.Get(ctx, lastSeenKey(userID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get last seen: %w", err)
	}
	return v, nil
}

// GetBatch returns presence info for the given users in the same order.
// Online checks run in one pipeline; last-seen lookups for the offline
// subset run in a second.
func (s *Store) GetBatch(ctx context.Context, userIDs []uuid.UUID) ([]Info, error) {
	infos := make([]Info, len(userIDs))

	pipe := s.rdb.Pipeline()
	existsCmds := make([]*redis.IntCmd, len(userIDs))
	for i, id := range userIDs {
		existsCmds[i] = pipe.Exists(ctx, presenceKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("batch presence: %w", err)
	}

	var offline []int
	for i, id := range userIDs {
		online := existsCmds[i].Val() > 0
		infos[i] = Info{UserID: id, IsOnline: online}
		if !online {
			offline = append(offline, i)
		}
	}

	if len(offline) > 0 {
		pipe = s.rdb.Pipeline()
		seenCmds := make([]*redis.StringCmd, len(offline))
		for j, i := range offline {
			seenCmds[j] = pipe.Get(ctx, lastSeenKey(userIDs[i]))
		}
		if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
			return nil, fmt.Errorf("batch last seen: %w", err)
		}
		for j, i := range offline {
			if v, err := seenCmds[j].Result(); err == nil {
				infos[i].LastSeen = v
			}
		}
	}

	return infos, nil
}
