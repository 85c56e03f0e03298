package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// FriendStore reads the friends table. Friendships are stored once per pair
// with (user_a, user_b) ordered so lookups are symmetric.
type FriendStore struct {
	pool Querier
}

// orderPair normalizes a friendship pair to storage order.
func orderPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() <= b.String() {
		return a, b
	}
	return b, a
}

// AreFriends reports whether the two users are friends.
func (s *FriendStore) AreFriends(ctx context.Context, a, b uuid.UUID) (bool, error) {
	userA, userB := orderPair(a, b)
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM friends WHERE user_a = $1 AND user_b = $2)`,
		userA, userB).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check friendship: %w", err)
	}
	return exists, nil
}

// ListFriendIDs returns the IDs of all of the user's friends.
func (s *FriendStore) ListFriendIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT CASE WHEN user_a = $1 THEN user_b ELSE user_a END
		FROM friends
		WHERE user_a = $1 OR user_b = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	return ids, nil
}

// Add records a friendship. Adding an existing pair is a no-op.
func (s *FriendStore) Add(ctx context.Context, a, b uuid.UUID) error {
	userA, userB := orderPair(a, b)
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO friends (user_a, user_b) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, userA, userB); err != nil {
		return fmt.Errorf("add friend: %w", err)
	}
	return nil
}
