package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Profile is the public subset of a user shown to other users.
type Profile struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Username    string    `json:"username" db:"username"`
	DisplayName string    `json:"displayName" db:"display_name"`
	AvatarURL   *string   `json:"avatarUrl,omitempty" db:"avatar_url"`
}

// UserStore reads user profiles.
type UserStore struct {
	pool Querier
}

// GetProfile returns the profile of a live user, or ErrNotFound.
func (s *UserStore) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, username, display_name, avatar_url
		FROM users
		WHERE id = $1 AND deleted_at IS NULL`, userID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	p, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[Profile])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// Exists reports whether a live user with the given ID exists.
func (s *UserStore) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND deleted_at IS NULL)`,
		userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return exists, nil
}
