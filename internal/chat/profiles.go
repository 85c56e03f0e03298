package chat

import (
	"context"

	"github.com/google/uuid"

	"github.com/markb/chatlite/internal/cache"
	"github.com/markb/chatlite/internal/store"
)

// ProfileStore reads profiles from the database. *store.UserStore
// satisfies it.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*store.Profile, error)
}

// Profiles serves user profiles through the Redis cache.
type Profiles struct {
	cache *cache.Cache
	users ProfileStore
}

// NewProfiles creates a cached profile source.
func NewProfiles(c *cache.Cache, users ProfileStore) *Profiles {
	return &Profiles{cache: c, users: users}
}

// GetProfile returns the user's profile, preferring the cache. A cache
// error falls through to the database.
func (p *Profiles) GetProfile(ctx context.Context, userID uuid.UUID) (*store.Profile, error) {
	key := cache.ProfileKey(userID)

	var cached store.Profile
	if found, err := p.cache.Get(ctx, key, &cached); err == nil && found {
		return &cached, nil
	}

	profile, err := p.users.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Best effort: a failed cache write only costs the next lookup.
	_ = p.cache.Set(ctx, key, profile, cache.ProfileTTL)

	return profile, nil
}

// Invalidate drops the cached profile after an update.
func (p *Profiles) Invalidate(ctx context.Context, userID uuid.UUID) error {
	return p.cache.Delete(ctx, cache.ProfileKey(userID))
}
