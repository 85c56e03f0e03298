// Package store contains the PostgreSQL persistence layer: messages,
// conversations, participants, friends, and user profiles.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx shared by pools and transactions. Methods
// that must run inside a transaction take a Querier so the caller controls
// the boundary.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store bundles all repositories over one connection pool.
type Store struct {
	pool *pgxpool.Pool

	Messages      *MessageStore
	Conversations *ConversationStore
	Friends       *FriendStore
	Users         *UserStore
}

// New creates a store over the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:          pool,
		Messages:      &MessageStore{pool: pool},
		Conversations: &ConversationStore{pool: pool},
		Friends:       &FriendStore{pool: pool},
		Users:         &UserStore{pool: pool},
	}
}

// Pool exposes the underlying pool for health checks.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// WithTx runs fn inside a transaction, committing on nil error and rolling
// back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
