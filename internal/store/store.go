// Package store keeps the global message collection and announces changes
// to it.
package store

import (
	"context"
	"errors"
	"time"

	"securechat/internal/models"
)

var ErrClosed = errors.New("store is closed")

// Store is an append-only, time-ordered message collection.
type Store interface {
	// Add persists a new message. The store assigns the ID; Text and
	// CreatedAt are stored as given.
	Add(ctx context.Context, msg models.Message) (models.Message, error)
	// List returns every message ordered by CreatedAt ascending. Ties are
	// broken by the store's own key, so the order is total and stable.
	List(ctx context.Context) ([]models.Message, error)
	// Changes returns a channel that receives a value after the collection
	// changes, and a func that releases it.
	Changes() (<-chan struct{}, func())
	Ping(ctx context.Context) error
	Close() error
}

// Clock returns submission timestamps.
type Clock func() time.Time
