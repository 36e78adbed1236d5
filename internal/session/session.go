// Package session persists per-phone conversation state between turns.
// Stores expire idle sessions after a TTL and reject stale writes with an
// optimistic version check.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/BTreeMap/AutoSherpa/internal/models"
)

// DefaultTTL is how long an idle session is kept.
const DefaultTTL = 30 * time.Minute

var (
	// ErrNotFound is returned when no live session exists for a phone number.
	ErrNotFound = errors.New("session not found")
	// ErrVersionConflict is returned when a save races another writer.
	ErrVersionConflict = errors.New("session version conflict")
)

// Store loads and saves sessions keyed by phone number.
type Store interface {
	// Load returns the live session for phone or ErrNotFound. Loading refreshes the TTL.
	Load(ctx context.Context, phone string) (*models.Session, error)
	// Save writes sess if its Version still matches the stored copy and increments Version.
	Save(ctx context.Context, sess *models.Session) error
	// Delete removes the session for phone. Deleting a missing session is not an error.
	Delete(ctx context.Context, phone string) error
	Close() error
}

// Sweeper is implemented by stores that expire sessions themselves.
type Sweeper interface {
	Sweep(now time.Time) int
}
