package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/AutoSherpa/internal/models"
)

type memoryEntry struct {
	data    []byte
	version int64
	expires time.Time
}

// MemoryStore keeps sessions in process memory. Sessions are stored as JSON
// so callers never share state with the store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	ttl      time.Duration
	now      func() time.Time
}

var (
	_ Store   = (*MemoryStore)(nil)
	_ Sweeper = (*MemoryStore)(nil)
)

// NewMemoryStore creates an in-memory store. ttl <= 0 uses DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{sessions: make(map[string]memoryEntry), ttl: ttl, now: time.Now}
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context, phone string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.sessions[phone]
	if !ok {
		return nil, ErrNotFound
	}
	if !now.Before(entry.expires) {
		delete(s.sessions, phone)
		return nil, ErrNotFound
	}
	entry.expires = now.Add(s.ttl)
	s.sessions[phone] = entry

	var sess models.Session
	if err := json.Unmarshal(entry.data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if entry, ok := s.sessions[sess.Phone]; ok && now.Before(entry.expires) && entry.version != sess.Version {
		return ErrVersionConflict
	}
	next := *sess
	next.Version++
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	s.sessions[sess.Phone] = memoryEntry{data: data, version: next.Version, expires: now.Add(s.ttl)}
	sess.Version = next.Version
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, phone)
	return nil
}

// Sweep drops every session idle past its TTL and returns how many were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for phone, entry := range s.sessions {
		if !now.Before(entry.expires) {
			delete(s.sessions, phone)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("MemoryStore.Sweep: expired sessions removed", "count", removed, "remaining", len(s.sessions))
	}
	return removed
}

// Len returns the number of stored sessions, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
