package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/AutoSherpa/internal/models"
)

// Manager serialises turns per phone number on top of a Store.
type Manager struct {
	store Store

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewManager creates a manager over store.
func NewManager(store Store) *Manager {
	return &Manager{store: store, locks: make(map[string]*keyLock)}
}

// Store returns the underlying store.
func (m *Manager) Store() Store { return m.store }

// Do loads (or creates) the session for phone, runs fn and saves the result.
// Calls for the same phone never overlap; different phones run in parallel.
// When fn returns an error the session is not saved.
func (m *Manager) Do(ctx context.Context, phone string, fn func(*models.Session) error) error {
	unlock, err := m.lock(ctx, phone)
	if err != nil {
		return err
	}
	defer unlock()

	sess, err := m.store.Load(ctx, phone)
	switch {
	case errors.Is(err, ErrNotFound):
		sess = models.NewSession(phone)
		slog.Debug("Manager.Do: new session", "phone", phone, "session_id", sess.ID)
	case err != nil:
		return fmt.Errorf("load session %s: %w", phone, err)
	}

	if err := fn(sess); err != nil {
		return err
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return fmt.Errorf("save session %s: %w", phone, err)
	}
	return nil
}

// Reset deletes the stored session for phone.
func (m *Manager) Reset(ctx context.Context, phone string) error {
	unlock, err := m.lock(ctx, phone)
	if err != nil {
		return err
	}
	defer unlock()
	return m.store.Delete(ctx, phone)
}

// Sweep expires idle sessions when the store does not do so itself.
func (m *Manager) Sweep(now time.Time) int {
	if s, ok := m.store.(Sweeper); ok {
		return s.Sweep(now)
	}
	return 0
}

func (m *Manager) lock(ctx context.Context, phone string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[phone]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		m.locks[phone] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			m.release(phone, l)
		}, nil
	case <-ctx.Done():
		m.release(phone, l)
		return nil, ctx.Err()
	}
}

func (m *Manager) release(phone string, l *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, phone)
	}
}
