package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/AutoSherpa/internal/models"
)

// InMemoryStore keeps everything in process memory. It is used when no
// database is configured and in tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	cars   []models.CarRecord
	nextID int64
	leads  map[string]models.Lead
	logs   []models.MessageLog
	dedup  map[string]DedupRecord
}

// NewInMemoryStore creates a store holding cars.
func NewInMemoryStore(cars ...models.CarRecord) *InMemoryStore {
	s := &InMemoryStore{leads: make(map[string]models.Lead), dedup: make(map[string]DedupRecord)}
	for _, c := range cars {
		s.addCar(c)
	}
	return s
}

func (s *InMemoryStore) addCar(c models.CarRecord) int64 {
	s.nextID++
	c.ID = s.nextID
	s.cars = append(s.cars, c)
	return c.ID
}

// QueryInventory implements InventoryRepo.
func (s *InMemoryStore) QueryInventory(ctx context.Context, f models.InventoryFilter) ([]models.CarRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.CarRecord
	for _, c := range s.cars {
		if f.Matches(c) {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(a, b models.CarRecord) int {
		return cmp.Or(cmp.Compare(a.Price, b.Price), cmp.Compare(a.ID, b.ID))
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// ListDistinct implements InventoryRepo.
func (s *InMemoryStore) ListDistinct(ctx context.Context, field models.InventoryField, f models.InventoryFilter) ([]string, error) {
	if _, ok := distinctColumns[field]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, c := range s.cars {
		if !f.Matches(c) {
			continue
		}
		v := c.Brand
		if field == models.FieldType {
			v = c.Type
		}
		if strings.TrimSpace(v) == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	slices.Sort(out)
	return out, nil
}

// AddCar implements InventoryRepo.
func (s *InMemoryStore) AddCar(ctx context.Context, c models.CarRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addCar(c), nil
}

// CountCars implements InventoryRepo.
func (s *InMemoryStore) CountCars(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cars), nil
}

// SaveLead implements LeadRepo.
func (s *InMemoryStore) SaveLead(ctx context.Context, lead models.Lead) (string, error) {
	switch lead.(type) {
	case models.ValuationLead, models.TestDriveBooking, models.CallbackRequest:
	default:
		return "", fmt.Errorf("%w: %T", ErrUnknownLeadKind, lead)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.leads[id] = lead
	return id, nil
}

// Leads returns the saved leads of kind.
func (s *InMemoryStore) Leads(kind models.LeadKind) []models.Lead {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Lead
	for _, l := range s.leads {
		if l.Kind() == kind {
			out = append(out, l)
		}
	}
	return out
}

// LogMessage implements MessageLogRepo.
func (s *InMemoryStore) LogMessage(ctx context.Context, e models.MessageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.CreatedAt = orNow(e.CreatedAt)
	s.logs = append(s.logs, e)
	return nil
}

// MessageLogs returns a copy of the message log.
func (s *InMemoryStore) MessageLogs() []models.MessageLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.logs)
}

// IsDuplicate implements DedupRepo.
func (s *InMemoryStore) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dedup[messageID]
	return ok, nil
}

// RecordInbound implements DedupRepo.
func (s *InMemoryStore) RecordInbound(ctx context.Context, messageID, participantID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[messageID]; ok {
		return false, nil
	}
	s.dedup[messageID] = DedupRecord{MessageID: messageID, ParticipantID: participantID, ReceivedAt: time.Now()}
	return true, nil
}

// MarkProcessed implements DedupRepo.
func (s *InMemoryStore) MarkProcessed(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.dedup[messageID]; ok {
		now := time.Now()
		rec.ProcessedAt = &now
		s.dedup[messageID] = rec
	}
	return nil
}

// ForgetInbound implements DedupRepo.
func (s *InMemoryStore) ForgetInbound(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.dedup[messageID]; ok && rec.ProcessedAt == nil {
		delete(s.dedup, messageID)
	}
	return nil
}

// Ping implements Store.
func (s *InMemoryStore) Ping(ctx context.Context) error { return nil }

// Close implements Store.
func (s *InMemoryStore) Close() error { return nil }
