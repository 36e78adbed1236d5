package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultHistoryLimit bounds Session.History when no explicit limit is configured.
const DefaultHistoryLimit = 20

// Slot names shared by the classifier, the extractor and the flows.
const (
	SlotBrand     = "brand"
	SlotModel     = "model"
	SlotYear      = "year"
	SlotFuel      = "fuel"
	SlotKms       = "kms"
	SlotOwner     = "owner"
	SlotCondition = "condition"
	SlotName      = "name"
	SlotPhone     = "phone"
	SlotLocation  = "location"
	SlotBudget    = "budget"
	SlotType      = "type"
	SlotDate      = "date"
	SlotTime      = "time"
	SlotLicense   = "license"
	SlotMode      = "location_mode"
	SlotAddress   = "address"
	SlotReason    = "reason"
	SlotContact   = "contact_option"
)

// Slots maps slot names to validated values. A present key holding the empty
// string records an explicit wildcard choice; an absent key means the value
// has not been provided yet.
type Slots map[string]string

// Get returns the value for name and whether the slot is present.
func (s Slots) Get(name string) (string, bool) {
	v, ok := s[name]
	return v, ok
}

// Value returns the value for name, or "" when absent or wildcard.
func (s Slots) Value(name string) string {
	return s[name]
}

// Filled reports whether name holds a concrete value or an explicit wildcard.
func (s Slots) Filled(name string) bool {
	_, ok := s[name]
	return ok
}

// IsWildcard reports whether name was explicitly set to "any".
func (s Slots) IsWildcard(name string) bool {
	v, ok := s[name]
	return ok && v == ""
}

// Clone returns a copy of the slot map.
func (s Slots) Clone() Slots {
	out := make(Slots, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// HistoryEntry is a single turn in the conversation history.
type HistoryEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// History roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session is the per-user conversational state threaded through every turn.
type Session struct {
	ID    string `json:"id"`
	Phone string `json:"phone"`

	Step  Step               `json:"step"`
	Slots map[FlowKind]Slots `json:"slots"`

	LastIntent     Intent            `json:"last_intent,omitempty"`
	LastEntities   map[string]string `json:"last_entities,omitempty"`
	LastConfidence float64           `json:"last_confidence"`

	FilteredCars []CarRecord `json:"filtered_cars,omitempty"`
	CarIndex     int         `json:"car_index"`
	SelectedCar  *CarRecord  `json:"selected_car,omitempty"`

	History           []HistoryEntry `json:"history,omitempty"`
	ConversationEnded bool           `json:"conversation_ended"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`
}

// NewSession creates an idle session for the given phone number.
func NewSession(phone string) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		Phone:     phone,
		Slots:     make(map[FlowKind]Slots),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SlotsFor returns the slot store of a flow, creating it if needed.
func (s *Session) SlotsFor(flow FlowKind) Slots {
	if s.Slots == nil {
		s.Slots = make(map[FlowKind]Slots)
	}
	slots, ok := s.Slots[flow]
	if !ok {
		slots = make(Slots)
		s.Slots[flow] = slots
	}
	return slots
}

// ClearSlots drops every slot of a flow.
func (s *Session) ClearSlots(flow FlowKind) {
	delete(s.Slots, flow)
}

// InActiveFlow reports whether the current step belongs to a flow.
func (s *Session) InActiveFlow() bool {
	return s.Step.Flow() != FlowNone
}

// ResetBrowse clears the browse cursor and selection.
func (s *Session) ResetBrowse() {
	s.FilteredCars = nil
	s.CarIndex = 0
	s.SelectedCar = nil
}

// Reset returns the session to a fresh idle state. Identity and history survive.
func (s *Session) Reset() {
	s.Step = StepIdle
	s.Slots = make(map[FlowKind]Slots)
	s.LastIntent = ""
	s.LastEntities = nil
	s.LastConfidence = 0
	s.ResetBrowse()
	s.ConversationEnded = false
}

// End clears every flow field and marks the conversation as ended.
func (s *Session) End() {
	s.Reset()
	s.ConversationEnded = true
}

// AppendHistory records a turn, evicting the oldest entries beyond limit.
func (s *Session) AppendHistory(role, content string, limit int) {
	if content == "" {
		return
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	s.History = append(s.History, HistoryEntry{Role: role, Content: content, Timestamp: time.Now()})
	if over := len(s.History) - limit; over > 0 {
		s.History = append([]HistoryEntry(nil), s.History[over:]...)
	}
}

// RecentHistory returns up to n of the most recent history entries.
func (s *Session) RecentHistory(n int) []HistoryEntry {
	if n <= 0 || len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// ClampCursor enforces 0 <= CarIndex <= len(FilteredCars).
func (s *Session) ClampCursor() {
	if s.CarIndex < 0 {
		s.CarIndex = 0
	}
	if s.CarIndex > len(s.FilteredCars) {
		s.CarIndex = len(s.FilteredCars)
	}
}
