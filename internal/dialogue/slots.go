package dialogue

import (
	"context"
	"slices"
	"time"

	"github.com/BTreeMap/AutoSherpa/internal/extract"
	"github.com/BTreeMap/AutoSherpa/internal/models"
)

// ValidationResult is the outcome of validating one raw slot value.
type ValidationResult struct {
	Valid    bool
	Value    string
	Wildcard bool
	// Message replaces the slot prompt on rejection. Empty re-asks the prompt unchanged.
	Message string
	// Suggestions replace the slot options on rejection. Nil keeps the slot options.
	Suggestions []string
}

// Validator checks a raw value against the options currently offered for the slot.
type Validator func(raw string, options []string) ValidationResult

func accept(value string) ValidationResult { return ValidationResult{Valid: true, Value: value} }

func acceptWildcard() ValidationResult { return ValidationResult{Valid: true, Wildcard: true} }

func reject(message string, suggestions []string) ValidationResult {
	return ValidationResult{Message: message, Suggestions: suggestions}
}

// SlotSpec describes one slot of a flow.
type SlotSpec struct {
	Name    string
	Step    models.Step
	Prompt  string
	Options []string
	// Dynamic computes the options at prompt time and overrides Options.
	Dynamic  func(ctx context.Context, t *turn) []string
	Validate Validator
	// Skip reports whether the slot is not needed given the other slots.
	Skip func(models.Slots) bool
}

// MergeEntities copies entities into slots without ever clearing a filled
// slot: empty values are ignored and equal values are left alone. It returns
// the names of the slots that changed.
func MergeEntities(slots models.Slots, entities map[string]string) []string {
	var changed []string
	for name, value := range entities {
		if value == "" {
			continue
		}
		if current, ok := slots[name]; ok && current == value {
			continue
		}
		slots[name] = value
		changed = append(changed, name)
	}
	slices.Sort(changed)
	return changed
}

// effect is a persistence side effect applied after the reply is computed.
type effect struct {
	lead models.Lead
	// onFailure may adjust the session and return a replacement reply.
	onFailure func(*models.Session) *models.Reply
}

// turn carries one inbound message through the router and flows.
type turn struct {
	sess    *models.Session
	text    string
	now     time.Time
	effects []effect
}

func (t *turn) save(lead models.Lead, onFailure func(*models.Session) *models.Reply) {
	t.effects = append(t.effects, effect{lead: lead, onFailure: onFailure})
}

// slotMachine drives the ordered slot filling shared by the flows.
type slotMachine struct {
	flow  models.FlowKind
	specs []SlotSpec
}

func (m slotMachine) specAt(step models.Step) (SlotSpec, bool) {
	for _, s := range m.specs {
		if s.Step == step {
			return s, true
		}
	}
	return SlotSpec{}, false
}

func (m slotMachine) spec(name string) (SlotSpec, bool) {
	for _, s := range m.specs {
		if s.Name == name {
			return s, true
		}
	}
	return SlotSpec{}, false
}

// next returns the first slot in order that still needs a value.
func (m slotMachine) next(slots models.Slots) (SlotSpec, bool) {
	for _, s := range m.specs {
		if s.Skip != nil && s.Skip(slots) {
			continue
		}
		if !slots.Filled(s.Name) {
			return s, true
		}
	}
	return SlotSpec{}, false
}

// anyFilled reports whether at least one slot of the machine holds a value.
func (m slotMachine) anyFilled(slots models.Slots) bool {
	for _, s := range m.specs {
		if slots.Filled(s.Name) {
			return true
		}
	}
	return false
}

func (m slotMachine) options(ctx context.Context, t *turn, spec SlotSpec) []string {
	if spec.Dynamic != nil {
		return spec.Dynamic(ctx, t)
	}
	return slices.Clone(spec.Options)
}

func (m slotMachine) ask(ctx context.Context, t *turn, spec SlotSpec) models.Reply {
	t.sess.Step = spec.Step
	return models.Reply{Message: spec.Prompt, Options: m.options(ctx, t, spec)}
}

// seed validates entities against the options each slot currently offers
// and merges the accepted ones, in slot order so later option lists see the
// earlier values. Wildcards and rejected values are dropped.
func (m slotMachine) seed(ctx context.Context, t *turn, entities map[string]string) []string {
	slots := t.sess.SlotsFor(m.flow)
	var changed []string
	for _, spec := range m.specs {
		raw := entities[spec.Name]
		if raw == "" {
			continue
		}
		res := spec.Validate(raw, m.options(ctx, t, spec))
		if !res.Valid || res.Wildcard {
			continue
		}
		changed = append(changed, MergeEntities(slots, map[string]string{spec.Name: res.Value})...)
	}
	slices.Sort(changed)
	return changed
}

// absorb extracts every slot value it can from the message and validates it.
// The slot asked for at the current step also falls back to the raw message.
// It returns a re-prompt when the current slot's value is rejected.
func (m slotMachine) absorb(ctx context.Context, t *turn, current SlotSpec, hasCurrent bool) *models.Reply {
	slots := t.sess.SlotsFor(m.flow)
	found := extract.Entities(t.text)

	others := make(map[string]string)
	for name, raw := range found {
		if hasCurrent && name == current.Name {
			continue
		}
		delete(found, name)
		spec, ok := m.spec(name)
		if !ok || (spec.Skip != nil && spec.Skip(slots)) {
			continue
		}
		if res := spec.Validate(raw, m.options(ctx, t, spec)); res.Valid && !res.Wildcard {
			others[name] = res.Value
		}
	}
	MergeEntities(slots, others)

	if !hasCurrent {
		return nil
	}
	raw, ok := found[current.Name]
	if !ok {
		raw = t.text
	}
	options := m.options(ctx, t, current)
	res := current.Validate(raw, options)
	if !res.Valid {
		reply := models.Reply{Message: current.Prompt, Options: options}
		if res.Message != "" {
			reply.Message = res.Message
		}
		if res.Suggestions != nil {
			reply.Options = res.Suggestions
		}
		return &reply
	}
	if res.Wildcard {
		slots[current.Name] = ""
		return nil
	}
	MergeEntities(slots, map[string]string{current.Name: res.Value})
	return nil
}
