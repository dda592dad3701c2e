// Package schema declares the shape of fact families: predicate name, arity,
// ordered field slots, sign policy and tuple flag. A Schema is built once at
// startup and is read-only afterwards; Facts are immutable instances of a
// Schema. Instead of generating a distinct Go type per predicate, one generic
// Fact value carries a schema reference and schema-driven field access.
package schema

import (
	"fmt"

	"factorm/internal/logging"
	"factorm/term"
)

// SignPolicy restricts which literal signs a schema accepts.
type SignPolicy int

const (
	// EitherSign accepts positive and negative literals.
	EitherSign SignPolicy = iota
	// PositiveOnly accepts positive literals only.
	PositiveOnly
	// NegativeOnly accepts negative literals only.
	NegativeOnly
)

func (p SignPolicy) String() string {
	switch p {
	case PositiveOnly:
		return "positive"
	case NegativeOnly:
		return "negative"
	default:
		return "either"
	}
}

// Allows reports whether the policy admits the given sign.
func (p SignPolicy) Allows(sign bool) bool {
	switch p {
	case PositiveOnly:
		return sign
	case NegativeOnly:
		return !sign
	default:
		return true
	}
}

// Slot is one field position of a schema: a name, a field codec, an optional
// default value and an index hint consumed by the fact store.
type Slot struct {
	Name       string
	Field      term.Field
	Default    interface{}
	HasDefault bool
	Indexed    bool
}

// WithDefault returns a copy of the slot carrying a default value.
func (s Slot) WithDefault(v interface{}) Slot {
	s.Default = v
	s.HasDefault = true
	return s
}

// DefinitionError reports a fatal mistake in a schema definition, caught at
// definition time.
type DefinitionError struct {
	Schema string
	Slot   string
	Reason string
}

func (e *DefinitionError) Error() string {
	if e.Slot != "" {
		return fmt.Sprintf("schema %s: slot %s: %s", e.Schema, e.Slot, e.Reason)
	}
	return fmt.Sprintf("schema %s: %s", e.Schema, e.Reason)
}

// Slot names reserved for instance introspection on Fact.
var reservedSlotNames = map[string]struct{}{
	"sign":   {},
	"schema": {},
	"symbol": {},
}

// Schema is the immutable definition of one fact family. Arity equals the
// slot count by construction; slot order defines positional access.
type Schema struct {
	name   string
	slots  []Slot
	byName map[string]int
	policy SignPolicy
	tuple  bool
}

// Option configures a schema at definition time.
type Option func(*Schema)

// WithSignPolicy restricts the schema to one literal sign.
func WithSignPolicy(p SignPolicy) Option {
	return func(s *Schema) { s.policy = p }
}

// AsTuple marks the schema as an anonymous tuple: its symbols carry no
// predicate name and render as "(arg, ...)".
func AsTuple() Option {
	return func(s *Schema) { s.tuple = true }
}

// New defines a schema. The name must be a legal predicate identifier
// (lowercase letter or underscore first, then letters, digits, underscores)
// unless the schema is a tuple, in which case the name only labels it for
// diagnostics. Definition mistakes return a *DefinitionError.
func New(name string, slots []Slot, opts ...Option) (*Schema, error) {
	s := &Schema{
		name:   name,
		slots:  make([]Slot, len(slots)),
		byName: make(map[string]int, len(slots)),
		policy: EitherSign,
	}
	copy(s.slots, slots)
	for _, opt := range opts {
		opt(s)
	}

	if !s.tuple && !isPredicateName(name) {
		return nil, &DefinitionError{Schema: name, Reason: "not a legal predicate name"}
	}
	for i, slot := range s.slots {
		if slot.Name == "" {
			return nil, &DefinitionError{Schema: name, Reason: fmt.Sprintf("slot %d has no name", i)}
		}
		if slot.Field == nil {
			return nil, &DefinitionError{Schema: name, Slot: slot.Name, Reason: "no field codec"}
		}
		if _, reserved := reservedSlotNames[slot.Name]; reserved {
			return nil, &DefinitionError{Schema: name, Slot: slot.Name, Reason: "reserved slot name"}
		}
		if _, dup := s.byName[slot.Name]; dup {
			return nil, &DefinitionError{Schema: name, Slot: slot.Name, Reason: "duplicate slot name"}
		}
		s.byName[slot.Name] = i
	}

	logging.SchemaDebug("defined schema %s/%d (sign=%s tuple=%v)", s.name, len(s.slots), s.policy, s.tuple)
	return s, nil
}

// MustNew is New for statically known definitions; it panics on a
// definition error.
func MustNew(name string, slots []Slot, opts ...Option) *Schema {
	s, err := New(name, slots, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the predicate name.
func (s *Schema) Name() string { return s.name }

// Arity returns the field count.
func (s *Schema) Arity() int { return len(s.slots) }

// SignPolicy returns the schema's sign restriction.
func (s *Schema) SignPolicy() SignPolicy { return s.policy }

// IsTuple reports whether the schema is an anonymous tuple.
func (s *Schema) IsTuple() bool { return s.tuple }

// Slots returns a copy of the ordered slot list.
func (s *Schema) Slots() []Slot {
	out := make([]Slot, len(s.slots))
	copy(out, s.slots)
	return out
}

// Slot looks a slot up by name.
func (s *Schema) Slot(name string) (Slot, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Slot{}, false
	}
	return s.slots[i], true
}

// SlotIndex returns the position of a named slot, or -1.
func (s *Schema) SlotIndex(name string) int {
	i, ok := s.byName[name]
	if !ok {
		return -1
	}
	return i
}

// symbolName is the predicate name used on the wire; tuples are nameless.
func (s *Schema) symbolName() string {
	if s.tuple {
		return ""
	}
	return s.name
}

// matchesShape reports whether a raw symbol has this schema's name, arity
// and an admissible sign.
func (s *Schema) matchesShape(sym term.Symbol) bool {
	return sym.Name() == s.symbolName() && sym.Arity() == len(s.slots) && s.policy.Allows(sym.Sign)
}

func isPredicateName(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	if !(c >= 'a' && c <= 'z') && c != '_' {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z') && !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') && c != '_' {
			return false
		}
	}
	return true
}
