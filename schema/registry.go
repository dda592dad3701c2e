package schema

import (
	"fmt"

	"factorm/internal/logging"
)

// Registry is an ordered set of schemas used for unification and
// interchange. Registration order is significant: during unification the
// first matching schema wins. Registering two schemas whose shapes overlap
// (same wire name and arity with intersecting sign policies) is almost
// always a programming mistake, so the registry flags it through the schema
// log category rather than silently preserving the ambiguity.
type Registry struct {
	schemas []*Schema
}

// NewRegistry builds a registry from schemas in priority order.
func NewRegistry(schemas ...*Schema) (*Registry, error) {
	r := &Registry{}
	for _, s := range schemas {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustRegistry is NewRegistry for statically known schema sets.
func MustRegistry(schemas ...*Schema) *Registry {
	r, err := NewRegistry(schemas...)
	if err != nil {
		panic(err)
	}
	return r
}

// Register appends a schema. A nil schema is an error; an overlapping shape
// is logged as a warning and still registered, keeping first-registration
// priority.
func (r *Registry) Register(s *Schema) error {
	if s == nil {
		return fmt.Errorf("registry: nil schema")
	}
	for _, existing := range r.schemas {
		if overlaps(existing, s) {
			logging.SchemaWarn(
				"registry: schema %s/%d overlaps earlier registration %s/%d; the earlier one wins during unification",
				s.name, s.Arity(), existing.name, existing.Arity())
		}
	}
	r.schemas = append(r.schemas, s)
	return nil
}

// Schemas returns the registered schemas in priority order.
func (r *Registry) Schemas() []*Schema {
	out := make([]*Schema, len(r.schemas))
	copy(out, r.schemas)
	return out
}

// Lookup finds the first schema with the given predicate name.
func (r *Registry) Lookup(name string) (*Schema, bool) {
	for _, s := range r.schemas {
		if s.name == name {
			return s, true
		}
	}
	return nil, false
}

// Overlapping returns every pair of registered schemas with ambiguous
// shapes, in registration order, for callers that want to treat the lint as
// an error.
func (r *Registry) Overlapping() [][2]*Schema {
	var out [][2]*Schema
	for i, a := range r.schemas {
		for _, b := range r.schemas[i+1:] {
			if overlaps(a, b) {
				out = append(out, [2]*Schema{a, b})
			}
		}
	}
	return out
}

func overlaps(a, b *Schema) bool {
	if a.symbolName() != b.symbolName() || a.Arity() != b.Arity() {
		return false
	}
	// Sign policies intersect unless one is positive-only and the other
	// negative-only.
	return !(a.policy == PositiveOnly && b.policy == NegativeOnly) &&
		!(a.policy == NegativeOnly && b.policy == PositiveOnly)
}
