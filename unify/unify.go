// Package unify converts flat sequences of raw engine symbols into typed
// facts. Symbols that match no schema are dropped silently: solver output
// routinely contains derived predicates the application never declared, and
// those are not errors.
package unify

import (
	"fmt"

	"factorm/internal/logging"
	"factorm/schema"
	"factorm/term"
)

// Unifier tries candidate schemas in priority order against each raw
// symbol. The first schema whose name, arity and sign policy match the
// symbol's shape and whose field decodes all succeed produces the fact;
// later schemas are not consulted for that symbol. Unifiers are immutable
// and safe to share.
type Unifier struct {
	schemas      []*schema.Schema
	raiseOnEmpty bool
}

// New builds a unifier over schemas in priority order. Overlapping shapes
// are flagged through the unify log category; the earlier schema wins, which
// matches registry semantics.
func New(schemas ...*schema.Schema) *Unifier {
	u := &Unifier{schemas: make([]*schema.Schema, len(schemas))}
	copy(u.schemas, schemas)
	lintOverlap(u.schemas)
	return u
}

// FromRegistry builds a unifier over a registry's schemas in registration
// order. The registry has already linted for overlap.
func FromRegistry(r *schema.Registry) *Unifier {
	return &Unifier{schemas: r.Schemas()}
}

// WithRaiseOnEmpty returns a copy that reports *EmptyResultError when a
// unification pass produces zero facts. Useful for catching encoding
// mistakes where every symbol silently fails to match.
func (u *Unifier) WithRaiseOnEmpty() *Unifier {
	return &Unifier{schemas: u.schemas, raiseOnEmpty: true}
}

// Schemas returns the candidate schemas in priority order.
func (u *Unifier) Schemas() []*schema.Schema {
	out := make([]*schema.Schema, len(u.schemas))
	copy(out, u.schemas)
	return out
}

// EmptyResultError signals that a unification pass matched nothing, opted
// into via WithRaiseOnEmpty.
type EmptyResultError struct {
	Symbols int
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("unification produced no facts from %d symbols", e.Symbols)
}

// Unify converts raw symbols into facts, preserving the input order of the
// symbols that matched. Recoverable decode failures mean "try the next
// schema"; any other error aborts the pass.
func (u *Unifier) Unify(symbols []term.Symbol) ([]*schema.Fact, error) {
	facts := make([]*schema.Fact, 0, len(symbols))
	dropped := 0
	for _, sym := range symbols {
		fact, err := u.unifyOne(sym)
		if err != nil {
			return nil, err
		}
		if fact == nil {
			dropped++
			continue
		}
		facts = append(facts, fact)
	}
	logging.UnifyDebug("unified %d/%d symbols (%d dropped) against %d schemas",
		len(facts), len(symbols), dropped, len(u.schemas))
	if len(facts) == 0 && u.raiseOnEmpty {
		return nil, &EmptyResultError{Symbols: len(symbols)}
	}
	return facts, nil
}

// FactSink receives unified facts. *store.Store satisfies it.
type FactSink interface {
	AddMany(facts ...*schema.Fact) int
}

// UnifyInto unifies symbols and adds the resulting facts to a sink in one
// pass, returning the number actually added. Duplicates absorbed by the sink
// reduce the count; the sink maintains its own indexes as facts land.
func (u *Unifier) UnifyInto(symbols []term.Symbol, sink FactSink) (int, error) {
	facts, err := u.Unify(symbols)
	if err != nil {
		return 0, err
	}
	return sink.AddMany(facts...), nil
}

// unifyOne returns (nil, nil) when the symbol matches no schema.
func (u *Unifier) unifyOne(sym term.Symbol) (*schema.Fact, error) {
	for _, s := range u.schemas {
		fact, err := s.FromSymbol(sym)
		if err == nil {
			return fact, nil
		}
		if term.IsConversionError(err) {
			continue
		}
		return nil, fmt.Errorf("unify %s: %w", sym.String(), err)
	}
	return nil, nil
}

func lintOverlap(schemas []*schema.Schema) {
	for i, a := range schemas {
		for _, b := range schemas[i+1:] {
			if a.Name() == b.Name() && a.Arity() == b.Arity() &&
				a.IsTuple() == b.IsTuple() && signsIntersect(a, b) {
				logging.Get(logging.CategoryUnify).Warn(
					"schemas %s/%d registered twice with overlapping shapes; the earlier one wins",
					a.Name(), a.Arity())
			}
		}
	}
}

func signsIntersect(a, b *schema.Schema) bool {
	return !(a.SignPolicy() == schema.PositiveOnly && b.SignPolicy() == schema.NegativeOnly) &&
		!(a.SignPolicy() == schema.NegativeOnly && b.SignPolicy() == schema.PositiveOnly)
}
