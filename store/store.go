// Package store holds heterogeneous collections of typed facts with
// field-level indexes. A Store is the query target for package query.
//
// The store is synchronous and does no internal locking. Read-sharing a
// fully populated store across goroutines is safe because facts are
// immutable; concurrent mutation, including the one-time deferred
// unification of a lazy store, must be serialized by the caller.
package store

import (
	"fmt"

	"github.com/google/mangle/factstore"
	"github.com/google/uuid"

	"factorm/internal/logging"
	"factorm/schema"
	"factorm/term"
)

// Unifier is the contract a lazy store needs to materialize raw symbols.
// *unify.Unifier satisfies it.
type Unifier interface {
	Unify(symbols []term.Symbol) ([]*schema.Fact, error)
}

type indexKey struct {
	schema *schema.Schema
	slot   int
}

// factSet is one schema's primary set: value-deduplicated, insertion
// ordered.
type factSet struct {
	byKey map[string]*schema.Fact
	order []*schema.Fact
}

// Store is a mutable, indexable fact collection parameterized by the
// schemas it accepts. Facts of unregistered schemas are ignored on insert.
type Store struct {
	id      string
	order   []*schema.Schema
	sets    map[*schema.Schema]*factSet
	indexes map[indexKey]map[string][]*schema.Fact

	pending  []term.Symbol
	unifier  Unifier
	lazyDone bool
	lazyErr  error
	isLazy   bool
}

// Option configures a store at construction time.
type Option func(*Store)

// WithIndex declares a secondary index on a named slot, in addition to any
// slots the schema itself marks Indexed.
func WithIndex(s *schema.Schema, slotName string) Option {
	return func(st *Store) {
		i := s.SlotIndex(slotName)
		if i < 0 {
			logging.Get(logging.CategoryStore).Warn(
				"store %s: index request for unknown slot %s.%s ignored", st.id, s.Name(), slotName)
			return
		}
		st.ensureIndex(s, i)
	}
}

// New builds an eager store accepting the given schemas. Slots marked
// Indexed on a schema get an index automatically.
func New(schemas []*schema.Schema, opts ...Option) *Store {
	st := &Store{
		id:      uuid.NewString(),
		sets:    make(map[*schema.Schema]*factSet),
		indexes: make(map[indexKey]map[string][]*schema.Fact),
	}
	for _, s := range schemas {
		if _, ok := st.sets[s]; ok {
			continue
		}
		st.order = append(st.order, s)
		st.sets[s] = &factSet{byKey: make(map[string]*schema.Fact)}
		for i, slot := range s.Slots() {
			if slot.Indexed {
				st.ensureIndex(s, i)
			}
		}
	}
	for _, opt := range opts {
		opt(st)
	}
	logging.StoreDebug("store %s: created for %d schemas, %d indexes", st.id, len(st.order), len(st.indexes))
	return st
}

// FromRegistry builds an eager store over a registry's schemas.
func FromRegistry(r *schema.Registry, opts ...Option) *Store {
	return New(r.Schemas(), opts...)
}

// FromFacts builds an eager store and populates it. The returned count is
// the number of facts actually inserted.
func FromFacts(schemas []*schema.Schema, facts []*schema.Fact, opts ...Option) (*Store, int) {
	st := New(schemas, opts...)
	return st, st.AddMany(facts...)
}

// FromSymbols builds an eager store by unifying raw symbols immediately.
// Use NewLazy when the store may be discarded before being read.
func FromSymbols(schemas []*schema.Schema, u Unifier, symbols []term.Symbol, opts ...Option) (*Store, error) {
	st := New(schemas, opts...)
	facts, err := u.Unify(symbols)
	if err != nil {
		return nil, fmt.Errorf("store %s: unify: %w", st.id, err)
	}
	st.AddMany(facts...)
	return st, nil
}

// NewLazy builds a store that defers unification of raw symbols until the
// first operation that needs fact contents. Candidate solutions are often
// discarded before being read; a lazy store skips their unification cost
// entirely. The deferred pass runs exactly once; a hard unification error is
// remembered and reported by Err and by query execution.
func NewLazy(schemas []*schema.Schema, u Unifier, symbols []term.Symbol, opts ...Option) *Store {
	st := New(schemas, opts...)
	st.pending = symbols
	st.unifier = u
	st.isLazy = true
	return st
}

// ID returns the store's correlation ID used in logs.
func (st *Store) ID() string { return st.id }

// Registered reports whether the store accepts facts of the given schema.
func (st *Store) Registered(s *schema.Schema) bool {
	_, ok := st.sets[s]
	return ok
}

// Schemas returns the store's registered schemas in registration order.
func (st *Store) Schemas() []*schema.Schema {
	out := make([]*schema.Schema, len(st.order))
	copy(out, st.order)
	return out
}

// Materialize forces a lazy store's deferred unification pass. Calling it
// on an eager or already materialized store is a no-op. This is the
// operation that must be serialized when a lazy store is shared.
func (st *Store) Materialize() error {
	if !st.isLazy || st.lazyDone {
		return st.lazyErr
	}
	st.lazyDone = true
	symbols := st.pending
	st.pending = nil
	facts, err := st.unifier.Unify(symbols)
	if err != nil {
		st.lazyErr = fmt.Errorf("store %s: lazy unification: %w", st.id, err)
		logging.Get(logging.CategoryStore).Error("%v", st.lazyErr)
		return st.lazyErr
	}
	n := st.AddMany(facts...)
	logging.StoreDebug("store %s: lazily materialized %d facts from %d symbols", st.id, n, len(symbols))
	return nil
}

// Err returns the remembered error from a failed lazy materialization.
func (st *Store) Err() error {
	return st.lazyErr
}

// Add inserts one fact. It returns false for a duplicate or for a fact
// whose schema is not registered here; neither case is an error.
func (st *Store) Add(f *schema.Fact) bool {
	st.Materialize()
	return st.add(f)
}

func (st *Store) add(f *schema.Fact) bool {
	if f == nil {
		return false
	}
	set, ok := st.sets[f.Schema()]
	if !ok {
		logging.StoreDebug("store %s: dropping fact of unregistered schema %s", st.id, f.Schema().Name())
		return false
	}
	key := f.Key()
	if _, dup := set.byKey[key]; dup {
		return false
	}
	set.byKey[key] = f
	set.order = append(set.order, f)
	st.indexInsert(f)
	return true
}

// AddMany inserts facts and returns how many were actually inserted.
func (st *Store) AddMany(facts ...*schema.Fact) int {
	st.Materialize()
	added := 0
	for _, f := range facts {
		if st.add(f) {
			added++
		}
	}
	return added
}

// Remove deletes a fact by value equality, updating every index in the same
// operation. It reports whether the fact was present.
func (st *Store) Remove(f *schema.Fact) bool {
	st.Materialize()
	if f == nil {
		return false
	}
	set, ok := st.sets[f.Schema()]
	if !ok {
		return false
	}
	key := f.Key()
	stored, present := set.byKey[key]
	if !present {
		return false
	}
	delete(set.byKey, key)
	for i, existing := range set.order {
		if existing == stored {
			set.order = append(set.order[:i], set.order[i+1:]...)
			break
		}
	}
	st.indexRemove(stored)
	return true
}

// Contains reports membership by value equality.
func (st *Store) Contains(f *schema.Fact) bool {
	st.Materialize()
	if f == nil {
		return false
	}
	set, ok := st.sets[f.Schema()]
	if !ok {
		return false
	}
	_, present := set.byKey[f.Key()]
	return present
}

// Len returns the total fact count across all schemas.
func (st *Store) Len() int {
	st.Materialize()
	n := 0
	for _, set := range st.sets {
		n += len(set.order)
	}
	return n
}

// Facts returns the store's facts of one schema in insertion order.
func (st *Store) Facts(s *schema.Schema) []*schema.Fact {
	st.Materialize()
	set, ok := st.sets[s]
	if !ok {
		return nil
	}
	out := make([]*schema.Fact, len(set.order))
	copy(out, set.order)
	return out
}

// All returns every fact, grouped by schema registration order, each group
// in insertion order.
func (st *Store) All() []*schema.Fact {
	st.Materialize()
	var out []*schema.Fact
	for _, s := range st.order {
		out = append(out, st.sets[s].order...)
	}
	return out
}

// Export pushes the store's positive facts into a Mangle fact store for
// re-entry into the reasoning engine. Negative literals have no ground
// representation there and are skipped; the returned count is the number of
// atoms added.
func (st *Store) Export(fs factstore.FactStore) (int, error) {
	if err := st.Materialize(); err != nil {
		return 0, err
	}
	added := 0
	skipped := 0
	for _, f := range st.All() {
		sym := f.Symbol()
		if !sym.Sign {
			skipped++
			continue
		}
		if fs.Add(sym.Atom) {
			added++
		}
	}
	if skipped > 0 {
		logging.StoreDebug("store %s: export skipped %d negative literals", st.id, skipped)
	}
	return added, nil
}
