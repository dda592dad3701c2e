package schema

import (
	"fmt"
	"strings"

	"github.com/google/mangle/ast"

	"factorm/term"
)

// Fact is an immutable instance of a Schema: ordered slot values, a sign and
// a canonical key used for equality, hashing and ordering. Facts are value
// objects with no shared mutable state; they are safe to place in maps and
// to share across stores and goroutines.
type Fact struct {
	schema *Schema
	values []interface{}
	terms  []ast.BaseTerm
	sign   bool
	key    string
}

// Fact constructs a positive fact from slot values keyed by slot name.
// Missing slots fall back to their declared default; a missing slot without
// a default, an unknown name, or a value the slot's field rejects is an
// error. This is the preferred constructor: it survives slot reordering.
func (s *Schema) Fact(byName map[string]interface{}) (*Fact, error) {
	values := make([]interface{}, len(s.slots))
	seen := 0
	for i, slot := range s.slots {
		v, ok := byName[slot.Name]
		if !ok {
			if !slot.HasDefault {
				return nil, fmt.Errorf("schema %s: slot %s: no value and no default", s.name, slot.Name)
			}
			v = slot.Default
		} else {
			seen++
		}
		values[i] = v
	}
	if seen != len(byName) {
		for name := range byName {
			if _, ok := s.byName[name]; !ok {
				return nil, fmt.Errorf("schema %s: unknown slot %s", s.name, name)
			}
		}
	}
	return s.newFact(values, true)
}

// FactAt constructs a positive fact from positional values in slot order.
// Trailing slots with defaults may be omitted. Positional construction is
// brittle under schema refactors; prefer Fact.
func (s *Schema) FactAt(values ...interface{}) (*Fact, error) {
	if len(values) > len(s.slots) {
		return nil, fmt.Errorf("schema %s: %d values for arity %d", s.name, len(values), len(s.slots))
	}
	full := make([]interface{}, len(s.slots))
	copy(full, values)
	for i := len(values); i < len(s.slots); i++ {
		if !s.slots[i].HasDefault {
			return nil, fmt.Errorf("schema %s: slot %s: no value and no default", s.name, s.slots[i].Name)
		}
		full[i] = s.slots[i].Default
	}
	return s.newFact(full, true)
}

// newFact encodes every value through its slot's field, which both validates
// the input and fixes the fact's engine representation.
func (s *Schema) newFact(values []interface{}, sign bool) (*Fact, error) {
	if !s.policy.Allows(sign) {
		return nil, fmt.Errorf("schema %s: sign policy %s rejects this literal", s.name, s.policy)
	}
	terms := make([]ast.BaseTerm, len(values))
	for i, slot := range s.slots {
		t, err := slot.Field.Encode(values[i])
		if err != nil {
			return nil, fmt.Errorf("schema %s: slot %s: %w", s.name, slot.Name, err)
		}
		terms[i] = t
	}
	f := &Fact{schema: s, values: values, terms: terms, sign: sign}
	f.key = f.Symbol().String()
	return f, nil
}

// Schema returns the fact's schema.
func (f *Fact) Schema() *Schema { return f.schema }

// Sign reports whether the fact is a positive literal.
func (f *Fact) Sign() bool { return f.sign }

// Negate returns the same fact with the opposite sign, or an error when the
// schema's sign policy forbids it.
func (f *Fact) Negate() (*Fact, error) {
	if !f.schema.policy.Allows(!f.sign) {
		return nil, fmt.Errorf("schema %s: sign policy %s forbids negation", f.schema.name, f.schema.policy)
	}
	n := &Fact{schema: f.schema, values: f.values, terms: f.terms, sign: !f.sign}
	n.key = n.Symbol().String()
	return n, nil
}

// Get returns a slot value by name.
func (f *Fact) Get(name string) (interface{}, bool) {
	i, ok := f.schema.byName[name]
	if !ok {
		return nil, false
	}
	return f.values[i], true
}

// At returns the value at a slot position.
func (f *Fact) At(i int) interface{} { return f.values[i] }

// Values returns a copy of the ordered slot values.
func (f *Fact) Values() []interface{} {
	out := make([]interface{}, len(f.values))
	copy(out, f.values)
	return out
}

// Key returns the canonical representation used for equality and hashing.
// Two facts are equal iff schema name, arity, sign and all field values are
// equal, which this key captures exactly.
func (f *Fact) Key() string { return f.key }

// Equal reports fact value equality.
func (f *Fact) Equal(other *Fact) bool {
	if f == nil || other == nil {
		return f == other
	}
	return f.key == other.key
}

// Symbol returns the raw engine symbol for the fact, used when a fact
// crosses back into the reasoning engine or is compared against its output.
func (f *Fact) Symbol() term.Symbol {
	return term.Symbol{
		Atom: ast.Atom{
			Predicate: ast.PredicateSym{Symbol: f.schema.symbolName(), Arity: len(f.terms)},
			Args:      f.terms,
		},
		Sign: f.sign,
	}
}

// String renders the fact in Datalog source form. Tuple facts render as
// "(arg, ...)".
func (f *Fact) String() string {
	sym := f.Symbol()
	if !f.schema.tuple {
		return sym.String()
	}
	var sb strings.Builder
	if !f.sign {
		sb.WriteByte('-')
	}
	sb.WriteByte('(')
	for i, t := range f.terms {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(term.FormatTerm(t))
	}
	sb.WriteByte(')')
	return sb.String()
}

// FromSymbol unifies one raw symbol against this schema. A shape mismatch or
// a recoverable field decode failure returns a *term.ConversionError, which
// callers running a unification pass absorb as "does not unify". Any other
// decode error propagates unchanged.
func (s *Schema) FromSymbol(sym term.Symbol) (*Fact, error) {
	if !s.matchesShape(sym) {
		return nil, &term.ConversionError{
			Field:  s.name,
			Value:  sym.String(),
			Reason: fmt.Sprintf("shape %s/%d does not match", sym.Name(), sym.Arity()),
		}
	}
	values := make([]interface{}, len(s.slots))
	terms := make([]ast.BaseTerm, len(s.slots))
	for i, slot := range s.slots {
		v, err := slot.Field.Decode(sym.Atom.Args[i])
		if err != nil {
			if term.IsConversionError(err) {
				return nil, err
			}
			return nil, fmt.Errorf("schema %s: slot %s: %w", s.name, slot.Name, err)
		}
		values[i] = v
		terms[i] = sym.Atom.Args[i]
	}
	f := &Fact{schema: s, values: values, terms: terms, sign: sym.Sign}
	f.key = f.Symbol().String()
	return f, nil
}

// Nested returns a field whose values are facts of the given schema, encoded
// as a structured sub-term. Nested facts are always positive literals.
func Nested(s *Schema) term.Field {
	return nestedField{schema: s}
}

type nestedField struct {
	schema *Schema
}

func (n nestedField) functionSymbol() string {
	return "fn:" + n.schema.name
}

func (n nestedField) Encode(v interface{}) (ast.BaseTerm, error) {
	f, ok := v.(*Fact)
	if !ok {
		return nil, fmt.Errorf("nested field %s: unsupported value type %T", n.schema.name, v)
	}
	if f.schema.name != n.schema.name || len(f.terms) != len(n.schema.slots) {
		return nil, fmt.Errorf("nested field %s: fact has schema %s", n.schema.name, f.schema.name)
	}
	if !f.sign {
		return nil, fmt.Errorf("nested field %s: negative literal cannot nest", n.schema.name)
	}
	return ast.ApplyFn{
		Function: ast.FunctionSym{Symbol: n.functionSymbol(), Arity: len(f.terms)},
		Args:     f.terms,
	}, nil
}

func (n nestedField) Decode(t ast.BaseTerm) (interface{}, error) {
	app, ok := t.(ast.ApplyFn)
	if !ok || app.Function.Symbol != n.functionSymbol() || len(app.Args) != len(n.schema.slots) {
		return nil, &term.ConversionError{
			Field:  "nested field " + n.schema.name,
			Value:  t,
			Reason: "not a matching structured term",
		}
	}
	values := make([]interface{}, len(n.schema.slots))
	terms := make([]ast.BaseTerm, len(n.schema.slots))
	for i, slot := range n.schema.slots {
		v, err := slot.Field.Decode(app.Args[i])
		if err != nil {
			return nil, err
		}
		values[i] = v
		terms[i] = app.Args[i]
	}
	f := &Fact{schema: n.schema, values: values, terms: terms, sign: true}
	f.key = f.Symbol().String()
	return f, nil
}
