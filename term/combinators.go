package term

import (
	"fmt"

	"github.com/google/mangle/ast"
)

// Map wraps a base field with a pair of value transforms. toBase converts
// the outer native value into the base field's native value before encoding;
// fromBase converts a decoded base value into the outer native value.
// An error returned by either transform is treated as a recoverable
// conversion failure, so a mapped field that rejects a value simply does not
// unify. This replaces inheritance-style field chains with explicit
// composition.
func Map(base Field, toBase, fromBase func(interface{}) (interface{}, error)) Field {
	return mappedField{base: base, toBase: toBase, fromBase: fromBase}
}

type mappedField struct {
	base     Field
	toBase   func(interface{}) (interface{}, error)
	fromBase func(interface{}) (interface{}, error)
}

func (f mappedField) Encode(v interface{}) (ast.BaseTerm, error) {
	if f.toBase != nil {
		mapped, err := f.toBase(v)
		if err != nil {
			return nil, conversionErr("mapped field", v, "encode transform: %v", err)
		}
		v = mapped
	}
	return f.base.Encode(v)
}

func (f mappedField) Decode(t ast.BaseTerm) (interface{}, error) {
	v, err := f.base.Decode(t)
	if err != nil {
		return nil, err
	}
	if f.fromBase != nil {
		mapped, err := f.fromBase(v)
		if err != nil {
			return nil, conversionErr("mapped field", v, "decode transform: %v", err)
		}
		v = mapped
	}
	return v, nil
}

// Restrict narrows a base field to values accepted by pred. Both encode and
// decode reject values outside the restriction, so a restricted field
// validates construction-time input and filters solver output with the same
// predicate.
func Restrict(base Field, pred func(interface{}) bool) Field {
	return restrictedField{base: base, pred: pred}
}

// Enum narrows a base field to an explicit allow-set.
func Enum(base Field, allowed ...interface{}) Field {
	set := make(map[interface{}]struct{}, len(allowed))
	for _, v := range allowed {
		set[v] = struct{}{}
	}
	return restrictedField{base: base, pred: func(v interface{}) bool {
		_, ok := set[v]
		return ok
	}}
}

type restrictedField struct {
	base Field
	pred func(interface{}) bool
}

func (f restrictedField) Encode(v interface{}) (ast.BaseTerm, error) {
	if !f.pred(v) {
		return nil, conversionErr("restricted field", v, "value outside restriction")
	}
	return f.base.Encode(v)
}

func (f restrictedField) Decode(t ast.BaseTerm) (interface{}, error) {
	v, err := f.base.Decode(t)
	if err != nil {
		return nil, err
	}
	if !f.pred(v) {
		return nil, conversionErr("restricted field", v, "value outside restriction")
	}
	return v, nil
}

// Combine tries a list of alternative fields in order; the first alternative
// whose decode (or encode) succeeds wins. Hard errors from an alternative
// propagate immediately; only recoverable conversion failures move on to the
// next alternative. Combined fields cover polymorphic argument positions at
// the cost of a field-level total order.
func Combine(alternatives ...Field) Field {
	return combinedField{alts: alternatives}
}

type combinedField struct {
	alts []Field
}

func (f combinedField) Encode(v interface{}) (ast.BaseTerm, error) {
	var lastErr error
	for _, alt := range f.alts {
		t, err := alt.Encode(v)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no alternatives configured")
	}
	return nil, fmt.Errorf("combined field: no alternative encodes %v: %w", v, lastErr)
}

func (f combinedField) Decode(t ast.BaseTerm) (interface{}, error) {
	for _, alt := range f.alts {
		v, err := alt.Decode(t)
		if err == nil {
			return v, nil
		}
		if !IsConversionError(err) {
			return nil, err
		}
	}
	return nil, conversionErr("combined field", t, "no alternative matches")
}

// Tuple builds a fixed-size tuple field from element fields. The native
// value is a []interface{} of matching length; the engine representation is
// a structured fn:tuple sub-term.
func Tuple(elements ...Field) Field {
	return tupleField{elements: elements}
}

const tupleFunctionSymbol = "fn:tuple"

type tupleField struct {
	elements []Field
}

func (f tupleField) Encode(v interface{}) (ast.BaseTerm, error) {
	values, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("tuple field: unsupported value type %T", v)
	}
	if len(values) != len(f.elements) {
		return nil, fmt.Errorf("tuple field: got %d values, want %d", len(values), len(f.elements))
	}
	args := make([]ast.BaseTerm, len(values))
	for i, elem := range f.elements {
		t, err := elem.Encode(values[i])
		if err != nil {
			return nil, fmt.Errorf("tuple field: element %d: %w", i, err)
		}
		args[i] = t
	}
	return ast.ApplyFn{
		Function: ast.FunctionSym{Symbol: tupleFunctionSymbol, Arity: len(args)},
		Args:     args,
	}, nil
}

func (f tupleField) Decode(t ast.BaseTerm) (interface{}, error) {
	app, ok := t.(ast.ApplyFn)
	if !ok || app.Function.Symbol != tupleFunctionSymbol || len(app.Args) != len(f.elements) {
		return nil, conversionErr("tuple field", t, "not a %d-tuple", len(f.elements))
	}
	values := make([]interface{}, len(f.elements))
	for i, elem := range f.elements {
		v, err := elem.Decode(app.Args[i])
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}
