package term

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/mangle/ast"
)

// Field converts between one native Go value and one engine term.
//
// Encode must succeed for well-typed input; it does not validate engine-side
// syntactic constraints beyond what the term constructors enforce. Decode
// returns a *ConversionError when the term does not represent a value of
// this field, which the unifier treats as a plain unification failure. Any
// other error kind from Decode is a hard error and propagates.
type Field interface {
	Encode(v interface{}) (ast.BaseTerm, error)
	Decode(t ast.BaseTerm) (interface{}, error)
}

// ConversionError reports a recoverable decode (or restricted encode)
// failure: the term or value does not fit the field. During unification it
// means "does not unify" and is absorbed; escaping any other context it is a
// genuine error.
type ConversionError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s: cannot convert %v: %s", e.Field, e.Value, e.Reason)
}

func conversionErr(field string, value interface{}, format string, args ...interface{}) error {
	return &ConversionError{Field: field, Value: value, Reason: fmt.Sprintf(format, args...)}
}

// IsConversionError reports whether err is (or wraps) a ConversionError.
func IsConversionError(err error) bool {
	var ce *ConversionError
	return errors.As(err, &ce)
}

// Base fields for the engine's atomic term kinds.
var (
	// Integer maps Go integer types to an engine number. Decodes to int64.
	Integer Field = integerField{}
	// String maps a Go string to a quoted engine string.
	String Field = stringField{}
	// Constant maps a Go string to a bare identifier (name constant). The
	// Go-side value carries no leading slash; "dave" encodes as /dave.
	Constant Field = constantField{}
	// Float maps a Go float64 to an engine float.
	Float Field = floatField{}
	// Bool maps a Go bool to the /true and /false name constants.
	Bool Field = boolField{}
	// Time maps a time.Time to a Unix-nanosecond engine number.
	Time Field = timeField{}
	// Duration maps a time.Duration to a nanosecond engine number.
	Duration Field = durationField{}
)

type integerField struct{}

func (integerField) Encode(v interface{}) (ast.BaseTerm, error) {
	switch n := v.(type) {
	case int:
		return ast.Number(int64(n)), nil
	case int8:
		return ast.Number(int64(n)), nil
	case int16:
		return ast.Number(int64(n)), nil
	case int32:
		return ast.Number(int64(n)), nil
	case int64:
		return ast.Number(n), nil
	case uint:
		return ast.Number(int64(n)), nil
	case uint32:
		return ast.Number(int64(n)), nil
	case uint64:
		return ast.Number(int64(n)), nil
	default:
		return nil, fmt.Errorf("integer field: unsupported value type %T", v)
	}
}

func (integerField) Decode(t ast.BaseTerm) (interface{}, error) {
	c, ok := t.(ast.Constant)
	if !ok || c.Type != ast.NumberType {
		return nil, conversionErr("integer field", t, "not a number constant")
	}
	return c.NumValue, nil
}

type stringField struct{}

func (stringField) Encode(v interface{}) (ast.BaseTerm, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("string field: unsupported value type %T", v)
	}
	return ast.String(s), nil
}

func (stringField) Decode(t ast.BaseTerm) (interface{}, error) {
	c, ok := t.(ast.Constant)
	if !ok || c.Type != ast.StringType {
		return nil, conversionErr("string field", t, "not a string constant")
	}
	return c.Symbol, nil
}

type constantField struct{}

func (constantField) Encode(v interface{}) (ast.BaseTerm, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("constant field: unsupported value type %T", v)
	}
	c, err := ast.Name("/" + s)
	if err != nil {
		return nil, fmt.Errorf("constant field: %q is not a legal identifier: %w", s, err)
	}
	return c, nil
}

func (constantField) Decode(t ast.BaseTerm) (interface{}, error) {
	c, ok := t.(ast.Constant)
	if !ok || c.Type != ast.NameType {
		return nil, conversionErr("constant field", t, "not a name constant")
	}
	return trimSlash(c.Symbol), nil
}

func trimSlash(s string) string {
	if len(s) > 0 && s[0] == '/' {
		return s[1:]
	}
	return s
}

type floatField struct{}

func (floatField) Encode(v interface{}) (ast.BaseTerm, error) {
	switch f := v.(type) {
	case float32:
		return ast.Float64(float64(f)), nil
	case float64:
		return ast.Float64(f), nil
	default:
		return nil, fmt.Errorf("float field: unsupported value type %T", v)
	}
}

func (floatField) Decode(t ast.BaseTerm) (interface{}, error) {
	c, ok := t.(ast.Constant)
	if !ok || c.Type != ast.Float64Type {
		return nil, conversionErr("float field", t, "not a float constant")
	}
	f, err := c.Float64Value()
	if err != nil {
		return nil, conversionErr("float field", t, err.Error())
	}
	return f, nil
}

type boolField struct{}

func (boolField) Encode(v interface{}) (ast.BaseTerm, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("bool field: unsupported value type %T", v)
	}
	if b {
		return ast.TrueConstant, nil
	}
	return ast.FalseConstant, nil
}

func (boolField) Decode(t ast.BaseTerm) (interface{}, error) {
	c, ok := t.(ast.Constant)
	if !ok || c.Type != ast.NameType {
		return nil, conversionErr("bool field", t, "not a name constant")
	}
	switch c.Symbol {
	case "/true":
		return true, nil
	case "/false":
		return false, nil
	default:
		return nil, conversionErr("bool field", t, "not /true or /false")
	}
}

type timeField struct{}

func (timeField) Encode(v interface{}) (ast.BaseTerm, error) {
	ts, ok := v.(time.Time)
	if !ok {
		return nil, fmt.Errorf("time field: unsupported value type %T", v)
	}
	return ast.Number(ts.UnixNano()), nil
}

func (timeField) Decode(t ast.BaseTerm) (interface{}, error) {
	c, ok := t.(ast.Constant)
	if !ok || c.Type != ast.NumberType {
		return nil, conversionErr("time field", t, "not a number constant")
	}
	return time.Unix(0, c.NumValue).UTC(), nil
}

type durationField struct{}

func (durationField) Encode(v interface{}) (ast.BaseTerm, error) {
	d, ok := v.(time.Duration)
	if !ok {
		return nil, fmt.Errorf("duration field: unsupported value type %T", v)
	}
	return ast.Number(int64(d)), nil
}

func (durationField) Decode(t ast.BaseTerm) (interface{}, error) {
	c, ok := t.(ast.Constant)
	if !ok || c.Type != ast.NumberType {
		return nil, conversionErr("duration field", t, "not a number constant")
	}
	return time.Duration(c.NumValue), nil
}
