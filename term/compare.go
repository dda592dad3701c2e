package term

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Keyer is implemented by values with a canonical string key, such as nested
// facts. Keyed values order and compare by their key.
type Keyer interface {
	Key() string
}

// OrderingError reports a comparison between values with no defined total
// order, such as a string against a number.
type OrderingError struct {
	A interface{}
	B interface{}
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("no total order between %T(%v) and %T(%v)", e.A, e.A, e.B, e.B)
}

// CompareValues imposes a total order within each supported value kind:
// integers, floats, strings, bools, times and durations. Integers and floats
// order together on the number line. Tuples order lexicographically.
// Comparing across any other kind pair returns an *OrderingError.
func CompareValues(a, b interface{}) (int, error) {
	if ak, aok := a.(Keyer); aok {
		bk, bok := b.(Keyer)
		if !bok {
			return 0, &OrderingError{A: a, B: b}
		}
		return strings.Compare(ak.Key(), bk.Key()), nil
	}
	if an, aok := asNumber(a); aok {
		if bn, bok := asNumber(b); bok {
			return compareNumbers(an, bn), nil
		}
		return 0, &OrderingError{A: a, B: b}
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, &OrderingError{A: a, B: b}
		}
		switch {
		case av < bv:
			return -1, nil
		case av > bv:
			return 1, nil
		default:
			return 0, nil
		}
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, &OrderingError{A: a, B: b}
		}
		switch {
		case av == bv:
			return 0, nil
		case !av:
			return -1, nil
		default:
			return 1, nil
		}
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, &OrderingError{A: a, B: b}
		}
		return av.Compare(bv), nil
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok {
			return 0, &OrderingError{A: a, B: b}
		}
		for i := 0; i < len(av) && i < len(bv); i++ {
			c, err := CompareValues(av[i], bv[i])
			if err != nil || c != 0 {
				return c, err
			}
		}
		switch {
		case len(av) < len(bv):
			return -1, nil
		case len(av) > len(bv):
			return 1, nil
		default:
			return 0, nil
		}
	}
	return 0, &OrderingError{A: a, B: b}
}

// EqualValues reports value equality without requiring a total order.
func EqualValues(a, b interface{}) bool {
	if ak, aok := a.(Keyer); aok {
		bk, bok := b.(Keyer)
		return bok && ak.Key() == bk.Key()
	}
	if an, aok := asNumber(a); aok {
		bn, bok := asNumber(b)
		return bok && compareNumbers(an, bn) == 0
	}
	if av, ok := a.([]interface{}); ok {
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !EqualValues(av[i], bv[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}

// ValueKey renders any supported value as a canonical string usable as an
// index bucket key. Values of different kinds never collide.
func ValueKey(v interface{}) string {
	switch t := v.(type) {
	case Keyer:
		return "k:" + t.Key()
	case string:
		return "s:" + t
	case bool:
		return fmt.Sprintf("b:%v", t)
	case time.Time:
		return fmt.Sprintf("t:%d", t.UnixNano())
	case []interface{}:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = ValueKey(e)
		}
		return "u:[" + strings.Join(parts, ",") + "]"
	default:
		// All numeric kinds share one key space so an int64 probe finds
		// facts indexed under int, and vice versa. Integral values keep
		// their exact decimal form; unix-nano magnitudes must not collapse
		// into neighboring float64 representations.
		if n, ok := asNumber(v); ok {
			if n.isInt {
				return fmt.Sprintf("n:%d", n.i)
			}
			if n.f == math.Trunc(n.f) && n.f >= math.MinInt64 && n.f < math.MaxInt64 {
				return fmt.Sprintf("n:%d", int64(n.f))
			}
			return fmt.Sprintf("n:%g", n.f)
		}
		return fmt.Sprintf("x:%v", v)
	}
}

// number holds a numeric value without losing int64 precision. When isInt is
// set the exact value is i; otherwise f holds it.
type number struct {
	i     int64
	f     float64
	isInt bool
}

// asNumber classifies supported numeric values. Integer kinds stay exact;
// time.Duration participates through its nanosecond count.
func asNumber(v interface{}) (number, bool) {
	switch n := v.(type) {
	case int:
		return number{i: int64(n), isInt: true}, true
	case int8:
		return number{i: int64(n), isInt: true}, true
	case int16:
		return number{i: int64(n), isInt: true}, true
	case int32:
		return number{i: int64(n), isInt: true}, true
	case int64:
		return number{i: n, isInt: true}, true
	case uint:
		return number{i: int64(n), isInt: true}, true
	case uint32:
		return number{i: int64(n), isInt: true}, true
	case uint64:
		if n > math.MaxInt64 {
			return number{f: float64(n)}, true
		}
		return number{i: int64(n), isInt: true}, true
	case float32:
		return number{f: float64(n)}, true
	case float64:
		return number{f: n}, true
	case time.Duration:
		return number{i: int64(n), isInt: true}, true
	default:
		return number{}, false
	}
}

func compareNumbers(a, b number) int {
	switch {
	case a.isInt && b.isInt:
		switch {
		case a.i < b.i:
			return -1
		case a.i > b.i:
			return 1
		default:
			return 0
		}
	case !a.isInt && !b.isInt:
		switch {
		case a.f < b.f:
			return -1
		case a.f > b.f:
			return 1
		default:
			return 0
		}
	case a.isInt:
		return compareIntFloat(a.i, b.f)
	default:
		return -compareIntFloat(b.i, a.f)
	}
}

// compareIntFloat compares an exact int64 against a float64 without widening
// the integer, which would lose precision above 2^53.
func compareIntFloat(i int64, f float64) int {
	switch {
	case math.IsNaN(f):
		return 1
	case f >= math.MaxInt64: // float64(MaxInt64) rounds up to 2^63
		return -1
	case f < math.MinInt64:
		return 1
	}
	t := int64(f)
	switch {
	case i < t:
		return -1
	case i > t:
		return 1
	}
	switch frac := f - math.Trunc(f); {
	case frac > 0:
		return -1
	case frac < 0:
		return 1
	default:
		return 0
	}
}
