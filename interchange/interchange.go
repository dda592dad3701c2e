// Package interchange moves fact collections between processes without
// involving the reasoning engine: a JSON encoding for machine transport and
// a Datalog-source text form for humans and program files. Both sides of a
// transfer agree on a schema registry; decoding is strict, because unlike
// solver output an interchange payload has no legitimate reason to carry
// facts nobody declared.
package interchange

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/mangle/ast"

	"factorm/schema"
	"factorm/term"
	"factorm/unify"
)

// Codec encodes and decodes fact collections for one schema registry.
type Codec struct {
	registry *schema.Registry
	unifier  *unify.Unifier
}

// NewCodec builds a codec over a registry.
func NewCodec(r *schema.Registry) *Codec {
	return &Codec{registry: r, unifier: unify.FromRegistry(r)}
}

// wireFact is one fact on the wire. Sign is omitted for positive literals.
type wireFact struct {
	Predicate string     `json:"predicate"`
	Negative  bool       `json:"negative,omitempty"`
	Args      []wireTerm `json:"args,omitempty"`
}

// wireTerm is a tagged union: exactly one member is set.
type wireTerm struct {
	Number *int64    `json:"number,omitempty"`
	Str    *string   `json:"string,omitempty"`
	Name   *string   `json:"name,omitempty"`
	Float  *float64  `json:"float,omitempty"`
	Apply  *wireFunc `json:"apply,omitempty"`
}

type wireFunc struct {
	Fn   string     `json:"fn"`
	Args []wireTerm `json:"args,omitempty"`
}

// Encode renders facts as a JSON array.
func (c *Codec) Encode(facts []*schema.Fact) ([]byte, error) {
	wire := make([]wireFact, len(facts))
	for i, f := range facts {
		sym := f.Symbol()
		wf := wireFact{Predicate: sym.Name(), Negative: !sym.Sign}
		for _, arg := range sym.Atom.Args {
			wt, err := termToWire(arg)
			if err != nil {
				return nil, fmt.Errorf("interchange: fact %s: %w", f, err)
			}
			wf.Args = append(wf.Args, wt)
		}
		wire[i] = wf
	}
	return json.Marshal(wire)
}

// Decode parses a JSON payload into facts of the registry's schemas. A fact
// matching no registered schema is an error.
func (c *Codec) Decode(data []byte) ([]*schema.Fact, error) {
	var wire []wireFact
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("interchange: %w", err)
	}
	symbols := make([]term.Symbol, len(wire))
	for i, wf := range wire {
		args := make([]ast.BaseTerm, len(wf.Args))
		for j, wt := range wf.Args {
			t, err := wireToTerm(wt)
			if err != nil {
				return nil, fmt.Errorf("interchange: fact %d (%s): %w", i, wf.Predicate, err)
			}
			args[j] = t
		}
		symbols[i] = term.Symbol{
			Atom: ast.Atom{
				Predicate: ast.PredicateSym{Symbol: wf.Predicate, Arity: len(args)},
				Args:      args,
			},
			Sign: !wf.Negative,
		}
	}
	return c.symbolsToFacts(symbols)
}

// FormatText renders facts as Datalog-source statements, one per line.
// Tuple-schema facts have no predicate name and no Datalog-source form, so
// they are an error here; use the JSON codec for them.
func (c *Codec) FormatText(facts []*schema.Fact) (string, error) {
	var sb strings.Builder
	for _, f := range facts {
		if f.Schema().IsTuple() {
			return "", fmt.Errorf("interchange: tuple fact %s has no text form", f)
		}
		sb.WriteString(f.Symbol().String())
		sb.WriteString(".\n")
	}
	return sb.String(), nil
}

// ParseText parses Datalog-source statements into facts of the registry's
// schemas, strictly.
func (c *Codec) ParseText(src string) ([]*schema.Fact, error) {
	symbols, err := term.ParseSymbols(src)
	if err != nil {
		return nil, fmt.Errorf("interchange: %w", err)
	}
	return c.symbolsToFacts(symbols)
}

// symbolsToFacts unifies strictly: every symbol must match some schema.
func (c *Codec) symbolsToFacts(symbols []term.Symbol) ([]*schema.Fact, error) {
	facts := make([]*schema.Fact, 0, len(symbols))
	for _, sym := range symbols {
		one, err := c.unifier.Unify([]term.Symbol{sym})
		if err != nil {
			return nil, fmt.Errorf("interchange: %w", err)
		}
		if len(one) == 0 {
			return nil, fmt.Errorf("interchange: symbol %s matches no registered schema", sym.String())
		}
		facts = append(facts, one[0])
	}
	return facts, nil
}

func termToWire(t ast.BaseTerm) (wireTerm, error) {
	switch v := t.(type) {
	case ast.Constant:
		switch v.Type {
		case ast.NumberType:
			n := v.NumValue
			return wireTerm{Number: &n}, nil
		case ast.StringType:
			s := v.Symbol
			return wireTerm{Str: &s}, nil
		case ast.NameType:
			s := v.Symbol
			return wireTerm{Name: &s}, nil
		case ast.Float64Type:
			f, err := v.Float64Value()
			if err != nil {
				return wireTerm{}, err
			}
			return wireTerm{Float: &f}, nil
		default:
			return wireTerm{}, fmt.Errorf("unsupported constant type %v", v.Type)
		}
	case ast.ApplyFn:
		fn := wireFunc{Fn: v.Function.Symbol}
		for _, arg := range v.Args {
			wt, err := termToWire(arg)
			if err != nil {
				return wireTerm{}, err
			}
			fn.Args = append(fn.Args, wt)
		}
		return wireTerm{Apply: &fn}, nil
	default:
		return wireTerm{}, fmt.Errorf("unsupported term %T", t)
	}
}

func wireToTerm(wt wireTerm) (ast.BaseTerm, error) {
	set := 0
	if wt.Number != nil {
		set++
	}
	if wt.Str != nil {
		set++
	}
	if wt.Name != nil {
		set++
	}
	if wt.Float != nil {
		set++
	}
	if wt.Apply != nil {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("argument must set exactly one of number/string/name/float/apply, has %d", set)
	}

	switch {
	case wt.Number != nil:
		return ast.Number(*wt.Number), nil
	case wt.Str != nil:
		return ast.String(*wt.Str), nil
	case wt.Name != nil:
		c, err := ast.Name(*wt.Name)
		if err != nil {
			return nil, fmt.Errorf("bad name constant %q: %w", *wt.Name, err)
		}
		return c, nil
	case wt.Float != nil:
		return ast.Float64(*wt.Float), nil
	default:
		args := make([]ast.BaseTerm, len(wt.Apply.Args))
		for i, sub := range wt.Apply.Args {
			t, err := wireToTerm(sub)
			if err != nil {
				return nil, err
			}
			args[i] = t
		}
		return ast.ApplyFn{
			Function: ast.FunctionSym{Symbol: wt.Apply.Fn, Arity: len(args)},
			Args:     args,
		}, nil
	}
}
