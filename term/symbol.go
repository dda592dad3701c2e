// Package term implements the conversion layer between native Go values and
// the atomic term representation of the Mangle reasoning engine. A Field is a
// bidirectional codec for one argument position; a Symbol is one raw ground
// atom (with sign) as produced or consumed by the engine.
package term

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/mangle/ast"
	"github.com/google/mangle/parse"
)

// Symbol is a raw engine symbol: a ground atom plus a sign. Sign true is a
// positive literal. Symbols are value objects and safe to copy.
type Symbol struct {
	Atom ast.Atom
	Sign bool
}

// NewSymbol builds a positive symbol from a predicate name and argument terms.
func NewSymbol(predicate string, args ...ast.BaseTerm) Symbol {
	return Symbol{Atom: ast.NewAtom(predicate, args...), Sign: true}
}

// Name returns the predicate name of the symbol.
func (s Symbol) Name() string { return s.Atom.Predicate.Symbol }

// Arity returns the number of arguments.
func (s Symbol) Arity() int { return len(s.Atom.Args) }

// Negate returns the same symbol with the sign flipped.
func (s Symbol) Negate() Symbol {
	return Symbol{Atom: s.Atom, Sign: !s.Sign}
}

// String renders the symbol in Datalog source form. Negative literals carry
// a leading minus, matching the solver's classical-negation syntax.
func (s Symbol) String() string {
	var sb strings.Builder
	if !s.Sign {
		sb.WriteByte('-')
	}
	sb.WriteString(s.Atom.Predicate.Symbol)
	if len(s.Atom.Args) > 0 {
		sb.WriteByte('(')
		for i, arg := range s.Atom.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(FormatTerm(arg))
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

// FormatTerm renders a single base term in Datalog source form.
func FormatTerm(t ast.BaseTerm) string {
	switch v := t.(type) {
	case ast.Constant:
		switch v.Type {
		case ast.NameType:
			return v.Symbol
		case ast.StringType:
			return fmt.Sprintf("%q", v.Symbol)
		case ast.NumberType:
			return fmt.Sprintf("%d", v.NumValue)
		case ast.Float64Type:
			return fmt.Sprintf("%g", math.Float64frombits(uint64(v.NumValue)))
		default:
			return v.String()
		}
	case ast.ApplyFn:
		var sb strings.Builder
		sb.WriteString(v.Function.Symbol)
		sb.WriteByte('(')
		for i, arg := range v.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(FormatTerm(arg))
		}
		sb.WriteByte(')')
		return sb.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

// ParseSymbols parses Datalog source text into symbols. Each statement must
// be a ground fact ("pred(arg, ...)."). A leading minus marks a negative
// literal. Rules and statements with variables are rejected.
func ParseSymbols(src string) ([]Symbol, error) {
	var out []Symbol
	for _, stmt := range splitStatements(src) {
		sign := true
		text := stmt
		if strings.HasPrefix(text, "-") {
			sign = false
			text = strings.TrimSpace(text[1:])
		}
		unit, err := parse.Unit(strings.NewReader(text + "."))
		if err != nil {
			return nil, fmt.Errorf("failed to parse symbol %q: %w", stmt, err)
		}
		for _, clause := range unit.Clauses {
			if len(clause.Premises) > 0 {
				return nil, fmt.Errorf("statement %q is a rule, not a ground fact", stmt)
			}
			if !isGround(clause.Head) {
				return nil, fmt.Errorf("statement %q contains variables", stmt)
			}
			out = append(out, Symbol{Atom: clause.Head, Sign: sign})
		}
	}
	return out, nil
}

func isGround(atom ast.Atom) bool {
	for _, arg := range atom.Args {
		if !termGround(arg) {
			return false
		}
	}
	return true
}

func termGround(t ast.BaseTerm) bool {
	switch v := t.(type) {
	case ast.Constant:
		return true
	case ast.ApplyFn:
		for _, arg := range v.Args {
			if !termGround(arg) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// splitStatements breaks source text at statement-terminating periods. A
// period only terminates when followed by whitespace or the end of input, so
// float literals stay intact; periods inside string literals never split.
func splitStatements(src string) []string {
	var stmts []string
	var sb strings.Builder
	runes := []rune(src)
	inString := false
	escaped := false
	for i, r := range runes {
		switch {
		case escaped:
			escaped = false
			sb.WriteRune(r)
		case r == '\\' && inString:
			escaped = true
			sb.WriteRune(r)
		case r == '"':
			inString = !inString
			sb.WriteRune(r)
		case r == '.' && !inString && (i+1 == len(runes) || isSpace(runes[i+1])):
			if s := strings.TrimSpace(sb.String()); s != "" {
				stmts = append(stmts, s)
			}
			sb.Reset()
		default:
			sb.WriteRune(r)
		}
	}
	if s := strings.TrimSpace(sb.String()); s != "" {
		stmts = append(stmts, s)
	}
	return stmts
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
