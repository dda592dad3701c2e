// Package query builds and executes parameterized relational-style queries
// over fact stores: filtering, joins, grouping, ordering and projection.
// Queries are immutable and cheap; build one template, bind placeholders per
// execution, and run it against any compatible store.
package query

import (
	"fmt"

	"factorm/schema"
)

// Path names one field position of one schema inside a query. Paths appear
// in comparisons, ordering keys, grouping keys and projections.
type Path struct {
	schema *schema.Schema
	slot   int
	name   string
	desc   bool
}

// F builds a path from a schema and slot name. An unknown slot yields an
// invalid path that reports a descriptive error when the query executes.
func F(s *schema.Schema, slotName string) Path {
	return Path{schema: s, slot: s.SlotIndex(slotName), name: slotName}
}

// Desc marks the path as a descending ordering key.
func (p Path) Desc() Path {
	p.desc = true
	return p
}

func (p Path) check() error {
	if p.schema == nil {
		return fmt.Errorf("query: empty field path")
	}
	if p.slot < 0 {
		return fmt.Errorf("query: schema %s has no slot %q", p.schema.Name(), p.name)
	}
	return nil
}

func (p Path) String() string {
	if p.schema == nil {
		return "<empty path>"
	}
	return p.schema.Name() + "." + p.name
}

// Placeholder is a deferred query parameter, resolved when the query is
// bound. The numbered family binds positionally through Bind; the named
// family binds by keyword through BindNamed. Either may carry a default.
type Placeholder struct {
	name       string
	pos        int
	def        interface{}
	hasDefault bool
}

// P returns the numbered placeholder bound to Bind's n-th argument,
// starting at 1.
func P(n int) Placeholder {
	return Placeholder{pos: n}
}

// Named returns a placeholder bound by name through BindNamed.
func Named(name string) Placeholder {
	return Placeholder{name: name}
}

// Default returns a copy of the placeholder carrying a default, used when
// the query executes without an explicit binding for it.
func (p Placeholder) Default(v interface{}) Placeholder {
	p.def = v
	p.hasDefault = true
	return p
}

func (p Placeholder) String() string {
	if p.name != "" {
		return "$" + p.name
	}
	return fmt.Sprintf("$%d", p.pos)
}

// Expr is a node of a structured predicate tree. Structured expressions are
// analyzable: the planner can route an indexed equality to its index and
// report which schemas a condition touches. An opaque Func predicate is the
// escape hatch and always forces a scan.
type Expr interface {
	exprNode()
}

type compareOp int

const (
	opEq compareOp = iota
	opNe
	opLt
	opLe
	opGt
	opGe
)

func (op compareOp) String() string {
	switch op {
	case opEq:
		return "=="
	case opNe:
		return "!="
	case opLt:
		return "<"
	case opLe:
		return "<="
	case opGt:
		return ">"
	default:
		return ">="
	}
}

// compareExpr compares a field path against a literal, another field path
// (the join-condition form) or a placeholder.
type compareExpr struct {
	op    compareOp
	left  Path
	right interface{}
}

type andExpr struct{ operands []Expr }

type orExpr struct{ operands []Expr }

type notExpr struct{ operand Expr }

// funcExpr wraps an opaque predicate over the full result row.
type funcExpr struct {
	fn func(Result) bool
}

func (compareExpr) exprNode() {}
func (andExpr) exprNode()     {}
func (orExpr) exprNode()      {}
func (notExpr) exprNode()     {}
func (funcExpr) exprNode()    {}

// Eq compares a field for equality against a literal, Path or Placeholder.
func Eq(p Path, v interface{}) Expr { return compareExpr{op: opEq, left: p, right: v} }

// Ne compares a field for inequality.
func Ne(p Path, v interface{}) Expr { return compareExpr{op: opNe, left: p, right: v} }

// Lt orders a field strictly below the operand.
func Lt(p Path, v interface{}) Expr { return compareExpr{op: opLt, left: p, right: v} }

// Le orders a field at or below the operand.
func Le(p Path, v interface{}) Expr { return compareExpr{op: opLe, left: p, right: v} }

// Gt orders a field strictly above the operand.
func Gt(p Path, v interface{}) Expr { return compareExpr{op: opGt, left: p, right: v} }

// Ge orders a field at or above the operand.
func Ge(p Path, v interface{}) Expr { return compareExpr{op: opGe, left: p, right: v} }

// And combines expressions conjunctively.
func And(exprs ...Expr) Expr { return andExpr{operands: exprs} }

// Or combines expressions disjunctively.
func Or(exprs ...Expr) Expr { return orExpr{operands: exprs} }

// Not negates an expression.
func Not(e Expr) Expr { return notExpr{operand: e} }

// Func wraps an opaque predicate. The planner cannot analyze it, so it is
// always evaluated against fully formed rows in a scan.
func Func(fn func(Result) bool) Expr { return funcExpr{fn: fn} }

// schemasOf collects the schemas an expression touches, nil for opaque
// predicates (meaning "all of them").
func schemasOf(e Expr, into map[*schema.Schema]struct{}) bool {
	switch v := e.(type) {
	case compareExpr:
		if v.left.schema != nil {
			into[v.left.schema] = struct{}{}
		}
		if rp, ok := v.right.(Path); ok && rp.schema != nil {
			into[rp.schema] = struct{}{}
		}
		return true
	case andExpr:
		for _, op := range v.operands {
			if !schemasOf(op, into) {
				return false
			}
		}
		return true
	case orExpr:
		for _, op := range v.operands {
			if !schemasOf(op, into) {
				return false
			}
		}
		return true
	case notExpr:
		return schemasOf(v.operand, into)
	default:
		return false
	}
}

// checkExpr validates every path in an expression tree.
func checkExpr(e Expr) error {
	switch v := e.(type) {
	case compareExpr:
		if err := v.left.check(); err != nil {
			return err
		}
		if rp, ok := v.right.(Path); ok {
			return rp.check()
		}
		return nil
	case andExpr:
		for _, op := range v.operands {
			if err := checkExpr(op); err != nil {
				return err
			}
		}
		return nil
	case orExpr:
		for _, op := range v.operands {
			if err := checkExpr(op); err != nil {
				return err
			}
		}
		return nil
	case notExpr:
		return checkExpr(v.operand)
	case funcExpr:
		if v.fn == nil {
			return fmt.Errorf("query: nil predicate function")
		}
		return nil
	default:
		return fmt.Errorf("query: unknown expression %T", e)
	}
}
