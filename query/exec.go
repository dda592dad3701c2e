package query

import (
	"fmt"
	"sort"

	"factorm/internal/logging"
	"factorm/schema"
	"factorm/term"
)

// Planner policy, documented and not adaptive: when a schema's conditions
// contain an indexed equality against a constant (a lone comparison, or a
// conjunct of an AND), the first such equality in declaration order selects
// the index bucket as that schema's scan base; otherwise the schema's facts
// are scanned in full and every candidate row is tested against the whole
// condition set in declaration order. Joins are nested loops in schema
// declaration order, probing the inner schema's index when the join
// condition is an indexed cross-path equality. No cost-based planning across
// multiple indexed clauses is performed.

// All executes the query and returns its rows. Each call re-evaluates
// against the store's current contents, so a bound template can be executed
// again after mutations.
func (q *Query) All() ([]Result, error) {
	rows, err := q.evaluate()
	if err != nil {
		return nil, err
	}
	if q.selects != nil {
		for i := range rows {
			if err := rows[i].project(q.selects); err != nil {
				return nil, err
			}
		}
	}
	return rows, nil
}

// Unique executes the query and returns its single row, failing with a
// *CardinalityError unless exactly one result exists.
func (q *Query) Unique() (Result, error) {
	rows, err := q.All()
	if err != nil {
		return Result{}, err
	}
	if len(rows) != 1 {
		return Result{}, &CardinalityError{Count: len(rows)}
	}
	return rows[0], nil
}

// Count returns the result cardinality. When the query is a pure indexed
// equality filter over one schema the answer is the index bucket size,
// without materializing rows.
func (q *Query) Count() (int, error) {
	if err := q.precheck(); err != nil {
		return 0, err
	}
	if n, ok, err := q.countFromIndex(); err != nil {
		return 0, err
	} else if ok {
		return n, nil
	}
	rows, err := q.evaluate()
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Facts is the single-schema convenience execution: the rows' facts.
func (q *Query) Facts() ([]*schema.Fact, error) {
	if len(q.schemas) != 1 {
		return nil, fmt.Errorf("query: Facts requires a single-schema query, have %d", len(q.schemas))
	}
	rows, err := q.evaluate()
	if err != nil {
		return nil, err
	}
	out := make([]*schema.Fact, len(rows))
	for i, r := range rows {
		out[i] = r.facts[0]
	}
	return out, nil
}

// Groups executes a grouped query, yielding one Group per distinct key in
// order of first appearance. Row order inside each group follows OrderBy.
func (q *Query) Groups() ([]Group, error) {
	if len(q.groupBy) == 0 {
		return nil, fmt.Errorf("query: Groups requires GroupBy")
	}
	rows, err := q.evaluate()
	if err != nil {
		return nil, err
	}

	var order []string
	grouped := make(map[string]*Group)
	for _, row := range rows {
		key := make([]interface{}, len(q.groupBy))
		keyID := ""
		for i, p := range q.groupBy {
			v, err := row.at(p)
			if err != nil {
				return nil, err
			}
			key[i] = v
			keyID += term.ValueKey(v) + "\x00"
		}
		g, ok := grouped[keyID]
		if !ok {
			g = &Group{Key: key}
			grouped[keyID] = g
			order = append(order, keyID)
		}
		if q.selects != nil {
			if err := row.project(q.selects); err != nil {
				return nil, err
			}
		}
		g.Results = append(g.Results, row)
	}

	out := make([]Group, len(order))
	for i, id := range order {
		out[i] = *grouped[id]
	}
	return out, nil
}

func (r *Result) project(paths []Path) error {
	selected := make([]interface{}, len(paths))
	for i, p := range paths {
		v, err := r.at(p)
		if err != nil {
			return err
		}
		selected[i] = v
	}
	r.selected = selected
	return nil
}

// =============================================================================
// EVALUATION
// =============================================================================

func (q *Query) precheck() error {
	if q.err != nil {
		return q.err
	}
	for _, paths := range [][]Path{q.orderBy, q.groupBy, q.selects} {
		for _, p := range paths {
			if err := p.check(); err != nil {
				return err
			}
		}
	}
	if err := q.store.Materialize(); err != nil {
		return err
	}
	return nil
}

// condition is a resolved filter with the query-schema positions it reads.
// Opaque predicates read every position.
type condition struct {
	expr  Expr
	depth int // schema index after which the condition is evaluable
}

func (q *Query) evaluate() ([]Result, error) {
	if err := q.precheck(); err != nil {
		return nil, err
	}

	conds, err := q.resolveConditions()
	if err != nil {
		return nil, err
	}

	var rows []Result
	facts := make([]*schema.Fact, len(q.schemas))
	if err := q.join(0, facts, conds, &rows); err != nil {
		return nil, err
	}
	logging.QueryDebug("store %s: query over %d schemas produced %d rows", q.store.ID(), len(q.schemas), len(rows))

	if len(q.orderBy) > 0 {
		if err := q.sortRows(rows); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// resolveConditions substitutes placeholder bindings into every where and
// join expression and computes each condition's evaluation depth.
func (q *Query) resolveConditions() ([]condition, error) {
	exprs := make([]Expr, 0, len(q.wheres)+len(q.joins))
	exprs = append(exprs, q.wheres...)
	exprs = append(exprs, q.joins...)

	conds := make([]condition, 0, len(exprs))
	for _, e := range exprs {
		resolved, err := q.resolveExpr(e)
		if err != nil {
			return nil, err
		}
		conds = append(conds, condition{expr: resolved, depth: q.exprDepth(resolved)})
	}
	return conds, nil
}

func (q *Query) exprDepth(e Expr) int {
	touched := make(map[*schema.Schema]struct{})
	if !schemasOf(e, touched) {
		return len(q.schemas) - 1
	}
	depth := 0
	for i, s := range q.schemas {
		if _, ok := touched[s]; ok {
			depth = i
		}
	}
	return depth
}

// resolveExpr replaces placeholders with their bound or default values.
func (q *Query) resolveExpr(e Expr) (Expr, error) {
	switch v := e.(type) {
	case compareExpr:
		if ph, ok := v.right.(Placeholder); ok {
			bound, err := q.resolvePlaceholder(ph)
			if err != nil {
				return nil, err
			}
			v.right = bound
		}
		return v, nil
	case andExpr:
		ops := make([]Expr, len(v.operands))
		for i, op := range v.operands {
			r, err := q.resolveExpr(op)
			if err != nil {
				return nil, err
			}
			ops[i] = r
		}
		return andExpr{operands: ops}, nil
	case orExpr:
		ops := make([]Expr, len(v.operands))
		for i, op := range v.operands {
			r, err := q.resolveExpr(op)
			if err != nil {
				return nil, err
			}
			ops[i] = r
		}
		return orExpr{operands: ops}, nil
	case notExpr:
		op, err := q.resolveExpr(v.operand)
		if err != nil {
			return nil, err
		}
		return notExpr{operand: op}, nil
	default:
		return e, nil
	}
}

func (q *Query) resolvePlaceholder(ph Placeholder) (interface{}, error) {
	if ph.name != "" {
		if v, ok := q.namedBinds[ph.name]; ok {
			return v, nil
		}
		if ph.hasDefault {
			return ph.def, nil
		}
		return nil, fmt.Errorf("query: placeholder %s is unbound and has no default", ph)
	}
	if ph.pos >= 1 && ph.pos <= len(q.posBinds) {
		return q.posBinds[ph.pos-1], nil
	}
	if ph.hasDefault {
		return ph.def, nil
	}
	return nil, fmt.Errorf("query: placeholder %s is unbound and has no default", ph)
}

// join binds schemas depth-first in declaration order, evaluating every
// condition at the first depth where all its fields are bound.
func (q *Query) join(depth int, facts []*schema.Fact, conds []condition, rows *[]Result) error {
	if depth == len(q.schemas) {
		row := Result{schemas: q.schemas, facts: append([]*schema.Fact(nil), facts...)}
		*rows = append(*rows, row)
		return nil
	}

	candidates := q.scanBase(depth, facts, conds)
	for _, f := range candidates {
		facts[depth] = f
		row := Result{schemas: q.schemas[:depth+1], facts: facts[:depth+1]}
		ok := true
		for _, c := range conds {
			if c.depth != depth {
				continue
			}
			pass, err := evalExpr(c.expr, row)
			if err != nil {
				return err
			}
			if !pass {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		if err := q.join(depth+1, facts, conds, rows); err != nil {
			return err
		}
	}
	facts[depth] = nil
	return nil
}

// scanBase picks the scan source for one schema: the first applicable
// indexed equality bucket, a cross-path index probe against an already
// bound schema, or the full per-schema fact list.
func (q *Query) scanBase(depth int, bound []*schema.Fact, conds []condition) []*schema.Fact {
	s := q.schemas[depth]

	for _, c := range conds {
		if p, v, ok := firstIndexedEq(c.expr, s, q.store.HasIndex); ok {
			bucket, hit := q.store.IndexBucket(s, p.slot, v)
			if hit {
				logging.QueryDebug("store %s: scan of %s via index on %s", q.store.ID(), s.Name(), p)
				return bucket
			}
		}
	}

	// A join condition of the form inner.slot == outer.slot can probe the
	// inner index with the outer row's value.
	for _, c := range conds {
		if c.depth != depth {
			continue
		}
		if inner, outer, ok := crossEq(c.expr, s); ok && q.store.HasIndex(s, inner.slot) {
			for i, qs := range q.schemas[:depth] {
				if qs == outer.schema {
					bucket, hit := q.store.IndexBucket(s, inner.slot, bound[i].At(outer.slot))
					if hit {
						logging.QueryDebug("store %s: join probe of %s via index on %s", q.store.ID(), s.Name(), inner)
						return bucket
					}
				}
			}
		}
	}

	return q.store.Facts(s)
}

// firstIndexedEq finds the first equality conjunct against a constant on an
// indexed slot of s. A lone comparison counts as its own conjunct.
func firstIndexedEq(e Expr, s *schema.Schema, hasIndex func(*schema.Schema, int) bool) (Path, interface{}, bool) {
	switch v := e.(type) {
	case compareExpr:
		if v.op != opEq || v.left.schema != s || v.left.slot < 0 {
			return Path{}, nil, false
		}
		if _, isPath := v.right.(Path); isPath {
			return Path{}, nil, false
		}
		if !hasIndex(s, v.left.slot) {
			return Path{}, nil, false
		}
		return v.left, v.right, true
	case andExpr:
		for _, op := range v.operands {
			if p, val, ok := firstIndexedEq(op, s, hasIndex); ok {
				return p, val, true
			}
		}
	}
	return Path{}, nil, false
}

// crossEq recognizes an equality between a field of inner and a field of
// some other schema.
func crossEq(e Expr, inner *schema.Schema) (innerPath, outerPath Path, ok bool) {
	cmp, isCmp := e.(compareExpr)
	if !isCmp || cmp.op != opEq {
		return Path{}, Path{}, false
	}
	right, isPath := cmp.right.(Path)
	if !isPath {
		return Path{}, Path{}, false
	}
	switch {
	case cmp.left.schema == inner && right.schema != inner:
		return cmp.left, right, true
	case right.schema == inner && cmp.left.schema != inner:
		return right, cmp.left, true
	default:
		return Path{}, Path{}, false
	}
}

// countFromIndex answers Count directly from a bucket when the whole query
// is one indexed equality over one schema.
func (q *Query) countFromIndex() (int, bool, error) {
	if len(q.schemas) != 1 || len(q.joins) > 0 || len(q.wheres) != 1 || len(q.groupBy) > 0 {
		return 0, false, nil
	}
	resolved, err := q.resolveExpr(q.wheres[0])
	if err != nil {
		return 0, false, err
	}
	cmp, ok := resolved.(compareExpr)
	if !ok {
		return 0, false, nil
	}
	s := q.schemas[0]
	p, v, ok := firstIndexedEq(cmp, s, q.store.HasIndex)
	if !ok {
		return 0, false, nil
	}
	bucket, hit := q.store.IndexBucket(s, p.slot, v)
	if !hit {
		return 0, false, nil
	}
	return len(bucket), true, nil
}

// =============================================================================
// EXPRESSION EVALUATION & ORDERING
// =============================================================================

func evalExpr(e Expr, row Result) (bool, error) {
	switch v := e.(type) {
	case compareExpr:
		return evalCompare(v, row)
	case andExpr:
		for _, op := range v.operands {
			ok, err := evalExpr(op, row)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case orExpr:
		for _, op := range v.operands {
			ok, err := evalExpr(op, row)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case notExpr:
		ok, err := evalExpr(v.operand, row)
		return !ok, err
	case funcExpr:
		return v.fn(row), nil
	default:
		return false, fmt.Errorf("query: unknown expression %T", e)
	}
}

func evalCompare(c compareExpr, row Result) (bool, error) {
	left, err := row.at(c.left)
	if err != nil {
		return false, err
	}
	right := c.right
	if rp, ok := c.right.(Path); ok {
		right, err = row.at(rp)
		if err != nil {
			return false, err
		}
	}

	switch c.op {
	case opEq:
		return term.EqualValues(left, right), nil
	case opNe:
		return !term.EqualValues(left, right), nil
	}

	cmpResult, err := term.CompareValues(left, right)
	if err != nil {
		return false, fmt.Errorf("query: %s %s %v: %w", c.left, c.op, right, err)
	}
	switch c.op {
	case opLt:
		return cmpResult < 0, nil
	case opLe:
		return cmpResult <= 0, nil
	case opGt:
		return cmpResult > 0, nil
	default:
		return cmpResult >= 0, nil
	}
}

func (q *Query) sortRows(rows []Result) error {
	var sortErr error
	sort.SliceStable(rows, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		for _, key := range q.orderBy {
			a, err := rows[i].at(key)
			if err != nil {
				sortErr = err
				return false
			}
			b, err := rows[j].at(key)
			if err != nil {
				sortErr = err
				return false
			}
			c, err := term.CompareValues(a, b)
			if err != nil {
				sortErr = fmt.Errorf("query: order by %s: %w", key, err)
				return false
			}
			if c == 0 {
				continue
			}
			if key.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return sortErr
}
