package query

import (
	"fmt"

	"factorm/schema"
	"factorm/store"
)

// Query is an immutable, chainable specification over one or more schemas
// drawn from a store. Every builder method returns a new Query and never
// mutates its receiver, so a built query template is safe to rebind and
// execute concurrently from independent callers.
type Query struct {
	store   *store.Store
	schemas []*schema.Schema

	wheres  []Expr
	joins   []Expr
	orderBy []Path
	groupBy []Path
	selects []Path

	posBinds   []interface{}
	namedBinds map[string]interface{}

	err error
}

// From starts a query over the given schemas in a store. Multi-schema
// queries produce rows holding one fact per schema; restrict them with Join.
// Each schema may appear at most once (self-joins are not supported).
func From(st *store.Store, schemas ...*schema.Schema) *Query {
	q := &Query{store: st, schemas: schemas}
	if st == nil {
		q.err = fmt.Errorf("query: nil store")
		return q
	}
	if len(schemas) == 0 {
		q.err = fmt.Errorf("query: no schemas")
		return q
	}
	seen := make(map[*schema.Schema]struct{}, len(schemas))
	for _, s := range schemas {
		if s == nil {
			q.err = fmt.Errorf("query: nil schema")
			return q
		}
		if _, dup := seen[s]; dup {
			q.err = fmt.Errorf("query: schema %s appears twice; self-joins are not supported", s.Name())
			return q
		}
		seen[s] = struct{}{}
	}
	return q
}

// clone copies the query for immutable chaining. Slices are re-sliced full;
// builder methods only append to fresh copies.
func (q *Query) clone() *Query {
	c := *q
	c.wheres = append([]Expr(nil), q.wheres...)
	c.joins = append([]Expr(nil), q.joins...)
	c.orderBy = append([]Path(nil), q.orderBy...)
	c.groupBy = append([]Path(nil), q.groupBy...)
	c.selects = append([]Path(nil), q.selects...)
	c.posBinds = append([]interface{}(nil), q.posBinds...)
	if q.namedBinds != nil {
		c.namedBinds = make(map[string]interface{}, len(q.namedBinds))
		for k, v := range q.namedBinds {
			c.namedBinds[k] = v
		}
	}
	return &c
}

func (q *Query) fail(err error) *Query {
	c := q.clone()
	if c.err == nil {
		c.err = err
	}
	return c
}

// Where narrows the query to rows whose expressions all evaluate true.
// Multiple expressions, and multiple Where calls, are implicitly ANDed.
func (q *Query) Where(exprs ...Expr) *Query {
	c := q.clone()
	for _, e := range exprs {
		if e == nil {
			return q.fail(fmt.Errorf("query: nil where expression"))
		}
		if err := checkExpr(e); err != nil && c.err == nil {
			c.err = err
		}
		c.wheres = append(c.wheres, e)
	}
	return c
}

// Join restricts a multi-schema query to rows satisfying the condition,
// which must reference fields from more than one schema. Join semantics are
// inner only; there is no outer-join support.
func (q *Query) Join(conds ...Expr) *Query {
	c := q.clone()
	for _, e := range conds {
		if e == nil {
			return q.fail(fmt.Errorf("query: nil join condition"))
		}
		if err := checkExpr(e); err != nil && c.err == nil {
			c.err = err
		}
		touched := make(map[*schema.Schema]struct{})
		if schemasOf(e, touched) && len(touched) < 2 {
			if c.err == nil {
				c.err = fmt.Errorf("query: join condition references fewer than two schemas")
			}
		}
		c.joins = append(c.joins, e)
	}
	return c
}

// OrderBy sorts results by the given keys, ascending unless a key is marked
// Desc. The sort is stable across keys. Comparing values with no shared
// total order fails at execution with an ordering error.
func (q *Query) OrderBy(keys ...Path) *Query {
	c := q.clone()
	for _, k := range keys {
		if err := k.check(); err != nil && c.err == nil {
			c.err = err
		}
	}
	c.orderBy = append(c.orderBy, keys...)
	return c
}

// GroupBy partitions results by the given keys; execute with Groups. The
// facts inside each group keep any OrderBy ordering.
func (q *Query) GroupBy(keys ...Path) *Query {
	c := q.clone()
	for _, k := range keys {
		if err := k.check(); err != nil && c.err == nil {
			c.err = err
		}
	}
	c.groupBy = append(c.groupBy, keys...)
	return c
}

// Select projects specific field values instead of whole facts; it applies
// last, after filtering, ordering and grouping.
func (q *Query) Select(paths ...Path) *Query {
	c := q.clone()
	for _, p := range paths {
		if err := p.check(); err != nil && c.err == nil {
			c.err = err
		}
	}
	c.selects = append(c.selects, paths...)
	return c
}

// Bind resolves numbered placeholders positionally: the first value binds
// P(1), the second P(2), and so on. Rebinding starts from the template's
// bindings and returns a new query.
func (q *Query) Bind(values ...interface{}) *Query {
	c := q.clone()
	c.posBinds = append(c.posBinds, values...)
	return c
}

// BindNamed resolves named placeholders by keyword. Later bindings of the
// same name win.
func (q *Query) BindNamed(values map[string]interface{}) *Query {
	c := q.clone()
	if c.namedBinds == nil {
		c.namedBinds = make(map[string]interface{}, len(values))
	}
	for k, v := range values {
		c.namedBinds[k] = v
	}
	return c
}

// Err returns the first construction error recorded while building the
// query. Execution reports the same error.
func (q *Query) Err() error { return q.err }

// Result is one query row: one fact per queried schema, plus projected
// values when the query carries a Select.
type Result struct {
	schemas  []*schema.Schema
	facts    []*schema.Fact
	selected []interface{}
}

// Fact returns the row's single fact; it panics on multi-schema rows, where
// FactOf is required.
func (r Result) Fact() *schema.Fact {
	if len(r.facts) != 1 {
		panic(fmt.Sprintf("query: Fact called on a %d-schema row", len(r.facts)))
	}
	return r.facts[0]
}

// FactOf returns the row's fact for one of the queried schemas, or nil.
func (r Result) FactOf(s *schema.Schema) *schema.Fact {
	for i, qs := range r.schemas {
		if qs == s {
			return r.facts[i]
		}
	}
	return nil
}

// Facts returns the row's facts in query schema order.
func (r Result) Facts() []*schema.Fact {
	out := make([]*schema.Fact, len(r.facts))
	copy(out, r.facts)
	return out
}

// Selected returns the projected values, nil when the query has no Select.
func (r Result) Selected() []interface{} {
	if r.selected == nil {
		return nil
	}
	out := make([]interface{}, len(r.selected))
	copy(out, r.selected)
	return out
}

// Value returns the i-th projected value.
func (r Result) Value(i int) interface{} { return r.selected[i] }

// at reads the row value addressed by a path.
func (r Result) at(p Path) (interface{}, error) {
	for i, qs := range r.schemas {
		if qs == p.schema {
			return r.facts[i].At(p.slot), nil
		}
	}
	return nil, fmt.Errorf("query: path %s does not belong to this query", p)
}

// CardinalityError reports a Unique execution that found a result count
// other than one.
type CardinalityError struct {
	Count int
}

func (e *CardinalityError) Error() string {
	return fmt.Sprintf("expected exactly one result, found %d", e.Count)
}

// Group is one partition of a grouped execution: the key values and the
// results sharing them.
type Group struct {
	Key     []interface{}
	Results []Result
}
