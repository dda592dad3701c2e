package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factorm/schema"
	"factorm/store"
	"factorm/term"
)

// Shared dispatch fixture: drivers, items, and the time at which an item
// was assigned to a driver.
type fixture struct {
	driver     *schema.Schema
	item       *schema.Schema
	assignment *schema.Schema
	store      *store.Store
}

func newFixture(t *testing.T, opts ...store.Option) *fixture {
	t.Helper()
	fx := &fixture{
		driver: schema.MustNew("driver", []schema.Slot{
			{Name: "name", Field: term.Constant},
		}),
		item: schema.MustNew("item", []schema.Slot{
			{Name: "name", Field: term.Constant},
			{Name: "weight", Field: term.Integer},
		}),
		assignment: schema.MustNew("assignment", []schema.Slot{
			{Name: "item", Field: term.Constant},
			{Name: "driver", Field: term.Constant, Indexed: true},
			{Name: "time", Field: term.Integer},
		}),
	}
	fx.store = store.New([]*schema.Schema{fx.driver, fx.item, fx.assignment}, opts...)

	add := func(s *schema.Schema, values ...interface{}) {
		f, err := s.FactAt(values...)
		require.NoError(t, err)
		require.True(t, fx.store.Add(f))
	}
	add(fx.driver, "dave")
	add(fx.driver, "morri")
	add(fx.item, "item1", int64(5))
	add(fx.item, "item2", int64(12))
	add(fx.item, "item3", int64(3))
	add(fx.assignment, "item2", "dave", int64(2))
	add(fx.assignment, "item1", "dave", int64(1))
	add(fx.assignment, "item3", "morri", int64(1))
	return fx
}

func itemsOf(t *testing.T, results []Result) []string {
	t.Helper()
	var names []string
	for _, r := range results {
		v, ok := r.Fact().Get("item")
		require.True(t, ok)
		names = append(names, v.(string))
	}
	return names
}

func TestWhereOrderBy(t *testing.T) {
	fx := newFixture(t)

	results, err := From(fx.store, fx.assignment).
		Where(Eq(F(fx.assignment, "driver"), "dave")).
		OrderBy(F(fx.assignment, "time")).
		All()
	require.NoError(t, err)
	assert.Equal(t, []string{"item1", "item2"}, itemsOf(t, results))

	t.Run("descending", func(t *testing.T) {
		results, err := From(fx.store, fx.assignment).
			Where(Eq(F(fx.assignment, "driver"), "dave")).
			OrderBy(F(fx.assignment, "time").Desc()).
			All()
		require.NoError(t, err)
		assert.Equal(t, []string{"item2", "item1"}, itemsOf(t, results))
	})

	t.Run("unordered results follow insertion order", func(t *testing.T) {
		results, err := From(fx.store, fx.assignment).All()
		require.NoError(t, err)
		assert.Equal(t, []string{"item2", "item1", "item3"}, itemsOf(t, results))
	})
}

func TestWhereCombinators(t *testing.T) {
	fx := newFixture(t)

	t.Run("multiple Where clauses conjoin", func(t *testing.T) {
		n, err := From(fx.store, fx.assignment).
			Where(Eq(F(fx.assignment, "driver"), "dave")).
			Where(Gt(F(fx.assignment, "time"), int64(1))).
			Count()
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("or and not", func(t *testing.T) {
		n, err := From(fx.store, fx.assignment).
			Where(Or(
				Eq(F(fx.assignment, "driver"), "morri"),
				Not(Lt(F(fx.assignment, "time"), int64(2))),
			)).
			Count()
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("opaque predicate function", func(t *testing.T) {
		n, err := From(fx.store, fx.item).
			Where(Func(func(r Result) bool {
				w, _ := r.Fact().Get("weight")
				return w.(int64)%2 == 1
			})).
			Count()
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestPlaceholders(t *testing.T) {
	fx := newFixture(t)
	template := From(fx.store, fx.assignment).
		Where(Eq(F(fx.assignment, "driver"), P(1))).
		OrderBy(F(fx.assignment, "time"))

	t.Run("positional bind", func(t *testing.T) {
		results, err := template.Bind("dave").All()
		require.NoError(t, err)
		assert.Equal(t, []string{"item1", "item2"}, itemsOf(t, results))
	})

	t.Run("rebinding the same template", func(t *testing.T) {
		results, err := template.Bind("morri").All()
		require.NoError(t, err)
		assert.Equal(t, []string{"item3"}, itemsOf(t, results))

		// Binding produced new queries; the template itself is untouched.
		_, err = template.All()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unbound")
	})

	t.Run("named bind", func(t *testing.T) {
		q := From(fx.store, fx.assignment).
			Where(Eq(F(fx.assignment, "driver"), Named("who")))
		n, err := q.BindNamed(map[string]interface{}{"who": "dave"}).Count()
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		_, err = q.Count()
		assert.Error(t, err, "named placeholders also require a binding")
	})

	t.Run("default behaves exactly like an explicit bind", func(t *testing.T) {
		q := From(fx.store, fx.assignment).
			Where(Eq(F(fx.assignment, "driver"), Named("who").Default("dave")))
		n, err := q.Count()
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = q.BindNamed(map[string]interface{}{"who": "morri"}).Count()
		require.NoError(t, err)
		assert.Equal(t, 1, n, "an explicit binding overrides the default")
	})
}

func TestJoin(t *testing.T) {
	fx := newFixture(t)

	results, err := From(fx.store, fx.driver, fx.assignment).
		Join(Eq(F(fx.driver, "name"), F(fx.assignment, "driver"))).
		Where(Eq(F(fx.driver, "name"), "dave")).
		OrderBy(F(fx.assignment, "time")).
		All()
	require.NoError(t, err)
	require.Len(t, results, 2)

	first := results[0]
	assert.Equal(t, "dave", mustGet(t, first.FactOf(fx.driver), "name"))
	assert.Equal(t, "item1", mustGet(t, first.FactOf(fx.assignment), "item"))
	assert.Len(t, first.Facts(), 2)

	t.Run("three-way join", func(t *testing.T) {
		results, err := From(fx.store, fx.driver, fx.assignment, fx.item).
			Join(
				Eq(F(fx.driver, "name"), F(fx.assignment, "driver")),
				Eq(F(fx.assignment, "item"), F(fx.item, "name")),
			).
			Where(Gt(F(fx.item, "weight"), int64(4))).
			OrderBy(F(fx.item, "weight")).
			All()
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "item1", mustGet(t, results[0].FactOf(fx.item), "name"))
		assert.Equal(t, "item2", mustGet(t, results[1].FactOf(fx.item), "name"))
	})

	t.Run("join condition must span two schemas", func(t *testing.T) {
		_, err := From(fx.store, fx.driver, fx.assignment).
			Join(Eq(F(fx.driver, "name"), "dave")).
			All()
		require.Error(t, err)
	})

	t.Run("duplicate schema is rejected", func(t *testing.T) {
		q := From(fx.store, fx.driver, fx.driver)
		assert.Error(t, q.Err())
	})
}

func mustGet(t *testing.T, f *schema.Fact, slot string) interface{} {
	t.Helper()
	require.NotNil(t, f)
	v, ok := f.Get(slot)
	require.True(t, ok)
	return v
}

func TestSelectAndGroupBy(t *testing.T) {
	fx := newFixture(t)

	t.Run("select projects slot values", func(t *testing.T) {
		results, err := From(fx.store, fx.assignment).
			Where(Eq(F(fx.assignment, "driver"), "dave")).
			OrderBy(F(fx.assignment, "time")).
			Select(F(fx.assignment, "item"), F(fx.assignment, "time")).
			All()
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, []interface{}{"item1", int64(1)}, results[0].Selected())
		assert.Equal(t, "item2", results[1].Value(0))
	})

	t.Run("group by driver", func(t *testing.T) {
		groups, err := From(fx.store, fx.assignment).
			GroupBy(F(fx.assignment, "driver")).
			Groups()
		require.NoError(t, err)
		require.Len(t, groups, 2)
		// Groups appear in first-appearance order of their key.
		assert.Equal(t, []interface{}{"dave"}, groups[0].Key)
		assert.Len(t, groups[0].Results, 2)
		assert.Equal(t, []interface{}{"morri"}, groups[1].Key)
		assert.Len(t, groups[1].Results, 1)
	})
}

func TestUniqueAndCount(t *testing.T) {
	fx := newFixture(t)

	t.Run("unique hit", func(t *testing.T) {
		r, err := From(fx.store, fx.assignment).
			Where(Eq(F(fx.assignment, "item"), "item3")).
			Unique()
		require.NoError(t, err)
		assert.Equal(t, "morri", mustGet(t, r.Fact(), "driver"))
	})

	t.Run("unique misses report cardinality", func(t *testing.T) {
		_, err := From(fx.store, fx.assignment).
			Where(Eq(F(fx.assignment, "item"), "nope")).
			Unique()
		var ce *CardinalityError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, 0, ce.Count)

		_, err = From(fx.store, fx.assignment).
			Where(Eq(F(fx.assignment, "driver"), "dave")).
			Unique()
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, 2, ce.Count)
	})

	t.Run("count matches len of All", func(t *testing.T) {
		q := From(fx.store, fx.assignment).Where(Eq(F(fx.assignment, "driver"), "dave"))
		n, err := q.Count()
		require.NoError(t, err)
		results, err := q.All()
		require.NoError(t, err)
		assert.Equal(t, len(results), n)
	})
}

func TestIndexEquivalence(t *testing.T) {
	// The same query must return identical results whether or not the
	// driver slot is indexed; the index only changes the access path.
	run := func(t *testing.T, fx *fixture) []string {
		results, err := From(fx.store, fx.assignment).
			Where(Eq(F(fx.assignment, "driver"), "dave")).
			OrderBy(F(fx.assignment, "time")).
			All()
		require.NoError(t, err)
		return itemsOf(t, results)
	}

	indexed := newFixture(t)
	plain := &fixture{}
	*plain = *indexed
	plain.assignment = schema.MustNew("assignment", []schema.Slot{
		{Name: "item", Field: term.Constant},
		{Name: "driver", Field: term.Constant},
		{Name: "time", Field: term.Integer},
	})
	plain.store = store.New([]*schema.Schema{plain.assignment})
	for _, f := range indexed.store.Facts(indexed.assignment) {
		pf, err := plain.assignment.FactAt(f.Values()...)
		require.NoError(t, err)
		plain.store.Add(pf)
	}

	assert.Equal(t, run(t, indexed), run(t, plain))
}

func TestFactsConvenience(t *testing.T) {
	fx := newFixture(t)
	facts, err := From(fx.store, fx.driver).Facts()
	require.NoError(t, err)
	assert.Len(t, facts, 2)

	_, err = From(fx.store, fx.driver, fx.assignment).
		Join(Eq(F(fx.driver, "name"), F(fx.assignment, "driver"))).
		Facts()
	assert.Error(t, err, "Facts is single-schema only")
}

func TestOrderingErrors(t *testing.T) {
	// A Combine field admits values of different dynamic types, which a
	// relational comparison cannot order.
	mixed := schema.MustNew("reading", []schema.Slot{
		{Name: "value", Field: term.Combine(term.Integer, term.String)},
	})
	st := store.New([]*schema.Schema{mixed})
	for _, v := range []interface{}{int64(1), "two"} {
		f, err := mixed.FactAt(v)
		require.NoError(t, err)
		st.Add(f)
	}

	_, err := From(st, mixed).OrderBy(F(mixed, "value")).All()
	require.Error(t, err)
	var oe *term.OrderingError
	assert.True(t, errors.As(err, &oe))

	t.Run("equality across types is fine", func(t *testing.T) {
		n, err := From(st, mixed).Where(Eq(F(mixed, "value"), "two")).Count()
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestQueryValidation(t *testing.T) {
	fx := newFixture(t)

	t.Run("unknown slot", func(t *testing.T) {
		_, err := From(fx.store, fx.assignment).
			Where(Eq(F(fx.assignment, "bogus"), 1)).
			All()
		require.Error(t, err)
	})

	t.Run("schema not in query", func(t *testing.T) {
		_, err := From(fx.store, fx.assignment).
			Where(Eq(F(fx.driver, "name"), "dave")).
			All()
		require.Error(t, err)
	})

	t.Run("errors stick to the chain", func(t *testing.T) {
		q := From(fx.store).Where(Eq(F(fx.assignment, "driver"), "dave"))
		require.Error(t, q.Err())
		_, err := q.All()
		assert.Error(t, err)
	})
}

func TestLazyStoreQueries(t *testing.T) {
	assignment := schema.MustNew("assignment", []schema.Slot{
		{Name: "item", Field: term.Constant},
		{Name: "driver", Field: term.Constant, Indexed: true},
		{Name: "time", Field: term.Integer},
	})
	symbols, err := term.ParseSymbols(`
		assignment(/item1, /dave, 1).
		assignment(/item2, /dave, 2).
	`)
	require.NoError(t, err)

	st := store.NewLazy([]*schema.Schema{assignment}, unifierFor(assignment), symbols)
	n, err := From(st, assignment).
		Where(Eq(F(assignment, "driver"), "dave")).
		Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n, "queries trigger lazy materialization")
}

// unifierFor adapts a single schema into the store's Unifier without
// importing the unify package here.
func unifierFor(s *schema.Schema) store.Unifier {
	return schemaUnifier{s}
}

type schemaUnifier struct{ s *schema.Schema }

func (u schemaUnifier) Unify(symbols []term.Symbol) ([]*schema.Fact, error) {
	var out []*schema.Fact
	for _, sym := range symbols {
		f, err := u.s.FromSymbol(sym)
		if err != nil {
			if term.IsConversionError(err) {
				continue
			}
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}
