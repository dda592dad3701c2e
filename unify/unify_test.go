package unify

import (
	"fmt"
	"testing"

	"github.com/google/mangle/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factorm/schema"
	"factorm/term"
)

func testSchemas(t *testing.T) (driver, item *schema.Schema) {
	t.Helper()
	driver = schema.MustNew("driver", []schema.Slot{{Name: "name", Field: term.Constant}})
	item = schema.MustNew("item", []schema.Slot{{Name: "name", Field: term.Constant}})
	return driver, item
}

func mustSymbols(t *testing.T, src string) []term.Symbol {
	t.Helper()
	syms, err := term.ParseSymbols(src)
	require.NoError(t, err)
	return syms
}

func TestUnifySelectivity(t *testing.T) {
	driver, item := testSchemas(t)
	u := New(driver, item)

	facts, err := u.Unify(mustSymbols(t, `driver(/dave). nonsense(1, 2). item(/widget).`))
	require.NoError(t, err)
	require.Len(t, facts, 2, "the nonsense/2 symbol is dropped without error")

	assert.Same(t, driver, facts[0].Schema())
	name, _ := facts[0].Get("name")
	assert.Equal(t, "dave", name)

	assert.Same(t, item, facts[1].Schema())
	name, _ = facts[1].Get("name")
	assert.Equal(t, "widget", name)
}

func TestUnifyPreservesRelativeOrder(t *testing.T) {
	driver, item := testSchemas(t)
	u := New(driver, item)

	facts, err := u.Unify(mustSymbols(t, `item(/a). driver(/x). item(/b). driver(/y).`))
	require.NoError(t, err)
	require.Len(t, facts, 4)

	var drivers, items []string
	for _, f := range facts {
		name, _ := f.Get("name")
		if f.Schema() == driver {
			drivers = append(drivers, name.(string))
		} else {
			items = append(items, name.(string))
		}
	}
	assert.Equal(t, []string{"x", "y"}, drivers)
	assert.Equal(t, []string{"a", "b"}, items)
}

func TestUnifyFirstMatchWins(t *testing.T) {
	byConstant := schema.MustNew("thing", []schema.Slot{{Name: "id", Field: term.Constant}})
	byString := schema.MustNew("thing", []schema.Slot{{Name: "id", Field: term.String}})
	u := New(byConstant, byString)

	facts, err := u.Unify(mustSymbols(t, `thing(/abc). thing("xyz").`))
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Same(t, byConstant, facts[0].Schema(), "first registered schema matches the name constant")
	assert.Same(t, byString, facts[1].Schema(), "string constant falls through to the second schema")
}

func TestUnifySignPolicy(t *testing.T) {
	posOnly := schema.MustNew("assigned", []schema.Slot{{Name: "who", Field: term.Constant}},
		schema.WithSignPolicy(schema.PositiveOnly))
	u := New(posOnly)

	facts, err := u.Unify(mustSymbols(t, `assigned(/dave). -assigned(/morri).`))
	require.NoError(t, err)
	require.Len(t, facts, 1, "negative literal cannot unify against a positive-only schema")
	who, _ := facts[0].Get("who")
	assert.Equal(t, "dave", who)
}

func TestUnifyRaiseOnEmpty(t *testing.T) {
	driver, _ := testSchemas(t)
	base := New(driver)

	t.Run("default returns an empty result", func(t *testing.T) {
		facts, err := base.Unify(mustSymbols(t, `nonsense(1).`))
		require.NoError(t, err)
		assert.Empty(t, facts)
	})

	t.Run("opt-in raises", func(t *testing.T) {
		_, err := base.WithRaiseOnEmpty().Unify(mustSymbols(t, `nonsense(1).`))
		require.Error(t, err)
		var ere *EmptyResultError
		require.ErrorAs(t, err, &ere)
		assert.Equal(t, 1, ere.Symbols)
	})

	t.Run("opt-in is a copy, not a mutation", func(t *testing.T) {
		facts, err := base.Unify(mustSymbols(t, `nonsense(1).`))
		require.NoError(t, err)
		assert.Empty(t, facts)
	})
}

// hardField decodes with a non-recoverable error to prove the unifier does
// not absorb it.
type hardField struct{}

func (hardField) Encode(v interface{}) (ast.BaseTerm, error) { return ast.Number(0), nil }

func (hardField) Decode(t ast.BaseTerm) (interface{}, error) {
	return nil, fmt.Errorf("backing service exploded")
}

func TestUnifyHardErrorPropagates(t *testing.T) {
	broken := schema.MustNew("broken", []schema.Slot{{Name: "x", Field: hardField{}}})
	u := New(broken)

	_, err := u.Unify(mustSymbols(t, `broken(1).`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backing service exploded")
}

// sliceSink collects facts the way a store would, deduplicating by key.
type sliceSink struct {
	facts []*schema.Fact
	seen  map[string]struct{}
}

func (s *sliceSink) AddMany(facts ...*schema.Fact) int {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	added := 0
	for _, f := range facts {
		if _, dup := s.seen[f.Key()]; dup {
			continue
		}
		s.seen[f.Key()] = struct{}{}
		s.facts = append(s.facts, f)
		added++
	}
	return added
}

func TestUnifyInto(t *testing.T) {
	driver, item := testSchemas(t)
	u := New(driver, item)
	sink := &sliceSink{}

	n, err := u.UnifyInto(mustSymbols(t, `driver(/dave). driver(/dave). item(/widget). nonsense(1).`), sink)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "duplicates absorbed by the sink are not counted")
	assert.Len(t, sink.facts, 2)
}
