package interchange

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factorm/schema"
	"factorm/term"
)

func codecFixture(t *testing.T) (*Codec, *schema.Schema) {
	t.Helper()
	assignment := schema.MustNew("assignment", []schema.Slot{
		{Name: "item", Field: term.Constant},
		{Name: "driver", Field: term.Constant},
		{Name: "time", Field: term.Integer},
	})
	r, err := schema.NewRegistry(assignment)
	require.NoError(t, err)
	return NewCodec(r), assignment
}

func TestJSONRoundTrip(t *testing.T) {
	codec, assignment := codecFixture(t)
	f1, err := assignment.FactAt("item1", "dave", int64(1))
	require.NoError(t, err)
	f2, err := f1.Negate()
	require.NoError(t, err)
	neg2, err := assignment.FactAt("item2", "dave", int64(2))
	require.NoError(t, err)

	data, err := codec.Encode([]*schema.Fact{f1, neg2, f2})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"predicate":"assignment"`)
	assert.Contains(t, string(data), `"negative":true`)

	decoded, err := codec.Decode(data)
	require.NoError(t, err)
	require.Len(t, decoded, 3)
	if diff := cmp.Diff(f1.Values(), decoded[0].Values()); diff != "" {
		t.Errorf("decoded values mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, decoded[0].Equal(f1))
	assert.True(t, decoded[1].Equal(neg2))
	assert.True(t, decoded[2].Equal(f2), "sign survives the round trip")
	assert.False(t, decoded[2].Sign())
}

func TestDecodeIsStrict(t *testing.T) {
	codec, _ := codecFixture(t)

	t.Run("unknown predicate", func(t *testing.T) {
		_, err := codec.Decode([]byte(`[{"predicate":"mystery","args":[{"number":1}]}]`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mystery")
	})

	t.Run("wrong arity", func(t *testing.T) {
		_, err := codec.Decode([]byte(`[{"predicate":"assignment","args":[{"number":1}]}]`))
		require.Error(t, err)
	})

	t.Run("ambiguous wire term", func(t *testing.T) {
		_, err := codec.Decode([]byte(`[{"predicate":"assignment","args":[{"number":1,"string":"x"},{"name":"/d"},{"number":1}]}]`))
		require.Error(t, err)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := codec.Decode([]byte(`{`))
		require.Error(t, err)
	})
}

func TestTextRoundTrip(t *testing.T) {
	codec, assignment := codecFixture(t)
	pos, err := assignment.FactAt("item1", "dave", int64(1))
	require.NoError(t, err)
	neg, err := pos.Negate()
	require.NoError(t, err)

	text, err := codec.FormatText([]*schema.Fact{pos, neg})
	require.NoError(t, err)
	assert.Equal(t, "assignment(/item1, /dave, 1).\n-assignment(/item1, /dave, 1).\n", text)

	parsed, err := codec.ParseText(text)
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	assert.True(t, parsed[0].Equal(pos))
	assert.True(t, parsed[1].Equal(neg))

	t.Run("unknown predicate is an error, not a drop", func(t *testing.T) {
		_, err := codec.ParseText(`mystery(1).`)
		require.Error(t, err)
	})

	t.Run("tuple facts have no text form", func(t *testing.T) {
		pair := schema.MustNew("pair", []schema.Slot{
			{Name: "a", Field: term.Constant},
			{Name: "b", Field: term.Integer},
		}, schema.AsTuple())
		r, err := schema.NewRegistry(pair)
		require.NoError(t, err)
		tc := NewCodec(r)

		f, err := pair.FactAt("dave", int64(2))
		require.NoError(t, err)
		_, err = tc.FormatText([]*schema.Fact{f})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no text form")

		// The JSON codec carries the same fact fine.
		data, err := tc.Encode([]*schema.Fact{f})
		require.NoError(t, err)
		decoded, err := tc.Decode(data)
		require.NoError(t, err)
		require.Len(t, decoded, 1)
		assert.True(t, decoded[0].Equal(f))
	})
}

func TestFloatsOverTheWire(t *testing.T) {
	reading := schema.MustNew("reading", []schema.Slot{
		{Name: "sensor", Field: term.Constant},
		{Name: "value", Field: term.Float},
	})
	r, err := schema.NewRegistry(reading)
	require.NoError(t, err)
	codec := NewCodec(r)

	f, err := reading.FactAt("temp", 2.5)
	require.NoError(t, err)

	data, err := codec.Encode([]*schema.Fact{f})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"float":2.5`)

	decoded, err := codec.Decode(data)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	v, ok := decoded[0].Get("value")
	require.True(t, ok)
	assert.Equal(t, 2.5, v)
	assert.True(t, decoded[0].Equal(f))
}

func TestStructuredTermsOverTheWire(t *testing.T) {
	placed := schema.MustNew("placed", []schema.Slot{
		{Name: "at", Field: term.Tuple(term.Integer, term.Integer)},
	})
	r, err := schema.NewRegistry(placed)
	require.NoError(t, err)
	codec := NewCodec(r)

	f, err := placed.FactAt([]interface{}{int64(3), int64(4)})
	require.NoError(t, err)

	data, err := codec.Encode([]*schema.Fact{f})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"fn":"fn:tuple"`)

	decoded, err := codec.Decode(data)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.True(t, decoded[0].Equal(f))
}
