package content

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func namedItems(n int) []any {
	items := make([]any, n)
	for i := range items {
		items[i] = map[string]any{"id": i + 1, "name": "item" + string(rune('1'+i))}
	}
	return items
}

func chain(t *testing.T, specs ...string) Chain {
	t.Helper()
	c, err := ParseChain(specs)
	require.NoError(t, err)
	return c
}

func TestChain_TakeLastMapJoin(t *testing.T) {
	c := chain(t, "takeLast:2", "map:name", "joinedBy:, ")
	assert.Equal(t, "item4, item5", c.Apply(namedItems(5)))
}

func TestChain_TakeFirstOfEmptyIsNil(t *testing.T) {
	c := chain(t, "takeFirst:1")
	assert.Nil(t, c.Apply(nil))
	assert.Nil(t, c.Apply([]any{}))
}

func TestChain_EmptyReturnsItems(t *testing.T) {
	items := namedItems(2)
	assert.Equal(t, items, Chain(nil).Apply(items))
}

func TestChain_UnknownFunction(t *testing.T) {
	_, err := ParseChain([]string{"takeFirst", "explode:3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "explode")
}

func TestChain_NonNumericArgumentYieldsNil(t *testing.T) {
	assert.Nil(t, chain(t, "takeFirst:two").Apply(namedItems(3)))
	assert.Nil(t, chain(t, "sum:name").Apply(namedItems(3)))
}

func TestChain_Functions(t *testing.T) {
	items := []any{
		map[string]any{"name": "b", "n": 2, "tags": []any{"x"}},
		map[string]any{"name": "a", "n": 3, "tags": []any{"y", "z"}},
		map[string]any{"name": "c", "n": 1, "tags": []any{"x"}},
	}
	tests := []struct {
		specs []string
		want  any
	}{
		{[]string{"count"}, 3},
		{[]string{"sum:n"}, 6.0},
		{[]string{"map:name", "first"}, "b"},
		{[]string{"map:name", "last"}, "c"},
		{[]string{"map:name", "reversed"}, []any{"c", "a", "b"}},
		{[]string{"sortedBy:name", "map:name"}, []any{"a", "b", "c"}},
		{[]string{"sortedBy:-n", "map:name"}, []any{"a", "b", "c"}},
		{[]string{"map:tags", "flatten", "unique"}, []any{"x", "y", "z"}},
		{[]string{"filter:n >= 2", "map:name", "joinedBy:+"}, "b+a"},
		{[]string{"takeFirst", "map:name"}, []any{"b"}},
		{[]string{"takeLast:10", "count"}, 3},
	}
	for _, tt := range tests {
		got := chain(t, tt.specs...).Apply(items)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%v (-want +got):\n%s", tt.specs, diff)
		}
	}
}

func TestChain_Compact(t *testing.T) {
	got := chain(t, "compact").Apply([]any{1, nil, "<null>", 2})
	assert.Equal(t, []any{1, 2}, got)
}

func TestChain_Specs(t *testing.T) {
	specs := []string{"takeLast:2", "map:name", "joinedBy:, ", "count"}
	assert.Equal(t, specs, chain(t, specs...).Specs())
}
