package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerform_PredicateOnly(t *testing.T) {
	e := &Evaluation{PredicateFormat: "a = 5"}
	assert.Equal(t, true, e.Perform(map[string]any{"a": 5}))
	assert.Equal(t, false, e.Perform(map[string]any{"a": 6}))
}

func TestPerform_TrueFalseSubstitution(t *testing.T) {
	e := &Evaluation{PredicateFormat: "a = 5"}
	e.Set(ValueIfTrue, "$a is 5")
	e.Set(ValueIfFalse, "$a is not 5")

	assert.Equal(t, "7 is not 5", e.Perform(map[string]any{"a": 7}))
	assert.Equal(t, "5 is 5", e.Perform(map[string]any{"a": 5}))
}

func TestPerform_OnlyOneBranchYieldsBool(t *testing.T) {
	e := &Evaluation{PredicateFormat: "a = 5", ValueIfTrue: "yes", HasTrue: true}
	assert.Equal(t, true, e.Perform(map[string]any{"a": 5}))
}

func TestPerform_NullBranchFallsBackToPlaceholder(t *testing.T) {
	e, rest := New(map[string]any{
		"predicateFormat": "self = nil",
		"ifTrue":          "<null>",
		"ifFalse":         "$self",
		"placeholder":     "n/a",
	})
	assert.Empty(t, rest)
	assert.Equal(t, "n/a", e.Perform(nil))
	assert.Equal(t, "n/a", e.Perform(Null))
	assert.Equal(t, "x", e.Perform("x"))
}

func TestPerform_NullSentinelInput(t *testing.T) {
	e := &Evaluation{Placeholder: "-"}
	assert.Equal(t, "-", e.Perform(Null))
	assert.Equal(t, "-", e.Perform(NullLiteral))
	assert.Equal(t, 3, e.Perform(3))
}

func TestPerform_Transformer(t *testing.T) {
	e := &Evaluation{TransformerName: "uppercase"}
	assert.Equal(t, "HELLO", e.Perform("hello"))
	// inapplicable input yields nil, then the placeholder
	e.Placeholder = "?"
	assert.Equal(t, "?", e.Perform(42))
}

func TestPerform_UnknownTransformerIsSkipped(t *testing.T) {
	e := &Evaluation{TransformerName: "doesNotExist"}
	assert.Equal(t, "v", e.Perform("v"))
}

func TestPerform_FormatReadsOriginal(t *testing.T) {
	e := &Evaluation{TransformerName: "count", ValueFormat: "$name has $tags.count tags"}
	in := map[string]any{"name": "box", "tags": []any{"a", "b"}}
	assert.Equal(t, "box has 2 tags", e.Perform(in))
}

func TestPerform_FormatFallback(t *testing.T) {
	e := &Evaluation{TransformerName: "uppercase", ValueFormat: "Hi %@!"}
	assert.Equal(t, "Hi BOB!", e.Perform("bob"))
}

func TestPerform_FormatSkippedForAbsentValue(t *testing.T) {
	e := &Evaluation{ValueFormat: "$a", Placeholder: "none"}
	assert.Equal(t, "none", e.Perform(nil))
}

func TestPerform_MalformedPredicateIsAbsent(t *testing.T) {
	e := &Evaluation{PredicateFormat: "a = = 5"}
	assert.Nil(t, e.Predicate())
	assert.Equal(t, map[string]any{"a": 1}, e.Perform(map[string]any{"a": 1}))
}

func TestSubstitute(t *testing.T) {
	src := map[string]any{"a": 1, "user": map[string]any{"name": "Ann"}}
	tests := []struct {
		template string
		want     string
	}{
		{"$a", "1"},
		{"$user.name says hi.", "Ann says hi."},
		{"$missing|$a", "|1"},
		{"$a$a", "11"},
		{"no tokens", "no tokens"},
		{"%@ and %@", "fb and %@"},
		{"cost: $5", "cost: $5"},
	}
	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			assert.Equal(t, tt.want, Substitute(tt.template, src, "fb"))
		})
	}
}

func TestParseOption(t *testing.T) {
	for key, want := range map[string]Option{
		"predicateFormat":      PredicateFormat,
		"ifTrue":               ValueIfTrue,
		"valueIfFalse":         ValueIfFalse,
		"placeholder":          NullPlaceholder,
		"valueTransformerName": ValueTransformerName,
		"format":               ValueFormat,
	} {
		got, ok := ParseOption(key)
		require.True(t, ok, key)
		assert.Equal(t, want, got)
	}
	_, ok := ParseOption("to")
	assert.False(t, ok)
	assert.Equal(t, "ifTrue", ValueIfTrue.SchemeKey())
}

func TestTransformers(t *testing.T) {
	call := func(name string, v any) any {
		fn, ok := LookupTransformer(name)
		require.True(t, ok, name)
		return fn(v)
	}
	assert.Equal(t, true, call("isNil", nil))
	assert.Equal(t, false, call("isNotNil", nil))
	assert.Equal(t, true, call("not", 0))
	assert.Equal(t, "Hello World", call("capitalized", "hello wORLD"))
	assert.Equal(t, "x", call("trim", "  x "))
	assert.Equal(t, 3, call("count", []any{1, 2, 3}))
	assert.Equal(t, true, call("isEmpty", ""))
	assert.Equal(t, true, call("isNotEmpty", map[string]any{"a": 1}))
	assert.Equal(t, "2.5", call("string", 2.5))
	assert.Equal(t, 12.0, call("number", " 12 "))
	assert.Nil(t, call("number", "twelve"))
	assert.Equal(t, `{"a":1}`, call("json", map[string]any{"a": 1}))
}
