package evaluation

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/matthewbaird/bindery/internal/keypath"
	"github.com/matthewbaird/bindery/internal/predicate"
)

// Transformer is a pure one-in one-out value function. It returns nil for
// input it cannot handle.
type Transformer func(any) any

var (
	transformersMu sync.RWMutex
	transformers   = map[string]Transformer{}
)

// RegisterTransformer makes fn available under name. Registering a name twice
// replaces the earlier function.
func RegisterTransformer(name string, fn Transformer) {
	transformersMu.Lock()
	defer transformersMu.Unlock()
	transformers[name] = fn
}

// LookupTransformer returns the transformer registered as name.
func LookupTransformer(name string) (Transformer, bool) {
	transformersMu.RLock()
	defer transformersMu.RUnlock()
	fn, ok := transformers[name]
	return fn, ok
}

func init() {
	RegisterTransformer("isNil", func(v any) any { return v == nil })
	RegisterTransformer("isNotNil", func(v any) any { return v != nil })
	RegisterTransformer("not", func(v any) any { return !predicate.Truthy(v) })
	RegisterTransformer("uppercase", stringFunc(strings.ToUpper))
	RegisterTransformer("lowercase", stringFunc(strings.ToLower))
	RegisterTransformer("capitalized", stringFunc(capitalize))
	RegisterTransformer("trim", stringFunc(strings.TrimSpace))
	RegisterTransformer("count", count)
	RegisterTransformer("isEmpty", func(v any) any { return !predicate.Truthy(count(v)) })
	RegisterTransformer("isNotEmpty", func(v any) any { return predicate.Truthy(count(v)) })
	RegisterTransformer("string", func(v any) any { return keypath.String(v) })
	RegisterTransformer("number", number)
	RegisterTransformer("json", func(v any) any {
		b, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return string(b)
	})
}

func stringFunc(fn func(string) string) Transformer {
	return func(v any) any {
		s, ok := v.(string)
		if !ok {
			return nil
		}
		return fn(s)
	}
}

// capitalize upper-cases the first letter of every word.
func capitalize(s string) string {
	rs := []rune(s)
	for i, r := range rs {
		if i == 0 || unicode.IsSpace(rs[i-1]) {
			rs[i] = unicode.ToUpper(r)
		} else {
			rs[i] = unicode.ToLower(r)
		}
	}
	return string(rs)
}

func count(v any) any {
	switch x := v.(type) {
	case nil:
		return 0
	case string:
		return len([]rune(x))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len()
	}
	return nil
}

func number(v any) any {
	if n, ok := predicate.Number(v); ok {
		return n
	}
	switch x := v.(type) {
	case bool:
		if x {
			return 1.0
		}
		return 0.0
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		return f
	}
	return nil
}
