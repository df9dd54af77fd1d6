package content

import (
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/bdlm/log"
	"github.com/pkg/errors"

	"github.com/matthewbaird/bindery/internal/keypath"
	"github.com/matthewbaird/bindery/internal/predicate"
)

// ChainFunc is one result-chain function. It receives the current value
// (usually a list) and its string argument.
type ChainFunc func(v any, arg string) any

var (
	chainMu    sync.RWMutex
	chainFuncs = map[string]ChainFunc{}
)

// RegisterChainFunc makes fn available to result chains under name.
func RegisterChainFunc(name string, fn ChainFunc) {
	chainMu.Lock()
	defer chainMu.Unlock()
	chainFuncs[name] = fn
}

func lookupChainFunc(name string) (ChainFunc, bool) {
	chainMu.RLock()
	defer chainMu.RUnlock()
	fn, ok := chainFuncs[name]
	return fn, ok
}

// Step is one (function, argument) pair.
type Step struct {
	Name string
	Arg  string
	fn   ChainFunc
}

// Chain is an ordered list of steps deriving a scalar from an item list.
type Chain []Step

// ParseChain parses "name" or "name:arg" specs. The argument is everything
// after the first colon, so "joinedBy:, " joins with ", ".
func ParseChain(specs []string) (Chain, error) {
	chain := make(Chain, 0, len(specs))
	for _, spec := range specs {
		name, arg, _ := strings.Cut(spec, ":")
		name = strings.TrimSpace(name)
		fn, ok := lookupChainFunc(name)
		if !ok {
			return nil, errors.Errorf("result chain: unknown function %q", name)
		}
		chain = append(chain, Step{Name: name, Arg: arg, fn: fn})
	}
	return chain, nil
}

// Apply runs the chain over items. An empty chain returns items unchanged.
// A step yielding nil ends the chain with nil.
func (c Chain) Apply(items []any) any {
	var v any = items
	for _, s := range c {
		fn := s.fn
		if fn == nil {
			var ok bool
			if fn, ok = lookupChainFunc(s.Name); !ok {
				return nil
			}
		}
		v = fn(v, s.Arg)
		if v == nil {
			return nil
		}
	}
	return v
}

// Specs renders the chain back to its "name:arg" form.
func (c Chain) Specs() []string {
	out := make([]string, len(c))
	for i, s := range c {
		if s.Arg == "" {
			out[i] = s.Name
		} else {
			out[i] = s.Name + ":" + s.Arg
		}
	}
	return out
}

func init() {
	RegisterChainFunc("takeFirst", func(v any, arg string) any {
		list, n, ok := listAndCount("takeFirst", v, arg)
		if !ok || len(list) == 0 {
			return nil
		}
		return list[:min(n, len(list))]
	})
	RegisterChainFunc("takeLast", func(v any, arg string) any {
		list, n, ok := listAndCount("takeLast", v, arg)
		if !ok || len(list) == 0 {
			return nil
		}
		return list[len(list)-min(n, len(list)):]
	})
	RegisterChainFunc("map", func(v any, arg string) any {
		list, ok := asList(v)
		if !ok {
			return nil
		}
		out := make([]any, 0, len(list))
		for _, item := range list {
			if x, ok := keypath.Get(item, arg); ok && x != nil {
				out = append(out, x)
			}
		}
		return out
	})
	RegisterChainFunc("joinedBy", func(v any, arg string) any {
		list, ok := asList(v)
		if !ok {
			return nil
		}
		parts := make([]string, len(list))
		for i, item := range list {
			parts[i] = keypath.String(item)
		}
		return strings.Join(parts, arg)
	})
	RegisterChainFunc("count", func(v any, _ string) any {
		list, ok := asList(v)
		if !ok {
			return nil
		}
		return len(list)
	})
	RegisterChainFunc("sum", sum)
	RegisterChainFunc("first", func(v any, _ string) any {
		list, ok := asList(v)
		if !ok || len(list) == 0 {
			return nil
		}
		return list[0]
	})
	RegisterChainFunc("last", func(v any, _ string) any {
		list, ok := asList(v)
		if !ok || len(list) == 0 {
			return nil
		}
		return list[len(list)-1]
	})
	RegisterChainFunc("reversed", func(v any, _ string) any {
		list, ok := asList(v)
		if !ok {
			return nil
		}
		out := make([]any, len(list))
		for i, item := range list {
			out[len(list)-1-i] = item
		}
		return out
	})
	RegisterChainFunc("sortedBy", sortedBy)
	RegisterChainFunc("unique", func(v any, _ string) any {
		list, ok := asList(v)
		if !ok {
			return nil
		}
		var out []any
		for _, item := range list {
			dup := false
			for _, seen := range out {
				if reflect.DeepEqual(seen, item) {
					dup = true
					break
				}
			}
			if !dup {
				out = append(out, item)
			}
		}
		return out
	})
	RegisterChainFunc("filter", func(v any, arg string) any {
		list, ok := asList(v)
		if !ok {
			return nil
		}
		p, err := predicate.Compile(arg)
		if err != nil {
			log.WithFields(log.Fields{"filter": arg, "err": err}).Warn("result chain: malformed filter")
			return nil
		}
		out := make([]any, 0, len(list))
		for _, item := range list {
			if p.Match(item) {
				out = append(out, item)
			}
		}
		return out
	})
	RegisterChainFunc("compact", func(v any, _ string) any {
		list, ok := asList(v)
		if !ok {
			return nil
		}
		out := make([]any, 0, len(list))
		for _, item := range list {
			if item != nil && keypath.String(item) != "<null>" {
				out = append(out, item)
			}
		}
		return out
	})
	RegisterChainFunc("flatten", func(v any, _ string) any {
		list, ok := asList(v)
		if !ok {
			return nil
		}
		var out []any
		for _, item := range list {
			if inner, ok := asList(item); ok {
				out = append(out, inner...)
			} else {
				out = append(out, item)
			}
		}
		return out
	})
}

// listAndCount parses a count argument. An empty argument means 1. A
// non-numeric argument is logged and makes the step yield nil.
func listAndCount(name string, v any, arg string) ([]any, int, bool) {
	list, ok := asList(v)
	if !ok {
		return nil, 0, false
	}
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return list, 1, true
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 {
		log.WithFields(log.Fields{"function": name, "arg": arg}).Warn("result chain: expected a non-negative integer argument")
		return nil, 0, false
	}
	return list, n, true
}

// sum adds the items, or the values at the key path given as argument.
// Any non-numeric operand is logged and makes the step yield nil.
func sum(v any, arg string) any {
	list, ok := asList(v)
	if !ok {
		return nil
	}
	total := 0.0
	for _, item := range list {
		x := item
		if arg != "" {
			x, _ = keypath.Get(item, arg)
		}
		n, ok := predicate.Number(x)
		if !ok {
			log.WithFields(log.Fields{"function": "sum", "arg": arg, "value": x}).Warn("result chain: non-numeric operand")
			return nil
		}
		total += n
	}
	return total
}

// sortedBy sorts by the key path in arg; a leading "-" sorts descending.
func sortedBy(v any, arg string) any {
	list, ok := asList(v)
	if !ok {
		return nil
	}
	desc := strings.HasPrefix(arg, "-")
	path := strings.TrimPrefix(arg, "-")
	out := append([]any(nil), list...)
	sort.SliceStable(out, func(i, j int) bool {
		a, _ := keypath.Get(out[i], path)
		b, _ := keypath.Get(out[j], path)
		c, _ := predicate.Compare(a, b)
		if desc {
			return c > 0
		}
		return c < 0
	})
	return out
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case nil:
		return nil, false
	case []any:
		return l, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
