// Package keypath resolves dotted key-paths against bindable objects.
//
// Bindable types do not expose their fields through reflection. Each one
// publishes an accessor table (Properties) mapping a property name to typed
// get/set closures; generic maps and slices decoded from JSON are traversed
// directly.
package keypath

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrUnknownKey is returned when a key is not present in an accessor table.
	ErrUnknownKey = errors.New("unknown key")
	// ErrReadOnly is returned when setting a property that has no setter.
	ErrReadOnly = errors.New("read-only key")
)

// Self names the value a path is resolved against.
const Self = "self"

// Property is one entry of an accessor table. Set and Append may be nil.
type Property struct {
	Get    func() any
	Set    func(any) error
	Append func(any) error
}

// Properties maps a property name to its accessors.
type Properties map[string]Property

// Object is implemented by every type that takes part in bindings.
type Object interface {
	Properties() Properties
}

// Getter is a read-only lookup, used by namespaces and records.
type Getter interface {
	ValueForKey(key string) (any, bool)
}

// Setter lets a Getter accept writes.
type Setter interface {
	SetValueForKey(key string, value any) error
}

// Appender accepts array-accumulating writes to keys it does not list in
// an accessor table.
type Appender interface {
	AppendValueForKey(key string, value any) error
}

// Split splits a dotted path into its components. An empty path yields nil.
func Split(path string) []string {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// Get resolves path against v. The empty path and "self" return v itself.
func Get(v any, path string) (any, bool) {
	cur := v
	for _, key := range Split(path) {
		if key == Self {
			continue
		}
		next, ok := ValueForKey(cur, key)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// ValueForKey reads a single key from v.
func ValueForKey(v any, key string) (any, bool) {
	switch o := v.(type) {
	case nil:
		return nil, false
	case Getter:
		return o.ValueForKey(key)
	case Object:
		p, ok := o.Properties()[key]
		if !ok || p.Get == nil {
			return nil, false
		}
		return p.Get(), true
	case map[string]any:
		val, ok := o[key]
		return val, ok
	case []any:
		return indexKey(len(o), key, func(i int) any { return o[i] })
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		mv := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !mv.IsValid() {
			return nil, false
		}
		return mv.Interface(), true
	case reflect.Slice, reflect.Array:
		return indexKey(rv.Len(), key, func(i int) any { return rv.Index(i).Interface() })
	}
	return nil, false
}

func indexKey(n int, key string, at func(int) any) (any, bool) {
	switch key {
	case "count", "@count":
		return n, true
	case "first":
		if n == 0 {
			return nil, true
		}
		return at(0), true
	case "last":
		if n == 0 {
			return nil, true
		}
		return at(n - 1), true
	}
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 || i >= n {
		return nil, false
	}
	return at(i), true
}

// Set writes value at path inside v.
func Set(v any, path string, value any) error {
	parts := Split(path)
	if len(parts) == 0 {
		return errors.Wrap(ErrUnknownKey, "empty key path")
	}
	parent := v
	if len(parts) > 1 {
		p, ok := Get(v, strings.Join(parts[:len(parts)-1], "."))
		if !ok {
			return errors.Wrapf(ErrUnknownKey, "%s", path)
		}
		parent = p
	}
	return errors.Wrapf(SetValueForKey(parent, parts[len(parts)-1], value), "%s", path)
}

// SetValueForKey writes a single key of v.
func SetValueForKey(v any, key string, value any) error {
	switch o := v.(type) {
	case Setter:
		return o.SetValueForKey(key, value)
	case Object:
		p, ok := o.Properties()[key]
		if !ok {
			return ErrUnknownKey
		}
		if p.Set == nil {
			return ErrReadOnly
		}
		return p.Set(value)
	case map[string]any:
		o[key] = value
		return nil
	}
	return errors.Wrapf(ErrUnknownKey, "%T does not accept %q", v, key)
}

// Append adds value to the array-accumulating property key of v.
func Append(v any, key string, value any) error {
	if a, ok := v.(Appender); ok {
		return a.AppendValueForKey(key, value)
	}
	o, ok := v.(Object)
	if !ok {
		return errors.Wrapf(ErrUnknownKey, "%T has no accessor table", v)
	}
	p, ok := o.Properties()[key]
	if !ok {
		return errors.Wrapf(ErrUnknownKey, "%s", key)
	}
	if p.Append == nil {
		return errors.Wrapf(ErrReadOnly, "%s does not accumulate", key)
	}
	return p.Append(value)
}

// CanAppend reports whether key of v accumulates values.
func CanAppend(v any, key string) bool {
	o, ok := v.(Object)
	if !ok {
		return false
	}
	p, ok := o.Properties()[key]
	return ok && p.Append != nil
}

// String renders v the way templates substitute it. nil renders empty.
func String(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	case bool:
		return strconv.FormatBool(s)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	case []byte:
		return string(s)
	case map[string]any, []any:
		b, err := json.Marshal(s)
		if err != nil {
			return fmt.Sprint(s)
		}
		return string(b)
	}
	return fmt.Sprint(v)
}
