// Package object holds the non-visual objects declared by schemes and the
// dependency graph that orders their preparation.
package object

import (
	"reflect"
	"slices"

	"github.com/pkg/errors"

	"github.com/matthewbaird/bindery/internal/evaluation"
	"github.com/matthewbaird/bindery/internal/keypath"
	"github.com/matthewbaird/bindery/internal/observe"
)

// Node is anything that can take part in the dependency graph.
type Node interface {
	Identifier() string
}

// Setupper is called once after instantiation and wiring.
type Setupper interface {
	Setup()
}

// Preparer is called once, dependencies first, before the first fetch.
type Preparer interface {
	Prepare()
}

// Base is embedded by scheme-declared objects. It carries identity, named
// evaluations and optional lifecycle hooks.
type Base struct {
	observe.Subject

	id    string
	alias string
	name  string
	evals map[string]*evaluation.Evaluation

	OnSetup   func()
	OnPrepare func()
}

func (b *Base) Identifier() string      { return b.id }
func (b *Base) SetIdentifier(id string) { b.id = id }
func (b *Base) Alias() string           { return b.alias }
func (b *Base) SetAlias(alias string)   { b.alias = alias }
func (b *Base) DisplayName() string     { return b.name }
func (b *Base) SetDisplayName(n string) { b.name = n }

// SetEval stores a named evaluation.
func (b *Base) SetEval(name string, e *evaluation.Evaluation) {
	if b.evals == nil {
		b.evals = make(map[string]*evaluation.Evaluation)
	}
	b.evals[name] = e
}

// Eval returns the named evaluation, or nil.
func (b *Base) Eval(name string) *evaluation.Evaluation {
	return b.evals[name]
}

// Setup runs the OnSetup hook.
func (b *Base) Setup() {
	if b.OnSetup != nil {
		b.OnSetup()
	}
}

// Prepare runs the OnPrepare hook.
func (b *Base) Prepare() {
	if b.OnPrepare != nil {
		b.OnPrepare()
	}
}

// Properties exposes the identity fields.
func (b *Base) Properties() keypath.Properties {
	return keypath.Properties{
		"identifier": {Get: func() any { return b.id }},
		"alias":      {Get: func() any { return b.alias }},
		"name": {
			Get: func() any { return b.name },
			Set: func(v any) error { b.name = keypath.String(v); return nil },
		},
	}
}

// Generic is a schemaless object: any attribute can be set and observed.
type Generic struct {
	Base
	values map[string]any
}

// NewGeneric returns an empty Generic.
func NewGeneric() *Generic {
	return &Generic{values: make(map[string]any)}
}

// ValueForKey reads identity fields first, then attributes.
func (g *Generic) ValueForKey(key string) (any, bool) {
	if p, ok := g.Base.Properties()[key]; ok {
		return p.Get(), true
	}
	v, ok := g.values[key]
	return v, ok
}

// SetValueForKey stores an attribute and notifies its observers. A named
// evaluation with the same key is applied first.
func (g *Generic) SetValueForKey(key string, value any) error {
	if p, ok := g.Base.Properties()[key]; ok {
		if p.Set == nil {
			return keypath.ErrReadOnly
		}
		return p.Set(value)
	}
	if e := g.Eval(key); e != nil {
		value = e.Perform(value)
	}
	g.values[key] = value
	g.Notify(key)
	return nil
}

// AppendValueForKey accumulates value into the list held at key, creating
// it when the key is unset. A value already in the list is not added twice.
func (g *Generic) AppendValueForKey(key string, value any) error {
	if _, ok := g.Base.Properties()[key]; ok {
		return errors.Wrapf(keypath.ErrReadOnly, "%s does not accumulate", key)
	}
	var list []any
	switch cur := g.values[key].(type) {
	case nil:
	case []any:
		list = cur
	default:
		return errors.Wrapf(keypath.ErrReadOnly, "%s holds %T, not a list", key, cur)
	}
	for _, x := range list {
		if same(x, value) {
			return nil
		}
	}
	g.values[key] = append(slices.Clip(list), value)
	g.Notify(key)
	return nil
}

func same(a, b any) bool {
	ta := reflect.TypeOf(a)
	return ta != nil && ta == reflect.TypeOf(b) && ta.Comparable() && a == b
}

// Properties lists identity fields and every attribute set so far. List
// valued attributes also accumulate.
func (g *Generic) Properties() keypath.Properties {
	props := g.Base.Properties()
	for k, v := range g.values {
		p := keypath.Property{
			Get: func() any { return g.values[k] },
			Set: func(v any) error { return g.SetValueForKey(k, v) },
		}
		if _, ok := v.([]any); ok {
			p.Append = func(v any) error { return g.AppendValueForKey(k, v) }
		}
		props[k] = p
	}
	return props
}
