package scheme

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/bindery/internal/keypath"
	"github.com/matthewbaird/bindery/internal/object"
)

// field is a minimal element with two settable properties, a source
// outlet and a trigger.
type field struct {
	object.Base
	text   any
	hidden bool
	source any
	action func()
}

func (f *field) SetAction(fn func()) { f.action = fn }

func (f *field) Properties() keypath.Properties {
	props := f.Base.Properties()
	props["text"] = keypath.Property{
		Get: func() any { return f.text },
		Set: func(v any) error { f.text = v; f.Notify("text"); return nil },
	}
	props["hidden"] = keypath.Property{
		Get: func() any { return f.hidden },
		Set: func(v any) error { f.hidden, _ = v.(bool); f.Notify("hidden"); return nil },
	}
	props["source"] = keypath.Property{
		Get: func() any { return f.source },
		Set: func(v any) error { f.source = v; return nil },
	}
	return props
}

// counter records the selectors invoked on it.
type counter struct {
	object.Base
	selectors []string
	args      [][]any
}

func (c *counter) Invoke(selector string, args ...any) error {
	c.selectors = append(c.selectors, selector)
	c.args = append(c.args, args)
	return nil
}

func testResolver() *Resolver {
	fac := NewFactory()
	fac.Register("Object", func() any { return object.NewGeneric() })
	fac.Register("Field", func() any { return &field{} })
	fac.Register("Counter", func() any { return &counter{} })
	r := NewResolver()
	r.Factory = fac
	return r
}

func mustParse(t *testing.T, src string) *Document {
	t.Helper()
	doc, err := Parse([]byte(src))
	require.NoError(t, err)
	return doc
}

func lookup[T any](t *testing.T, ns *Namespace, id string) T {
	t.Helper()
	obj, ok := ns.Lookup(id)
	require.True(t, ok, "%s not in namespace", id)
	v, ok := obj.(T)
	require.True(t, ok, "%s is %T", id, obj)
	return v
}

const hubScheme = `{"Hub": {
  "objects": {
    "early": {"type": "Object", "outlets": {"next": "late"}},
    "hub":   {"type": "Object", "outlets": {"members": ["a", "b"], "lead": "a"}},
    "a":     {"type": "Object", "alias": "first", "attrs": {"title": "alpha"}, "evals": {"title": {"format": "[%@]"}}},
    "b":     {"type": "Object", "attrs": {"title": "beta"}},
    "late":  {"type": "Object"},
    "ghost": {"type": "Objekt"}
  },
  "elements": {
    "label": {
      "type": "Field",
      "outlets": {"source": "hub"},
      "bindings": [
        {"to": "text", "from": "a.title"},
        {"to": "hidden", "from": "hub.members.count", "predicateFormat": "self = 0"}
      ]
    }
  }
}}`

func TestResolve_ObjectsOutletsAndBindings(t *testing.T) {
	r := testResolver()
	ns := NewNamespace()
	res, err := r.ResolveScreen(mustParse(t, hubScheme), "Hub", ns)
	require.NoError(t, err)

	assert.Len(t, res.Objects, 5, "ghost has an unknown type and is skipped")
	_, ok := ns.Lookup("ghost")
	assert.False(t, ok)

	a := lookup[*object.Generic](t, ns, "a")
	b := lookup[*object.Generic](t, ns, "b")
	assert.Same(t, a, lookup[*object.Generic](t, ns, "first"), "alias resolves to the same instance")
	assert.Equal(t, "a", a.Identifier())

	title, _ := a.ValueForKey("title")
	assert.Equal(t, "[alpha]", title, "object evals apply to attrs")

	hub := lookup[*object.Generic](t, ns, "hub")
	members, ok := hub.ValueForKey("members")
	require.True(t, ok)
	assert.Equal(t, []any{a, b}, members)
	lead, _ := hub.ValueForKey("lead")
	assert.Same(t, a, lead)

	// outlet target declared later in key order
	early := lookup[*object.Generic](t, ns, "early")
	next, _ := early.ValueForKey("next")
	assert.Same(t, lookup[*object.Generic](t, ns, "late"), next)

	label := lookup[*field](t, ns, "label")
	assert.Same(t, hub, label.source)

	asst, ok := r.Assistants.Lookup(label)
	require.True(t, ok)
	asst.SetupObject(nil, ns, false)
	assert.Equal(t, "[alpha]", label.text)
	assert.False(t, label.hidden)
}

func TestResolve_ReschemeUpdatesInPlace(t *testing.T) {
	r := testResolver()
	ns := NewNamespace()
	_, err := r.ResolveScreen(mustParse(t, hubScheme), "Hub", ns)
	require.NoError(t, err)
	a := lookup[*object.Generic](t, ns, "a")
	label := lookup[*field](t, ns, "label")

	again := `{"Hub": {
	  "objects": {
	    "a":   {"attrs": {"title": "again"}, "evals": {"title": {"format": "<%@>"}}},
	    "hub": {"outlets": {"members": ["a", "b"]}}
	  },
	  "elements": {
	    "label": {"bindings": [{"to": "text", "from": "b.title"}], "attrs": {"hidden": true}}
	  }
	}}`
	res, err := r.ResolveScreen(mustParse(t, again), "Hub", ns)
	require.NoError(t, err)

	assert.Empty(t, res.Created)
	assert.Same(t, a, lookup[*object.Generic](t, ns, "a"))
	title, _ := a.ValueForKey("title")
	assert.Equal(t, "<again>", title)

	members, _ := lookup[*object.Generic](t, ns, "hub").ValueForKey("members")
	assert.Len(t, members, 2, "re-wiring an array outlet does not duplicate members")

	assert.Same(t, label, lookup[*field](t, ns, "label"))
	assert.True(t, label.hidden)
	asst, _ := r.Assistants.Lookup(label)
	assert.Len(t, asst.OrderedBindings, 2, "the duplicate text binding is rejected")
	assert.Equal(t, "a.title", asst.Bindings["text"].SourceKeyPath)
}

func TestResolve_ActionWiring(t *testing.T) {
	doc := mustParse(t, `{"Act": {
	  "objects": {"counter": {"type": "Counter"}},
	  "elements": {
	    "go":   {"type": "Field", "action": {"target": "counter", "selector": "bump", "args": [1, "x"]}},
	    "lost": {"type": "Field", "action": {"target": "nobody", "selector": "bump"}}
	  }
	}}`)
	r := testResolver()
	ns := NewNamespace()
	require.NoError(t, r.Resolve(doc, "Act", ns))

	goBtn := lookup[*field](t, ns, "go")
	require.NotNil(t, goBtn.action)
	goBtn.action()
	c := lookup[*counter](t, ns, "counter")
	assert.Equal(t, []string{"bump"}, c.selectors)
	assert.Equal(t, [][]any{{1.0, "x"}}, c.args)

	assert.Nil(t, lookup[*field](t, ns, "lost").action, "missing targets leave the trigger unwired")

	var seen string
	r.OnAction = func(_ any, selector string, _ []any) { seen = selector }
	goBtn.action()
	assert.Equal(t, "bump", seen)
	assert.Len(t, c.selectors, 1)
}

func TestResolve_Dependencies(t *testing.T) {
	doc := mustParse(t, `{"Deps": {"objects": {
	  "leaf": {"type": "Object", "dependency": "mid"},
	  "mid":  {"type": "Object", "outlets": {"dependency": "root"}},
	  "root": {"type": "Object"}
	}}}`)
	r := testResolver()
	ns := NewNamespace()
	require.NoError(t, r.Resolve(doc, "Deps", ns))

	leaf := lookup[*object.Generic](t, ns, "leaf")
	assert.Equal(t, 2, r.Graph.Depth(leaf))
	assert.Same(t, lookup[*object.Generic](t, ns, "mid"), r.Graph.Dependency(leaf))
}

func TestResolve_DependencyCyclePanics(t *testing.T) {
	doc := mustParse(t, `{"Loop": {"objects": {
	  "a": {"type": "Object", "dependency": "c"},
	  "b": {"type": "Object", "dependency": "a"},
	  "c": {"type": "Object", "dependency": "b"}
	}}}`)
	assert.Panics(t, func() { _ = testResolver().Resolve(doc, "Loop", NewNamespace()) })
}

func TestResolve_MissingScreen(t *testing.T) {
	err := testResolver().Resolve(mustParse(t, hubScheme), "Nope", NewNamespace())
	assert.Error(t, err)
}

func TestResolve_ExistingInstancesWithoutType(t *testing.T) {
	doc := mustParse(t, `{"S": {"objects": {"shared": {"attrs": {"n": 1}}, "typeless": {}}}}`)
	ns := NewNamespace()
	shared := object.NewGeneric()
	ns.Insert("shared", shared)

	res, err := testResolver().ResolveScreen(doc, "S", ns)
	require.NoError(t, err)
	assert.Equal(t, []any{shared}, res.Objects)
	n, _ := shared.ValueForKey("n")
	assert.Equal(t, 1.0, n)
}
