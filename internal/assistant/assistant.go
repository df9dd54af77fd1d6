// Package assistant attaches bindings, named evaluations and identity
// metadata to UI elements.
package assistant

import (
	"slices"

	"github.com/bdlm/log"

	"github.com/matthewbaird/bindery/internal/binding"
	"github.com/matthewbaird/bindery/internal/evaluation"
	"github.com/matthewbaird/bindery/internal/keypath"
	"github.com/matthewbaird/bindery/internal/predicate"
)

// Reserved binding declaration keys.
const (
	KeyTo    = "to"
	KeyFrom  = "from"
	KeyOrder = "order"
)

// Layout holds numeric layout hints. Zero means unset.
type Layout struct {
	Top       float64 `json:"top,omitempty"`
	Bottom    float64 `json:"bottom,omitempty"`
	Left      float64 `json:"left,omitempty"`
	Right     float64 `json:"right,omitempty"`
	MaxWidth  float64 `json:"maxWidth,omitempty"`
	MinHeight float64 `json:"minHeight,omitempty"`
	MaxHeight float64 `json:"maxHeight,omitempty"`
}

// LayoutFrom reads hints from a scheme layout map; unknown keys are ignored.
func LayoutFrom(m map[string]float64) Layout {
	return Layout{
		Top:       m["top"],
		Bottom:    m["bottom"],
		Left:      m["left"],
		Right:     m["right"],
		MaxWidth:  m["maxWidth"],
		MinHeight: m["minHeight"],
		MaxHeight: m["maxHeight"],
	}
}

// Assistant is the per-element sidecar.
type Assistant struct {
	Identifier  string
	DisplayName string
	Layout      Layout

	Evals           map[string]*evaluation.Evaluation
	Bindings        map[string]*binding.Binding
	OrderedBindings []*binding.Binding

	element keypath.Object
}

// New creates an assistant for element.
func New(element keypath.Object) *Assistant {
	return &Assistant{
		Evals:    make(map[string]*evaluation.Evaluation),
		Bindings: make(map[string]*binding.Binding),
		element:  element,
	}
}

// Element returns the element bindings currently target.
func (a *Assistant) Element() keypath.Object { return a.element }

// AddEval stores a named evaluation built from options.
func (a *Assistant) AddEval(name string, options map[string]any) *evaluation.Evaluation {
	e, rest := evaluation.New(options)
	if len(rest) > 0 {
		log.WithFields(log.Fields{
			"element": a.Identifier,
			"eval":    name,
			"keys":    rest,
		}).Warn("assistant: ignoring unknown evaluation options")
	}
	a.Evals[name] = e
	return e
}

// Eval returns the named evaluation, or nil.
func (a *Assistant) Eval(name string) *evaluation.Evaluation {
	return a.Evals[name]
}

// Evaluate runs the evaluation named key over v, or returns v unchanged.
func (a *Assistant) Evaluate(key string, v any) any {
	if e := a.Evals[key]; e != nil {
		return e.Perform(v)
	}
	return v
}

// AddBinding parses one binding declaration. It returns nil, after logging,
// when the target key path already has a binding; the first one wins.
func (a *Assistant) AddBinding(decl map[string]any) *binding.Binding {
	to := binding.ValueKey
	if s, ok := decl[KeyTo].(string); ok && s != "" {
		to = s
	}
	if _, dup := a.Bindings[to]; dup {
		log.WithFields(log.Fields{
			"element": a.Identifier,
			"to":      to,
		}).Warn("assistant: binding already exists, ignoring declaration")
		return nil
	}

	from, _ := decl[KeyFrom].(string)
	options := make(map[string]any, len(decl))
	for k, v := range decl {
		switch k {
		case KeyTo, KeyFrom, KeyOrder:
		default:
			options[k] = v
		}
	}
	e, rest := evaluation.New(options)
	if len(rest) > 0 {
		log.WithFields(log.Fields{
			"element": a.Identifier,
			"to":      to,
			"keys":    rest,
		}).Warn("assistant: ignoring unknown binding options")
	}

	b := binding.New(a.element, to, from, e)
	if raw, ok := decl[KeyOrder]; ok {
		if n, ok := predicate.Number(raw); ok {
			b.Order, b.HasOrder = int(n), true
		} else {
			log.WithFields(log.Fields{
				"element": a.Identifier,
				"order":   raw,
			}).Warn("assistant: binding order is not a number")
		}
	}
	a.insert(b)
	return b
}

// insert keeps explicitly ordered bindings as a sorted leading run. An
// unordered binding goes to the end, after every ordered one present when
// it was added.
func (a *Assistant) insert(b *binding.Binding) {
	a.Bindings[b.TargetKeyPath] = b
	if !b.HasOrder {
		a.OrderedBindings = append(a.OrderedBindings, b)
		return
	}
	i := 0
	for i < len(a.OrderedBindings) {
		x := a.OrderedBindings[i]
		if !x.HasOrder || x.Order > b.Order {
			break
		}
		i++
	}
	a.OrderedBindings = slices.Insert(a.OrderedBindings, i, b)
}

// Applied records one binding application.
type Applied struct {
	Binding *binding.Binding
	Target  keypath.Object
	Source  any
	KeyPath string
	Value   any
}

// SetupObject re-targets every binding onto element (when non-nil) and
// either assigns once from source or binds live to it. Results are returned
// in application order.
func (a *Assistant) SetupObject(element keypath.Object, source any, bind bool) []Applied {
	if element != nil {
		a.element = element
	}
	applied := make([]Applied, 0, len(a.OrderedBindings))
	for _, b := range a.OrderedBindings {
		b.Target = a.element
		var v any
		if bind {
			v = b.Bind(source)
		} else {
			v = b.Assign(source)
		}
		applied = append(applied, Applied{
			Binding: b,
			Target:  a.element,
			Source:  source,
			KeyPath: b.TargetKeyPath,
			Value:   v,
		})
	}
	return applied
}

// Refresh re-assigns every bound binding from its current observable.
func (a *Assistant) Refresh() {
	for _, b := range a.OrderedBindings {
		if b.Observable != nil {
			b.Assign(b.Observable)
		}
	}
}

// Unbind deactivates every binding.
func (a *Assistant) Unbind() {
	for _, b := range a.OrderedBindings {
		b.Unbind()
	}
}
