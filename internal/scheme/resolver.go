package scheme

import (
	"fmt"

	"github.com/bdlm/log"
	"github.com/pkg/errors"

	"github.com/matthewbaird/bindery/internal/assistant"
	"github.com/matthewbaird/bindery/internal/evaluation"
	"github.com/matthewbaird/bindery/internal/keypath"
	"github.com/matthewbaird/bindery/internal/object"
)

// DependencyKey is the outlet property that declares a dependency edge.
const DependencyKey = "dependency"

// Identifiable objects are tagged with their scheme identifier.
type Identifiable interface {
	Identifier() string
	SetIdentifier(string)
}

// Aliased objects accept a secondary lookup name.
type Aliased interface {
	SetAlias(string)
}

// Named objects accept a display name.
type Named interface {
	SetDisplayName(string)
}

// EvalHolder objects keep named evaluations.
type EvalHolder interface {
	SetEval(name string, e *evaluation.Evaluation)
}

// Triggerable elements fire an action when the user activates them.
type Triggerable interface {
	SetAction(func())
}

// Invoker performs a named selector.
type Invoker interface {
	Invoke(selector string, args ...any) error
}

// ActionFunc runs when a wired trigger fires.
type ActionFunc func(target any, selector string, args []any)

// Resolution lists what one Resolve call touched, in document order.
type Resolution struct {
	ScreenID string
	Objects  []any
	Elements []any
	Created  []any
}

// Resolver turns a screen declaration into a wired object graph.
type Resolver struct {
	Factory    *Factory
	Assistants *assistant.Registry
	Graph      *object.Graph
	// OnAction replaces the default invocation of triggered actions.
	OnAction ActionFunc
}

// NewResolver creates a resolver over the default factory.
func NewResolver() *Resolver {
	return &Resolver{
		Factory:    Default,
		Assistants: assistant.NewRegistry(),
		Graph:      object.NewGraph(),
	}
}

// Resolve instantiates and wires screenID of doc into ns.
func (r *Resolver) Resolve(doc *Document, screenID string, ns *Namespace) error {
	_, err := r.ResolveScreen(doc, screenID, ns)
	return err
}

// ResolveScreen is Resolve returning what was resolved. A dependency cycle
// panics; every other problem is logged and skipped.
func (r *Resolver) ResolveScreen(doc *Document, screenID string, ns *Namespace) (*Resolution, error) {
	screen, ok := doc.Screen(screenID)
	if !ok {
		return nil, errors.Errorf("scheme: no screen %q", screenID)
	}
	res := &Resolution{ScreenID: screenID}

	// 1. objects
	objects := NewNamespace()
	for _, id := range screen.Objects.Order {
		decl := screen.Objects.ByID[id]
		obj, created := r.instance(ns, id, decl, true)
		if obj == nil {
			continue
		}
		if !created {
			r.applyEvals(obj, decl)
			r.applyAttrs(obj, id, decl.Attrs, nil)
		}
		objects.Add(obj, id, decl.Alias)
		res.Objects = append(res.Objects, obj)
		if created {
			res.Created = append(res.Created, obj)
		}
	}

	elements := NewNamespace()
	for _, id := range screen.Elements.Order {
		decl := screen.Elements.ByID[id]
		el, created := r.instance(ns, id, decl, false)
		if el == nil {
			continue
		}
		elements.Add(el, id, "")
		res.Elements = append(res.Elements, el)
		if created {
			res.Created = append(res.Created, el)
		}
	}

	// 2. merge, then outlets over the merged set
	ns.Merge(objects)
	ns.Merge(elements)
	r.resolveOutlets(ns, screen.Objects)
	r.resolveOutlets(ns, screen.Elements)

	// 3. element actions, attrs and bindings
	for _, id := range screen.Elements.Order {
		el, ok := elements.Lookup(id)
		if !ok {
			continue
		}
		r.setupElement(ns, id, el, screen.Elements.ByID[id])
	}

	for _, obj := range res.Created {
		if s, ok := obj.(object.Setupper); ok {
			s.Setup()
		}
	}
	return res, nil
}

// instance finds id in ns or creates it from decl.Type. Newly created
// objects are tagged; non-visual ones also get their evals and attrs.
func (r *Resolver) instance(ns *Namespace, id string, decl *Declaration, configure bool) (any, bool) {
	if existing, ok := ns.Lookup(id); ok {
		return existing, false
	}
	if decl.Type == "" {
		log.WithField("id", id).Warn("scheme: declaration has no type and no existing instance, skipping")
		return nil, false
	}
	obj, ok := r.Factory.New(decl.Type)
	if !ok {
		log.WithFields(log.Fields{
			"id":   id,
			"type": decl.Type,
			"hint": r.Factory.Suggest(decl.Type),
		}).Warn("scheme: unknown type, skipping")
		return nil, false
	}
	if o, ok := obj.(Identifiable); ok {
		o.SetIdentifier(id)
	}
	if o, ok := obj.(Aliased); ok && decl.Alias != "" {
		o.SetAlias(decl.Alias)
	}
	if o, ok := obj.(Named); ok && decl.Name != "" {
		o.SetDisplayName(decl.Name)
	}
	if configure {
		r.applyEvals(obj, decl)
		r.applyAttrs(obj, id, decl.Attrs, nil)
	}
	return obj, true
}

func (r *Resolver) applyEvals(obj any, decl *Declaration) {
	holder, ok := obj.(EvalHolder)
	if !ok {
		return
	}
	for name, options := range decl.Evals {
		e, rest := evaluation.New(options)
		if len(rest) > 0 {
			log.WithFields(log.Fields{"eval": name, "keys": rest}).Warn("scheme: ignoring unknown evaluation options")
		}
		holder.SetEval(name, e)
	}
}

func (r *Resolver) applyAttrs(obj any, id string, attrs map[string]any, a *assistant.Assistant) {
	for key, value := range attrs {
		if a != nil {
			value = a.Evaluate(key, value)
		}
		if err := keypath.Set(obj, key, value); err != nil {
			log.WithFields(log.Fields{
				"id":   id,
				"attr": key,
				"err":  err,
			}).Warn("scheme: cannot apply attribute")
		}
	}
}

func (r *Resolver) resolveOutlets(ns *Namespace, decls Declarations) {
	for _, id := range decls.Order {
		decl := decls.ByID[id]
		src, ok := ns.Lookup(id)
		if !ok {
			continue
		}
		if decl.Dependency != "" {
			r.setDependency(ns, id, src, decl.Dependency)
		}
		for prop, outlet := range decl.Outlets {
			if prop == DependencyKey && len(outlet.IDs) == 1 {
				r.setDependency(ns, id, src, outlet.IDs[0])
				continue
			}
			for _, targetID := range outlet.IDs {
				target, ok := ns.Lookup(targetID)
				if !ok {
					log.WithFields(log.Fields{
						"id":     id,
						"outlet": prop,
						"target": targetID,
					}).Warn("scheme: outlet target not found")
					continue
				}
				var err error
				if outlet.Multi || keypath.CanAppend(src, prop) {
					err = keypath.Append(src, prop, target)
				} else {
					err = keypath.SetValueForKey(src, prop, target)
				}
				if err != nil {
					log.WithFields(log.Fields{
						"id":     id,
						"outlet": prop,
						"err":    err,
					}).Warn("scheme: cannot wire outlet")
				}
			}
		}
	}
}

func (r *Resolver) setDependency(ns *Namespace, id string, src any, depID string) {
	dep, ok := ns.Lookup(depID)
	if !ok {
		log.WithFields(log.Fields{"id": id, "dependency": depID}).Warn("scheme: dependency not found")
		return
	}
	n, ok := src.(object.Node)
	d, ok2 := dep.(object.Node)
	if !ok || !ok2 {
		log.WithFields(log.Fields{"id": id, "dependency": depID}).Warn("scheme: dependency endpoints are not objects")
		return
	}
	if err := r.Graph.SetDependency(n, d); err != nil {
		panic(fmt.Sprintf("scheme: %v", err))
	}
}

func (r *Resolver) setupElement(ns *Namespace, id string, el any, decl *Declaration) {
	if decl.Action != nil {
		r.wireAction(ns, id, el, decl.Action)
	}

	target, ok := el.(keypath.Object)
	if !ok {
		r.applyAttrs(el, id, decl.Attrs, nil)
		if len(decl.Bindings) > 0 || len(decl.Evals) > 0 {
			log.WithField("id", id).Warn("scheme: element has no accessor table, bindings skipped")
		}
		return
	}

	a := r.Assistants.For(target)
	a.Identifier = id
	if decl.Name != "" {
		a.DisplayName = decl.Name
	}
	if decl.Layout != nil {
		a.Layout = assistant.LayoutFrom(decl.Layout)
	}
	for name, options := range decl.Evals {
		a.AddEval(name, options)
	}
	r.applyAttrs(el, id, decl.Attrs, a)
	for _, b := range decl.Bindings {
		a.AddBinding(b)
	}
}

func (r *Resolver) wireAction(ns *Namespace, id string, el any, action *Action) {
	trigger, ok := el.(Triggerable)
	if !ok {
		log.WithField("id", id).Warn("scheme: element cannot trigger actions")
		return
	}
	target, ok := ns.Lookup(action.Target)
	if !ok {
		log.WithFields(log.Fields{"id": id, "target": action.Target}).Warn("scheme: action target not found")
		return
	}
	selector, args := action.Selector, action.Args
	trigger.SetAction(func() {
		if r.OnAction != nil {
			r.OnAction(target, selector, args)
			return
		}
		Invoke(target, selector, args)
	})
}

// Invoke calls selector on target when it is an Invoker, logging failures.
func Invoke(target any, selector string, args []any) {
	inv, ok := target.(Invoker)
	if !ok {
		log.WithFields(log.Fields{
			"target":   fmt.Sprintf("%T", target),
			"selector": selector,
		}).Warn("scheme: target does not respond to selectors")
		return
	}
	if err := inv.Invoke(selector, args...); err != nil {
		log.WithFields(log.Fields{
			"selector": selector,
			"err":      err,
		}).Warn("scheme: action failed")
	}
}
