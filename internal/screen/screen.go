// Package screen hosts one resolved scheme screen: it resolves the
// declaration, prepares the dependency chain, fetches content and keeps
// element bindings live. A Screen is not safe for concurrent use; all of
// its methods run on the loop that owns it.
package screen

import (
	"context"
	"sync"

	"github.com/bdlm/log"
	"github.com/pkg/errors"

	"github.com/matthewbaird/bindery/internal/action"
	"github.com/matthewbaird/bindery/internal/assistant"
	"github.com/matthewbaird/bindery/internal/content"
	_ "github.com/matthewbaird/bindery/internal/element"
	"github.com/matthewbaird/bindery/internal/keypath"
	"github.com/matthewbaird/bindery/internal/mainloop"
	"github.com/matthewbaird/bindery/internal/object"
	"github.com/matthewbaird/bindery/internal/scheme"
)

// ErrNoElement is returned for unknown element identifiers.
var ErrNoElement = errors.New("screen: no such element")

// Surface is the single user-visible error hook.
type Surface interface {
	HandleError(title, message string)
}

// Alert is one surfaced error.
type Alert struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Alerts is a Surface that logs and keeps every alert.
type Alerts struct {
	mu   sync.Mutex
	list []Alert
}

func (a *Alerts) HandleError(title, message string) {
	log.WithFields(log.Fields{"title": title, "message": message}).Warn("screen: error")
	a.mu.Lock()
	defer a.mu.Unlock()
	a.list = append(a.list, Alert{Title: title, Message: message})
}

// List returns the alerts received so far.
func (a *Alerts) List() []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Alert(nil), a.list...)
}

// Options configure a Screen. Zero values get working defaults.
type Options struct {
	Performer action.Performer
	Bus       *action.Bus
	Registry  *action.Registry
	Post      mainloop.Poster
	Surface   Surface
	Factory   *scheme.Factory
}

// Screen is one live screen.
type Screen struct {
	ID        string
	Doc       *scheme.Document
	Namespace *scheme.Namespace
	Resolver  *scheme.Resolver
	Env       *action.Env

	surface    Surface
	resolution *scheme.Resolution
	prepared   []object.Node
}

// New creates a screen for id of doc. Nothing is resolved until Load.
func New(id string, doc *scheme.Document, opts Options) *Screen {
	if opts.Bus == nil {
		opts.Bus = action.NewBus()
	}
	if opts.Registry == nil {
		opts.Registry = action.NewRegistry()
	}
	if opts.Post == nil {
		opts.Post = mainloop.Immediate{}
	}
	if opts.Surface == nil {
		opts.Surface = &Alerts{}
	}
	r := scheme.NewResolver()
	if opts.Factory != nil {
		r.Factory = opts.Factory
	}
	return &Screen{
		ID:        id,
		Doc:       doc,
		Namespace: scheme.NewNamespace(),
		Resolver:  r,
		surface:   opts.Surface,
		Env: &action.Env{
			Performer: opts.Performer,
			Bus:       opts.Bus,
			Registry:  opts.Registry,
			Post:      opts.Post,
			Surface:   opts.Surface,
		},
	}
}

// Provide makes obj available to the scheme under id before Load, for
// collaborators such as stores that the scheme references but does not
// declare.
func (s *Screen) Provide(id string, obj any) bool {
	return s.Namespace.Insert(id, obj)
}

// Surface returns the error hook.
func (s *Screen) Surface() Surface { return s.surface }

// HandleError forwards to the surface.
func (s *Screen) HandleError(title, message string) {
	s.surface.HandleError(title, message)
}

// Load runs the whole screen lifecycle: resolve, environment wiring,
// preparation, fetch and binding. Fetch failures are surfaced, not
// returned.
func (s *Screen) Load(ctx context.Context) error {
	res, err := s.Resolver.ResolveScreen(s.Doc, s.ID, s.Namespace)
	if err != nil {
		return errors.Wrapf(err, "load screen %s", s.ID)
	}
	s.resolution = res

	for _, obj := range res.Objects {
		s.wire(obj)
	}
	s.prepared = s.Resolver.Graph.PrepareAll(nodes(res.Objects))
	s.fetch(ctx)
	s.bind()
	log.Infof("screen %s: %d objects, %d elements", s.ID, len(res.Objects), len(res.Elements))
	return nil
}

func (s *Screen) wire(obj any) {
	if e, ok := obj.(action.EnvSetter); ok {
		e.SetEnv(s.Env)
	}
	if p, ok := obj.(interface{ SetPoster(mainloop.Poster) }); ok {
		p.SetPoster(s.Env.Post)
	}
}

func nodes(objs []any) []object.Node {
	out := make([]object.Node, 0, len(objs))
	for _, o := range objs {
		if n, ok := o.(object.Node); ok {
			out = append(out, n)
		}
	}
	return out
}

// Prepared lists the objects in preparation order.
func (s *Screen) Prepared() []object.Node { return s.prepared }

// fetchOrder lists the providers in preparation order, so a provider
// fetches after every object it depends on. Providers outside the graph
// follow in declaration order.
func (s *Screen) fetchOrder() []content.Provider {
	var out []content.Provider
	seen := make(map[content.Provider]bool)
	for _, n := range s.prepared {
		if p, ok := n.(content.Provider); ok && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range s.Providers() {
		if !seen[p] {
			out = append(out, p)
		}
	}
	return out
}

func (s *Screen) fetch(ctx context.Context) {
	for _, p := range s.fetchOrder() {
		if err := p.Fetch(ctx); err != nil {
			s.surface.HandleError("fetch", err.Error())
		}
	}
}

// Fetch refetches every provider.
func (s *Screen) Fetch(ctx context.Context) {
	s.fetch(ctx)
}

// bind binds every element assistant live against the namespace.
func (s *Screen) bind() {
	s.Resolver.Assistants.Each(func(_ keypath.Object, a *assistant.Assistant) {
		a.SetupObject(nil, s.Namespace, true)
	})
}

// Refresh re-runs every binding against its current source.
func (s *Screen) Refresh() {
	s.Resolver.Assistants.Each(func(_ keypath.Object, a *assistant.Assistant) {
		a.Refresh()
	})
}

// Providers lists the content providers among the screen's objects.
func (s *Screen) Providers() []content.Provider {
	if s.resolution == nil {
		return nil
	}
	var out []content.Provider
	for _, obj := range s.resolution.Objects {
		if p, ok := obj.(content.Provider); ok {
			out = append(out, p)
		}
	}
	return out
}

// Elements returns the resolved elements in declaration order.
func (s *Screen) Elements() []any {
	if s.resolution == nil {
		return nil
	}
	return s.resolution.Elements
}

// Lookup finds an object or element by identifier or alias.
func (s *Screen) Lookup(id string) (any, bool) {
	return s.Namespace.Lookup(id)
}

// Trigger fires the action of element id, as a tap would.
func (s *Screen) Trigger(id string) error {
	obj, ok := s.Namespace.Lookup(id)
	if !ok {
		return errors.Wrapf(ErrNoElement, "%q", id)
	}
	t, ok := obj.(interface{ Trigger() error })
	if !ok {
		return errors.Errorf("screen: %q cannot be triggered", id)
	}
	return t.Trigger()
}

// Set writes value into key of element id, as user input would.
func (s *Screen) Set(id, key string, value any) error {
	obj, ok := s.Namespace.Lookup(id)
	if !ok {
		return errors.Wrapf(ErrNoElement, "%q", id)
	}
	return keypath.Set(obj, key, value)
}

// Snapshot reads the properties of every element that can report them.
func (s *Screen) Snapshot() map[string]map[string]any {
	out := map[string]map[string]any{}
	for _, el := range s.Elements() {
		snap, ok := el.(interface {
			Identifier() string
			Snapshot() map[string]any
		})
		if ok {
			out[snap.Identifier()] = snap.Snapshot()
		}
	}
	return out
}

// Statuses reports the state of every status controller by identifier.
func (s *Screen) Statuses() map[string]action.Status {
	out := map[string]action.Status{}
	if s.resolution == nil {
		return out
	}
	for _, obj := range s.resolution.Objects {
		if sc, ok := obj.(*action.StatusController); ok {
			out[sc.Identifier()] = sc.Status()
		}
	}
	return out
}

// Close unbinds every element and cancels pending actions.
func (s *Screen) Close() {
	s.Resolver.Assistants.Each(func(_ keypath.Object, a *assistant.Assistant) {
		a.Unbind()
	})
	if s.resolution == nil {
		return
	}
	for _, obj := range s.resolution.Objects {
		switch o := obj.(type) {
		case *action.Controller:
			o.Cancel()
		case *action.StatusController:
			o.Detach()
		}
	}
}
