package assistant

import "github.com/matthewbaird/bindery/internal/keypath"

// Registry attaches one Assistant per element identity. Elements must be
// comparable (pointer types).
type Registry struct {
	assistants map[keypath.Object]*Assistant
	order      []keypath.Object
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		assistants: make(map[keypath.Object]*Assistant),
	}
}

// For returns the assistant of element, attaching one on first use.
func (r *Registry) For(element keypath.Object) *Assistant {
	if a, ok := r.assistants[element]; ok {
		return a
	}
	a := New(element)
	r.assistants[element] = a
	r.order = append(r.order, element)
	return a
}

// Lookup returns the assistant of element without attaching one.
func (r *Registry) Lookup(element keypath.Object) (*Assistant, bool) {
	a, ok := r.assistants[element]
	return a, ok
}

// Each visits assistants in attachment order.
func (r *Registry) Each(fn func(keypath.Object, *Assistant)) {
	for _, e := range r.order {
		fn(e, r.assistants[e])
	}
}

// Remove unbinds and detaches the assistant of element.
func (r *Registry) Remove(element keypath.Object) {
	a, ok := r.assistants[element]
	if !ok {
		return
	}
	a.Unbind()
	delete(r.assistants, element)
	for i, e := range r.order {
		if e == element {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of attached assistants.
func (r *Registry) Len() int { return len(r.assistants) }
