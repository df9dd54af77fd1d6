// Package observe provides explicit publish/subscribe change notification.
//
// Every subscription returns a handle that must be cancelled by its owner;
// nothing is released implicitly.
package observe

import (
	"sync"

	"github.com/matthewbaird/bindery/internal/keypath"
)

// Any subscribes to every key of a Subject.
const Any = "*"

// Subscription is a live observer registration.
type Subscription interface {
	Cancel()
}

// CancelFunc adapts a function to Subscription.
type CancelFunc func()

func (f CancelFunc) Cancel() {
	if f != nil {
		f()
	}
}

// Observable is implemented by objects whose properties can be watched.
type Observable interface {
	Observe(key string, fn func(key string)) Subscription
}

// Subject is an embeddable Observable.
type Subject struct {
	mu   sync.Mutex
	subs map[string][]*subscriber
}

type subscriber struct {
	fn       func(string)
	canceled bool
}

// Observe registers fn for changes to key. Use Any for every key.
func (s *Subject) Observe(key string, fn func(key string)) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[string][]*subscriber)
	}
	sub := &subscriber{fn: fn}
	s.subs[key] = append(s.subs[key], sub)
	return CancelFunc(func() { s.remove(key, sub) })
}

func (s *Subject) remove(key string, sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.canceled {
		return
	}
	sub.canceled = true
	list := s.subs[key]
	for i, x := range list {
		if x == sub {
			s.subs[key] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(s.subs[key]) == 0 {
		delete(s.subs, key)
	}
}

// Notify calls the observers of key, then the observers of Any.
func (s *Subject) Notify(key string) {
	s.mu.Lock()
	list := append([]*subscriber(nil), s.subs[key]...)
	list = append(list, s.subs[Any]...)
	s.mu.Unlock()
	for _, sub := range list {
		if !sub.canceled {
			sub.fn(key)
		}
	}
}

// Count returns the number of live observers of key.
func (s *Subject) Count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[key])
}

// Group cancels several subscriptions as one.
type Group []Subscription

func (g *Group) Add(s Subscription) {
	if s != nil {
		*g = append(*g, s)
	}
}

func (g *Group) Cancel() {
	for _, s := range *g {
		s.Cancel()
	}
	*g = nil
}

// Value is an observable holder for a single value.
type Value struct {
	Subject
	v any
}

// NewValue returns a Value holding v.
func NewValue(v any) *Value {
	return &Value{v: v}
}

func (x *Value) Get() any {
	return x.v
}

// Set stores v and notifies "value" observers.
func (x *Value) Set(v any) {
	x.v = v
	x.Notify("value")
}

func (x *Value) Properties() keypath.Properties {
	return keypath.Properties{
		"value": {
			Get: x.Get,
			Set: func(v any) error { x.Set(v); return nil },
		},
	}
}
