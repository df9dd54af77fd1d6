// Package store is the persistence collaborator behind managed content
// providers: entity-scoped fetches with predicate, sort and limit, plus live
// change notification.
package store

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/matthewbaird/bindery/internal/keypath"
	"github.com/matthewbaird/bindery/internal/observe"
)

// IDKey is the identity field of every record.
const IDKey = "id"

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// Record is one stored entity instance.
type Record map[string]any

// ID returns the identity of r as a string.
func (r Record) ID() string {
	return keypath.String(r[IDKey])
}

func (r Record) ValueForKey(key string) (any, bool) {
	v, ok := r[key]
	return v, ok
}

func (r Record) SetValueForKey(key string, value any) error {
	r[key] = value
	return nil
}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Sort orders a fetch by one field.
type Sort struct {
	Field      string
	Descending bool
}

// Request is a fetch specification.
type Request struct {
	Entity string
	// Predicate is a predicate format; empty matches everything.
	Predicate string
	Vars      map[string]any
	Sort      []Sort
	Limit     int
	Offset    int
}

// ChangeKind classifies a Change.
type ChangeKind int

const (
	Inserted ChangeKind = iota
	Updated
	Deleted
)

func (k ChangeKind) String() string {
	switch k {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change describes one saved mutation.
type Change struct {
	Entity string
	Kind   ChangeKind
	Record Record
}

// Store is implemented by Memory and SQL.
type Store interface {
	Fetch(ctx context.Context, req Request) ([]Record, error)
	Insert(ctx context.Context, entity string, rec Record) (Record, error)
	Update(ctx context.Context, entity string, rec Record) error
	Delete(ctx context.Context, entity, id string) error
	// Observe calls fn after every saved change to entity. fn may run on
	// the goroutine that performed the write.
	Observe(entity string, fn func(Change)) observe.Subscription
}

// notifier fans changes out to per-entity observers.
type notifier struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]func(Change)
}

func (n *notifier) observe(entity string, fn func(Change)) observe.Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[string]map[int]func(Change))
	}
	if n.subs[entity] == nil {
		n.subs[entity] = make(map[int]func(Change))
	}
	id := n.next
	n.next++
	n.subs[entity][id] = fn
	return observe.CancelFunc(func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs[entity], id)
	})
}

func (n *notifier) notify(c Change) {
	n.mu.Lock()
	fns := make([]func(Change), 0, len(n.subs[c.Entity]))
	for _, fn := range n.subs[c.Entity] {
		fns = append(fns, fn)
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}
