// Package binding links a target property to an observed source property
// through an Evaluation.
package binding

import (
	"fmt"

	"github.com/bdlm/log"

	"github.com/matthewbaird/bindery/internal/evaluation"
	"github.com/matthewbaird/bindery/internal/keypath"
	"github.com/matthewbaird/bindery/internal/observe"
)

// ValueKey is the generic property a binding targets when no "to" is given.
const ValueKey = "value"

// Binding writes Perform(source[SourceKeyPath]) into Target[TargetKeyPath].
//
// Target and Observable are lookups, not ownership: a Binding never keeps
// them in any registry, and its only live reference to Observable is the
// subscription it cancels in Deactivate.
type Binding struct {
	*evaluation.Evaluation

	Target        keypath.Object
	TargetKeyPath string
	// SourceKeyPath is optional; when empty the whole source is the value.
	SourceKeyPath string
	Observable    any
	Order         int
	HasOrder      bool

	sub    *observe.Group
	bound  bool
	writes int
}

// New creates a binding for targetKeyPath reading sourceKeyPath.
func New(target keypath.Object, targetKeyPath, sourceKeyPath string, eval *evaluation.Evaluation) *Binding {
	if eval == nil {
		eval = &evaluation.Evaluation{}
	}
	return &Binding{
		Evaluation:    eval,
		Target:        target,
		TargetKeyPath: targetKeyPath,
		SourceKeyPath: sourceKeyPath,
	}
}

// Active reports whether the binding holds a live subscription.
func (b *Binding) Active() bool { return b.sub != nil }

// Writes counts target writes, for diagnostics.
func (b *Binding) Writes() int { return b.writes }

func (b *Binding) String() string {
	return fmt.Sprintf("%s <- %s", b.TargetKeyPath, b.SourceKeyPath)
}

// Bind swaps the observed object, pushes its current value into the target
// and starts observing it. It returns the pushed value.
func (b *Binding) Bind(observable any) any {
	b.Deactivate()
	b.Observable = observable
	b.bound = true
	v := b.Assign(observable)
	b.Activate()
	return v
}

// Assign reads source once, evaluates it and writes the target.
func (b *Binding) Assign(source any) any {
	if b.Target == nil {
		panic(fmt.Sprintf("binding %s: no target", b))
	}
	if b.TargetKeyPath == "" {
		panic(fmt.Sprintf("binding %s: no target key path", b))
	}

	raw := source
	if b.SourceKeyPath != "" {
		raw, _ = keypath.Get(source, b.SourceKeyPath)
	}
	v := b.Evaluation.Perform(raw)

	if err := keypath.Set(b.Target, b.TargetKeyPath, v); err != nil {
		log.WithFields(log.Fields{
			"to":   b.TargetKeyPath,
			"from": b.SourceKeyPath,
			"err":  err,
		}).Warn("binding: write failed")
		return v
	}
	b.writes++
	log.Debugf("binding: %s = %v", b.TargetKeyPath, v)
	return v
}

// Activate subscribes to the observable. It is a no-op when already active
// or when there is no observable or source key path.
func (b *Binding) Activate() {
	if b.sub != nil || b.Observable == nil || b.SourceKeyPath == "" {
		return
	}
	b.sub = b.subscribe()
}

// Deactivate cancels the live subscription, if any.
func (b *Binding) Deactivate() {
	if b.sub == nil {
		return
	}
	b.sub.Cancel()
	b.sub = nil
}

// Unbind deactivates and forgets the observable.
func (b *Binding) Unbind() {
	b.Deactivate()
	b.Observable = nil
	b.bound = false
}

// subscribe observes every Observable along the source path so that both a
// leaf change and the replacement of an intermediate object are seen.
func (b *Binding) subscribe() *observe.Group {
	g := &observe.Group{}
	cur := b.Observable
	for _, key := range keypath.Split(b.SourceKeyPath) {
		if key == keypath.Self {
			continue
		}
		if o, ok := cur.(observe.Observable); ok {
			g.Add(o.Observe(key, b.changed))
		}
		next, ok := keypath.ValueForKey(cur, key)
		if !ok {
			break
		}
		cur = next
	}
	return g
}

func (b *Binding) changed(string) {
	if !b.bound || b.sub == nil {
		return
	}
	// Re-subscribe: an intermediate object may have been replaced.
	b.sub.Cancel()
	b.sub = b.subscribe()
	b.Assign(b.Observable)
}
