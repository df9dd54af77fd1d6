// Package action runs named asynchronous operations and tracks their
// lifecycle. A Controller dispatches an action through a Performer and
// publishes Start, Ready, Success and Error events on a Bus; a
// StatusController folds those events into an observable state.
package action

import (
	"context"
	"sync"

	"github.com/bdlm/log"

	"github.com/matthewbaird/bindery/internal/observe"
)

// Kind is one of the four lifecycle events of an action.
type Kind int

const (
	Start Kind = iota
	Ready
	Success
	Error
)

func (k Kind) String() string {
	switch k {
	case Start:
		return "Start"
	case Ready:
		return "Ready"
	case Success:
		return "Success"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// Topic renders the notification name of k for action, e.g. "loginStart".
func (k Kind) Topic(action string) string {
	return action + k.String()
}

// Event is published on every lifecycle step. Payload carries the result
// of Success; Err is set on Error.
type Event struct {
	Action    string
	Requester string
	Kind      Kind
	Payload   any
	Err       error
}

// Topic is the event's notification name.
func (e Event) Topic() string { return e.Kind.Topic(e.Action) }

// Handler processes events.
type Handler interface {
	HandleEvent(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt Event) error

func (f HandlerFunc) HandleEvent(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Bus delivers events to the subscribers of their action. Publish calls
// handlers synchronously, in subscription order, on the caller's goroutine,
// which is the loop owning the controllers.
type Bus struct {
	mu   sync.RWMutex
	next int
	subs []subscriber
}

type subscriber struct {
	id      int
	name    string
	action  string
	handler Handler
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers h for the events of action, or of every action when
// action is empty.
func (b *Bus) Subscribe(name, action string, h Handler) observe.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs = append(b.subs, subscriber{id: id, name: name, action: action, handler: h})
	return observe.CancelFunc(func() { b.unsubscribe(id) })
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

func (b *Bus) Publish(ctx context.Context, evt Event) {
	b.mu.RLock()
	subs := append([]subscriber(nil), b.subs...)
	b.mu.RUnlock()

	for _, s := range subs {
		if s.action != "" && s.action != evt.Action {
			continue
		}
		if err := s.handler.HandleEvent(ctx, evt); err != nil {
			log.WithFields(log.Fields{
				"subscriber": s.name,
				"topic":      evt.Topic(),
				"err":        err,
			}).Warn("action: handler error")
		}
	}
}

// LogHandler logs every event it receives.
func LogHandler() Handler {
	return HandlerFunc(func(_ context.Context, evt Event) error {
		fields := log.Fields{"topic": evt.Topic(), "requester": evt.Requester}
		if evt.Err != nil {
			fields["err"] = evt.Err
		}
		log.WithFields(fields).Debug("action event")
		return nil
	})
}
