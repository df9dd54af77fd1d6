package action

import (
	"context"
	"slices"
	"time"

	"github.com/bdlm/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/matthewbaird/bindery/internal/keypath"
	"github.com/matthewbaird/bindery/internal/mainloop"
	"github.com/matthewbaird/bindery/internal/object"
	"github.com/matthewbaird/bindery/internal/predicate"
	"github.com/matthewbaird/bindery/internal/scheme"
)

func init() {
	scheme.Register("ActionController", func() any { return NewController("") })
	scheme.Register("StatusController", func() any { return NewStatusController() })
}

// ErrorSurface shows user-visible failures.
type ErrorSurface interface {
	HandleError(title, message string)
}

// Env is what controllers need from the screen that owns them.
type Env struct {
	Performer Performer
	Bus       *Bus
	Registry  *Registry
	// Post runs completions on the loop. Nil runs them in place.
	Post    mainloop.Poster
	Surface ErrorSurface
}

func (e *Env) post(fn func()) {
	if e == nil || e.Post == nil {
		fn()
		return
	}
	e.Post.Post(fn)
}

// EnvSetter is implemented by objects that need an Env.
type EnvSetter interface {
	SetEnv(*Env)
}

// Controller dispatches one named action.
type Controller struct {
	object.Base

	Action    string
	Requester string
	// Params is used when Perform is invoked without parameters.
	Params any
	// Delay debounces Perform.
	Delay time.Duration
	// Next is performed after a success with the result, or with the input
	// parameters when the result is nil.
	Next *Controller

	NeedsAuthCodes []int
	AuthHandler    func(error)
	ErrorHandler   func(title, message string)
	ErrorTitle     string
	ErrorMessage   string
	// OnResult is called with every successful result.
	OnResult func(any)

	env        *Env
	timer      *time.Timer
	gen        uint64
	dispatches int
}

func NewController(action string) *Controller {
	return &Controller{Action: action, Requester: uuid.NewString()}
}

func (c *Controller) SetEnv(env *Env) { c.env = env }

func (c *Controller) key() Key {
	return Key{Action: c.Action, Requester: c.Requester}
}

// Dispatches counts requests actually sent to the performer.
func (c *Controller) Dispatches() int { return c.dispatches }

// InFlight reports whether a request is pending completion.
func (c *Controller) InFlight() bool {
	if c.env == nil || c.env.Registry == nil {
		return false
	}
	_, ok := c.env.Registry.requests[c.key()]
	return ok
}

// Perform dispatches params after Delay. A call made while an earlier one
// is still delayed or in flight replaces it.
func (c *Controller) Perform(params any) {
	c.stopTimer()
	if c.env != nil && c.env.Registry != nil {
		c.env.Registry.Cancel(c.key())
	}
	if c.Delay <= 0 {
		c.dispatch(params)
		return
	}
	gen := c.gen
	c.timer = time.AfterFunc(c.Delay, func() {
		c.env.post(func() {
			if gen != c.gen {
				return
			}
			c.timer = nil
			c.dispatch(params)
		})
	})
}

// PerformNow cancels anything pending and dispatches immediately.
func (c *Controller) PerformNow(params any) {
	c.stopTimer()
	if c.env != nil && c.env.Registry != nil {
		c.env.Registry.Cancel(c.key())
	}
	c.dispatch(params)
}

// Cancel drops a delayed dispatch and cancels the in-flight request. The
// latter is reported as an Error event carrying ErrCanceled.
func (c *Controller) Cancel() {
	c.stopTimer()
	if c.env == nil || c.env.Registry == nil {
		return
	}
	if c.env.Registry.Cancel(c.key()) && c.env.Bus != nil {
		c.env.Bus.Publish(context.Background(), Event{Action: c.Action, Requester: c.Requester, Kind: Error, Err: ErrCanceled})
	}
}

func (c *Controller) stopTimer() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) dispatch(params any) {
	env := c.env
	if env == nil || env.Performer == nil || env.Registry == nil || env.Bus == nil {
		log.WithFields(log.Fields{"action": c.Action, "id": c.Identifier()}).Warn("action: controller has no environment, not dispatching")
		return
	}
	if params == nil {
		params = c.Params
	}
	ctx, cancel := context.WithCancel(context.Background())
	key := c.key()
	token := env.Registry.Add(key, cancel)
	c.dispatches++
	log.Debugf("action: dispatching %s for %s", c.Action, c.Requester)
	env.Bus.Publish(ctx, Event{Action: c.Action, Requester: c.Requester, Kind: Start, Payload: params})

	req := Request{
		Action: c.Action,
		Params: params,
		Ready: func() {
			env.post(func() {
				if env.Registry.Pending(key, token) {
					env.Bus.Publish(ctx, Event{Action: c.Action, Requester: c.Requester, Kind: Ready})
				}
			})
		},
	}
	go func() {
		result, err := env.Performer.Perform(ctx, req)
		env.post(func() {
			if !env.Registry.Complete(key, token) {
				log.Debugf("action: dropping stale completion of %s", c.Action)
				return
			}
			cancel()
			if err != nil {
				c.fail(err)
				return
			}
			c.succeed(params, result)
		})
	}()
}

func (c *Controller) succeed(params, result any) {
	c.env.Bus.Publish(context.Background(), Event{Action: c.Action, Requester: c.Requester, Kind: Success, Payload: result})
	if c.OnResult != nil {
		c.OnResult(result)
	}
	if c.Next != nil {
		forward := result
		if forward == nil {
			forward = params
		}
		c.Next.Perform(forward)
	}
}

func (c *Controller) fail(err error) {
	c.env.Bus.Publish(context.Background(), Event{Action: c.Action, Requester: c.Requester, Kind: Error, Err: err})
	if errors.Is(err, ErrCanceled) {
		return
	}
	var terr *TransportError
	if errors.As(err, &terr) && slices.Contains(c.NeedsAuthCodes, terr.Status) && c.AuthHandler != nil {
		c.AuthHandler(err)
		return
	}
	title, message := c.Action, err.Error()
	if c.ErrorTitle != "" {
		title = c.ErrorTitle
	}
	if c.ErrorMessage != "" {
		message = c.ErrorMessage
	}
	switch {
	case c.ErrorHandler != nil:
		c.ErrorHandler(title, message)
	case c.env.Surface != nil:
		c.env.Surface.HandleError(title, message)
	default:
		log.WithFields(log.Fields{"action": c.Action, "err": err}).Warn("action: failed")
	}
}

// Invoke runs a selector from a scheme action: "perform", "performNow" or
// "cancel". The first argument, if any, is the parameter set.
func (c *Controller) Invoke(selector string, args ...any) error {
	var params any
	if len(args) > 0 {
		params = args[0]
	}
	switch selector {
	case "perform":
		c.Perform(params)
	case "performNow":
		c.PerformNow(params)
	case "cancel":
		c.Cancel()
	default:
		return errors.Errorf("action controller: unknown selector %q", selector)
	}
	return nil
}

func (c *Controller) Properties() keypath.Properties {
	props := c.Base.Properties()
	props["action"] = keypath.Property{
		Get: func() any { return c.Action },
		Set: func(v any) error { c.Action = keypath.String(v); return nil },
	}
	props["params"] = keypath.Property{
		Get: func() any { return c.Params },
		Set: func(v any) error { c.Params = v; return nil },
	}
	props["delay"] = keypath.Property{
		Get: func() any { return c.Delay.Seconds() },
		Set: func(v any) error {
			n, ok := predicate.Number(v)
			if !ok {
				return errors.Errorf("delay: expected seconds, got %T", v)
			}
			c.Delay = time.Duration(n * float64(time.Second))
			return nil
		},
	}
	props["next"] = keypath.Property{
		Get: func() any { return c.Next },
		Set: func(v any) error {
			next, ok := v.(*Controller)
			if !ok {
				return errors.Errorf("next: expected an action controller, got %T", v)
			}
			c.Next = next
			return nil
		},
	}
	props["needsAuthCodes"] = keypath.Property{
		Get: func() any { return c.NeedsAuthCodes },
		Set: func(v any) error {
			list, ok := v.([]any)
			if !ok {
				return errors.Errorf("needsAuthCodes: expected a list, got %T", v)
			}
			c.NeedsAuthCodes = c.NeedsAuthCodes[:0]
			for _, x := range list {
				if n, ok := predicate.Number(x); ok {
					c.NeedsAuthCodes = append(c.NeedsAuthCodes, int(n))
				}
			}
			return nil
		},
	}
	props["errorTitle"] = keypath.Property{
		Get: func() any { return c.ErrorTitle },
		Set: func(v any) error { c.ErrorTitle = keypath.String(v); return nil },
	}
	props["errorMessage"] = keypath.Property{
		Get: func() any { return c.ErrorMessage },
		Set: func(v any) error { c.ErrorMessage = keypath.String(v); return nil },
	}
	props["inFlight"] = keypath.Property{Get: func() any { return c.InFlight() }}
	return props
}
