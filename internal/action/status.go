package action

import (
	"context"

	"github.com/bdlm/log"
	"github.com/pkg/errors"

	"github.com/matthewbaird/bindery/internal/keypath"
	"github.com/matthewbaird/bindery/internal/object"
	"github.com/matthewbaird/bindery/internal/observe"
)

// Status is the state of an action.
type Status string

const (
	Initial    Status = "initial"
	InProgress Status = "inProgress"
	IsReady    Status = "isReady"
	IsSuccess  Status = "isSuccess"
	IsFailure  Status = "isFailure"
)

// Transitions lists the states reachable from each state. Any state may
// restart; Initial is reached again through cancellation.
var Transitions = map[Status][]Status{
	Initial:    {InProgress},
	InProgress: {IsReady, IsSuccess, IsFailure, InProgress, Initial},
	IsReady:    {IsSuccess, IsFailure, InProgress, Initial},
	IsSuccess:  {InProgress, Initial},
	IsFailure:  {InProgress, Initial},
}

// ValidateTransition checks whether moving from current to target is
// allowed by transitions.
func ValidateTransition(transitions map[Status][]Status, current, target Status) error {
	allowed, ok := transitions[current]
	if !ok {
		return errors.Errorf("unknown current state: %s", current)
	}
	for _, s := range allowed {
		if s == target {
			return nil
		}
	}
	return errors.Errorf("transition from %q to %q is not allowed", current, target)
}

// Target returns the state an event moves to. A cancellation error
// returns the action to Initial.
func Target(evt Event) Status {
	switch evt.Kind {
	case Start:
		return InProgress
	case Ready:
		return IsReady
	case Success:
		return IsSuccess
	default:
		if errors.Is(evt.Err, ErrCanceled) {
			return Initial
		}
		return IsFailure
	}
}

// Observable keys of a StatusController.
const (
	KeyStatus       = "status"
	KeyIsInProgress = "isInProgress"
	KeyIsReady      = "isReady"
	KeyIsSuccess    = "isSuccess"
	KeyIsFailure    = "isFailure"
	KeyError        = "error"
	KeyResult       = "result"
)

// StatusController follows the events of one action and exposes the
// resulting state to bindings.
type StatusController struct {
	object.Base

	Action string

	status Status
	err    error
	result any
	sub    observe.Subscription
}

func NewStatusController() *StatusController {
	return &StatusController{status: Initial}
}

// Attach subscribes to bus, replacing any previous subscription.
func (s *StatusController) Attach(bus *Bus) {
	s.Detach()
	s.sub = bus.Subscribe("status:"+s.Identifier(), s.Action, HandlerFunc(func(_ context.Context, evt Event) error {
		return s.apply(evt)
	}))
}

// Detach stops following events.
func (s *StatusController) Detach() {
	if s.sub != nil {
		s.sub.Cancel()
		s.sub = nil
	}
}

// SetEnv attaches to the environment's bus.
func (s *StatusController) SetEnv(env *Env) {
	if env != nil && env.Bus != nil {
		s.Attach(env.Bus)
	}
}

func (s *StatusController) apply(evt Event) error {
	target := Target(evt)
	if err := ValidateTransition(Transitions, s.status, target); err != nil {
		log.WithFields(log.Fields{"action": s.Action, "topic": evt.Topic(), "err": err}).Debug("status: ignoring event")
		return nil
	}
	s.status = target
	switch evt.Kind {
	case Start:
		s.err, s.result = nil, nil
	case Success:
		s.err, s.result = nil, evt.Payload
	case Error:
		s.err = evt.Err
	}
	for _, k := range []string{KeyStatus, KeyIsInProgress, KeyIsReady, KeyIsSuccess, KeyIsFailure, KeyError, KeyResult} {
		s.Notify(k)
	}
	return nil
}

func (s *StatusController) Status() Status { return s.status }
func (s *StatusController) Err() error     { return s.err }
func (s *StatusController) Result() any    { return s.result }

func (s *StatusController) Properties() keypath.Properties {
	props := s.Base.Properties()
	props["action"] = keypath.Property{
		Get: func() any { return s.Action },
		Set: func(v any) error { s.Action = keypath.String(v); return nil },
	}
	props[KeyStatus] = keypath.Property{Get: func() any { return string(s.status) }}
	props[KeyIsInProgress] = keypath.Property{Get: func() any { return s.status == InProgress }}
	props[KeyIsReady] = keypath.Property{Get: func() any { return s.status == IsReady }}
	props[KeyIsSuccess] = keypath.Property{Get: func() any { return s.status == IsSuccess }}
	props[KeyIsFailure] = keypath.Property{Get: func() any { return s.status == IsFailure }}
	props[KeyError] = keypath.Property{Get: func() any {
		if s.err == nil {
			return nil
		}
		return s.err.Error()
	}}
	props[KeyResult] = keypath.Property{Get: func() any { return s.result }}
	return props
}
