// Package session hosts live screens for remote renderers. Each session
// owns one screen and streams every element change it makes.
package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/bdlm/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/matthewbaird/bindery/internal/content"
	"github.com/matthewbaird/bindery/internal/element"
	"github.com/matthewbaird/bindery/internal/mainloop"
	"github.com/matthewbaird/bindery/internal/observe"
	"github.com/matthewbaird/bindery/internal/scheme"
	"github.com/matthewbaird/bindery/internal/screen"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// Event types.
const (
	EventProperty = "property"
	EventRows     = "rows"
	EventAlert    = "alert"
)

// eventBuffer bounds the events queued for a slow reader.
const eventBuffer = 256

// Runner executes funcs on the goroutine that owns the screens.
type Runner interface {
	mainloop.Poster
	Sync(fn func()) bool
}

// Row is one applied list change.
type Row struct {
	Kind  string `json:"kind"`
	At    string `json:"at,omitempty"`
	NewAt string `json:"new_at,omitempty"`
	Item  any    `json:"item,omitempty"`
}

// Event is one change pushed to the renderer.
type Event struct {
	Type    string        `json:"type"`
	Element string        `json:"element,omitempty"`
	Key     string        `json:"key,omitempty"`
	Value   any           `json:"value,omitempty"`
	Reload  bool          `json:"reload,omitempty"`
	Rows    []any         `json:"rows,omitempty"`
	Changes []Row         `json:"changes,omitempty"`
	Alert   *screen.Alert `json:"alert,omitempty"`
}

// Session holds one connection's screen.
type Session struct {
	ID        string    `json:"id"`
	Document  string    `json:"document"`
	ScreenID  string    `json:"screen"`
	CreatedAt time.Time `json:"created_at"`

	mu         sync.Mutex
	lastActive time.Time
	screen     *screen.Screen
	run        Runner
	events     chan Event
	subs       observe.Group
	closed     bool
}

func newSession(document, screenID string, run Runner) *Session {
	now := time.Now()
	return &Session{
		ID:         uuid.New().String(),
		Document:   document,
		ScreenID:   screenID,
		CreatedAt:  now,
		lastActive: now,
		run:        run,
		events:     make(chan Event, eventBuffer),
	}
}

// Events delivers changes until the session closes.
func (s *Session) Events() <-chan Event { return s.events }

// Touch updates the last activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) LastActiveAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// IsExpired returns true if the session has exceeded the given max age.
func (s *Session) IsExpired(maxAge time.Duration) bool {
	return time.Since(s.CreatedAt) > maxAge
}

// IsIdle returns true if the session has been idle longer than the timeout.
func (s *Session) IsIdle(timeout time.Duration) bool {
	return time.Since(s.LastActiveAt()) > timeout
}

// HandleError makes the session the screen's error surface.
func (s *Session) HandleError(title, message string) {
	log.WithFields(log.Fields{"session": s.ID, "title": title, "message": message}).Info("session: alert")
	s.emit(Event{Type: EventAlert, Alert: &screen.Alert{Title: title, Message: message}})
}

// emit runs on the loop.
func (s *Session) emit(e Event) {
	if s.closed {
		return
	}
	select {
	case s.events <- e:
	default:
		log.WithFields(log.Fields{"session": s.ID, "type": e.Type, "element": e.Element}).Warn("session: event dropped, reader too slow")
	}
}

// watch subscribes to every element of the loaded screen. Runs on the loop.
func (s *Session) watch() {
	for _, el := range s.screen.Elements() {
		obs, ok := el.(observe.Observable)
		if !ok {
			continue
		}
		id := identifier(el)
		s.subs.Add(obs.Observe(observe.Any, func(key string) { s.changed(id, el, key) }))
	}
}

func identifier(el any) string {
	if i, ok := el.(scheme.Identifiable); ok {
		return i.Identifier()
	}
	return ""
}

// stored is an element with a plain property store.
type stored interface {
	Keys() []string
	Get(key string) any
}

// changed turns one element notification into an event. Only stored
// properties are reported; the "value" alias and object-valued keys such
// as provider and content are skipped.
func (s *Session) changed(id string, el any, key string) {
	if list, ok := el.(*element.ListView); ok && key == element.KeyRows {
		s.emit(rowsEvent(id, list))
		return
	}
	st, ok := el.(stored)
	if !ok || !slices.Contains(st.Keys(), key) {
		return
	}
	s.emit(Event{Type: EventProperty, Element: id, Key: key, Value: st.Get(key)})
}

func rowsEvent(id string, list *element.ListView) Event {
	batch := list.LastBatch()
	if len(batch) == 0 {
		return Event{Type: EventRows, Element: id, Reload: true, Rows: list.Rows()}
	}
	e := Event{Type: EventRows, Element: id, Changes: make([]Row, 0, len(batch))}
	for _, c := range batch {
		row := Row{Kind: c.Kind.String(), Item: c.Item}
		if c.At != content.NoIndex {
			row.At = c.At.String()
		}
		if c.NewAt != content.NoIndex {
			row.NewAt = c.NewAt.String()
		}
		e.Changes = append(e.Changes, row)
	}
	return e
}

// do runs fn on the loop unless the session is closed.
func (s *Session) do(fn func() error) error {
	var err error
	ok := s.run.Sync(func() {
		if s.closed {
			err = ErrClosed
			return
		}
		err = fn()
	})
	if !ok {
		return errors.Wrap(ErrClosed, "loop stopped")
	}
	s.Touch()
	return err
}

// Trigger fires the action of element id.
func (s *Session) Trigger(id string) error {
	return s.do(func() error { return s.screen.Trigger(id) })
}

// Set writes value into key of element id.
func (s *Session) Set(id, key string, value any) error {
	return s.do(func() error { return s.screen.Set(id, key, value) })
}

// Refresh refetches every provider of the screen.
func (s *Session) Refresh(ctx context.Context) error {
	return s.do(func() error {
		s.screen.Fetch(ctx)
		return nil
	})
}

// State is a point-in-time view of a session's screen.
type State struct {
	Elements map[string]map[string]any `json:"elements"`
	Rows     map[string][]any          `json:"rows,omitempty"`
	Statuses map[string]string         `json:"statuses,omitempty"`
}

// Snapshot reads the screen state.
func (s *Session) Snapshot() (State, error) {
	var st State
	err := s.do(func() error {
		st = snapshot(s.screen)
		return nil
	})
	return st, err
}

func snapshot(scr *screen.Screen) State {
	st := State{Elements: scr.Snapshot(), Rows: map[string][]any{}, Statuses: map[string]string{}}
	for _, el := range scr.Elements() {
		if list, ok := el.(*element.ListView); ok {
			st.Rows[list.Identifier()] = list.Rows()
		}
	}
	for id, status := range scr.Statuses() {
		st.Statuses[id] = string(status)
	}
	return st
}

// Close unbinds the screen and ends the event stream. It is idempotent.
func (s *Session) Close() {
	if !s.run.Sync(s.close) {
		s.close()
	}
}

func (s *Session) close() {
	if s.closed {
		return
	}
	s.subs.Cancel()
	if s.screen != nil {
		s.screen.Close()
	}
	s.closed = true
	close(s.events)
}
