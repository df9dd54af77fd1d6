package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bdlm/log"
	"github.com/pkg/errors"

	"github.com/matthewbaird/bindery/internal/scheme"
	"github.com/matthewbaird/bindery/internal/screen"
)

// Loader returns the scheme document stored under name.
type Loader func(name string) (*scheme.Document, error)

// Manager handles session creation, lookup, and cleanup.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	run         Runner
	load        Loader
	opts        screen.Options
	provided    map[string]any
	maxAge      time.Duration
	idleTimeout time.Duration
}

// NewManager creates a session manager. Screens run on run and share the
// collaborators in opts; each session becomes its screen's surface.
func NewManager(run Runner, load Loader, opts screen.Options, maxAge, idleTimeout time.Duration) *Manager {
	opts.Post = run
	return &Manager{
		sessions:    make(map[string]*Session),
		run:         run,
		load:        load,
		opts:        opts,
		provided:    make(map[string]any),
		maxAge:      maxAge,
		idleTimeout: idleTimeout,
	}
}

// Provide makes obj available under id to every screen opened afterwards.
func (m *Manager) Provide(id string, obj any) {
	m.mu.Lock()
	m.provided[id] = obj
	m.mu.Unlock()
}

// Open loads screenID of the named document into a new session.
func (m *Manager) Open(ctx context.Context, document, screenID string) (*Session, error) {
	doc, err := m.load(document)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s/%s", document, screenID)
	}
	sess := newSession(document, screenID, m.run)
	opts := m.opts
	opts.Surface = sess
	scr := screen.New(screenID, doc, opts)
	m.mu.RLock()
	for id, obj := range m.provided {
		scr.Provide(id, obj)
	}
	m.mu.RUnlock()
	sess.screen = scr

	ran := m.run.Sync(func() {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Errorf("load screen %s: %v", screenID, r)
			}
		}()
		if err = scr.Load(ctx); err == nil {
			sess.watch()
		}
	})
	if !ran {
		return nil, errors.Wrap(ErrClosed, "loop stopped")
	}
	if err != nil {
		sess.Close()
		return nil, err
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()
	log.WithFields(log.Fields{"session": sess.ID, "screen": fmt.Sprintf("%s/%s", document, screenID)}).Info("session: opened")
	return sess, nil
}

// Get retrieves a session by ID. Returns nil if not found or expired.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	if s.IsExpired(m.maxAge) || s.IsIdle(m.idleTimeout) {
		m.Remove(id)
		return nil
	}
	return s
}

// List returns the live sessions, oldest first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Remove closes and forgets a session.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Cleanup removes all expired and idle sessions. Called periodically.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if s.IsExpired(m.maxAge) || s.IsIdle(m.idleTimeout) {
			delete(m.sessions, id)
			stale = append(stale, s)
		}
	}
	m.mu.Unlock()
	for _, s := range stale {
		s.Close()
	}
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	for _, s := range m.List() {
		m.Remove(s.ID)
	}
}
