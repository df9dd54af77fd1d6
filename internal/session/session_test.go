package session

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/bindery/internal/action"
	"github.com/matthewbaird/bindery/internal/mainloop"
	"github.com/matthewbaird/bindery/internal/scheme"
	"github.com/matthewbaird/bindery/internal/screen"
	"github.com/matthewbaird/bindery/internal/store"
)

const inbox = `{
  "Inbox": {
    "objects": {
      "notes": {"type": "ManagedObjects", "attrs": {"entity": "note", "sortByFields": ["rank"]}, "outlets": {"store": "db"}},
      "send": {"type": "ActionController", "attrs": {"action": "send"}}
    },
    "elements": {
      "list": {"type": "ListView", "outlets": {"provider": "notes"}},
      "name": {"type": "TextField"},
      "greeting": {"type": "Label", "bindings": [{"from": "name.text", "format": "Hello, %@!", "placeholder": "?"}]},
      "go": {"type": "Button", "attrs": {"title": "Send"}, "action": {"target": "send", "selector": "performNow"}}
    }
  },
  "Broken": {"objects": {
    "a": {"type": "Object", "dependency": "b"},
    "b": {"type": "Object", "dependency": "a"}
  }}
}`

func newManager(t *testing.T, perf action.Performer) (*Manager, *store.Memory) {
	t.Helper()
	doc, err := scheme.Parse([]byte(inbox))
	require.NoError(t, err)

	l := mainloop.New()
	go l.Run(context.Background())
	t.Cleanup(l.Stop)

	mem := store.NewMemory()
	_, err = mem.Insert(context.Background(), "note", store.Record{"id": "n1", "text": "first", "rank": 1})
	require.NoError(t, err)

	load := func(name string) (*scheme.Document, error) {
		if name != "main" {
			return nil, errors.Errorf("no document %q", name)
		}
		return doc, nil
	}
	m := NewManager(l, load, screen.Options{Performer: perf}, time.Hour, time.Hour)
	m.Provide("db", mem)
	t.Cleanup(m.CloseAll)
	return m, mem
}

func failing() action.Performer {
	return action.PerformerFunc(func(context.Context, action.Request) (any, error) {
		return nil, errors.New("offline")
	})
}

// next waits for the first event matching pred.
func next(t *testing.T, s *Session, pred func(Event) bool) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-s.Events():
			require.True(t, ok, "event stream closed")
			if pred(e) {
				return e
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestManager_Open(t *testing.T) {
	m, _ := newManager(t, failing())
	s, err := m.Open(context.Background(), "main", "Inbox")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Same(t, s, m.Get(s.ID))

	st, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "?", st.Elements["greeting"]["text"])
	require.Len(t, st.Rows["list"], 1)
	assert.Equal(t, "first", st.Rows["list"][0].(store.Record)["text"])
}

func TestManager_OpenErrors(t *testing.T) {
	m, _ := newManager(t, failing())
	_, err := m.Open(context.Background(), "other", "Inbox")
	assert.Error(t, err)
	_, err = m.Open(context.Background(), "main", "Missing")
	assert.Error(t, err)
	_, err = m.Open(context.Background(), "main", "Broken")
	assert.ErrorContains(t, err, "load screen Broken")
	assert.Empty(t, m.List())
}

func TestSession_SetStreamsProperties(t *testing.T) {
	m, _ := newManager(t, failing())
	s, err := m.Open(context.Background(), "main", "Inbox")
	require.NoError(t, err)

	require.NoError(t, s.Set("name", "text", "Ann"))
	e := next(t, s, func(e Event) bool { return e.Element == "greeting" })
	assert.Equal(t, Event{Type: EventProperty, Element: "greeting", Key: "text", Value: "Hello, Ann!"}, e)
}

func TestSession_StoreChangesStreamRows(t *testing.T) {
	m, mem := newManager(t, failing())
	s, err := m.Open(context.Background(), "main", "Inbox")
	require.NoError(t, err)

	_, err = mem.Insert(context.Background(), "note", store.Record{"id": "n0", "text": "zeroth", "rank": 0})
	require.NoError(t, err)
	e := next(t, s, func(e Event) bool { return e.Type == EventRows })
	assert.False(t, e.Reload)
	require.Len(t, e.Changes, 1)
	assert.Equal(t, "insert", e.Changes[0].Kind)
	assert.Equal(t, "0.0", e.Changes[0].NewAt)
}

func TestSession_FailureBecomesAlert(t *testing.T) {
	m, _ := newManager(t, failing())
	s, err := m.Open(context.Background(), "main", "Inbox")
	require.NoError(t, err)

	require.NoError(t, s.Trigger("go"))
	e := next(t, s, func(e Event) bool { return e.Type == EventAlert })
	require.NotNil(t, e.Alert)
	assert.Equal(t, "send", e.Alert.Title)
	assert.Contains(t, e.Alert.Message, "offline")

	assert.ErrorIs(t, s.Trigger("nope"), screen.ErrNoElement)
}

func TestSession_Close(t *testing.T) {
	m, _ := newManager(t, failing())
	s, err := m.Open(context.Background(), "main", "Inbox")
	require.NoError(t, err)

	m.Remove(s.ID)
	assert.Nil(t, m.Get(s.ID))
	for range s.Events() {
	}
	assert.ErrorIs(t, s.Set("name", "text", "x"), ErrClosed)
	s.Close()
}

func TestManager_CleanupIdle(t *testing.T) {
	m, _ := newManager(t, failing())
	m.idleTimeout = 0
	s, err := m.Open(context.Background(), "main", "Inbox")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	m.Cleanup()
	assert.Empty(t, m.List())
	assert.ErrorIs(t, s.Trigger("go"), ErrClosed)
}
