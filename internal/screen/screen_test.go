package screen

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/bindery/internal/action"
	"github.com/matthewbaird/bindery/internal/content"
	"github.com/matthewbaird/bindery/internal/element"
	"github.com/matthewbaird/bindery/internal/mainloop"
	"github.com/matthewbaird/bindery/internal/scheme"
	"github.com/matthewbaird/bindery/internal/store"
)

const tasksScheme = `{
  "Tasks": {
    "objects": {
      "tasks": {
        "type": "ManagedObjects",
        "attrs": {"entity": "task", "sortByFields": ["rank"]},
        "outlets": {"store": "db"}
      },
      "summary": {
        "type": "Collection",
        "dependency": "tasks",
        "attrs": {
          "entity": "task",
          "sortByFields": ["rank"],
          "functions": ["takeLast:2"],
          "resultChain": ["map:title", "joinedBy:, "]
        },
        "outlets": {"store": "db"}
      },
      "save": {"type": "ActionController", "attrs": {"action": "save"}},
      "saveStatus": {"type": "StatusController", "attrs": {"action": "save"}}
    },
    "elements": {
      "list": {"type": "ListView", "outlets": {"provider": "tasks"}},
      "count": {"type": "Label", "bindings": [{"from": "tasks.totalCount", "format": "%@ tasks"}]},
      "empty": {"type": "Label", "bindings": [{"to": "hidden", "from": "tasks.totalCount", "predicateFormat": "self > 0"}]},
      "latest": {"type": "Label", "bindings": [{"from": "summary.value"}]},
      "spinner": {"type": "ActivityIndicator", "bindings": [{"to": "animating", "from": "saveStatus.isInProgress"}]},
      "add": {
        "type": "Button",
        "attrs": {"title": "Add"},
        "action": {"target": "save", "selector": "performNow", "args": [{"title": "d"}]}
      }
    }
  }
}`

type fixture struct {
	t       *testing.T
	loop    *mainloop.Loop
	screen  *Screen
	store   *store.Memory
	alerts  *Alerts
	success chan action.Event
	failure chan action.Event
}

func newFixture(t *testing.T, doc string, perf func(*store.Memory) action.Performer) *fixture {
	t.Helper()
	d, err := scheme.Parse([]byte(doc))
	require.NoError(t, err)

	l := mainloop.New()
	go l.Run(context.Background())
	t.Cleanup(l.Stop)

	mem := store.NewMemory()
	for _, r := range []store.Record{
		{"id": "a", "title": "a", "rank": 1},
		{"id": "b", "title": "b", "rank": 2},
		{"id": "c", "title": "c", "rank": 3},
	} {
		_, err := mem.Insert(context.Background(), "task", r)
		require.NoError(t, err)
	}

	f := &fixture{
		t:       t,
		loop:    l,
		store:   mem,
		alerts:  &Alerts{},
		success: make(chan action.Event, 8),
		failure: make(chan action.Event, 8),
	}
	f.screen = New("Tasks", d, Options{Performer: perf(mem), Post: l, Surface: f.alerts})
	f.screen.Provide("db", mem)
	f.screen.Env.Bus.Subscribe("test", "", action.HandlerFunc(func(_ context.Context, evt action.Event) error {
		switch evt.Kind {
		case action.Success:
			f.success <- evt
		case action.Error:
			f.failure <- evt
		}
		return nil
	}))
	return f
}

func (f *fixture) do(fn func()) {
	f.t.Helper()
	require.True(f.t, f.loop.Sync(fn))
}

func (f *fixture) snapshot(id string) map[string]any {
	obj, ok := f.screen.Lookup(id)
	require.True(f.t, ok, id)
	return obj.(element.Element).Snapshot()
}

func wait(t *testing.T, ch <-chan action.Event) action.Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for action event")
		return action.Event{}
	}
}

func insertingPerformer(mem *store.Memory) action.Performer {
	return action.PerformerFunc(func(ctx context.Context, req action.Request) (any, error) {
		params, _ := req.Params.(map[string]any)
		rec, err := mem.Insert(ctx, "task", store.Record{"title": params["title"], "rank": 4})
		return rec, err
	})
}

func TestScreen_LoadBindsEverything(t *testing.T) {
	f := newFixture(t, tasksScheme, insertingPerformer)
	f.do(func() {
		require.NoError(t, f.screen.Load(context.Background()))

		snap := f.screen.Snapshot()
		assert.Equal(t, "3 tasks", snap["count"]["text"])
		assert.Equal(t, true, snap["empty"]["hidden"])
		assert.Equal(t, "b, c", snap["latest"]["text"])
		assert.Equal(t, false, snap["spinner"]["animating"])
		assert.Equal(t, "Add", snap["add"]["title"])

		obj, _ := f.screen.Lookup("list")
		assert.Len(t, obj.(*element.ListView).Rows(), 3)

		prepared := f.screen.Prepared()
		require.GreaterOrEqual(t, len(prepared), 2)
		assert.Equal(t, "tasks", prepared[0].Identifier())
		assert.Equal(t, "summary", prepared[1].Identifier())
		assert.Len(t, f.screen.Providers(), 2)
	})
}

func TestScreen_ActionDrivesStatusAndContent(t *testing.T) {
	f := newFixture(t, tasksScheme, insertingPerformer)
	f.do(func() {
		require.NoError(t, f.screen.Load(context.Background()))
		require.NoError(t, f.screen.Trigger("add"))
		assert.Equal(t, true, f.snapshot("spinner")["animating"])
		assert.Equal(t, action.InProgress, f.screen.Statuses()["saveStatus"])
	})
	evt := wait(t, f.success)
	assert.Equal(t, "d", evt.Payload.(store.Record)["title"])

	f.do(func() {
		snap := f.screen.Snapshot()
		assert.Equal(t, "4 tasks", snap["count"]["text"])
		assert.Equal(t, "c, d", snap["latest"]["text"])
		assert.Equal(t, false, snap["spinner"]["animating"])
		assert.Equal(t, action.IsSuccess, f.screen.Statuses()["saveStatus"])
		obj, _ := f.screen.Lookup("list")
		assert.Len(t, obj.(*element.ListView).Rows(), 4)
	})
}

func TestScreen_FailureIsSurfaced(t *testing.T) {
	f := newFixture(t, tasksScheme, func(*store.Memory) action.Performer {
		return action.PerformerFunc(func(context.Context, action.Request) (any, error) {
			return nil, &action.TransportError{Status: 503}
		})
	})
	f.do(func() {
		require.NoError(t, f.screen.Load(context.Background()))
		require.NoError(t, f.screen.Trigger("add"))
	})
	wait(t, f.failure)
	f.do(func() {
		alerts := f.alerts.List()
		require.Len(t, alerts, 1)
		assert.Equal(t, "save", alerts[0].Title)
		assert.Contains(t, alerts[0].Message, "503")
		assert.Equal(t, action.IsFailure, f.screen.Statuses()["saveStatus"])
	})
}

func TestScreen_TriggerUnknown(t *testing.T) {
	f := newFixture(t, tasksScheme, insertingPerformer)
	f.do(func() {
		require.NoError(t, f.screen.Load(context.Background()))
		assert.True(t, errors.Is(f.screen.Trigger("nope"), ErrNoElement))
		assert.Error(t, f.screen.Trigger("tasks"))
	})
}

func TestScreen_SetFeedsBindings(t *testing.T) {
	doc := `{"Form": {
	  "elements": {
	    "name": {"type": "TextField"},
	    "greeting": {"type": "Label", "bindings": [{"from": "name.text", "format": "Hello, %@!", "placeholder": "Who are you?"}]}
	  }
	}}`
	f := newFixture(t, doc, insertingPerformer)
	f.screen.ID = "Form"
	f.do(func() {
		require.NoError(t, f.screen.Load(context.Background()))
		assert.Equal(t, "Who are you?", f.snapshot("greeting")["text"])
		require.NoError(t, f.screen.Set("name", "text", "Ann"))
		assert.Equal(t, "Hello, Ann!", f.screen.Snapshot()["greeting"]["text"])
	})
}

func TestScreen_DependencyCyclePanics(t *testing.T) {
	doc := `{"Loop": {"objects": {
	  "a": {"type": "Object", "dependency": "b"},
	  "b": {"type": "Object", "dependency": "a"}
	}}}`
	f := newFixture(t, doc, insertingPerformer)
	f.screen.ID = "Loop"
	assert.Panics(t, func() { _ = f.screen.Load(context.Background()) })
}

func TestScreen_MissingScreen(t *testing.T) {
	f := newFixture(t, tasksScheme, insertingPerformer)
	f.screen.ID = "Nope"
	assert.Error(t, f.screen.Load(context.Background()))
}

func TestScreen_CloseUnbinds(t *testing.T) {
	f := newFixture(t, tasksScheme, insertingPerformer)
	f.do(func() {
		require.NoError(t, f.screen.Load(context.Background()))
		f.screen.Close()
	})
	_, err := f.store.Insert(context.Background(), "task", store.Record{"title": "e", "rank": 9})
	require.NoError(t, err)
	f.do(func() {})
	f.do(func() {
		assert.Equal(t, "3 tasks", f.screen.Snapshot()["count"]["text"])
	})
}

// itemsProvider aliases content.Items so the embedded field is not named
// Items and does not shadow the promoted Items method.
type itemsProvider = content.Items

// recordingItems logs the identifier of every provider as it fetches.
type recordingItems struct {
	*itemsProvider
	log *[]string
}

func (r *recordingItems) Fetch(ctx context.Context) error {
	*r.log = append(*r.log, r.Identifier())
	return r.itemsProvider.Fetch(ctx)
}

func TestScreen_FetchFollowsDependencies(t *testing.T) {
	// detail is declared first but depends on master.
	doc := `{"Chain": {"objects": {
	  "detail": {"type": "Recorded", "dependency": "master"},
	  "master": {"type": "Recorded", "dependency": "root"},
	  "root": {"type": "Recorded"},
	  "loose": {"type": "Recorded"}
	}}}`
	var fetched []string
	fac := scheme.NewFactory()
	fac.Register("Recorded", func() any { return &recordingItems{itemsProvider: content.NewItems(), log: &fetched} })

	f := newFixture(t, doc, insertingPerformer)
	f.screen.ID = "Chain"
	f.screen.Resolver.Factory = fac
	f.do(func() {
		require.NoError(t, f.screen.Load(context.Background()))
	})

	var prepared []string
	for _, n := range f.screen.Prepared() {
		prepared = append(prepared, n.Identifier())
	}
	assert.Equal(t, prepared, fetched)
	assert.Less(t, indexOf(fetched, "root"), indexOf(fetched, "master"))
	assert.Less(t, indexOf(fetched, "master"), indexOf(fetched, "detail"))
	assert.Contains(t, fetched, "loose")
}

func indexOf(list []string, s string) int {
	for i, x := range list {
		if x == s {
			return i
		}
	}
	return -1
}
