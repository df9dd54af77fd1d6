package wire

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/bindery/internal/mainloop"
	"github.com/matthewbaird/bindery/internal/scheme"
	"github.com/matthewbaird/bindery/internal/screen"
	"github.com/matthewbaird/bindery/internal/session"
)

const form = `{"Form": {"elements": {
  "name": {"type": "TextField"},
  "greeting": {"type": "Label", "bindings": [{"from": "name.text", "format": "Hello, %@!", "placeholder": "?"}]}
}}}`

// reply is a ServerMessage with its payload left raw.
type reply struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

func dial(t *testing.T, query string) (*websocket.Conn, context.Context) {
	t.Helper()
	doc, err := scheme.Parse([]byte(form))
	require.NoError(t, err)
	l := mainloop.New()
	go l.Run(context.Background())
	t.Cleanup(l.Stop)

	load := func(name string) (*scheme.Document, error) {
		if name != "forms" {
			return nil, errors.New("not found")
		}
		return doc, nil
	}
	sessions := session.NewManager(l, load, screen.Options{}, time.Hour, time.Hour)
	srv := httptest.NewServer(NewHandler(sessions))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn, ctx
}

func read(t *testing.T, ctx context.Context, conn *websocket.Conn) reply {
	t.Helper()
	var r reply
	require.NoError(t, wsjson.Read(ctx, conn, &r))
	return r
}

func TestHandler_Session(t *testing.T) {
	conn, ctx := dial(t, "document=forms&screen=Form")

	first := read(t, ctx, conn)
	require.Equal(t, "session", first.Type)
	var data SessionData
	require.NoError(t, json.Unmarshal(first.Data, &data))
	assert.NotEmpty(t, data.SessionID)
	assert.Equal(t, "?", data.State.Elements["greeting"]["text"])

	require.NoError(t, wsjson.Write(ctx, conn, ClientMessage{
		Type: "set", ID: "1",
		Data: json.RawMessage(`{"element": "name", "key": "text", "value": "Ann"}`),
	}))

	var ok, greeted bool
	for !ok || !greeted {
		r := read(t, ctx, conn)
		switch r.Type {
		case "ok":
			assert.Equal(t, "1", r.RequestID)
			ok = true
		case "event":
			var e session.Event
			require.NoError(t, json.Unmarshal(r.Data, &e))
			if e.Element == "greeting" {
				assert.Equal(t, "Hello, Ann!", e.Value)
				greeted = true
			}
		default:
			t.Fatalf("unexpected %s message", r.Type)
		}
	}

	require.NoError(t, wsjson.Write(ctx, conn, ClientMessage{Type: "ping", ID: "2"}))
	r := read(t, ctx, conn)
	for r.Type == "event" {
		r = read(t, ctx, conn)
	}
	assert.Equal(t, reply{Type: "pong", RequestID: "2"}, r)
}

func TestHandler_Errors(t *testing.T) {
	conn, ctx := dial(t, "document=forms&screen=Form")
	read(t, ctx, conn)

	require.NoError(t, wsjson.Write(ctx, conn, ClientMessage{Type: "trigger", ID: "1", Data: json.RawMessage(`{"element": "nope"}`)}))
	r := read(t, ctx, conn)
	assert.Equal(t, "error", r.Type)
	assert.Equal(t, "1", r.RequestID)

	require.NoError(t, wsjson.Write(ctx, conn, ClientMessage{Type: "bogus", ID: "2"}))
	r = read(t, ctx, conn)
	var e ErrorData
	require.NoError(t, json.Unmarshal(r.Data, &e))
	assert.Equal(t, "unknown_type", e.Code)
}

func TestHandler_OpenFailure(t *testing.T) {
	conn, ctx := dial(t, "document=missing&screen=Form")
	r := read(t, ctx, conn)
	assert.Equal(t, "error", r.Type)
	var e ErrorData
	require.NoError(t, json.Unmarshal(r.Data, &e))
	assert.Equal(t, "open_failed", e.Code)
}
