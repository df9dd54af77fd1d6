// Package wire defines the WebSocket protocol spoken with remote renderers.
package wire

import (
	"encoding/json"

	"github.com/matthewbaird/bindery/internal/session"
)

// ── Client → Server messages ────────────────────────────────────────────────

// ClientMessage is the envelope for all client-to-server WebSocket messages.
type ClientMessage struct {
	Type string          `json:"type"` // "trigger", "set", "refresh", "snapshot", "ping"
	ID   string          `json:"id"`   // Client-assigned request ID
	Data json.RawMessage `json:"data,omitempty"`
}

// TriggerData is the payload for "trigger" messages.
type TriggerData struct {
	Element string `json:"element"`
}

// SetData is the payload for "set" messages.
type SetData struct {
	Element string `json:"element"`
	Key     string `json:"key"`
	Value   any    `json:"value"`
}

// ── Server → Client messages ────────────────────────────────────────────────

// ServerMessage is the envelope for all server-to-client WebSocket messages.
type ServerMessage struct {
	Type      string `json:"type"`                 // "session", "event", "snapshot", "ok", "error", "pong"
	RequestID string `json:"request_id,omitempty"` // Echoes client ID
	Data      any    `json:"data,omitempty"`
}

// SessionData is sent once the screen is loaded.
type SessionData struct {
	SessionID string        `json:"session_id"`
	Document  string        `json:"document"`
	Screen    string        `json:"screen"`
	State     session.State `json:"state"`
}

// ErrorData carries an error message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
