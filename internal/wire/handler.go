package wire

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bdlm/log"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/matthewbaird/bindery/internal/session"
)

// Handler manages WebSocket connections for remote renderers.
type Handler struct {
	sessions *session.Manager
}

// NewHandler creates a WebSocket handler backed by sessions.
func NewHandler(sessions *session.Manager) *Handler {
	return &Handler{sessions: sessions}
}

// ServeHTTP upgrades to WebSocket, opens the screen named by the
// "document" and "screen" query parameters and runs the message loop.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	document, screenID := r.URL.Query().Get("document"), r.URL.Query().Get("screen")
	if document == "" || screenID == "" {
		http.Error(w, "document and screen are required", http.StatusBadRequest)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.WithFields(log.Fields{"err": err}).Warn("wire: websocket accept")
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess, err := h.sessions.Open(ctx, document, screenID)
	if err != nil {
		h.sendError(ctx, conn, "", "open_failed", err.Error())
		conn.Close(websocket.StatusPolicyViolation, "screen unavailable")
		return
	}
	defer h.sessions.Remove(sess.ID)

	state, err := sess.Snapshot()
	if err != nil {
		h.sendError(ctx, conn, "", "open_failed", err.Error())
		return
	}
	h.send(ctx, conn, ServerMessage{
		Type: "session",
		Data: SessionData{SessionID: sess.ID, Document: document, Screen: screenID, State: state},
	})

	go h.stream(ctx, conn, sess)

	// Message loop
	for {
		var msg ClientMessage
		err := wsjson.Read(ctx, conn, &msg)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				log.Debugf("wire: connection closed: %v", websocket.CloseStatus(err))
			}
			return
		}
		sess.Touch()

		switch msg.Type {
		case "trigger":
			h.handleTrigger(ctx, conn, sess, msg)
		case "set":
			h.handleSet(ctx, conn, sess, msg)
		case "refresh":
			h.reply(ctx, conn, msg.ID, sess.Refresh(ctx))
		case "snapshot":
			state, err := sess.Snapshot()
			if err != nil {
				h.sendError(ctx, conn, msg.ID, "failed", err.Error())
				continue
			}
			h.send(ctx, conn, ServerMessage{Type: "snapshot", RequestID: msg.ID, Data: state})
		case "ping":
			h.send(ctx, conn, ServerMessage{Type: "pong", RequestID: msg.ID})
		default:
			h.sendError(ctx, conn, msg.ID, "unknown_type", fmt.Sprintf("unknown message type: %s", msg.Type))
		}
	}
}

// stream forwards session events until the session or connection ends.
func (h *Handler) stream(ctx context.Context, conn *websocket.Conn, sess *session.Session) {
	for {
		select {
		case e, ok := <-sess.Events():
			if !ok {
				return
			}
			h.send(ctx, conn, ServerMessage{Type: "event", Data: e})
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) handleTrigger(ctx context.Context, conn *websocket.Conn, sess *session.Session, msg ClientMessage) {
	var data TriggerData
	if err := json.Unmarshal(msg.Data, &data); err != nil || data.Element == "" {
		h.sendError(ctx, conn, msg.ID, "invalid_data", "invalid trigger data")
		return
	}
	h.reply(ctx, conn, msg.ID, sess.Trigger(data.Element))
}

func (h *Handler) handleSet(ctx context.Context, conn *websocket.Conn, sess *session.Session, msg ClientMessage) {
	var data SetData
	if err := json.Unmarshal(msg.Data, &data); err != nil || data.Element == "" || data.Key == "" {
		h.sendError(ctx, conn, msg.ID, "invalid_data", "invalid set data")
		return
	}
	h.reply(ctx, conn, msg.ID, sess.Set(data.Element, data.Key, data.Value))
}

func (h *Handler) reply(ctx context.Context, conn *websocket.Conn, requestID string, err error) {
	if err != nil {
		h.sendError(ctx, conn, requestID, "failed", err.Error())
		return
	}
	h.send(ctx, conn, ServerMessage{Type: "ok", RequestID: requestID})
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, msg ServerMessage) {
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		log.Debugf("wire: write error: %v", err)
	}
}

func (h *Handler) sendError(ctx context.Context, conn *websocket.Conn, requestID, code, message string) {
	h.send(ctx, conn, ServerMessage{
		Type:      "error",
		RequestID: requestID,
		Data: ErrorData{
			Code:    code,
			Message: message,
		},
	})
}
