// internal/hub/websocket.go
package hub

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/erilali/gameroom/internal/message"
)

const (
	webSocketReadDeadline  = 60 * time.Second
	webSocketWriteDeadline = 10 * time.Second
	webSocketPingPeriod    = (webSocketReadDeadline * 9) / 10 // Must be less than readDeadline
)

// validSession checks a client supplied session id: 1-64 characters, alphanumeric, dash and
// underscore only.
func validSession(session string) bool {
	if len(session) < 1 || len(session) > 64 {
		return false
	}
	for _, char := range session {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '_' || char == '-') {
			return false
		}
	}
	return true
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// ServeWs upgrades the HTTP connection to a WebSocket and registers the client. The session id
// comes from the session query parameter; a fresh one is generated when it is absent.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	if session == "" {
		session = uuid.NewString()
	} else if !validSession(session) {
		http.Error(w, "invalid session: must be 1-64 characters, alphanumeric, dash and underscore only", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade error: %v", err)
		return
	}

	client := newClient(session, conn, h.opts.SendBuffer, rate.Limit(h.opts.MessageRate), h.opts.MessageBurst)
	h.register(client)
	go h.ReadPump(client)
	go h.WritePump(client)
}

// ReadPump reads frames from the WebSocket connection and dispatches them in order.
func (h *Hub) ReadPump(client *Client) {
	defer func() {
		h.release(client)
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(h.opts.ReadLimit)
	client.Conn.SetReadDeadline(time.Now().Add(webSocketReadDeadline))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(webSocketReadDeadline))
		return nil
	})

	for {
		_, frame, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.logger.Errorf("WebSocket error for %s: %v", client.Session, err)
			}
			break
		}

		client.LastActive = time.Now()
		frame = bytes.TrimSpace(frame)
		if len(frame) == 0 {
			continue
		}
		if !client.limiter.Allow() {
			h.metrics.Rejections.WithLabelValues(message.CodeRateLimited).Inc()
			h.sendEvent(client.Session, message.ErrorEvent(message.Reject(message.CodeRateLimited, "too many messages")))
			continue
		}
		h.HandleFrame(client.Session, frame)
	}
}

// WritePump writes queued messages to the WebSocket connection.
func (h *Hub) WritePump(client *Client) {
	ticker := time.NewTicker(webSocketPingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-client.send:
			client.Conn.SetWriteDeadline(time.Now().Add(webSocketWriteDeadline))
			if !ok {
				// The hub closed the channel.
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := client.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(frame)

			// Add queued messages to the current write
			n := len(client.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-client.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(webSocketWriteDeadline))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return // Client connection is likely broken
			}
		}
	}
}
