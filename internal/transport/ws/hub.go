package ws

import (
	"sync"

	"github.com/gorilla/websocket"

	"voice-quiz-server/internal/platform/logging"
)

// Hub tracks the open answer connections so shutdown can close them.
type Hub struct {
	logger *logging.Logger
	conns  sync.Map // map[string]*Connection
}

func NewHub(logger *logging.Logger) *Hub {
	return &Hub{logger: logger}
}

func (h *Hub) Register(conn *Connection) {
	if conn == nil {
		return
	}
	h.conns.Store(conn.ID(), conn)
}

func (h *Hub) Unregister(id string) {
	if id == "" {
		return
	}
	h.conns.Delete(id)
}

// CloseAll terminates every tracked connection.
func (h *Hub) CloseAll(reason error) {
	if reason == nil {
		reason = ErrSessionShutdown
	}
	h.conns.Range(func(key, value any) bool {
		if conn, ok := value.(*Connection); ok {
			_ = conn.CloseWith(websocket.CloseGoingAway, reason.Error())
		}
		h.conns.Delete(key)
		return true
	})
	h.logger.InfoTag("WebSocket", "closed all connections: %v", reason)
}

func (h *Hub) Count() int {
	n := 0
	h.conns.Range(func(key, value any) bool {
		n++
		return true
	})
	return n
}
