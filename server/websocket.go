package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/becomeliminal/nim-graph/core"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// wsMessage is both the inbound frame ({"message": ...}) and the outbound
// one ({"reply": ...} or {"error": ...}).
type wsMessage struct {
	Message string     `json:"message,omitempty"`
	Reply   *core.Turn `json:"reply,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// handleWebsocket runs a chat over one connection. Frames are processed in
// order, so a session never has two turns in flight from the same socket.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	logger := s.logger.With(zap.String("session_id", id))
	logger.Debug("websocket connected")

	for {
		var in wsMessage
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		var out wsMessage
		reply, err := s.send(r.Context(), id, in.Message)
		if err != nil {
			out.Error = err.Error()
		} else {
			out.Reply = &reply
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(out); err != nil {
			logger.Warn("websocket write failed", zap.Error(err))
			return
		}
	}
}
