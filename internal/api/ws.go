package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const wsIdleTimeout = 10 * time.Minute

// Connections are authenticated by token before the upgrade, so any
// origin is accepted.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsError is sent in place of a result when a request fails.
type wsError struct {
	Error     string `json:"error"`
	Code      int    `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// handleWebSocket serves one agent request per text frame. Each frame
// is an AgentChatRequest; each reply is an agent result or a wsError.
// Requests on one connection run in order.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxBodyBytes)
	s.logger.Info("websocket connected", "user", p.ID, "remote", r.RemoteAddr)

	ctx := r.Context()
	for {
		conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", "user", p.ID, "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			if err := conn.WriteJSON(wsError{Error: "expected a text frame", Code: http.StatusBadRequest}); err != nil {
				return
			}
			continue
		}

		var req AgentChatRequest
		if err := json.Unmarshal(data, &req); err != nil || len(req.Messages) == 0 {
			if err := conn.WriteJSON(wsError{Error: "invalid request", Code: http.StatusBadRequest}); err != nil {
				return
			}
			continue
		}

		var reply any
		res, err := s.chat(ctx, p, req.Messages, req.Attachments, req.Model)
		if err != nil {
			code, msg, requestID := agentError(err)
			if code >= 500 {
				s.logger.Error("agent request failed", "request_id", requestID, "error", err)
			}
			reply = wsError{Error: msg, Code: code, RequestID: requestID}
		} else {
			reply = res
		}
		if err := conn.WriteJSON(reply); err != nil {
			s.logger.Debug("websocket write failed", "user", p.ID, "error", err)
			return
		}
	}
}
