package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func newSessionID() string { return uuid.NewString() }

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// wsIncoming is one client frame on the chat socket.
type wsIncoming struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// wsOutgoing is one server frame.
type wsOutgoing struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleChatSocket runs the chat protocol over a websocket: one JSON
// frame in, one dialogue turn, one frame out. Turns on the same
// connection run sequentially; the per-session turn lock still applies
// so a parallel HTTP request cannot interleave.
func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		var in wsIncoming
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			s.logger.Debug("websocket read failed", "error", err)
			return
		}
		if in.Message == "" {
			conn.WriteJSON(wsOutgoing{SessionID: in.SessionID, Error: "message is required"})
			continue
		}
		if in.SessionID == "" {
			in.SessionID = newSessionID()
		}

		sess, release, ok := s.sessions.TryAcquire(in.SessionID)
		if !ok {
			conn.WriteJSON(wsOutgoing{SessionID: in.SessionID, Error: "otra solicitud de esta sesión sigue en curso"})
			continue
		}

		answer, err := s.controller.HandleTurn(r.Context(), sess, in.Message)
		release()
		if err != nil {
			s.logger.Error("websocket turn failed", "session", in.SessionID, "error", err)
			conn.WriteJSON(wsOutgoing{SessionID: in.SessionID, Error: "No pude procesar tu solicitud. Intenta de nuevo."})
			continue
		}
		if err := conn.WriteJSON(wsOutgoing{SessionID: in.SessionID, Response: answer}); err != nil {
			s.logger.Debug("websocket write failed", "error", err)
			return
		}
	}
}
