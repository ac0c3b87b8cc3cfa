package envapi

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/dr-isosan/LifeNode/internal/logging"
)

var upgrader = websocket.Upgrader{
	// The stream is read-only simulation telemetry; any origin may watch.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStream upgrades the connection and forwards bus events as JSON
// frames until the client goes away or the bus closes the subscription.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "no event bus attached")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}
	defer conn.Close()

	events, cancel := s.bus.Subscribe(64)
	defer cancel()

	// Drain inbound frames so close handshakes are processed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				s.logger.Debug(r.Context(), "websocket write failed", logging.Err(err))
				return
			}
		}
	}
}
