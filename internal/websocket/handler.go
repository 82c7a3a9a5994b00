package websocket

import (
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// HandleWebSocket upgrades an HTTP connection to a realtime channel. The
// channel authenticates with its first frame, not with request headers, so
// the route sits outside the bearer-token middleware.
func HandleWebSocket(hub *Hub, allowedOrigins []string) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(allowedOrigins),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Warn("❌ websocket upgrade failed", zap.Error(err))
			return
		}

		client := NewClient(conn, hub)
		hub.Register(client)

		// Start pumps in separate goroutines
		go client.WritePump()
		go client.ReadPump()

		hub.logger.Debug("websocket connection opened",
			zap.String("channel_id", client.ID),
			zap.String("remote_addr", r.RemoteAddr),
		)
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Native mobile clients send no Origin header
		return origin == "" || slices.Contains(allowed, origin)
	}
}
