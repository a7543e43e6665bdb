package tracing

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
)

// WebSocketHandler streams decision traces to websocket clients
type WebSocketHandler struct {
	service  *Service
	logger   logrus.FieldLogger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(service *Service, logger logrus.FieldLogger) *WebSocketHandler {
	return &WebSocketHandler{
		service: service,
		logger:  logger.WithField("component", "trace-stream"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeHTTP upgrades the connection and streams traces that pass the filter
// given in the query string (same parameters as the trace listing, without
// limit)
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	filter, err := ParseFilter(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	subID, traceChan := h.service.Subscribe()
	defer h.service.Unsubscribe(subID)

	log := h.logger.WithFields(logrus.Fields{"subscriber": subID, "remote": r.RemoteAddr})
	log.Debug("trace subscriber connected")
	defer log.Debug("trace subscriber disconnected")

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Reader goroutine only notices the close
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case trace, ok := <-traceChan:
			if !ok {
				return
			}
			if !matchesFilter(trace, filter) {
				continue
			}

			data, err := json.Marshal(trace)
			if err != nil {
				log.WithError(err).Error("failed to marshal trace")
				continue
			}

			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.WithError(err).Debug("failed to send trace")
				return
			}

		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}
