package api

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vdavid/statusreport/backend/internal/logging"
	ws "github.com/vdavid/statusreport/backend/internal/websocket"
)

// WebSocketHandler handles the /api/v1/ws endpoint that pushes every generated report.
type WebSocketHandler struct {
	hub    *ws.Hub
	logger *zap.Logger
}

func NewWebSocketHandler(hub *ws.Hub, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, logger: logger}
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The service runs behind a reverse proxy in a trusted environment.
		return true
	},
}

// Handle upgrades the connection and registers it with the Hub.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context(), h.logger)

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Failed to upgrade report subscriber connection", zap.Error(err))
		return
	}

	client := h.hub.Register(conn)
	if client == nil {
		logger.Warn("Report subscriber rejected")
		return
	}
	logger.Info("Report subscriber connected", zap.Int("active", h.hub.ActiveConnections()))

	go h.readLoop(client)
}

// readLoop drains the connection until it closes, then unregisters the client.
func (h *WebSocketHandler) readLoop(client *ws.Client) {
	conn := client.Conn()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.hub.Unregister(client)
	h.logger.Info("Report subscriber disconnected", zap.Int("active", h.hub.ActiveConnections()))
}
