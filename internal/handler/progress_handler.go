package handler

import (
	"concept-digest-be/internal/pkg/logger"
	"concept-digest-be/internal/pkg/serverutils"
	internalWS "concept-digest-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// ProgressHandler streams pipeline stage transitions to the caller over a
// websocket. Clients open it before POSTing a digest and receive one JSON
// message per transition.
type ProgressHandler struct {
	hub    *internalWS.Hub
	logger logger.ILogger
}

func NewProgressHandler(hub *internalWS.Hub, log logger.ILogger) *ProgressHandler {
	return &ProgressHandler{hub: hub, logger: log}
}

func (h *ProgressHandler) RegisterRoutes(r fiber.Router) {
	g := r.Group("/progress/v1")
	g.Use(serverutils.JwtMiddleware)
	g.Get("/ws", h.ServeWs)
}

// ServeWs upgrades the request; JwtMiddleware has already checked the token.
func (h *ProgressHandler) ServeWs(c *fiber.Ctx) error {
	userID, err := serverutils.UserID(c)
	if err != nil {
		return err
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("PROGRESS", "Starting WebSocket session", map[string]interface{}{"user_id": userID.String()})
		internalWS.ServeWs(h.hub, conn, userID)
		h.logger.Info("PROGRESS", "WebSocket session ended", map[string]interface{}{"user_id": userID.String()})
	})(c)
}
