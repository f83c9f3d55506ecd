package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"rideshare/internal/websocket"
)

// StreamHandler upgrades authenticated callers to a live event stream.
type StreamHandler struct {
	hub    *websocket.Hub
	logger *slog.Logger
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(hub *websocket.Hub, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{hub: hub, logger: logger}
}

// Events handles GET /v1/drivers/me/events and GET /v1/passengers/me/events
func (h *StreamHandler) Events(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	// Upgrade writes its own error response.
	if err := h.hub.Serve(c.Writer, c.Request, actor); err != nil {
		h.logger.Warn("websocket_upgrade_failed",
			slog.String("user_id", actor.UserID),
			slog.Any("error", err),
		)
	}
}
