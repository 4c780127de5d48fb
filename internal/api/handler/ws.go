package handler

import (
	"net/http"

	"queryforum/backend/internal/feedhub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow connections from any origin; the token is what authenticates.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades the connection and subscribes it to feed events
// for the categories the caller can read.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	actor, err := h.Guard.Actor(c.Request.Context(), SessionFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.Logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := feedhub.NewWebSocketClient(h.Hub, h.Guard, actor, conn, h.Logger)
	if !h.Hub.Register(client) {
		conn.Close()
		return
	}
	client.Run()
}
