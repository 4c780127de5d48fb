package feedhub

import (
	"time"

	"queryforum/backend/internal/access"
	"queryforum/backend/internal/logging"
	"queryforum/backend/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 64
)

// WebSocketClient implements Client over a gorilla websocket connection.
type WebSocketClient struct {
	ID    string
	Actor *access.Actor
	Guard *access.Guard
	Conn  *websocket.Conn
	Hub   *ManagerService
	Send  chan models.FeedEvent

	logger *zap.Logger
}

// NewWebSocketClient wraps an upgraded connection for actor.
func NewWebSocketClient(hub *ManagerService, guard *access.Guard, actor *access.Actor, conn *websocket.Conn, logger *zap.Logger) *WebSocketClient {
	return &WebSocketClient{
		ID:     uuid.NewString(),
		Actor:  actor,
		Guard:  guard,
		Conn:   conn,
		Hub:    hub,
		Send:   make(chan models.FeedEvent, sendBufferSize),
		logger: logging.OrNop(logger).Named("ws"),
	}
}

func (c *WebSocketClient) GetID() string                            { return c.ID }
func (c *WebSocketClient) GetSendChannel() chan<- models.FeedEvent { return c.Send }

func (c *WebSocketClient) Accepts(category string) bool {
	return c.Guard.CanAccess(c.Actor, category)
}

// Run starts the pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close closes Send, which stops writePump.
func (c *WebSocketClient) Close() {
	close(c.Send)
}

// readPump only services control frames; clients have nothing to say.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("error reading message", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(event); err != nil {
				c.logger.Debug("write failed", zap.String("client_id", c.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
