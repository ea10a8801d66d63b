package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agentbridge/agentbridge/internal/common/logger"
	"github.com/agentbridge/agentbridge/pkg/wsproto"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// Client is one WebSocket connection.
type Client struct {
	ID            string
	conn          *websocket.Conn
	hub           *Hub
	send          chan []byte
	subscriptions map[string]bool
	logger        *logger.Logger
}

// NewClient wraps an upgraded connection.
func NewClient(id string, conn *websocket.Conn, hub *Hub, log *logger.Logger) *Client {
	return &Client{
		ID:            id,
		conn:          conn,
		hub:           hub,
		send:          make(chan []byte, 256),
		subscriptions: make(map[string]bool),
		logger:        log.WithFields(zap.String("client_id", id)),
	}
}

// ReadPump reads frames from the connection and dispatches them until the
// peer disconnects.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read error", zap.Error(err))
			}
			break
		}

		var msg wsproto.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Error("failed to parse message", zap.Error(err))
			c.sendError("", "", wsproto.ErrorCodeBadRequest, "invalid message format", nil)
			continue
		}

		c.handleMessage(ctx, &msg)
	}
}

func (c *Client) handleMessage(ctx context.Context, msg *wsproto.Message) {
	c.logger.Debug("received message",
		zap.String("action", msg.Action),
		zap.String("id", msg.ID))

	// Subscriptions need the client itself, so they bypass the dispatcher.
	switch msg.Action {
	case wsproto.ActionTaskSubscribe:
		c.handleSubscribe(ctx, msg)
		return
	case wsproto.ActionTaskUnsubscribe:
		c.handleUnsubscribe(msg)
		return
	}

	response, err := c.hub.dispatcher.Dispatch(ctx, msg)
	if err != nil {
		c.logger.Error("handler error",
			zap.String("action", msg.Action),
			zap.Error(err))
		c.sendError(msg.ID, msg.Action, wsproto.ErrorCodeInternalError, err.Error(), nil)
		return
	}
	if response != nil {
		c.sendMessage(response)
	}
}

// SubscribeRequest is the payload for task.subscribe and task.unsubscribe.
type SubscribeRequest struct {
	TaskID string `json:"task_id"`
}

func (c *Client) handleSubscribe(ctx context.Context, msg *wsproto.Message) {
	var req SubscribeRequest
	if err := msg.ParsePayload(&req); err != nil {
		c.sendError(msg.ID, msg.Action, wsproto.ErrorCodeBadRequest, "invalid payload: "+err.Error(), nil)
		return
	}
	if req.TaskID == "" {
		c.sendError(msg.ID, msg.Action, wsproto.ErrorCodeBadRequest, "task_id is required", nil)
		return
	}

	c.hub.SubscribeToTask(c, req.TaskID)

	resp, _ := wsproto.NewResponse(msg.ID, msg.Action, map[string]any{
		"success": true,
		"task_id": req.TaskID,
	})
	c.sendMessage(resp)

	// Replay persisted history so the client starts from a full log.
	history, err := c.hub.historyFor(ctx, req.TaskID)
	if err != nil {
		c.logger.Warn("failed to load task history",
			zap.String("task_id", req.TaskID),
			zap.Error(err))
		return
	}
	for _, m := range history {
		note, err := wsproto.NewNotification(wsproto.ActionTaskMessage, map[string]any{
			"task_id": req.TaskID,
			"message": m,
			"replay":  true,
		})
		if err != nil {
			continue
		}
		c.sendMessage(note)
	}
}

func (c *Client) handleUnsubscribe(msg *wsproto.Message) {
	var req SubscribeRequest
	if err := msg.ParsePayload(&req); err != nil {
		c.sendError(msg.ID, msg.Action, wsproto.ErrorCodeBadRequest, "invalid payload: "+err.Error(), nil)
		return
	}
	if req.TaskID == "" {
		c.sendError(msg.ID, msg.Action, wsproto.ErrorCodeBadRequest, "task_id is required", nil)
		return
	}

	c.hub.UnsubscribeFromTask(c, req.TaskID)

	resp, _ := wsproto.NewResponse(msg.ID, msg.Action, map[string]any{
		"success": true,
		"task_id": req.TaskID,
	})
	c.sendMessage(resp)
}

func (c *Client) sendMessage(msg *wsproto.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal message", zap.Error(err))
		return
	}

	select {
	case c.send <- data:
	default:
		c.logger.Warn("client send buffer full")
	}
}

func (c *Client) sendError(id, action, code, message string, details map[string]any) {
	msg, err := wsproto.NewError(id, action, code, message, details)
	if err != nil {
		c.logger.Error("failed to create error message", zap.Error(err))
		return
	}
	c.sendMessage(msg)
}

// WritePump writes queued frames and pings until the connection dies.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			// Batch whatever else is queued into the same frame.
			n := len(c.send)
			for i := 0; i < n; i++ {
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
