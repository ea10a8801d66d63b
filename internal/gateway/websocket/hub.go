// Package websocket is the WebSocket gateway front-ends connect to for task
// control and live stream notifications.
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/agentbridge/agentbridge/internal/common/logger"
	"github.com/agentbridge/agentbridge/pkg/taskstream"
	"github.com/agentbridge/agentbridge/pkg/wsproto"
)

// HistoryProvider returns the persisted message log of a task, replayed to
// a client right after it subscribes.
type HistoryProvider func(ctx context.Context, taskID string) ([]taskstream.TaskMessage, error)

// Hub tracks connected clients and their per-task subscriptions.
type Hub struct {
	clients         map[*Client]bool
	taskSubscribers map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *wsproto.Message

	dispatcher *wsproto.Dispatcher
	history    HistoryProvider

	mu     sync.RWMutex
	logger *logger.Logger
}

// NewHub creates a hub routing requests through the given dispatcher.
func NewHub(dispatcher *wsproto.Dispatcher, log *logger.Logger) *Hub {
	return &Hub{
		clients:         make(map[*Client]bool),
		taskSubscribers: make(map[string]map[*Client]bool),
		register:        make(chan *Client),
		unregister:      make(chan *Client),
		broadcast:       make(chan *wsproto.Message, 256),
		dispatcher:      dispatcher,
		logger:          log.WithFields(zap.String("component", "ws-hub")),
	}
}

// Run processes registrations and broadcasts until the context ends.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("websocket hub started")
	defer h.logger.Info("websocket hub stopped")

	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", zap.String("client_id", client.ID))

		case client := <-h.unregister:
			h.removeClient(client)

		case msg := <-h.broadcast:
			h.broadcastMessage(msg)
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.taskSubscribers = make(map[string]map[*Client]bool)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)

		for taskID := range client.subscriptions {
			if clients, ok := h.taskSubscribers[taskID]; ok {
				delete(clients, client)
				if len(clients) == 0 {
					delete(h.taskSubscribers, taskID)
				}
			}
		}
	}
	h.logger.Debug("client unregistered", zap.String("client_id", client.ID))
}

func (h *Hub) broadcastMessage(msg *wsproto.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			// Buffer full; the write pump will clean the client up.
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast pushes a notification to every connected client.
func (h *Hub) Broadcast(msg *wsproto.Message) {
	h.broadcast <- msg
}

// BroadcastToTask pushes a notification to the clients subscribed to taskID.
func (h *Hub) BroadcastToTask(taskID string, msg *wsproto.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal message", zap.Error(err))
		return
	}

	// The lock must span the sends: removeClient closes client.send under
	// the write lock, so releasing early would allow a send on a closed
	// channel mid-iteration.
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.taskSubscribers[taskID] {
		select {
		case client.send <- data:
		default:
		}
	}
}

// SubscribeToTask adds the client to a task's subscriber set.
func (h *Hub) SubscribeToTask(client *Client, taskID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.taskSubscribers[taskID]; !ok {
		h.taskSubscribers[taskID] = make(map[*Client]bool)
	}
	h.taskSubscribers[taskID][client] = true
	client.subscriptions[taskID] = true

	h.logger.Debug("client subscribed to task",
		zap.String("client_id", client.ID),
		zap.String("task_id", taskID))
}

// UnsubscribeFromTask removes the client from a task's subscriber set.
func (h *Hub) UnsubscribeFromTask(client *Client, taskID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(client.subscriptions, taskID)
	if clients, ok := h.taskSubscribers[taskID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.taskSubscribers, taskID)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SetHistoryProvider installs the replay source used on subscription.
func (h *Hub) SetHistoryProvider(provider HistoryProvider) {
	h.history = provider
}

func (h *Hub) historyFor(ctx context.Context, taskID string) ([]taskstream.TaskMessage, error) {
	if h.history == nil {
		return nil, nil
	}
	return h.history(ctx, taskID)
}
