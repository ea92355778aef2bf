package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"agent-chat-engine/internal/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const documentChannel = "document_events"

// Frame is the wire shape pushed to connected editors.
type Frame struct {
	Type      string `json:"type"`
	SessionId string `json:"sessionId,omitempty"`
	Content   string `json:"content,omitempty"`
}

// Hub fans document updates out to every connected editor. With redis
// configured, updates also cross instances via pub/sub.
type Hub struct {
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	rdb *redis.Client

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]struct{}),
		rdb:        rdb,
		logger:     log,
	}
}

func (h *Hub) Run() {
	if h.rdb != nil {
		go h.subscribeToRedis()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Info("Hub", "Editor connected", map[string]interface{}{"client_id": client.ID})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.logger.Info("Hub", "Editor disconnected", map[string]interface{}{"client_id": client.ID})
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastDocument pushes the latest document text to all editors.
// This is the engine's DocumentSink.
func (h *Hub) BroadcastDocument(sessionID, content string) {
	data, _ := json.Marshal(Frame{Type: "document_update", SessionId: sessionID, Content: content})
	h.deliver(data)

	if h.rdb != nil {
		h.rdb.Publish(context.Background(), documentChannel, data)
	}
}

func (h *Hub) deliver(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("Hub", "Client send buffer full, dropping", map[string]interface{}{"client_id": client.ID})
		}
	}
}

func (h *Hub) subscribeToRedis() {
	ctx := context.Background()
	pubsub := h.rdb.Subscribe(ctx, documentChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		h.deliver([]byte(msg.Payload))
	}
}
