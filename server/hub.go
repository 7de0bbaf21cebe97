package server

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/onnwee/chatter/chat"
	"github.com/onnwee/chatter/telemetry"
)

// DefaultClientBuffer is how many messages a slow stream client may lag
// before messages to it are dropped.
const DefaultClientBuffer = 256

// Hub fans rendered messages out to connected stream clients. It implements
// chat.Renderer so it can sit behind chat.Consume. A client that falls more
// than its buffer behind loses messages rather than stalling the others.
type Hub struct {
	log    *slog.Logger
	buffer int

	mu      sync.Mutex
	clients map[string]chan chat.Message
	dropped map[string]int
}

func NewHub(buffer int, log *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		buffer:  buffer,
		clients: make(map[string]chan chat.Message),
		dropped: make(map[string]int),
	}
}

// Render delivers m to every client without blocking.
func (h *Hub) Render(m chat.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.clients {
		select {
		case ch <- m:
		default:
			h.dropped[id]++
		}
	}
}

// Subscribe registers a client. The returned cancel func unregisters it and
// closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (id string, ch <-chan chat.Message, cancel func()) {
	id = uuid.NewString()
	c := make(chan chat.Message, h.buffer)

	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()
	telemetry.AddSSEClients(1)

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, id)
			dropped := h.dropped[id]
			delete(h.dropped, id)
			close(c)
			h.mu.Unlock()
			telemetry.AddSSEClients(-1)
			if dropped > 0 {
				h.log.Warn("stream client lagged, messages dropped", slog.String("client", id), slog.Int("dropped", dropped))
			}
		})
	}
	return id, c, cancel
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
