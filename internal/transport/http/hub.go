package http

import (
	"sync"

	"tournament-service/internal/domain"
)

// Audience scopes an event channel. Sessions carry the live tournament
// traffic; dashboard and projection carry quiz-linked mirrors.
const (
	scopeSession    = "session"
	scopeDashboard  = "dashboard"
	scopeProjection = "projection"
)

// Hub routes engine events to connected websockets. It implements
// app.Broadcaster. Delivery is non-blocking: a slow client loses stale
// updates rather than stalling a broadcast.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan domain.Event]struct{}
	connections map[string]chan domain.Event
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[chan domain.Event]struct{}),
		connections: make(map[string]chan domain.Event),
	}
}

// Register creates the outbound channel for a connection. The caller owns
// draining it and must Unregister on disconnect.
func (h *Hub) Register(connID string) <-chan domain.Event {
	ch := make(chan domain.Event, 16)
	h.mu.Lock()
	h.connections[connID] = ch
	h.mu.Unlock()
	return ch
}

// Unregister drops a connection and all of its subscriptions.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.connections[connID]
	if !ok {
		return
	}
	delete(h.connections, connID)
	for _, subs := range h.subscribers {
		delete(subs, ch)
	}
	close(ch)
}

// Subscribe attaches a connection's channel to a scoped audience.
func (h *Hub) Subscribe(connID, scope, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.connections[connID]
	if !ok {
		return
	}
	key := scope + ":" + id
	if h.subscribers[key] == nil {
		h.subscribers[key] = make(map[chan domain.Event]struct{})
	}
	h.subscribers[key][ch] = struct{}{}
}

func (h *Hub) ToSession(code string, event domain.Event) {
	h.publish(scopeSession+":"+code, event)
}

func (h *Hub) ToDashboard(quizID string, event domain.Event) {
	h.publish(scopeDashboard+":"+quizID, event)
}

func (h *Hub) ToProjection(quizID string, event domain.Event) {
	h.publish(scopeProjection+":"+quizID, event)
}

func (h *Hub) ToConnection(connID string, event domain.Event) {
	// The read lock is held across the send so Unregister cannot close the
	// channel mid-delivery.
	h.mu.RLock()
	defer h.mu.RUnlock()
	ch, ok := h.connections[connID]
	if !ok {
		return
	}
	h.send(ch, event)
}

func (h *Hub) publish(key string, event domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers[key] {
		h.send(ch, event)
	}
}

// send drops the oldest buffered event when the channel is full so the
// newest state always gets through.
func (h *Hub) send(ch chan domain.Event, event domain.Event) {
	select {
	case ch <- event:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- event:
		default:
		}
	}
}
