// Package notify broadcasts data-root change events to UI listeners.
package notify

import "sync"

// Event describes a change under the data root. An empty SubjectID means
// the whole index may have changed and listeners should refresh everything;
// listeners re-query the store either way, so a lost event only delays a
// refresh until the next one.
type Event struct {
	SubjectID string
}

// Hub fans Events out to all subscribed listeners.
type Hub struct {
	mu        sync.RWMutex
	listeners map[chan Event]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		listeners: make(map[chan Event]struct{}),
	}
}

// Subscribe returns a channel that receives change events. The caller must
// call Unsubscribe when done to prevent goroutine leaks.
func (h *Hub) Subscribe() chan Event {
	ch := make(chan Event, 1)
	h.mu.Lock()
	h.listeners[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it.
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	delete(h.listeners, ch)
	h.mu.Unlock()
	close(ch)
}

// Broadcast sends an event to all listeners. Non-blocking: a listener whose
// channel is full misses this event and catches up on its next refresh.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}
