package tts

import "sync"

// Uniform event names emitted by engine sessions.
const (
	EventPlaying  = "playing"
	EventPaused   = "paused"
	EventEnded    = "ended"
	EventError    = "error"
	EventProgress = "progress"

	// Additional events the fallback session emits around utterances.
	EventStart  = "start"
	EventEnd    = "end"
	EventPause  = "pause"
	EventResume = "resume"
)

// Listener receives an event payload. Payload is nil for events that carry
// no data.
type Listener func(payload any)

// EventHub is a per-session subscriber registry. Registration is append-only:
// listeners are never removed for the lifetime of the session, and multiple
// listeners per event are supported. Each session owns its own hub so
// coexisting sessions cannot observe each other's events.
type EventHub struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
}

// NewEventHub creates an empty event hub.
func NewEventHub() *EventHub {
	return &EventHub{listeners: make(map[string][]Listener)}
}

// On registers a listener for an event name. It never replaces previously
// registered listeners.
func (h *EventHub) On(event string, fn Listener) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.listeners[event] = append(h.listeners[event], fn)
	h.mu.Unlock()
}

// Emit calls every listener registered for the event, in registration order.
func (h *EventHub) Emit(event string, payload any) {
	h.mu.RLock()
	fns := h.listeners[event]
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(payload)
	}
}
