package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"botlink/engine"
	"botlink/logging"
)

// SSE event type constants.
const (
	eventAttach  = "attach"
	eventDetach  = "detach"
	eventScan    = "scan"
	eventBackend = "backend-error"
)

// sseMessage is one formatted server-sent event.
type sseMessage struct {
	Event string
	Data  []byte
}

// eventHub fans engine events out to connected SSE clients.
type eventHub struct {
	engine *engine.Engine
	subID  int

	mu      sync.Mutex
	clients map[chan sseMessage]struct{}
	stopped bool
}

func newEventHub(eng *engine.Engine) *eventHub {
	hub := &eventHub{
		engine:  eng,
		clients: make(map[chan sseMessage]struct{}),
	}

	if eng != nil {
		hub.subID = eng.Events.SubscribeTypes(hub.onEvent,
			engine.EventDeviceAttached,
			engine.EventDeviceDetached,
			engine.EventScanCompleted,
			engine.EventBackendFailed,
		)
	}
	return hub
}

func (hub *eventHub) onEvent(e engine.Event) {
	var name string
	switch e.Type {
	case engine.EventDeviceAttached:
		name = eventAttach
	case engine.EventDeviceDetached:
		name = eventDetach
	case engine.EventScanCompleted:
		name = eventScan
	case engine.EventBackendFailed:
		name = eventBackend
	default:
		return
	}

	data, err := json.Marshal(e.Payload)
	if err != nil {
		logging.DebugLog("web", "SSE marshal error: %v", err)
		return
	}
	hub.broadcast(sseMessage{Event: name, Data: data})
}

func (hub *eventHub) broadcast(msg sseMessage) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	for ch := range hub.clients {
		select {
		case ch <- msg:
		default:
			// Slow client; drop the event rather than block the bus.
		}
	}
}

func (hub *eventHub) register() chan sseMessage {
	ch := make(chan sseMessage, 16)
	hub.mu.Lock()
	if hub.stopped {
		hub.mu.Unlock()
		close(ch)
		return ch
	}
	hub.clients[ch] = struct{}{}
	hub.mu.Unlock()
	return ch
}

func (hub *eventHub) unregister(ch chan sseMessage) {
	hub.mu.Lock()
	delete(hub.clients, ch)
	hub.mu.Unlock()
}

// stop unsubscribes from the event bus and disconnects all clients.
func (hub *eventHub) stop() {
	if hub.engine != nil {
		hub.engine.Events.Unsubscribe(hub.subID)
	}

	hub.mu.Lock()
	hub.stopped = true
	for ch := range hub.clients {
		close(ch)
		delete(hub.clients, ch)
	}
	hub.mu.Unlock()
}

// handleSSE streams device lifecycle events to the client.
func (hub *eventHub) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := hub.register()
	defer hub.unregister(ch)

	// Initial comment so proxies commit the stream.
	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		case msg, open := <-ch:
			if !open {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, msg.Data)
			flusher.Flush()
		}
	}
}
