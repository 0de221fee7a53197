package www

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/SoberingRealityCheck/hexapod-server/engine"
)

type SSEEvent struct {
	Event string
	Data  string
}

// EventHub fans engine events out to every open /events stream.
type EventHub struct {
	mu        sync.RWMutex
	clients   map[chan SSEEvent]struct{}
	broadcast chan SSEEvent
	stopChan  chan struct{}
	stopOnce  sync.Once
	keepalive time.Duration

	// hello, when set, produces the events a new client receives first.
	hello func() []SSEEvent
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients:   make(map[chan SSEEvent]struct{}),
		broadcast: make(chan SSEEvent, 256),
		stopChan:  make(chan struct{}),
		keepalive: 30 * time.Second,
	}
}

func (h *EventHub) Start() {
	go h.run()
}

func (h *EventHub) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })
}

func (h *EventHub) run() {
	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-h.stopChan:
			return
		case evt := <-h.broadcast:
			h.fanOut(evt)
		case <-keepalive.C:
			h.fanOut(SSEEvent{Event: "keepalive", Data: "ping"})
		}
	}
}

func (h *EventHub) fanOut(evt SSEEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- evt:
		default:
			// slow client, drop
		}
	}
}

func (h *EventHub) Broadcast(event, data string) {
	select {
	case h.broadcast <- SSEEvent{Event: event, Data: data}:
	default:
	}
}

// BroadcastJSON encodes v and broadcasts it under event.
func (h *EventHub) BroadcastJSON(event string, v any) {
	evt := jsonEvent(event, v)
	h.Broadcast(evt.Event, evt.Data)
}

func jsonEvent(event string, v any) SSEEvent {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("sse: encode %s: %v", event, err)
		return SSEEvent{Event: event, Data: "null"}
	}
	return SSEEvent{Event: event, Data: string(data)}
}

func (h *EventHub) AddClient() chan SSEEvent {
	ch := make(chan SSEEvent, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *EventHub) RemoveClient(ch chan SSEEvent) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SetupEngineListeners wires engine events to SSE broadcasts.
func (h *EventHub) SetupEngineListeners(eng *engine.Engine) {
	eng.Events.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.StateUpdatedEvent)
		h.BroadcastJSON("robot-state", ev.State)
	}, engine.EventStateUpdated)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.SyncStatusChangedEvent)
		h.BroadcastJSON("sync-status", ev.Status)
	}, engine.EventSyncStatusChanged)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.RelayUpdatedEvent)
		h.BroadcastJSON("relay-state", ev.State)
	}, engine.EventRelayUpdated)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.LiveConnectionEvent)
		h.Broadcast("system-status", fmt.Sprintf(`{"live":%q,"connected":%t}`, ev.Backend, evt.Type == engine.EventLiveConnected))
	}, engine.EventLiveConnected, engine.EventLiveDisconnected)
}

// SSEHandler serves the SSE endpoint.
func (h *EventHub) SSEHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.AddClient()
	defer h.RemoveClient(ch)

	if h.hello != nil {
		for _, evt := range h.hello() {
			if err := writeSSE(w, evt); err != nil {
				return
			}
		}
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.stopChan:
			return
		case evt := <-ch:
			if err := writeSSE(w, evt); err != nil {
				log.Printf("sse: write error: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, evt SSEEvent) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, evt.Data)
	return err
}
