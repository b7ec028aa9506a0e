package relay

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"log/slog"

	"docsync-relay/pkg/metrics"
)

// DefaultRoom is the room used when the request path carries no name.
const DefaultRoom = "default-room"

// Hub routes inbound websocket requests to rooms, creating rooms on first
// reference. It is the only owner of the name -> room registry.
type Hub struct {
	log *slog.Logger
	bus *RedisBus // nil when cross-instance fanout is disabled

	mu    sync.RWMutex
	rooms map[string]*Room // active rooms by name
}

// NewHub sets up the hub; bus may be nil
func NewHub(logger *slog.Logger, bus *RedisBus) *Hub {
	return &Hub{log: logger, bus: bus, rooms: map[string]*Room{}}
}

// Run forwards bus messages to local rooms until ctx is cancelled.
// A no-op when the bus is disabled.
func (h *Hub) Run(ctx context.Context) {
	if h.bus == nil {
		<-ctx.Done()
		return
	}
	go h.bus.Subscribe(ctx, func(msg BusMessage) {
		h.mu.RLock()
		rm := h.rooms[msg.Room]
		h.mu.RUnlock()
		if rm != nil {
			rm.Broadcast(ctx, Message{Binary: msg.Binary, Data: msg.Payload}, nil)
		}
	})
	<-ctx.Done()
}

// RoomName derives a room identifier from a request path: the path with
// its leading '/' stripped, byte-sensitive, slashes in the remainder
// included. An empty result maps to DefaultRoom.
func RoomName(path string) string {
	name := strings.TrimPrefix(path, "/")
	if name == "" {
		return DefaultRoom
	}
	return name
}

// room returns the Room for a name, creating it if needed. Concurrent
// first-references to the same name all get the one instance.
func (h *Hub) room(name string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	rm := h.rooms[name]
	if rm == nil {
		rm = NewRoom(name, h.log)
		h.rooms[name] = rm
		metrics.RoomsActive.Inc()
	}
	return rm
}

// lookup returns the Room for a name without creating one
func (h *Hub) lookup(name string) *Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[name]
}

// ServeWS admits a new connection into the room named by the request path
// and relays its frames until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Preflight probes get permissive CORS headers and never touch a room
	if r.Method == http.MethodOptions {
		hdr := w.Header()
		hdr.Set("Access-Control-Allow-Origin", "*")
		hdr.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		hdr.Set("Access-Control-Allow-Headers", "Content-Type, Upgrade")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		http.Error(w, "expected WebSocket upgrade", http.StatusUpgradeRequired)
		return
	}

	name := RoomName(r.URL.Path)
	ws, err := Accept(w, r)
	if err != nil {
		h.log.Error("ws.accept", "room", name, "err", err)
		return
	}

	rm := h.room(name)
	c := NewConn(ws)
	rm.Admit(c)
	h.log.Debug("ws.admit", "room", name, "members", rm.Len())

	go c.PingLoop(ctx)

	for {
		msg, ok := c.Read(ctx)
		if !ok {
			break
		}

		// Cross-instance first, then local fanout
		if h.bus != nil {
			_ = h.bus.Publish(ctx, BusMessage{
				Room:    name,
				Binary:  msg.Binary,
				Payload: msg.Data,
			})
		}
		rm.Broadcast(ctx, msg, c)
	}

	rm.Remove(c)
	_ = c.Close()
	h.log.Debug("ws.leave", "room", name, "members", rm.Len())
}
