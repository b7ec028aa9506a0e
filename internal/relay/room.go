package relay

import (
	"context"
	"sync"

	"log/slog"

	"docsync-relay/pkg/metrics"
)

// Message is an opaque relay payload. The broker never parses or mutates
// it; Binary records the frame type so it survives the hop unchanged.
type Message struct {
	Binary bool
	Data   []byte
}

// Client is the subset of connection capabilities a room needs. The
// transport layer owns the connection; the room only holds it for
// membership and send.
type Client interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Room relays messages among the live connections of one document.
type Room struct {
	name string
	log  *slog.Logger

	mu      sync.RWMutex
	members map[Client]struct{}
}

// NewRoom creates an empty room for the given name
func NewRoom(name string, log *slog.Logger) *Room {
	return &Room{name: name, log: log, members: map[Client]struct{}{}}
}

// Name returns the room identifier
func (r *Room) Name() string { return r.name }

// Admit adds a connection to the room. Admitting a connection that is
// already a member is a no-op; membership is a true set.
func (r *Room) Admit(c Client) {
	r.mu.Lock()
	r.members[c] = struct{}{}
	r.mu.Unlock()
	metrics.ConnectionsActive.Inc()
}

// Remove drops a connection from the room if present. Safe to call for
// connections that were never admitted, and safe to call repeatedly.
func (r *Room) Remove(c Client) {
	r.mu.Lock()
	_, present := r.members[c]
	delete(r.members, c)
	r.mu.Unlock()
	if present {
		metrics.ConnectionsActive.Dec()
	}
}

// Len reports the current member count
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Broadcast sends msg to every member except sender, best effort. A member
// whose send fails is evicted and delivery continues to the rest; nothing
// is ever reported back to the sender. The member set is snapshotted under
// the read lock so eviction during the loop cannot tear the iteration.
func (r *Room) Broadcast(ctx context.Context, msg Message, sender Client) {
	r.mu.RLock()
	recipients := make([]Client, 0, len(r.members))
	for c := range r.members {
		if c != sender {
			recipients = append(recipients, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range recipients {
		if err := c.Send(ctx, msg); err != nil {
			r.log.Warn("room.send", "room", r.name, "err", err)
			r.Remove(c)
			_ = c.Close()
			metrics.SendFailures.Inc()
		}
	}
	metrics.MessagesRelayed.Inc()
}
