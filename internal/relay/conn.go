package relay

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

const writeTimeout = 10 * time.Second

// Conn adapts a websocket connection to the Client interface.
type Conn struct {
	ws *websocket.Conn
}

// Accept upgrades HTTP to websocket (allow all origins)
func Accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
}

// NewConn wraps an upgraded websocket connection
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// Read blocks until it receives a text/binary message.
// Returns false if the connection is closed.
func (c *Conn) Read(ctx context.Context) (Message, bool) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return Message{}, false
		}
		if typ == websocket.MessageText || typ == websocket.MessageBinary {
			return Message{Binary: typ == websocket.MessageBinary, Data: data}, true
		}
	}
}

// Send writes one message, preserving the frame type. A recipient that
// cannot take the frame within the write timeout errors out here and gets
// evicted by the room.
func (c *Conn) Send(ctx context.Context, msg Message) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	typ := websocket.MessageText
	if msg.Binary {
		typ = websocket.MessageBinary
	}
	return c.ws.Write(wctx, typ, msg.Data)
}

// PingLoop sends periodic pings until ctx is cancelled or a ping fails
func (c *Conn) PingLoop(ctx context.Context) {
	t := time.NewTicker(20 * time.Second)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			if err := c.ws.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close closes the websocket connection normally
func (c *Conn) Close() error { return c.ws.Close(websocket.StatusNormalClosure, "bye") }
