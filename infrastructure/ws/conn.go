package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"roomcast/domain/event"
)

// Conn adapts a gorilla connection to the contract.Conn handle. Broadcasts
// for different events may run on different goroutines, so writes are
// serialized by a mutex; each write carries its own deadline so a stuck
// peer fails the send instead of wedging the room.
type Conn struct {
	ws        *websocket.Conn
	mu        sync.Mutex
	writeWait time.Duration
}

func NewConn(ws *websocket.Conn, writeWait time.Duration) *Conn {
	return &Conn{ws: ws, writeWait: writeWait}
}

func (c *Conn) Send(e event.DomainEvent) error {
	frame := EncodeFrame(e)

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.ws.WriteJSON(frame)
}

func (c *Conn) Close() error {
	return c.ws.Close()
}
