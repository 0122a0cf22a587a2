package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// lockedConn serializes writes to one socket. conn.WriteJSON is not safe for
// concurrent use, and both the broker and the connection loop write replies.
type lockedConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newLockedConn(conn *websocket.Conn) *lockedConn {
	return &lockedConn{conn: conn}
}

func (c *lockedConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *lockedConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}
