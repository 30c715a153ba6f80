package signal

import (
	"sync"
	"time"

	"worklens/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Connection is one control channel socket. Reads happen on the goroutine
// running HandleWebSocket, writes on writePump. The send channel is never
// closed; done signals shutdown so Send can never panic.
type Connection struct {
	id       string
	identity domain.Identity
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	limiter  *rate.Limiter

	closeOnce sync.Once
}

func newConnection(id string, identity domain.Identity, conn *websocket.Conn, bufferSize int, limiter *rate.Limiter) *Connection {
	return &Connection{
		id:       id,
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, bufferSize),
		done:     make(chan struct{}),
		limiter:  limiter,
	}
}

func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) Identity() domain.Identity {
	return c.identity
}

// Send enqueues msg without blocking. It reports false when the buffer is
// full or the connection is closing.
func (c *Connection) Send(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Connection) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// writePump drains send and keeps the peer alive with pings.
func (c *Connection) writePump(pingInterval, writeTimeout time.Duration, logger *zap.SugaredLogger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case <-c.done:
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debugw("write failed", "conn_id", c.id, "error", err)
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				logger.Debugw("ping failed", "conn_id", c.id, "error", err)
				return
			}
		}
	}
}
