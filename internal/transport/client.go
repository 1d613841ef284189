package transport

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// client is one websocket connection. Only writeLoop writes to ws.
type client struct {
	id      string
	ws      *websocket.Conn
	out     chan Message
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter

	writeTimeout time.Duration
	pingPeriod   time.Duration
}

func newClient(id string, ws *websocket.Conn, opts Options) *client {
	return &client{
		id:           id,
		ws:           ws,
		out:          make(chan Message, opts.SendBuffer),
		done:         make(chan struct{}),
		limiter:      rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		writeTimeout: opts.WriteTimeout,
		pingPeriod:   opts.PongWait * 9 / 10,
	}
}

// send queues a message without blocking. Order of successful sends is
// preserved on the wire.
func (c *client) send(m Message) error {
	select {
	case <-c.done:
		return fmt.Errorf("client %s: %w", c.id, ErrClosed)
	default:
	}
	select {
	case c.out <- m:
		return nil
	case <-c.done:
		return fmt.Errorf("client %s: %w", c.id, ErrClosed)
	default:
		slog.Warn("dropping slow client", "client_id", c.id)
		c.close()
		return fmt.Errorf("client %s: %w", c.id, ErrSlowConsumer)
	}
}

func (c *client) reply(id string, err error) {
	_ = c.send(Message{Type: TypeError, ID: id, Payload: errorEnvelope(err), Timestamp: time.Now().UTC()})
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		// unblocks the read loop
		_ = c.ws.SetReadDeadline(time.Now())
	})
}

func (c *client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case m := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteJSON(m); err != nil {
				slog.Warn("write failed", "client_id", c.id, "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			c.drain()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.writeTimeout))
			return
		}
	}
}

// drain flushes messages queued before close.
func (c *client) drain() {
	for {
		select {
		case m := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteJSON(m); err != nil {
				return
			}
		default:
			return
		}
	}
}
