package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/incubator-platform/support-chat/internal/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 64
)

// Client is one authenticated socket. rooms is guarded by the hub lock.
type Client struct {
	id       string
	identity auth.Identity
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	rooms    map[string]struct{}
	log      *zap.Logger
}

func newClient(conn *websocket.Conn, id auth.Identity, buffer int, log *zap.Logger) *Client {
	if buffer <= 0 {
		buffer = sendBuffer
	}
	cid := uuid.NewString()
	return &Client{
		id:       cid,
		identity: id,
		conn:     conn,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
		rooms:    make(map[string]struct{}),
		log:      log.With(zap.String("conn_id", cid), zap.String("user_id", id.UserID), zap.String("role", string(id.Role))),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) UserID() string { return c.identity.UserID }

func (c *Client) Identity() auth.Identity { return c.identity }

// Send encodes and queues f. It never blocks: frames to a closed client
// or a full buffer are dropped.
func (c *Client) Send(f Frame) bool {
	b, err := encode(f)
	if err != nil {
		c.log.Error("encode frame", zap.String("type", f.Type), zap.Error(err))
		return false
	}
	return c.enqueue(b)
}

func (c *Client) enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		c.log.Warn("send buffer full, frame dropped")
		return false
	}
}

// Close sends a close frame with reason and tears the socket down. Safe to
// call more than once.
func (c *Client) Close(reason string) {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			_ = c.conn.Close()
		}
	})
}

// readPump decodes frames and hands them to handle in order. It returns
// when the socket fails or is closed.
func (c *Client) readPump(handle func(Request)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Info("read failed", zap.Error(err))
			}
			return
		}
		var req Request
		if err := json.Unmarshal(data, &req); err != nil || req.Type == "" {
			c.Send(Frame{Type: EventError, Data: ErrorEvent{Message: "malformed frame"}})
			continue
		}
		handle(req)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.log.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
