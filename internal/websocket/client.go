package websocket

import (
	"context"
	"errors"
	"time"

	"courier-backend/internal/events"
	"courier-backend/internal/models"
	"courier-backend/internal/sessions"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Frames buffered per channel before it is treated as a slow consumer
	sendBufferSize = 256

	// Upper bound for one dispatched order_action / notification_update
	dispatchTimeout = 10 * time.Second
)

// ChannelState is the handshake state of a channel
type ChannelState int

const (
	StateConnecting ChannelState = iota
	StateAuthenticated
	StateClosed
)

func (s ChannelState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "closed"
	}
}

// Client is one realtime channel. Its state, identity and token are guarded
// by the hub lock.
type Client struct {
	ID   string
	conn *websocket.Conn
	hub  *Hub
	send chan []byte

	state    ChannelState
	identity models.Identity
	shopID   string
	token    string
}

// NewClient creates a channel for conn. conn may be nil for channels driven
// directly through the hub.
func NewClient(conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		ID:   uuid.New().String(),
		conn: conn,
		hub:  hub,
		send: make(chan []byte, sendBufferSize),
	}
}

// enqueue never blocks; false means the buffer is full
func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// ReadPump pumps frames from the connection into the hub. The connection is
// closed by WritePump once the frames already queued are flushed.
func (c *Client) ReadPump() {
	defer c.hub.Unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error", zap.String("channel_id", c.ID), zap.Error(err))
			}
			return
		}

		msg, err := events.DecodeClientMessage(frame)
		if err != nil {
			c.hub.logger.Warn("invalid client frame", zap.String("channel_id", c.ID), zap.Error(err))
			continue
		}

		if !c.handle(msg) {
			return
		}
	}
}

// handle processes one client frame. It returns false when the channel must close.
func (c *Client) handle(msg events.ClientMessage) bool {
	h := c.hub

	h.mu.RLock()
	state := c.state
	identity := c.identity
	token := c.token
	h.mu.RUnlock()

	if state == StateClosed {
		return false
	}

	if auth, ok := msg.(*events.Authenticate); ok {
		if state == StateAuthenticated {
			h.logger.Debug("ignoring repeated authenticate frame", zap.String("channel_id", c.ID))
			return true
		}
		if err := h.Authenticate(c, auth); err != nil {
			if errors.Is(err, ErrSessionReplaced) {
				return false
			}
			h.logger.Warn("channel authentication failed",
				zap.String("channel_id", c.ID),
				zap.String("account_id", auth.AccountID),
				zap.Error(err),
			)
			c.fail(err)
			return false
		}
		return true
	}

	if state != StateAuthenticated {
		c.fail(errors.New("authenticate first"))
		return false
	}

	switch m := msg.(type) {
	case *events.Heartbeat:
		if !h.authenticator.Touch(token) {
			h.logger.Info("heartbeat for a dead session", zap.String("channel_id", c.ID), zap.String("account_id", identity.AccountID))
			h.deliver(c, events.ForceLogout("session_expired"))
			h.Unregister(c)
			return false
		}

	case *events.OrderActionRequest:
		c.dispatch(func(ctx context.Context) (events.Event, error) {
			return h.dispatcher.OrderAction(ctx, identity, *m)
		})

	case *events.NotificationUpdateRequest:
		c.dispatch(func(ctx context.Context) (events.Event, error) {
			return h.dispatcher.NotificationAction(ctx, identity, *m)
		})
	}
	return true
}

func (c *Client) dispatch(run func(ctx context.Context) (events.Event, error)) {
	if c.hub.dispatcher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	reply, err := run(ctx)
	if err != nil {
		c.hub.logger.Info("channel request rejected", zap.String("channel_id", c.ID), zap.Error(err))
	}
	if reply != nil {
		c.hub.deliver(c, reply)
	}
}

// fail answers a bad handshake and closes the channel
func (c *Client) fail(err error) {
	reason := "invalid_session"
	if !errors.Is(err, sessions.ErrAuthenticationFailed) {
		reason = err.Error()
	}
	c.hub.deliver(c, events.AuthenticationFailed(reason))
	c.hub.Unregister(c)
}

// WritePump pumps frames from the hub to the connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			// One frame per event; clients parse each frame as a single JSON document.
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
