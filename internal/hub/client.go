package hub

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"LanChat/internal/auth"
	"LanChat/internal/event"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// tuning parameters
	writeWait          = 10 * time.Second       // time allowed to write a message to the peer
	pongWait           = 60 * time.Second       // time allowed to read the next pong message from the peer
	pingInterval       = (pongWait * 9) / 10    // send pings to peer with this period
	maxMessageSize     = 64 * 1024              // max inbound message size (64KB)
	inboundSendTimeout = 500 * time.Millisecond // timeout for handing an event to a worker
)

// Client is one live event channel connection. It starts anonymous and gets
// an identity once authenticate succeeds.
type Client struct {
	ID string

	conn    *websocket.Conn
	hub     *Hub
	egress  chan event.WsEvent
	limiter *rate.Limiter

	mu       sync.RWMutex
	identity *auth.Identity
	channels map[string]struct{}

	// fullSince is the unix nano time the send buffer was first found full, 0 otherwise.
	fullSince atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(h.ctx)
	return &Client{
		ID:       uuid.NewString(),
		conn:     conn,
		hub:      h,
		egress:   make(chan event.WsEvent, h.cfg.SendBuffer),
		limiter:  rate.NewLimiter(rate.Limit(h.cfg.EventsPerSecond), h.cfg.EventBurst),
		channels: make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Identity returns the authenticated identity, or false while anonymous.
func (c *Client) Identity() (auth.Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return auth.Identity{}, false
	}
	return *c.identity, true
}

// UserID is empty while the connection is anonymous.
func (c *Client) UserID() string {
	id, _ := c.Identity()
	return id.UserID
}

// InChannel reports whether the connection joined channel.
func (c *Client) InChannel(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[channel]
	return ok
}

func (c *Client) channelList() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	return out
}

// Send enqueues ev without blocking. A connection whose buffer stays full
// longer than the send timeout is disconnected when kicking is enabled.
func (c *Client) Send(ev event.WsEvent) bool {
	if c.ctx.Err() != nil {
		return false
	}

	select {
	case c.egress <- ev:
		c.fullSince.Store(0)
		c.hub.metrics.EventsDelivered.WithLabelValues(ev.Event).Inc()
		return true
	default:
	}

	c.hub.metrics.EventsDropped.WithLabelValues("buffer_full").Inc()
	now := time.Now().UnixNano()
	if c.fullSince.CompareAndSwap(0, now) {
		return false
	}
	if c.hub.cfg.KickOnFull && time.Duration(now-c.fullSince.Load()) > c.hub.cfg.SendTimeout {
		c.hub.logger.Warn("egress full, disconnecting slow client", zap.String("clientId", c.ID))
		go c.hub.Unregister(c)
	}
	return false
}

// SendError replies with an error event on this connection only.
func (c *Client) SendError(code, message, cause string) {
	c.Send(event.New(event.EventError, errorPayload(code, message, cause)))
}

// ReadMessages pumps inbound frames to the hub until the connection fails.
func (c *Client) ReadMessages() {
	defer c.hub.Unregister(c)

	c.conn.SetReadLimit(int64(maxMessageSize))
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(c.pongHandler)

	for {
		var ev event.WsEvent
		if err := c.conn.ReadJSON(&ev); err != nil {
			c.logReadError(err)
			return
		}

		if !c.limiter.Allow() {
			c.hub.metrics.EventsDropped.WithLabelValues("rate_limited").Inc()
			c.SendError("RATE_LIMITED", "too many events", ev.Event)
			continue
		}

		if !c.hub.dispatch(c, ev) {
			c.hub.logger.Warn("inbound queue full, dropping client", zap.String("clientId", c.ID))
			return
		}
	}
}

func (c *Client) logReadError(err error) {
	var ne net.Error
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.hub.logger.Debug("client disconnected", zap.String("clientId", c.ID))
	case errors.As(err, &ne) && ne.Timeout():
		c.hub.logger.Info("client timed out", zap.String("clientId", c.ID))
	case c.ctx.Err() != nil:
		// closed by us
	default:
		c.hub.logger.Info("error reading from client", zap.String("clientId", c.ID), zap.Error(err))
	}
}

// WriteMessages drains the egress queue and keeps the connection alive with pings.
func (c *Client) WriteMessages() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case ev := <-c.egress:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.hub.logger.Debug("write failed", zap.String("clientId", c.ID), zap.Error(err))
				c.cancel()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.cancel()
				return
			}
		}
	}
}

func (c *Client) pongHandler(string) error {
	return c.conn.SetReadDeadline(time.Now().Add(pongWait))
}

// Close stops both pumps. The egress channel is never closed, so late
// senders cannot panic.
func (c *Client) Close() {
	c.once.Do(func() {
		c.cancel()
		if c.conn != nil {
			// unblock ReadJSON
			_ = c.conn.SetReadDeadline(time.Now())
		}
	})
}
