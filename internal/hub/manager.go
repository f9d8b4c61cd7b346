// Package hub is the session registry and event broadcaster: it maps live
// connections to identities and channels, and fans events out to them.
package hub

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"net/http"
	"slices"
	"sync"
	"time"

	"LanChat/internal/auth"
	"LanChat/internal/event"
	"LanChat/internal/metrics"
	"LanChat/internal/model"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrClientGone is returned when a connection is used after it was unregistered.
var ErrClientGone = errors.New("hub: client is no longer registered")

const (
	shardCount = 64 // tune: 16/64/128 depending on load

	AdminChannel = "admin:all"
)

func UserChannel(userID string) string                 { return "user:" + userID }
func CompanyChannel(companyID string) string           { return "company:" + companyID }
func ConversationChannel(conversationID string) string { return "conversation:" + conversationID }

type Config struct {
	WorkerPoolSize  int
	SendBuffer      int
	SendTimeout     time.Duration
	KickOnFull      bool
	EventsPerSecond float64
	EventBurst      int
	AllowedOrigins  []string
}

func (c *Config) applyDefaults() {
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = 16
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 2 * time.Second
	}
	if c.EventsPerSecond <= 0 {
		c.EventsPerSecond = 20
	}
	if c.EventBurst <= 0 {
		c.EventBurst = 40
	}
}

// HandlerFunc processes one inbound event of a connection.
type HandlerFunc func(ctx context.Context, c *Client, ev event.WsEvent)

// DisconnectFunc runs after a connection left every channel. last is true
// when it was the user's final live connection.
type DisconnectFunc func(c *Client, last bool)

type inboundMessage struct {
	event  event.WsEvent
	client *Client
}

type clientBucket struct {
	sync.RWMutex
	channels map[string]map[string]*Client
}

// Hub is safe for concurrent use. Registration and lookups are synchronous
// and lock-protected; inbound events of one connection always land on the
// same worker so they are handled in arrival order.
type Hub struct {
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	shards [shardCount]*clientBucket

	mu      sync.RWMutex
	clients map[string]*Client
	users   map[string]map[string]*Client

	handlersMu    sync.RWMutex
	handlers      map[string]HandlerFunc
	authenticated map[string]bool
	onDisconnect  []DisconnectFunc

	inbound  []chan inboundMessage
	upgrader websocket.Upgrader

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(cfg Config, logger *zap.Logger, m *metrics.Metrics) *Hub {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		cfg:           cfg,
		logger:        logger,
		metrics:       m,
		clients:       make(map[string]*Client),
		users:         make(map[string]map[string]*Client),
		handlers:      make(map[string]HandlerFunc),
		authenticated: make(map[string]bool),
		inbound:       make([]chan inboundMessage, cfg.WorkerPoolSize),
		ctx:           ctx,
		cancel:        cancel,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	for i := 0; i < shardCount; i++ {
		h.shards[i] = &clientBucket{channels: make(map[string]map[string]*Client)}
	}

	for i := range h.inbound {
		queue := make(chan inboundMessage, 256)
		h.inbound[i] = queue
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case in := <-queue:
					h.handleEvent(in.client, in.event)
				}
			}
		}()
	}

	return h
}

// -----------------------------------------------------------------------------
// Handler registration
// -----------------------------------------------------------------------------

// Handle registers fn for anonymous and authenticated connections.
func (h *Hub) Handle(name string, fn HandlerFunc) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.handlers[name] = fn
	h.authenticated[name] = false
}

// HandleAuthenticated registers fn for authenticated connections only.
func (h *Hub) HandleAuthenticated(name string, fn HandlerFunc) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.handlers[name] = fn
	h.authenticated[name] = true
}

func (h *Hub) OnDisconnect(fn DisconnectFunc) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.onDisconnect = append(h.onDisconnect, fn)
}

// dispatch hands ev to the worker owning c. It returns false when the worker
// stayed saturated for too long.
func (h *Hub) dispatch(c *Client, ev event.WsEvent) bool {
	queue := h.inbound[shardOf(c.ID, uint32(len(h.inbound)))]
	timer := time.NewTimer(inboundSendTimeout)
	defer timer.Stop()

	select {
	case queue <- inboundMessage{client: c, event: ev}:
		return true
	case <-c.ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}

func (h *Hub) handleEvent(c *Client, ev event.WsEvent) {
	if c.ctx.Err() != nil {
		return
	}

	h.handlersMu.RLock()
	fn, ok := h.handlers[ev.Event]
	needsAuth := h.authenticated[ev.Event]
	h.handlersMu.RUnlock()

	if !ok {
		h.logger.Debug("unknown event type", zap.String("event", ev.Event), zap.String("clientId", c.ID))
		c.SendError("UNKNOWN_EVENT", "unknown event", ev.Event)
		return
	}
	if _, authed := c.Identity(); needsAuth && !authed {
		c.SendError("UNAUTHENTICATED", "Not authenticated", ev.Event)
		return
	}

	fn(c.ctx, c, ev)
}

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

// Register tracks an anonymous connection.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	h.metrics.Connections.Inc()
	h.logger.Debug("client registered", zap.String("clientId", c.ID))
}

// Bind attaches identity to c and joins its private channels. It reports
// whether this is the user's first live connection, and fails with
// ErrClientGone when c was unregistered while it was authenticating.
func (h *Hub) Bind(c *Client, id auth.Identity) (bool, error) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok || c.ctx.Err() != nil {
		h.mu.Unlock()
		return false, ErrClientGone
	}

	c.mu.Lock()
	c.identity = &id
	c.mu.Unlock()

	conns, ok := h.users[id.UserID]
	if !ok {
		conns = make(map[string]*Client)
		h.users[id.UserID] = conns
	}
	conns[c.ID] = c
	first := len(conns) == 1

	h.join(c, UserChannel(id.UserID))
	if id.CompanyID != "" {
		h.join(c, CompanyChannel(id.CompanyID))
	}
	if id.IsAdmin() {
		h.join(c, AdminChannel)
	}
	h.mu.Unlock()

	h.logger.Info("client authenticated",
		zap.String("clientId", c.ID),
		zap.String("userId", id.UserID),
		zap.String("companyId", id.CompanyID),
	)
	return first, nil
}

// Unregister removes c from every channel and runs disconnect hooks once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)

	userID := c.UserID()
	last := false
	if conns, ok := h.users[userID]; ok && userID != "" {
		delete(conns, c.ID)
		if len(conns) == 0 {
			delete(h.users, userID)
			last = true
		}
	}
	h.mu.Unlock()

	for _, ch := range c.channelList() {
		h.Leave(c, ch)
	}
	c.Close()
	h.metrics.Connections.Dec()

	h.handlersMu.RLock()
	hooks := slices.Clone(h.onDisconnect)
	h.handlersMu.RUnlock()
	if userID != "" {
		for _, fn := range hooks {
			fn(c, last)
		}
	}

	h.logger.Debug("client unregistered", zap.String("clientId", c.ID), zap.Bool("lastConnection", last))
}

// Join adds c to channel. It reports false when c is no longer registered.
func (h *Hub) Join(c *Client, channel string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.ID]; !ok {
		return false
	}
	h.join(c, channel)
	return true
}

// join must run under h.mu so Unregister sees every channel it has to leave.
func (h *Hub) join(c *Client, channel string) {
	b := h.shards[shardOf(channel, shardCount)]
	b.Lock()
	members, ok := b.channels[channel]
	if !ok {
		members = make(map[string]*Client)
		b.channels[channel] = members
	}
	members[c.ID] = c
	b.Unlock()

	c.mu.Lock()
	c.channels[channel] = struct{}{}
	c.mu.Unlock()
}

func (h *Hub) Leave(c *Client, channel string) {
	b := h.shards[shardOf(channel, shardCount)]
	b.Lock()
	if members, ok := b.channels[channel]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(b.channels, channel)
		}
	}
	b.Unlock()

	c.mu.Lock()
	delete(c.channels, channel)
	c.mu.Unlock()
}

// Client returns the live connection with the given id.
func (h *Hub) Client(id string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	return c, ok
}

// UserConnections returns the live connections of userID.
func (h *Hub) UserConnections(userID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := h.users[userID]
	out := make([]*Client, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// -----------------------------------------------------------------------------
// Broadcast
// -----------------------------------------------------------------------------

// Publish delivers ev to every connection joined to channel except the
// optional origin. Delivery is best effort and never blocks.
func (h *Hub) Publish(channel string, ev event.WsEvent, except *Client) int {
	b := h.shards[shardOf(channel, shardCount)]

	// collect clients while holding RLock
	b.RLock()
	members := b.channels[channel]
	clients := make([]*Client, 0, len(members))
	for _, c := range members {
		if except == nil || c.ID != except.ID {
			clients = append(clients, c)
		}
	}
	b.RUnlock()

	// deliver to clients without holding lock
	sent := 0
	for _, c := range clients {
		if c.Send(ev) {
			sent++
		}
	}
	return sent
}

// EmitToUser delivers ev to every connection of userID.
func (h *Hub) EmitToUser(userID string, ev event.WsEvent) {
	if h.Publish(UserChannel(userID), ev, nil) == 0 {
		h.logger.Debug("no live connection for user", zap.String("userId", userID), zap.String("event", ev.Event))
	}
}

// -----------------------------------------------------------------------------
// Transport
// -----------------------------------------------------------------------------

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.cfg.AllowedOrigins, "*") || slices.Contains(h.cfg.AllowedOrigins, origin)
}

// ServeWS upgrades the request and starts the connection pumps. The
// connection stays anonymous until it sends authenticate.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Info("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(h, conn)
	h.Register(c)
	go c.WriteMessages()
	go c.ReadMessages()
}

// Stats is a consistent snapshot of the registry for monitoring.
func (h *Hub) Stats() (model.ConnectionStats, model.ChannelStats, []model.ClientInfo) {
	h.mu.RLock()
	conns := model.ConnectionStats{
		TotalConnected: len(h.clients),
		UniqueUsers:    len(h.users),
	}
	clients := make([]model.ClientInfo, 0, len(h.clients))
	for _, c := range h.clients {
		info := model.ClientInfo{ClientID: c.ID, Channels: len(c.channelList())}
		if id, ok := c.Identity(); ok {
			conns.Authenticated++
			info.UserID = id.UserID
			info.CompanyID = id.CompanyID
			info.Role = id.Role
		} else {
			conns.Anonymous++
		}
		clients = append(clients, info)
	}
	h.mu.RUnlock()

	channels := model.ChannelStats{ChannelDetails: make([]model.ChannelInfo, 0)}
	for _, b := range h.shards {
		b.RLock()
		for name, members := range b.channels {
			channels.ChannelDetails = append(channels.ChannelDetails, model.ChannelInfo{Name: name, Connections: len(members)})
		}
		b.RUnlock()
	}
	channels.TotalChannels = len(channels.ChannelDetails)
	slices.SortFunc(channels.ChannelDetails, func(a, b model.ChannelInfo) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return conns, channels, clients
}

// Stop disconnects every client and stops the workers.
func (h *Hub) Stop() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.Unregister(c)
	}

	h.cancel()
	h.wg.Wait()
	h.logger.Info("hub stopped", zap.Int("clients", len(clients)))
}

func shardOf(key string, n uint32) uint32 {
	if key == "" {
		return 0
	}

	sum := sha1.Sum([]byte(key))
	return binary.BigEndian.Uint32(sum[:4]) % n
}

func errorPayload(code, message, cause string) model.ErrorPayload {
	return model.ErrorPayload{Code: code, Message: message, Event: cause}
}
