package websocket

import (
	"context"
	"errors"
	"sync"

	"courier-backend/internal/events"
	"courier-backend/internal/metrics"
	"courier-backend/internal/models"
	"courier-backend/internal/sessions"

	"go.uber.org/zap"
)

// ErrChannelUnavailable means an identity has no live channel; the broadcaster
// falls back to push delivery.
var ErrChannelUnavailable = errors.New("no live channel for identity")

// ErrSessionReplaced means a handshake's session was superseded before the
// channel could be indexed. The channel has already been told and closed.
var ErrSessionReplaced = errors.New("session replaced by a newer login")

// Authenticator validates channel handshakes and heartbeats
type Authenticator interface {
	Authenticate(claim models.Identity, token string) (sessions.Session, error)
	Touch(token string) bool
	// IsCurrent reports whether token is still the live session of accountID
	IsCurrent(accountID, token string) bool
}

// Dispatcher runs the lifecycle operations a channel may request. A non-nil
// reply is sent to the requesting channel only.
type Dispatcher interface {
	OrderAction(ctx context.Context, actor models.Identity, req events.OrderActionRequest) (events.Event, error)
	NotificationAction(ctx context.Context, actor models.Identity, req events.NotificationUpdateRequest) (events.Event, error)
}

// Hub maintains realtime channels indexed by account id. A channel enters the
// index only once its handshake succeeds; an account may have many channels.
type Hub struct {
	mu sync.RWMutex

	// Channels still waiting for their authenticate frame
	connecting map[*Client]struct{}

	// Authenticated channels (accountID -> set of clients)
	channels map[string]map[*Client]struct{}

	authenticator Authenticator
	dispatcher    Dispatcher

	logger *zap.Logger
}

// NewHub creates a new Hub instance
func NewHub(authenticator Authenticator, logger *zap.Logger) *Hub {
	return &Hub{
		connecting:    make(map[*Client]struct{}),
		channels:      make(map[string]map[*Client]struct{}),
		authenticator: authenticator,
		logger:        logger,
	}
}

// SetDispatcher wires the handler for order_action and notification_update frames.
// It must be called before the hub accepts connections.
func (h *Hub) SetDispatcher(d Dispatcher) {
	h.dispatcher = d
}

// Register adds a freshly opened, unauthenticated channel
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.state = StateConnecting
	h.connecting[c] = struct{}{}
}

// Authenticate runs the handshake for c. On success the channel moves to the
// identity index and receives an authenticated event.
func (h *Hub) Authenticate(c *Client, msg *events.Authenticate) error {
	session, err := h.authenticator.Authenticate(msg.Identity(), msg.Token)
	if err != nil {
		return err
	}

	identity := session.Identity()
	shopID := msg.ShopID
	if identity.AccountType == models.AccountTypeShop {
		shopID = identity.AccountID
	}

	h.mu.Lock()
	if c.state != StateConnecting {
		h.mu.Unlock()
		return errors.New("channel is not awaiting authentication")
	}
	// A login that landed after the token check has already run its eviction
	// and would miss this channel once indexed.
	if !h.authenticator.IsCurrent(identity.AccountID, msg.Token) {
		if data, err := events.Encode(events.SessionConflict()); err == nil {
			c.enqueue(data)
		}
		h.removeLocked(c)
		h.mu.Unlock()
		h.logger.Info("handshake lost to a newer login",
			zap.String("channel_id", c.ID),
			zap.String("account_id", identity.AccountID),
		)
		return ErrSessionReplaced
	}
	delete(h.connecting, c)
	c.state = StateAuthenticated
	c.identity = identity
	c.shopID = shopID
	c.token = msg.Token
	set, ok := h.channels[identity.AccountID]
	if !ok {
		set = make(map[*Client]struct{})
		h.channels[identity.AccountID] = set
	}
	set[c] = struct{}{}
	total := h.countLocked()
	h.mu.Unlock()

	metrics.ConnectedChannels.Inc()
	h.logger.Info("✅ realtime channel authenticated",
		zap.String("channel_id", c.ID),
		zap.String("account_id", identity.AccountID),
		zap.String("account_type", string(identity.AccountType)),
		zap.Int("connected_channels", total),
	)

	h.deliver(c, events.Authenticated(identity, shopID))
	return nil
}

// Unregister removes c from the hub and closes its send buffer. Safe to call
// any number of times.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	wasAuthenticated := h.removeLocked(c)
	h.mu.Unlock()

	if wasAuthenticated {
		metrics.ConnectedChannels.Dec()
		h.logger.Info("🔴 realtime channel closed",
			zap.String("channel_id", c.ID),
			zap.String("account_id", c.identity.AccountID),
		)
	}
}

// removeLocked must be called with h.mu held. It reports whether c was authenticated.
func (h *Hub) removeLocked(c *Client) bool {
	if c.state == StateClosed {
		return false
	}
	wasAuthenticated := c.state == StateAuthenticated

	delete(h.connecting, c)
	if set, ok := h.channels[c.identity.AccountID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.channels, c.identity.AccountID)
		}
	}
	c.state = StateClosed
	close(c.send)
	return wasAuthenticated
}

// Send delivers ev to every authenticated channel of identity and returns how
// many channels accepted it. Zero is not an error here.
func (h *Hub) Send(identity models.Identity, ev events.Event) int {
	data, err := events.Encode(ev)
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("event", string(ev.Type())), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	var delivered int
	var slow []*Client
	for c := range h.channels[identity.AccountID] {
		if c.identity.AccountType != identity.AccountType {
			continue
		}
		if c.enqueue(data) {
			delivered++
		} else {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	h.dropSlow(slow)
	if delivered > 0 {
		metrics.EventsSentTotal.WithLabelValues(string(ev.Type())).Add(float64(delivered))
	}
	return delivered
}

// SendToShopRoster delivers ev to every authenticated driver channel whose
// account is on roster. It returns the roster drivers that had no live channel.
func (h *Hub) SendToShopRoster(roster []string, ev events.Event) []string {
	data, err := events.Encode(ev)
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("event", string(ev.Type())), zap.Error(err))
		return roster
	}

	h.mu.RLock()
	var delivered int
	var missing []string
	var slow []*Client
	for _, driverID := range roster {
		reached := false
		for c := range h.channels[driverID] {
			if c.identity.AccountType != models.AccountTypeDriver {
				continue
			}
			if c.enqueue(data) {
				delivered++
				reached = true
			} else {
				slow = append(slow, c)
			}
		}
		if !reached {
			missing = append(missing, driverID)
		}
	}
	h.mu.RUnlock()

	h.dropSlow(slow)
	if delivered > 0 {
		metrics.EventsSentTotal.WithLabelValues(string(ev.Type())).Add(float64(delivered))
	}
	return missing
}

// Evict sends ev to every channel of the account and then closes them
func (h *Hub) Evict(accountID string, ev events.Event) int {
	return h.EvictExcept(accountID, "", ev)
}

// EvictExcept is Evict that spares channels authenticated with keepToken
func (h *Hub) EvictExcept(accountID, keepToken string, ev events.Event) int {
	data, err := events.Encode(ev)
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("event", string(ev.Type())), zap.Error(err))
	}

	h.mu.Lock()
	var closed int
	for c := range h.channels[accountID] {
		if keepToken != "" && c.token == keepToken {
			continue
		}
		if data != nil {
			c.enqueue(data)
		}
		h.removeLocked(c)
		closed++
	}
	h.mu.Unlock()

	if closed > 0 {
		metrics.ConnectedChannels.Sub(float64(closed))
		h.logger.Info("evicted realtime channels",
			zap.String("account_id", accountID),
			zap.String("event", string(ev.Type())),
			zap.Int("channels", closed),
		)
	}
	return closed
}

// deliver sends ev to a single channel regardless of its state
func (h *Hub) deliver(c *Client, ev events.Event) {
	data, err := events.Encode(ev)
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("event", string(ev.Type())), zap.Error(err))
		return
	}

	h.mu.RLock()
	closed := c.state == StateClosed
	ok := !closed && c.enqueue(data)
	h.mu.RUnlock()

	if !ok && !closed {
		h.dropSlow([]*Client{c})
	}
}

func (h *Hub) dropSlow(slow []*Client) {
	for _, c := range slow {
		h.logger.Warn("⚠️ channel buffer full, disconnecting",
			zap.String("channel_id", c.ID),
			zap.String("account_id", c.identity.AccountID),
		)
		h.Unregister(c)
	}
}

// IsConnected reports whether identity has at least one authenticated channel
func (h *Hub) IsConnected(identity models.Identity) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.channels[identity.AccountID] {
		if c.identity.AccountType == identity.AccountType {
			return true
		}
	}
	return false
}

// GetClientCount returns the number of authenticated channels
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.countLocked()
}

func (h *Hub) countLocked() int {
	n := 0
	for _, set := range h.channels {
		n += len(set)
	}
	return n
}

// GetConnectedIdentities returns every identity with a live channel
func (h *Hub) GetConnectedIdentities() []models.Identity {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[models.Identity]struct{})
	ids := make([]models.Identity, 0, len(h.channels))
	for _, set := range h.channels {
		for c := range set {
			if _, dup := seen[c.identity]; dup {
				continue
			}
			seen[c.identity] = struct{}{}
			ids = append(ids, c.identity)
		}
	}
	return ids
}
