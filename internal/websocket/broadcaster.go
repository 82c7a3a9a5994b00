package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"courier-backend/internal/events"
	"courier-backend/internal/metrics"
	"courier-backend/internal/models"
	"courier-backend/internal/services"

	"go.uber.org/zap"
)

const pushTimeout = 15 * time.Second

// PushTransport delivers one system-level notification to one endpoint
type PushTransport interface {
	Deliver(ctx context.Context, endpoint string, msg services.PushMessage) error
}

// SubscriptionStore lists the push endpoints registered for an account
type SubscriptionStore interface {
	ListPushSubscriptions(ctx context.Context, identity models.Identity) ([]models.PushSubscription, error)
}

// Broadcaster fans events out through the hub and falls back to push delivery
// for identities with no live channel. It never reports delivery failures.
type Broadcaster struct {
	hub    *Hub
	push   PushTransport
	subs   SubscriptionStore
	logger *zap.Logger

	wg sync.WaitGroup
}

// NewBroadcaster creates a broadcaster. push may be nil, which disables the fallback.
func NewBroadcaster(hub *Hub, push PushTransport, subs SubscriptionStore, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		hub:    hub,
		push:   push,
		subs:   subs,
		logger: logger,
	}
}

// Send delivers ev to every channel of identity. When none is live the event
// is handed to the push transport in the background.
func (b *Broadcaster) Send(ctx context.Context, identity models.Identity, ev events.Event) int {
	n := b.hub.Send(identity, ev)
	if n == 0 {
		b.logger.Debug("no live channel, trying push",
			zap.String("account_id", identity.AccountID),
			zap.String("event", string(ev.Type())),
			zap.Error(ErrChannelUnavailable),
		)
		b.fallback(ctx, identity, ev)
	}
	return n
}

// SendToRoster delivers ev to every driver on roster, with push fallback per
// driver that has no live channel.
func (b *Broadcaster) SendToRoster(ctx context.Context, roster []string, ev events.Event) {
	for _, driverID := range b.hub.SendToShopRoster(roster, ev) {
		b.fallback(ctx, models.DriverIdentity(driverID), ev)
	}
}

// Evict sends ev to every channel of the account and closes them. Session
// events never go through push.
func (b *Broadcaster) Evict(accountID string, ev events.Event) int {
	return b.hub.Evict(accountID, ev)
}

// EvictExcept is Evict that spares channels authenticated with keepToken
func (b *Broadcaster) EvictExcept(accountID, keepToken string, ev events.Event) int {
	return b.hub.EvictExcept(accountID, keepToken, ev)
}

// Wait blocks until every in-flight push fallback has finished
func (b *Broadcaster) Wait() {
	b.wg.Wait()
}

func (b *Broadcaster) fallback(ctx context.Context, identity models.Identity, ev events.Event) {
	if b.push == nil || b.subs == nil {
		return
	}
	msg, ok := pushContent(ev)
	if !ok {
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		// The request that caused the event may already be finished
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
		defer cancel()

		if err := b.deliver(pushCtx, identity, msg); err != nil {
			metrics.PushFallbacksTotal.WithLabelValues("failed").Inc()
			b.logger.Warn("push fallback failed",
				zap.String("account_id", identity.AccountID),
				zap.String("event", string(ev.Type())),
				zap.Error(err),
			)
		}
	}()
}

func (b *Broadcaster) deliver(ctx context.Context, identity models.Identity, msg services.PushMessage) error {
	subs, err := b.subs.ListPushSubscriptions(ctx, identity)
	if err != nil {
		return fmt.Errorf("listing push subscriptions: %w", err)
	}
	if len(subs) == 0 {
		metrics.PushFallbacksTotal.WithLabelValues("no_subscription").Inc()
		return nil
	}

	var errs []error
	for _, sub := range subs {
		if err := b.push.Deliver(ctx, sub.Endpoint, msg); err != nil {
			errs = append(errs, fmt.Errorf("subscription %d: %w", sub.ID, err))
			continue
		}
		metrics.PushFallbacksTotal.WithLabelValues("delivered").Inc()
	}
	return errors.Join(errs...)
}

// pushContent maps an event to the notification a backgrounded client shows.
// Events with no user-facing meaning are not pushed.
func pushContent(ev events.Event) (services.PushMessage, bool) {
	data := map[string]string{
		"type":     string(ev.Type()),
		"event_id": ev.Meta().ID,
	}

	switch e := ev.(type) {
	case *events.NotificationEvent:
		switch e.Kind {
		case events.TypeNotification:
			data["notification_id"] = e.NotificationID
			if e.Notification.OrderID != nil {
				data["order_id"] = *e.Notification.OrderID
			}
			return services.PushMessage{Title: "New delivery request", Body: e.Notification.Message, Data: data}, true
		case events.TypeNotificationUpdate:
			if e.Action != events.NotificationEdited {
				return services.PushMessage{}, false
			}
			data["notification_id"] = e.NotificationID
			data["action"] = e.Action
			return services.PushMessage{Title: "Delivery request updated", Body: e.Notification.Message, Data: data}, true
		}

	case *events.OrderEvent:
		data["order_id"] = e.Order.ID
		data["action"] = e.Action
		switch {
		case e.Kind == events.TypeOrderAccepted:
			body := "A driver accepted your order"
			if e.Driver != nil && e.Driver.Name != "" {
				body = e.Driver.Name + " accepted your order"
			}
			return services.PushMessage{Title: "Order accepted", Body: body, Data: data}, true
		case e.Action == events.OrderPickedUp:
			return services.PushMessage{Title: "Order picked up", Body: "Your order is on its way to " + e.Order.Address, Data: data}, true
		case e.Action == events.OrderDelivered:
			return services.PushMessage{Title: "Order delivered", Body: "Your order was delivered to " + e.Order.Address, Data: data}, true
		}
	}
	return services.PushMessage{}, false
}
