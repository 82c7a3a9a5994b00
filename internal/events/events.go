// Package events defines the realtime protocol: the closed set of server
// events, the client messages, and their JSON envelopes.
package events

import (
	"time"

	"courier-backend/internal/models"

	"github.com/google/uuid"
)

// EventType is the wire discriminator of a server event
type EventType string

const (
	TypeAuthenticated        EventType = "authenticated"
	TypeAuthenticationFailed EventType = "authentication_failed"
	TypeNotification         EventType = "notification"
	TypeNotificationUpdate   EventType = "notification_update"
	TypeNotificationCount    EventType = "notification_count"
	TypeOrderUpdate          EventType = "order_update"
	TypeOrderAccepted        EventType = "order_accepted"
	TypeSessionConflict      EventType = "session_conflict"
	TypeForceLogout          EventType = "force_logout"
)

// Order update actions carried by order_update events
const (
	OrderCreated   = "created"
	OrderAssigned  = "assigned"
	OrderPickedUp  = "picked_up"
	OrderDelivered = "delivered"
	OrderStale     = "stale"
)

// Notification update actions carried by notification_update events
const (
	NotificationEdited    = "edited"
	NotificationDeleted   = "deleted"
	NotificationConfirmed = "confirmed"
)

// Header is shared by every event. The id is assigned once per logical event,
// so every channel of a multi-tab identity sees the same id.
type Header struct {
	ID string
	At time.Time
}

func newHeader() Header {
	return Header{ID: uuid.New().String(), At: time.Now().UTC()}
}

// Event is implemented only by the variants in this package:
// *AuthEvent, *OrderEvent, *NotificationEvent and *SessionEvent.
type Event interface {
	Type() EventType
	Meta() Header
	sealed()
}

// AuthEvent answers a channel handshake
type AuthEvent struct {
	Header
	Kind     EventType // authenticated | authentication_failed
	Identity models.Identity
	ShopID   string
	Reason   string
}

func Authenticated(identity models.Identity, shopID string) *AuthEvent {
	return &AuthEvent{Header: newHeader(), Kind: TypeAuthenticated, Identity: identity, ShopID: shopID}
}

func AuthenticationFailed(reason string) *AuthEvent {
	return &AuthEvent{Header: newHeader(), Kind: TypeAuthenticationFailed, Reason: reason}
}

func (e *AuthEvent) Type() EventType { return e.Kind }
func (e *AuthEvent) Meta() Header    { return e.Header }
func (*AuthEvent) sealed()           {}

// DriverInfo is the display identity of a driver shown to shops
type DriverInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// OrderEvent reports an order lifecycle change
type OrderEvent struct {
	Header
	Kind   EventType // order_update | order_accepted
	Action string
	Order  models.Order
	Driver *DriverInfo
}

func OrderAccepted(order models.Order, driver DriverInfo) *OrderEvent {
	return &OrderEvent{Header: newHeader(), Kind: TypeOrderAccepted, Action: OrderAssigned, Order: order, Driver: &driver}
}

func OrderUpdated(action string, order models.Order) *OrderEvent {
	return &OrderEvent{Header: newHeader(), Kind: TypeOrderUpdate, Action: action, Order: order}
}

func (e *OrderEvent) Type() EventType { return e.Kind }
func (e *OrderEvent) Meta() Header    { return e.Header }
func (*OrderEvent) sealed()           {}

// NotificationEvent covers new notifications, edits/deletions/confirmations
// and the pending counter.
type NotificationEvent struct {
	Header
	Kind           EventType // notification | notification_update | notification_count
	Action         string
	NotificationID string
	Notification   *models.Notification
	Count          int
}

func NotificationCreated(n models.Notification) *NotificationEvent {
	return &NotificationEvent{Header: newHeader(), Kind: TypeNotification, NotificationID: n.ID, Notification: &n}
}

// NotificationUpdated builds a notification_update. For deletions n carries
// only the ids.
func NotificationUpdated(action string, n models.Notification) *NotificationEvent {
	ev := &NotificationEvent{Header: newHeader(), Kind: TypeNotificationUpdate, Action: action, NotificationID: n.ID}
	if action != NotificationDeleted {
		ev.Notification = &n
	}
	return ev
}

func NotificationCount(count int) *NotificationEvent {
	return &NotificationEvent{Header: newHeader(), Kind: TypeNotificationCount, Count: count}
}

func (e *NotificationEvent) Type() EventType { return e.Kind }
func (e *NotificationEvent) Meta() Header    { return e.Header }
func (*NotificationEvent) sealed()           {}

// SessionEvent tells a channel its session is gone
type SessionEvent struct {
	Header
	Kind    EventType // session_conflict | force_logout
	Reason  string
	Message string
}

func SessionConflict() *SessionEvent {
	return &SessionEvent{
		Header:  newHeader(),
		Kind:    TypeSessionConflict,
		Reason:  "logged_in_elsewhere",
		Message: "Your account was signed in on another device",
	}
}

func ForceLogout(reason string) *SessionEvent {
	return &SessionEvent{
		Header:  newHeader(),
		Kind:    TypeForceLogout,
		Reason:  reason,
		Message: "Your session has ended, please sign in again",
	}
}

func (e *SessionEvent) Type() EventType { return e.Kind }
func (e *SessionEvent) Meta() Header    { return e.Header }
func (*SessionEvent) sealed()           {}
