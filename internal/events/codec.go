package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"courier-backend/internal/models"
)

// ErrUnknownType is returned when an envelope carries a type outside the protocol
var ErrUnknownType = errors.New("unknown message type")

// Envelope is the frame layout for both directions
type Envelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type authData struct {
	AccountID   string             `json:"account_id,omitempty"`
	AccountType models.AccountType `json:"account_type,omitempty"`
	ShopID      string             `json:"shop_id,omitempty"`
	Reason      string             `json:"reason,omitempty"`
}

type orderData struct {
	Action string       `json:"action"`
	Order  models.Order `json:"order"`
	Driver *DriverInfo  `json:"driver,omitempty"`
}

type notificationData struct {
	Action         string               `json:"action,omitempty"`
	NotificationID string               `json:"notification_id,omitempty"`
	Notification   *models.Notification `json:"notification,omitempty"`
	Count          *int                 `json:"count,omitempty"`
}

type sessionData struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// Encode renders a server event as a JSON frame
func Encode(ev Event) ([]byte, error) {
	var data any
	switch e := ev.(type) {
	case *AuthEvent:
		data = authData{
			AccountID:   e.Identity.AccountID,
			AccountType: e.Identity.AccountType,
			ShopID:      e.ShopID,
			Reason:      e.Reason,
		}
	case *OrderEvent:
		data = orderData{Action: e.Action, Order: e.Order, Driver: e.Driver}
	case *NotificationEvent:
		d := notificationData{Action: e.Action, NotificationID: e.NotificationID, Notification: e.Notification}
		if e.Kind == TypeNotificationCount {
			count := e.Count
			d.Count = &count
		}
		data = d
	case *SessionEvent:
		data = sessionData{Reason: e.Reason, Message: e.Message}
	default:
		return nil, fmt.Errorf("encode %T: %w", ev, ErrUnknownType)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", ev.Type(), err)
	}
	meta := ev.Meta()
	return json.Marshal(Envelope{
		Type:      string(ev.Type()),
		ID:        meta.ID,
		Timestamp: meta.At.Format(time.RFC3339),
		Data:      raw,
	})
}

// Decode parses a server frame back into its variant. Go clients and tests use
// it; the server never reads its own events.
func Decode(frame []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	header := Header{ID: env.ID}
	if env.Timestamp != "" {
		if at, err := time.Parse(time.RFC3339, env.Timestamp); err == nil {
			header.At = at
		}
	}

	kind := EventType(env.Type)
	switch kind {
	case TypeAuthenticated, TypeAuthenticationFailed:
		var d authData
		if err := unmarshalData(env, &d); err != nil {
			return nil, err
		}
		return &AuthEvent{
			Header:   header,
			Kind:     kind,
			Identity: models.Identity{AccountID: d.AccountID, AccountType: d.AccountType},
			ShopID:   d.ShopID,
			Reason:   d.Reason,
		}, nil

	case TypeOrderUpdate, TypeOrderAccepted:
		var d orderData
		if err := unmarshalData(env, &d); err != nil {
			return nil, err
		}
		return &OrderEvent{Header: header, Kind: kind, Action: d.Action, Order: d.Order, Driver: d.Driver}, nil

	case TypeNotification, TypeNotificationUpdate, TypeNotificationCount:
		var d notificationData
		if err := unmarshalData(env, &d); err != nil {
			return nil, err
		}
		ev := &NotificationEvent{
			Header:         header,
			Kind:           kind,
			Action:         d.Action,
			NotificationID: d.NotificationID,
			Notification:   d.Notification,
		}
		if d.Count != nil {
			ev.Count = *d.Count
		}
		return ev, nil

	case TypeSessionConflict, TypeForceLogout:
		var d sessionData
		if err := unmarshalData(env, &d); err != nil {
			return nil, err
		}
		return &SessionEvent{Header: header, Kind: kind, Reason: d.Reason, Message: d.Message}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
}

func unmarshalData(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode %s data: %w", env.Type, err)
	}
	return nil
}
