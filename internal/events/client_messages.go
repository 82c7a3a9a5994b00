package events

import (
	"encoding/json"
	"fmt"

	"courier-backend/internal/models"
)

// ClientMessageType is the wire discriminator of a client frame
type ClientMessageType string

const (
	TypeAuthenticate       ClientMessageType = "authenticate"
	TypeHeartbeat          ClientMessageType = "heartbeat"
	TypeClientNotification ClientMessageType = "notification_update"
	TypeOrderAction        ClientMessageType = "order_action"
)

// ClientMessage is implemented by *Authenticate, *Heartbeat,
// *NotificationUpdateRequest and *OrderActionRequest.
type ClientMessage interface {
	MessageType() ClientMessageType
	clientMessage()
}

// Authenticate is the handshake frame a channel must send first
type Authenticate struct {
	AccountID   string             `json:"accountId"`
	AccountType models.AccountType `json:"accountType"`
	ShopID      string             `json:"shopId,omitempty"`
	Token       string             `json:"token"`
}

func (a *Authenticate) Identity() models.Identity {
	return models.Identity{AccountID: a.AccountID, AccountType: a.AccountType}
}

type Heartbeat struct{}

// NotificationUpdateRequest edits, deletes or confirms a notification
type NotificationUpdateRequest struct {
	NotificationID string `json:"notification_id"`
	Action         string `json:"action"` // edit | delete | confirm
	Message        string `json:"message,omitempty"`
}

// OrderActionRequest asks for a lifecycle transition
type OrderActionRequest struct {
	OrderID string             `json:"order_id"`
	Action  models.OrderAction `json:"action"`
}

func (*Authenticate) MessageType() ClientMessageType              { return TypeAuthenticate }
func (*Heartbeat) MessageType() ClientMessageType                 { return TypeHeartbeat }
func (*NotificationUpdateRequest) MessageType() ClientMessageType { return TypeClientNotification }
func (*OrderActionRequest) MessageType() ClientMessageType        { return TypeOrderAction }

func (*Authenticate) clientMessage()              {}
func (*Heartbeat) clientMessage()                 {}
func (*NotificationUpdateRequest) clientMessage() {}
func (*OrderActionRequest) clientMessage()        {}

// DecodeClientMessage parses a client frame
func DecodeClientMessage(frame []byte) (ClientMessage, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var msg ClientMessage
	switch ClientMessageType(env.Type) {
	case TypeAuthenticate:
		msg = &Authenticate{}
	case TypeHeartbeat:
		return &Heartbeat{}, nil
	case TypeClientNotification:
		msg = &NotificationUpdateRequest{}
	case TypeOrderAction:
		msg = &OrderActionRequest{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if err := unmarshalData(env, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// EncodeClientMessage renders a client frame
func EncodeClientMessage(msg ClientMessage) ([]byte, error) {
	var raw json.RawMessage
	if _, empty := msg.(*Heartbeat); !empty {
		b, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", msg.MessageType(), err)
		}
		raw = b
	}
	return json.Marshal(Envelope{Type: string(msg.MessageType()), Data: raw})
}
