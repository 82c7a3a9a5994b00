package models

// OrderStatus represents where an order is in its delivery lifecycle
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"   // Created by a shop, waiting for a driver
	OrderStatusAssigned  OrderStatus = "assigned"  // Accepted by a driver
	OrderStatusPickedUp  OrderStatus = "picked_up" // Driver collected the parcel
	OrderStatusDelivered OrderStatus = "delivered" // Terminal
)

// Terminal reports whether no further transition can leave this status
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered
}

// Order is a delivery request created by a shop
type Order struct {
	ID             string      `json:"id" db:"id"`
	ShopID         string      `json:"shop_id" db:"shop_id"`
	Status         OrderStatus `json:"status" db:"status"`
	DriverID       *string     `json:"driver_id" db:"driver_id"`
	Amount         float64     `json:"amount" db:"amount"`
	Address        string      `json:"address" db:"address"`
	Phone          string      `json:"phone" db:"phone"`
	Notes          string      `json:"notes" db:"notes"`
	IdempotencyKey *string     `json:"idempotency_key,omitempty" db:"idempotency_key"`
	CreatedAt      int64       `json:"created_at" db:"created_at"`
	UpdatedAt      int64       `json:"updated_at" db:"updated_at"`
}

// NewOrder carries the shop-supplied fields of an order creation request
type NewOrder struct {
	Amount  float64 `json:"amount"`
	Address string  `json:"address"`
	Phone   string  `json:"phone"`
	Notes   string  `json:"notes"`
	Message string  `json:"message"` // Optional text for the driver notifications
}

// OrderFields are the columns a status transition may set alongside the status
type OrderFields struct {
	DriverID *string
}

// OrderAction is a lifecycle transition a driver can request
type OrderAction string

const (
	OrderActionAccept  OrderAction = "accept"
	OrderActionPickup  OrderAction = "pickup"
	OrderActionDeliver OrderAction = "deliver"
)
