package models

// NotificationStatus tracks whether a driver has acknowledged a notification
type NotificationStatus string

const (
	NotificationStatusPending   NotificationStatus = "pending"
	NotificationStatusConfirmed NotificationStatus = "confirmed"
)

// Notification is a message from a shop to one driver, optionally about an order
type Notification struct {
	ID        string             `json:"id" db:"id"`
	ShopID    string             `json:"shop_id" db:"shop_id"`
	DriverID  string             `json:"driver_id" db:"driver_id"`
	Message   string             `json:"message" db:"message"`
	Status    NotificationStatus `json:"status" db:"status"`
	OrderID   *string            `json:"order_id" db:"order_id"`
	CreatedAt int64              `json:"created_at" db:"created_at"`
}

// NotificationFields are the mutable columns of a notification
type NotificationFields struct {
	Message *string
	Status  *NotificationStatus
}
