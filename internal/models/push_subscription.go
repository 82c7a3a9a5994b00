package models

// PushSubscription is a push endpoint (an FCM registration token) for one account
type PushSubscription struct {
	ID          int         `json:"id" db:"id"`
	AccountID   string      `json:"account_id" db:"account_id"`
	AccountType AccountType `json:"account_type" db:"account_type"`
	Endpoint    string      `json:"-" db:"endpoint"`
	DeviceType  string      `json:"device_type" db:"device_type"` // "ios", "android" or "web"
	CreatedAt   int64       `json:"created_at" db:"created_at"`
	UpdatedAt   int64       `json:"updated_at" db:"updated_at"`
}
