package orders

import (
	"errors"
	"fmt"

	"courier-backend/internal/models"
)

var (
	ErrStaleState           = errors.New("order state changed")
	ErrOrderNotFound        = errors.New("order not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrForbidden            = errors.New("action not allowed for this account")
	ErrInvalidAction        = errors.New("invalid action")
	ErrInvalidOrder         = errors.New("invalid order")
	ErrInvalidNotification  = errors.New("invalid notification")
)

// StaleStateError reports a transition attempted against an order whose
// stored status is no longer the expected predecessor. Order, when set, is the
// authoritative state the caller should reload from.
type StaleStateError struct {
	OrderID  string
	Expected models.OrderStatus
	Actual   models.OrderStatus
	Order    *models.Order
}

func (e *StaleStateError) Error() string {
	return fmt.Sprintf("order %s is %s, expected %s", e.OrderID, e.Actual, e.Expected)
}

func (e *StaleStateError) Is(target error) bool {
	return target == ErrStaleState
}
