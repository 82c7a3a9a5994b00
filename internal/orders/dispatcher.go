package orders

import (
	"context"
	"errors"
	"fmt"

	"courier-backend/internal/events"
	"courier-backend/internal/models"
)

// OrderAction runs an order_action frame. The reply goes to the requesting
// channel only: the transitioned order on success, or the authoritative order
// tagged stale when another transition won.
func (e *Engine) OrderAction(ctx context.Context, actor models.Identity, req events.OrderActionRequest) (events.Event, error) {
	order, err := e.Transition(ctx, req.OrderID, req.Action, actor)
	if err != nil {
		var stale *StaleStateError
		if errors.As(err, &stale) && stale.Order != nil {
			return events.OrderUpdated(events.OrderStale, *stale.Order), err
		}
		return nil, err
	}
	return events.OrderUpdated(transitions[req.Action].action, *order), nil
}

// NotificationAction runs a notification_update frame. Successful changes
// reach the requester through the regular fan-out, so there is no reply.
func (e *Engine) NotificationAction(ctx context.Context, actor models.Identity, req events.NotificationUpdateRequest) (events.Event, error) {
	var err error
	switch req.Action {
	case "edit":
		_, err = e.EditNotification(ctx, actor, req.NotificationID, req.Message)
	case "delete":
		err = e.DeleteNotification(ctx, actor, req.NotificationID)
	case "confirm":
		_, err = e.ConfirmNotification(ctx, actor, req.NotificationID)
	default:
		err = fmt.Errorf("%w: %q", ErrInvalidAction, req.Action)
	}
	return nil, err
}
