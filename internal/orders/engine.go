// Package orders drives the order lifecycle and decides who hears about each
// change.
package orders

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"slices"
	"strings"
	"sync"
	"time"

	"courier-backend/internal/database"
	"courier-backend/internal/events"
	"courier-backend/internal/metrics"
	"courier-backend/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Store is the order, notification and roster persistence the engine needs.
// Lookups of missing rows fail with database.ErrNotFound.
type Store interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	FindOrderByIdempotencyKey(ctx context.Context, shopID, key string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, expected, next models.OrderStatus, fields models.OrderFields) (int64, error)

	CreateNotifications(ctx context.Context, notifications []*models.Notification) error
	GetNotification(ctx context.Context, id string) (*models.Notification, error)
	UpdateNotification(ctx context.Context, id string, fields models.NotificationFields) (int64, error)
	DeleteNotification(ctx context.Context, id string) (int64, error)
	CountPendingNotifications(ctx context.Context, driverID string) (int, error)

	ListRosterDrivers(ctx context.Context, shopID string) ([]string, error)
	GetAccount(ctx context.Context, id string) (*models.Account, error)
}

// Broadcaster delivers events to live channels, with push fallback
type Broadcaster interface {
	Send(ctx context.Context, identity models.Identity, ev events.Event) int
	SendToRoster(ctx context.Context, roster []string, ev events.Event)
}

type transition struct {
	from   models.OrderStatus
	to     models.OrderStatus
	action string
}

// No edge leads back into pending.
var transitions = map[models.OrderAction]transition{
	models.OrderActionAccept:  {from: models.OrderStatusPending, to: models.OrderStatusAssigned, action: events.OrderAssigned},
	models.OrderActionPickup:  {from: models.OrderStatusAssigned, to: models.OrderStatusPickedUp, action: events.OrderPickedUp},
	models.OrderActionDeliver: {from: models.OrderStatusPickedUp, to: models.OrderStatusDelivered, action: events.OrderDelivered},
}

const lockStripes = 64

// stripedLocks serializes work on one entity id without a map of mutexes
type stripedLocks [lockStripes]sync.Mutex

func (s *stripedLocks) get(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s[h.Sum32()%lockStripes]
}

// CreateResult is the outcome of an order creation
type CreateResult struct {
	Order             models.Order `json:"order"`
	NotificationsSent int          `json:"notifications_sent"`
	Duplicate         bool         `json:"duplicate,omitempty"`
	Queued            bool         `json:"queued,omitempty"`
}

// Engine applies lifecycle transitions through the store's compare-and-swap
// and fans the results out. Work on one order or notification is serialized
// from the store write through the hub enqueue, so events for it leave in the
// order the writes were applied.
type Engine struct {
	store       Store
	broadcaster Broadcaster
	guard       *Guard[CreateResult]
	locks       stripedLocks
	tracer      trace.Tracer
	logger      *zap.Logger

	// deferred creations still fanning out
	wg sync.WaitGroup
}

func NewEngine(store Store, broadcaster Broadcaster, idempotencyTTL time.Duration, logger *zap.Logger) *Engine {
	return &Engine{
		store:       store,
		broadcaster: broadcaster,
		guard:       NewGuard[CreateResult](idempotencyTTL),
		tracer:      otel.Tracer("courier-backend/internal/orders"),
		logger:      logger,
	}
}

// Wait blocks until every deferred creation has finished its fan-out
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Transition applies action to an order on behalf of a driver. A transition
// from any status other than the expected predecessor fails with a
// *StaleStateError carrying the current order.
func (e *Engine) Transition(ctx context.Context, orderID string, action models.OrderAction, actor models.Identity) (order *models.Order, err error) {
	ctx, span := e.tracer.Start(ctx, "orders.Transition", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.action", string(action)),
		attribute.String("actor.id", actor.AccountID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	rule, ok := transitions[action]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	if actor.AccountType != models.AccountTypeDriver {
		return nil, fmt.Errorf("%w: only drivers can %s orders", ErrForbidden, action)
	}

	lock := e.locks.get("order:" + orderID)
	lock.Lock()
	defer lock.Unlock()

	current, err := e.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current.Status != rule.from {
		return nil, e.stale(current, rule, action)
	}

	var roster []string
	fields := models.OrderFields{}
	switch action {
	case models.OrderActionAccept:
		roster, err = e.store.ListRosterDrivers(ctx, current.ShopID)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(roster, actor.AccountID) {
			return nil, fmt.Errorf("%w: driver %s is not on the roster of shop %s", ErrForbidden, actor.AccountID, current.ShopID)
		}
		fields.DriverID = &actor.AccountID
	default:
		if current.DriverID == nil || *current.DriverID != actor.AccountID {
			return nil, fmt.Errorf("%w: order %s is assigned to another driver", ErrForbidden, orderID)
		}
	}

	rows, err := e.store.UpdateOrderStatus(ctx, orderID, rule.from, rule.to, fields)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		// Lost the race inside the store; report what won
		latest, err := e.getOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return nil, e.stale(latest, rule, action)
	}

	order, err = e.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	e.logger.Info("order transitioned",
		zap.String("order_id", orderID),
		zap.String("from", string(rule.from)),
		zap.String("to", string(rule.to)),
		zap.String("account_id", actor.AccountID),
	)

	shop := models.ShopIdentity(order.ShopID)
	switch action {
	case models.OrderActionAccept:
		e.broadcaster.Send(ctx, shop, events.OrderAccepted(*order, e.driverInfo(ctx, actor.AccountID)))
		// Other drivers drop the order from their pending lists
		e.broadcaster.SendToRoster(ctx, roster, events.OrderUpdated(events.OrderAssigned, *order))
	default:
		e.broadcaster.Send(ctx, shop, events.OrderUpdated(rule.action, *order))
	}

	return order, nil
}

func (e *Engine) stale(current *models.Order, rule transition, action models.OrderAction) error {
	metrics.StaleTransitionsTotal.WithLabelValues(string(action)).Inc()
	e.logger.Info("stale order transition rejected",
		zap.String("order_id", current.ID),
		zap.String("action", string(action)),
		zap.String("expected", string(rule.from)),
		zap.String("actual", string(current.Status)),
	)
	return &StaleStateError{OrderID: current.ID, Expected: rule.from, Actual: current.Status, Order: current}
}

func (e *Engine) driverInfo(ctx context.Context, driverID string) events.DriverInfo {
	info := events.DriverInfo{ID: driverID, Name: driverID}
	account, err := e.store.GetAccount(ctx, driverID)
	if err != nil {
		e.logger.Warn("driver lookup failed, using id as display name", zap.String("account_id", driverID), zap.Error(err))
		return info
	}
	info.Name = account.Name
	return info
}

func (e *Engine) getOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := e.store.GetOrder(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	return order, err
}

// CreateOrder creates an order for shopID and alerts every driver on its
// roster. Requests sharing a non-empty idempotency key resolve to one order.
// With deferred set the order is stored, the call returns Queued, and the
// roster fan-out runs in the background.
func (e *Engine) CreateOrder(ctx context.Context, shopID string, input models.NewOrder, idempotencyKey string, deferred bool) (result CreateResult, err error) {
	ctx, span := e.tracer.Start(ctx, "orders.CreateOrder", trace.WithAttributes(
		attribute.String("shop.id", shopID),
		attribute.Bool("order.deferred", deferred),
		attribute.Bool("order.idempotent", idempotencyKey != ""),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := validateNewOrder(input); err != nil {
		return CreateResult{}, err
	}

	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return e.create(ctx, shopID, input, nil, deferred)
	}

	result, duplicate, err := e.guard.Do(shopID+":"+idempotencyKey, func() (CreateResult, error) {
		return e.create(ctx, shopID, input, &idempotencyKey, deferred)
	})
	if err != nil {
		return CreateResult{}, err
	}
	if duplicate || result.Duplicate {
		metrics.IdempotentReplaysTotal.Inc()
		e.logger.Info("duplicate order request replayed",
			zap.String("account_id", shopID),
			zap.String("order_id", result.Order.ID),
		)
		result.Duplicate = true
	}
	return result, nil
}

func validateNewOrder(input models.NewOrder) error {
	if strings.TrimSpace(input.Address) == "" {
		return fmt.Errorf("%w: address is required", ErrInvalidOrder)
	}
	if input.Amount < 0 {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidOrder)
	}
	return nil
}

func (e *Engine) create(ctx context.Context, shopID string, input models.NewOrder, key *string, deferred bool) (CreateResult, error) {
	if key != nil {
		// Survives restarts, when the in-process guard has forgotten the key
		existing, err := e.store.FindOrderByIdempotencyKey(ctx, shopID, *key)
		if err == nil {
			return CreateResult{Order: *existing, Duplicate: true}, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return CreateResult{}, err
		}
	}

	order := &models.Order{
		ShopID:         shopID,
		Status:         models.OrderStatusPending,
		Amount:         input.Amount,
		Address:        strings.TrimSpace(input.Address),
		Phone:          input.Phone,
		Notes:          input.Notes,
		IdempotencyKey: key,
	}
	if err := e.store.CreateOrder(ctx, order); err != nil {
		if key != nil && errors.Is(err, database.ErrDuplicateIdempotencyKey) {
			existing, findErr := e.store.FindOrderByIdempotencyKey(ctx, shopID, *key)
			if findErr != nil {
				return CreateResult{}, findErr
			}
			return CreateResult{Order: *existing, Duplicate: true}, nil
		}
		return CreateResult{}, err
	}

	e.logger.Info("📦 order created",
		zap.String("order_id", order.ID),
		zap.String("account_id", shopID),
		zap.Bool("deferred", deferred),
	)

	message := strings.TrimSpace(input.Message)
	if message == "" {
		message = "New delivery to " + order.Address
	}

	if deferred {
		snapshot := *order
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			bg := context.WithoutCancel(ctx)
			e.fanOutCreated(bg, snapshot, message)
		}()
		return CreateResult{Order: *order, Queued: true}, nil
	}

	sent := e.fanOutCreated(ctx, *order, message)
	return CreateResult{Order: *order, NotificationsSent: sent}, nil
}

// fanOutCreated stores one notification per roster driver, sends each to its
// driver and tells the shop's channels the order exists. Failures here never
// undo the order.
func (e *Engine) fanOutCreated(ctx context.Context, order models.Order, message string) int {
	lock := e.locks.get("order:" + order.ID)
	lock.Lock()
	defer lock.Unlock()

	defer e.broadcaster.Send(ctx, models.ShopIdentity(order.ShopID), events.OrderUpdated(events.OrderCreated, order))

	roster, err := e.store.ListRosterDrivers(ctx, order.ShopID)
	if err != nil {
		e.logger.Warn("roster lookup failed, no drivers alerted", zap.String("order_id", order.ID), zap.Error(err))
		return 0
	}
	if len(roster) == 0 {
		return 0
	}

	orderID := order.ID
	notifications := make([]*models.Notification, 0, len(roster))
	for _, driverID := range roster {
		notifications = append(notifications, &models.Notification{
			ShopID:   order.ShopID,
			DriverID: driverID,
			Message:  message,
			Status:   models.NotificationStatusPending,
			OrderID:  &orderID,
		})
	}
	if err := e.store.CreateNotifications(ctx, notifications); err != nil {
		e.logger.Warn("failed to store order notifications", zap.String("order_id", order.ID), zap.Error(err))
		return 0
	}

	for _, n := range notifications {
		e.broadcaster.Send(ctx, models.DriverIdentity(n.DriverID), events.NotificationCreated(*n))
	}
	return len(notifications)
}
