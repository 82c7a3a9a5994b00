package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"courier-backend/internal/database"
	"courier-backend/internal/events"
	"courier-backend/internal/middleware"
	"courier-backend/internal/models"
	"courier-backend/internal/orders"
	"courier-backend/internal/sessions"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	shopClaims   = middleware.UserClaims{UserID: "shop-1", Email: "shop@courier.local", Role: models.AccountTypeShop, ShopID: "shop-1", SessionID: "s1"}
	driverClaims = middleware.UserClaims{UserID: "driver-1", Email: "d@courier.local", Role: models.AccountTypeDriver, SessionID: "s2"}
)

type stubAccounts struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	roster   map[string][]string
}

func newStubAccounts(t *testing.T) *stubAccounts {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("shop123"), bcrypt.MinCost)
	require.NoError(t, err)
	return &stubAccounts{
		accounts: map[string]*models.Account{
			"shop@courier.local": {ID: "shop-1", Email: "shop@courier.local", Password: string(hash), Name: "Corner Shop", AccountType: models.AccountTypeShop},
		},
		roster: map[string][]string{},
	}
}

func (s *stubAccounts) FindAccountByEmail(_ context.Context, email string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[email]
	if !ok {
		return nil, database.ErrNotFound
	}
	return a, nil
}

func (s *stubAccounts) CreateAccount(_ context.Context, a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.Email]; ok {
		return fmt.Errorf("%w: %s", database.ErrAccountExists, a.Email)
	}
	a.ID = fmt.Sprintf("driver-%d", len(s.accounts))
	s.accounts[a.Email] = a
	return nil
}

func (s *stubAccounts) AddRosterDriver(_ context.Context, shopID, driverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roster[shopID] = append(s.roster[shopID], driverID)
	return nil
}

func (s *stubAccounts) ListRosterAccounts(_ context.Context, shopID string) ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Account
	for _, id := range s.roster[shopID] {
		for _, a := range s.accounts {
			if a.ID == id {
				out = append(out, *a)
			}
		}
	}
	return out, nil
}

type evicted struct {
	accountID string
	keepToken string
	kind      events.EventType
}

type stubEvictor struct {
	mu    sync.Mutex
	calls []evicted
}

func (e *stubEvictor) Evict(accountID string, ev events.Event) int {
	return e.EvictExcept(accountID, "", ev)
}

func (e *stubEvictor) EvictExcept(accountID, keepToken string, ev events.Event) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, evicted{accountID, keepToken, ev.Type()})
	return 1
}

type stubService struct {
	createResult orders.CreateResult
	createErr    error
	gotKey       string
	gotDeferred  bool

	transitionErr error
	gotActor      models.Identity
	gotAction     models.OrderAction
}

func (s *stubService) CreateOrder(_ context.Context, shopID string, input models.NewOrder, key string, deferred bool) (orders.CreateResult, error) {
	s.gotKey, s.gotDeferred = key, deferred
	if s.createErr != nil {
		return orders.CreateResult{}, s.createErr
	}
	res := s.createResult
	res.Order.ShopID = shopID
	res.Order.Address = input.Address
	return res, nil
}

func (s *stubService) Transition(_ context.Context, orderID string, action models.OrderAction, actor models.Identity) (*models.Order, error) {
	s.gotActor, s.gotAction = actor, action
	if s.transitionErr != nil {
		return nil, s.transitionErr
	}
	return &models.Order{ID: orderID, Status: models.OrderStatusAssigned, DriverID: &actor.AccountID}, nil
}

func (s *stubService) SendNotification(_ context.Context, shopID, driverID, message string) ([]models.Notification, error) {
	if message == "" {
		return nil, orders.ErrInvalidNotification
	}
	return []models.Notification{{ID: "n1", ShopID: shopID, DriverID: driverID, Message: message}}, nil
}

func (s *stubService) EditNotification(_ context.Context, actor models.Identity, id, message string) (*models.Notification, error) {
	if actor.AccountType != models.AccountTypeShop {
		return nil, orders.ErrForbidden
	}
	return &models.Notification{ID: id, Message: message}, nil
}

func (s *stubService) DeleteNotification(_ context.Context, _ models.Identity, id string) error {
	if id == "missing" {
		return orders.ErrNotificationNotFound
	}
	return nil
}

func (s *stubService) ConfirmNotification(_ context.Context, _ models.Identity, id string) (*models.Notification, error) {
	return &models.Notification{ID: id, Status: models.NotificationStatusConfirmed}, nil
}

type presence map[string]bool

func (p presence) IsConnected(identity models.Identity) bool { return p[identity.AccountID] }

func do(t *testing.T, h http.Handler, method, path string, claims *middleware.UserClaims, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	if claims != nil {
		req = req.WithContext(middleware.WithUser(req.Context(), *claims))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestLogin_ReplacesPreviousSession(t *testing.T) {
	accounts := newStubAccounts(t)
	codec := sessions.NewCodec(7*24*time.Hour, 2*time.Minute)
	registry := sessions.NewRegistry(codec, 7*24*time.Hour, zap.NewNop())
	authenticator := sessions.NewAuthenticator(registry, codec, false, zap.NewNop())
	auth := middleware.NewAuth("secret", authenticator, zap.NewNop())
	evictor := &stubEvictor{}
	h := Login(accounts, registry, evictor, auth, zap.NewNop())

	creds := LoginRequest{Email: "Shop@Courier.local", Password: "shop123"}
	first := decode[LoginResponse](t, do(t, h, http.MethodPost, "/api/auth/login", nil, creds))
	require.True(t, first.OK)
	second := decode[LoginResponse](t, do(t, h, http.MethodPost, "/api/auth/login", nil, creds))
	require.True(t, second.OK)

	assert.NotEqual(t, first.SessionToken, second.SessionToken)
	_, ok := registry.Validate(first.SessionToken)
	assert.False(t, ok, "first session is gone")
	_, ok = registry.Validate(second.SessionToken)
	assert.True(t, ok)

	require.Len(t, evictor.calls, 2)
	assert.Equal(t, evicted{"shop-1", second.SessionToken, events.TypeSessionConflict}, evictor.calls[1])

	claims, err := auth.ParseToken(second.Token)
	require.NoError(t, err)
	assert.Equal(t, second.SessionToken, claims.SessionID)
	assert.Equal(t, "shop-1", claims.ShopID)
}

func TestLogin_Rejections(t *testing.T) {
	accounts := newStubAccounts(t)
	codec := sessions.NewCodec(time.Hour, time.Minute)
	registry := sessions.NewRegistry(codec, time.Hour, zap.NewNop())
	auth := middleware.NewAuth("secret", sessions.NewAuthenticator(registry, codec, false, zap.NewNop()), zap.NewNop())
	h := Login(accounts, registry, &stubEvictor{}, auth, zap.NewNop())

	rec := do(t, h, http.MethodPost, "/api/auth/login", nil, LoginRequest{Email: "shop@courier.local", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/auth/login", nil, LoginRequest{Email: "nobody@courier.local", Password: "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, registry.Len())
}

func TestLogoutAndStatus(t *testing.T) {
	codec := sessions.NewCodec(time.Hour, time.Minute)
	registry := sessions.NewRegistry(codec, time.Hour, zap.NewNop())
	evictor := &stubEvictor{}
	registry.Create(models.ShopIdentity("shop-1"))

	rec := do(t, Status(registry), http.MethodGet, "/api/auth/status", &shopClaims, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[StatusResponse](t, rec)
	assert.Equal(t, models.ShopIdentity("shop-1"), status.User)

	rec = do(t, Logout(registry, evictor, zap.NewNop()), http.MethodPost, "/api/auth/logout", &shopClaims, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, registry.Len())
	assert.Equal(t, []evicted{{"shop-1", "", events.TypeForceLogout}}, evictor.calls)

	rec = do(t, Status(registry), http.MethodGet, "/api/auth/status", &shopClaims, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateOrder_Statuses(t *testing.T) {
	tests := []struct {
		name   string
		result orders.CreateResult
		status int
	}{
		{"created", orders.CreateResult{NotificationsSent: 2}, http.StatusCreated},
		{"replayed key", orders.CreateResult{Duplicate: true}, http.StatusOK},
		{"deferred", orders.CreateResult{Queued: true}, http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{createResult: tt.result}
			rec := do(t, CreateOrder(svc, zap.NewNop()), http.MethodPost, "/api/shop/orders", &shopClaims,
				map[string]any{"address": "1 Main St", "amount": 12.5})
			assert.Equal(t, tt.status, rec.Code)
			got := decode[orders.CreateResult](t, rec)
			assert.Equal(t, "shop-1", got.Order.ShopID)
		})
	}
}

func TestCreateOrder_IdempotencyKeySources(t *testing.T) {
	svc := &stubService{}
	h := CreateOrder(svc, zap.NewNop())

	do(t, h, http.MethodPost, "/api/shop/orders", &shopClaims, map[string]any{"address": "a"}, IdempotencyKeyHeader, "hdr-key")
	assert.Equal(t, "hdr-key", svc.gotKey)

	do(t, h, http.MethodPost, "/api/shop/orders", &shopClaims, map[string]any{"address": "a", "idempotency_key": "body-key", "defer": true}, IdempotencyKeyHeader, "hdr-key")
	assert.Equal(t, "body-key", svc.gotKey, "body wins over header")
	assert.True(t, svc.gotDeferred)

	svc.createErr = fmt.Errorf("create: %w", orders.ErrInvalidOrder)
	rec := do(t, h, http.MethodPost, "/api/shop/orders", &shopClaims, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func transitionRouter(svc OrderService) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/driver/orders/{id}/{action}", TransitionOrder(svc, zap.NewNop()))
	return r
}

func TestTransitionOrder(t *testing.T) {
	svc := &stubService{}
	rec := do(t, transitionRouter(svc), http.MethodPost, "/api/driver/orders/o1/accept", &driverClaims, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.DriverIdentity("driver-1"), svc.gotActor)
	assert.Equal(t, models.OrderActionAccept, svc.gotAction)
}

func TestTransitionOrder_StaleCarriesAuthoritativeOrder(t *testing.T) {
	winner := "driver-2"
	svc := &stubService{transitionErr: &orders.StaleStateError{
		OrderID:  "o1",
		Expected: models.OrderStatusPending,
		Actual:   models.OrderStatusAssigned,
		Order:    &models.Order{ID: "o1", Status: models.OrderStatusAssigned, DriverID: &winner},
	}}

	rec := do(t, transitionRouter(svc), http.MethodPost, "/api/driver/orders/o1/accept", &driverClaims, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[staleResponse](t, rec)
	require.NotNil(t, body.Order)
	assert.Equal(t, models.OrderStatusAssigned, body.Order.Status)
	assert.Equal(t, "driver-2", *body.Order.DriverID)
}

func TestRespondServiceError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("x: %w", orders.ErrOrderNotFound), http.StatusNotFound},
		{database.ErrNotFound, http.StatusNotFound},
		{orders.ErrForbidden, http.StatusForbidden},
		{orders.ErrInvalidAction, http.StatusBadRequest},
		{sessions.ErrTokenExpired, http.StatusUnauthorized},
		{database.ErrAccountExists, http.StatusConflict},
		{database.ErrInvalidAccount, http.StatusBadRequest},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondServiceError(rec, zap.NewNop(), tt.err)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestNotificationHandlers(t *testing.T) {
	svc := &stubService{}
	r := chi.NewRouter()
	r.Post("/api/shop/notifications", SendNotification(svc, zap.NewNop()))
	r.Patch("/api/shop/notifications/{id}", EditNotification(svc, zap.NewNop()))
	r.Delete("/api/shop/notifications/{id}", DeleteNotification(svc, zap.NewNop()))
	r.Post("/api/driver/notifications/{id}/confirm", ConfirmNotification(svc, zap.NewNop()))

	rec := do(t, r, http.MethodPost, "/api/shop/notifications", &shopClaims, SendNotificationRequest{Message: "hi", DriverID: "driver-1"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/shop/notifications", &shopClaims, SendNotificationRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodPatch, "/api/shop/notifications/n1", &shopClaims, EditNotificationRequest{Message: "new"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "new", decode[models.Notification](t, rec).Message)

	rec = do(t, r, http.MethodPatch, "/api/shop/notifications/n1", &driverClaims, EditNotificationRequest{Message: "new"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodDelete, "/api/shop/notifications/n1", &shopClaims, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodDelete, "/api/shop/notifications/missing", &shopClaims, nil).Code)

	rec = do(t, r, http.MethodPost, "/api/driver/notifications/n1/confirm", &driverClaims, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.NotificationStatusConfirmed, decode[models.Notification](t, rec).Status)
}

func TestDrivers_CreateAndList(t *testing.T) {
	accounts := newStubAccounts(t)
	body := CreateDriverRequest{Email: "new@courier.local", Password: "pw", Name: "New Driver"}

	rec := do(t, CreateDriver(accounts, zap.NewNop()), http.MethodPost, "/api/shop/drivers", &shopClaims, body)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[CreateDriverResponse](t, rec)
	require.NotNil(t, created.Driver)
	assert.Equal(t, models.AccountTypeDriver, created.Driver.AccountType)

	rec = do(t, CreateDriver(accounts, zap.NewNop()), http.MethodPost, "/api/shop/drivers", &shopClaims, body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, CreateDriver(accounts, zap.NewNop()), http.MethodPost, "/api/shop/drivers", &shopClaims, CreateDriverRequest{Email: "x@y"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, ListDrivers(accounts, presence{created.Driver.ID: true}, zap.NewNop()), http.MethodGet, "/api/shop/drivers", &shopClaims, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	roster := decode[[]RosterDriver](t, rec)
	require.Len(t, roster, 1)
	assert.True(t, roster[0].Online)
	assert.Equal(t, "new@courier.local", roster[0].Email)
}

type stubPushStore struct {
	subs map[string]models.PushSubscription
}

func (s *stubPushStore) UpsertPushSubscription(_ context.Context, sub *models.PushSubscription) error {
	sub.ID = len(s.subs) + 1
	s.subs[sub.Endpoint] = *sub
	return nil
}

func (s *stubPushStore) DeletePushSubscription(_ context.Context, accountID, endpoint string) (int64, error) {
	if sub, ok := s.subs[endpoint]; ok && sub.AccountID == accountID {
		delete(s.subs, endpoint)
		return 1, nil
	}
	return 0, nil
}

func TestPushSubscriptions(t *testing.T) {
	store := &stubPushStore{subs: map[string]models.PushSubscription{}}

	rec := do(t, RegisterPushSubscription(store, zap.NewNop()), http.MethodPost, "/api/push/subscriptions", &driverClaims,
		PushSubscriptionRequest{Endpoint: "fcm-token", DeviceType: "ios"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, models.AccountTypeDriver, store.subs["fcm-token"].AccountType)

	rec = do(t, RegisterPushSubscription(store, zap.NewNop()), http.MethodPost, "/api/push/subscriptions", &driverClaims,
		PushSubscriptionRequest{Endpoint: "t", DeviceType: "pager"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, DeletePushSubscription(store, zap.NewNop()), http.MethodDelete, "/api/push/subscriptions", &shopClaims,
		PushSubscriptionRequest{Endpoint: "fcm-token"})
	assert.Equal(t, http.StatusNotFound, rec.Code, "another account's endpoint is untouched")

	rec = do(t, DeletePushSubscription(store, zap.NewNop()), http.MethodDelete, "/api/push/subscriptions", &driverClaims,
		PushSubscriptionRequest{Endpoint: "fcm-token"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, store.subs)
}

func TestReceiveDiagnosticLog(t *testing.T) {
	h := ReceiveDiagnosticLog(zap.NewNop())
	rec := do(t, h, http.MethodPost, "/api/logs/diagnostic", nil, DiagnosticLog{Level: "ERROR", Message: "crash", Platform: "ios"})
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/logs/diagnostic", bytes.NewBufferString("{"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
