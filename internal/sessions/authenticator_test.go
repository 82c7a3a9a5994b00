package sessions

import (
	"testing"
	"time"

	"courier-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAuthenticator_RegistryPath(t *testing.T) {
	registry, codec, _ := newTestRegistry(t)
	auth := NewAuthenticator(registry, codec, false, zap.NewNop())

	s, _ := registry.Create(models.ShopIdentity("shop-1"))

	got, err := auth.Authenticate(models.ShopIdentity("shop-1"), s.Token)
	require.NoError(t, err)
	assert.Equal(t, "shop-1", got.AccountID)

	_, err = auth.Authenticate(models.Identity{AccountID: "shop-1"}, s.Token)
	assert.NoError(t, err, "empty account type matches either type")

	_, err = auth.Authenticate(models.ShopIdentity("shop-2"), s.Token)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	_, err = auth.Authenticate(models.DriverIdentity("shop-1"), s.Token)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestAuthenticator_StatelessFallbackAfterRestart(t *testing.T) {
	before, codec, clock := newTestRegistry(t)
	s, _ := before.Create(models.DriverIdentity("driver-1"))
	clock.Advance(3 * 24 * time.Hour)

	// A fresh registry models a process restart.
	after := NewRegistry(codec, week, zap.NewNop())
	after.now = clock.Now

	strict := NewAuthenticator(after, codec, false, zap.NewNop())
	_, err := strict.Authenticate(models.DriverIdentity("driver-1"), s.Token)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	trusting := NewAuthenticator(after, codec, true, zap.NewNop())
	got, err := trusting.Authenticate(models.DriverIdentity("driver-1"), s.Token)
	require.NoError(t, err)
	assert.Equal(t, "driver-1", got.AccountID)

	restored, ok := after.Validate(s.Token)
	require.True(t, ok, "restored session is now in the registry")
	assert.Equal(t, models.AccountTypeDriver, restored.AccountType)
}

func TestAuthenticator_StatelessFallbackRejections(t *testing.T) {
	registry, codec, clock := newTestRegistry(t)
	auth := NewAuthenticator(registry, codec, true, zap.NewNop())

	old, _ := registry.Create(models.ShopIdentity("shop-1"))
	clock.Advance(time.Second)
	registry.Create(models.ShopIdentity("shop-1"))

	_, err := auth.Authenticate(models.ShopIdentity("shop-1"), old.Token)
	assert.ErrorIs(t, err, ErrSessionSuperseded, "an evicted token must not sneak back in")

	foreign := codec.Encode(models.ShopIdentity("shop-9"), clock.Now())
	_, err = auth.Authenticate(models.ShopIdentity("shop-2"), foreign)
	assert.ErrorIs(t, err, ErrAuthenticationFailed, "claimed id must match the token")

	_, err = auth.Authenticate(models.ShopIdentity("shop-2"), "garbage")
	assert.ErrorIs(t, err, ErrMalformedToken)

	_, err = auth.Authenticate(models.ShopIdentity("shop-2"), "")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestAuthenticator_Touch(t *testing.T) {
	registry, codec, clock := newTestRegistry(t)
	auth := NewAuthenticator(registry, codec, true, zap.NewNop())

	s, _ := registry.Create(models.DriverIdentity("driver-1"))
	clock.Advance(time.Minute)

	assert.True(t, auth.Touch(s.Token))
	assert.False(t, auth.Touch("session_driver-1_driver_1"))

	got, _ := registry.Lookup("driver-1")
	assert.Equal(t, clock.Now(), got.LastActivityAt)
}
