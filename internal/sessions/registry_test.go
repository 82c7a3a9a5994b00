package sessions

import (
	"testing"
	"time"

	"courier-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const week = 7 * 24 * time.Hour

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRegistry(t *testing.T) (*Registry, *Codec, *fakeClock) {
	t.Helper()

	clock := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	codec := NewCodec(week, 2*time.Minute)
	codec.now = clock.Now
	registry := NewRegistry(codec, week, zap.NewNop())
	registry.now = clock.Now
	return registry, codec, clock
}

func TestRegistry_CreateTwiceKeepsOnlySecond(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	shop := models.ShopIdentity("shop-1")

	first, evicted := registry.Create(shop)
	assert.Nil(t, evicted)

	// Same millisecond on purpose: tokens must still differ.
	second, evicted := registry.Create(shop)
	require.NotNil(t, evicted)
	assert.Equal(t, first.Token, evicted.Token)
	assert.NotEqual(t, first.Token, second.Token)

	_, ok := registry.Validate(first.Token)
	assert.False(t, ok, "first token must no longer validate")

	got, ok := registry.Validate(second.Token)
	require.True(t, ok)
	assert.Equal(t, "shop-1", got.AccountID)
	assert.Equal(t, 1, registry.Len())
}

func TestRegistry_TokenDecodesToItsSession(t *testing.T) {
	registry, codec, clock := newTestRegistry(t)

	identities := []models.Identity{
		models.ShopIdentity("shop-1"),
		models.DriverIdentity("driver-7"),
		models.DriverIdentity("0b6f3a52-1c9e-4c5e-9d7a-3f2b8c1d4e5f"),
	}
	for _, identity := range identities {
		s, _ := registry.Create(identity)
		clock.Advance(time.Second)

		claims, err := codec.Decode(s.Token)
		require.NoError(t, err, identity.String())
		assert.Equal(t, identity.AccountID, claims.AccountID)
		assert.Equal(t, identity.AccountType, claims.AccountType)
	}
}

func TestRegistry_ValidateRefreshesActivity(t *testing.T) {
	registry, _, clock := newTestRegistry(t)

	s, _ := registry.Create(models.DriverIdentity("driver-1"))
	clock.Advance(time.Hour)

	got, ok := registry.Validate(s.Token)
	require.True(t, ok)
	assert.Equal(t, clock.Now(), got.LastActivityAt)
	assert.Equal(t, s.CreatedAt, got.CreatedAt)
}

func TestRegistry_Evict(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	_, ok := registry.Evict("nobody")
	assert.False(t, ok)

	s, _ := registry.Create(models.DriverIdentity("driver-1"))
	evicted, ok := registry.Evict("driver-1")
	require.True(t, ok)
	assert.Equal(t, s.Token, evicted.Token)

	_, ok = registry.Validate(s.Token)
	assert.False(t, ok)
	assert.Equal(t, 0, registry.Len())
}

func TestRegistry_SweepExpiresIdleSessions(t *testing.T) {
	registry, _, clock := newTestRegistry(t)

	idle, _ := registry.Create(models.DriverIdentity("driver-idle"))
	busy, _ := registry.Create(models.DriverIdentity("driver-busy"))

	clock.Advance(6 * 24 * time.Hour)
	_, ok := registry.Validate(busy.Token)
	require.True(t, ok)

	clock.Advance(2 * 24 * time.Hour)
	expired := registry.Sweep(clock.Now())

	require.Len(t, expired, 1)
	assert.Equal(t, idle.AccountID, expired[0].AccountID)

	_, ok = registry.Validate(idle.Token)
	assert.False(t, ok)
	_, ok = registry.Validate(busy.Token)
	assert.True(t, ok)
}

func TestRegistry_RestoreDoesNotOverrideLiveSession(t *testing.T) {
	registry, codec, _ := newTestRegistry(t)

	live, _ := registry.Create(models.ShopIdentity("shop-1"))
	claims, err := codec.Decode(live.Token)
	require.NoError(t, err)

	_, ok := registry.Restore(claims, "session_shop-1_shop_1")
	assert.False(t, ok)

	got, ok := registry.Lookup("shop-1")
	require.True(t, ok)
	assert.Equal(t, live.Token, got.Token)
}
