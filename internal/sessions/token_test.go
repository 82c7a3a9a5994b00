package sessions

import (
	"strconv"
	"testing"
	"time"

	"courier-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_Decode(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	codec := NewCodec(week, 2*time.Minute)
	codec.now = func() time.Time { return now }

	millis := func(t time.Time) string { return strconv.FormatInt(t.UnixMilli(), 10) }

	tests := []struct {
		name    string
		token   string
		want    Claims
		wantErr error
	}{
		{
			name:  "fresh driver token",
			token: "session_driver-1_driver_" + millis(now.Add(-time.Hour)),
			want: Claims{
				AccountID:   "driver-1",
				AccountType: models.AccountTypeDriver,
				IssuedAt:    time.UnixMilli(now.Add(-time.Hour).UnixMilli()),
			},
		},
		{
			name:  "small clock skew is tolerated",
			token: "session_shop-1_shop_" + millis(now.Add(time.Minute)),
			want: Claims{
				AccountID:   "shop-1",
				AccountType: models.AccountTypeShop,
				IssuedAt:    time.UnixMilli(now.Add(time.Minute).UnixMilli()),
			},
		},
		{
			name:    "wrong prefix",
			token:   "token_shop-1_shop_" + millis(now),
			wantErr: ErrMalformedToken,
		},
		{
			name:    "unknown account type",
			token:   "session_shop-1_admin_" + millis(now),
			wantErr: ErrMalformedToken,
		},
		{
			name:    "non numeric timestamp",
			token:   "session_shop-1_shop_yesterday",
			wantErr: ErrMalformedToken,
		},
		{
			name:    "implausible account id",
			token:   "session_shop 1;drop_shop_" + millis(now),
			wantErr: ErrMalformedToken,
		},
		{
			name:    "missing account id",
			token:   "session__shop_" + millis(now),
			wantErr: ErrMalformedToken,
		},
		{
			name:    "issued in the future",
			token:   "session_shop-1_shop_" + millis(now.Add(time.Hour)),
			wantErr: ErrTokenFromFuture,
		},
		{
			name:    "older than validity window",
			token:   "session_shop-1_shop_" + millis(now.Add(-8*24*time.Hour)),
			wantErr: ErrTokenExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := codec.Decode(tt.token)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, ErrAuthenticationFailed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.AccountID, got.AccountID)
			assert.Equal(t, tt.want.AccountType, got.AccountType)
			assert.True(t, tt.want.IssuedAt.Equal(got.IssuedAt))
		})
	}
}

func TestCodec_EncodeLayout(t *testing.T) {
	codec := NewCodec(week, time.Minute)
	issued := time.UnixMilli(1767225600000)

	token := codec.Encode(models.DriverIdentity("driver-9"), issued)
	assert.Equal(t, "session_driver-9_driver_1767225600000", token)
}
