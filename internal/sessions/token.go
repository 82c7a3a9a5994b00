package sessions

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"courier-backend/internal/models"
)

const tokenPrefix = "session_"

// ErrAuthenticationFailed is returned for any token or handshake that cannot be
// tied to a live account. Clients react by sending the user back to login.
var ErrAuthenticationFailed = errors.New("authentication failed")

var (
	ErrMalformedToken  = fmt.Errorf("%w: malformed token", ErrAuthenticationFailed)
	ErrTokenExpired    = fmt.Errorf("%w: token outside validity window", ErrAuthenticationFailed)
	ErrTokenFromFuture = fmt.Errorf("%w: token issued in the future", ErrAuthenticationFailed)
)

// Account ids are UUIDs or short slugs; underscores are excluded so the
// layout splits unambiguously.
var accountIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]{0,63}$`)

// Claims is what a token says about itself
type Claims struct {
	AccountID   string
	AccountType models.AccountType
	IssuedAt    time.Time
}

func (c Claims) Identity() models.Identity {
	return models.Identity{AccountID: c.AccountID, AccountType: c.AccountType}
}

// Codec mints tokens in the layout session_<accountId>_<accountType>_<issuedAtMillis>
// and reads them back without a registry lookup.
type Codec struct {
	validity time.Duration
	skew     time.Duration
	now      func() time.Time
}

// NewCodec creates a codec accepting tokens issued within validity, tolerating
// skew of client/server clock disagreement for timestamps ahead of now.
func NewCodec(validity, skew time.Duration) *Codec {
	return &Codec{
		validity: validity,
		skew:     skew,
		now:      time.Now,
	}
}

// Encode renders a token for the identity issued at issuedAt
func (c *Codec) Encode(identity models.Identity, issuedAt time.Time) string {
	return tokenPrefix + identity.AccountID + "_" + string(identity.AccountType) + "_" +
		strconv.FormatInt(issuedAt.UnixMilli(), 10)
}

// Decode parses a token and checks it is plausibly shaped and inside the
// validity window. It proves nothing about who minted it.
func (c *Codec) Decode(token string) (Claims, error) {
	rest, ok := strings.CutPrefix(token, tokenPrefix)
	if !ok {
		return Claims{}, ErrMalformedToken
	}

	i := strings.LastIndexByte(rest, '_')
	if i <= 0 {
		return Claims{}, ErrMalformedToken
	}
	millis, err := strconv.ParseInt(rest[i+1:], 10, 64)
	if err != nil || millis <= 0 {
		return Claims{}, ErrMalformedToken
	}
	rest = rest[:i]

	j := strings.LastIndexByte(rest, '_')
	if j <= 0 {
		return Claims{}, ErrMalformedToken
	}
	accountType, err := models.ParseAccountType(rest[j+1:])
	if err != nil {
		return Claims{}, ErrMalformedToken
	}
	accountID := rest[:j]
	if !accountIDPattern.MatchString(accountID) {
		return Claims{}, ErrMalformedToken
	}

	issuedAt := time.UnixMilli(millis)
	now := c.now()
	if issuedAt.After(now.Add(c.skew)) {
		return Claims{}, ErrTokenFromFuture
	}
	if now.Sub(issuedAt) > c.validity {
		return Claims{}, ErrTokenExpired
	}

	return Claims{
		AccountID:   accountID,
		AccountType: accountType,
		IssuedAt:    issuedAt,
	}, nil
}

// ValidAccountID reports whether id can be carried in a token
func ValidAccountID(id string) bool {
	return accountIDPattern.MatchString(id)
}
