package sessions

import (
	"errors"
	"fmt"

	"courier-backend/internal/models"

	"go.uber.org/zap"
)

// ErrSessionSuperseded means the token decodes fine but the account has since
// logged in elsewhere. It never falls back to the stateless path.
var ErrSessionSuperseded = fmt.Errorf("%w: session superseded by a newer login", ErrAuthenticationFailed)

// Authenticator decides whether a claimed identity may use a token. The
// registry is authoritative; the stateless path only runs when
// TrustStatelessToken is set and the registry has no session for the account
// (typically right after a restart).
type Authenticator struct {
	registry *Registry
	codec    *Codec

	// TrustStatelessToken accepts any well-shaped token inside its validity
	// window when the registry has forgotten the account. Anyone who can guess
	// an account id can forge such a token.
	TrustStatelessToken bool

	logger *zap.Logger
}

func NewAuthenticator(registry *Registry, codec *Codec, trustStateless bool, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		registry:            registry,
		codec:               codec,
		TrustStatelessToken: trustStateless,
		logger:              logger,
	}
}

// Authenticate checks token against the claimed identity. An empty claimed
// account type matches either type.
func (a *Authenticator) Authenticate(claim models.Identity, token string) (Session, error) {
	if token == "" || claim.AccountID == "" {
		return Session{}, ErrAuthenticationFailed
	}

	if s, ok := a.registry.Validate(token); ok {
		if !matches(claim, s.Identity()) {
			return Session{}, fmt.Errorf("%w: token belongs to another account", ErrAuthenticationFailed)
		}
		return s, nil
	}

	if !a.TrustStatelessToken {
		return Session{}, fmt.Errorf("%w: unknown session", ErrAuthenticationFailed)
	}
	return a.authenticateStateless(claim, token)
}

func (a *Authenticator) authenticateStateless(claim models.Identity, token string) (Session, error) {
	claims, err := a.codec.Decode(token)
	if err != nil {
		return Session{}, err
	}
	if !matches(claim, claims.Identity()) {
		return Session{}, fmt.Errorf("%w: token belongs to another account", ErrAuthenticationFailed)
	}

	if _, live := a.registry.Lookup(claims.AccountID); live {
		return Session{}, ErrSessionSuperseded
	}

	s, ok := a.registry.Restore(claims, token)
	if !ok {
		// A login for the same account landed between Lookup and Restore.
		return Session{}, ErrSessionSuperseded
	}

	a.logger.Warn("session restored from stateless token",
		zap.String("account_id", s.AccountID),
		zap.String("account_type", string(s.AccountType)),
	)
	return s, nil
}

// Touch refreshes the activity timestamp of a live session
func (a *Authenticator) Touch(token string) bool {
	_, ok := a.registry.Validate(token)
	return ok
}

// IsCurrent reports whether token belongs to the live session of accountID
func (a *Authenticator) IsCurrent(accountID, token string) bool {
	s, ok := a.registry.Lookup(accountID)
	return ok && s.Token == token
}

// IsAuthenticationError reports whether err should send the user back to login
func IsAuthenticationError(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed)
}

func matches(claim, actual models.Identity) bool {
	if claim.AccountID != actual.AccountID {
		return false
	}
	return claim.AccountType == "" || claim.AccountType == actual.AccountType
}
