package sessions

import (
	"context"
	"sync"
	"time"

	"courier-backend/internal/models"

	"go.uber.org/zap"
)

// Session is the one legitimate login of an account
type Session struct {
	AccountID      string             `json:"account_id"`
	AccountType    models.AccountType `json:"account_type"`
	Token          string             `json:"-"`
	CreatedAt      time.Time          `json:"created_at"`
	LastActivityAt time.Time          `json:"last_activity_at"`
}

func (s Session) Identity() models.Identity {
	return models.Identity{AccountID: s.AccountID, AccountType: s.AccountType}
}

// Registry holds at most one session per account id. Both indexes are
// updated under the same lock so a token never outlives its session.
type Registry struct {
	codec *Codec
	ttl   time.Duration
	now   func() time.Time

	mu        sync.RWMutex
	byAccount map[string]*Session
	byToken   map[string]*Session
	// last issuance per account, so two logins in one millisecond still mint distinct tokens
	lastIssued map[string]int64

	logger *zap.Logger
}

// NewRegistry creates an empty registry whose sessions expire after ttl of inactivity
func NewRegistry(codec *Codec, ttl time.Duration, logger *zap.Logger) *Registry {
	return &Registry{
		codec:      codec,
		ttl:        ttl,
		now:        time.Now,
		byAccount:  make(map[string]*Session),
		byToken:    make(map[string]*Session),
		lastIssued: make(map[string]int64),
		logger:     logger,
	}
}

// Create evicts any existing session for the account and stores a fresh one.
// The evicted session, if any, is returned so the caller can close its channels.
func (r *Registry) Create(identity models.Identity) (Session, *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted *Session
	if old, ok := r.byAccount[identity.AccountID]; ok {
		delete(r.byToken, old.Token)
		delete(r.byAccount, identity.AccountID)
		copied := *old
		evicted = &copied
	}

	now := r.now()
	issued := now.UnixMilli()
	if last, ok := r.lastIssued[identity.AccountID]; ok && issued <= last {
		issued = last + 1
	}
	r.lastIssued[identity.AccountID] = issued

	s := &Session{
		AccountID:      identity.AccountID,
		AccountType:    identity.AccountType,
		Token:          r.codec.Encode(identity, time.UnixMilli(issued)),
		CreatedAt:      now,
		LastActivityAt: now,
	}
	r.byAccount[s.AccountID] = s
	r.byToken[s.Token] = s

	r.logger.Info("session created",
		zap.String("account_id", s.AccountID),
		zap.String("account_type", string(s.AccountType)),
		zap.Bool("evicted_previous", evicted != nil),
	)
	return *s, evicted
}

// Validate looks a token up and refreshes its activity timestamp.
// A miss is not an error; callers decide whether to try the stateless fallback.
func (r *Registry) Validate(token string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byToken[token]
	if !ok {
		return Session{}, false
	}
	s.LastActivityAt = r.now()
	return *s, true
}

// Lookup returns the current session of an account without touching it
func (r *Registry) Lookup(accountID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byAccount[accountID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Evict removes the session of an account, invalidating its token
func (r *Registry) Evict(accountID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byAccount[accountID]
	if !ok {
		return Session{}, false
	}
	delete(r.byAccount, accountID)
	delete(r.byToken, s.Token)
	return *s, true
}

// Restore re-admits a session reconstructed from a stateless token. It only
// succeeds while the account has no session, so it never overrides a newer login.
func (r *Registry) Restore(claims Claims, token string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byAccount[claims.AccountID]; ok {
		return Session{}, false
	}

	now := r.now()
	s := &Session{
		AccountID:      claims.AccountID,
		AccountType:    claims.AccountType,
		Token:          token,
		CreatedAt:      claims.IssuedAt,
		LastActivityAt: now,
	}
	r.byAccount[s.AccountID] = s
	r.byToken[token] = s
	if last := r.lastIssued[s.AccountID]; claims.IssuedAt.UnixMilli() > last {
		r.lastIssued[s.AccountID] = claims.IssuedAt.UnixMilli()
	}
	return *s, true
}

// Sweep evicts every session idle for longer than the ttl and returns them
func (r *Registry) Sweep(now time.Time) []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []Session
	for accountID, s := range r.byAccount {
		if now.Sub(s.LastActivityAt) > r.ttl {
			delete(r.byAccount, accountID)
			delete(r.byToken, s.Token)
			expired = append(expired, *s)
		}
	}
	cutoff := now.Add(-r.ttl).UnixMilli()
	for accountID, last := range r.lastIssued {
		if _, live := r.byAccount[accountID]; !live && last < cutoff {
			delete(r.lastIssued, accountID)
		}
	}
	return expired
}

// Run sweeps on every interval until ctx is done. onExpire is called for each
// expired session outside the registry lock.
func (r *Registry) Run(ctx context.Context, interval time.Duration, onExpire func(Session)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired := r.Sweep(r.now())
			if len(expired) > 0 {
				r.logger.Info("expired idle sessions", zap.Int("count", len(expired)))
			}
			for _, s := range expired {
				if onExpire != nil {
					onExpire(s)
				}
			}
		}
	}
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byAccount)
}
