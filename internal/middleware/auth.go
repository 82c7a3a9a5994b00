package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"courier-backend/internal/models"
	"courier-backend/internal/sessions"
	"courier-backend/pkg/utils"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type contextKey string

const UserContextKey contextKey = "user"

// TokenLifetime is how long an API access token is honoured
const TokenLifetime = 7 * 24 * time.Hour

type UserClaims struct {
	UserID    string             `json:"user_id"`
	Email     string             `json:"email"`
	Role      models.AccountType `json:"role"`
	ShopID    string             `json:"shop_id,omitempty"`
	SessionID string             `json:"sid"`
	jwt.RegisteredClaims
}

func (c UserClaims) Identity() models.Identity {
	return models.Identity{AccountID: c.UserID, AccountType: c.Role}
}

// SessionAuthenticator binds an access token to the session it was issued for
type SessionAuthenticator interface {
	Authenticate(claim models.Identity, token string) (sessions.Session, error)
}

// Auth issues and checks HMAC access tokens
type Auth struct {
	secret   []byte
	sessions SessionAuthenticator
	now      func() time.Time
	logger   *zap.Logger
}

func NewAuth(secret string, authenticator SessionAuthenticator, logger *zap.Logger) *Auth {
	return &Auth{
		secret:   []byte(secret),
		sessions: authenticator,
		now:      time.Now,
		logger:   logger,
	}
}

// IssueToken signs an access token for account bound to sessionToken
func (a *Auth) IssueToken(account *models.Account, sessionToken string) (string, error) {
	now := a.now()
	claims := UserClaims{
		UserID:    account.ID,
		Email:     account.Email,
		Role:      account.AccountType,
		SessionID: sessionToken,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenLifetime)),
		},
	}
	if account.AccountType == models.AccountTypeShop {
		claims.ShopID = account.ID
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies signature and expiry
func (a *Auth) ParseToken(tokenString string) (*UserClaims, error) {
	claims := &UserClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	if claims.UserID == "" || claims.SessionID == "" || !claims.Role.Valid() {
		return nil, errors.New("token missing required claims")
	}
	return claims, nil
}

// Middleware validates the bearer token, checks its session is still the
// account's live one, and adds the claims to the request context.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			a.logger.Debug("invalid authorization header format", zap.Int("parts", len(parts)))
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		claims, err := a.ParseToken(parts[1])
		if err != nil {
			a.logger.Info("invalid access token", zap.String("path", r.URL.Path), zap.Error(err))
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		if _, err := a.sessions.Authenticate(claims.Identity(), claims.SessionID); err != nil {
			a.logger.Info("access token session rejected",
				zap.String("account_id", claims.UserID),
				zap.Error(err),
			)
			utils.RespondError(w, http.StatusUnauthorized, "Session expired or replaced by another login")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, *claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole middleware checks if user has required role (must be used after Auth)
func RequireRole(role models.AccountType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userClaims, ok := GetUserFromContext(r)
			if !ok {
				utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			if userClaims.Role != role {
				utils.RespondError(w, http.StatusForbidden, "Forbidden")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext extracts user claims from request context
func GetUserFromContext(r *http.Request) (UserClaims, bool) {
	userClaims, ok := r.Context().Value(UserContextKey).(UserClaims)
	return userClaims, ok
}

// WithUser stores claims on ctx the way Middleware does
func WithUser(ctx context.Context, claims UserClaims) context.Context {
	return context.WithValue(ctx, UserContextKey, claims)
}
