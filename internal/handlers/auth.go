package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"courier-backend/internal/database"
	"courier-backend/internal/events"
	"courier-backend/internal/middleware"
	"courier-backend/internal/models"
	"courier-backend/pkg/utils"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	OK           bool                    `json:"ok"`
	Token        string                  `json:"token,omitempty"`
	SessionToken string                  `json:"session_token,omitempty"`
	User         *models.AccountResponse `json:"user,omitempty"`
}

type StatusResponse struct {
	User           models.Identity `json:"user"`
	Email          string          `json:"email"`
	ShopID         string          `json:"shop_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	LastActivityAt time.Time       `json:"last_activity_at"`
}

// Login verifies credentials and starts the account's one session. Any
// channel still open for a previous session receives session_conflict and
// is closed.
// POST /api/auth/login
func Login(accounts AccountStore, registry SessionRegistry, evictor ChannelEvictor, auth *middleware.Auth, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		req.Email = strings.TrimSpace(strings.ToLower(req.Email))

		account, err := accounts.FindAccountByEmail(r.Context(), req.Email)
		if err != nil {
			if !errors.Is(err, database.ErrNotFound) {
				logger.Error("login lookup failed", zap.Error(err))
			}
			logger.Info("login rejected", zap.String("email", req.Email))
			utils.RespondJSON(w, http.StatusUnauthorized, LoginResponse{OK: false})
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(req.Password)); err != nil {
			logger.Info("login rejected", zap.String("email", req.Email))
			utils.RespondJSON(w, http.StatusUnauthorized, LoginResponse{OK: false})
			return
		}

		session, previous := registry.Create(account.Identity())
		if closed := evictor.EvictExcept(account.ID, session.Token, events.SessionConflict()); closed > 0 || previous != nil {
			logger.Info("previous session replaced",
				zap.String("account_id", account.ID),
				zap.Int("channels", closed),
			)
		}

		token, err := auth.IssueToken(account, session.Token)
		if err != nil {
			logger.Error("failed to create token", zap.Error(err))
			utils.RespondError(w, http.StatusInternalServerError, "Failed to create token")
			return
		}

		resp := account.ToAccountResponse()
		logger.Info("login successful",
			zap.String("account_id", account.ID),
			zap.String("account_type", string(account.AccountType)),
		)
		utils.RespondJSON(w, http.StatusOK, LoginResponse{
			OK:           true,
			Token:        token,
			SessionToken: session.Token,
			User:         &resp,
		})
	}
}

// Logout ends the caller's session and closes its channels with force_logout
// POST /api/auth/logout
func Logout(registry SessionRegistry, evictor ChannelEvictor, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		registry.Evict(claims.UserID)
		closed := evictor.Evict(claims.UserID, events.ForceLogout("logout"))

		logger.Info("logged out", zap.String("account_id", claims.UserID), zap.Int("channels", closed))
		utils.RespondJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// Status returns the authenticated identity and its session timestamps
// GET /api/auth/status
func Status(registry SessionRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		session, ok := registry.Lookup(claims.UserID)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		utils.RespondJSON(w, http.StatusOK, StatusResponse{
			User:           claims.Identity(),
			Email:          claims.Email,
			ShopID:         claims.ShopID,
			CreatedAt:      session.CreatedAt,
			LastActivityAt: session.LastActivityAt,
		})
	}
}
