package handlers

import (
	"net/http"
	"strings"

	"courier-backend/internal/middleware"
	"courier-backend/internal/models"
	"courier-backend/pkg/utils"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type CreateDriverRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type CreateDriverResponse struct {
	Success bool                    `json:"success"`
	Driver  *models.AccountResponse `json:"driver,omitempty"`
	Message string                  `json:"message,omitempty"`
}

type RosterDriver struct {
	models.AccountResponse
	Online bool `json:"online"`
}

// CreateDriver creates a driver account and puts it on the calling shop's roster
// POST /api/shop/drivers
func CreateDriver(accounts AccountStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := middleware.GetUserFromContext(r)

		var req CreateDriverRequest
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		req.Email = strings.TrimSpace(strings.ToLower(req.Email))
		req.Name = strings.TrimSpace(req.Name)

		if req.Email == "" || req.Password == "" || req.Name == "" {
			utils.RespondError(w, http.StatusBadRequest, "Email, password and name are required")
			return
		}

		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			logger.Error("failed to hash password", zap.Error(err))
			utils.RespondError(w, http.StatusInternalServerError, "Failed to hash password")
			return
		}

		driver := &models.Account{
			Email:       req.Email,
			Password:    string(hashedPassword),
			Name:        req.Name,
			AccountType: models.AccountTypeDriver,
		}
		if err := accounts.CreateAccount(r.Context(), driver); err != nil {
			respondServiceError(w, logger, err)
			return
		}
		if err := accounts.AddRosterDriver(r.Context(), claims.ShopID, driver.ID); err != nil {
			respondServiceError(w, logger, err)
			return
		}

		logger.Info("driver added to roster",
			zap.String("shop_id", claims.ShopID),
			zap.String("account_id", driver.ID),
		)

		resp := driver.ToAccountResponse()
		utils.RespondJSON(w, http.StatusCreated, CreateDriverResponse{
			Success: true,
			Driver:  &resp,
			Message: "Driver created successfully",
		})
	}
}

// ListDrivers returns the calling shop's roster with live channel presence
// GET /api/shop/drivers
func ListDrivers(accounts AccountStore, presence Presence, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := middleware.GetUserFromContext(r)

		roster, err := accounts.ListRosterAccounts(r.Context(), claims.ShopID)
		if err != nil {
			respondServiceError(w, logger, err)
			return
		}

		drivers := make([]RosterDriver, 0, len(roster))
		for i := range roster {
			drivers = append(drivers, RosterDriver{
				AccountResponse: roster[i].ToAccountResponse(),
				Online:          presence.IsConnected(roster[i].Identity()),
			})
		}
		utils.RespondJSON(w, http.StatusOK, drivers)
	}
}
