package handlers

import (
	"net/http"
	"strings"

	"courier-backend/pkg/utils"

	"go.uber.org/zap"
)

// DiagnosticLog represents a diagnostic log from the mobile app
type DiagnosticLog struct {
	Timestamp string                 `json:"timestamp"`
	Context   string                 `json:"context"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data"`
	Platform  string                 `json:"platform"`
}

// ReceiveDiagnosticLog handles diagnostic logs from the mobile app
// POST /api/logs/diagnostic
func ReceiveDiagnosticLog(logger *zap.Logger) http.HandlerFunc {
	logger = logger.Named("mobile")
	return func(w http.ResponseWriter, r *http.Request) {
		var entry DiagnosticLog
		if err := utils.DecodeJSON(r, &entry); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		fields := []zap.Field{
			zap.String("platform", entry.Platform),
			zap.String("context", entry.Context),
			zap.String("client_timestamp", entry.Timestamp),
		}
		if len(entry.Data) > 0 {
			fields = append(fields, zap.Any("data", entry.Data))
		}

		switch strings.ToUpper(entry.Level) {
		case "ERROR":
			logger.Error(entry.Message, fields...)
		case "WARNING", "WARN":
			logger.Warn(entry.Message, fields...)
		case "DEBUG":
			logger.Debug(entry.Message, fields...)
		default:
			logger.Info(entry.Message, fields...)
		}

		utils.RespondJSON(w, http.StatusOK, map[string]string{
			"status": "received",
		})
	}
}
