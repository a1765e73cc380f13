package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Shawndas06/bank-aggregator/internal/domain/account"
	"github.com/Shawndas06/bank-aggregator/internal/domain/banking"
	"github.com/Shawndas06/bank-aggregator/internal/domain/provider"
	"github.com/Shawndas06/bank-aggregator/internal/shared/logger"
)

type successResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(successResponse{Success: true, Data: data})
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Success: false, Error: msg})
}

// writeError maps domain errors to HTTP statuses. Server-side failures are
// logged and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}

	switch status {
	case http.StatusInternalServerError:
		writeErrorMessage(w, status, "Internal server error")
	case http.StatusBadGateway:
		writeErrorMessage(w, status, "Bank provider is unavailable, try again later")
	default:
		writeErrorMessage(w, status, err.Error())
	}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, banking.ErrInvalidFilter),
		errors.Is(err, account.ErrInvalidInput),
		errors.Is(err, provider.ErrUnknownProvider):
		return http.StatusBadRequest
	case errors.Is(err, banking.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, banking.ErrConsentPending),
		errors.Is(err, account.ErrAlreadyLinked):
		return http.StatusConflict
	case errors.Is(err, banking.ErrProviderUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HandleHealth returns a simple health check response.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
