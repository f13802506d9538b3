package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/ulma/ulma/internal/service"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func respondWithError(w http.ResponseWriter, status int, code, message string) {
	respondWithJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// respondWithServiceError maps service errors to statuses. Anything it does
// not know is logged and reported as a 500.
func respondWithServiceError(w http.ResponseWriter, logger *logrus.Logger, err error) {
	var inputErr *service.InputError
	switch {
	case errors.As(err, &inputErr):
		respondWithError(w, http.StatusUnprocessableEntity, "INVALID_REQUEST", inputErr.Message)
	case errors.Is(err, service.ErrPhoneRegistered):
		respondWithError(w, http.StatusConflict, "PHONE_REGISTERED", err.Error())
	case errors.Is(err, service.ErrCodeMismatch):
		respondWithError(w, http.StatusBadRequest, "CODE_MISMATCH", err.Error())
	case errors.Is(err, service.ErrCodeNotFound):
		respondWithError(w, http.StatusNotFound, "CODE_NOT_FOUND", err.Error())
	case errors.Is(err, service.ErrPhoneNotVerified):
		respondWithError(w, http.StatusForbidden, "PHONE_NOT_VERIFIED", err.Error())
	case errors.Is(err, service.ErrAccountExists):
		respondWithError(w, http.StatusConflict, "ACCOUNT_EXISTS", err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		respondWithError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", err.Error())
	case errors.Is(err, service.ErrEventNotFound):
		respondWithError(w, http.StatusNotFound, "EVENT_NOT_FOUND", err.Error())
	case errors.Is(err, service.ErrGuestNotFound):
		respondWithError(w, http.StatusNotFound, "GUEST_NOT_FOUND", err.Error())
	case errors.Is(err, service.ErrDuplicateEntry):
		respondWithError(w, http.StatusConflict, "DUPLICATE_ENTRY", err.Error())
	default:
		logger.WithError(err).Error("Request failed")
		respondWithError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

// decodeJSON reads the request body into v, answering 422 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, "INVALID_REQUEST", "Invalid request body")
		return false
	}
	return true
}
