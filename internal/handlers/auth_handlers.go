package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ulma/ulma/internal/models"
	"github.com/ulma/ulma/internal/service"
	"github.com/ulma/ulma/internal/verification"
)

type CodeService interface {
	SendCode(ctx context.Context, phoneNumber string) (string, error)
	VerifyCode(ctx context.Context, phoneNumber, code string) error
}

type AccountService interface {
	Signup(ctx context.Context, in service.SignupInput) (*models.User, error)
	Login(ctx context.Context, loginID, password string) (*models.User, error)
}

type TokenIssuer interface {
	GenerateAccessToken(userID string) (*models.TokenPair, error)
}

type AuthHandlers struct {
	codes    CodeService
	accounts AccountService
	tokens   TokenIssuer
	logger   *logrus.Logger
}

func NewAuthHandlers(codes CodeService, accounts AccountService, tokens TokenIssuer, logger *logrus.Logger) *AuthHandlers {
	return &AuthHandlers{
		codes:    codes,
		accounts: accounts,
		tokens:   tokens,
		logger:   logger,
	}
}

type PhoneRequest struct {
	PhoneNumber      string `json:"phoneNumber"`
	VerificationCode string `json:"verificationCode"`
}

type SignupRequest struct {
	LoginID     string `json:"loginId"`
	Password    string `json:"password"`
	Name        string `json:"name"`
	BirthDate   string `json:"birthDate"`
	PhoneNumber string `json:"phoneNumber"`
}

type LoginRequest struct {
	LoginID  string `json:"loginId"`
	Password string `json:"password"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// RequestCode handles POST /auth/phone.
func (h *AuthHandlers) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req PhoneRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	phoneNumber, err := verification.NormalizePhoneNumber(req.PhoneNumber)
	if err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, "INVALID_PHONE", "Invalid phone number format")
		return
	}

	if _, err := h.codes.SendCode(r.Context(), phoneNumber); err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, MessageResponse{Message: "Verification code sent"})
}

// VerifyCode handles PUT /auth/phone.
func (h *AuthHandlers) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req PhoneRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	phoneNumber, err := verification.NormalizePhoneNumber(req.PhoneNumber)
	if err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, "INVALID_PHONE", "Invalid phone number format")
		return
	}
	code := strings.TrimSpace(req.VerificationCode)
	if code == "" {
		respondWithError(w, http.StatusUnprocessableEntity, "INVALID_CODE", "Verification code is required")
		return
	}

	if err := h.codes.VerifyCode(r.Context(), phoneNumber, code); err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, MessageResponse{Message: "Phone number verified"})
}

// Signup handles POST /auth/signup.
func (h *AuthHandlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	phoneNumber, err := verification.NormalizePhoneNumber(req.PhoneNumber)
	if err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, "INVALID_PHONE", "Invalid phone number format")
		return
	}

	user, err := h.accounts.Signup(r.Context(), service.SignupInput{
		LoginID:     req.LoginID,
		Password:    req.Password,
		Name:        req.Name,
		BirthDate:   req.BirthDate,
		PhoneNumber: phoneNumber,
	})
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]string{"loginId": user.UserID})
}

// Login handles POST /auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.accounts.Login(r.Context(), req.LoginID, req.Password)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	pair, err := h.tokens.GenerateAccessToken(user.UserID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate token")
		respondWithError(w, http.StatusInternalServerError, "TOKEN_GENERATION_FAILED", "Failed to generate token")
		return
	}

	respondWithJSON(w, http.StatusOK, pair)
}
