package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/ulma/ulma/internal/middleware"
	"github.com/ulma/ulma/internal/models"
)

type LedgerService interface {
	CreateEvent(ctx context.Context, ownerID, name, category, date string) (int64, error)
	EventDetail(ctx context.Context, ownerID string, eventID int64, page int) (*models.GuestPage, error)
	CreateContact(ctx context.Context, ownerID, name, category string) (int64, error)
	SameName(ctx context.Context, ownerID, name string) ([]models.Contact, error)
	RegisterTransactions(ctx context.Context, ownerID string, txs []models.Transaction) error
}

type LedgerHandlers struct {
	ledger LedgerService
	logger *logrus.Logger
}

func NewLedgerHandlers(ledger LedgerService, logger *logrus.Logger) *LedgerHandlers {
	return &LedgerHandlers{
		ledger: ledger,
		logger: logger,
	}
}

type CreateEventRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Date     string `json:"date"`
}

type CreateGuestRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

type ContactListResponse struct {
	Data []models.Contact `json:"data"`
}

func owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
	}
	return userID, ok
}

// CreateEvent handles POST /events.
func (h *LedgerHandlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	var req CreateEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id, err := h.ledger.CreateEvent(r.Context(), ownerID, req.Name, req.Category, req.Date)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, map[string]int64{"eventId": id})
}

// EventDetail handles GET /events/detail/{eventId}?page=N.
func (h *LedgerHandlers) EventDetail(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}

	eventID, err := strconv.ParseInt(mux.Vars(r)["eventId"], 10, 64)
	if err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, "INVALID_EVENT_ID", "Invalid event id")
		return
	}

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil {
			respondWithError(w, http.StatusUnprocessableEntity, "INVALID_PAGE", "Invalid page")
			return
		}
	}

	result, err := h.ledger.EventDetail(r.Context(), ownerID, eventID, page)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// CreateGuest handles POST /participant.
func (h *LedgerHandlers) CreateGuest(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	var req CreateGuestRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id, err := h.ledger.CreateContact(r.Context(), ownerID, req.Name, req.Category)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, map[string]int64{"guestId": id})
}

// SameName handles GET /participant/same?name=Q.
func (h *LedgerHandlers) SameName(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}

	contacts, err := h.ledger.SameName(r.Context(), ownerID, r.URL.Query().Get("name"))
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	if contacts == nil {
		contacts = []models.Contact{}
	}
	respondWithJSON(w, http.StatusOK, ContactListResponse{Data: contacts})
}

// RegisterMoney handles POST /participant/money.
func (h *LedgerHandlers) RegisterMoney(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	var txs []models.Transaction
	if !decodeJSON(w, r, &txs) {
		return
	}

	if err := h.ledger.RegisterTransactions(r.Context(), ownerID, txs); err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, MessageResponse{Message: "Transactions registered"})
}
