package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/ulma/ulma/internal/middleware"
)

// NewRouter mounts the API under /api. Everything outside /api/auth and
// /health requires a bearer token.
func NewRouter(
	authHandlers *AuthHandlers,
	ledgerHandlers *LedgerHandlers,
	authMiddleware *middleware.AuthMiddleware,
	logger *logrus.Logger,
) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.CORSMiddleware)
	router.Use(middleware.LoggingMiddleware(logger))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "OPTIONS")

	api := router.PathPrefix("/api").Subrouter()

	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/phone", authHandlers.RequestCode).Methods("POST", "OPTIONS")
	auth.HandleFunc("/phone", authHandlers.VerifyCode).Methods("PUT", "OPTIONS")
	auth.HandleFunc("/signup", authHandlers.Signup).Methods("POST", "OPTIONS")
	auth.HandleFunc("/login", authHandlers.Login).Methods("POST", "OPTIONS")

	protected := api.PathPrefix("/").Subrouter()
	protected.Use(authMiddleware.RequireAuth)
	protected.HandleFunc("/events", ledgerHandlers.CreateEvent).Methods("POST")
	protected.HandleFunc("/events/detail/{eventId:[0-9]+}", ledgerHandlers.EventDetail).Methods("GET")
	protected.HandleFunc("/participant", ledgerHandlers.CreateGuest).Methods("POST")
	protected.HandleFunc("/participant/same", ledgerHandlers.SameName).Methods("GET")
	protected.HandleFunc("/participant/money", ledgerHandlers.RegisterMoney).Methods("POST")

	return router
}
