package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ulma/ulma/internal/logging"
	"github.com/ulma/ulma/internal/service"
)

type fakeVerifier map[string]string

func (f fakeVerifier) VerifyToken(token string) (*service.Claims, error) {
	userID, ok := f[token]
	if !ok {
		return nil, errors.New("bad token")
	}
	return &service.Claims{UserID: userID}, nil
}

func protectedHandler() http.Handler {
	auth := NewAuthMiddleware(fakeVerifier{"good": "alice"}, logging.Discard())
	return auth.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserID(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(userID))
	}))
}

func TestRequireAuth(t *testing.T) {
	cases := []struct {
		header string
		status int
	}{
		{"", http.StatusUnauthorized},
		{"Token good", http.StatusUnauthorized},
		{"Bearer bad", http.StatusUnauthorized},
		{"Bearer good", http.StatusOK},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/events/detail/1", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		protectedHandler().ServeHTTP(rec, req)

		if rec.Code != tc.status {
			t.Fatalf("%q: expected %d got %d", tc.header, tc.status, rec.Code)
		}
		if tc.status == http.StatusOK && rec.Body.String() != "alice" {
			t.Fatalf("unexpected user id %q", rec.Body.String())
		}
	}
}

func TestLoggingMiddlewareRequestID(t *testing.T) {
	handler := LoggingMiddleware(logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get(RequestIDHeader) != "req-1" {
		t.Fatalf("request id not echoed: %q", rec.Header().Get(RequestIDHeader))
	}
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status not passed through: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatal("request id not generated")
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/auth/phone", nil))

	if called || rec.Code != http.StatusNoContent {
		t.Fatalf("preflight reached handler or wrong status %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header")
	}
}
