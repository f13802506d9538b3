package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ulma/ulma/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL + "/api/")
}

func TestRequestPhoneCodeSendsNormalizedBody(t *testing.T) {
	var got phoneRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth/phone" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get(requestIDHeader) == "" {
			t.Errorf("missing request id header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	})

	if err := c.RequestPhoneCode(context.Background(), "01012345678"); err != nil {
		t.Fatalf("request code: %v", err)
	}
	if got.PhoneNumber != "01012345678" {
		t.Fatalf("unexpected phone %q", got.PhoneNumber)
	}
	if got.VerificationCode != "" {
		t.Fatalf("verification code should be omitted, got %q", got.VerificationCode)
	}
}

func TestErrorResponsesBecomeAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"code":"PHONE_REGISTERED","message":"phone number already exists"}`))
	})

	err := c.VerifyPhoneCode(context.Background(), "01012345678", "123456")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T %v", err, err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Code != "PHONE_REGISTERED" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
	if StatusCode(err) != http.StatusConflict {
		t.Fatalf("StatusCode helper returned %d", StatusCode(err))
	}
}

func TestTransportFailureIsUnknownNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := New(srv.URL)
	srv.Close()

	err := c.RequestPhoneCode(context.Background(), "01012345678")
	var unknown *UnknownNetworkError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected *UnknownNetworkError, got %T %v", err, err)
	}
	if unknown.StatusCode != 0 {
		t.Fatalf("expected no status, got %d", unknown.StatusCode)
	}
}

func TestLoginStoresToken(t *testing.T) {
	var authHeader string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			var req loginRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.Password != "secret-pw" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(models.TokenPair{AccessToken: "tok", TokenType: "Bearer", ExpiresIn: 60})
		case "/api/events/detail/7":
			authHeader = r.Header.Get("Authorization")
			if r.URL.Query().Get("page") != "2" {
				t.Errorf("expected page=2, got %q", r.URL.RawQuery)
			}
			json.NewEncoder(w).Encode(models.GuestPage{
				Data:       []models.GuestRecord{{GuestID: 1, GuestName: "Kim", Category: "friend", Amount: 50000}},
				Page:       2,
				TotalPages: 3,
			})
		}
	})

	ctx := context.Background()
	if _, err := c.Login(ctx, "kim", "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	pair, err := c.Login(ctx, "kim", "secret-pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if pair.AccessToken != "tok" {
		t.Fatalf("unexpected token %q", pair.AccessToken)
	}

	page, err := c.EventDetail(ctx, 7, 2)
	if err != nil {
		t.Fatalf("event detail: %v", err)
	}
	if authHeader != "Bearer tok" {
		t.Fatalf("expected bearer token, got %q", authHeader)
	}
	if len(page.Data) != 1 || page.TotalPages != 3 {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestSameNameParticipantsAndRegister(t *testing.T) {
	var posted []models.Transaction
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/participant/same":
			if r.URL.Query().Get("name") != "Lee" {
				t.Errorf("unexpected name query %q", r.URL.RawQuery)
			}
			w.Write([]byte(`{"data":[{"guestId":3,"name":"Lee","category":"work"},{"guestId":4,"name":"Lee","category":"family"}]}`))
		case "/api/participant/money":
			json.NewDecoder(r.Body).Decode(&posted)
		}
	})

	ctx := context.Background()
	contacts, err := c.SameNameParticipants(ctx, "Lee")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(contacts) != 2 || contacts[1].Category != "family" {
		t.Fatalf("unexpected contacts %+v", contacts)
	}

	if err := c.RegisterTransactions(ctx, []models.Transaction{{EventID: 1, GuestID: 3, Amount: 30000}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(posted) != 1 || posted[0].GuestID != 3 || posted[0].Amount != 30000 {
		t.Fatalf("unexpected body %+v", posted)
	}
}

func TestIsDuplicateMessage(t *testing.T) {
	cases := map[string]bool{
		"duplicate key value":          true,
		"Participation already exists": true,
		"event not found":              false,
		"":                             false,
	}
	for msg, want := range cases {
		if got := IsDuplicateMessage(msg); got != want {
			t.Fatalf("IsDuplicateMessage(%q) = %v, want %v", msg, got, want)
		}
	}
}
