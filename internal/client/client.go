package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ulma/ulma/internal/logging"
	"github.com/ulma/ulma/internal/models"
)

const requestIDHeader = "X-Request-ID"

// Client calls the ulma REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	logger     *logrus.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithLogger(logger *logrus.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for baseURL, e.g. "http://localhost:8080/api".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken replaces the bearer token, typically after Login.
func (c *Client) SetToken(token string) {
	c.token = token
}

type phoneRequest struct {
	PhoneNumber      string `json:"phoneNumber"`
	VerificationCode string `json:"verificationCode,omitempty"`
}

// RequestPhoneCode asks the backend to send a verification code by SMS.
func (c *Client) RequestPhoneCode(ctx context.Context, phoneNumber string) error {
	return c.do(ctx, http.MethodPost, "/auth/phone", nil, phoneRequest{PhoneNumber: phoneNumber}, nil)
}

// VerifyPhoneCode submits the code the user received.
func (c *Client) VerifyPhoneCode(ctx context.Context, phoneNumber, code string) error {
	body := phoneRequest{PhoneNumber: phoneNumber, VerificationCode: code}
	return c.do(ctx, http.MethodPut, "/auth/phone", nil, body, nil)
}

type SignupRequest struct {
	LoginID     string `json:"loginId"`
	Password    string `json:"password"`
	Name        string `json:"name"`
	BirthDate   string `json:"birthDate"`
	PhoneNumber string `json:"phoneNumber"`
}

func (c *Client) Signup(ctx context.Context, req SignupRequest) error {
	return c.do(ctx, http.MethodPost, "/auth/signup", nil, req, nil)
}

type loginRequest struct {
	LoginID  string `json:"loginId"`
	Password string `json:"password"`
}

// Login exchanges credentials for a token pair and starts sending the access
// token on subsequent requests. A 401 maps to ErrUnauthorized.
func (c *Client) Login(ctx context.Context, loginID, password string) (*models.TokenPair, error) {
	var pair models.TokenPair
	err := c.do(ctx, http.MethodPost, "/auth/login", nil, loginRequest{LoginID: loginID, Password: password}, &pair)
	if err != nil {
		if StatusCode(err) == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	c.token = pair.AccessToken
	return &pair, nil
}

type CreateEventRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Date     string `json:"date"`
}

type createdEvent struct {
	EventID int64 `json:"eventId"`
}

func (c *Client) CreateEvent(ctx context.Context, req CreateEventRequest) (int64, error) {
	var out createdEvent
	if err := c.do(ctx, http.MethodPost, "/events", nil, req, &out); err != nil {
		return 0, err
	}
	return out.EventID, nil
}

type CreateGuestRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

type createdGuest struct {
	GuestID int64 `json:"guestId"`
}

func (c *Client) CreateGuest(ctx context.Context, req CreateGuestRequest) (int64, error) {
	var out createdGuest
	if err := c.do(ctx, http.MethodPost, "/participant", nil, req, &out); err != nil {
		return 0, err
	}
	return out.GuestID, nil
}

// EventDetail fetches one page of an event's guest ledger. Pages start at 1.
func (c *Client) EventDetail(ctx context.Context, eventID int64, page int) (*models.GuestPage, error) {
	query := url.Values{"page": []string{strconv.Itoa(page)}}
	var out models.GuestPage
	path := "/events/detail/" + strconv.FormatInt(eventID, 10)
	if err := c.do(ctx, http.MethodGet, path, query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type contactList struct {
	Data []models.Contact `json:"data"`
}

// SameNameParticipants looks up the user's contacts sharing name.
func (c *Client) SameNameParticipants(ctx context.Context, name string) ([]models.Contact, error) {
	var out contactList
	if err := c.do(ctx, http.MethodGet, "/participant/same", url.Values{"name": []string{name}}, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// RegisterTransactions posts amounts given by guests.
func (c *Client) RegisterTransactions(ctx context.Context, txs []models.Transaction) error {
	return c.do(ctx, http.MethodPost, "/participant/money", nil, txs, nil)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	requestID := uuid.New().String()
	req.Header.Set(requestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	log := c.logger.WithFields(logrus.Fields{
		"method":     method,
		"path":       path,
		"request_id": requestID,
	})

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Debug("Request failed")
		return &UnknownNetworkError{Err: err}
	}
	defer resp.Body.Close()

	log = log.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	})

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.WithError(err).Debug("Failed to read response body")
		return &UnknownNetworkError{StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil {
			apiErr.Code = eb.Code
			apiErr.Message = eb.Message
		}
		log.WithField("message", apiErr.Message).Debug("Backend returned error")
		return apiErr
	}

	log.Debug("Request completed")

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &UnknownNetworkError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}
