// Package guestbook keeps the client-side view of an event's guest ledger:
// an append-only list built from backend pages, with local filtering and the
// transaction registration sub-flow.
package guestbook

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ulma/ulma/internal/client"
	"github.com/ulma/ulma/internal/logging"
	"github.com/ulma/ulma/internal/models"
)

// Backend is the part of the REST API the ledger needs. *client.Client
// implements it.
type Backend interface {
	EventDetail(ctx context.Context, eventID int64, page int) (*models.GuestPage, error)
	SameNameParticipants(ctx context.Context, name string) ([]models.Contact, error)
	RegisterTransactions(ctx context.Context, txs []models.Transaction) error
}

// ErrReloadFailed reports that a transaction was registered but the list
// could not be reloaded afterwards.
var ErrReloadFailed = errors.New("transaction registered, reload failed")

type Option func(*Ledger)

func WithLogger(logger *logrus.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// Stats describes pagination state.
type Stats struct {
	Page     int
	HasMore  bool
	InFlight bool
	Requests int
	Count    int
}

// Ledger is the accumulated list for one event. It is owned by one screen.
type Ledger struct {
	mu      sync.Mutex
	backend Backend
	eventID int64
	logger  *logrus.Logger

	guests   []models.GuestRecord
	ids      map[int64]struct{}
	page     int
	hasMore  bool
	inFlight bool
	requests int
	query    string
	closed   bool

	// gen is bumped by Refresh and Close so that older page responses are
	// dropped instead of appended.
	gen uint64
}

func NewLedger(backend Backend, eventID int64, opts ...Option) *Ledger {
	l := &Ledger{
		backend: backend,
		eventID: eventID,
		logger:  logging.Discard(),
		ids:     make(map[int64]struct{}),
		hasMore: true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) EventID() int64 {
	return l.eventID
}

// FetchPage fetches page and appends it. It reports false without touching
// the network when a fetch is already in flight or the last page was reached.
func (l *Ledger) FetchPage(ctx context.Context, page int) (bool, error) {
	if page < 1 {
		return false, client.NewValidationError("page", "pages start at 1")
	}

	l.mu.Lock()
	gen, ok, err := l.beginLocked()
	l.mu.Unlock()
	if !ok {
		return false, err
	}

	return l.fetch(ctx, gen, page)
}

// LoadMore fetches the page after the last one appended. It is the handler
// for reaching the end of the list, and loads page 1 on first use.
func (l *Ledger) LoadMore(ctx context.Context) (bool, error) {
	l.mu.Lock()
	gen, ok, err := l.beginLocked()
	next := l.page + 1
	l.mu.Unlock()
	if !ok {
		return false, err
	}

	return l.fetch(ctx, gen, next)
}

func (l *Ledger) beginLocked() (uint64, bool, error) {
	if l.closed {
		return 0, false, client.ErrClosed
	}
	if l.inFlight || !l.hasMore {
		return 0, false, nil
	}
	l.inFlight = true
	l.requests++
	return l.gen, true, nil
}

func (l *Ledger) fetch(ctx context.Context, gen uint64, page int) (bool, error) {
	resp, err := l.backend.EventDetail(ctx, l.eventID, page)

	l.mu.Lock()
	defer l.mu.Unlock()

	if gen != l.gen {
		return false, client.ErrStale
	}
	l.inFlight = false

	if err != nil {
		l.logger.WithError(err).WithFields(logrus.Fields{
			"event_id": l.eventID,
			"page":     page,
		}).Warn("Failed to fetch guest page")
		return false, client.Unknown(err)
	}

	added := l.appendLocked(resp.Data)
	l.page = page
	if len(resp.Data) == 0 || resp.TotalPages <= page {
		l.hasMore = false
	}

	l.logger.WithFields(logrus.Fields{
		"event_id": l.eventID,
		"page":     page,
		"added":    added,
		"has_more": l.hasMore,
	}).Debug("Guest page appended")
	return true, nil
}

// appendLocked adds records whose guest id is not present yet.
func (l *Ledger) appendLocked(records []models.GuestRecord) int {
	added := 0
	for _, r := range records {
		if _, dup := l.ids[r.GuestID]; dup {
			continue
		}
		l.ids[r.GuestID] = struct{}{}
		l.guests = append(l.guests, r)
		added++
	}
	return added
}

// Refresh replaces the list with page 1 and resets pagination. Fetches still
// in flight are discarded.
func (l *Ledger) Refresh(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return client.ErrClosed
	}
	l.gen++
	gen := l.gen
	l.inFlight = true
	l.requests++
	l.mu.Unlock()

	resp, err := l.backend.EventDetail(ctx, l.eventID, 1)

	l.mu.Lock()
	defer l.mu.Unlock()

	if gen != l.gen {
		return client.ErrStale
	}
	l.inFlight = false

	if err != nil {
		l.logger.WithError(err).WithField("event_id", l.eventID).Warn("Failed to refresh guest ledger")
		return client.Unknown(err)
	}

	l.guests = nil
	l.ids = make(map[int64]struct{})
	l.appendLocked(resp.Data)
	l.page = 1
	l.hasMore = len(resp.Data) > 0 && resp.TotalPages > 1
	return nil
}

// Filter sets the local search query and returns the matching records.
func (l *Ledger) Filter(query string) []models.GuestRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.query = query
	return l.visibleLocked()
}

// Visible returns the accumulated list with the current query applied.
func (l *Ledger) Visible() []models.GuestRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.visibleLocked()
}

func (l *Ledger) visibleLocked() []models.GuestRecord {
	return filterGuests(l.guests, l.query)
}

// All returns every accumulated record regardless of the query.
func (l *Ledger) All() []models.GuestRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.GuestRecord, len(l.guests))
	copy(out, l.guests)
	return out
}

// filterGuests matches the query as typed, so surrounding whitespace counts.
func filterGuests(guests []models.GuestRecord, query string) []models.GuestRecord {
	q := strings.ToLower(query)
	out := make([]models.GuestRecord, 0, len(guests))
	for _, g := range guests {
		if q == "" || strings.Contains(strings.ToLower(g.GuestName), q) {
			out = append(out, g)
		}
	}
	return out
}

// SearchRemote asks the backend for the user's contacts named like query.
// It does not touch the accumulated list.
func (l *Ledger) SearchRemote(ctx context.Context, query string) ([]models.Contact, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	contacts, err := l.backend.SameNameParticipants(ctx, query)
	if err != nil {
		l.logger.WithError(err).WithField("query", query).Warn("Failed to search contacts")
		return nil, client.Unknown(err)
	}
	return contacts, nil
}

// AddTransaction registers amount for guestID at this event, then reloads
// page 1. A zero guestID means no guest was selected.
func (l *Ledger) AddTransaction(ctx context.Context, guestID int64, amount string) error {
	if guestID <= 0 {
		return client.NewValidationError("guestId", "select a guest to register")
	}
	value, err := ParseAmount(amount)
	if err != nil {
		return err
	}

	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return client.ErrClosed
	}

	tx := models.Transaction{EventID: l.eventID, GuestID: guestID, Amount: value}
	if err := l.backend.RegisterTransactions(ctx, []models.Transaction{tx}); err != nil {
		l.logger.WithError(err).WithFields(logrus.Fields{
			"event_id": l.eventID,
			"guest_id": guestID,
		}).Warn("Failed to register transaction")
		return mapRegisterError(err)
	}

	l.logger.WithFields(logrus.Fields{
		"event_id": l.eventID,
		"guest_id": guestID,
		"amount":   value,
	}).Info("Transaction registered")

	if err := l.Refresh(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrReloadFailed, err)
	}
	return nil
}

// ParseAmount validates a user-typed amount.
func ParseAmount(amount string) (int64, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return 0, client.NewValidationError("amount", "enter an amount")
	}
	value, err := strconv.ParseInt(amount, 10, 64)
	if err != nil || value <= 0 {
		return 0, client.NewValidationError("amount", "amount must be a positive whole number")
	}
	return value, nil
}

func mapRegisterError(err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && client.IsDuplicateMessage(apiErr.Message) {
		return client.ErrDuplicateResource
	}
	return client.Unknown(err)
}

func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Page:     l.page,
		HasMore:  l.hasMore,
		InFlight: l.inFlight,
		Requests: l.requests,
		Count:    len(l.guests),
	}
}

// Close drops the ledger. Responses still in flight are discarded.
func (l *Ledger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.gen++
}
