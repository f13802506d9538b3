package guestbook

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ulma/ulma/internal/client"
	"github.com/ulma/ulma/internal/models"
)

// Registration is the "register a transaction" dialog: find the guest by
// name, pick one of the same-name contacts, enter an amount, submit.
type Registration struct {
	ledger *Ledger

	mu       sync.Mutex
	query    string
	results  []models.Contact
	selected *models.Contact
	amount   string
	gen      uint64
}

func (l *Ledger) NewRegistration() *Registration {
	return &Registration{ledger: l}
}

// Label is how a selected contact is shown in the search box.
func Label(c models.Contact) string {
	return fmt.Sprintf("%s (%s)", c.Name, c.Category)
}

// Search runs the duplicate-name lookup. Results of an older search that
// complete after a newer one are dropped with client.ErrStale.
func (r *Registration) Search(ctx context.Context, query string) ([]models.Contact, error) {
	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.query = query
	r.selected = nil
	r.mu.Unlock()

	contacts, err := r.ledger.SearchRemote(ctx, query)

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		return nil, client.ErrStale
	}
	if err != nil {
		return nil, err
	}
	r.results = contacts
	return contacts, nil
}

func (r *Registration) Results() []models.Contact {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Contact, len(r.results))
	copy(out, r.results)
	return out
}

func (r *Registration) Select(c models.Contact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selected = &c
	r.query = Label(c)
}

func (r *Registration) Selected() (models.Contact, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.selected == nil {
		return models.Contact{}, false
	}
	return *r.selected, true
}

func (r *Registration) Query() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.query
}

func (r *Registration) SetAmount(amount string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.amount = amount
}

// Submit registers the selected guest's amount and clears the dialog on
// success. Validation errors leave the dialog as it is.
func (r *Registration) Submit(ctx context.Context) error {
	r.mu.Lock()
	var guestID int64
	if r.selected != nil {
		guestID = r.selected.GuestID
	}
	amount := r.amount
	r.mu.Unlock()

	err := r.ledger.AddTransaction(ctx, guestID, amount)
	if err == nil || errors.Is(err, ErrReloadFailed) {
		r.Clear()
	}
	return err
}

func (r *Registration) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.query = ""
	r.results = nil
	r.selected = nil
	r.amount = ""
}
