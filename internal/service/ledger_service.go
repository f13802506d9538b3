package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ulma/ulma/internal/models"
	"github.com/ulma/ulma/internal/queue"
	"github.com/ulma/ulma/internal/repository"
)

type EventStore interface {
	Create(ctx context.Context, event *models.Event) error
	Get(ctx context.Context, eventID int64) (*models.Event, error)
	AddParticipation(ctx context.Context, eventID int64, record models.GuestRecord) error
	Participants(ctx context.Context, eventID int64, page, size int) (*models.GuestPage, error)
}

type ContactStore interface {
	Create(ctx context.Context, contact *models.Contact) error
	Get(ctx context.Context, ownerID string, guestID int64) (*models.Contact, error)
	FindByName(ctx context.Context, ownerID, name string) ([]models.Contact, error)
}

// LedgerService owns events, the user's contacts and the amounts each contact
// gave at each event. Every call is scoped to the authenticated owner.
type LedgerService struct {
	events    EventStore
	contacts  ContactStore
	publisher queue.Publisher
	pageSize  int
	logger    *logrus.Logger
}

func NewLedgerService(events EventStore, contacts ContactStore, publisher queue.Publisher, pageSize int, logger *logrus.Logger) *LedgerService {
	return &LedgerService{
		events:    events,
		contacts:  contacts,
		publisher: publisher,
		pageSize:  pageSize,
		logger:    logger,
	}
}

func (s *LedgerService) CreateEvent(ctx context.Context, ownerID, name, category, date string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, &InputError{Message: "name is required"}
	}

	event := &models.Event{
		OwnerID:  ownerID,
		Name:     name,
		Category: strings.TrimSpace(category),
		Date:     strings.TrimSpace(date),
	}
	if err := s.events.Create(ctx, event); err != nil {
		return 0, err
	}

	s.logger.WithFields(logrus.Fields{
		"event_id": event.EventID,
		"owner_id": ownerID,
	}).Info("Event created")
	return event.EventID, nil
}

func (s *LedgerService) ownedEvent(ctx context.Context, ownerID string, eventID int64) (*models.Event, error) {
	event, err := s.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil || event.OwnerID != ownerID {
		return nil, ErrEventNotFound
	}
	return event, nil
}

// EventDetail returns one page of the event's guest ledger.
func (s *LedgerService) EventDetail(ctx context.Context, ownerID string, eventID int64, page int) (*models.GuestPage, error) {
	if page < 1 {
		return nil, &InputError{Message: "page must be at least 1"}
	}
	if _, err := s.ownedEvent(ctx, ownerID, eventID); err != nil {
		return nil, err
	}
	return s.events.Participants(ctx, eventID, page, s.pageSize)
}

func (s *LedgerService) CreateContact(ctx context.Context, ownerID, name, category string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, &InputError{Message: "name is required"}
	}

	contact := &models.Contact{
		Name:     name,
		Category: strings.TrimSpace(category),
		OwnerID:  ownerID,
	}
	if err := s.contacts.Create(ctx, contact); err != nil {
		return 0, err
	}
	return contact.GuestID, nil
}

// SameName lists the owner's contacts whose name contains name.
func (s *LedgerService) SameName(ctx context.Context, ownerID, name string) ([]models.Contact, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return []models.Contact{}, nil
	}
	return s.contacts.FindByName(ctx, ownerID, name)
}

// RegisterTransactions records each amount and publishes one event per
// stored transaction. It stops at the first failure.
func (s *LedgerService) RegisterTransactions(ctx context.Context, ownerID string, txs []models.Transaction) error {
	if len(txs) == 0 {
		return &InputError{Message: "at least one transaction is required"}
	}

	for _, tx := range txs {
		if tx.Amount <= 0 {
			return &InputError{Message: "amount must be positive"}
		}
		if _, err := s.ownedEvent(ctx, ownerID, tx.EventID); err != nil {
			return err
		}
		contact, err := s.contacts.Get(ctx, ownerID, tx.GuestID)
		if err != nil {
			return err
		}
		if contact == nil {
			return ErrGuestNotFound
		}

		record := models.GuestRecord{
			GuestID:   contact.GuestID,
			GuestName: contact.Name,
			Category:  contact.Category,
			Amount:    tx.Amount,
		}
		if err := s.events.AddParticipation(ctx, tx.EventID, record); err != nil {
			if errors.Is(err, repository.ErrParticipationExists) {
				return ErrDuplicateEntry
			}
			return err
		}

		event := queue.ParticipationRegisteredEvent{
			EventID:      tx.EventID,
			GuestID:      contact.GuestID,
			OwnerID:      ownerID,
			GuestName:    contact.Name,
			Amount:       tx.Amount,
			RegisteredAt: time.Now().UTC(),
		}
		if err := s.publisher.PublishParticipation(ctx, event); err != nil {
			s.logger.WithError(err).WithField("event_id", tx.EventID).Warn("Failed to publish participation")
		}
	}
	return nil
}
