// Package queue publishes ledger events to the message broker.
package queue

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// ParticipationRegisteredEvent is published after a guest's amount was
// recorded for an event.
type ParticipationRegisteredEvent struct {
	EventID      int64     `json:"event_id"`
	GuestID      int64     `json:"guest_id"`
	OwnerID      string    `json:"owner_id"`
	GuestName    string    `json:"guest_name"`
	Amount       int64     `json:"amount"`
	RegisteredAt time.Time `json:"registered_at"`
}

type Publisher interface {
	PublishParticipation(ctx context.Context, event ParticipationRegisteredEvent) error
	Close() error
}

// LogPublisher writes events to the log. It is used when no broker is
// configured.
type LogPublisher struct {
	logger *logrus.Logger
}

func NewLogPublisher(logger *logrus.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishParticipation(ctx context.Context, event ParticipationRegisteredEvent) error {
	p.logger.WithFields(logrus.Fields{
		"event_id": event.EventID,
		"guest_id": event.GuestID,
		"amount":   event.Amount,
	}).Info("Participation registered")
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
