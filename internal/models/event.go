package models

import "time"

type Event struct {
	EventID   int64     `json:"eventId" dynamodbav:"event_id"`
	OwnerID   string    `json:"-" dynamodbav:"owner_id"`
	Name      string    `json:"name" dynamodbav:"name"`
	Category  string    `json:"category" dynamodbav:"category"`
	Date      string    `json:"date" dynamodbav:"date"`
	CreatedAt time.Time `json:"createdAt" dynamodbav:"created_at"`
}

func EventPK(eventID int64) string {
	return "EVENT#" + formatID(eventID)
}
