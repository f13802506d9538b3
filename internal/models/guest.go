package models

// GuestRecord is one row of an event's guest ledger: who came and how much they gave.
type GuestRecord struct {
	GuestID   int64  `json:"guestId" dynamodbav:"guest_id"`
	GuestName string `json:"guestName" dynamodbav:"guest_name"`
	Category  string `json:"category" dynamodbav:"category"`
	Amount    int64  `json:"amount" dynamodbav:"amount"`
}

// GuestPage is the envelope returned by the event detail endpoint.
type GuestPage struct {
	Data       []GuestRecord `json:"data"`
	Page       int           `json:"page"`
	TotalItems int           `json:"totalItems"`
	TotalPages int           `json:"totalPages"`
}

// Contact is a guest known to the user, as returned by the same-name search.
type Contact struct {
	GuestID  int64  `json:"guestId" dynamodbav:"guest_id"`
	Name     string `json:"name" dynamodbav:"name"`
	Category string `json:"category" dynamodbav:"category"`
	OwnerID  string `json:"-" dynamodbav:"owner_id"`
}

// Transaction registers an amount given by a guest at an event.
type Transaction struct {
	EventID int64 `json:"eventId"`
	GuestID int64 `json:"guestId"`
	Amount  int64 `json:"amount"`
}
