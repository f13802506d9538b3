package models

import "time"

// VerificationData is the server-side record of an issued phone code.
type VerificationData struct {
	CodeHash  string    `json:"code_hash"`
	Phone     string    `json:"phone"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
