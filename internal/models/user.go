package models

import (
	"time"
)

type User struct {
	UserID       string    `json:"user_id" dynamodbav:"user_id"`
	PhoneNumber  string    `json:"phone_number" dynamodbav:"phone_number"`
	Name         string    `json:"name,omitempty" dynamodbav:"name,omitempty"`
	BirthDate    string    `json:"birth_date,omitempty" dynamodbav:"birth_date,omitempty"`
	PasswordHash string    `json:"-" dynamodbav:"password_hash"`
	CreatedAt    time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

func (u *User) GetPK() string {
	return "USER#" + u.UserID
}

func (u *User) GetSK() string {
	return "PROFILE"
}

// PhonePK is the key of the item that reserves a phone number for one user.
func PhonePK(phoneNumber string) string {
	return "PHONE#" + phoneNumber
}
