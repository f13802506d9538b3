package models

import "fmt"

// IDs are zero padded so that sort keys order numerically.
func formatID(id int64) string {
	return fmt.Sprintf("%012d", id)
}

func GuestSK(guestID int64) string {
	return "GUEST#" + formatID(guestID)
}

func ContactSK(guestID int64) string {
	return "CONTACT#" + formatID(guestID)
}
