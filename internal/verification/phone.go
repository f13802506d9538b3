package verification

import (
	"fmt"
	"strings"

	"github.com/ulma/ulma/internal/client"
)

// PhoneDigits is the length of a normalized mobile number.
const PhoneDigits = 11

// NormalizePhoneNumber strips everything but digits from raw and requires
// exactly PhoneDigits of them.
func NormalizePhoneNumber(raw string) (string, error) {
	digits := digitsOnly(raw)
	if len(digits) != PhoneDigits {
		return "", client.NewValidationError("phoneNumber", fmt.Sprintf("phone number must have %d digits, got %d", PhoneDigits, len(digits)))
	}
	return digits, nil
}

// FormatPhoneNumber renders a possibly partial number as 010-1234-5678.
// Input longer than PhoneDigits digits is returned unchanged.
func FormatPhoneNumber(raw string) string {
	digits := digitsOnly(raw)
	if len(digits) > PhoneDigits {
		return raw
	}
	switch {
	case len(digits) <= 3:
		return digits
	case len(digits) <= 7:
		return digits[:3] + "-" + digits[3:]
	default:
		return digits[:3] + "-" + digits[3:7] + "-" + digits[7:]
	}
}

// FormatCountdown renders seconds as MM:SS.
func FormatCountdown(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
