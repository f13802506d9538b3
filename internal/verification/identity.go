package verification

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/ulma/ulma/internal/client"
)

var nameRegex = regexp.MustCompile(`^[가-힣a-zA-Z\s\d]{2,15}$`)

// Identity holds the fields collected before a code can be requested.
// BirthDate is YYMMDD and IDLastDigit the first digit of the back half of the
// resident registration number.
type Identity struct {
	Name        string
	BirthDate   string
	IDLastDigit string
}

// Validate returns every field problem joined into one error.
func (id Identity) Validate() error {
	var errs []error

	if !nameRegex.MatchString(strings.TrimSpace(id.Name)) {
		errs = append(errs, client.NewValidationError("name", "2-15 characters of Hangul, Latin letters or digits"))
	}
	if !validBirthDate(id.BirthDate) {
		errs = append(errs, client.NewValidationError("birthDate", "must be a YYMMDD date"))
	}
	switch id.IDLastDigit {
	case "1", "2", "3", "4":
	default:
		errs = append(errs, client.NewValidationError("idLastDigit", "must be 1, 2, 3 or 4"))
	}

	return errors.Join(errs...)
}

func validBirthDate(s string) bool {
	if len(s) != 6 || digitsOnly(s) != s {
		return false
	}
	month, _ := strconv.Atoi(s[2:4])
	day, _ := strconv.Atoi(s[4:6])
	return month >= 1 && month <= 12 && day >= 1 && day <= 31
}
