package utils

import (
	"regexp"
	"strings"

	gwerrors "github.com/NHSDigital/clinical-data-gateway-api/gateway/errors"
	"github.com/pkg/errors"
)

var nonDigits = regexp.MustCompile(`\D`)

// ValidateNHSNumber applies the NHS modulus 11 check digit algorithm. Separators
// such as spaces or hyphens are ignored.
func ValidateNHSNumber(value string) bool {
	digits := nonDigits.ReplaceAllString(value, "")
	if len(digits) != 10 {
		return false
	}

	total := 0
	for i := 0; i < 9; i++ {
		total += int(digits[i]-'0') * (10 - i)
	}

	check := 11 - total%11
	if check == 11 {
		check = 0
	}
	if check == 10 {
		return false
	}

	return check == int(digits[9]-'0')
}

// CoerceNHSNumber normalises user input such as "943 476 5919" into the bare
// ten digit form, returning a *ValidationError when it is not a usable NHS number.
func CoerceNHSNumber(value string) (string, error) {
	stripped := strings.ReplaceAll(strings.TrimSpace(value), " ", "")

	if stripped == "" || nonDigits.MatchString(stripped) {
		return "", &gwerrors.ValidationError{Err: errors.New("NHS number must be numeric"), Msg: value}
	}
	if len(stripped) != 10 {
		return "", &gwerrors.ValidationError{Err: errors.New("NHS number must be 10 digits"), Msg: value}
	}
	if !ValidateNHSNumber(stripped) {
		return "", &gwerrors.ValidationError{Err: errors.New("NHS number is invalid"), Msg: value}
	}

	return stripped, nil
}
