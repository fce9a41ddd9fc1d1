package walletauth

import (
	"net/mail"
	"regexp"
	"strings"
)

// E.164: plus sign, leading non-zero digit, at most 15 digits total.
var phoneRE = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

func normalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if !phoneRE.MatchString(phone) {
		return "", ErrInvalidPhone
	}
	return phone, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}
