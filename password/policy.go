package password

import (
	"errors"
	"unicode"
)

const minCredentialLength = 10

// ErrWeakCredential is returned when a candidate credential fails the policy.
var ErrWeakCredential = errors.New("credential does not meet strength policy")

// CheckPolicy enforces the strength policy applied on every credential
// change: at least 10 bytes, with at least one letter and one digit.
func CheckPolicy(credential string) error {
	if len(credential) < minCredentialLength {
		return ErrWeakCredential
	}

	var hasLetter, hasDigit bool
	for _, r := range credential {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return ErrWeakCredential
	}
	return nil
}
