// Package internal holds identifier generation shared by the root package.
// Nothing here is part of the public API.
package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

const sessionIDSize = 16

// NewSessionID returns a 128-bit random id, base64url without padding.
func NewSessionID() (string, error) {
	var raw [sessionIDSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// ParseSessionID validates the shape of an externally supplied session id.
func ParseSessionID(sessionID string) error {
	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return err
	}
	if len(raw) != sessionIDSize {
		return errors.New("invalid session id size")
	}
	return nil
}
