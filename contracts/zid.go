package contracts

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ShortZIDLength is the length of the abbreviated session identifier
const ShortZIDLength = 8

// ZID identifies a session
type ZID string

// NewZID creates a new random session identifier
func NewZID() ZID {
	id := uuid.New()
	return ZID(hex.EncodeToString(id[:]))
}

// ParseZID validates s as a session identifier
func ParseZID(s string) (ZID, error) {
	if len(s) == 0 || len(s) > 32 {
		return "", fmt.Errorf("%w: %q", ErrInvalidZID, s)
	}
	if strings.ToLower(s) != s {
		return "", fmt.Errorf("%w: %q", ErrInvalidZID, s)
	}
	padded := s
	if len(padded)%2 == 1 {
		padded = "0" + padded
	}
	if _, err := hex.DecodeString(padded); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidZID, s)
	}
	return ZID(s), nil
}

// String returns the identifier
func (z ZID) String() string {
	return string(z)
}

// Short returns the first ShortZIDLength characters
func (z ZID) Short() string {
	if len(z) <= ShortZIDLength {
		return string(z)
	}
	return string(z[:ShortZIDLength])
}
