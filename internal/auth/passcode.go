package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var ErrWrongPasscode = errors.New("wrong passcode")

// HashPasscode hashes a room passcode for storage on the room. Empty
// passcodes hash to empty, meaning an open room.
func HashPasscode(passcode string) (string, error) {
	if passcode == "" {
		return "", nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash passcode: %w", err)
	}
	return string(hash), nil
}

// CheckPasscode verifies a join attempt against the room's stored hash.
// An empty hash admits everyone.
func CheckPasscode(hash, passcode string) error {
	if hash == "" {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(passcode)); err != nil {
		return ErrWrongPasscode
	}
	return nil
}
