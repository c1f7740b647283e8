package auth

import (
	"errors"
	"testing"
	"time"
)

func TestSessionRoundTrip(t *testing.T) {
	s := NewSessions("test-secret", time.Hour)

	token, err := s.Issue("p1", "4321")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	playerID, gameCode, err := s.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if playerID != "p1" || gameCode != "4321" {
		t.Errorf("claims = %s/%s, want p1/4321", playerID, gameCode)
	}
}

func TestSessionRejectsWrongSecret(t *testing.T) {
	token, err := NewSessions("secret-a", time.Hour).Issue("p1", "4321")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, _, err := NewSessions("secret-b", time.Hour).Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestSessionRejectsExpired(t *testing.T) {
	s := NewSessions("test-secret", -time.Minute)
	token, err := s.Issue("p1", "4321")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, _, err := s.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestSessionRejectsGarbage(t *testing.T) {
	s := NewSessions("test-secret", time.Hour)
	if _, _, err := s.Verify("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestPasscodeRoundTrip(t *testing.T) {
	hash, err := HashPasscode("hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := CheckPasscode(hash, "hunter2"); err != nil {
		t.Errorf("correct passcode rejected: %v", err)
	}
	if err := CheckPasscode(hash, "hunter3"); !errors.Is(err, ErrWrongPasscode) {
		t.Errorf("wrong passcode accepted")
	}
}

func TestEmptyPasscodeMeansOpenRoom(t *testing.T) {
	hash, err := HashPasscode("")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash != "" {
		t.Errorf("empty passcode must hash to empty")
	}
	if err := CheckPasscode("", "anything"); err != nil {
		t.Errorf("open room must admit everyone: %v", err)
	}
}
