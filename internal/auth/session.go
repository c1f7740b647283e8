// Package auth covers reconnect session tokens and room passcodes.
// Session tokens let a dropped client resume its seat without trusting a
// client-supplied player id; passcodes gate entry to private rooms.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid session token")

// SessionClaims bind a token to one seat in one room.
type SessionClaims struct {
	PlayerID string `json:"playerId"`
	GameCode string `json:"gameCode"`
	jwt.RegisteredClaims
}

// Sessions issues and verifies reconnect tokens.
type Sessions struct {
	secret []byte
	ttl    time.Duration
}

func NewSessions(secret string, ttl time.Duration) *Sessions {
	return &Sessions{secret: []byte(secret), ttl: ttl}
}

// Issue mints a token for the player's seat.
func (s *Sessions) Issue(playerID, gameCode string) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		PlayerID: playerID,
		GameCode: gameCode,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

// Verify parses a token, returning the bound player id and game code.
func (s *Sessions) Verify(token string) (playerID, gameCode string, err error) {
	var claims SessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.PlayerID == "" || claims.GameCode == "" {
		return "", "", fmt.Errorf("%w: missing claims", ErrInvalidToken)
	}
	return claims.PlayerID, claims.GameCode, nil
}
