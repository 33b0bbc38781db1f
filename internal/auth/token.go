// Package auth mints and verifies the HMAC-signed session tokens issued by
// DoAuth, and parses the "<device_id>/<user_id>" subject claim.
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the session token payload: subject, issued-at, expires-at.
type Claims struct {
	jwt.RegisteredClaims
}

// SessionIdentity is the parsed form of a token's subject claim.
type SessionIdentity struct {
	DeviceID string
	UserID   string
}

// Service signs and verifies session tokens with a single symmetric secret.
type Service struct {
	secret []byte
}

func New(secret string) *Service {
	return &Service{secret: []byte(secret)}
}

// IssueToken mints a token whose subject is "<deviceID>/<userID>", valid for
// the given duration starting now.
func (s *Service) IssueToken(userID, deviceID string, duration time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   deviceID + "/" + userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify validates signature and expiry and returns the parsed identity.
func (s *Service) Verify(tokenStr string) (SessionIdentity, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return SessionIdentity{}, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return SessionIdentity{}, fmt.Errorf("invalid token")
	}
	return DecodeSubject(claims.Subject)
}

// DecodeSubject splits a "<device_id>/<user_id>" subject into its parts.
// Both parts must be non-empty.
func DecodeSubject(subject string) (SessionIdentity, error) {
	parts := strings.SplitN(subject, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return SessionIdentity{}, fmt.Errorf("malformed subject %q", subject)
	}
	return SessionIdentity{DeviceID: parts[0], UserID: parts[1]}, nil
}
