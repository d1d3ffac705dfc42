// Package authtoken provides the bearer-token compatibility layer retained
// underneath Session Core for API-token style callers, adapted from a
// JWTManager wrapper around golang-jwt.
package authtoken

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Manager issues and verifies bearer tokens for programmatic callers that
// cannot hold a cookie-based session.
type Manager struct {
	secretKey      []byte
	accessTokenDur time.Duration
}

// Claims carries the token's subject and scopes; there is no per-user
// identity in this domain, so the claim set is reduced to what a bearer
// token needs here.
type Claims struct {
	Subject string   `json:"subject"`
	Scopes  []string `json:"scopes"`
	jwt.RegisteredClaims
}

// NewManager creates a Manager with the given signing secret and access
// token lifetime.
func NewManager(secret string, accessTokenExpireHours int) *Manager {
	return &Manager{
		secretKey:      []byte(secret),
		accessTokenDur: time.Hour * time.Duration(accessTokenExpireHours),
	}
}

// Issue generates a signed bearer token for subject with the given scopes.
func (m *Manager) Issue(subject string, scopes []string) (string, error) {
	claims := Claims{
		Subject: subject,
		Scopes:  scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.accessTokenDur)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// Verify parses and validates a bearer token string.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// GenerateRandomString generates a random hex string of the given byte
// length, kept for compatibility with callers needing opaque token material
// outside the JWT flow (e.g. API key provisioning).
func GenerateRandomString(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("fallback%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
