// Package session determines which backend user the local logbook belongs to.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/logsync/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Session resolves the owner id from an access token or a static value.
type Session struct {
	token   string
	secret  []byte
	ownerID string
	now     func() time.Time
}

// New builds a Session. A non-empty token takes precedence over ownerID.
// When secret is empty the token signature is not checked; the backend
// verifies it on every request anyway.
func New(token, secret, ownerID string) *Session {
	s := &Session{
		token:   strings.TrimSpace(token),
		ownerID: strings.TrimSpace(ownerID),
		now:     time.Now,
	}
	if secret != "" {
		s.secret = []byte(secret)
	}
	return s
}

// OwnerID returns the authenticated user id, or ErrUnauthenticated when
// neither a token nor a static owner is configured.
func (s *Session) OwnerID() (string, error) {
	if s.token != "" {
		return s.fromToken()
	}
	if s.ownerID == "" {
		return "", common.ErrUnauthenticated
	}
	return s.ownerID, nil
}

func (s *Session) fromToken() (string, error) {
	claims := &jwt.RegisteredClaims{}

	if s.secret == nil {
		if _, _, err := jwt.NewParser().ParseUnverified(s.token, claims); err != nil {
			return "", fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
		}
		if claims.ExpiresAt != nil && !s.now().Before(claims.ExpiresAt.Time) {
			return "", common.ErrTokenExpired
		}
	} else {
		token, err := jwt.ParseWithClaims(s.token, claims, func(t *jwt.Token) (interface{}, error) {
			return s.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return "", common.ErrTokenExpired
			}
			return "", fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
		}
		if !token.Valid {
			return "", common.ErrInvalidToken
		}
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", common.ErrInvalidToken)
	}
	return claims.Subject, nil
}

// GenerateToken signs an HS256 access token for userID.
func GenerateToken(userID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}
