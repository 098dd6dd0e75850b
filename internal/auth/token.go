// internal/auth/token.go
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSecret is returned when tokens are requested from a Signer without a key.
var ErrNoSecret = errors.New("feed token secret not configured")

// FeedClaims authorize one observer to watch one channel's session feed.
type FeedClaims struct {
	Channel string `json:"channel"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HMAC-signed feed tokens.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner returns a Signer for secret. A zero ttl issues tokens without an exp claim.
func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// CreateFeedToken creates a signed token with "sub" = userID and "channel" = channelID.
func (s *Signer) CreateFeedToken(userID, channelID string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrNoSecret
	}
	now := s.now()
	claims := FeedClaims{
		Channel: channelID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ParseFeedToken verifies a token string and returns its claims.
func (s *Signer) ParseFeedToken(tokenString string) (*FeedClaims, error) {
	if len(s.secret) == 0 {
		return nil, ErrNoSecret
	}
	claims := &FeedClaims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" || claims.Channel == "" {
		return nil, errors.New("missing sub or channel in jwt")
	}
	return claims, nil
}
