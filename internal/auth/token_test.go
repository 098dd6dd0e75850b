package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedTokenRoundTrip(t *testing.T) {
	s := NewSigner("secret", time.Hour)
	token, err := s.CreateFeedToken("user-1", "chan-1")
	require.NoError(t, err)

	claims, err := s.ParseFeedToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "chan-1", claims.Channel)
	assert.NotNil(t, claims.ExpiresAt)
}

func TestFeedTokenExpires(t *testing.T) {
	s := NewSigner("secret", time.Minute)
	issued := time.Now()
	s.now = func() time.Time { return issued }
	token, err := s.CreateFeedToken("user-1", "chan-1")
	require.NoError(t, err)

	s.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = s.ParseFeedToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestFeedTokenRejectsOtherKeys(t *testing.T) {
	token, err := NewSigner("one", 0).CreateFeedToken("u", "c")
	require.NoError(t, err)

	_, err = NewSigner("two", 0).ParseFeedToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	_, err = NewSigner("one", 0).ParseFeedToken("not.a.token")
	assert.Error(t, err)
}

func TestFeedTokenRequiresChannel(t *testing.T) {
	s := NewSigner("secret", 0)
	token, err := s.CreateFeedToken("u", "")
	require.NoError(t, err)
	_, err = s.ParseFeedToken(token)
	assert.Error(t, err)
}

func TestSignerWithoutSecret(t *testing.T) {
	s := NewSigner("", 0)
	_, err := s.CreateFeedToken("u", "c")
	assert.ErrorIs(t, err, ErrNoSecret)
	_, err = s.ParseFeedToken("x")
	assert.ErrorIs(t, err, ErrNoSecret)
}
